package crypto

import (
	"encoding/binary"
	"fmt"
)

// Suite describes one negotiable cipher suite: the AEAD algorithm, the
// public-key group used for ephemeral ECDH, the signature algorithm
// for identity keys, and the KDF. Spec §3 "Crypto context: Holds the
// negotiated cipher suite ... Key sizes are suite-dependent and stored
// alongside the suite."
type Suite struct {
	ID   SuiteID
	Name string

	PKSize  int // ephemeral public key size, bytes
	SigSize int // identity signature size, bytes
	IDSize  int // identity public key size, bytes
	MACSize int // password-auth HMAC size, bytes
	TagSize int // AEAD tag size, bytes
	NonceSize int // AEAD nonce size, bytes
}

// SuiteID is the wire-level numeric identifier for a suite, used in
// the CAPABILITIES packet exchange.
type SuiteID uint16

const (
	// SuiteX25519ChaCha20Poly1305Ed25519 is the only suite this
	// implementation currently offers: X25519 ECDH, ChaCha20-Poly1305
	// AEAD, Ed25519 identity signatures, HKDF-SHA256 KDF, Argon2id
	// password KDF, HMAC-SHA256 password MAC.
	SuiteX25519ChaCha20Poly1305Ed25519 SuiteID = 1
)

// DefaultSuite is the suite offered and accepted when no negotiation
// constraints apply.
var DefaultSuite = Suite{
	ID:        SuiteX25519ChaCha20Poly1305Ed25519,
	Name:      "X25519-ChaCha20Poly1305-Ed25519-HKDFSHA256",
	PKSize:    32,
	SigSize:   64,
	IDSize:    32,
	MACSize:   32,
	TagSize:   16,
	NonceSize: 12,
}

var knownSuites = map[SuiteID]Suite{
	SuiteX25519ChaCha20Poly1305Ed25519: DefaultSuite,
}

// SuiteByID looks up a suite by its wire identifier.
func SuiteByID(id SuiteID) (Suite, bool) {
	s, ok := knownSuites[id]
	return s, ok
}

// EncodeCapabilities serializes the list of suite IDs a peer supports,
// in descending preference order, for the CAPABILITIES packet.
func EncodeCapabilities(ids []SuiteID) []byte {
	buf := make([]byte, 2+2*len(ids))
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(ids)))
	for i, id := range ids {
		binary.BigEndian.PutUint16(buf[2+2*i:4+2*i], uint16(id))
	}
	return buf
}

// DecodeCapabilities parses a CAPABILITIES payload back into suite IDs.
func DecodeCapabilities(payload []byte) ([]SuiteID, error) {
	if len(payload) < 2 {
		return nil, fmt.Errorf("crypto: capabilities payload too short")
	}
	count := binary.BigEndian.Uint16(payload[0:2])
	if len(payload) != 2+2*int(count) {
		return nil, fmt.Errorf("crypto: capabilities payload length mismatch")
	}
	ids := make([]SuiteID, count)
	for i := range ids {
		ids[i] = SuiteID(binary.BigEndian.Uint16(payload[2+2*i : 4+2*i]))
	}
	return ids, nil
}

// NegotiateSuite picks the client's first acceptable suite from the
// server's offered list, per §4.3 parameter negotiation: "the client's
// first acceptable suite from the server's list wins."
func NegotiateSuite(serverOffered []SuiteID, clientAcceptable map[SuiteID]bool) (Suite, error) {
	for _, id := range serverOffered {
		if clientAcceptable[id] {
			if s, ok := SuiteByID(id); ok {
				return s, nil
			}
		}
	}
	return Suite{}, ErrUnsupportedSuite
}

// ValidateSizeForType checks that a received payload size is plausible
// for the expected schema of a crypto-phase packet, given the
// negotiated suite. Spec §4.1 "validate_size_for_type".
func ValidateSizeForType(s Suite, t PacketKind, size int) error {
	switch t {
	case KindKeyExchangeInitAnonymous:
		return exact(size, s.PKSize)
	case KindKeyExchangeInitAuthenticated:
		return exact(size, s.PKSize+s.IDSize+s.SigSize+8) // + 8-byte signed timestamp
	case KindKeyExchangeResp:
		return exact(size, s.PKSize)
	case KindAuthChallenge:
		return exact(size, 1+32) // requirements bitmap (1 byte) + server nonce (32 bytes)
	case KindRekeyRequest, KindRekeyResponse:
		return exact(size, s.PKSize)
	case KindRekeyComplete:
		return exact(size, 0)
	default:
		return nil
	}
}

func exact(got, want int) error {
	if got != want {
		return fmt.Errorf("crypto: payload size %d does not match expected %d", got, want)
	}
	return nil
}

// PacketKind enumerates the crypto-phase payload schemas that
// ValidateSizeForType understands. It intentionally does not depend
// on the wire package's Type so that crypto stays usable without
// pulling in framing.
type PacketKind int

const (
	KindKeyExchangeInitAnonymous PacketKind = iota
	KindKeyExchangeInitAuthenticated
	KindKeyExchangeResp
	KindAuthChallenge
	KindRekeyRequest
	KindRekeyResponse
	KindRekeyComplete
)
