// Package crypto implements the ACIP cryptographic handshake state
// machine: ephemeral key exchange, mutual
// authentication (password and/or identity signatures), session
// establishment, and periodic rekeying, plus the AEAD encryption
// service the rest of the stack uses once a handshake reaches Ready.
package crypto

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"time"

	"golang.org/x/crypto/curve25519"
)

// State is one of the six states a handshake traverses, per §4.3.
type State int

const (
	StateDisabled State = iota
	StateInit
	StateKeyExchange
	StateAuthenticating
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "Disabled"
	case StateInit:
		return "Init"
	case StateKeyExchange:
		return "KeyExchange"
	case StateAuthenticating:
		return "Authenticating"
	case StateReady:
		return "Ready"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Role distinguishes the two symmetric-but-distinct sides of a
// handshake connection.
type Role int

const (
	RoleServer Role = iota
	RoleClient
)

// Requirements is the server's AuthChallenge requirements bitmap.
type Requirements uint8

const (
	RequirePassword  Requirements = 1 << 0
	RequireClientKey Requirements = 1 << 1
)

// ReplayWindow is the ±5-minute acceptance window for timestamped
// identity signatures, per §4.3 "Replay protection".
const ReplayWindow = 5 * time.Minute

// IdentityVerifier is called by the client after receiving an
// authenticated KeyExchangeInit to compare the server's presented
// identity key against the client's known-hosts record. It returns
// nil to accept, or an error (typically ErrServerIdentityMismatch) to
// reject. A nil function means "no known-hosts policy configured";
// HandleKeyExchangeInit treats that as an unconditional accept, which
// callers should only do for first-connection TOFU flows.
type IdentityVerifier func(presented ed25519.PublicKey) error

// Handshake wraps a Context with everything the key-exchange/auth
// state machine needs: role, state, optional long-term identity
// keypair, optional pre-shared password, peer identity fingerprint,
// server whitelist, challenge nonces, and the pending-packet slot.
type Handshake struct {
	role  Role
	state State
	suite Suite

	ctx        *Context
	transcript *Transcript

	identityPriv ed25519.PrivateKey
	identityPub  ed25519.PublicKey
	hasIdentity  bool

	password    string
	hasPassword bool

	localEphPriv [32]byte
	localEphPub  [32]byte
	peerEphPub   [32]byte

	// Server-side: identity public keys (base64 not needed, compare
	// raw bytes) permitted to authenticate via client-key auth.
	whitelist map[string]bool

	requirements Requirements

	serverNonce          [32]byte
	clientChallengeNonce [32]byte

	peerIdentityPub ed25519.PublicKey

	// pendingPacket is the single pre-handshake packet a server
	// buffers when a client opts out of encryption (§4.3 step 2
	// alternative; §9 open question: "the server must buffer exactly
	// one pending packet and no more").
	pendingPacket []byte

	deadline time.Time

	rekey rekeyState
}

// NewServerHandshake creates a server-side handshake. identity may be
// nil for an anonymous server. whitelist lists identity public keys
// (raw 32 bytes each) permitted for client-key auth; nil/empty means
// client-key auth is never satisfiable. The password checked under
// RequirePassword is configured with SetPassword.
func NewServerHandshake(suite Suite, identity ed25519.PrivateKey, requirements Requirements, whitelist []ed25519.PublicKey, deadline time.Duration) *Handshake {
	h := &Handshake{
		role:         RoleServer,
		state:        StateInit,
		suite:        suite,
		ctx:          NewContext(suite),
		transcript:   NewTranscript(),
		requirements: requirements,
		whitelist:    make(map[string]bool, len(whitelist)),
		deadline:     time.Now().Add(deadline),
	}
	if identity != nil {
		h.identityPriv = identity
		h.identityPub = identity.Public().(ed25519.PublicKey)
		h.hasIdentity = true
	}
	for _, w := range whitelist {
		h.whitelist[string(w)] = true
	}
	return h
}

// SetPassword sets the pre-shared password a server verifies in
// HandleAuthResponse when RequirePassword is set.
func (h *Handshake) SetPassword(password string) {
	h.password = password
	h.hasPassword = password != ""
}

// NewClientHandshake creates a client-side handshake. identity may be
// nil if the client authenticates by password only (or not at all).
func NewClientHandshake(suite Suite, identity ed25519.PrivateKey, password string, deadline time.Duration) *Handshake {
	h := &Handshake{
		role:       RoleClient,
		state:      StateInit,
		suite:      suite,
		ctx:        NewContext(suite),
		transcript: NewTranscript(),
		deadline:   time.Now().Add(deadline),
	}
	if identity != nil {
		h.identityPriv = identity
		h.identityPub = identity.Public().(ed25519.PublicKey)
		h.hasIdentity = true
	}
	if password != "" {
		h.password = password
		h.hasPassword = true
	}
	return h
}

// State returns the handshake's current state.
func (h *Handshake) State() State { return h.state }

// Context returns the handshake's crypto context (AEAD service).
// Valid to call at any time. The context is activated as soon as the
// key exchange derives the traffic secrets (the handshake is then in
// Authenticating), so Encrypt/Decrypt on it return ErrInvalidState only
// before that point, not in every state other than Ready.
func (h *Handshake) Context() *Context { return h.ctx }

// Expired reports whether the end-to-end handshake deadline (§5,
// default 30s) has passed.
func (h *Handshake) Expired() bool { return time.Now().After(h.deadline) }

func (h *Handshake) fail(err error) error {
	h.state = StateFailed
	return err
}

func (h *Handshake) requireState(want State) error {
	if h.state != want {
		return ErrInvalidState
	}
	return nil
}

func generateEphemeral() (priv, pub [32]byte, err error) {
	if _, err = rand.Read(priv[:]); err != nil {
		return priv, pub, err
	}
	// Clamp per RFC 7748 so the scalar is a valid X25519 private key.
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64

	pubSlice, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return priv, pub, err
	}
	copy(pub[:], pubSlice)
	return priv, pub, nil
}

func ecdh(priv, peerPub [32]byte) ([]byte, error) {
	return curve25519.X25519(priv[:], peerPub[:])
}

func timestampBytes(t time.Time) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(t.Unix()))
	return buf[:]
}

func withinReplayWindow(ts time.Time) bool {
	delta := time.Since(ts)
	if delta < 0 {
		delta = -delta
	}
	return delta <= ReplayWindow
}

// SignWithTimestamp signs message||timestamp, returning signature and
// the encoded timestamp so the verifier can reproduce the signed
// bytes. Spec §4.3 "Replay protection": "any identity-signed blob
// includes a timestamp with a ±5-minute window."
func SignWithTimestamp(priv ed25519.PrivateKey, message []byte, ts time.Time) (sig []byte, tsBytes []byte) {
	tsBytes = timestampBytes(ts)
	signed := append(append([]byte(nil), message...), tsBytes...)
	return ed25519.Sign(priv, signed), tsBytes
}

// VerifyWithTimestamp verifies a signature produced by
// SignWithTimestamp and enforces the replay window.
func VerifyWithTimestamp(pub ed25519.PublicKey, message, sig, tsBytes []byte) error {
	if len(tsBytes) != 8 {
		return ErrBadSignature
	}
	ts := time.Unix(int64(binary.BigEndian.Uint64(tsBytes)), 0)
	if !withinReplayWindow(ts) {
		return ErrReplayWindowExceeded
	}
	signed := append(append([]byte(nil), message...), tsBytes...)
	if !ed25519.Verify(pub, signed, sig) {
		return ErrBadSignature
	}
	return nil
}

// --- Server step 1: KeyExchangeInit ---

// BuildKeyExchangeInit constructs the server's first message:
// [server_ephemeral_pk] for an anonymous server, or
// [server_ephemeral_pk || server_identity_pk || sig] for an
// authenticated one. Transitions Init -> KeyExchange.
func (h *Handshake) BuildKeyExchangeInit() ([]byte, error) {
	if err := h.requireState(StateInit); err != nil {
		return nil, err
	}
	if h.role != RoleServer {
		return nil, ErrInvalidState
	}

	priv, pub, err := generateEphemeral()
	if err != nil {
		return nil, h.fail(err)
	}
	h.localEphPriv, h.localEphPub = priv, pub

	var payload []byte
	if h.hasIdentity {
		sig, ts := SignWithTimestamp(h.identityPriv, pub[:], time.Now())
		payload = make([]byte, 0, len(pub)+len(h.identityPub)+len(sig)+len(ts))
		payload = append(payload, pub[:]...)
		payload = append(payload, h.identityPub...)
		payload = append(payload, sig...)
		payload = append(payload, ts...)
	} else {
		payload = append([]byte(nil), pub[:]...)
	}

	h.transcript.Append(payload)
	h.state = StateKeyExchange
	return payload, nil
}

// --- Client step 2: handle KeyExchangeInit, build KeyExchangeResp ---

// HandleKeyExchangeInit parses the server's first message, optionally
// verifying its identity signature against verify (nil = no
// known-hosts policy, accept unconditionally). On success it
// generates the client's own ephemeral key, derives the shared
// secret, and returns the KeyExchangeResp payload. Transitions
// Init -> Authenticating (collapsing the key-exchange step since the
// client completes its half of the exchange in one call).
func (h *Handshake) HandleKeyExchangeInit(payload []byte, verify IdentityVerifier) ([]byte, error) {
	if err := h.requireState(StateInit); err != nil {
		return nil, err
	}
	if h.role != RoleClient {
		return nil, ErrInvalidState
	}
	if len(payload) < h.suite.PKSize {
		return nil, h.fail(fmt.Errorf("crypto: KeyExchangeInit too short"))
	}

	h.transcript.Append(payload)

	copy(h.peerEphPub[:], payload[:h.suite.PKSize])
	rest := payload[h.suite.PKSize:]

	if len(rest) > 0 {
		idSize, sigSize := h.suite.IDSize, h.suite.SigSize
		if len(rest) != idSize+sigSize+8 {
			return nil, h.fail(fmt.Errorf("crypto: authenticated KeyExchangeInit malformed"))
		}
		serverIdentityPub := ed25519.PublicKey(rest[:idSize])
		sig := rest[idSize : idSize+sigSize]
		tsBytes := rest[idSize+sigSize:]

		if err := VerifyWithTimestamp(serverIdentityPub, payload[:h.suite.PKSize], sig, tsBytes); err != nil {
			return nil, h.fail(err)
		}
		if verify != nil {
			if err := verify(serverIdentityPub); err != nil {
				return nil, h.fail(ErrServerIdentityMismatch)
			}
		}
		h.peerIdentityPub = serverIdentityPub
	}

	priv, pub, err := generateEphemeral()
	if err != nil {
		return nil, h.fail(err)
	}
	h.localEphPriv, h.localEphPub = priv, pub

	resp := append([]byte(nil), pub[:]...)
	h.transcript.Append(resp)

	if err := h.deriveTraffic(); err != nil {
		return nil, h.fail(err)
	}

	h.state = StateAuthenticating
	return resp, nil
}

// HandleNoEncryptionOptOut is the client's alternative to
// HandleKeyExchangeInit: it declines encryption entirely. The caller
// is responsible for sending the NoEncryption packet; this just
// updates local state to Disabled.
func (h *Handshake) HandleNoEncryptionOptOut() error {
	if err := h.requireState(StateInit); err != nil {
		return err
	}
	h.state = StateDisabled
	return nil
}

// --- Server step 3: handle KeyExchangeResp, build AuthChallenge ---

// HandleKeyExchangeResp derives the shared secret from the client's
// ephemeral key and returns the AuthChallenge payload
// [requirements || server_nonce]. Transitions KeyExchange ->
// Authenticating.
func (h *Handshake) HandleKeyExchangeResp(payload []byte) ([]byte, error) {
	if err := h.requireState(StateKeyExchange); err != nil {
		return nil, err
	}
	if h.role != RoleServer {
		return nil, ErrInvalidState
	}
	if len(payload) != h.suite.PKSize {
		return nil, h.fail(fmt.Errorf("crypto: KeyExchangeResp size mismatch"))
	}

	h.transcript.Append(payload)
	copy(h.peerEphPub[:], payload)

	if err := h.deriveTraffic(); err != nil {
		return nil, h.fail(err)
	}

	if _, err := rand.Read(h.serverNonce[:]); err != nil {
		return nil, h.fail(err)
	}

	out := make([]byte, 1+len(h.serverNonce))
	out[0] = byte(h.requirements)
	copy(out[1:], h.serverNonce[:])

	h.transcript.Append(out)
	h.state = StateAuthenticating
	return out, nil
}

// HandleClientOptOut is the server's counterpart to the client opting
// out of encryption: it buffers the client's pending pre-handshake
// packet (at most one, per §9) and transitions to Disabled.
func (h *Handshake) HandleClientOptOut(pending []byte) error {
	if err := h.requireState(StateKeyExchange); err != nil {
		return err
	}
	if h.pendingPacket != nil {
		return ErrPendingPacketSlotFull
	}
	h.pendingPacket = append([]byte(nil), pending...)
	h.state = StateDisabled
	return nil
}

// TakePendingPacket returns and clears the buffered pre-handshake
// packet, if any.
func (h *Handshake) TakePendingPacket() []byte {
	p := h.pendingPacket
	h.pendingPacket = nil
	return p
}

func (h *Handshake) deriveTraffic() error {
	shared, err := ecdh(h.localEphPriv, h.peerEphPub)
	if err != nil {
		return ErrKeyDerivationFailed
	}
	s2c, c2s, err := DeriveTrafficSecrets(shared, nil, h.transcript.Sum())
	if err != nil {
		return err
	}
	return h.ctx.Activate(s2c, c2s, h.role == RoleServer)
}

// --- Client step 4: build AuthResponse ---

// argon2Salt is a fixed, protocol-level salt for the password KDF.
// Using a fixed salt is acceptable here because the Argon2id output
// is never stored at rest — it only seeds a per-connection HMAC key
// derived fresh from a transcript-bound challenge each handshake.
var argon2Salt = []byte("acip-password-auth-v1")

// BuildAuthResponse forms the client's AuthResponse given the parsed
// AuthChallenge requirements and server nonce. When client-key auth is
// required, a fresh client challenge nonce is generated here, appended
// to the payload, and kept on h for verifying ServerAuthResp.
func (h *Handshake) BuildAuthResponse(requirements Requirements, serverNonce [32]byte) ([]byte, error) {
	if err := h.requireState(StateAuthenticating); err != nil {
		return nil, err
	}
	if h.role != RoleClient {
		return nil, ErrInvalidState
	}

	h.requirements = requirements
	h.serverNonce = serverNonce

	challenge := make([]byte, 1+len(serverNonce))
	challenge[0] = byte(requirements)
	copy(challenge[1:], serverNonce[:])
	h.transcript.Append(challenge)

	var out []byte

	if requirements&RequirePassword != 0 {
		if !h.hasPassword {
			return nil, h.fail(ErrPasswordRequired)
		}
		key := DerivePasswordKey(h.password, argon2Salt)
		mac := hmac.New(sha256.New, key)
		mac.Write(serverNonce[:])
		mac.Write(h.transcript.Sum())
		out = append(out, mac.Sum(nil)...)
	}

	if requirements&RequireClientKey != 0 {
		if !h.hasIdentity {
			return nil, h.fail(ErrClientKeyRequired)
		}
		signed := append(append([]byte(nil), serverNonce[:]...), h.transcript.Sum()...)
		sig := ed25519.Sign(h.identityPriv, signed)

		if _, err := rand.Read(h.clientChallengeNonce[:]); err != nil {
			return nil, h.fail(err)
		}

		out = append(out, sig...)
		out = append(out, h.identityPub...)
		out = append(out, h.clientChallengeNonce[:]...)
	}

	if len(out) == 0 {
		// No requirements at all: AuthResponse is empty but still
		// sent, so the transcript on both sides stays in lockstep.
		out = []byte{}
	}

	h.transcript.Append(out)
	return out, nil
}

// --- Server step 5: verify AuthResponse, build ServerAuthResp ---

// HandleAuthResponse verifies the client's password MAC and/or
// identity signature per h.requirements, then signs the client's
// challenge nonce and returns (serverAuthResp, nil) on success.
// Transitions Authenticating -> Ready.
func (h *Handshake) HandleAuthResponse(payload []byte) ([]byte, error) {
	if err := h.requireState(StateAuthenticating); err != nil {
		return nil, err
	}
	if h.role != RoleServer {
		return nil, ErrInvalidState
	}

	transcriptBeforeResponse := h.transcript.Sum()
	offset := 0

	if h.requirements&RequirePassword != 0 {
		if offset+h.suite.MACSize > len(payload) {
			return nil, h.fail(ErrPasswordMismatch)
		}
		gotMAC := payload[offset : offset+h.suite.MACSize]
		offset += h.suite.MACSize

		key := DerivePasswordKey(h.password, argon2Salt)
		mac := hmac.New(sha256.New, key)
		mac.Write(h.serverNonce[:])
		mac.Write(transcriptBeforeResponse)
		want := mac.Sum(nil)

		if subtle.ConstantTimeCompare(gotMAC, want) != 1 {
			return nil, h.fail(ErrPasswordMismatch)
		}
	}

	if h.requirements&RequireClientKey != 0 {
		sigSize, idSize := h.suite.SigSize, h.suite.IDSize
		if offset+sigSize+idSize+32 > len(payload) {
			return nil, h.fail(ErrBadSignature)
		}
		sig := payload[offset : offset+sigSize]
		offset += sigSize
		clientIdentityPub := ed25519.PublicKey(payload[offset : offset+idSize])
		offset += idSize
		copy(h.clientChallengeNonce[:], payload[offset:offset+32])
		offset += 32

		if !h.whitelist[string(clientIdentityPub)] {
			return nil, h.fail(ErrClientNotAuthorized)
		}

		signed := append(append([]byte(nil), h.serverNonce[:]...), transcriptBeforeResponse...)
		if !ed25519.Verify(clientIdentityPub, signed, sig) {
			return nil, h.fail(ErrBadSignature)
		}
		h.peerIdentityPub = clientIdentityPub
	}

	h.transcript.Append(payload)

	var serverAuthResp []byte
	if h.requirements&RequireClientKey != 0 {
		if !h.hasIdentity {
			return nil, h.fail(fmt.Errorf("crypto: client-key auth required but server has no identity to counter-sign"))
		}
		signed := append(append([]byte(nil), h.clientChallengeNonce[:]...), h.transcript.Sum()...)
		serverAuthResp = ed25519.Sign(h.identityPriv, signed)
	}

	h.transcript.Append(serverAuthResp)
	h.state = StateReady
	return serverAuthResp, nil
}

// --- Client step 6: verify ServerAuthResp ---

// HandleServerAuthResp verifies the server's reply (when client-key
// auth was required) against the known server identity key, then
// transitions Authenticating -> Ready. When client-key auth was not
// required, serverAuthResp is empty and this call simply transitions.
func (h *Handshake) HandleServerAuthResp(serverAuthResp []byte) error {
	if err := h.requireState(StateAuthenticating); err != nil {
		return err
	}
	if h.role != RoleClient {
		return ErrInvalidState
	}

	transcriptBefore := h.transcript.Sum()

	if h.requirements&RequireClientKey != 0 {
		if h.peerIdentityPub == nil {
			return h.fail(fmt.Errorf("crypto: no server identity key to verify against"))
		}
		signed := append(append([]byte(nil), h.clientChallengeNonce[:]...), transcriptBefore...)
		if !ed25519.Verify(h.peerIdentityPub, signed, serverAuthResp) {
			return h.fail(ErrBadSignature)
		}
	}

	h.transcript.Append(serverAuthResp)
	h.state = StateReady
	return nil
}
