package crypto

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"time"
)

// RekeyTimeout bounds how long a responder waits for RekeyComplete
// after sending RekeyResponse before giving up with ErrRekeyFailed,
// per §4.3 scenario 3. This is distinct from Context's 5s data-plane
// grace window (RekeyGraceWindow): that window governs how long
// old-key packets keep decrypting; this one governs how long the
// rekey handshake itself may take before the connection is torn down.
const RekeyTimeout = 10 * time.Second

// RekeyTrigger reports which counter (if any) has crossed its
// threshold and should trigger a rekey, per §4.3 "Rekey".
type RekeyTrigger int

const (
	RekeyNotTriggered RekeyTrigger = iota
	RekeyTriggerPackets
	RekeyTriggerBytes
	RekeyTriggerTime
)

// RekeyThresholds holds the tunable trigger constants from §6
// ("Rekey thresholds (packets, bytes, seconds) are tunable constants").
type RekeyThresholds struct {
	Packets uint64
	Bytes   uint64
	Seconds time.Duration
}

// DefaultRekeyThresholds matches the typical values named in §4.3.
var DefaultRekeyThresholds = RekeyThresholds{
	Packets: 1 << 32,
	Bytes:   2 * 1024 * 1024 * 1024,
	Seconds: time.Hour,
}

// ShouldRekey checks h's crypto context counters against thresholds.
func (h *Handshake) ShouldRekey(thresholds RekeyThresholds) RekeyTrigger {
	packets, bytesSent, since := h.ctx.CountersSinceRekey()
	switch {
	case packets >= thresholds.Packets:
		return RekeyTriggerPackets
	case bytesSent >= thresholds.Bytes:
		return RekeyTriggerBytes
	case since >= thresholds.Seconds:
		return RekeyTriggerTime
	default:
		return RekeyNotTriggered
	}
}

// rekeyState tracks the in-flight rekey exchange, separate from the
// original handshake's ephemeral keys so a rekey never disturbs them.
type rekeyState struct {
	active    bool
	initiator bool
	localPriv [32]byte
	localPub  [32]byte
	deadline  time.Time
}

// BeginRekey starts a rekey as the initiator (§4.3 "Rekey" step 1):
// generates fresh ephemeral keys and returns the RekeyRequest payload
// [new_pk]. The old keys remain active in h.Context() for decrypting
// in-flight traffic until the exchange completes.
func (h *Handshake) BeginRekey() ([]byte, error) {
	if !h.ctx.Ready() {
		return nil, ErrInvalidState
	}
	priv, pub, err := generateEphemeral()
	if err != nil {
		return nil, err
	}
	h.rekey = rekeyState{active: true, initiator: true, localPriv: priv, localPub: pub, deadline: time.Now().Add(RekeyTimeout)}
	return pub[:], nil
}

// HandleRekeyRequest is the responder's reaction to an incoming
// RekeyRequest (step 2): it generates its own fresh ephemeral keys,
// derives new traffic secrets, and activates them immediately (with
// the old receive key retained for RekeyGraceWindow), returning the
// RekeyResponse payload [new_pk].
func (h *Handshake) HandleRekeyRequest(peerNewPub []byte) ([]byte, error) {
	if !h.ctx.Ready() {
		return nil, ErrInvalidState
	}
	if len(peerNewPub) != h.suite.PKSize {
		return nil, fmt.Errorf("crypto: RekeyRequest payload size mismatch")
	}

	priv, pub, err := generateEphemeral()
	if err != nil {
		return nil, err
	}

	var peerPub [32]byte
	copy(peerPub[:], peerNewPub)

	if err := h.activateRekeyedSecrets(priv, pub, peerPub); err != nil {
		return nil, err
	}

	h.rekey = rekeyState{active: true, initiator: false, localPriv: priv, localPub: pub, deadline: time.Now().Add(RekeyTimeout)}
	return pub[:], nil
}

// HandleRekeyResponse is the initiator's reaction to RekeyResponse
// (step 3): derives and activates new traffic secrets from its own
// rekey ephemeral (generated in BeginRekey) and the responder's new
// public key. A nil return tells the caller to send RekeyComplete
// encrypted under the now-active new send key.
func (h *Handshake) HandleRekeyResponse(peerNewPub []byte) error {
	if !h.rekey.active || !h.rekey.initiator {
		return ErrInvalidState
	}
	if len(peerNewPub) != h.suite.PKSize {
		return fmt.Errorf("crypto: RekeyResponse payload size mismatch")
	}

	var peerPub [32]byte
	copy(peerPub[:], peerNewPub)

	return h.activateRekeyedSecrets(h.rekey.localPriv, h.rekey.localPub, peerPub)
}

// CommitRekey is called by the responder once it has successfully
// decrypted RekeyComplete under the new key: it discards the old key
// slot immediately rather than waiting out the full grace window,
// per §4.3 step 4 ("commits — discarding old keys").
func (h *Handshake) CommitRekey() {
	h.ctx.DropPreviousKey()
	h.rekey = rekeyState{}
}

// RekeyTimedOut reports whether an in-progress rekey has exceeded
// RekeyTimeout without completing, per §4.3 step 4 ("If a
// RekeyComplete cannot be decrypted with the new keys, the responder
// remains on old keys until a timeout fires, after which the
// connection is closed with RekeyFailed").
func (h *Handshake) RekeyTimedOut() bool {
	return h.rekey.active && time.Now().After(h.rekey.deadline)
}

// activateRekeyedSecrets derives and installs the post-rekey traffic
// secrets. The HKDF salt is the hash of both sides' new ephemeral
// public keys in a canonical (sorted) order, so client and server
// independently arrive at the same salt without exchanging one
// explicitly — unlike the original handshake, a rekey has no shared
// transcript left to bind to.
func (h *Handshake) activateRekeyedSecrets(localPriv, localPub, peerPub [32]byte) error {
	shared, err := ecdh(localPriv, peerPub)
	if err != nil {
		return ErrKeyDerivationFailed
	}

	salt := canonicalRekeySalt(localPub, peerPub)

	s2c, c2s, err := DeriveTrafficSecrets(shared, salt[:], []byte("acip-rekey"))
	if err != nil {
		return err
	}

	h.ctx.BeginRekeyGrace()
	return h.ctx.Activate(s2c, c2s, h.role == RoleServer)
}

func canonicalRekeySalt(a, b [32]byte) [32]byte {
	first, second := a, b
	if bytes.Compare(a[:], b[:]) > 0 {
		first, second = b, a
	}
	h := sha256.New()
	h.Write(first[:])
	h.Write(second[:])
	var salt [32]byte
	copy(salt[:], h.Sum(nil))
	return salt
}
