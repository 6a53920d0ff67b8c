package crypto

import (
	"crypto/cipher"
	"encoding/binary"
	"sync"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
)

// replayWindowBits is the width of the sliding replay-rejection window
// behind the highest accepted counter, per §4.3 "Replay protection":
// a counter "≤ the highest previously accepted counter or falls
// outside a small replay window" is rejected.
const replayWindowBits = 64

// direction distinguishes the two traffic-secret / nonce-mask slots a
// Context holds, since encryption is unidirectional per key.
type direction int

const (
	directionSend direction = iota
	directionRecv
)

// keySlot holds one direction's AEAD state: the traffic secret (as a
// ready-to-use cipher.AEAD) and its fixed nonce mask. A send slot only
// uses the counter; a recv slot additionally tracks replay state.
type keySlot struct {
	aead cipher.AEAD
	mask uint64 // XOR'd into the big-endian counter to form the nonce, per §4.3 "encrypt"

	sendCounter uint64 // next counter to use, send slots only

	started bool   // false until the first counter has been accepted, recv slots only
	last    uint64 // highest counter accepted so far, recv slots only
	bitmap  uint64 // bit k set means counter (last-k) has been accepted, k in 0..63
}

// Context is the crypto context of spec §3: negotiated suite, traffic
// secrets, nonce counters, replay window, and rekey trigger counters.
// It is created empty (Disabled-equivalent) and populated by Activate
// once the handshake's key exchange has derived the traffic secrets.
type Context struct {
	mu sync.Mutex

	suite Suite
	ready bool

	send keySlot
	recv keySlot

	// prevRecv is the short-lived "previous" receive slot kept during
	// a rekey grace window (§4.3 "Rekey" step 4): packets encrypted
	// under the old key continue to decrypt until prevRecvExpiry.
	prevRecv       *keySlot
	prevRecvExpiry time.Time

	bytesSinceRekey   uint64
	packetsSinceRekey uint64
	lastRekey         time.Time
}

// RekeyGraceWindow is how long the previous receive key remains valid
// after a rekey completes (§4.3 scenario 3: "5 s").
const RekeyGraceWindow = 5 * time.Second

// NewContext returns an empty, not-yet-Ready crypto context for suite.
func NewContext(suite Suite) *Context {
	return &Context{suite: suite, lastRekey: time.Now()}
}

// Activate installs the derived traffic secrets and transitions the
// context into the Ready state where Encrypt/Decrypt operate. isServer selects which derived secret
// is this side's send vs. receive key, so client and server end up
// using opposite halves of the (serverToClient, clientToServer) pair.
func (c *Context) Activate(serverToClient, clientToServer [32]byte, isServer bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sendKey, recvKey := clientToServer, serverToClient
	sendMask, recvMask := uint64(0x0), uint64(0x1)
	if isServer {
		sendKey, recvKey = serverToClient, clientToServer
		sendMask, recvMask = uint64(0x1), uint64(0x0)
	}

	sendAEAD, err := chacha20poly1305.New(sendKey[:])
	if err != nil {
		return ErrKeyDerivationFailed
	}
	recvAEAD, err := chacha20poly1305.New(recvKey[:])
	if err != nil {
		return ErrKeyDerivationFailed
	}

	c.send = keySlot{aead: sendAEAD, mask: sendMask}
	c.recv = keySlot{aead: recvAEAD, mask: recvMask}
	c.prevRecv = nil
	c.bytesSinceRekey = 0
	c.packetsSinceRekey = 0
	c.lastRekey = time.Now()
	c.ready = true
	return nil
}

// Ready reports whether Encrypt/Decrypt will perform AEAD operations
// (true) or return ErrInvalidState (false).
func (c *Context) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

func nonceFor(mask uint64, counter uint64) []byte {
	nonce := make([]byte, chacha20poly1305.NonceSize)
	binary.BigEndian.PutUint64(nonce[4:], counter^mask)
	return nonce
}

// Encrypt seals plaintext under the current send key, prepending the
// 8-byte big-endian send counter ahead of the sealed (ciphertext||tag)
// blob, per §4.3 "encrypt(plaintext) -> ciphertext ... The tag and
// counter are prepended to the ciphertext" (the tag rides along inside
// the AEAD seal output; the counter is the part genuinely prepended
// here). Returns ErrInvalidState when the context is not yet Ready;
// this package has no passthrough variant for plaintext traffic.
func (c *Context) Encrypt(plaintext []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ready {
		return nil, ErrInvalidState
	}

	counter := c.send.sendCounter
	c.send.sendCounter++

	nonce := nonceFor(c.send.mask, counter)
	sealed := c.send.aead.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, 8+len(sealed))
	binary.BigEndian.PutUint64(out[0:8], counter)
	copy(out[8:], sealed)

	c.bytesSinceRekey += uint64(len(plaintext))
	c.packetsSinceRekey++

	return out, nil
}

// Decrypt opens a ciphertext produced by the peer's Encrypt. It
// rejects replays (counter already accepted, or outside the sliding
// window) with ErrNonceReused before attempting authentication, and
// falls back to the previous receive key during a rekey grace window.
func (c *Context) Decrypt(ciphertext []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ready {
		return nil, ErrInvalidState
	}
	if len(ciphertext) < 8 {
		return nil, ErrDecryptFailed
	}

	counter := binary.BigEndian.Uint64(ciphertext[0:8])
	sealed := ciphertext[8:]

	plaintext, err := c.tryDecrypt(&c.recv, counter, sealed)
	if err == nil {
		return plaintext, nil
	}

	if c.prevRecv != nil && time.Now().Before(c.prevRecvExpiry) {
		if pt, perr := c.tryDecrypt(c.prevRecv, counter, sealed); perr == nil {
			return pt, nil
		}
	}

	return nil, err
}

// tryDecrypt authenticates ciphertext against one key slot's replay
// state, committing the counter as seen only on success.
func (c *Context) tryDecrypt(slot *keySlot, counter uint64, sealed []byte) ([]byte, error) {
	if !acceptCounter(slot, counter) {
		return nil, ErrNonceReused
	}

	nonce := nonceFor(slot.mask, counter)
	plaintext, err := slot.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}

	commitCounter(slot, counter)
	return plaintext, nil
}

// acceptCounter reports whether counter is new enough and not already
// marked seen, without mutating state (so a failed authentication
// attempt does not burn the replay slot). Window model: bit k of
// slot.bitmap means counter (slot.last-k) was already accepted, for
// k in 0..63; anything more than 63 below slot.last is out of window.
func acceptCounter(slot *keySlot, counter uint64) bool {
	if !slot.started {
		return true
	}
	if counter > slot.last {
		return true
	}
	diff := slot.last - counter
	if diff >= replayWindowBits {
		return false
	}
	return slot.bitmap&(uint64(1)<<diff) == 0
}

// commitCounter records counter as accepted, advancing the window.
func commitCounter(slot *keySlot, counter uint64) {
	if !slot.started {
		slot.started = true
		slot.last = counter
		slot.bitmap = 1
		return
	}
	if counter > slot.last {
		shift := counter - slot.last
		if shift >= replayWindowBits {
			slot.bitmap = 0
		} else {
			slot.bitmap <<= shift
		}
		slot.bitmap |= 1
		slot.last = counter
		return
	}
	diff := slot.last - counter
	if diff < replayWindowBits {
		slot.bitmap |= uint64(1) << diff
	}
}

// CountersSinceRekey reports the packet and byte counters used to
// trigger a rekey, per §4.3 "Rekey".
func (c *Context) CountersSinceRekey() (packets, bytesSent uint64, since time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.packetsSinceRekey, c.bytesSinceRekey, time.Since(c.lastRekey)
}

// BeginRekeyGrace stashes the current receive slot as "previous" so
// in-flight packets encrypted under the old key keep decrypting for
// RekeyGraceWindow after Activate installs the new keys.
func (c *Context) BeginRekeyGrace() {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.recv
	c.prevRecv = &prev
	c.prevRecvExpiry = time.Now().Add(RekeyGraceWindow)
}

// DropPreviousKey discards the stashed previous receive slot
// immediately, without waiting out RekeyGraceWindow. Used once a
// rekey's completion message has been verified under the new key, so
// the old key stops being accepted right away rather than lingering.
func (c *Context) DropPreviousKey() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prevRecv = nil
}

// Zero destroys all key material, per §3 handshake-context lifecycle
// ("destroyed when the connection terminates, with all key material
// zeroed").
func (c *Context) Zero() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.send = keySlot{}
	c.recv = keySlot{}
	c.prevRecv = nil
	c.ready = false
}
