package crypto

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

// Argon2id parameters for password-based key derivation. Chosen to be
// conservative for an interactive handshake (sub-100ms on commodity
// hardware) rather than for long-term credential storage.
const (
	argon2Time    = 1
	argon2MemoryKB = 64 * 1024
	argon2Threads = 4
	argon2KeyLen  = 32
)

// DerivePasswordKey runs Argon2id over password with salt, producing
// the key used as the HMAC key in the password-auth path (§4.3 step 4).
func DerivePasswordKey(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argon2Time, argon2MemoryKB, argon2Threads, argon2KeyLen)
}

// DeriveTrafficSecrets runs HKDF-SHA256 over the ECDH shared secret,
// producing independent send/receive traffic secrets for each side.
// info binds the derivation to the handshake transcript so a replayed
// shared secret from a different session cannot be reused (§3 "derived
// traffic secrets (separate for each direction)").
//
// Per RFC 5869 terminology, salt is the (typically public) HKDF salt
// and info is auxiliary binding context. salt is used as given (the
// handshake passes nil, which HKDF treats as all zeros); info is
// transcriptInfo behind a per-direction label.
func DeriveTrafficSecrets(sharedSecret, salt []byte, transcriptInfo []byte) (serverToClient, clientToServer [32]byte, err error) {
	reader := hkdf.New(sha256.New, sharedSecret, salt, append([]byte("acip-traffic-keys|s2c|"), transcriptInfo...))
	if _, err = io.ReadFull(reader, serverToClient[:]); err != nil {
		return serverToClient, clientToServer, ErrKeyDerivationFailed
	}

	reader2 := hkdf.New(sha256.New, sharedSecret, salt, append([]byte("acip-traffic-keys|c2s|"), transcriptInfo...))
	if _, err = io.ReadFull(reader2, clientToServer[:]); err != nil {
		return serverToClient, clientToServer, ErrKeyDerivationFailed
	}

	return serverToClient, clientToServer, nil
}
