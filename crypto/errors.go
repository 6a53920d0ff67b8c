package crypto

import "errors"

// Sentinel errors for the crypto and auth failure cases.
var (
	ErrInvalidState          = errors.New("crypto: operation invalid in current state")
	ErrBadSignature          = errors.New("crypto: signature verification failed")
	ErrBadMAC                = errors.New("crypto: MAC verification failed")
	ErrNonceReused           = errors.New("crypto: nonce counter already seen")
	ErrReplayWindowExceeded  = errors.New("crypto: timestamp outside replay window")
	ErrKeyDerivationFailed   = errors.New("crypto: key derivation failed")
	ErrDecryptFailed         = errors.New("crypto: AEAD authentication failed")
	ErrServerIdentityMismatch = errors.New("crypto: server identity does not match known-hosts record")
	ErrRekeyFailed           = errors.New("crypto: rekey did not complete before RekeyTimeout expired")

	ErrPasswordRequired    = errors.New("crypto: password required but not supplied")
	ErrPasswordMismatch    = errors.New("crypto: password verification failed")
	ErrClientKeyRequired   = errors.New("crypto: client identity key required but not supplied")
	ErrClientNotAuthorized = errors.New("crypto: client identity key not in whitelist")

	ErrUnsupportedSuite = errors.New("crypto: no mutually acceptable cipher suite")
	ErrTranscriptDiverged = errors.New("crypto: transcript hash diverged from peer")
	ErrPendingPacketSlotFull = errors.New("crypto: pending pre-handshake packet slot already occupied")
)
