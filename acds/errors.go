package acds

import "errors"

// Error taxonomy specific to ACDS.
var (
	ErrSessionNotFound       = errors.New("acds: session not found")
	ErrSessionFull           = errors.New("acds: session at max participants")
	ErrSessionExpired        = errors.New("acds: session expired")
	ErrInvalidSignature      = errors.New("acds: signature verification failed")
	ErrReplayWindowExceeded  = errors.New("acds: request timestamp outside replay window")
	ErrAuthFailed            = errors.New("acds: authentication failed")
	ErrStringAlreadyReserved = errors.New("acds: session string already reserved")
)
