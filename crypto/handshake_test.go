package crypto

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// driveKeyExchange runs steps 1-3 of the handshake (KeyExchangeInit,
// KeyExchangeResp, AuthChallenge) and returns the parsed AuthChallenge
// fields so callers can continue into the auth phase.
func driveKeyExchange(t *testing.T, server, client *Handshake, verify IdentityVerifier) (Requirements, [32]byte) {
	t.Helper()

	initMsg, err := server.BuildKeyExchangeInit()
	require.NoError(t, err)

	respMsg, err := client.HandleKeyExchangeInit(initMsg, verify)
	require.NoError(t, err)

	challenge, err := server.HandleKeyExchangeResp(respMsg)
	require.NoError(t, err)
	require.Equal(t, StateAuthenticating, server.State())
	require.Equal(t, StateAuthenticating, client.State())

	requirements := Requirements(challenge[0])
	var nonce [32]byte
	copy(nonce[:], challenge[1:])
	return requirements, nonce
}

func TestHandshakePasswordOnly(t *testing.T) {
	server := NewServerHandshake(DefaultSuite, nil, RequirePassword, nil, 30*time.Second)
	server.SetPassword("correct horse battery staple")
	client := NewClientHandshake(DefaultSuite, nil, "correct horse battery staple", 30*time.Second)

	requirements, nonce := driveKeyExchange(t, server, client, nil)

	authResp, err := client.BuildAuthResponse(requirements, nonce)
	require.NoError(t, err)

	serverAuthResp, err := server.HandleAuthResponse(authResp)
	require.NoError(t, err)
	require.Equal(t, StateReady, server.State())

	require.NoError(t, client.HandleServerAuthResp(serverAuthResp))
	require.Equal(t, StateReady, client.State())

	ct, err := client.Context().Encrypt([]byte("hello"))
	require.NoError(t, err)
	pt, err := server.Context().Decrypt(ct)
	require.NoError(t, err)
	require.Equal(t, "hello", string(pt))
}

func TestHandshakeWrongPasswordFails(t *testing.T) {
	server := NewServerHandshake(DefaultSuite, nil, RequirePassword, nil, 30*time.Second)
	server.SetPassword("correct horse battery staple")
	client := NewClientHandshake(DefaultSuite, nil, "not-the-password", 30*time.Second)

	requirements, nonce := driveKeyExchange(t, server, client, nil)

	authResp, err := client.BuildAuthResponse(requirements, nonce)
	require.NoError(t, err)

	_, err = server.HandleAuthResponse(authResp)
	require.ErrorIs(t, err, ErrPasswordMismatch)
	require.Equal(t, StateFailed, server.State())
}

func TestHandshakeClientKeyAuth(t *testing.T) {
	serverIdentPub, serverIdentPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	clientIdentPub, clientIdentPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	server := NewServerHandshake(DefaultSuite, serverIdentPriv, RequireClientKey, []ed25519.PublicKey{clientIdentPub}, 30*time.Second)
	client := NewClientHandshake(DefaultSuite, clientIdentPriv, "", 30*time.Second)

	var verified ed25519.PublicKey
	verify := func(presented ed25519.PublicKey) error {
		verified = presented
		return nil
	}

	requirements, nonce := driveKeyExchange(t, server, client, verify)
	require.Equal(t, serverIdentPub, verified)

	authResp, err := client.BuildAuthResponse(requirements, nonce)
	require.NoError(t, err)

	serverAuthResp, err := server.HandleAuthResponse(authResp)
	require.NoError(t, err)
	require.Equal(t, StateReady, server.State())

	require.NoError(t, client.HandleServerAuthResp(serverAuthResp))
	require.Equal(t, StateReady, client.State())
}

func TestHandshakeUnauthorizedClientKeyRejected(t *testing.T) {
	serverIdentPub, serverIdentPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	_, clientIdentPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	_ = serverIdentPub

	// Whitelist contains a different key, not the client's.
	otherPub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	server := NewServerHandshake(DefaultSuite, serverIdentPriv, RequireClientKey, []ed25519.PublicKey{otherPub}, 30*time.Second)
	client := NewClientHandshake(DefaultSuite, clientIdentPriv, "", 30*time.Second)

	requirements, nonce := driveKeyExchange(t, server, client, nil)

	authResp, err := client.BuildAuthResponse(requirements, nonce)
	require.NoError(t, err)

	_, err = server.HandleAuthResponse(authResp)
	require.ErrorIs(t, err, ErrClientNotAuthorized)
	require.Equal(t, StateFailed, server.State())
}

func TestHandshakeServerIdentityMismatchRejected(t *testing.T) {
	_, serverIdentPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	server := NewServerHandshake(DefaultSuite, serverIdentPriv, RequirePassword, nil, 30*time.Second)
	client := NewClientHandshake(DefaultSuite, nil, "pw", 30*time.Second)

	// Simulate a known-hosts record for a *different* server identity,
	// so the presented key never matches.
	wrongPub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	verify := func(presented ed25519.PublicKey) error {
		if presented.Equal(wrongPub) {
			return nil
		}
		return ErrServerIdentityMismatch
	}

	initMsg, err := server.BuildKeyExchangeInit()
	require.NoError(t, err)

	_, err = client.HandleKeyExchangeInit(initMsg, verify)
	require.ErrorIs(t, err, ErrServerIdentityMismatch)
	require.Equal(t, StateFailed, client.State())
}

func TestHandshakeNoEncryptionOptOut(t *testing.T) {
	client := NewClientHandshake(DefaultSuite, nil, "", 30*time.Second)
	require.NoError(t, client.HandleNoEncryptionOptOut())
	require.Equal(t, StateDisabled, client.State())
	require.False(t, client.Context().Ready())
}

func TestRekeyMidstream(t *testing.T) {
	server := NewServerHandshake(DefaultSuite, nil, 0, nil, 30*time.Second)
	client := NewClientHandshake(DefaultSuite, nil, "", 30*time.Second)

	requirements, nonce := driveKeyExchange(t, server, client, nil)
	authResp, err := client.BuildAuthResponse(requirements, nonce)
	require.NoError(t, err)
	serverAuthResp, err := server.HandleAuthResponse(authResp)
	require.NoError(t, err)
	require.NoError(t, client.HandleServerAuthResp(serverAuthResp))

	// Traffic under the original keys.
	oldCT, err := client.Context().Encrypt([]byte("pre-rekey"))
	require.NoError(t, err)
	pt, err := server.Context().Decrypt(oldCT)
	require.NoError(t, err)
	require.Equal(t, "pre-rekey", string(pt))

	// Client initiates rekey.
	rekeyReq, err := client.BeginRekey()
	require.NoError(t, err)

	rekeyResp, err := server.HandleRekeyRequest(rekeyReq)
	require.NoError(t, err)

	require.NoError(t, client.HandleRekeyResponse(rekeyResp))

	// RekeyComplete: empty payload, encrypted under the new send key.
	complete, err := client.Context().Encrypt([]byte{})
	require.NoError(t, err)

	_, err = server.Context().Decrypt(complete)
	require.NoError(t, err)
	server.CommitRekey()

	// Post-rekey traffic flows under the new keys in both directions.
	newCT, err := server.Context().Encrypt([]byte("post-rekey"))
	require.NoError(t, err)
	pt, err = client.Context().Decrypt(newCT)
	require.NoError(t, err)
	require.Equal(t, "post-rekey", string(pt))
}

func TestRekeyTimeout(t *testing.T) {
	server := NewServerHandshake(DefaultSuite, nil, 0, nil, 30*time.Second)
	client := NewClientHandshake(DefaultSuite, nil, "", 30*time.Second)
	requirements, nonce := driveKeyExchange(t, server, client, nil)
	authResp, _ := client.BuildAuthResponse(requirements, nonce)
	serverAuthResp, _ := server.HandleAuthResponse(authResp)
	_ = client.HandleServerAuthResp(serverAuthResp)

	rekeyReq, err := client.BeginRekey()
	require.NoError(t, err)
	require.False(t, client.RekeyTimedOut())

	_, err = server.HandleRekeyRequest(rekeyReq)
	require.NoError(t, err)

	client.rekey.deadline = time.Now().Add(-time.Millisecond)
	require.True(t, client.RekeyTimedOut())
}
