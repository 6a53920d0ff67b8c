package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func pairedContexts(t *testing.T) (client, server *Context) {
	t.Helper()
	client = NewContext(DefaultSuite)
	server = NewContext(DefaultSuite)

	var s2c, c2s [32]byte
	for i := range s2c {
		s2c[i] = byte(i)
		c2s[i] = byte(255 - i)
	}

	require.NoError(t, client.Activate(s2c, c2s, false))
	require.NoError(t, server.Activate(s2c, c2s, true))
	return client, server
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	client, server := pairedContexts(t)

	ct, err := client.Encrypt([]byte("hello server"))
	require.NoError(t, err)

	pt, err := server.Decrypt(ct)
	require.NoError(t, err)
	require.Equal(t, "hello server", string(pt))
}

func TestNotReadyIsInvalidState(t *testing.T) {
	c := NewContext(DefaultSuite)
	_, err := c.Encrypt([]byte("x"))
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = c.Decrypt([]byte("xxxxxxxxxxxxxxxxxxxxxxxx"))
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestMonotonicNonceRejectsReplay(t *testing.T) {
	client, server := pairedContexts(t)

	ct1, err := client.Encrypt([]byte("first"))
	require.NoError(t, err)
	ct2, err := client.Encrypt([]byte("second"))
	require.NoError(t, err)

	_, err = server.Decrypt(ct1)
	require.NoError(t, err)
	_, err = server.Decrypt(ct2)
	require.NoError(t, err)

	// Replaying the first packet after a higher counter was already
	// accepted must fail.
	_, err = server.Decrypt(ct1)
	require.ErrorIs(t, err, ErrNonceReused)
}

func TestOutOfOrderWithinWindowAccepted(t *testing.T) {
	client, server := pairedContexts(t)

	var cts [][]byte
	for i := 0; i < 5; i++ {
		ct, err := client.Encrypt([]byte{byte(i)})
		require.NoError(t, err)
		cts = append(cts, ct)
	}

	// Deliver out of order: 4, then 0..3.
	_, err := server.Decrypt(cts[4])
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err := server.Decrypt(cts[i])
		require.NoError(t, err)
	}

	// Now replaying any of them must fail.
	for i := 0; i < 5; i++ {
		_, err := server.Decrypt(cts[i])
		require.ErrorIs(t, err, ErrNonceReused)
	}
}

func TestRekeyGraceWindowAllowsOldKey(t *testing.T) {
	client, server := pairedContexts(t)

	ctOld, err := client.Encrypt([]byte("old-key-traffic"))
	require.NoError(t, err)

	// Simulate the responder side of a rekey: stash the current recv
	// slot as "previous" and activate fresh keys.
	server.BeginRekeyGrace()

	var s2c2, c2s2 [32]byte
	for i := range s2c2 {
		s2c2[i] = byte(i + 1)
		c2s2[i] = byte(254 - i)
	}
	require.NoError(t, server.Activate(s2c2, c2s2, true))

	// A packet encrypted under the old client key must still decrypt
	// during the grace window via the stashed previous slot.
	pt, err := server.Decrypt(ctOld)
	require.NoError(t, err)
	require.Equal(t, "old-key-traffic", string(pt))
}
