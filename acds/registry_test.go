package acds

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	store, err := OpenSQLStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	reg, err := NewRegistry(store, SessionTTL)
	require.NoError(t, err)
	return reg
}

func signedCreate(t *testing.T, pub ed25519.PublicKey, priv ed25519.PrivateKey, requested string, maxParticipants int) CreateRequest {
	t.Helper()
	ts := time.Now()
	signed := SignedCreateBytes(requested, pub, CapVideo|CapAudio, maxParticipants, 0, TypeDirectTCP, ts)
	return CreateRequest{
		RequestedString: requested,
		HostPub:         pub,
		Capabilities:    CapVideo | CapAudio,
		MaxParticipants: maxParticipants,
		Type:            TypeDirectTCP,
		ServerAddr:      "203.0.113.5",
		ServerPort:      27224,
		Timestamp:       ts,
		Signature:       ed25519.Sign(priv, signed),
	}
}

func TestCreateAndLookup(t *testing.T) {
	reg := newTestRegistry(t)
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	req := signedCreate(t, pub, priv, "swift-river-run", 4)
	created, err := reg.Create(req)
	require.NoError(t, err)
	require.Equal(t, "swift-river-run", created.SessionString)

	info, err := reg.Lookup("swift-river-run")
	require.NoError(t, err)
	require.Equal(t, 4, info.MaxParticipants)
	require.Equal(t, 0, info.Current)
	require.False(t, info.HasPassword)
}

func TestCreateRejectsBadSignature(t *testing.T) {
	reg := newTestRegistry(t)
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	_, otherPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	req := signedCreate(t, pub, otherPriv, "bad-sig-case", 4)
	_, err = reg.Create(req)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestCreateRejectsDuplicateString(t *testing.T) {
	reg := newTestRegistry(t)
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	_, err = reg.Create(signedCreate(t, pub, priv, "taken-name-ridge", 4))
	require.NoError(t, err)

	pub2, priv2, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	_, err = reg.Create(signedCreate(t, pub2, priv2, "taken-name-ridge", 4))
	require.ErrorIs(t, err, ErrStringAlreadyReserved)
}

func TestJoinEnforcesCapAndPassword(t *testing.T) {
	reg := newTestRegistry(t)
	hostPub, hostPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	req := signedCreate(t, hostPub, hostPriv, "guarded-meadow-peak", 1)
	req.Password = "correct horse"
	ts := req.Timestamp
	signed := SignedCreateBytes(req.RequestedString, req.HostPub, req.Capabilities, req.MaxParticipants, req.Policy, req.Type, ts)
	req.Signature = ed25519.Sign(hostPriv, signed)
	_, err = reg.Create(req)
	require.NoError(t, err)

	participantPub, participantPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	joinTS := time.Now()
	joinSigned := SignedJoinBytes("guarded-meadow-peak", participantPub, joinTS)

	_, err = reg.Join(JoinRequest{
		SessionString:  "guarded-meadow-peak",
		ParticipantPub: participantPub,
		Password:       "wrong password",
		Timestamp:      joinTS,
		Signature:      ed25519.Sign(participantPriv, joinSigned),
	})
	require.ErrorIs(t, err, ErrAuthFailed)

	joined, err := reg.Join(JoinRequest{
		SessionString:  "guarded-meadow-peak",
		ParticipantPub: participantPub,
		Password:       "correct horse",
		Timestamp:      joinTS,
		Signature:      ed25519.Sign(participantPriv, joinSigned),
	})
	require.NoError(t, err)
	require.Equal(t, "203.0.113.5", joined.ServerAddr)
	require.Equal(t, uint16(27224), joined.ServerPort)

	secondPub, secondPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	secondTS := time.Now()
	secondSigned := SignedJoinBytes("guarded-meadow-peak", secondPub, secondTS)
	_, err = reg.Join(JoinRequest{
		SessionString:  "guarded-meadow-peak",
		ParticipantPub: secondPub,
		Password:       "correct horse",
		Timestamp:      secondTS,
		Signature:      ed25519.Sign(secondPriv, secondSigned),
	})
	require.ErrorIs(t, err, ErrSessionFull)
}

func TestLeaveRemovesParticipant(t *testing.T) {
	reg := newTestRegistry(t)
	hostPub, hostPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	created, err := reg.Create(signedCreate(t, hostPub, hostPriv, "departing-valley-fen", 4))
	require.NoError(t, err)

	participantPub, participantPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	joinTS := time.Now()
	joinSigned := SignedJoinBytes("departing-valley-fen", participantPub, joinTS)
	joined, err := reg.Join(JoinRequest{
		SessionString:  "departing-valley-fen",
		ParticipantPub: participantPub,
		Timestamp:      joinTS,
		Signature:      ed25519.Sign(participantPriv, joinSigned),
	})
	require.NoError(t, err)

	leaveTS := time.Now()
	leaveSigned := SignedLeaveBytes(created.UUID, joined.ParticipantUUID, leaveTS)
	err = reg.Leave(LeaveRequest{
		SessionUUID:     created.UUID,
		ParticipantUUID: joined.ParticipantUUID,
		ParticipantPub:  participantPub,
		Timestamp:       leaveTS,
		Signature:       ed25519.Sign(participantPriv, leaveSigned),
	})
	require.NoError(t, err)

	info, err := reg.Lookup("departing-valley-fen")
	require.NoError(t, err)
	require.Equal(t, 0, info.Current)
}

func TestLookupUnknownSession(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.Lookup("does-not-exist")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestReapExpiredSessions(t *testing.T) {
	reg := newTestRegistry(t)
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	_, err = reg.Create(signedCreate(t, pub, priv, "fleeting-island-moor", 2))
	require.NoError(t, err)

	reg.mu.Lock()
	reg.byString["fleeting-island-moor"].ExpiresAt = time.Now().Add(-time.Minute)
	reg.mu.Unlock()

	reg.reapExpired()

	_, err = reg.Lookup("fleeting-island-moor")
	require.ErrorIs(t, err, ErrSessionNotFound)
}
