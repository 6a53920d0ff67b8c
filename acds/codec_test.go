package acds

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestCreateRequestRoundTrip(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	req := CreateRequest{
		RequestedString: "swift-river-run",
		HostPub:         pub,
		Capabilities:    CapVideo | CapAudio,
		MaxParticipants: 6,
		Password:        "hunter2",
		Policy:          PolicyRequireClientVerification,
		Type:            TypeWebRTCRelayed,
		ServerAddr:      "198.51.100.9",
		ServerPort:      27224,
		Timestamp:       time.UnixMilli(time.Now().UnixMilli()),
		Signature:       []byte{1, 2, 3, 4},
	}
	encoded := EncodeCreateRequest(req)
	decoded, err := DecodeCreateRequest(encoded)
	require.NoError(t, err)
	require.Equal(t, req.RequestedString, decoded.RequestedString)
	require.Equal(t, req.HostPub, decoded.HostPub)
	require.Equal(t, req.Capabilities, decoded.Capabilities)
	require.Equal(t, req.MaxParticipants, decoded.MaxParticipants)
	require.Equal(t, req.Password, decoded.Password)
	require.Equal(t, req.Policy, decoded.Policy)
	require.Equal(t, req.Type, decoded.Type)
	require.Equal(t, req.ServerAddr, decoded.ServerAddr)
	require.Equal(t, req.ServerPort, decoded.ServerPort)
	require.Equal(t, req.Timestamp.UnixMilli(), decoded.Timestamp.UnixMilli())
	require.Equal(t, req.Signature, decoded.Signature)
}

func TestCreatedRoundTrip(t *testing.T) {
	c := &Created{SessionString: "calm-meadow-fen", UUID: uuid.New(), ExpiresAt: time.UnixMilli(time.Now().UnixMilli())}
	decoded, err := DecodeCreated(EncodeCreated(c))
	require.NoError(t, err)
	require.Equal(t, c.SessionString, decoded.SessionString)
	require.Equal(t, c.UUID, decoded.UUID)
	require.Equal(t, c.ExpiresAt.UnixMilli(), decoded.ExpiresAt.UnixMilli())
}

func TestInfoRoundTrip(t *testing.T) {
	info := Info{
		SessionString:   "hazy-summit-glen",
		UUID:            uuid.New(),
		Capabilities:    CapAudio,
		MaxParticipants: 8,
		Current:         3,
		HasPassword:     true,
		Policy:          PolicyExposeIPPublicly,
		Type:            TypeDirectTCP,
		ExpiresAt:       time.UnixMilli(time.Now().UnixMilli()),
	}
	decoded, err := DecodeInfo(EncodeInfo(info))
	require.NoError(t, err)
	require.Equal(t, info, decoded)
}

func TestJoinRequestRoundTrip(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	req := JoinRequest{
		SessionString:  "keen-falcon-ridge",
		ParticipantPub: pub,
		Password:       "secret",
		Timestamp:      time.UnixMilli(time.Now().UnixMilli()),
		Signature:      []byte{9, 8, 7},
	}
	decoded, err := DecodeJoinRequest(EncodeJoinRequest(req))
	require.NoError(t, err)
	require.Equal(t, req.SessionString, decoded.SessionString)
	require.Equal(t, req.ParticipantPub, decoded.ParticipantPub)
	require.Equal(t, req.Password, decoded.Password)
	require.Equal(t, req.Timestamp.UnixMilli(), decoded.Timestamp.UnixMilli())
	require.Equal(t, req.Signature, decoded.Signature)
}

func TestJoinedRoundTrip(t *testing.T) {
	j := &Joined{
		ParticipantUUID: uuid.New(),
		ServerAddr:      "203.0.113.77",
		ServerPort:      27224,
		Type:            TypeDirectTCP,
		Current:         2,
		MaxParticipants: 4,
	}
	decoded, err := DecodeJoined(EncodeJoined(j))
	require.NoError(t, err)
	require.Equal(t, j, decoded)
}

func TestLeaveRequestRoundTrip(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	req := LeaveRequest{
		SessionUUID:     uuid.New(),
		ParticipantUUID: uuid.New(),
		ParticipantPub:  pub,
		Timestamp:       time.UnixMilli(time.Now().UnixMilli()),
		Signature:       []byte{5, 5, 5},
	}
	decoded, err := DecodeLeaveRequest(EncodeLeaveRequest(req))
	require.NoError(t, err)
	require.Equal(t, req.SessionUUID, decoded.SessionUUID)
	require.Equal(t, req.ParticipantUUID, decoded.ParticipantUUID)
	require.Equal(t, req.ParticipantPub, decoded.ParticipantPub)
	require.Equal(t, req.Timestamp.UnixMilli(), decoded.Timestamp.UnixMilli())
	require.Equal(t, req.Signature, decoded.Signature)
}
