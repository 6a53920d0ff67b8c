package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ascii-chat/acip-core/crypto"
	"github.com/ascii-chat/acip-core/transport"
	"github.com/ascii-chat/acip-core/wire"
)

func TestHandleInvokesRegisteredHandler(t *testing.T) {
	tb := NewTable(crypto.RoleServer)
	called := false
	tb.On(wire.TypeClientJoin, func(ctx context.Context, tr transport.Transport, payload []byte, conn any) error {
		called = true
		return nil
	})

	hs := crypto.NewServerHandshake(crypto.DefaultSuite, nil, 0, nil, 30*time.Second)
	err := tb.Handle(context.Background(), nil, hs, wire.TypeClientJoin, []byte("x"), nil)
	require.NoError(t, err)
	require.True(t, called)
}

func TestHandleRejectsWrongRoleType(t *testing.T) {
	tb := NewTable(crypto.RoleServer)
	tb.On(wire.TypeClientJoin, func(ctx context.Context, tr transport.Transport, payload []byte, conn any) error {
		return nil
	})

	hs := crypto.NewServerHandshake(crypto.DefaultSuite, nil, 0, nil, 30*time.Second)
	err := tb.Handle(context.Background(), nil, hs, wire.TypeServerState, nil, nil)
	require.ErrorIs(t, err, ErrWrongRole)
}

func TestHandleGatesMediaOnReady(t *testing.T) {
	tb := NewTable(crypto.RoleServer)
	invoked := false
	tb.On(wire.TypeASCIIFrame, func(ctx context.Context, tr transport.Transport, payload []byte, conn any) error {
		invoked = true
		return nil
	})

	hs := crypto.NewServerHandshake(crypto.DefaultSuite, nil, 0, nil, 30*time.Second)
	err := tb.Handle(context.Background(), nil, hs, wire.TypeASCIIFrame, []byte{1}, nil)
	require.ErrorIs(t, err, ErrHandshakeGated)
	require.False(t, invoked)
}

func TestHandleUnknownTypeIsNotAnError(t *testing.T) {
	tb := NewTable(crypto.RoleServer)
	err := tb.Handle(context.Background(), nil, nil, wire.TypeDiscoveryPing, nil, nil)
	require.NoError(t, err)
}
