// Package dispatch implements the per-role callback table:
// packet-type-keyed handlers, with validation of role-appropriate
// types and handshake-state gating; payload sizes are not checked
// here. Dispatch is
// the only framing-layer surface that is protocol-type-aware; it
// carries no business logic of its own.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/ascii-chat/acip-core/crypto"
	"github.com/ascii-chat/acip-core/internal/logx"
	"github.com/ascii-chat/acip-core/transport"
	"github.com/ascii-chat/acip-core/wire"
)

var log = logx.For("dispatch")

// Errors specific to dispatch validation.
var (
	ErrWrongRole      = errors.New("dispatch: packet type not valid for this role")
	ErrUnknownType    = errors.New("dispatch: no handler registered for packet type")
	ErrHandshakeGated = errors.New("dispatch: packet type not permitted in current handshake state")
)

// Handler processes one decoded packet. conn carries whatever
// per-connection application state the embedding program needs
// (participant records, session handles); dispatch never inspects it.
type Handler func(ctx context.Context, tr transport.Transport, payload []byte, conn any) error

// Table is a per-role callback table keyed by packet type: a type
// with no registered handler is not a C-style null-means-no-op; the
// dispatch loop treats it as a debug-level drop, not a fatal error.
type Table struct {
	role     crypto.Role
	handlers map[wire.Type]Handler
}

// NewTable returns an empty callback table for role.
func NewTable(role crypto.Role) *Table {
	return &Table{role: role, handlers: make(map[wire.Type]Handler)}
}

// On registers h as the handler for t, replacing any existing handler.
func (tb *Table) On(t wire.Type, h Handler) {
	tb.handlers[t] = h
}

// mediaTypes require the handshake to have reached Ready before
// dispatch will invoke their handler.
var mediaTypes = map[wire.Type]bool{
	wire.TypeImageFrame:     true,
	wire.TypeImageFrameH265: true,
	wire.TypeASCIIFrame:     true,
	wire.TypeAudio:          true,
	wire.TypeAudioBatch:     true,
	wire.TypeAudioOpus:      true,
	wire.TypeAudioOpusBatch: true,
}

// serverOriginated types are sent by the server/ACDS side and must
// never be accepted by a server-role table (and vice versa via
// clientOriginated): clients do not accept server-only types and vice
// versa.
var serverOriginated = map[wire.Type]bool{
	wire.TypeServerState:       true,
	wire.TypeClearConsole:      true,
	wire.TypeRemoteLog:         true,
	wire.TypeKeyExchangeInit:   true,
	wire.TypeAuthChallenge:     true,
	wire.TypeServerAuthResp:    true,
	wire.TypeAuthFailed:        true,
	wire.TypeHandshakeComplete: true,
	wire.TypeACDSCreated:       true,
	wire.TypeACDSInfo:          true,
	wire.TypeACDSJoined:        true,
	wire.TypeStringReserved:    true,
}

var clientOriginated = map[wire.Type]bool{
	wire.TypeClientJoin:      true,
	wire.TypeClientLeave:     true,
	wire.TypeStreamStart:     true,
	wire.TypeStreamStop:      true,
	wire.TypeKeyExchangeResp: true,
	wire.TypeAuthResponse:    true,
	wire.TypeACDSCreate:      true,
	wire.TypeACDSLookup:      true,
	wire.TypeACDSJoin:        true,
	wire.TypeACDSLeave:       true,
	wire.TypeStringReserve:   true,
}

// Handle looks up the handler for t, validates it against role and
// handshake state (payload size is not checked), then invokes it. A nil/missing handler is not
// an error: it is logged at debug and the connection stays open.
func (tb *Table) Handle(ctx context.Context, tr transport.Transport, hs *crypto.Handshake, t wire.Type, payload []byte, conn any) error {
	if serverOriginated[t] && tb.role == crypto.RoleServer {
		return fmt.Errorf("%w: type %d is server-originated, rejected by server table", ErrWrongRole, t)
	}
	if clientOriginated[t] && tb.role == crypto.RoleClient {
		return fmt.Errorf("%w: type %d is client-originated, rejected by client table", ErrWrongRole, t)
	}

	if mediaTypes[t] && (hs == nil || hs.State() != crypto.StateReady) {
		return fmt.Errorf("%w: type %d requires Ready, handshake state is not Ready", ErrHandshakeGated, t)
	}

	h, ok := tb.handlers[t]
	if !ok || h == nil {
		log.WithField("packet_type", t).Debug("no handler for packet type, discarding")
		return nil
	}

	return h(ctx, tr, payload, conn)
}
