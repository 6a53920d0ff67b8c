// Package transport implements the capability-object abstraction:
// a single Transport interface hiding TCP, WebSocket, and WebRTC
// data-channel variants from every layer above it. Each
// variant owns its connection state exclusively; send/recv never
// leak that ownership to the caller.
package transport

import (
	"context"
	"errors"
	"net"

	"github.com/ascii-chat/acip-core/wire"
)

// Kind identifies which concrete variant backs a Transport: a sealed
// enum of variants in place of a void-pointer v-table.
type Kind int

const (
	KindTCP Kind = iota
	KindWebSocket
	KindWebRTC
)

func (k Kind) String() string {
	switch k {
	case KindTCP:
		return "tcp"
	case KindWebSocket:
		return "websocket"
	case KindWebRTC:
		return "webrtc"
	default:
		return "unknown"
	}
}

// Transport errors.
var (
	ErrConnectFailed   = errors.New("transport: connect failed")
	ErrConnectTimeout  = errors.New("transport: connect timed out")
	ErrConnectionReset = errors.New("transport: connection reset")
	ErrClosed          = errors.New("transport: connection closed")
	ErrWouldBlock      = errors.New("transport: operation would block")
	ErrTimeout         = errors.New("transport: operation timed out")
)

// Transport is the six-operation contract every variant implements:
// send, recv, close, type_of, underlying_socket, is_connected. Every
// variant speaks ACIP frames directly rather than raw bytes — the TCP
// adapter reads the 18-byte header then the declared payload length,
// the WebSocket/WebRTC adapters receive one already-framed message per
// call — so dispatch never has to special-case a transport's framing.
//
// Payload is whatever the handshake's crypto context produced:
// ciphertext once Ready, plaintext during the handshake phase. The
// transport never encrypts or decrypts; it only frames.
//
// Recv returns a release function alongside the payload to preserve
// an explicit-ownership contract (the caller hands each received
// buffer back by calling release), even though Go's garbage collector makes release
// a no-op today — it gives a future pooled-buffer implementation a
// seam to plug into without changing the interface.
type Transport interface {
	Send(t wire.Type, payload []byte, clientID uint32) error
	Recv(ctx context.Context) (t wire.Type, payload []byte, clientID uint32, release func(), err error)
	Close() error
	Type() Kind
	// UnderlyingSocket returns the backing net.Conn and true for
	// socket-backed variants (TCP, WebSocket), or (nil, false) for
	// WebRTC, which has no single underlying socket.
	UnderlyingSocket() (net.Conn, bool)
	IsConnected() bool
}

func noopRelease() {}
