package transport

import (
	"context"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ascii-chat/acip-core/wire"
)

// wsUpgrader is shared across accepted connections; origin checking is
// left to the embedding application (it owns the HTTP mux), matching
// a "transport does framing, nothing else" boundary.
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// WebSocket is the WebSocket variant of Transport: one binary message
// per call carries one already-framed ACIP packet (the codec header
// lives inside the message).
type WebSocket struct {
	conn      *websocket.Conn
	sendMu    sync.Mutex
	connected atomic.Bool
}

// DialWebSocket connects to a ws(s):// URL within deadline.
func DialWebSocket(ctx context.Context, url string, deadline time.Duration) (*WebSocket, error) {
	dialer := websocket.Dialer{HandshakeTimeout: deadline}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, ErrConnectFailed
	}
	return NewWebSocket(conn), nil
}

// UpgradeWebSocket upgrades an incoming HTTP request to a WebSocket
// server-side connection.
func UpgradeWebSocket(w http.ResponseWriter, r *http.Request) (*WebSocket, error) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, ErrConnectFailed
	}
	return NewWebSocket(conn), nil
}

// NewWebSocket wraps an already-established *websocket.Conn.
func NewWebSocket(conn *websocket.Conn) *WebSocket {
	ws := &WebSocket{conn: conn}
	ws.connected.Store(true)
	return ws
}

func (w *WebSocket) Send(typ wire.Type, payload []byte, clientID uint32) error {
	frame, err := wire.Encode(typ, payload, clientID)
	if err != nil {
		return err
	}

	w.sendMu.Lock()
	defer w.sendMu.Unlock()

	if !w.connected.Load() {
		return ErrClosed
	}
	if err := w.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return ErrConnectionReset
	}
	return nil
}

func (w *WebSocket) Recv(ctx context.Context) (wire.Type, []byte, uint32, func(), error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = w.conn.SetReadDeadline(deadline)
		defer w.conn.SetReadDeadline(time.Time{})
	}

	_, data, err := w.conn.ReadMessage()
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return 0, nil, 0, noopRelease, ErrTimeout
		}
		w.connected.Store(false)
		return 0, nil, 0, noopRelease, ErrClosed
	}

	typ, payload, clientID, err := wire.DecodeBytes(data)
	if err != nil {
		return 0, nil, 0, noopRelease, err
	}
	return typ, payload, clientID, noopRelease, nil
}

func (w *WebSocket) Close() error {
	if !w.connected.CompareAndSwap(true, false) {
		return nil
	}
	return w.conn.Close()
}

func (w *WebSocket) Type() Kind { return KindWebSocket }

func (w *WebSocket) UnderlyingSocket() (net.Conn, bool) { return w.conn.UnderlyingConn(), true }

func (w *WebSocket) IsConnected() bool { return w.connected.Load() }
