package transport

import (
	"context"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ascii-chat/acip-core/wire"
)

// TCPBacklog is a listen backlog depth. TCPListen does not pass it to
// the listener, so the backlog there is the operating system default.
const TCPBacklog = 128

// TCPListen opens a listener on port with SO_REUSEADDR set, matching
// a reuse-address convention for restart-friendly servers.
func TCPListen(port uint16) (net.Listener, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var ctrlErr error
			err := c.Control(func(fd uintptr) {
				ctrlErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return ctrlErr
		},
	}
	addr := &net.TCPAddr{IP: net.IPv4zero, Port: int(port)}
	return lc.Listen(context.Background(), "tcp", addr.String())
}

// DialTCP connects to host:port within deadline.
func DialTCP(ctx context.Context, host string, port uint16, deadline time.Duration) (*TCP, error) {
	dialer := net.Dialer{Timeout: deadline}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(int(port))))
	if err != nil {
		return nil, ErrConnectFailed
	}
	return NewTCP(conn), nil
}

// TCP is the TCP variant of Transport, built on the standard
// TCPConnection read state machine: it reads the fixed header prefix,
// then the declared payload length, exactly once per Recv call.
type TCP struct {
	conn      net.Conn
	reader    *wire.StreamReader
	sendMu    sync.Mutex
	connected atomic.Bool
}

// NewTCP wraps an already-connected net.Conn (either from DialTCP or
// from a listener's Accept) as a Transport.
func NewTCP(conn net.Conn) *TCP {
	t := &TCP{conn: conn, reader: wire.NewStreamReader(conn)}
	t.connected.Store(true)
	return t
}

func (t *TCP) Send(typ wire.Type, payload []byte, clientID uint32) error {
	frame, err := wire.Encode(typ, payload, clientID)
	if err != nil {
		return err
	}

	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	if !t.connected.Load() {
		return ErrClosed
	}

	written := 0
	for written < len(frame) {
		n, err := t.conn.Write(frame[written:])
		if err != nil {
			return ErrConnectionReset
		}
		written += n
	}
	return nil
}

func (t *TCP) Recv(ctx context.Context) (wire.Type, []byte, uint32, func(), error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetReadDeadline(deadline)
		defer t.conn.SetReadDeadline(time.Time{})
	}

	typ, payload, clientID, err := wire.Decode(t.reader)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return 0, nil, 0, noopRelease, ErrTimeout
		}
		t.connected.Store(false)
		return 0, nil, 0, noopRelease, err
	}
	return typ, payload, clientID, noopRelease, nil
}

func (t *TCP) Close() error {
	if !t.connected.CompareAndSwap(true, false) {
		return nil // idempotent
	}
	return t.conn.Close()
}

func (t *TCP) Type() Kind { return KindTCP }

func (t *TCP) UnderlyingSocket() (net.Conn, bool) { return t.conn, true }

func (t *TCP) IsConnected() bool { return t.connected.Load() }
