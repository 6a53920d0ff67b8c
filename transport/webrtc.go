package transport

import (
	"context"
	"net"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"

	"github.com/ascii-chat/acip-core/wire"
)

// WebRTC is the WebRTC variant of Transport: each data-channel message
// is one codec frame. Unlike TCP/WebSocket it has no
// single underlying socket (ICE may use several candidate pairs), so
// UnderlyingSocket always reports (nil, false).
type WebRTC struct {
	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel

	sendMu    sync.Mutex
	connected atomic.Bool

	inbox chan []byte
	once  sync.Once
}

// NewWebRTC wraps an already-negotiated peer connection and its single
// data channel (signaling — SDP/ICE exchange over ACIP discovery
// packets — happens above this package, via TypeSignalSDP/TypeSignalICE).
func NewWebRTC(pc *webrtc.PeerConnection, dc *webrtc.DataChannel) *WebRTC {
	w := &WebRTC{pc: pc, dc: dc, inbox: make(chan []byte, 64)}

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		select {
		case w.inbox <- msg.Data:
		default:
			// Back-pressure: drop rather than block the pion callback
			// goroutine.
		}
	})
	dc.OnOpen(func() { w.connected.Store(true) })
	dc.OnClose(func() { w.connected.Store(false) })

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			w.connected.Store(false)
		}
	})

	return w
}

func (w *WebRTC) Send(typ wire.Type, payload []byte, clientID uint32) error {
	frame, err := wire.Encode(typ, payload, clientID)
	if err != nil {
		return err
	}

	w.sendMu.Lock()
	defer w.sendMu.Unlock()

	if !w.connected.Load() {
		return ErrClosed
	}
	if err := w.dc.Send(frame); err != nil {
		return ErrConnectionReset
	}
	return nil
}

func (w *WebRTC) Recv(ctx context.Context) (wire.Type, []byte, uint32, func(), error) {
	select {
	case data := <-w.inbox:
		typ, payload, clientID, err := wire.DecodeBytes(data)
		if err != nil {
			return 0, nil, 0, noopRelease, err
		}
		return typ, payload, clientID, noopRelease, nil
	case <-ctx.Done():
		return 0, nil, 0, noopRelease, ErrTimeout
	}
}

func (w *WebRTC) Close() error {
	var err error
	w.once.Do(func() {
		w.connected.Store(false)
		if cerr := w.dc.Close(); cerr != nil {
			err = cerr
		}
		if cerr := w.pc.Close(); cerr != nil {
			err = cerr
		}
	})
	return err
}

func (w *WebRTC) Type() Kind { return KindWebRTC }

func (w *WebRTC) UnderlyingSocket() (net.Conn, bool) { return nil, false }

func (w *WebRTC) IsConnected() bool { return w.connected.Load() }
