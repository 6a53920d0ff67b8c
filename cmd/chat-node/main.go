package main

import (
	"context"
	"crypto/ed25519"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ascii-chat/acip-core/acds"
	"github.com/ascii-chat/acip-core/crypto"
	"github.com/ascii-chat/acip-core/internal/config"
	"github.com/ascii-chat/acip-core/internal/logx"
	"github.com/ascii-chat/acip-core/nat"
	"github.com/ascii-chat/acip-core/transport"
	"github.com/ascii-chat/acip-core/wire"
)

// handshakeDeadline bounds the key-exchange/auth exchange on a freshly
// accepted or dialed media connection, separate from cfg.ConnectDeadline
// which only covers the initial TCP dial.
const handshakeDeadline = 10 * time.Second

// chat-node is the client/server endpoint: it either hosts a session
// (creating an ACDS entry and accepting TCP connections) or joins one
// (looking the session up, then dialing the host). Both roles run the
// same ACIP framing stack; only the ACDS exchange and TCP direction
// differ.
func main() {
	defaults := config.NewConfig()
	var (
		acdsAddr = flag.String("acds", "127.0.0.1:27225", "ACDS discovery service address")
		session  = flag.String("session", "", "Session string to join; omit to host a new session")
		password = flag.String("password", "", "Session password, if required")
		bindPort = flag.Uint("port", uint(defaults.ServerPort), "Local port to host on")
		verbose  = flag.Bool("verbose", false, "Enable debug logging")
	)
	flag.Parse()

	if *verbose {
		logx.SetLevel(logrus.DebugLevel)
	}
	logger := logx.For("chat-node")

	identityPub, identityPriv, err := ed25519.GenerateKey(nil)
	if err != nil {
		log.Fatalf("failed to generate identity key: %v", err)
	}

	probeCtx, cancel := context.WithTimeout(context.Background(), defaults.ConnectDeadline)
	quality, err := nat.DetectQuality(probeCtx, uint16(*bindPort), "stun.l.google.com:19302")
	cancel()
	if err != nil {
		logger.WithError(err).Warn("nat quality detection failed, proceeding pessimistically")
		quality = &nat.Quality{Tier: 4}
	}
	logger.WithField("tier", quality.Tier).Info("detected nat quality")

	acdsHost, acdsPort := splitHostPort(*acdsAddr, defaults.DiscoveryPort)
	acdsConn, err := transport.DialTCP(context.Background(), acdsHost, acdsPort, defaults.ConnectDeadline)
	if err != nil {
		log.Fatalf("failed to reach acds at %s: %v", *acdsAddr, err)
	}
	defer acdsConn.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	if *session == "" {
		hostSession(acdsConn, identityPub, identityPriv, uint16(*bindPort), defaults, logger)
	} else {
		joinSession(acdsConn, identityPub, identityPriv, *session, *password, defaults, logger)
	}

	<-sigCh
	logger.Info("shutting down")
}

func splitHostPort(addr string, defaultPort uint16) (string, uint16) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, defaultPort
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return host, defaultPort
	}
	return host, uint16(port)
}

// hostSession registers a new session with the discovery service and
// begins accepting direct-TCP connections for it, via Create followed
// by the listener this host now owns.
func hostSession(acdsConn *transport.TCP, pub ed25519.PublicKey, priv ed25519.PrivateKey, port uint16, cfg *config.Config, logger *logrus.Entry) {
	ts := time.Now()
	signed := acds.SignedCreateBytes("", pub, acds.CapVideo|acds.CapAudio, 8, 0, acds.TypeDirectTCP, ts)
	req := acds.CreateRequest{
		HostPub:         pub,
		Capabilities:    acds.CapVideo | acds.CapAudio,
		MaxParticipants: 8,
		Type:            acds.TypeDirectTCP,
		ServerAddr:      "0.0.0.0",
		ServerPort:      port,
		Timestamp:       ts,
		Signature:       ed25519.Sign(priv, signed),
	}

	if err := acdsConn.Send(wire.TypeACDSCreate, acds.EncodeCreateRequest(req), 0); err != nil {
		log.Fatalf("failed to send create request: %v", err)
	}
	t, payload, _, release, err := acdsConn.Recv(context.Background())
	if err != nil {
		log.Fatalf("failed to receive create response: %v", err)
	}
	defer release()
	if t != wire.TypeACDSCreated {
		log.Fatalf("unexpected response type %d to create request", t)
	}
	created, err := acds.DecodeCreated(payload)
	if err != nil {
		log.Fatalf("malformed create response: %v", err)
	}

	logger.WithField("session", created.SessionString).Info("session created, listening for participants")

	listener, err := transport.TCPListen(port)
	if err != nil {
		log.Fatalf("failed to listen on port %d: %v", port, err)
	}
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				logger.WithError(err).Warn("accept failed")
				return
			}
			logger.WithField("remote", conn.RemoteAddr()).Info("participant connected")
			go runServerHandshake(transport.NewTCP(conn), logger)
		}
	}()
}

// runServerHandshake drives the key-exchange/auth steps on a
// freshly accepted media connection. ACDS already
// authenticated the participant during Join, so the handshake here
// runs with no extra password/identity requirement: its purpose is
// the encrypted channel, not a second round of authentication.
func runServerHandshake(tr transport.Transport, logger *logrus.Entry) {
	defer tr.Close()
	ctx, cancel := context.WithTimeout(context.Background(), handshakeDeadline)
	defer cancel()

	hs := crypto.NewServerHandshake(crypto.DefaultSuite, nil, crypto.Requirements(0), nil, handshakeDeadline)

	initMsg, err := hs.BuildKeyExchangeInit()
	if err != nil {
		logger.WithError(err).Warn("failed to build key exchange init")
		return
	}
	if err := tr.Send(wire.TypeKeyExchangeInit, initMsg, 0); err != nil {
		logger.WithError(err).Warn("failed to send key exchange init")
		return
	}

	t, payload, _, release, err := tr.Recv(ctx)
	if err != nil {
		logger.WithError(err).Warn("failed to receive key exchange response")
		return
	}
	if t != wire.TypeKeyExchangeResp {
		release()
		logger.WithField("type", t).Warn("unexpected packet during handshake")
		return
	}
	challenge, err := hs.HandleKeyExchangeResp(payload)
	release()
	if err != nil {
		logger.WithError(err).Warn("key exchange response rejected")
		return
	}
	if err := tr.Send(wire.TypeAuthChallenge, challenge, 0); err != nil {
		logger.WithError(err).Warn("failed to send auth challenge")
		return
	}

	t, payload, _, release, err = tr.Recv(ctx)
	if err != nil {
		logger.WithError(err).Warn("failed to receive auth response")
		return
	}
	if t != wire.TypeAuthResponse {
		release()
		logger.WithField("type", t).Warn("unexpected packet during handshake")
		return
	}
	serverAuthResp, err := hs.HandleAuthResponse(payload)
	release()
	if err != nil {
		logger.WithError(err).Warn("auth response rejected")
		return
	}
	if err := tr.Send(wire.TypeHandshakeComplete, serverAuthResp, 0); err != nil {
		logger.WithError(err).Warn("failed to send handshake complete")
		return
	}

	logger.Info("handshake ready, connection encrypted")
}

// joinSession looks up a session, verifies it still has room, and
// joins it to obtain the host's connection address, via Lookup then
// Join.
func joinSession(acdsConn *transport.TCP, pub ed25519.PublicKey, priv ed25519.PrivateKey, session, password string, cfg *config.Config, logger *logrus.Entry) {
	if err := acdsConn.Send(wire.TypeACDSLookup, []byte(session), 0); err != nil {
		log.Fatalf("failed to send lookup request: %v", err)
	}
	t, payload, _, release, err := acdsConn.Recv(context.Background())
	if err != nil {
		log.Fatalf("failed to receive lookup response: %v", err)
	}
	if t != wire.TypeACDSInfo {
		release()
		log.Fatalf("session %q not found", session)
	}
	info, err := acds.DecodeInfo(payload)
	release()
	if err != nil {
		log.Fatalf("malformed lookup response: %v", err)
	}
	if info.Current >= info.MaxParticipants {
		log.Fatalf("session %q is full", session)
	}

	ts := time.Now()
	signed := acds.SignedJoinBytes(session, pub, ts)
	joinReq := acds.JoinRequest{
		SessionString:  session,
		ParticipantPub: pub,
		Password:       password,
		Timestamp:      ts,
		Signature:      ed25519.Sign(priv, signed),
	}
	if err := acdsConn.Send(wire.TypeACDSJoin, acds.EncodeJoinRequest(joinReq), 0); err != nil {
		log.Fatalf("failed to send join request: %v", err)
	}
	t, payload, _, release, err = acdsConn.Recv(context.Background())
	if err != nil {
		log.Fatalf("failed to receive join response: %v", err)
	}
	defer release()
	if t != wire.TypeACDSJoined {
		log.Fatalf("join rejected for session %q", session)
	}
	joined, err := acds.DecodeJoined(payload)
	if err != nil {
		log.Fatalf("malformed join response: %v", err)
	}

	logger.WithField("host", joined.ServerAddr).WithField("port", joined.ServerPort).Info("joined session, dialing host")

	hostConn, err := transport.DialTCP(context.Background(), joined.ServerAddr, joined.ServerPort, cfg.ConnectDeadline)
	if err != nil {
		log.Fatalf("failed to dial host: %v", err)
	}
	defer hostConn.Close()

	if err := runClientHandshake(hostConn); err != nil {
		log.Fatalf("handshake with host failed: %v", err)
	}
	logger.Info("handshake ready, connection encrypted")
}

// runClientHandshake is the client side of the exchange driven by
// runServerHandshake above.
func runClientHandshake(tr transport.Transport) error {
	ctx, cancel := context.WithTimeout(context.Background(), handshakeDeadline)
	defer cancel()

	hs := crypto.NewClientHandshake(crypto.DefaultSuite, nil, "", handshakeDeadline)

	t, payload, _, release, err := tr.Recv(ctx)
	if err != nil {
		return err
	}
	if t != wire.TypeKeyExchangeInit {
		release()
		return errUnexpectedType(t)
	}
	respMsg, err := hs.HandleKeyExchangeInit(payload, nil)
	release()
	if err != nil {
		return err
	}
	if err := tr.Send(wire.TypeKeyExchangeResp, respMsg, 0); err != nil {
		return err
	}

	t, payload, _, release, err = tr.Recv(ctx)
	if err != nil {
		return err
	}
	if t != wire.TypeAuthChallenge || len(payload) < 1 {
		release()
		return errUnexpectedType(t)
	}
	requirements := crypto.Requirements(payload[0])
	var nonce [32]byte
	copy(nonce[:], payload[1:])
	release()

	authResp, err := hs.BuildAuthResponse(requirements, nonce)
	if err != nil {
		return err
	}
	if err := tr.Send(wire.TypeAuthResponse, authResp, 0); err != nil {
		return err
	}

	t, payload, _, release, err = tr.Recv(ctx)
	if err != nil {
		return err
	}
	if t != wire.TypeHandshakeComplete {
		release()
		return errUnexpectedType(t)
	}
	err = hs.HandleServerAuthResp(payload)
	release()
	return err
}

func errUnexpectedType(t wire.Type) error {
	return fmt.Errorf("unexpected packet type %d during handshake", t)
}
