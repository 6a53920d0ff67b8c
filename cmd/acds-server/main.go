package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ascii-chat/acip-core/acds"
	"github.com/ascii-chat/acip-core/internal/config"
	"github.com/ascii-chat/acip-core/internal/logx"
	"github.com/ascii-chat/acip-core/transport"
	"github.com/ascii-chat/acip-core/wire"
)

func main() {
	defaults := config.NewConfig()
	var (
		port    = flag.Uint("port", uint(defaults.DiscoveryPort), "Discovery service TCP port")
		dbPath  = flag.String("db", defaults.ACDSDBPath, "Session registry database path")
		verbose = flag.Bool("verbose", false, "Enable debug logging")
	)
	flag.Parse()

	if *verbose {
		logx.SetLevel(logrus.DebugLevel)
	}
	logger := logx.For("acds-server")

	store, err := acds.OpenSQLStore(*dbPath)
	if err != nil {
		log.Fatalf("failed to open session store: %v", err)
	}

	registry, err := acds.NewRegistry(store, defaults.SessionTTL)
	if err != nil {
		log.Fatalf("failed to initialize registry: %v", err)
	}
	registry.StartReaper(time.Second)
	defer registry.Close()

	listener, err := transport.TCPListen(uint16(*port))
	if err != nil {
		log.Fatalf("failed to listen on port %d: %v", *port, err)
	}
	defer listener.Close()

	logger.WithField("port", *port).Info("acds discovery service listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go acceptLoop(listener, registry, logger)

	<-sigCh
	logger.Info("shutting down")
}

func acceptLoop(listener net.Listener, registry *acds.Registry, logger *logrus.Entry) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			logger.WithError(err).Warn("accept failed")
			return
		}
		go serveConn(transport.NewTCP(conn), registry, logger)
	}
}

// serveConn handles one discovery connection: it reads ACDS request
// packets and replies in kind, until the connection closes. Discovery
// requests are self-authenticating (each carries its own signature),
// so no crypto handshake runs on this channel.
func serveConn(tr transport.Transport, registry *acds.Registry, logger *logrus.Entry) {
	defer tr.Close()
	ctx := context.Background()

	for {
		t, payload, clientID, release, err := tr.Recv(ctx)
		if err != nil {
			if !errors.Is(err, transport.ErrClosed) {
				logger.WithError(err).Debug("recv failed, closing connection")
			}
			return
		}

		respType, respPayload, ok := handleRequest(registry, t, payload, logger)
		release()
		if !ok {
			continue
		}
		if err := tr.Send(respType, respPayload, clientID); err != nil {
			logger.WithError(err).Debug("send failed, closing connection")
			return
		}
	}
}

func handleRequest(registry *acds.Registry, t wire.Type, payload []byte, logger *logrus.Entry) (wire.Type, []byte, bool) {
	switch t {
	case wire.TypeACDSCreate:
		req, err := acds.DecodeCreateRequest(payload)
		if err != nil {
			logger.WithError(err).Debug("malformed create request")
			return 0, nil, false
		}
		created, err := registry.Create(req)
		if err != nil {
			logger.WithError(err).Debug("create rejected")
			return 0, nil, false
		}
		return wire.TypeACDSCreated, acds.EncodeCreated(created), true

	case wire.TypeACDSLookup:
		sessionString := string(payload)
		info, err := registry.Lookup(sessionString)
		if err != nil {
			logger.WithError(err).Debug("lookup failed")
			return 0, nil, false
		}
		return wire.TypeACDSInfo, acds.EncodeInfo(info), true

	case wire.TypeACDSJoin:
		req, err := acds.DecodeJoinRequest(payload)
		if err != nil {
			logger.WithError(err).Debug("malformed join request")
			return 0, nil, false
		}
		joined, err := registry.Join(req)
		if err != nil {
			logger.WithError(err).Debug("join rejected")
			return 0, nil, false
		}
		return wire.TypeACDSJoined, acds.EncodeJoined(joined), true

	case wire.TypeACDSLeave:
		req, err := acds.DecodeLeaveRequest(payload)
		if err != nil {
			logger.WithError(err).Debug("malformed leave request")
			return 0, nil, false
		}
		if err := registry.Leave(req); err != nil {
			logger.WithError(err).Debug("leave rejected")
			return 0, nil, false
		}
		return 0, nil, false

	case wire.TypeDiscoveryPing:
		return wire.TypePong, nil, true

	default:
		logger.WithField("packet_type", t).Debug("no handler for discovery packet type")
		return 0, nil, false
	}
}
