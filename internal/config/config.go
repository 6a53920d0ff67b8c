// Package config generalizes the ambient tunables the rest of the
// module reads: ports, deadlines, rekey thresholds, and persisted
// state paths. This module does no flag or environment parsing itself
// (CLI parsing is an explicit non-goal); the cmd/ entrypoints build a
// Config directly.
package config

import "time"

// Config holds every tunable the networking stack needs: ports, deadlines,
// rekey thresholds, replay window, and storage paths.
type Config struct {
	ServerPort    uint16
	DiscoveryPort uint16

	ConnectDeadline   time.Duration
	HandshakeDeadline time.Duration
	ReplayWindow      time.Duration

	RekeyPackets uint64
	RekeyBytes   uint64
	RekeySeconds time.Duration

	KnownHostsPath string
	ACDSDBPath     string

	SessionTTL time.Duration
}

// NewConfig returns the documented defaults.
func NewConfig() *Config {
	return &Config{
		ServerPort:    27224,
		DiscoveryPort: 27225,

		ConnectDeadline:   5 * time.Second,
		HandshakeDeadline: 30 * time.Second,
		ReplayWindow:      5 * time.Minute,

		RekeyPackets: 1 << 32,
		RekeyBytes:   2 * 1024 * 1024 * 1024,
		RekeySeconds: time.Hour,

		KnownHostsPath: "known_hosts",
		ACDSDBPath:     "acds.db",

		SessionTTL: 24 * time.Hour,
	}
}
