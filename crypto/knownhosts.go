package crypto

import (
	"bufio"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

// KnownHosts is the local persistent mapping (hostname, port) -> server
// identity public key used to detect server impersonation. Entries are
// plain-text lines ("hostname:port base64(identity_pk)") appended
// under file lock.
type KnownHosts struct {
	mu   sync.Mutex
	path string
}

// NewKnownHosts opens (without requiring existence yet) the
// known-hosts file at path.
func NewKnownHosts(path string) *KnownHosts {
	return &KnownHosts{path: path}
}

// Lookup returns the recorded identity public key for (hostname, port),
// or ok=false if there is no record yet.
func (k *KnownHosts) Lookup(hostname string, port uint16) (pub ed25519.PublicKey, ok bool, err error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	f, err := os.Open(k.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()

	want := fmt.Sprintf("%s:%d", hostname, port)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, " ", 2)
		if len(parts) != 2 {
			continue
		}
		if parts[0] != want {
			continue
		}
		raw, decErr := base64.StdEncoding.DecodeString(parts[1])
		if decErr != nil || len(raw) != ed25519.PublicKeySize {
			continue
		}
		return ed25519.PublicKey(raw), true, nil
	}
	return nil, false, scanner.Err()
}

// Record appends a new (hostname, port) -> identity key entry under an
// OS file lock (flock), matching §5 "Known-hosts file: appended under
// an OS file lock."
func (k *KnownHosts) Record(hostname string, port uint16, pub ed25519.PublicKey) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	f, err := os.OpenFile(k.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("crypto: known_hosts flock: %w", err)
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)

	line := fmt.Sprintf("%s:%d %s\n", hostname, port, base64.StdEncoding.EncodeToString(pub))
	_, err = f.WriteString(line)
	return err
}
