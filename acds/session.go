package acds

import (
	"crypto/ed25519"
	"time"

	"github.com/google/uuid"
)

// Capabilities is the session capability bitmap.
type Capabilities uint8

const (
	CapVideo Capabilities = 1 << 0
	CapAudio Capabilities = 1 << 1
)

// PolicyFlags are the per-session policy bits.
type PolicyFlags uint8

const (
	PolicyExposeIPPublicly          PolicyFlags = 1 << 0
	PolicyRequireClientVerification PolicyFlags = 1 << 1
	PolicyRequireServerVerification PolicyFlags = 1 << 2
)

// Type distinguishes a direct-TCP session from a WebRTC-relayed one.
type Type uint8

const (
	TypeDirectTCP Type = iota
	TypeWebRTCRelayed
)

// MaxParticipantsCeiling bounds MaxParticipants to 8.
const MaxParticipantsCeiling = 8

// SessionTTL is the default session lifetime.
const SessionTTL = 24 * time.Hour

// Participant is one joined-session sub-record.
type Participant struct {
	UUID        uuid.UUID
	IdentityPub ed25519.PublicKey
	JoinedAt    time.Time
}

// Session is one ACDS registry entry. Invariant: Current <=
// MaxParticipants, ExpiresAt == CreatedAt plus the owning Registry's
// TTL, and no two
// Sessions share SessionString.
type Session struct {
	SessionString   string // memorable identifier, e.g. "swift-river-mountain"
	UUID            uuid.UUID
	HostPub         ed25519.PublicKey
	Capabilities    Capabilities
	MaxParticipants int
	Current         int

	// PasswordSalt/PasswordHash are argon2id(password, PasswordSalt);
	// both nil when the session has no password.
	PasswordSalt []byte
	PasswordHash []byte

	Policy PolicyFlags
	Type   Type

	CreatedAt time.Time
	ExpiresAt time.Time

	ServerAddr string
	ServerPort uint16

	Participants []Participant
}

// HasPassword reports whether Join must verify a password.
func (s *Session) HasPassword() bool { return len(s.PasswordHash) > 0 }

// Expired reports whether the session has passed its TTL.
func (s *Session) Expired(now time.Time) bool { return now.After(s.ExpiresAt) }

// Info is the metadata a casual, unauthenticated Lookup may see: it
// intentionally omits ServerAddr/ServerPort so a lookup alone never
// reveals the host's connection address.
type Info struct {
	SessionString   string
	UUID            uuid.UUID
	Capabilities    Capabilities
	MaxParticipants int
	Current         int
	HasPassword     bool
	Policy          PolicyFlags
	Type            Type
	ExpiresAt       time.Time
}

func (s *Session) toInfo() Info {
	return Info{
		SessionString:   s.SessionString,
		UUID:            s.UUID,
		Capabilities:    s.Capabilities,
		MaxParticipants: s.MaxParticipants,
		Current:         s.Current,
		HasPassword:     s.HasPassword(),
		Policy:          s.Policy,
		Type:            s.Type,
		ExpiresAt:       s.ExpiresAt,
	}
}

// Joined is the response to a successful Join: the only code path
// that discloses the host's connection address.
type Joined struct {
	ParticipantUUID uuid.UUID
	ServerAddr      string
	ServerPort      uint16
	Type            Type
	Current         int
	MaxParticipants int
}

// Created is the response to a successful Create.
type Created struct {
	SessionString string
	UUID          uuid.UUID
	ExpiresAt     time.Time
}
