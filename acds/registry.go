package acds

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ascii-chat/acip-core/crypto"
	"github.com/ascii-chat/acip-core/internal/logx"
)

var log = logx.For("acds")

// ReplayWindow bounds how far a request timestamp may drift from wall
// clock before Registry rejects it: the same ±5-minute window the
// handshake applies to its timestamped identity signatures.
const ReplayWindow = crypto.ReplayWindow

// CreateRequest is a signed request to reserve a session string.
// Signature covers canonical bytes built by SignedCreateBytes.
type CreateRequest struct {
	RequestedString string // "" to auto-generate a memorable string
	HostPub         ed25519.PublicKey
	Capabilities    Capabilities
	MaxParticipants int
	Password        string // "" for no password
	Policy          PolicyFlags
	Type            Type
	ServerAddr      string
	ServerPort      uint16
	Timestamp       time.Time
	Signature       []byte
}

// SignedCreateBytes builds the canonical byte sequence a Create
// request's signature covers, so that both requesters and tests can
// reproduce it.
func SignedCreateBytes(requestedString string, hostPub ed25519.PublicKey, caps Capabilities, maxParticipants int, policy PolicyFlags, typ Type, ts time.Time) []byte {
	buf := new(bytes.Buffer)
	buf.WriteString(requestedString)
	buf.Write(hostPub)
	buf.WriteByte(byte(caps))
	buf.WriteByte(byte(maxParticipants))
	buf.WriteByte(byte(policy))
	buf.WriteByte(byte(typ))
	var tsBytes [8]byte
	binary.BigEndian.PutUint64(tsBytes[:], uint64(ts.UnixMilli()))
	buf.Write(tsBytes[:])
	return buf.Bytes()
}

// JoinRequest is a signed request to join an existing session.
type JoinRequest struct {
	SessionString  string
	ParticipantPub ed25519.PublicKey
	Password       string
	Timestamp      time.Time
	Signature      []byte
}

// SignedJoinBytes builds the canonical byte sequence a Join request's
// signature covers.
func SignedJoinBytes(sessionString string, participantPub ed25519.PublicKey, ts time.Time) []byte {
	buf := new(bytes.Buffer)
	buf.WriteString(sessionString)
	buf.Write(participantPub)
	var tsBytes [8]byte
	binary.BigEndian.PutUint64(tsBytes[:], uint64(ts.UnixMilli()))
	buf.Write(tsBytes[:])
	return buf.Bytes()
}

// LeaveRequest is a signed request to leave a session.
type LeaveRequest struct {
	SessionUUID     uuid.UUID
	ParticipantUUID uuid.UUID
	ParticipantPub  ed25519.PublicKey
	Timestamp       time.Time
	Signature       []byte
}

// SignedLeaveBytes builds the canonical byte sequence a Leave
// request's signature covers.
func SignedLeaveBytes(sessionUUID, participantUUID uuid.UUID, ts time.Time) []byte {
	buf := new(bytes.Buffer)
	buf.Write(sessionUUID[:])
	buf.Write(participantUUID[:])
	var tsBytes [8]byte
	binary.BigEndian.PutUint64(tsBytes[:], uint64(ts.UnixMilli()))
	buf.Write(tsBytes[:])
	return buf.Bytes()
}

// Store is the persistence boundary a Registry writes through; Store
// implementations in this module use github.com/glebarez/go-sqlite.
// Registry owns all locking, so Store implementations need not be
// internally thread-safe beyond what database/sql already guarantees.
type Store interface {
	SaveSession(s *Session) error
	DeleteSession(sessionUUID uuid.UUID) error
	SaveParticipant(sessionUUID uuid.UUID, p Participant) error
	DeleteParticipant(sessionUUID, participantUUID uuid.UUID) error
	LoadAll() ([]*Session, error)
	Close() error
}

// Registry is the in-memory, mutex-guarded session table backed by
// Store, implementing Create, Lookup, Join, and Leave. The locking
// shape — one RWMutex guarding a pair of lookup maps — is the same
// connection-table idiom used elsewhere in this stack, generalized
// from net.Conn entries to Session entries.
type Registry struct {
	mu       sync.RWMutex
	byString map[string]*Session
	byUUID   map[uuid.UUID]*Session

	store Store
	ttl   time.Duration

	stopReap chan struct{}
	reapOnce sync.Once
}

// NewRegistry constructs a Registry backed by store, loading any
// sessions store already holds (a restart must not forget
// in-progress sessions).
func NewRegistry(store Store, ttl time.Duration) (*Registry, error) {
	r := &Registry{
		byString: make(map[string]*Session),
		byUUID:   make(map[uuid.UUID]*Session),
		store:    store,
		ttl:      ttl,
		stopReap: make(chan struct{}),
	}

	existing, err := store.LoadAll()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	for _, s := range existing {
		if s.Expired(now) {
			continue
		}
		r.byString[s.SessionString] = s
		r.byUUID[s.UUID] = s
	}

	log.WithField("loaded", len(r.byString)).Info("acds registry initialized")
	return r, nil
}

func checkTimestamp(ts time.Time) error {
	delta := time.Since(ts)
	if delta < 0 {
		delta = -delta
	}
	if delta > ReplayWindow {
		return ErrReplayWindowExceeded
	}
	return nil
}

// Create reserves a session string and registers the session: it
// verifies the request signature, generates a memorable string when
// none is requested, rejects collisions, and persists via Store
// before the session becomes visible to Lookup.
func (r *Registry) Create(req CreateRequest) (*Created, error) {
	if err := checkTimestamp(req.Timestamp); err != nil {
		return nil, err
	}
	if req.MaxParticipants < 1 || req.MaxParticipants > MaxParticipantsCeiling {
		req.MaxParticipants = MaxParticipantsCeiling
	}

	signed := SignedCreateBytes(req.RequestedString, req.HostPub, req.Capabilities, req.MaxParticipants, req.Policy, req.Type, req.Timestamp)
	if !ed25519.Verify(req.HostPub, signed, req.Signature) {
		return nil, ErrInvalidSignature
	}

	var passwordSalt, passwordHash []byte
	if req.Password != "" {
		passwordSalt = make([]byte, 16)
		if _, err := rand.Read(passwordSalt); err != nil {
			return nil, err
		}
		passwordHash = crypto.DerivePasswordKey(req.Password, passwordSalt)
	}

	now := time.Now()
	session := &Session{
		UUID:            uuid.New(),
		HostPub:         append(ed25519.PublicKey(nil), req.HostPub...),
		Capabilities:    req.Capabilities,
		MaxParticipants: req.MaxParticipants,
		Current:         0,
		PasswordSalt:    passwordSalt,
		PasswordHash:    passwordHash,
		Policy:          req.Policy,
		Type:            req.Type,
		CreatedAt:       now,
		ExpiresAt:       now.Add(r.ttl),
		ServerAddr:      req.ServerAddr,
		ServerPort:      req.ServerPort,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sessionString := req.RequestedString
	if sessionString == "" {
		var err error
		sessionString, err = r.generateUniqueStringLocked()
		if err != nil {
			return nil, err
		}
	} else if _, taken := r.byString[sessionString]; taken {
		return nil, ErrStringAlreadyReserved
	}
	session.SessionString = sessionString

	if err := r.store.SaveSession(session); err != nil {
		return nil, err
	}

	r.byString[sessionString] = session
	r.byUUID[session.UUID] = session

	log.WithFields(map[string]any{"session": sessionString, "uuid": session.UUID}).Info("session created")
	return &Created{SessionString: sessionString, UUID: session.UUID, ExpiresAt: session.ExpiresAt}, nil
}

// generateUniqueStringLocked picks a memorable session string not
// already reserved. Caller holds r.mu.
func (r *Registry) generateUniqueStringLocked() (string, error) {
	for attempt := 0; attempt < 64; attempt++ {
		candidate, err := randomSessionString()
		if err != nil {
			return "", err
		}
		if _, taken := r.byString[candidate]; !taken {
			return candidate, nil
		}
	}
	return "", ErrStringAlreadyReserved
}

// Lookup returns the public metadata of a session by its string,
// without revealing the host's connection address.
func (r *Registry) Lookup(sessionString string) (Info, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byString[sessionString]
	if !ok {
		return Info{}, ErrSessionNotFound
	}
	if s.Expired(time.Now()) {
		return Info{}, ErrSessionExpired
	}
	return s.toInfo(), nil
}

// Join admits a participant into a session, enforcing the
// participant cap and (if set) password, and is the only operation
// that discloses ServerAddr/ServerPort.
func (r *Registry) Join(req JoinRequest) (*Joined, error) {
	if err := checkTimestamp(req.Timestamp); err != nil {
		return nil, err
	}

	signed := SignedJoinBytes(req.SessionString, req.ParticipantPub, req.Timestamp)
	if !ed25519.Verify(req.ParticipantPub, signed, req.Signature) {
		return nil, ErrInvalidSignature
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byString[req.SessionString]
	if !ok {
		return nil, ErrSessionNotFound
	}
	now := time.Now()
	if s.Expired(now) {
		return nil, ErrSessionExpired
	}
	if s.Current >= s.MaxParticipants {
		return nil, ErrSessionFull
	}
	if s.HasPassword() {
		if req.Password == "" {
			return nil, ErrAuthFailed
		}
		candidate := crypto.DerivePasswordKey(req.Password, s.PasswordSalt)
		if subtle.ConstantTimeCompare(candidate, s.PasswordHash) != 1 {
			return nil, ErrAuthFailed
		}
	}

	participant := Participant{
		UUID:        uuid.New(),
		IdentityPub: append(ed25519.PublicKey(nil), req.ParticipantPub...),
		JoinedAt:    now,
	}
	s.Participants = append(s.Participants, participant)
	s.Current++

	if err := r.store.SaveParticipant(s.UUID, participant); err != nil {
		s.Participants = s.Participants[:len(s.Participants)-1]
		s.Current--
		return nil, err
	}
	if err := r.store.SaveSession(s); err != nil {
		log.WithError(err).Warn("failed to persist participant count update")
	}

	log.WithFields(map[string]any{"session": s.SessionString, "participant": participant.UUID}).Info("participant joined")
	return &Joined{
		ParticipantUUID: participant.UUID,
		ServerAddr:      s.ServerAddr,
		ServerPort:      s.ServerPort,
		Type:            s.Type,
		Current:         s.Current,
		MaxParticipants: s.MaxParticipants,
	}, nil
}

// Leave removes a participant from a session.
func (r *Registry) Leave(req LeaveRequest) error {
	if err := checkTimestamp(req.Timestamp); err != nil {
		return err
	}
	signed := SignedLeaveBytes(req.SessionUUID, req.ParticipantUUID, req.Timestamp)
	if !ed25519.Verify(req.ParticipantPub, signed, req.Signature) {
		return ErrInvalidSignature
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byUUID[req.SessionUUID]
	if !ok {
		return ErrSessionNotFound
	}

	idx := -1
	for i, p := range s.Participants {
		if p.UUID == req.ParticipantUUID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrSessionNotFound
	}

	s.Participants = append(s.Participants[:idx], s.Participants[idx+1:]...)
	s.Current--

	if err := r.store.DeleteParticipant(s.UUID, req.ParticipantUUID); err != nil {
		return err
	}

	log.WithFields(map[string]any{"session": s.SessionString, "participant": req.ParticipantUUID}).Info("participant left")
	return nil
}

// StartReaper launches the background sweep that drops expired
// sessions at the given interval. Call Close to stop it.
func (r *Registry) StartReaper(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stopReap:
				return
			case <-ticker.C:
				r.reapExpired()
			}
		}
	}()
}

func (r *Registry) reapExpired() {
	now := time.Now()

	r.mu.Lock()
	var expired []*Session
	for k, s := range r.byString {
		if s.Expired(now) {
			expired = append(expired, s)
			delete(r.byString, k)
			delete(r.byUUID, s.UUID)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		if err := r.store.DeleteSession(s.UUID); err != nil {
			log.WithError(err).WithField("session", s.SessionString).Warn("failed to delete expired session from store")
		}
	}
	if len(expired) > 0 {
		log.WithField("count", len(expired)).Info("reaped expired sessions")
	}
}

// Close stops the reaper and closes the underlying store.
func (r *Registry) Close() error {
	r.reapOnce.Do(func() { close(r.stopReap) })
	return r.store.Close()
}
