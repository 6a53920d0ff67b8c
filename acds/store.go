package acds

import (
	"crypto/ed25519"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	_ "github.com/glebarez/go-sqlite"
)

// schema mirrors the Session/Participant field lists of session.go.
// created_ms/expires_ms/joined_ms are Unix milliseconds, matching the
// wire-level timestamp encoding used by SignedCreateBytes and peers.
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_string   TEXT PRIMARY KEY,
	uuid             TEXT NOT NULL UNIQUE,
	host_pk          BLOB NOT NULL,
	capabilities     INTEGER NOT NULL,
	max_participants INTEGER NOT NULL,
	current          INTEGER NOT NULL,
	password_salt    BLOB,
	password_hash    BLOB,
	policy_flags     INTEGER NOT NULL,
	session_type     INTEGER NOT NULL,
	created_ms       INTEGER NOT NULL,
	expires_ms       INTEGER NOT NULL,
	server_addr      TEXT NOT NULL,
	server_port      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS participants (
	session_uuid    TEXT NOT NULL,
	participant_uuid TEXT NOT NULL,
	identity_pk     BLOB NOT NULL,
	joined_ms       INTEGER NOT NULL,
	PRIMARY KEY (session_uuid, participant_uuid)
);
`

// SQLStore is the github.com/glebarez/go-sqlite-backed Store. It
// holds the session/participant tables open for the registry's process
// lifetime; Registry serializes all access via its own RWMutex, so
// SQLStore does not add locking of its own beyond what database/sql
// already does per *sql.DB.
type SQLStore struct {
	db *sql.DB
}

// OpenSQLStore opens (creating if necessary) a sqlite-backed store at
// path, ensuring the schema exists.
func OpenSQLStore(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // sqlite permits one writer; avoid lock-contention surprises

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) SaveSession(session *Session) error {
	_, err := s.db.Exec(`
		INSERT INTO sessions (
			session_string, uuid, host_pk, capabilities, max_participants, current,
			password_salt, password_hash, policy_flags, session_type,
			created_ms, expires_ms, server_addr, server_port
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_string) DO UPDATE SET
			current = excluded.current,
			expires_ms = excluded.expires_ms
	`,
		session.SessionString, session.UUID.String(), []byte(session.HostPub),
		int(session.Capabilities), session.MaxParticipants, session.Current,
		session.PasswordSalt, session.PasswordHash, int(session.Policy), int(session.Type),
		session.CreatedAt.UnixMilli(), session.ExpiresAt.UnixMilli(),
		session.ServerAddr, session.ServerPort,
	)
	return err
}

func (s *SQLStore) DeleteSession(sessionUUID uuid.UUID) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE uuid = ?`, sessionUUID.String())
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`DELETE FROM participants WHERE session_uuid = ?`, sessionUUID.String())
	return err
}

func (s *SQLStore) SaveParticipant(sessionUUID uuid.UUID, p Participant) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO participants (session_uuid, participant_uuid, identity_pk, joined_ms)
		VALUES (?, ?, ?, ?)
	`, sessionUUID.String(), p.UUID.String(), []byte(p.IdentityPub), p.JoinedAt.UnixMilli())
	return err
}

func (s *SQLStore) DeleteParticipant(sessionUUID, participantUUID uuid.UUID) error {
	_, err := s.db.Exec(`DELETE FROM participants WHERE session_uuid = ? AND participant_uuid = ?`,
		sessionUUID.String(), participantUUID.String())
	return err
}

func (s *SQLStore) LoadAll() ([]*Session, error) {
	rows, err := s.db.Query(`
		SELECT session_string, uuid, host_pk, capabilities, max_participants, current,
		       password_salt, password_hash, policy_flags, session_type,
		       created_ms, expires_ms, server_addr, server_port
		FROM sessions
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	byUUID := make(map[uuid.UUID]*Session)
	for rows.Next() {
		var (
			sessionString, uuidStr, serverAddr string
			hostPK, passwordSalt, passwordHash []byte
			capabilities, maxParticipants, current, policy, sessionType int
			createdMS, expiresMS                                       int64
			serverPort                                                 int
		)
		if err := rows.Scan(&sessionString, &uuidStr, &hostPK, &capabilities, &maxParticipants, &current,
			&passwordSalt, &passwordHash, &policy, &sessionType, &createdMS, &expiresMS, &serverAddr, &serverPort); err != nil {
			return nil, err
		}
		u, err := uuid.Parse(uuidStr)
		if err != nil {
			return nil, err
		}
		session := &Session{
			SessionString:   sessionString,
			UUID:            u,
			HostPub:         ed25519.PublicKey(hostPK),
			Capabilities:    Capabilities(capabilities),
			MaxParticipants: maxParticipants,
			Current:         current,
			PasswordSalt:    passwordSalt,
			PasswordHash:    passwordHash,
			Policy:          PolicyFlags(policy),
			Type:            Type(sessionType),
			CreatedAt:       time.UnixMilli(createdMS),
			ExpiresAt:       time.UnixMilli(expiresMS),
			ServerAddr:      serverAddr,
			ServerPort:      uint16(serverPort),
		}
		sessions = append(sessions, session)
		byUUID[u] = session
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prows, err := s.db.Query(`SELECT session_uuid, participant_uuid, identity_pk, joined_ms FROM participants`)
	if err != nil {
		return nil, err
	}
	defer prows.Close()

	for prows.Next() {
		var sessionUUIDStr, participantUUIDStr string
		var identityPK []byte
		var joinedMS int64
		if err := prows.Scan(&sessionUUIDStr, &participantUUIDStr, &identityPK, &joinedMS); err != nil {
			return nil, err
		}
		sessionUUID, err := uuid.Parse(sessionUUIDStr)
		if err != nil {
			return nil, err
		}
		participantUUID, err := uuid.Parse(participantUUIDStr)
		if err != nil {
			return nil, err
		}
		session, ok := byUUID[sessionUUID]
		if !ok {
			continue // orphaned participant row from a deleted session
		}
		session.Participants = append(session.Participants, Participant{
			UUID:        participantUUID,
			IdentityPub: ed25519.PublicKey(identityPK),
			JoinedAt:    time.UnixMilli(joinedMS),
		})
	}
	if err := prows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

func (s *SQLStore) Close() error {
	if s.db == nil {
		return errors.New("acds: store already closed")
	}
	err := s.db.Close()
	s.db = nil
	return err
}
