package acds

import (
	"crypto/ed25519"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// This file binary-encodes the ACDS request/response types for the
// TypeACDSCreate/TypeACDSCreated/... packets named in wire.go's
// registry. Encoding follows the big-endian, length-prefixed-string
// convention the rest of the protocol stack uses.

func putString(buf []byte, offset int, s string) int {
	binary.BigEndian.PutUint16(buf[offset:], uint16(len(s)))
	offset += 2
	copy(buf[offset:], s)
	return offset + len(s)
}

func getString(buf []byte, offset int) (string, int, error) {
	if offset+2 > len(buf) {
		return "", 0, fmt.Errorf("acds: truncated string length")
	}
	n := int(binary.BigEndian.Uint16(buf[offset:]))
	offset += 2
	if offset+n > len(buf) {
		return "", 0, fmt.Errorf("acds: truncated string body")
	}
	return string(buf[offset : offset+n]), offset + n, nil
}

// EncodeCreateRequest serializes req for the TypeACDSCreate payload.
func EncodeCreateRequest(req CreateRequest) []byte {
	size := 2 + len(req.RequestedString) + ed25519.PublicKeySize + 1 + 1 + 2 + len(req.Password) +
		1 + 1 + 2 + len(req.ServerAddr) + 2 + 8 + 2 + len(req.Signature)
	buf := make([]byte, size)
	off := 0
	off = putString(buf, off, req.RequestedString)
	copy(buf[off:], req.HostPub)
	off += ed25519.PublicKeySize
	buf[off] = byte(req.Capabilities)
	off++
	buf[off] = byte(req.MaxParticipants)
	off++
	off = putString(buf, off, req.Password)
	buf[off] = byte(req.Policy)
	off++
	buf[off] = byte(req.Type)
	off++
	off = putString(buf, off, req.ServerAddr)
	binary.BigEndian.PutUint16(buf[off:], req.ServerPort)
	off += 2
	binary.BigEndian.PutUint64(buf[off:], uint64(req.Timestamp.UnixMilli()))
	off += 8
	binary.BigEndian.PutUint16(buf[off:], uint16(len(req.Signature)))
	off += 2
	copy(buf[off:], req.Signature)
	off += len(req.Signature)
	return buf[:off]
}

// DecodeCreateRequest parses a TypeACDSCreate payload.
func DecodeCreateRequest(payload []byte) (CreateRequest, error) {
	var req CreateRequest
	off := 0
	var err error
	req.RequestedString, off, err = getString(payload, off)
	if err != nil {
		return req, err
	}
	if off+ed25519.PublicKeySize > len(payload) {
		return req, fmt.Errorf("acds: truncated host pubkey")
	}
	req.HostPub = append(ed25519.PublicKey(nil), payload[off:off+ed25519.PublicKeySize]...)
	off += ed25519.PublicKeySize
	if off+2 > len(payload) {
		return req, fmt.Errorf("acds: truncated create request")
	}
	req.Capabilities = Capabilities(payload[off])
	off++
	req.MaxParticipants = int(payload[off])
	off++
	req.Password, off, err = getString(payload, off)
	if err != nil {
		return req, err
	}
	if off+2 > len(payload) {
		return req, fmt.Errorf("acds: truncated create request")
	}
	req.Policy = PolicyFlags(payload[off])
	off++
	req.Type = Type(payload[off])
	off++
	req.ServerAddr, off, err = getString(payload, off)
	if err != nil {
		return req, err
	}
	if off+2+8+2 > len(payload) {
		return req, fmt.Errorf("acds: truncated create request tail")
	}
	req.ServerPort = binary.BigEndian.Uint16(payload[off:])
	off += 2
	req.Timestamp = time.UnixMilli(int64(binary.BigEndian.Uint64(payload[off:])))
	off += 8
	sigLen := int(binary.BigEndian.Uint16(payload[off:]))
	off += 2
	if off+sigLen > len(payload) {
		return req, fmt.Errorf("acds: truncated signature")
	}
	req.Signature = append([]byte(nil), payload[off:off+sigLen]...)
	return req, nil
}

// EncodeCreated serializes a Created for the TypeACDSCreated payload.
func EncodeCreated(c *Created) []byte {
	size := 2 + len(c.SessionString) + 16 + 8
	buf := make([]byte, size)
	off := putString(buf, 0, c.SessionString)
	copy(buf[off:], c.UUID[:])
	off += 16
	binary.BigEndian.PutUint64(buf[off:], uint64(c.ExpiresAt.UnixMilli()))
	return buf
}

// DecodeCreated parses a TypeACDSCreated payload.
func DecodeCreated(payload []byte) (*Created, error) {
	s, off, err := getString(payload, 0)
	if err != nil {
		return nil, err
	}
	if off+16+8 > len(payload) {
		return nil, fmt.Errorf("acds: truncated created response")
	}
	id, err := uuid.FromBytes(payload[off : off+16])
	if err != nil {
		return nil, err
	}
	off += 16
	expires := time.UnixMilli(int64(binary.BigEndian.Uint64(payload[off:])))
	return &Created{SessionString: s, UUID: id, ExpiresAt: expires}, nil
}

// EncodeInfo serializes an Info for the TypeACDSInfo payload.
func EncodeInfo(info Info) []byte {
	size := 2 + len(info.SessionString) + 16 + 1 + 1 + 1 + 1 + 1 + 1 + 8
	buf := make([]byte, size)
	off := putString(buf, 0, info.SessionString)
	copy(buf[off:], info.UUID[:])
	off += 16
	buf[off] = byte(info.Capabilities)
	off++
	buf[off] = byte(info.MaxParticipants)
	off++
	buf[off] = byte(info.Current)
	off++
	if info.HasPassword {
		buf[off] = 1
	}
	off++
	buf[off] = byte(info.Policy)
	off++
	buf[off] = byte(info.Type)
	off++
	binary.BigEndian.PutUint64(buf[off:], uint64(info.ExpiresAt.UnixMilli()))
	return buf
}

// DecodeInfo parses a TypeACDSInfo payload.
func DecodeInfo(payload []byte) (Info, error) {
	var info Info
	s, off, err := getString(payload, 0)
	if err != nil {
		return info, err
	}
	if off+16+6+8 > len(payload) {
		return info, fmt.Errorf("acds: truncated info response")
	}
	id, err := uuid.FromBytes(payload[off : off+16])
	if err != nil {
		return info, err
	}
	off += 16
	info.SessionString = s
	info.UUID = id
	info.Capabilities = Capabilities(payload[off])
	off++
	info.MaxParticipants = int(payload[off])
	off++
	info.Current = int(payload[off])
	off++
	info.HasPassword = payload[off] == 1
	off++
	info.Policy = PolicyFlags(payload[off])
	off++
	info.Type = Type(payload[off])
	off++
	info.ExpiresAt = time.UnixMilli(int64(binary.BigEndian.Uint64(payload[off:])))
	return info, nil
}

// EncodeJoinRequest serializes req for the TypeACDSJoin payload.
func EncodeJoinRequest(req JoinRequest) []byte {
	size := 2 + len(req.SessionString) + ed25519.PublicKeySize + 2 + len(req.Password) + 8 + 2 + len(req.Signature)
	buf := make([]byte, size)
	off := putString(buf, 0, req.SessionString)
	copy(buf[off:], req.ParticipantPub)
	off += ed25519.PublicKeySize
	off = putString(buf, off, req.Password)
	binary.BigEndian.PutUint64(buf[off:], uint64(req.Timestamp.UnixMilli()))
	off += 8
	binary.BigEndian.PutUint16(buf[off:], uint16(len(req.Signature)))
	off += 2
	copy(buf[off:], req.Signature)
	off += len(req.Signature)
	return buf[:off]
}

// DecodeJoinRequest parses a TypeACDSJoin payload.
func DecodeJoinRequest(payload []byte) (JoinRequest, error) {
	var req JoinRequest
	s, off, err := getString(payload, 0)
	if err != nil {
		return req, err
	}
	req.SessionString = s
	if off+ed25519.PublicKeySize > len(payload) {
		return req, fmt.Errorf("acds: truncated participant pubkey")
	}
	req.ParticipantPub = append(ed25519.PublicKey(nil), payload[off:off+ed25519.PublicKeySize]...)
	off += ed25519.PublicKeySize
	req.Password, off, err = getString(payload, off)
	if err != nil {
		return req, err
	}
	if off+8+2 > len(payload) {
		return req, fmt.Errorf("acds: truncated join request")
	}
	req.Timestamp = time.UnixMilli(int64(binary.BigEndian.Uint64(payload[off:])))
	off += 8
	sigLen := int(binary.BigEndian.Uint16(payload[off:]))
	off += 2
	if off+sigLen > len(payload) {
		return req, fmt.Errorf("acds: truncated signature")
	}
	req.Signature = append([]byte(nil), payload[off:off+sigLen]...)
	return req, nil
}

// EncodeJoined serializes a Joined for the TypeACDSJoined payload.
func EncodeJoined(j *Joined) []byte {
	size := 16 + 2 + len(j.ServerAddr) + 2 + 1 + 1 + 1
	buf := make([]byte, size)
	copy(buf, j.ParticipantUUID[:])
	off := 16
	off = putString(buf, off, j.ServerAddr)
	binary.BigEndian.PutUint16(buf[off:], j.ServerPort)
	off += 2
	buf[off] = byte(j.Type)
	off++
	buf[off] = byte(j.Current)
	off++
	buf[off] = byte(j.MaxParticipants)
	return buf
}

// DecodeJoined parses a TypeACDSJoined payload.
func DecodeJoined(payload []byte) (*Joined, error) {
	if len(payload) < 16 {
		return nil, fmt.Errorf("acds: truncated joined response")
	}
	id, err := uuid.FromBytes(payload[:16])
	if err != nil {
		return nil, err
	}
	off := 16
	addr, off, err := getString(payload, off)
	if err != nil {
		return nil, err
	}
	if off+2+3 > len(payload) {
		return nil, fmt.Errorf("acds: truncated joined response tail")
	}
	port := binary.BigEndian.Uint16(payload[off:])
	off += 2
	typ := Type(payload[off])
	off++
	current := int(payload[off])
	off++
	maxParticipants := int(payload[off])
	return &Joined{
		ParticipantUUID: id,
		ServerAddr:      addr,
		ServerPort:      port,
		Type:            typ,
		Current:         current,
		MaxParticipants: maxParticipants,
	}, nil
}

// EncodeLeaveRequest serializes req for the TypeACDSLeave payload.
func EncodeLeaveRequest(req LeaveRequest) []byte {
	size := 16 + 16 + ed25519.PublicKeySize + 8 + 2 + len(req.Signature)
	buf := make([]byte, size)
	off := 0
	copy(buf[off:], req.SessionUUID[:])
	off += 16
	copy(buf[off:], req.ParticipantUUID[:])
	off += 16
	copy(buf[off:], req.ParticipantPub)
	off += ed25519.PublicKeySize
	binary.BigEndian.PutUint64(buf[off:], uint64(req.Timestamp.UnixMilli()))
	off += 8
	binary.BigEndian.PutUint16(buf[off:], uint16(len(req.Signature)))
	off += 2
	copy(buf[off:], req.Signature)
	off += len(req.Signature)
	return buf[:off]
}

// DecodeLeaveRequest parses a TypeACDSLeave payload.
func DecodeLeaveRequest(payload []byte) (LeaveRequest, error) {
	var req LeaveRequest
	if len(payload) < 16+16+ed25519.PublicKeySize+8+2 {
		return req, fmt.Errorf("acds: truncated leave request")
	}
	off := 0
	sessionUUID, err := uuid.FromBytes(payload[off : off+16])
	if err != nil {
		return req, err
	}
	off += 16
	participantUUID, err := uuid.FromBytes(payload[off : off+16])
	if err != nil {
		return req, err
	}
	off += 16
	req.SessionUUID = sessionUUID
	req.ParticipantUUID = participantUUID
	req.ParticipantPub = append(ed25519.PublicKey(nil), payload[off:off+ed25519.PublicKeySize]...)
	off += ed25519.PublicKeySize
	req.Timestamp = time.UnixMilli(int64(binary.BigEndian.Uint64(payload[off:])))
	off += 8
	sigLen := int(binary.BigEndian.Uint16(payload[off:]))
	off += 2
	if off+sigLen > len(payload) {
		return req, fmt.Errorf("acds: truncated signature")
	}
	req.Signature = append([]byte(nil), payload[off:off+sigLen]...)
	return req, nil
}
