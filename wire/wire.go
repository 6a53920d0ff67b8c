// Package wire implements the ACIP packet frame: the fixed header, CRC
// validation, and the numeric packet-type registry. It is the lowest
// layer of the protocol stack — everything above it (transport,
// crypto, dispatch) treats a packet as (type uint16, payload []byte).
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Magic is the 32-bit sentinel that opens every ACIP frame.
const Magic uint32 = 0x41434950 // "ACIP"

// HeaderSize is the fixed wire size of a packet header in bytes:
// magic(4) | type(2) | length(4) | crc32(4) | client_id(4).
const HeaderSize = 18

// MaxPayload is the default per-type payload ceiling (64 MiB).
const MaxPayload = 64 * 1024 * 1024

// DesyncThreshold is the number of bytes decode may discard while
// resynchronizing on Magic before giving up with ErrDesynchronized.
const DesyncThreshold = 1024

// Errors returned by Encode/Decode. Spec §4.1 / §7 "Framing".
var (
	ErrTooLarge          = errors.New("wire: payload exceeds type maximum")
	ErrBadMagic          = errors.New("wire: bad magic")
	ErrTruncated         = errors.New("wire: truncated frame")
	ErrBadCRC            = errors.New("wire: CRC32 mismatch")
	ErrLengthExceedsMax  = errors.New("wire: length exceeds MAX_PAYLOAD")
	ErrDesynchronized    = errors.New("wire: desynchronized, resync budget exhausted")
	ErrUnknownPacketType = errors.New("wire: unknown packet type")
)

// Header is the fixed 18-byte ACIP frame header, network byte order.
type Header struct {
	Magic    uint32
	Type     Type
	Length   uint32
	CRC32    uint32
	ClientID uint32
}

// Type is a packet type drawn from the closed ACIP registry (§6).
type Type uint16

// Packet type ranges.
const (
	// 1..9 protocol control
	TypePing             Type = 1
	TypePong             Type = 2
	TypeProtocolVersion  Type = 3
	TypeCapabilities     Type = 4

	// 10..19 client -> server join/leave/stream control
	TypeClientJoin  Type = 10
	TypeClientLeave Type = 11
	TypeStreamStart Type = 12
	TypeStreamStop  Type = 13

	// 20..49 media
	TypeImageFrame      Type = 20
	TypeImageFrameH265  Type = 21
	TypeASCIIFrame      Type = 22
	TypeAudio           Type = 23
	TypeAudioBatch      Type = 24
	TypeAudioOpus       Type = 25
	TypeAudioOpusBatch  Type = 26

	// 50..59 server -> client
	TypeServerState  Type = 50
	TypeClearConsole Type = 51
	TypeError        Type = 52
	TypeRemoteLog    Type = 53

	// 70..89 crypto
	TypeKeyExchangeInit   Type = 70
	TypeKeyExchangeResp   Type = 71
	TypeNoEncryption      Type = 72
	TypeAuthChallenge     Type = 73
	TypeAuthResponse      Type = 74
	TypeServerAuthResp    Type = 75
	TypeAuthFailed        Type = 76
	TypeHandshakeComplete Type = 77
	TypeRekeyRequest      Type = 78
	TypeRekeyResponse     Type = 79
	TypeRekeyComplete     Type = 80

	// 100..109 ACDS session
	TypeACDSCreate    Type = 100
	TypeACDSCreated   Type = 101
	TypeACDSLookup    Type = 102
	TypeACDSInfo      Type = 103
	TypeACDSJoin      Type = 104
	TypeACDSJoined    Type = 105
	TypeACDSLeave     Type = 106
	TypeACDSEnd       Type = 107
	TypeACDSReconnect Type = 108

	// 110..119 WebRTC signaling
	TypeSignalSDP Type = 110
	TypeSignalICE Type = 111

	// 120..129 string reservation
	TypeStringReserve  Type = 120
	TypeStringReserved Type = 121

	// 150..198 discovery control
	TypeDiscoveryPing Type = 150

	// 199 generic error
	TypeACIPError Type = 199
)

// MediaControlLow/High and DiscoveryLow/High bound the two reserved
// ranges named in §3: 1..99 media/control, 100..199 discovery.
const (
	MediaControlLow  Type = 1
	MediaControlHigh Type = 99
	DiscoveryLow     Type = 100
	DiscoveryHigh    Type = 199
)

// IsMediaControl reports whether t falls in the media/control range.
func (t Type) IsMediaControl() bool { return t >= MediaControlLow && t <= MediaControlHigh }

// IsDiscovery reports whether t falls in the discovery (ACIP-ACDS) range.
func (t Type) IsDiscovery() bool { return t >= DiscoveryLow && t <= DiscoveryHigh }

// typeMaxPayload holds the per-type payload ceiling. Types absent from
// this map use MaxPayload. Media types get the full ceiling; small
// control/crypto/discovery packets get a tighter bound so a corrupt
// length field cannot force a 64 MiB allocation for a PING.
var typeMaxPayload = map[Type]uint32{
	TypePing:              64,
	TypePong:              64,
	TypeProtocolVersion:   64,
	TypeCapabilities:      4096,
	TypeClientJoin:        4096,
	TypeClientLeave:       256,
	TypeKeyExchangeInit:   4096,
	TypeKeyExchangeResp:   4096,
	TypeNoEncryption:      256,
	TypeAuthChallenge:     512,
	TypeAuthResponse:      4096,
	TypeServerAuthResp:    1024,
	TypeAuthFailed:        1024,
	TypeHandshakeComplete: 64,
	TypeRekeyRequest:      4096,
	TypeRekeyResponse:     4096,
	TypeRekeyComplete:     64,
	TypeACDSCreate:        4096,
	TypeACDSCreated:       1024,
	TypeACDSLookup:        512,
	TypeACDSInfo:          4096,
	TypeACDSJoin:          4096,
	TypeACDSJoined:        1024,
	TypeACDSLeave:         256,
	TypeACDSEnd:           256,
	TypeACDSReconnect:     1024,
	TypeStringReserve:     256,
	TypeStringReserved:    256,
	TypeDiscoveryPing:     64,
	TypeACIPError:         4096,
}

// MaxPayloadForType returns the fixed per-type payload ceiling for t,
// or MaxPayload for a type with no entry in the table.
func MaxPayloadForType(t Type) uint32 {
	if m, ok := typeMaxPayload[t]; ok {
		return m
	}
	return MaxPayload
}

// Encode serializes a packet: header (with length/crc32 computed from
// payload) followed by the payload bytes. clientID is the optional
// sender tag (0 when unused). Fails with ErrTooLarge if payload
// exceeds the per-type maximum.
func Encode(t Type, payload []byte, clientID uint32) ([]byte, error) {
	max := MaxPayloadForType(t)
	if uint32(len(payload)) > max {
		return nil, fmt.Errorf("%w: type %d payload %d > max %d", ErrTooLarge, t, len(payload), max)
	}

	buf := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], Magic)
	binary.BigEndian.PutUint16(buf[4:6], uint16(t))
	binary.BigEndian.PutUint32(buf[6:10], uint32(len(payload)))
	binary.BigEndian.PutUint32(buf[14:18], clientID)
	copy(buf[HeaderSize:], payload)

	crc := ComputeCRC32(payload)
	binary.BigEndian.PutUint32(buf[10:14], crc)

	return buf, nil
}

// frameReader is the minimal interface Decode needs from a byte
// source: a single byte and an exact-length read. StreamReader (used
// by transport.TCP) and the in-memory reader behind DecodeBytes
// satisfy it.
type frameReader interface {
	ReadByte() (byte, error)
	ReadExact(buf []byte) error
}

// Decode reads one frame from r: it resynchronizes on Magic (discarding
// up to DesyncThreshold bytes before giving up), validates the length
// bound, reads the payload, and verifies the CRC.
func Decode(r frameReader) (Type, []byte, uint32, error) {
	discarded := 0
	var magicBuf [4]byte

	// Fill the 4-byte magic window one byte at a time so resync can
	// slide without re-reading already-consumed bytes.
	for i := 0; i < 4; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, nil, 0, fmt.Errorf("%w: %v", ErrTruncated, err)
		}
		magicBuf[i] = b
	}

	for binary.BigEndian.Uint32(magicBuf[:]) != Magic {
		discarded++
		if discarded > DesyncThreshold {
			return 0, nil, 0, ErrDesynchronized
		}
		copy(magicBuf[0:3], magicBuf[1:4])
		b, err := r.ReadByte()
		if err != nil {
			return 0, nil, 0, fmt.Errorf("%w: %v", ErrTruncated, err)
		}
		magicBuf[3] = b
	}

	rest := make([]byte, HeaderSize-4)
	if err := r.ReadExact(rest); err != nil {
		return 0, nil, 0, fmt.Errorf("%w: %v", ErrTruncated, err)
	}

	t := Type(binary.BigEndian.Uint16(rest[0:2]))
	length := binary.BigEndian.Uint32(rest[2:6])
	crc := binary.BigEndian.Uint32(rest[6:10])
	clientID := binary.BigEndian.Uint32(rest[10:14])

	if length > MaxPayload {
		return 0, nil, 0, ErrLengthExceedsMax
	}
	if length > MaxPayloadForType(t) {
		return 0, nil, 0, fmt.Errorf("%w: type %d length %d", ErrLengthExceedsMax, t, length)
	}

	payload := make([]byte, length)
	if length > 0 {
		if err := r.ReadExact(payload); err != nil {
			return 0, nil, 0, fmt.Errorf("%w: %v", ErrTruncated, err)
		}
	}

	if ComputeCRC32(payload) != crc {
		return 0, nil, 0, ErrBadCRC
	}

	return t, payload, clientID, nil
}

// DecodeBytes is a convenience wrapper for decoding a single frame
// already fully buffered in memory (e.g. one WebSocket or WebRTC
// message).
func DecodeBytes(data []byte) (Type, []byte, uint32, error) {
	return Decode(newSliceReader(data))
}
