package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payload := []byte("hello ascii-chat")
	data, err := Encode(TypePing, payload, 42)
	require.NoError(t, err)

	typ, got, clientID, err := DecodeBytes(data)
	require.NoError(t, err)
	require.Equal(t, TypePing, typ)
	require.Equal(t, payload, got)
	require.Equal(t, uint32(42), clientID)
}

func TestEncodeDeterministic(t *testing.T) {
	payload := []byte("repeat me")
	a, err := Encode(TypePing, payload, 1)
	require.NoError(t, err)
	b, err := Encode(TypePing, payload, 1)
	require.NoError(t, err)
	require.True(t, bytes.Equal(a, b))
}

func TestEmptyPayload(t *testing.T) {
	data, err := Encode(TypeHandshakeComplete, nil, 0)
	require.NoError(t, err)
	typ, payload, _, err := DecodeBytes(data)
	require.NoError(t, err)
	require.Equal(t, TypeHandshakeComplete, typ)
	require.Empty(t, payload)
}

func TestCRCBitFlipRejected(t *testing.T) {
	payload := []byte("integrity matters")
	data, err := Encode(TypePing, payload, 0)
	require.NoError(t, err)

	// Flip one bit inside the payload.
	corrupted := append([]byte(nil), data...)
	corrupted[HeaderSize] ^= 0x01
	_, _, _, err = DecodeBytes(corrupted)
	require.ErrorIs(t, err, ErrBadCRC)

	// Flip one bit inside the header's CRC field itself (bytes 10..13).
	corrupted2 := append([]byte(nil), data...)
	corrupted2[13] ^= 0x01
	_, _, _, err = DecodeBytes(corrupted2)
	require.ErrorIs(t, err, ErrBadCRC)
}

func TestBadMagicResyncsAndDesyncs(t *testing.T) {
	junk := bytes.Repeat([]byte{0x00}, DesyncThreshold+10)
	_, _, _, err := DecodeBytes(junk)
	require.ErrorIs(t, err, ErrDesynchronized)
}

func TestDecodeResyncsPastGarbage(t *testing.T) {
	payload := []byte("resync")
	good, err := Encode(TypePong, payload, 7)
	require.NoError(t, err)

	garbage := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	stream := append(append([]byte(nil), garbage...), good...)

	typ, got, clientID, err := DecodeBytes(stream)
	require.NoError(t, err)
	require.Equal(t, TypePong, typ)
	require.Equal(t, payload, got)
	require.Equal(t, uint32(7), clientID)
}

func TestPayloadExactlyAtTypeMax(t *testing.T) {
	max := MaxPayloadForType(TypeACIPError)
	payload := bytes.Repeat([]byte{0xAB}, int(max))
	data, err := Encode(TypeACIPError, payload, 0)
	require.NoError(t, err)
	typ, got, _, err := DecodeBytes(data)
	require.NoError(t, err)
	require.Equal(t, TypeACIPError, typ)
	require.Equal(t, payload, got)
}

func TestPayloadOverTypeMaxRejectedByEncode(t *testing.T) {
	max := MaxPayloadForType(TypeACIPError)
	payload := bytes.Repeat([]byte{0xAB}, int(max)+1)
	_, err := Encode(TypeACIPError, payload, 0)
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestTruncatedFrame(t *testing.T) {
	payload := []byte("truncate me")
	data, err := Encode(TypePing, payload, 0)
	require.NoError(t, err)

	_, _, _, err = DecodeBytes(data[:len(data)-3])
	require.Error(t, err)
}

func TestMediaControlAndDiscoveryRanges(t *testing.T) {
	require.True(t, TypePing.IsMediaControl())
	require.False(t, TypePing.IsDiscovery())
	require.True(t, TypeACDSCreate.IsDiscovery())
	require.False(t, TypeACDSCreate.IsMediaControl())
}
