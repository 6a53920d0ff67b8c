package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeMediaFrameCompressesLargeRepetitive(t *testing.T) {
	raw := bytes.Repeat([]byte("ascii-frame-row "), 100)
	encoded, err := EncodeMediaFrame(TypeASCIIFrame, raw, 7)
	require.NoError(t, err)

	decodedType, payload, clientID, err := DecodeBytes(encoded)
	require.NoError(t, err)
	require.Equal(t, TypeASCIIFrame, decodedType)
	require.Equal(t, uint32(7), clientID)

	out, err := DecodeMediaFrame(decodedType, payload)
	require.NoError(t, err)
	require.Equal(t, raw, out)
	require.Less(t, len(payload), len(raw))
}

func TestEncodeMediaFrameSkipsIncompressibleSmallPayload(t *testing.T) {
	raw := []byte("hi")
	encoded, err := EncodeMediaFrame(TypeASCIIFrame, raw, 0)
	require.NoError(t, err)

	decodedType, payload, _, err := DecodeBytes(encoded)
	require.NoError(t, err)

	out, err := DecodeMediaFrame(decodedType, payload)
	require.NoError(t, err)
	require.Equal(t, raw, out)
	require.Equal(t, byte(0), payload[0])
}

func TestEncodeMediaFrameNonCompressibleTypePassesThrough(t *testing.T) {
	raw := []byte{1, 2, 3}
	encoded, err := EncodeMediaFrame(TypePing, raw, 0)
	require.NoError(t, err)

	decodedType, payload, _, err := DecodeBytes(encoded)
	require.NoError(t, err)

	out, err := DecodeMediaFrame(decodedType, payload)
	require.NoError(t, err)
	require.Equal(t, raw, out)
}

func TestDecompressRejectsGarbage(t *testing.T) {
	_, err := decompress([]byte{0xde, 0xad, 0xbe, 0xef})
	require.Error(t, err)
}
