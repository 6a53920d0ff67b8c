package wire

// Options bits for the single options byte prefixing a media
// payload: a compressed-flag bit lives in an options byte the codec
// threads through its typed builders, rather than in the fixed frame
// header.
const (
	OptCompressed byte = 1 << 0
)

// compressibleTypes are the media types large enough to benefit from
// an auto-compress-above-threshold idiom.
var compressibleTypes = map[Type]bool{
	TypeImageFrame: true,
	TypeASCIIFrame: true,
}

// EncodeMediaFrame builds a media-type packet, auto-compressing the
// payload when it is eligible (t is a compressible type, size clears
// CompressThreshold, and compression is actually smaller) before
// delegating to Encode. The options byte is always present as the
// first payload byte for compressible types, so Decode/DecodeMediaFrame
// can always tell whether the rest is compressed.
func EncodeMediaFrame(t Type, raw []byte, clientID uint32) ([]byte, error) {
	if !compressibleTypes[t] {
		return Encode(t, raw, clientID)
	}

	opts := byte(0)
	body := raw
	if shouldCompress(len(raw)) {
		if c, err := compress(raw); err == nil {
			opts |= OptCompressed
			body = c
		}
		// ErrCompressionIneffective: fall through uncompressed, matching
		// a "skip if ineffective" rule.
	}

	payload := make([]byte, 1+len(body))
	payload[0] = opts
	copy(payload[1:], body)
	return Encode(t, payload, clientID)
}

// DecodeMediaFrame decodes a frame already produced by Decode/Decode
// Bytes for a compressible type, stripping the options byte and
// inflating the body when OptCompressed is set.
func DecodeMediaFrame(t Type, payload []byte) ([]byte, error) {
	if !compressibleTypes[t] {
		return payload, nil
	}
	if len(payload) < 1 {
		return nil, ErrTruncated
	}
	opts := payload[0]
	body := payload[1:]
	if opts&OptCompressed != 0 {
		return decompress(body)
	}
	return body, nil
}
