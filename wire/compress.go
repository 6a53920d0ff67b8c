package wire

import (
	"bytes"
	"compress/zlib"
	"errors"
	"io"
)

// CompressThreshold is the payload size, in bytes, at or above which media
// builders attempt compression before encoding (an
// auto-compress-above-threshold idiom).
const CompressThreshold = 512

// compressLevel is the zlib level used throughout: a
// moderate trade-off between ratio and CPU cost for per-frame
// compression on the media send path.
const compressLevel = 6

// maxDecompressedSize bounds Decompress's output, guarding against a
// decompression bomb arriving on the wire.
const maxDecompressedSize = 10 * 1024 * 1024

// ErrCompressionIneffective is returned by compress when the
// compressed form is not smaller than the input; callers should send
// the payload uncompressed in that case rather than treating it as
// fatal.
var ErrCompressionIneffective = errors.New("wire: compression not effective")

// ErrDecompressionBomb is returned by decompress when the inflated
// output would exceed maxDecompressedSize.
var ErrDecompressionBomb = errors.New("wire: decompressed payload too large")

func compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("wire: cannot compress empty payload")
	}

	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, compressLevel)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	if buf.Len() >= len(data) {
		return nil, ErrCompressionIneffective
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("wire: cannot decompress empty payload")
	}

	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var out bytes.Buffer
	limited := io.LimitReader(r, maxDecompressedSize+1)
	if _, err := io.Copy(&out, limited); err != nil {
		return nil, err
	}
	if out.Len() > maxDecompressedSize {
		return nil, ErrDecompressionBomb
	}
	return out.Bytes(), nil
}

// shouldCompress reports whether a payload of this size should be
// offered compression before encoding.
func shouldCompress(size int) bool {
	return size >= CompressThreshold
}
