package rdb

import (
	"github.com/golang/snappy"
	"github.com/valyala/gozstd"
)

// Compressor is the pluggable replacement for spec.md §4.6's single
// LZF sub-type (SPEC_FULL §4.6): the writer tries one, and falls back
// to an uncompressed byte-string whenever the compressed form is not
// actually smaller, exactly as spec.md's "smaller" rule requires.
type Compressor interface {
	// SubType is the encoded-value tag byte identifying this
	// compressor in the stream.
	SubType() byte
	Compress(src []byte) []byte
	Decompress(dst, src []byte) ([]byte, error)
}

type snappyCompressor struct{}

func (snappyCompressor) SubType() byte { return encCompressSnappy }

func (snappyCompressor) Compress(src []byte) []byte {
	return snappy.Encode(nil, src)
}

func (snappyCompressor) Decompress(dst, src []byte) ([]byte, error) {
	return snappy.Decode(dst, src)
}

type zstdCompressor struct{}

func (zstdCompressor) SubType() byte { return encCompressZstd }

func (zstdCompressor) Compress(src []byte) []byte {
	return gozstd.Compress(nil, src)
}

func (zstdCompressor) Decompress(dst, src []byte) ([]byte, error) {
	return gozstd.Decompress(dst, src)
}

// SnappyCompressor is the default, fast-path compressor.
var SnappyCompressor Compressor = snappyCompressor{}

// ZstdCompressor is the opt-in, higher-ratio compressor.
var ZstdCompressor Compressor = zstdCompressor{}

// compressorForSubType maps the low 6 bits readLength reports back to
// a Compressor; the full marker byte is restored first because the
// compressor sub-types are full bytes that already carry the 11 tag.
func compressorForSubType(subType byte) Compressor {
	switch lenEncoded | subType {
	case encCompressSnappy:
		return SnappyCompressor
	case encCompressZstd:
		return ZstdCompressor
	default:
		return nil
	}
}
