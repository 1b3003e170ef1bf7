package nscache

import (
	"bytes"
	"compress/gzip"
	"errors"
	"io"

	"github.com/goforj/nscache/cachecore"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
)

// CompressionCodec represents a value compression algorithm.
type CompressionCodec = cachecore.CompressionCodec

const (
	CompressionNone   = cachecore.CompressionNone
	CompressionGzip   = cachecore.CompressionGzip
	CompressionSnappy = cachecore.CompressionSnappy
	CompressionZstd   = cachecore.CompressionZstd
)

var (
	compressMagic = []byte("CMP1")

	ErrValueTooLarge      = errors.New("nscache: value exceeds max size")
	ErrUnsupportedCodec   = errors.New("nscache: unsupported compression codec")
	ErrCorruptCompression = errors.New("nscache: corrupt compressed payload")
)

var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	zstdDecoder, _ = zstd.NewReader(nil)
)

func parseCompression(name string) (CompressionCodec, error) {
	switch CompressionCodec(name) {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionGzip, CompressionSnappy, CompressionZstd:
		return CompressionCodec(name), nil
	}
	return "", cachecore.InvalidParam("compression", "compression must be one of none, gzip, snappy, zstd")
}

// encodeValue enforces max before and after compression. Compressed
// payloads are framed as magic + codec byte + body. Uncompressed values are
// stored as is unless they start with the magic, in which case they get a
// raw 'n' frame so decodeValue cannot mistake them for a compressed body.
func encodeValue(codec CompressionCodec, max int, value []byte) ([]byte, error) {
	if max > 0 && len(value) > max {
		return nil, ErrValueTooLarge
	}
	var out []byte
	switch codec {
	case "", CompressionNone:
		if bytes.HasPrefix(value, compressMagic) {
			return append(frame('n'), value...), nil
		}
		return value, nil
	case CompressionGzip:
		var buf bytes.Buffer
		buf.Write(compressMagic)
		_ = buf.WriteByte('g')
		zw, _ := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
		if _, err := zw.Write(value); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		out = buf.Bytes()
	case CompressionSnappy:
		out = append(frame('s'), snappy.Encode(nil, value)...)
	case CompressionZstd:
		out = zstdEncoder.EncodeAll(value, frame('z'))
	default:
		return nil, ErrUnsupportedCodec
	}
	if max > 0 && len(out) > max {
		return nil, ErrValueTooLarge
	}
	return out, nil
}

func frame(codec byte) []byte {
	out := make([]byte, 0, len(compressMagic)+1)
	out = append(out, compressMagic...)
	return append(out, codec)
}

func decodeValue(in []byte) ([]byte, error) {
	if len(in) < len(compressMagic)+1 {
		return in, nil
	}
	if !bytes.Equal(in[:len(compressMagic)], compressMagic) {
		return in, nil
	}
	codec := in[len(compressMagic)]
	payload := in[len(compressMagic)+1:]
	switch codec {
	case 'n':
		return payload, nil
	case 'g':
		gr, err := gzip.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, ErrCorruptCompression
		}
		defer gr.Close()
		out, err := io.ReadAll(gr)
		if err != nil {
			return nil, ErrCorruptCompression
		}
		return out, nil
	case 's':
		out, err := snappy.Decode(nil, payload)
		if err != nil {
			return nil, ErrCorruptCompression
		}
		return out, nil
	case 'z':
		out, err := zstdDecoder.DecodeAll(payload, nil)
		if err != nil {
			return nil, ErrCorruptCompression
		}
		return out, nil
	default:
		return nil, ErrUnsupportedCodec
	}
}
