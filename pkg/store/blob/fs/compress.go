package fs

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionTag identifies the compression applied to a stored payload.
// Tags are written into every envelope header; changing their values breaks
// existing data directories.
type CompressionTag uint8

const (
	// CompressionNone stores the payload verbatim. Used for images and any
	// payload that does not shrink.
	CompressionNone CompressionTag = 0

	// CompressionLZ4 applies LZ4 block compression.
	CompressionLZ4 CompressionTag = 1

	// CompressionZstd applies zstd at the default level. Best ratio for
	// text, CSV, JSON and YAML payloads.
	CompressionZstd CompressionTag = 2
)

// String returns the human-readable name of a compression tag.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", tag)
	}
}

// CompressionMode selects how WriteBlob picks a tag.
type CompressionMode string

const (
	ModeNone CompressionMode = "none"
	ModeLZ4  CompressionMode = "lz4"
	ModeZstd CompressionMode = "zstd"

	// ModeAuto uses zstd for UTF-8 text payloads and stores everything else
	// verbatim.
	ModeAuto CompressionMode = "auto"
)

// ParseCompressionMode parses a configured mode. The empty string means auto.
func ParseCompressionMode(name string) (CompressionMode, error) {
	switch CompressionMode(name) {
	case "":
		return ModeAuto, nil
	case ModeNone, ModeLZ4, ModeZstd, ModeAuto:
		return CompressionMode(name), nil
	default:
		return "", fmt.Errorf("unknown compression mode: %q", name)
	}
}

// errIncompressible is returned by the compressors when the output would not
// be smaller than the input.
var errIncompressible = errors.New("data is incompressible")

// compress applies mode to data and returns the tag actually used. A payload
// that does not shrink is always stored with CompressionNone.
func compress(data []byte, mode CompressionMode) ([]byte, CompressionTag, error) {
	var tag CompressionTag
	switch mode {
	case ModeNone:
		return data, CompressionNone, nil
	case ModeLZ4:
		tag = CompressionLZ4
	case ModeZstd:
		tag = CompressionZstd
	case ModeAuto, "":
		if len(data) == 0 || !utf8.Valid(data) {
			return data, CompressionNone, nil
		}
		tag = CompressionZstd
	default:
		return nil, 0, fmt.Errorf("unsupported compression mode: %q", mode)
	}

	var (
		out []byte
		err error
	)
	if tag == CompressionLZ4 {
		out, err = compressLZ4(data)
	} else {
		out, err = compressZstd(data)
	}
	if errors.Is(err, errIncompressible) {
		return data, CompressionNone, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return out, tag, nil
}

// decompress reverses compress. The output length must equal originalSize.
func decompress(payload []byte, tag CompressionTag, originalSize int) ([]byte, error) {
	switch tag {
	case CompressionNone:
		if len(payload) != originalSize {
			return nil, fmt.Errorf("uncompressed payload: size %d does not match expected %d",
				len(payload), originalSize)
		}
		return payload, nil
	case CompressionLZ4:
		return decompressLZ4(payload, originalSize)
	case CompressionZstd:
		return decompressZstd(payload, originalSize)
	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))

	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}

	// CompressBlock returns 0 for incompressible input
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func decompressLZ4(compressed []byte, originalSize int) ([]byte, error) {
	destination := make([]byte, originalSize)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != originalSize {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, originalSize)
	}
	return destination, nil
}

// zstd.Encoder and zstd.Decoder are safe for concurrent use through
// EncodeAll/DecodeAll, so one of each is shared.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("fs: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxPayloadSize))
	if err != nil {
		panic("fs: zstd decoder initialization failed: " + err.Error())
	}
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

// zstdPrealloc caps the buffer reserved up front from the header size;
// DecodeAll grows it if the frame really is larger.
const zstdPrealloc = 4 << 20

func decompressZstd(compressed []byte, originalSize int) ([]byte, error) {
	result, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, min(originalSize, zstdPrealloc)))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(result) != originalSize {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), originalSize)
	}
	return result, nil
}
