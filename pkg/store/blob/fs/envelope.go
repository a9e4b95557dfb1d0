package fs

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/zeebo/blake3"
)

// Envelope layout
// ===============
//
// Every blob file starts with a fixed header followed by the (possibly
// compressed) payload:
//
//	offset size field
//	0      4    magic "FRAG"
//	4      1    format version (1)
//	5      1    compression tag
//	6      8    original payload size, big-endian
//	14     32   BLAKE3-256 digest of the original payload
//	46     ...  payload
//
// The digest is taken over the uncompressed bytes, so a read detects both
// on-disk corruption and a faulty decompression.

const (
	envelopeMagic    = "FRAG"
	envelopeVersion  = 1
	blake3DigestSize = 32
	headerSize       = 4 + 1 + 1 + 8 + blake3DigestSize

	// maxPayloadSize bounds the size field read from disk, so a corrupt
	// header cannot drive a huge allocation.
	maxPayloadSize = 1 << 30

	// maxLZ4Ratio is the largest expansion an LZ4 block can produce.
	maxLZ4Ratio = 255
)

// errIntegrity marks a blob whose contents fail verification.
var errIntegrity = errors.New("blob integrity check failed")

// header is the decoded envelope header.
type header struct {
	tag    CompressionTag
	size   uint64
	digest [blake3DigestSize]byte
}

// encodeEnvelope compresses data and wraps it in an envelope.
func encodeEnvelope(data []byte, mode CompressionMode) ([]byte, error) {
	payload, tag, err := compress(data, mode)
	if err != nil {
		return nil, err
	}

	digest := blake3.Sum256(data)

	out := make([]byte, headerSize, headerSize+len(payload))
	copy(out[0:4], envelopeMagic)
	out[4] = envelopeVersion
	out[5] = byte(tag)
	binary.BigEndian.PutUint64(out[6:14], uint64(len(data)))
	copy(out[14:headerSize], digest[:])

	return append(out, payload...), nil
}

// parseHeader validates and decodes the envelope header.
func parseHeader(raw []byte) (header, error) {
	var h header
	if len(raw) < headerSize {
		return h, fmt.Errorf("%w: truncated header (%d bytes)", errIntegrity, len(raw))
	}
	if string(raw[0:4]) != envelopeMagic {
		return h, fmt.Errorf("%w: bad magic %q", errIntegrity, raw[0:4])
	}
	if raw[4] != envelopeVersion {
		return h, fmt.Errorf("%w: unsupported version %d", errIntegrity, raw[4])
	}

	h.tag = CompressionTag(raw[5])
	h.size = binary.BigEndian.Uint64(raw[6:14])
	if h.size > maxPayloadSize {
		return h, fmt.Errorf("%w: payload size %d exceeds %d", errIntegrity, h.size, maxPayloadSize)
	}
	copy(h.digest[:], raw[14:headerSize])

	payload := uint64(len(raw) - headerSize)
	switch h.tag {
	case CompressionNone:
		if h.size != payload {
			return h, fmt.Errorf("%w: payload is %d bytes, header says %d", errIntegrity, payload, h.size)
		}
	case CompressionLZ4:
		if h.size > payload*maxLZ4Ratio {
			return h, fmt.Errorf("%w: header size %d impossible for %d lz4 bytes", errIntegrity, h.size, payload)
		}
	}
	return h, nil
}

// decodeEnvelope returns the original payload after verifying its digest.
func decodeEnvelope(raw []byte) ([]byte, error) {
	h, err := parseHeader(raw)
	if err != nil {
		return nil, err
	}

	data, err := decompress(raw[headerSize:], h.tag, int(h.size))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errIntegrity, err)
	}

	if blake3.Sum256(data) != h.digest {
		return nil, fmt.Errorf("%w: digest mismatch", errIntegrity)
	}
	return data, nil
}
