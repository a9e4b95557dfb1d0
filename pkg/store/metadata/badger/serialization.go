package badger

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/marmos91/fragments/pkg/store/metadata"
)

// Serialization Strategy
// ======================
//
// Records are encoded with CBOR using Core Deterministic Encoding: the same
// record always produces identical bytes, and the encoding is several times
// smaller than JSON for the short string fields a record carries.
// Timestamps are written as RFC 3339 strings with nanoseconds so they stay
// readable in a raw dump and round-trip without precision loss.

// storedRecord is the on-disk value under an "m:" key.
type storedRecord struct {
	// Seq is the order index position assigned on first write
	Seq uint64 `cbor:"seq"`

	// Record is the fragment metadata
	Record metadata.Record `cbor:"record"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("badger: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("badger: CBOR decoder initialization failed: " + err.Error())
	}
}

// encodeRecord serializes a stored record to CBOR bytes.
//
// Parameters:
//   - rec: The record with its order position
//
// Returns:
//   - []byte: CBOR-encoded bytes
//   - error: Encoding error if serialization fails
func encodeRecord(rec *storedRecord) ([]byte, error) {
	data, err := encMode.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return data, nil
}

// decodeRecord is the inverse of encodeRecord.
func decodeRecord(data []byte) (*storedRecord, error) {
	var rec storedRecord
	if err := decMode.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return &rec, nil
}
