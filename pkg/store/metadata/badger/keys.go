package badger

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/marmos91/fragments/pkg/store/keys"
)

// Database Key Namespace Design
// ==============================
//
// BadgerDB is a key-value store, so prefixed keys organise the data into
// logical namespaces. Owner and fragment ids never contain ':' (enforced by
// keys.Validate), which keeps every prefix scan unambiguous.
//
// Data Type        Prefix  Key Format                  Value
// =============================================================================
// Record           "m:"    m:<owner>:<id>              storedRecord (CBOR)
// Order index      "o:"    o:<owner>:<seq, 8 bytes BE> fragment id (raw)
// Sequence         "seq:"  seq:order                   badger.Sequence state
//
// Listing an owner is a prefix scan over "o:<owner>:"; the big-endian
// sequence suffix makes byte order equal first-write order. The sequence
// number assigned to an id is kept inside its record so upserts preserve the
// position and deletes can find the index entry to remove.

const (
	// prefixRecord is the key prefix for fragment records
	prefixRecord = "m:"

	// prefixOrder is the key prefix for the per-owner insertion order index
	prefixOrder = "o:"

	// keySequence holds the monotonic counter used for the order index
	keySequence = "seq:order"
)

func keyRecord(ownerID, id string) []byte {
	return []byte(prefixRecord + ownerID + ":" + id)
}

func keyOrder(ownerID string, seq uint64) []byte {
	k := make([]byte, 0, len(prefixOrder)+len(ownerID)+1+8)
	k = append(k, prefixOrder...)
	k = append(k, ownerID...)
	k = append(k, ':')
	return binary.BigEndian.AppendUint64(k, seq)
}

func ownerOrderPrefix(ownerID string) []byte {
	return []byte(prefixOrder + ownerID + ":")
}

// parseRecordKey splits "m:<owner>:<id>" back into its key.
func parseRecordKey(k []byte) (keys.Key, error) {
	rest, ok := bytes.CutPrefix(k, []byte(prefixRecord))
	if !ok {
		return keys.Key{}, fmt.Errorf("not a record key: %q", k)
	}
	owner, id, ok := bytes.Cut(rest, []byte(":"))
	if !ok {
		return keys.Key{}, fmt.Errorf("malformed record key: %q", k)
	}
	return keys.Key{OwnerID: string(owner), ID: string(id)}, nil
}
