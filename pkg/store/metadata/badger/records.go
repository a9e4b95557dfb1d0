package badger

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/marmos91/fragments/pkg/errs"
	"github.com/marmos91/fragments/pkg/store/keys"
	"github.com/marmos91/fragments/pkg/store/metadata"
)

// getRecord loads the stored record at key inside txn. A missing key returns
// (nil, nil).
func getRecord(txn *badger.Txn, key []byte) (*storedRecord, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	var rec *storedRecord
	err = item.Value(func(val []byte) error {
		decoded, err := decodeRecord(val)
		if err != nil {
			return err
		}
		rec = decoded
		return nil
	})
	return rec, err
}

// WriteMetadata upserts a record.
//
// On first write the record is assigned the next order position and an index
// entry is added; later writes reuse the stored position.
//
// Parameters:
//   - ctx: Context for cancellation
//   - rec: Record to store; OwnerID and ID are validated
//
// Returns:
//   - error: ErrValidation for malformed keys, ErrStorage on database failure
func (s *BadgerMetadataStore) WriteMetadata(ctx context.Context, rec *metadata.Record) error {
	const op = "badger.WriteMetadata"

	if rec == nil {
		return errs.Validation(op, "record is required")
	}
	if err := keys.Validate(op, rec.OwnerID, rec.ID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return errs.Storage(op, err)
	}

	recordKey := keyRecord(rec.OwnerID, rec.ID)

	err := s.update(func(txn *badger.Txn) error {
		existing, err := getRecord(txn, recordKey)
		if err != nil {
			return err
		}

		stored := &storedRecord{Record: *rec}
		if existing != nil {
			stored.Seq = existing.Seq
		} else {
			seq, err := s.seq.Next()
			if err != nil {
				return fmt.Errorf("failed to allocate order position: %w", err)
			}
			stored.Seq = seq
			if err := txn.Set(keyOrder(rec.OwnerID, seq), []byte(rec.ID)); err != nil {
				return fmt.Errorf("failed to write order index: %w", err)
			}
		}

		data, err := encodeRecord(stored)
		if err != nil {
			return err
		}
		return txn.Set(recordKey, data)
	})
	if err != nil {
		return errs.Storage(op, err)
	}
	return nil
}

// ReadMetadata returns the record for (ownerID, id).
func (s *BadgerMetadataStore) ReadMetadata(ctx context.Context, ownerID, id string) (*metadata.Record, bool, error) {
	const op = "badger.ReadMetadata"

	if err := keys.Validate(op, ownerID, id); err != nil {
		return nil, false, err
	}
	if err := ctx.Err(); err != nil {
		return nil, false, errs.Storage(op, err)
	}

	var stored *storedRecord
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		stored, err = getRecord(txn, keyRecord(ownerID, id))
		return err
	})
	if err != nil {
		return nil, false, errs.Storage(op, err)
	}
	if stored == nil {
		return nil, false, nil
	}

	rec := stored.Record
	return &rec, true, nil
}

// ListIDs scans the owner's order index.
//
// Keys under "o:<owner>:" sort by their big-endian sequence suffix, so the
// scan yields ids in first-write order.
func (s *BadgerMetadataStore) ListIDs(ctx context.Context, ownerID string) ([]string, error) {
	const op = "badger.ListIDs"

	if err := keys.ValidateOwner(op, ownerID); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Storage(op, err)
	}

	ids := []string{}
	prefix := ownerOrderPrefix(ownerID)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			id, err := it.Item().ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("failed to read order entry: %w", err)
			}
			ids = append(ids, string(id))
		}
		return nil
	})
	if err != nil {
		return nil, errs.Storage(op, err)
	}
	return ids, nil
}

// DeleteMetadata removes the record and its order index entry.
func (s *BadgerMetadataStore) DeleteMetadata(ctx context.Context, ownerID, id string) (bool, error) {
	const op = "badger.DeleteMetadata"

	if err := keys.Validate(op, ownerID, id); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, errs.Storage(op, err)
	}

	recordKey := keyRecord(ownerID, id)
	existed := false

	err := s.update(func(txn *badger.Txn) error {
		existed = false

		existing, err := getRecord(txn, recordKey)
		if err != nil || existing == nil {
			return err
		}

		if err := txn.Delete(keyOrder(ownerID, existing.Seq)); err != nil {
			return fmt.Errorf("failed to delete order index: %w", err)
		}
		if err := txn.Delete(recordKey); err != nil {
			return fmt.Errorf("failed to delete record: %w", err)
		}
		existed = true
		return nil
	})
	if err != nil {
		return false, errs.Storage(op, err)
	}
	return existed, nil
}

// ListAllKeys implements metadata.Enumerator by scanning every record key.
func (s *BadgerMetadataStore) ListAllKeys(ctx context.Context) ([]keys.Key, error) {
	const op = "badger.ListAllKeys"

	if err := ctx.Err(); err != nil {
		return nil, errs.Storage(op, err)
	}

	var all []keys.Key
	prefix := []byte(prefixRecord)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			k, err := parseRecordKey(it.Item().Key())
			if err != nil {
				return err
			}
			all = append(all, k)
		}
		return nil
	})
	if err != nil {
		return nil, errs.Storage(op, err)
	}
	return all, nil
}
