// Package keys validates the composite (owner, id) key addressing both
// fragment stores.
//
// Keys become path segments in the filesystem and S3 blob backends and key
// components in the badger metadata backend, so anything that could escape a
// directory or collide with a separator is rejected up front instead of being
// silently ignored.
package keys

import (
	"unicode"

	"github.com/marmos91/fragments/pkg/errs"
)

// MaxLength is the longest owner id or fragment id accepted, in bytes.
const MaxLength = 255

// Key addresses a single fragment within its owner namespace.
type Key struct {
	OwnerID string
	ID      string
}

// String returns "owner/id".
func (k Key) String() string {
	return k.OwnerID + "/" + k.ID
}

// Validate checks both halves of a key. op names the calling operation for
// the error message.
func Validate(op, ownerID, id string) error {
	if err := validatePart(op, "owner id", ownerID); err != nil {
		return err
	}
	return validatePart(op, "fragment id", id)
}

// ValidateOwner checks an owner id on its own (used by listing).
func ValidateOwner(op, ownerID string) error {
	return validatePart(op, "owner id", ownerID)
}

func validatePart(op, what, value string) error {
	if value == "" {
		return errs.Validation(op, "%s is required", what)
	}
	if len(value) > MaxLength {
		return errs.Validation(op, "%s exceeds %d bytes", what, MaxLength)
	}
	if value == "." || value == ".." {
		return errs.Validation(op, "%s %q is reserved", what, value)
	}
	for _, r := range value {
		if r == '/' || r == '\\' || r == ':' || r == 0 || unicode.IsControl(r) {
			return errs.Validation(op, "%s %q contains invalid characters", what, value)
		}
	}
	return nil
}
