package storage

import "errors"

var (
	// ErrNotFound is returned when an entity, chunk or alias has no record.
	ErrNotFound = errors.New("record not found")

	// ErrTypeConflict is returned when an upsert reuses an entity id that
	// is already registered under a different entity type.
	ErrTypeConflict = errors.New("entity id registered under another type")

	// ErrSerializationFailed wraps codec errors for stored records.
	ErrSerializationFailed = errors.New("serialization failed")

	// ErrTruncatedData is returned for a stored value too short to decode.
	ErrTruncatedData = errors.New("truncated data")
)
