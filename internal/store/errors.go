package store

import "errors"

// Storage error taxonomy: NotFound is recoverable for lookups,
// StorageFailure is logged and the operation abandoned, DataCorruption
// means the specific entity is skipped but the store itself stays usable.
var (
	ErrNotFound      = errors.New("store: not found")
	ErrStorageFailure = errors.New("store: storage failure")
	ErrDataCorruption = errors.New("store: data corruption")
)
