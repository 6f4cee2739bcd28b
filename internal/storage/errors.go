package storage

import "errors"

// Errors shared by all stores.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a unique constraint (moniker, address,
	// registration uuid) would be violated.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrValidation is returned when a record fails validation. The record is
	// rejected as a unit: no index or table is partially updated.
	ErrValidation = errors.New("validation failed")
)
