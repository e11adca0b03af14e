package storage

import "errors"

var (
	// ErrNotFound is returned by Get when no record exists for the key.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned by Insert when the key already exists.
	// Mint origins are write-once.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned for nil records or empty keys.
	ErrInvalidInput = errors.New("invalid input")
)
