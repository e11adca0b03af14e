package storage

import (
	"context"

	"moonshot-watcher/internal/domain"
)

// MintOriginStore provides access to memoized mint origin checks.
// A mint's origin never changes, so records are insert-only.
type MintOriginStore interface {
	// Insert adds a new record. Returns ErrDuplicateKey if mint exists.
	Insert(ctx context.Context, o *domain.MintOrigin) error

	// Get retrieves the record for mint. Returns ErrNotFound if not exists.
	Get(ctx context.Context, mint string) (*domain.MintOrigin, error)
}
