package memory

import (
	"context"
	"sync"
	"time"

	"moonshot-watcher/internal/domain"
	"moonshot-watcher/internal/storage"
)

// MintOriginStore is an in-memory implementation of storage.MintOriginStore.
type MintOriginStore struct {
	mu     sync.RWMutex
	byMint map[string]*domain.MintOrigin
}

// NewMintOriginStore creates a new in-memory mint origin store.
func NewMintOriginStore() *MintOriginStore {
	return &MintOriginStore{
		byMint: make(map[string]*domain.MintOrigin),
	}
}

// Insert adds a new record. Returns ErrDuplicateKey if mint already exists.
func (s *MintOriginStore) Insert(_ context.Context, o *domain.MintOrigin) error {
	if o == nil || o.Mint == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byMint[o.Mint]; exists {
		return storage.ErrDuplicateKey
	}

	originCopy := *o
	if originCopy.CreatedAt == 0 {
		originCopy.CreatedAt = time.Now().UnixMilli()
	}
	s.byMint[o.Mint] = &originCopy
	return nil
}

// Get retrieves the record for mint. Returns ErrNotFound if not exists.
func (s *MintOriginStore) Get(_ context.Context, mint string) (*domain.MintOrigin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, exists := s.byMint[mint]
	if !exists {
		return nil, storage.ErrNotFound
	}

	originCopy := *o
	return &originCopy, nil
}

// Len returns the number of stored records.
func (s *MintOriginStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byMint)
}

var _ storage.MintOriginStore = (*MintOriginStore)(nil)
