package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"moonshot-watcher/internal/domain"
	"moonshot-watcher/internal/observability"
	"moonshot-watcher/internal/storage"
)

// MintOriginStore implements storage.MintOriginStore using Redis string keys.
// Records have no expiry; a mint's origin never changes.
type MintOriginStore struct {
	client *Client
}

// NewMintOriginStore creates a new MintOriginStore.
func NewMintOriginStore(client *Client) *MintOriginStore {
	return &MintOriginStore{client: client}
}

// Compile-time interface check.
var _ storage.MintOriginStore = (*MintOriginStore)(nil)

type mintOriginRecord struct {
	Mint              string `json:"mint"`
	Qualified         bool   `json:"qualified"`
	EarliestSignature string `json:"earliest_signature"`
	CheckedAt         int64  `json:"checked_at"`
	CreatedAt         int64  `json:"created_at"`
}

// Insert adds a new record with SETNX. Returns ErrDuplicateKey if mint exists.
func (s *MintOriginStore) Insert(ctx context.Context, o *domain.MintOrigin) (err error) {
	if o == nil || o.Mint == "" {
		return storage.ErrInvalidInput
	}

	start := time.Now()
	defer func() {
		observability.RecordDBQuery("redis", "insert_mint_origin", time.Since(start).Seconds(), queryError(err))
	}()

	rec := mintOriginRecord{
		Mint:              o.Mint,
		Qualified:         o.Qualified,
		EarliestSignature: o.EarliestSignature,
		CheckedAt:         o.CheckedAt,
		CreatedAt:         o.CreatedAt,
	}
	if rec.CreatedAt == 0 {
		rec.CreatedAt = time.Now().UnixMilli()
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal mint origin: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.client.key("mint_origin", o.Mint), payload, 0).Result()
	if err != nil {
		return fmt.Errorf("insert mint origin: %w", err)
	}
	if !ok {
		return storage.ErrDuplicateKey
	}
	return nil
}

// Get retrieves the record for mint. Returns ErrNotFound if not exists.
func (s *MintOriginStore) Get(ctx context.Context, mint string) (o *domain.MintOrigin, err error) {
	start := time.Now()
	defer func() {
		observability.RecordDBQuery("redis", "get_mint_origin", time.Since(start).Seconds(), queryError(err))
	}()

	payload, err := s.client.Get(ctx, s.client.key("mint_origin", mint)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get mint origin: %w", err)
	}

	var rec mintOriginRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("decode mint origin %s: %w", mint, err)
	}

	return &domain.MintOrigin{
		Mint:              rec.Mint,
		Qualified:         rec.Qualified,
		EarliestSignature: rec.EarliestSignature,
		CheckedAt:         rec.CheckedAt,
		CreatedAt:         rec.CreatedAt,
	}, nil
}

func queryError(err error) error {
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrDuplicateKey) {
		return nil
	}
	return err
}
