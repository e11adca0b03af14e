package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"moonshot-watcher/internal/domain"
	"moonshot-watcher/internal/observability"
	"moonshot-watcher/internal/storage"
)

// MintOriginStore implements storage.MintOriginStore using PostgreSQL.
type MintOriginStore struct {
	pool *Pool
}

// NewMintOriginStore creates a new MintOriginStore.
func NewMintOriginStore(pool *Pool) *MintOriginStore {
	return &MintOriginStore{pool: pool}
}

// Compile-time interface check.
var _ storage.MintOriginStore = (*MintOriginStore)(nil)

// Insert adds a new record. Returns ErrDuplicateKey if mint exists.
func (s *MintOriginStore) Insert(ctx context.Context, o *domain.MintOrigin) (err error) {
	if o == nil || o.Mint == "" {
		return storage.ErrInvalidInput
	}

	start := time.Now()
	defer func() {
		observability.RecordDBQuery("postgres", "insert_mint_origin", time.Since(start).Seconds(), queryError(err))
	}()

	query := `
		INSERT INTO mint_origins (
			mint, qualified, earliest_signature, checked_at
		) VALUES ($1, $2, $3, $4)
	`

	_, err = s.pool.Exec(ctx, query,
		o.Mint,
		o.Qualified,
		o.EarliestSignature,
		o.CheckedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert mint origin: %w", err)
	}
	return nil
}

// Get retrieves the record for mint. Returns ErrNotFound if not exists.
func (s *MintOriginStore) Get(ctx context.Context, mint string) (o *domain.MintOrigin, err error) {
	start := time.Now()
	defer func() {
		observability.RecordDBQuery("postgres", "get_mint_origin", time.Since(start).Seconds(), queryError(err))
	}()

	query := `
		SELECT mint, qualified, earliest_signature, checked_at, created_at
		FROM mint_origins
		WHERE mint = $1
	`

	row := s.pool.QueryRow(ctx, query, mint)
	o, err = scanMintOrigin(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get mint origin: %w", err)
	}
	return o, nil
}

// scanMintOrigin scans a single row into MintOrigin.
func scanMintOrigin(row pgx.Row) (*domain.MintOrigin, error) {
	var o domain.MintOrigin

	err := row.Scan(
		&o.Mint,
		&o.Qualified,
		&o.EarliestSignature,
		&o.CheckedAt,
		&o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &o, nil
}
