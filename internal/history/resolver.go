// Package history resolves the tokens a creator previously launched through the watched program.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"moonshot-watcher/internal/domain"
	"moonshot-watcher/internal/observability"
	"moonshot-watcher/internal/solana"
	"moonshot-watcher/internal/storage"
)

// DefaultConcurrency is the number of mints inspected in parallel.
const DefaultConcurrency = 4

// ErrNoSignatures is returned when a mint has no transaction history to anchor on.
var ErrNoSignatures = errors.New("mint has no signatures")

// MetadataReader reads the on-chain metadata of a mint.
type MetadataReader interface {
	Fetch(ctx context.Context, mint solanago.PublicKey) (*domain.OnChainMetadata, error)
}

// Resolver walks a creator's token accounts and keeps the mints whose earliest
// transaction invoked the watched program.
type Resolver struct {
	rpc         solana.RPCClient
	metadata    MetadataReader
	origins     storage.MintOriginStore
	programID   string
	concurrency int
	log         logrus.FieldLogger
	now         func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithOriginStore memoizes qualification answers in store.
func WithOriginStore(store storage.MintOriginStore) Option {
	return func(r *Resolver) {
		r.origins = store
	}
}

// WithConcurrency sets how many mints are inspected at once.
func WithConcurrency(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(r *Resolver) {
		r.log = log
	}
}

// WithProgramID overrides the program a mint's earliest transaction must invoke.
func WithProgramID(id solanago.PublicKey) Option {
	return func(r *Resolver) {
		r.programID = id.String()
	}
}

// New creates a Resolver.
func New(rpc solana.RPCClient, metadata MetadataReader, opts ...Option) *Resolver {
	r := &Resolver{
		rpc:         rpc,
		metadata:    metadata,
		programID:   solana.WatchedProgramID.String(),
		concurrency: DefaultConcurrency,
		log:         logrus.StandardLogger(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the on-chain metadata of every qualifying mint held by creator,
// in token-account enumeration order.
// Per-mint failures are logged and the mint skipped; only the token account
// enumeration error is returned.
func (r *Resolver) Resolve(ctx context.Context, creator solanago.PublicKey) ([]*domain.OnChainMetadata, error) {
	mints, err := r.Mints(ctx, creator)
	if err != nil {
		return nil, err
	}

	results := make([]*domain.OnChainMetadata, len(mints))

	var g errgroup.Group
	g.SetLimit(r.concurrency)

	for i, mint := range mints {
		i, mint := i, mint
		g.Go(func() error {
			log := r.log.WithFields(logrus.Fields{"creator": creator.String(), "mint": mint})

			ok, err := r.Qualifies(ctx, mint)
			if err != nil {
				log.WithError(err).Warn("creator history: skipping mint")
				return nil
			}
			if !ok {
				return nil
			}

			key, err := solanago.PublicKeyFromBase58(mint)
			if err != nil {
				log.WithError(err).Warn("creator history: invalid mint")
				return nil
			}

			md, err := r.metadata.Fetch(ctx, key)
			if err != nil {
				log.WithError(err).Warn("creator history: metadata unavailable")
				return nil
			}
			results[i] = md
			return nil
		})
	}
	_ = g.Wait()

	out := make([]*domain.OnChainMetadata, 0, len(results))
	for _, md := range results {
		if md != nil {
			out = append(out, md)
		}
	}
	return out, nil
}

// Mints lists the distinct mints of creator's token accounts in first-seen order.
// Accounts the node did not return in parsed form are discarded.
func (r *Resolver) Mints(ctx context.Context, creator solanago.PublicKey) ([]string, error) {
	accounts, err := r.rpc.GetTokenAccountsByOwner(ctx, creator.String(), solana.TokenProgramID.String())
	if err != nil {
		return nil, fmt.Errorf("token accounts of %s: %w", creator, err)
	}

	seen := make(map[string]struct{}, len(accounts))
	mints := make([]string, 0, len(accounts))
	for _, acc := range accounts {
		if !acc.Parsed || acc.Mint == "" {
			continue
		}
		if _, dup := seen[acc.Mint]; dup {
			continue
		}
		seen[acc.Mint] = struct{}{}
		mints = append(mints, acc.Mint)
	}
	return mints, nil
}

// EarliestSignature pages backwards through the mint's signatures and returns the oldest one.
// Returns ErrNoSignatures when the first page is empty.
func (r *Resolver) EarliestSignature(ctx context.Context, mint string) (string, error) {
	var (
		before   string
		earliest string
	)
	for {
		page, err := r.rpc.GetSignaturesForAddress(ctx, mint, &solana.SignaturesOpts{
			Before: before,
			Limit:  solana.MaxSignaturesPage,
		})
		if err != nil {
			return "", fmt.Errorf("signatures of %s: %w", mint, err)
		}
		if len(page) > 0 {
			earliest = page[len(page)-1].Signature
			before = earliest
		}
		if len(page) < solana.MaxSignaturesPage {
			break
		}
	}

	if earliest == "" {
		return "", ErrNoSignatures
	}
	return earliest, nil
}

// Qualifies reports whether the mint's earliest transaction invoked the watched program.
func (r *Resolver) Qualifies(ctx context.Context, mint string) (bool, error) {
	if origin := r.cached(ctx, mint); origin != nil {
		return origin.Qualified, nil
	}

	sig, err := r.EarliestSignature(ctx, mint)
	if err != nil {
		return false, err
	}

	tx, err := r.rpc.GetTransaction(ctx, sig)
	if err != nil {
		return false, fmt.Errorf("earliest transaction %s of %s: %w", sig, mint, err)
	}
	if tx == nil {
		return false, fmt.Errorf("earliest transaction %s of %s: not found", sig, mint)
	}

	qualified := tx.Message.HasProgram(r.programID)
	r.log.WithFields(logrus.Fields{
		"mint":       mint,
		"signature":  sig,
		"slot":       tx.Slot,
		"block_time": tx.BlockTime,
		"qualified":  qualified,
	}).Debug("mint origin resolved")
	r.remember(ctx, &domain.MintOrigin{
		Mint:              mint,
		Qualified:         qualified,
		EarliestSignature: sig,
		CheckedAt:         r.now().UnixMilli(),
	})
	return qualified, nil
}

func (r *Resolver) cached(ctx context.Context, mint string) *domain.MintOrigin {
	if r.origins == nil {
		return nil
	}

	origin, err := r.origins.Get(ctx, mint)
	switch {
	case err == nil:
		observability.RecordCacheLookup("hit")
		return origin
	case errors.Is(err, storage.ErrNotFound):
		observability.RecordCacheLookup("miss")
	default:
		observability.RecordCacheLookup("error")
		r.log.WithError(err).WithField("mint", mint).Warn("mint origin cache lookup failed")
	}
	return nil
}

func (r *Resolver) remember(ctx context.Context, origin *domain.MintOrigin) {
	if r.origins == nil {
		return
	}
	err := r.origins.Insert(ctx, origin)
	if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		r.log.WithError(err).WithField("mint", origin.Mint).Warn("mint origin cache write failed")
	}
}
