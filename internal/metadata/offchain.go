// Package metadata reads token metadata: the off-chain JSON a launch points to,
// and the Metaplex metadata account stored on chain.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"moonshot-watcher/internal/domain"
)

// Off-chain fetch defaults.
const (
	DefaultOffChainTimeout = 20 * time.Second
	MaxDocumentSize        = 1 << 20
)

// StatusError is returned when the metadata host answers with a non-2xx status.
type StatusError struct {
	URI        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URI, e.StatusCode)
}

// OffChainFetcher downloads the JSON document referenced by a CreateEvent URI.
type OffChainFetcher struct {
	client  *http.Client
	maxSize int64
}

// OffChainOption configures OffChainFetcher.
type OffChainOption func(*OffChainFetcher)

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) OffChainOption {
	return func(f *OffChainFetcher) {
		f.client = client
	}
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) OffChainOption {
	return func(f *OffChainFetcher) {
		f.client.Timeout = d
	}
}

// WithMaxSize bounds the accepted document size in bytes.
func WithMaxSize(n int64) OffChainOption {
	return func(f *OffChainFetcher) {
		f.maxSize = n
	}
}

// NewOffChainFetcher creates a fetcher with a 20 s timeout.
func NewOffChainFetcher(opts ...OffChainOption) *OffChainFetcher {
	f := &OffChainFetcher{
		client:  &http.Client{Timeout: DefaultOffChainTimeout},
		maxSize: MaxDocumentSize,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch GETs uri and decodes it as TokenMetadata. Unknown fields are ignored.
func (f *OffChainFetcher) Fetch(ctx context.Context, uri string) (*domain.TokenMetadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", uri, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, f.maxSize))
		return nil, &StatusError{URI: uri, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", uri, err)
	}
	if int64(len(body)) > f.maxSize {
		return nil, fmt.Errorf("fetch %s: document exceeds %d bytes", uri, f.maxSize)
	}

	var meta domain.TokenMetadata
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, fmt.Errorf("decode %s: %w", uri, err)
	}

	return &meta, nil
}
