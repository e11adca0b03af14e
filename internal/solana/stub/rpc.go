package stub

import (
	"context"
	"errors"
	"sync"

	"moonshot-watcher/internal/solana"
)

// ErrNotFound is returned when a transaction is not found.
var ErrNotFound = errors.New("not found")

// RPCClient implements solana.RPCClient for testing.
// It is safe for concurrent use.
type RPCClient struct {
	mu sync.RWMutex

	Transactions  map[string]*solana.Transaction
	Signatures    map[string][]solana.SignatureInfo // newest first, as the node returns them
	Accounts      map[string]*solana.AccountInfo
	TokenAccounts map[string][]solana.TokenAccount
	// Errors maps "method:key" to a forced error, e.g. "getSignaturesForAddress:<mint>".
	Errors map[string]error

	calls map[string]int
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Transactions:  make(map[string]*solana.Transaction),
		Signatures:    make(map[string][]solana.SignatureInfo),
		Accounts:      make(map[string]*solana.AccountInfo),
		TokenAccounts: make(map[string][]solana.TokenAccount),
		Errors:        make(map[string]error),
		calls:         make(map[string]int),
	}
}

var _ solana.RPCClient = (*RPCClient)(nil)

func (c *RPCClient) record(method, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[method]++
	return c.Errors[method+":"+key]
}

// Calls returns how many times method was invoked.
func (c *RPCClient) Calls(method string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.calls[method]
}

// GetTransaction retrieves a transaction by signature from the stub store.
// Unknown signatures yield nil, matching the node's null result.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	if err := c.record("getTransaction", signature); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Transactions[signature], nil
}

// GetSignaturesForAddress pages through the stored signatures the way the node does:
// newest first, starting after opts.Before, at most opts.Limit entries.
func (c *RPCClient) GetSignaturesForAddress(_ context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	if err := c.record("getSignaturesForAddress", address); err != nil {
		return nil, err
	}

	c.mu.RLock()
	sigs := c.Signatures[address]
	c.mu.RUnlock()

	start := 0
	limit := solana.MaxSignaturesPage
	if opts != nil {
		if opts.Before != "" {
			start = len(sigs)
			for i, s := range sigs {
				if s.Signature == opts.Before {
					start = i + 1
					break
				}
			}
		}
		if opts.Limit > 0 && opts.Limit < limit {
			limit = opts.Limit
		}
	}

	end := start + limit
	if end > len(sigs) {
		end = len(sigs)
	}
	if start >= end {
		return nil, nil
	}

	page := make([]solana.SignatureInfo, end-start)
	copy(page, sigs[start:end])
	return page, nil
}

// GetAccountInfo returns the stored account or nil.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	if err := c.record("getAccountInfo", pubkey); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Accounts[pubkey], nil
}

// GetTokenAccountsByOwner returns the stored token accounts of owner.
func (c *RPCClient) GetTokenAccountsByOwner(_ context.Context, owner, _ string) ([]solana.TokenAccount, error) {
	if err := c.record("getTokenAccountsByOwner", owner); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.TokenAccounts[owner], nil
}

// AddTransaction adds a transaction to the stub store.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Transactions[tx.Signature] = tx
}

// AddSignatures adds signatures for an address to the stub store.
func (c *RPCClient) AddSignatures(address string, sigs []solana.SignatureInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Signatures[address] = sigs
}

// AddAccount stores account info under pubkey.
func (c *RPCClient) AddAccount(pubkey string, info *solana.AccountInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Accounts[pubkey] = info
}

// AddTokenAccounts stores token accounts for owner.
func (c *RPCClient) AddTokenAccounts(owner string, accounts []solana.TokenAccount) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.TokenAccounts[owner] = accounts
}

// SetError forces method to fail for key.
func (c *RPCClient) SetError(method, key string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Errors[method+":"+key] = err
}
