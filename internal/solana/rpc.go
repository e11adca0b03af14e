package solana

import "context"

// RPCClient defines Solana RPC HTTP interface.
type RPCClient interface {
	// GetTransaction retrieves a finalized transaction in jsonParsed encoding.
	// Returns nil if the transaction is not found.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	// GetSignaturesForAddress retrieves signatures for an address with pagination.
	GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error)

	// GetAccountInfo retrieves raw account data. Returns nil if the account does not exist.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)

	// GetTokenAccountsByOwner lists token accounts owned by owner under the given token program.
	GetTokenAccountsByOwner(ctx context.Context, owner, programID string) ([]TokenAccount, error)
}

// Transaction represents a Solana transaction.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds), 0 when the node does not report it
	Message   *TransactionMessage
}

// TransactionMessage contains parsed transaction message.
type TransactionMessage struct {
	Instructions []Instruction
}

// Instruction is a top-level instruction as returned by jsonParsed encoding.
// Data and Accounts are empty for instructions the node parsed itself.
type Instruction struct {
	ProgramID string
	Accounts  []string
	Data      string // base58
}

// HasProgram reports whether any top-level instruction targets programID.
func (m *TransactionMessage) HasProgram(programID string) bool {
	if m == nil {
		return false
	}
	for _, ix := range m.Instructions {
		if ix.ProgramID == programID {
			return true
		}
	}
	return false
}
