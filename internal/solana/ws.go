package solana

import "context"

// WSClient defines Solana WebSocket subscription interface.
type WSClient interface {
	// SubscribeTransactions sends a transactionSubscribe request and waits for
	// the confirmation. The returned channel yields raw notification frames and
	// is closed when the stream ends.
	SubscribeTransactions(ctx context.Context, filter TransactionFilter, opts TransactionOptions) (<-chan []byte, error)

	// Close closes the WebSocket connection.
	Close() error
}

// TransactionFilter is the first transactionSubscribe parameter.
type TransactionFilter struct {
	Failed   *bool           `json:"failed,omitempty"`
	Accounts *AccountsFilter `json:"accounts,omitempty"`
}

// AccountsFilter selects transactions by the accounts they reference.
type AccountsFilter struct {
	Include []string `json:"include,omitempty"`
}

// TransactionOptions is the second transactionSubscribe parameter.
type TransactionOptions struct {
	Commitment                     string `json:"commitment,omitempty"`
	Encoding                       string `json:"encoding,omitempty"`
	TransactionDetails             string `json:"transactionDetails,omitempty"`
	MaxSupportedTransactionVersion *uint8 `json:"maxSupportedTransactionVersion,omitempty"`
}
