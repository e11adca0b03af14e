package solana

// SignatureInfo from getSignaturesForAddress.
type SignatureInfo struct {
	Signature string
	Slot      int64
	BlockTime *int64
	Err       interface{}
}

// SignaturesOpts defines optional pagination parameters for getSignaturesForAddress.
type SignaturesOpts struct {
	Before string // Start searching backwards from this signature
	Limit  int    // Maximum number of signatures to return
}

// MaxSignaturesPage is the largest page getSignaturesForAddress returns.
const MaxSignaturesPage = 1000

// AccountInfo represents Solana account information.
type AccountInfo struct {
	Lamports   uint64 `json:"lamports"`
	Owner      string `json:"owner"`
	Data       string `json:"data"` // base64 encoded
	Executable bool   `json:"executable"`
	RentEpoch  uint64 `json:"rentEpoch"`
}

// TokenAccount is one entry of getTokenAccountsByOwner.
// Parsed is false when the node returned binary data instead of jsonParsed,
// in which case Mint is empty.
type TokenAccount struct {
	Pubkey string
	Owner  string
	Mint   string
	Parsed bool
}
