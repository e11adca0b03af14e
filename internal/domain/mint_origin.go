package domain

// MintOrigin records whether a mint was created through the watched program.
// The answer never changes once a mint exists, so it is safe to memoize.
// Corresponds to mint_origins table in PostgreSQL.
type MintOrigin struct {
	Mint              string // PK
	Qualified         bool   // earliest tx invoked the watched program
	EarliestSignature string // signature inspected to decide
	CheckedAt         int64  // when the check ran (ms)
	CreatedAt         int64  // record creation timestamp (ms)
}
