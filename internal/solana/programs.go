package solana

import solanago "github.com/gagliardetto/solana-go"

// Well-known program addresses.
var (
	// WatchedProgramID is the launchpad program whose instructions are decoded.
	WatchedProgramID = solanago.MustPublicKeyFromBase58("MoonCVVNZFSYkqNXP6bxHLPL6QQJiMagDL3qcqUQTrG")

	// TokenProgramID is the SPL Token program.
	TokenProgramID = solanago.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")

	// MetadataProgramID is the Metaplex Token Metadata program.
	MetadataProgramID = solanago.MustPublicKeyFromBase58("metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s")
)
