package domain

import "github.com/gagliardetto/solana-go"

// TokenMetadata is the off-chain JSON document referenced by a CreateEvent URI.
// Fields not listed here are ignored on decode.
type TokenMetadata struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

// OnChainMetadata is the decoded Metaplex metadata account of a mint.
type OnChainMetadata struct {
	UpdateAuthority      solana.PublicKey
	Mint                 solana.PublicKey
	Name                 string
	Symbol               string
	URI                  string
	SellerFeeBasisPoints uint16
}
