package metadata

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	bin "github.com/gagliardetto/binary"
	solanago "github.com/gagliardetto/solana-go"

	"moonshot-watcher/internal/domain"
	"moonshot-watcher/internal/solana"
)

// MetadataV1Key is the account discriminator byte of a Metaplex metadata account.
const MetadataV1Key = 4

var (
	// ErrAccountNotFound is returned when the metadata PDA holds no account.
	ErrAccountNotFound = errors.New("metadata account not found")

	// ErrNotMetadataAccount is returned when the account key byte is not MetadataV1Key.
	ErrNotMetadataAccount = errors.New("not a metadata account")
)

// metadataLayout is the leading part of the Metaplex metadata account, borsh encoded.
// Fields after seller_fee_basis_points are not read.
type metadataLayout struct {
	Key                  uint8
	UpdateAuthority      solanago.PublicKey
	Mint                 solanago.PublicKey
	Name                 string
	Symbol               string
	URI                  string
	SellerFeeBasisPoints uint16
}

// OnChainReader reads Metaplex metadata accounts through RPC.
type OnChainReader struct {
	rpc solana.RPCClient
}

// NewOnChainReader creates an OnChainReader.
func NewOnChainReader(rpc solana.RPCClient) *OnChainReader {
	return &OnChainReader{rpc: rpc}
}

// Fetch derives the metadata PDA of mint, reads it and decodes it.
func (r *OnChainReader) Fetch(ctx context.Context, mint solanago.PublicKey) (*domain.OnChainMetadata, error) {
	pda, err := solana.MetadataAddress(mint)
	if err != nil {
		return nil, err
	}

	info, err := r.rpc.GetAccountInfo(ctx, pda.String())
	if err != nil {
		return nil, fmt.Errorf("get metadata account %s: %w", pda, err)
	}
	if info == nil {
		return nil, fmt.Errorf("%w: %s (mint %s)", ErrAccountNotFound, pda, mint)
	}

	data, err := base64.StdEncoding.DecodeString(info.Data)
	if err != nil {
		return nil, fmt.Errorf("decode metadata account %s: %w", pda, err)
	}

	return DecodeMetadataAccount(data)
}

// DecodeMetadataAccount decodes raw Metaplex metadata account bytes.
// Name, symbol and uri are stored NUL padded to fixed widths; padding is trimmed.
func DecodeMetadataAccount(data []byte) (*domain.OnChainMetadata, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("decode metadata: empty account data")
	}
	if data[0] != MetadataV1Key {
		return nil, fmt.Errorf("%w: key %d", ErrNotMetadataAccount, data[0])
	}

	var layout metadataLayout
	if err := bin.NewBorshDecoder(data).Decode(&layout); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}

	return &domain.OnChainMetadata{
		UpdateAuthority:      layout.UpdateAuthority,
		Mint:                 layout.Mint,
		Name:                 trimPadding(layout.Name),
		Symbol:               trimPadding(layout.Symbol),
		URI:                  trimPadding(layout.URI),
		SellerFeeBasisPoints: layout.SellerFeeBasisPoints,
	}, nil
}

func trimPadding(s string) string {
	return strings.TrimRight(s, "\x00")
}
