// Package decoder turns watched-program instruction payloads into domain events.
//
// Every payload starts with an 8-byte discriminator selecting the layout.
// Public keys are not read from the payload; they come from the instruction's
// account list at fixed positions.
package decoder

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/gagliardetto/solana-go"

	"moonshot-watcher/internal/domain"
)

// DiscriminatorSize is the length of the instruction tag.
const DiscriminatorSize = 8

// Discriminator is the 8-byte instruction tag.
type Discriminator [DiscriminatorSize]byte

// String returns the hex form of the discriminator.
func (d Discriminator) String() string {
	return hex.EncodeToString(d[:])
}

// Known discriminators.
var (
	SellDiscriminator   = Discriminator{0x33, 0xe6, 0x85, 0xa4, 0x01, 0x7f, 0x83, 0xad}
	BuyDiscriminator    = Discriminator{0x66, 0x06, 0x3d, 0x12, 0x01, 0xda, 0xeb, 0xea}
	CreateDiscriminator = Discriminator{0x03, 0x2c, 0xa4, 0xb8, 0x7b, 0x0d, 0xf5, 0xb3}
)

// Account positions in the instruction account list. These follow the watched
// program's calling convention and are not described by the payload itself.
const (
	TradeSenderIndex = 0
	TradeCurveIndex  = 3
	TradeMintIndex   = 7

	CreateSenderIndex = 0
	CreateCurveIndex  = 2
	CreateMintIndex   = 3
)

// tradePayloadSize covers the discriminator and three u64 fields.
const tradePayloadSize = DiscriminatorSize + 3*8

var (
	// ErrUnknownDiscriminator is returned for payloads with an unrecognized tag.
	ErrUnknownDiscriminator = errors.New("unknown discriminator")

	// ErrShortBuffer is returned when the payload ends before a field.
	ErrShortBuffer = errors.New("payload too short")

	// ErrInvalidUTF8 is returned when a string field is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("string is not valid UTF-8")

	// ErrMissingAccount is returned when the account list is shorter than the layout requires.
	ErrMissingAccount = errors.New("missing account")

	// ErrInvalidPublicKey is returned when an account is not a 32-byte base58 key.
	ErrInvalidPublicKey = errors.New("invalid public key")
)

// ReadDiscriminator returns the first 8 bytes of data.
func ReadDiscriminator(data []byte) (Discriminator, error) {
	var d Discriminator
	if len(data) < DiscriminatorSize {
		return d, fmt.Errorf("discriminator: %w: have %d bytes", ErrShortBuffer, len(data))
	}
	copy(d[:], data[:DiscriminatorSize])
	return d, nil
}

// Decode dispatches data to the decoder selected by its discriminator.
// devBuy is only used for Create payloads; nil means no developer buy.
func Decode(data []byte, accounts []string, devBuy *domain.BuyEvent) (domain.Event, error) {
	disc, err := ReadDiscriminator(data)
	if err != nil {
		return nil, err
	}

	var ev domain.Event
	switch disc {
	case SellDiscriminator:
		ev, err = DecodeSell(data, accounts)
	case BuyDiscriminator:
		ev, err = DecodeBuy(data, accounts)
	case CreateDiscriminator:
		ev, err = DecodeCreate(data, accounts, devBuy)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDiscriminator, disc)
	}
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// DecodeTrade reads the fields shared by Buy and Sell payloads.
//
// Layout after the discriminator: amount u64 LE, collateral_amount u64 LE, slippage_bps u64 LE.
func DecodeTrade(data []byte, accounts []string) (domain.TradeEvent, error) {
	var ev domain.TradeEvent

	if len(data) < tradePayloadSize {
		return ev, fmt.Errorf("trade: %w: need %d bytes, have %d", ErrShortBuffer, tradePayloadSize, len(data))
	}

	ev.Amount = binary.LittleEndian.Uint64(data[8:16])
	ev.CollateralAmount = binary.LittleEndian.Uint64(data[16:24])
	ev.SlippageBps = binary.LittleEndian.Uint64(data[24:32])

	var err error
	if ev.Sender, err = accountAt(accounts, TradeSenderIndex); err != nil {
		return ev, fmt.Errorf("trade sender: %w", err)
	}
	if ev.CurveAccount, err = accountAt(accounts, TradeCurveIndex); err != nil {
		return ev, fmt.Errorf("trade curve account: %w", err)
	}
	if ev.Mint, err = accountAt(accounts, TradeMintIndex); err != nil {
		return ev, fmt.Errorf("trade mint: %w", err)
	}

	return ev, nil
}

// DecodeBuy decodes a Buy payload.
func DecodeBuy(data []byte, accounts []string) (*domain.BuyEvent, error) {
	trade, err := DecodeTrade(data, accounts)
	if err != nil {
		return nil, fmt.Errorf("buy: %w", err)
	}
	return &domain.BuyEvent{TradeEvent: trade}, nil
}

// DecodeSell decodes a Sell payload.
func DecodeSell(data []byte, accounts []string) (*domain.SellEvent, error) {
	trade, err := DecodeTrade(data, accounts)
	if err != nil {
		return nil, fmt.Errorf("sell: %w", err)
	}
	return &domain.SellEvent{TradeEvent: trade}, nil
}

// DecodeCreate decodes a Create payload: name, symbol and uri as u32-LE
// length-prefixed UTF-8 strings starting right after the discriminator.
// Trailing bytes after uri are ignored.
func DecodeCreate(data []byte, accounts []string, devBuy *domain.BuyEvent) (*domain.CreateEvent, error) {
	if len(data) < DiscriminatorSize {
		return nil, fmt.Errorf("create: %w", ErrShortBuffer)
	}
	r := reader{buf: data, off: DiscriminatorSize}

	ev := &domain.CreateEvent{BuyEvent: devBuy}

	var err error
	if ev.Name, err = r.string(); err != nil {
		return nil, fmt.Errorf("create name: %w", err)
	}
	if ev.Symbol, err = r.string(); err != nil {
		return nil, fmt.Errorf("create symbol: %w", err)
	}
	if ev.URI, err = r.string(); err != nil {
		return nil, fmt.Errorf("create uri: %w", err)
	}

	if ev.Sender, err = accountAt(accounts, CreateSenderIndex); err != nil {
		return nil, fmt.Errorf("create sender: %w", err)
	}
	if ev.CurveAccount, err = accountAt(accounts, CreateCurveIndex); err != nil {
		return nil, fmt.Errorf("create curve account: %w", err)
	}
	if ev.Mint, err = accountAt(accounts, CreateMintIndex); err != nil {
		return nil, fmt.Errorf("create mint: %w", err)
	}

	return ev, nil
}

func accountAt(accounts []string, idx int) (solana.PublicKey, error) {
	if idx >= len(accounts) {
		return solana.PublicKey{}, fmt.Errorf("%w: index %d of %d", ErrMissingAccount, idx, len(accounts))
	}
	key, err := solana.PublicKeyFromBase58(accounts[idx])
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w %q: %v", ErrInvalidPublicKey, accounts[idx], err)
	}
	return key, nil
}

// reader walks a byte slice with bounds checks.
type reader struct {
	buf []byte
	off int
}

func (r *reader) u32() (uint32, error) {
	if len(r.buf)-r.off < 4 {
		return 0, fmt.Errorf("length prefix at offset %d: %w", r.off, ErrShortBuffer)
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func (r *reader) string() (string, error) {
	n, err := r.u32()
	if err != nil {
		return "", err
	}
	if uint64(n) > uint64(len(r.buf)-r.off) {
		return "", fmt.Errorf("string of %d bytes at offset %d: %w", n, r.off, ErrShortBuffer)
	}
	b := r.buf[r.off : r.off+int(n)]
	if !utf8.Valid(b) {
		return "", fmt.Errorf("string at offset %d: %w", r.off, ErrInvalidUTF8)
	}
	r.off += int(n)
	return string(b), nil
}
