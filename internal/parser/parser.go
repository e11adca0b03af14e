// Package parser extracts watched-program events from transactionSubscribe notifications.
package parser

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"moonshot-watcher/internal/decoder"
	"moonshot-watcher/internal/domain"
)

// FallbackTargetIndex is the instruction position used when no top-level
// instruction names the watched program. Index 0 is normally a compute-budget preamble.
const FallbackTargetIndex = 1

var (
	// ErrMalformedFrame is returned when the frame is not a transaction notification.
	ErrMalformedFrame = errors.New("malformed notification frame")

	// ErrNoTargetInstruction is returned when no instruction can carry the event.
	ErrNoTargetInstruction = errors.New("no event-bearing instruction")

	// ErrInvalidData is returned when instruction data is not valid base58.
	ErrInvalidData = errors.New("invalid instruction data")
)

// Notification is a decoded event with the frame context it came from.
type Notification struct {
	Slot      uint64
	Signature string
	Event     domain.Event
}

// Parser decodes raw notification frames.
type Parser struct {
	programID string
}

// New creates a Parser for programID.
func New(programID solana.PublicKey) *Parser {
	return &Parser{programID: programID.String()}
}

// Parse decodes one frame. Any error means the frame carries no usable event
// and should be dropped; errors wrap decoder.ErrUnknownDiscriminator for
// instructions the watched program defines but this package does not decode.
func (p *Parser) Parse(frame []byte) (*Notification, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	value := env.Params.Result.Value
	if value == nil || value.Transaction == nil || value.Transaction.Transaction == nil ||
		value.Transaction.Transaction.Message == nil {
		return nil, fmt.Errorf("%w: missing params.result.value.transaction.transaction.message", ErrMalformedFrame)
	}

	tx := value.Transaction.Transaction
	instructions := tx.Message.Instructions
	if len(instructions) == 0 {
		return nil, fmt.Errorf("%w: empty instruction list", ErrNoTargetInstruction)
	}

	n := &Notification{
		Slot:      value.Slot,
		Signature: value.Signature,
	}
	if n.Signature == "" && len(tx.Signatures) > 0 {
		n.Signature = tx.Signatures[0]
	}

	idx := p.targetIndex(instructions)
	if idx < 0 {
		return n, fmt.Errorf("%w: %d instructions", ErrNoTargetInstruction, len(instructions))
	}
	target := instructions[idx]

	data, err := decodeData(target.Data)
	if err != nil {
		return n, fmt.Errorf("instruction %d: %w", idx, err)
	}

	var devBuy *domain.BuyEvent
	if disc, err := decoder.ReadDiscriminator(data); err == nil && disc == decoder.CreateDiscriminator {
		devBuy = p.devBuy(instructions, idx)
	}

	ev, err := decoder.Decode(data, target.Accounts, devBuy)
	if err != nil {
		return n, fmt.Errorf("instruction %d: %w", idx, err)
	}

	n.Event = ev
	return n, nil
}

// targetIndex returns the first instruction addressed to the watched program,
// or FallbackTargetIndex when none is. It returns -1 when no candidate exists.
func (p *Parser) targetIndex(instructions []instruction) int {
	for i, ix := range instructions {
		if ix.ProgramID == p.programID {
			return i
		}
	}
	if len(instructions) > FallbackTargetIndex {
		return FallbackTargetIndex
	}
	return -1
}

// devBuy decodes the instruction right after a Create as the developer's
// initial buy. It returns nil unless that instruction is a watched-program Buy.
func (p *Parser) devBuy(instructions []instruction, createIdx int) *domain.BuyEvent {
	next := createIdx + 1
	if next >= len(instructions) {
		return nil
	}

	ix := instructions[next]
	if ix.ProgramID != "" && ix.ProgramID != p.programID {
		return nil
	}

	data, err := decodeData(ix.Data)
	if err != nil {
		return nil
	}
	if disc, err := decoder.ReadDiscriminator(data); err != nil || disc != decoder.BuyDiscriminator {
		return nil
	}

	accounts := ix.Accounts
	if len(accounts) == 0 {
		accounts = instructions[createIdx].Accounts
	}

	buy, err := decoder.DecodeBuy(data, accounts)
	if err != nil {
		return nil
	}
	return buy
}

func decodeData(data string) ([]byte, error) {
	if data == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidData)
	}
	b, err := base58.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return b, nil
}
