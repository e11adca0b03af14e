package domain

import "github.com/gagliardetto/solana-go"

// EventKind identifies which program instruction produced an event.
type EventKind string

const (
	EventKindCreate EventKind = "create"
	EventKindBuy    EventKind = "buy"
	EventKindSell   EventKind = "sell"
)

// String returns the string representation of EventKind.
func (k EventKind) String() string {
	return string(k)
}

// Event is a decoded watched-program instruction.
// Implemented only by *CreateEvent, *BuyEvent and *SellEvent.
type Event interface {
	Kind() EventKind
	isEvent()
}

// CreateEvent is a new token launch.
type CreateEvent struct {
	Name         string
	Symbol       string
	URI          string           // off-chain JSON metadata location
	Sender       solana.PublicKey // creator
	CurveAccount solana.PublicKey // trading-curve state account
	Mint         solana.PublicKey // newly created token
	BuyEvent     *BuyEvent        // developer initial buy bundled in the same tx (nullable)
}

// TradeEvent holds the fields shared by buys and sells on the curve.
type TradeEvent struct {
	Amount           uint64
	CollateralAmount uint64
	SlippageBps      uint64
	Sender           solana.PublicKey
	CurveAccount     solana.PublicKey
	Mint             solana.PublicKey
}

// BuyEvent is a curve buy.
type BuyEvent struct {
	TradeEvent
}

// SellEvent is a curve sell.
type SellEvent struct {
	TradeEvent
}

func (*CreateEvent) Kind() EventKind { return EventKindCreate }
func (*BuyEvent) Kind() EventKind    { return EventKindBuy }
func (*SellEvent) Kind() EventKind   { return EventKindSell }

func (*CreateEvent) isEvent() {}
func (*BuyEvent) isEvent()    {}
func (*SellEvent) isEvent()   {}
