package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const defaultPublishTimeout = 5 * time.Second

// NATSConfig captures the runtime parameters of the NATS notifier.
type NATSConfig struct {
	URL            string
	Subject        string
	PublishTimeout time.Duration
}

// DefaultNATSConfig initialises NATSConfig with defaults for optional fields.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		Subject:        "moonshot.launches",
		PublishTimeout: defaultPublishTimeout,
	}
}

// Validate ensures required fields are populated and durations are sane.
func (c NATSConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("NATS URL is required")
	}
	if c.Subject == "" {
		return fmt.Errorf("NATS subject cannot be empty")
	}
	if c.PublishTimeout <= 0 {
		return fmt.Errorf("publish timeout must be positive")
	}
	return nil
}

// LaunchRecord is the JSON payload published for each launch.
type LaunchRecord struct {
	Signature    string       `json:"signature"`
	Slot         uint64       `json:"slot"`
	Mint         string       `json:"mint"`
	Creator      string       `json:"creator"`
	CurveAccount string       `json:"curve_account"`
	Name         string       `json:"name"`
	Symbol       string       `json:"symbol"`
	URI          string       `json:"uri"`
	Description  string       `json:"description,omitempty"`
	Image        string       `json:"image,omitempty"`
	DevBuyAmount *uint64      `json:"dev_buy_amount,omitempty"`
	DevHoldings  string       `json:"dev_holdings_pct"`
	PriorTokens  []PriorToken `json:"prior_tokens"`
}

// PriorToken is one of the creator's earlier launches.
type PriorToken struct {
	Mint   string `json:"mint"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

// NewLaunchRecord flattens a launch into its published form.
func NewLaunchRecord(l *Launch) *LaunchRecord {
	ev := l.Event
	rec := &LaunchRecord{
		Signature:    l.Signature,
		Slot:         l.Slot,
		Mint:         ev.Mint.String(),
		Creator:      ev.Sender.String(),
		CurveAccount: ev.CurveAccount.String(),
		Name:         ev.Name,
		Symbol:       ev.Symbol,
		URI:          ev.URI,
		DevHoldings:  DevHoldings(ev.BuyEvent),
		PriorTokens:  []PriorToken{},
	}
	if l.Metadata != nil {
		rec.Description = l.Metadata.Description
		rec.Image = l.Metadata.Image
	}
	if ev.BuyEvent != nil {
		amount := ev.BuyEvent.Amount
		rec.DevBuyAmount = &amount
	}
	for _, md := range PriorTokens(rec.Mint, l.History) {
		rec.PriorTokens = append(rec.PriorTokens, PriorToken{
			Mint:   md.Mint.String(),
			Name:   md.Name,
			Symbol: md.Symbol,
		})
	}
	return rec
}

// NATS publishes launch records on a subject.
type NATS struct {
	cfg NATSConfig
	nc  *nats.Conn
}

// NewNATS validates configuration and connects.
func NewNATS(cfg NATSConfig) (*NATS, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	nc, err := nats.Connect(cfg.URL, nats.Name("moonshot-watcher"))
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.URL, err)
	}
	return &NATS{cfg: cfg, nc: nc}, nil
}

// Name returns "nats".
func (n *NATS) Name() string { return "nats" }

// Notify publishes l and waits for the server to acknowledge the flush.
// The message id header carries the transaction signature.
func (n *NATS) Notify(ctx context.Context, l *Launch) error {
	payload, err := json.Marshal(NewLaunchRecord(l))
	if err != nil {
		return fmt.Errorf("marshal launch record: %w", err)
	}

	msg := nats.NewMsg(n.cfg.Subject)
	msg.Data = payload
	msg.Header.Set(nats.MsgIdHdr, l.Signature)

	if err := n.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", n.cfg.Subject, err)
	}

	ctx, cancel := n.WithTimeout(ctx)
	defer cancel()
	if err := n.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", n.cfg.Subject, err)
	}
	return nil
}

// WithTimeout returns a context with the publish timeout applied.
func (n *NATS) WithTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, n.cfg.PublishTimeout)
}

// Close drains and closes the connection.
func (n *NATS) Close() {
	if n.nc != nil {
		_ = n.nc.Drain()
	}
}
