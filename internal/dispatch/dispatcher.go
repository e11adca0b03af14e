// Package dispatch routes decoded events to their side effects.
package dispatch

import (
	"context"
	"sync"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"moonshot-watcher/internal/domain"
	"moonshot-watcher/internal/notify"
	"moonshot-watcher/internal/observability"
	"moonshot-watcher/internal/parser"
)

// MetadataFetcher loads the off-chain metadata document of a token.
type MetadataFetcher interface {
	Fetch(ctx context.Context, uri string) (*domain.TokenMetadata, error)
}

// HistoryResolver lists a creator's qualifying launches.
type HistoryResolver interface {
	Resolve(ctx context.Context, creator solanago.PublicKey) ([]*domain.OnChainMetadata, error)
}

// Dispatcher handles decoded events. Create events are enriched and
// delivered on their own goroutine; buys and sells are only logged.
type Dispatcher struct {
	offchain MetadataFetcher
	history  HistoryResolver
	notifier notify.Notifier
	log      logrus.FieldLogger

	wg sync.WaitGroup
}

// New creates a Dispatcher.
func New(offchain MetadataFetcher, history HistoryResolver, notifier notify.Notifier, log logrus.FieldLogger) *Dispatcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Dispatcher{
		offchain: offchain,
		history:  history,
		notifier: notifier,
		log:      log,
	}
}

// Handle routes one parsed notification. It never blocks on enrichment.
func (d *Dispatcher) Handle(ctx context.Context, n *parser.Notification) {
	if n == nil || n.Event == nil {
		return
	}

	log := d.log.WithFields(logrus.Fields{
		"signature": n.Signature,
		"slot":      n.Slot,
		"kind":      n.Event.Kind().String(),
	})

	switch ev := n.Event.(type) {
	case *domain.CreateEvent:
		log.WithFields(logrus.Fields{
			"mint":    ev.Mint.String(),
			"creator": ev.Sender.String(),
			"name":    ev.Name,
			"symbol":  ev.Symbol,
			"dev_buy": ev.BuyEvent != nil,
		}).Info("token created")

		// Enrichment outlives stream shutdown; Wait drains it.
		detached := context.WithoutCancel(ctx)
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.deliver(detached, n, ev, log)
		}()
	case *domain.BuyEvent:
		log.WithFields(tradeFields(&ev.TradeEvent)).Debug("buy")
	case *domain.SellEvent:
		log.WithFields(tradeFields(&ev.TradeEvent)).Debug("sell")
	}
}

// Wait blocks until every in-flight enrichment has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, n *parser.Notification, ev *domain.CreateEvent, log logrus.FieldLogger) {
	observability.EnrichmentStarted()
	start := time.Now()

	launch := d.Enrich(ctx, n, ev, log)

	if err := d.notifier.Notify(ctx, launch); err != nil {
		log.WithError(err).Error("launch notification failed")
	} else {
		log.Info("launch notification sent")
	}

	observability.EnrichmentFinished(time.Since(start).Seconds())
}

// Enrich fetches off-chain metadata and creator history concurrently.
// Failures of either are logged; the launch is still returned with
// whatever could be resolved.
func (d *Dispatcher) Enrich(ctx context.Context, n *parser.Notification, ev *domain.CreateEvent, log logrus.FieldLogger) *notify.Launch {
	launch := &notify.Launch{
		Signature: n.Signature,
		Slot:      n.Slot,
		Event:     ev,
	}

	var g errgroup.Group
	g.Go(func() error {
		md, err := d.offchain.Fetch(ctx, ev.URI)
		if err != nil {
			log.WithError(err).WithField("uri", ev.URI).Warn("off-chain metadata unavailable")
			md = &domain.TokenMetadata{Name: ev.Name, Symbol: ev.Symbol}
		}
		launch.Metadata = md
		return nil
	})
	g.Go(func() error {
		history, err := d.history.Resolve(ctx, ev.Sender)
		if err != nil {
			log.WithError(err).Warn("creator history unavailable")
			return nil
		}
		launch.History = history
		return nil
	})
	_ = g.Wait()

	return launch
}

func tradeFields(t *domain.TradeEvent) logrus.Fields {
	return logrus.Fields{
		"mint":              t.Mint.String(),
		"trader":            t.Sender.String(),
		"amount":            t.Amount,
		"collateral_amount": t.CollateralAmount,
		"slippage_bps":      t.SlippageBps,
	}
}
