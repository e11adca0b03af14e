// Package stream drives the transaction subscription: frames in, events out.
package stream

import (
	"context"
	"errors"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"moonshot-watcher/internal/decoder"
	"moonshot-watcher/internal/observability"
	"moonshot-watcher/internal/parser"
	"moonshot-watcher/internal/solana"
)

// Subscription defaults.
const (
	Commitment         = "processed"
	Encoding           = "jsonParsed"
	TransactionDetails = "full"
)

// Drop reasons reported in metrics.
const (
	DropMalformed            = "malformed"
	DropNoTarget             = "no_target"
	DropInvalidData          = "invalid_data"
	DropUnknownDiscriminator = "unknown_discriminator"
	DropDecodeError          = "decode_error"
)

// Handler consumes decoded notifications.
type Handler interface {
	Handle(ctx context.Context, n *parser.Notification)
}

// Driver subscribes to the watched program and feeds decoded events to a Handler.
// Frames are processed one at a time in arrival order.
type Driver struct {
	ws        solana.WSClient
	parser    *parser.Parser
	handler   Handler
	programID solanago.PublicKey
	log       logrus.FieldLogger
}

// New creates a Driver for programID.
func New(ws solana.WSClient, programID solanago.PublicKey, handler Handler, log logrus.FieldLogger) *Driver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Driver{
		ws:        ws,
		parser:    parser.New(programID),
		handler:   handler,
		programID: programID,
		log:       log,
	}
}

// Filter returns the transactionSubscribe filter: successful transactions touching programID.
func Filter(programID solanago.PublicKey) solana.TransactionFilter {
	failed := false
	return solana.TransactionFilter{
		Failed:   &failed,
		Accounts: &solana.AccountsFilter{Include: []string{programID.String()}},
	}
}

// Options returns the transactionSubscribe options.
func Options() solana.TransactionOptions {
	var version uint8
	return solana.TransactionOptions{
		Commitment:                     Commitment,
		Encoding:                       Encoding,
		TransactionDetails:             TransactionDetails,
		MaxSupportedTransactionVersion: &version,
	}
}

// Run subscribes and consumes frames until the stream ends or ctx is cancelled.
// A rejected subscription is returned as an error; the end of the stream is not.
func (d *Driver) Run(ctx context.Context) error {
	frames, err := d.ws.SubscribeTransactions(ctx, Filter(d.programID), Options())
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", d.programID, err)
	}

	d.log.WithField("program", d.programID.String()).Info("subscribed to program transactions")

	for {
		select {
		case <-ctx.Done():
			d.log.Info("stream stopped")
			return nil
		case frame, ok := <-frames:
			if !ok {
				d.log.Info("stream ended")
				return nil
			}
			d.process(ctx, frame)
		}
	}
}

func (d *Driver) process(ctx context.Context, frame []byte) {
	n, err := d.parser.Parse(frame)
	if err != nil {
		reason := dropReason(err)
		observability.RecordFrameDropped(reason)

		log := d.log.WithError(err).WithField("reason", reason)
		if n != nil {
			log = log.WithFields(logrus.Fields{"signature": n.Signature, "slot": n.Slot})
		}
		if reason == DropUnknownDiscriminator {
			log.Info("frame dropped")
		} else {
			log.Debug("frame dropped")
		}
		return
	}

	observability.RecordEventDecoded(n.Event.Kind().String())
	d.handler.Handle(ctx, n)
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, parser.ErrMalformedFrame):
		return DropMalformed
	case errors.Is(err, parser.ErrNoTargetInstruction):
		return DropNoTarget
	case errors.Is(err, parser.ErrInvalidData):
		return DropInvalidData
	case errors.Is(err, decoder.ErrUnknownDiscriminator):
		return DropUnknownDiscriminator
	default:
		return DropDecodeError
	}
}
