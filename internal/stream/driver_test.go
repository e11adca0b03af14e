package stream

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moonshot-watcher/internal/decoder"
	"moonshot-watcher/internal/domain"
	"moonshot-watcher/internal/parser"
	"moonshot-watcher/internal/solana"
)

// fakeWS hands out a caller-controlled frame channel.
type fakeWS struct {
	frames chan []byte
	err    error
	filter solana.TransactionFilter
	opts   solana.TransactionOptions
	closed bool
}

func (f *fakeWS) SubscribeTransactions(_ context.Context, filter solana.TransactionFilter, opts solana.TransactionOptions) (<-chan []byte, error) {
	f.filter = filter
	f.opts = opts
	if f.err != nil {
		return nil, f.err
	}
	return f.frames, nil
}

func (f *fakeWS) Close() error {
	f.closed = true
	return nil
}

type recordingHandler struct {
	mu   sync.Mutex
	seen []*parser.Notification
}

func (h *recordingHandler) Handle(_ context.Context, n *parser.Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, n)
}

func key(b byte) string {
	return solanago.PublicKeyFromBytes(bytes.Repeat([]byte{b}, 32)).String()
}

func buyData(amount uint64) []byte {
	buf := make([]byte, 32)
	copy(buf, decoder.BuyDiscriminator[:])
	binary.LittleEndian.PutUint64(buf[8:], amount)
	return buf
}

func notificationFrame(t *testing.T, sig string, data []byte) []byte {
	t.Helper()
	accounts := make([]string, 8)
	for i := range accounts {
		accounts[i] = key(byte(i + 1))
	}
	b, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "transactionNotification",
		"params": map[string]interface{}{
			"subscription": 1,
			"result": map[string]interface{}{
				"value": map[string]interface{}{
					"signature": sig,
					"slot":      99,
					"transaction": map[string]interface{}{
						"transaction": map[string]interface{}{
							"signatures": []string{sig},
							"message": map[string]interface{}{
								"instructions": []map[string]interface{}{
									{"programId": "ComputeBudget111111111111111111111111111111", "accounts": []string{}, "data": "3DdGGhkhJbjm"},
									{"programId": solana.WatchedProgramID.String(), "accounts": accounts, "data": base58.Encode(data)},
								},
							},
						},
					},
				},
			},
		},
	})
	require.NoError(t, err)
	return b
}

func TestFilterAndOptions(t *testing.T) {
	filter := Filter(solana.WatchedProgramID)
	require.NotNil(t, filter.Failed)
	assert.False(t, *filter.Failed)
	require.NotNil(t, filter.Accounts)
	assert.Equal(t, []string{"MoonCVVNZFSYkqNXP6bxHLPL6QQJiMagDL3qcqUQTrG"}, filter.Accounts.Include)

	fb, err := json.Marshal(filter)
	require.NoError(t, err)
	assert.JSONEq(t, `{"failed":false,"accounts":{"include":["MoonCVVNZFSYkqNXP6bxHLPL6QQJiMagDL3qcqUQTrG"]}}`, string(fb))

	b, err := json.Marshal(Options())
	require.NoError(t, err)
	assert.JSONEq(t, `{"commitment":"processed","encoding":"jsonParsed","transactionDetails":"full","maxSupportedTransactionVersion":0}`, string(b))
}

func TestDriver_Run(t *testing.T) {
	ws := &fakeWS{frames: make(chan []byte, 4)}
	handler := &recordingHandler{}
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	unknown := make([]byte, 32)
	copy(unknown, []byte{0xde, 0xad, 0xbe, 0xef, 0, 0, 0, 1})

	ws.frames <- notificationFrame(t, "buySig", buyData(500))
	ws.frames <- notificationFrame(t, "unknownSig", unknown)
	ws.frames <- []byte(`{"jsonrpc":"2.0","method":"transactionNotification","params":`)
	ws.frames <- notificationFrame(t, "buySig2", buyData(600))
	close(ws.frames)

	d := New(ws, solana.WatchedProgramID, handler, log)
	require.NoError(t, d.Run(context.Background()))

	require.Len(t, handler.seen, 2)
	assert.Equal(t, "buySig", handler.seen[0].Signature)
	assert.Equal(t, uint64(99), handler.seen[0].Slot)
	buy, ok := handler.seen[0].Event.(*domain.BuyEvent)
	require.True(t, ok)
	assert.Equal(t, uint64(500), buy.Amount)
	assert.Equal(t, "buySig2", handler.seen[1].Signature)

	var infoDrops, debugDrops int
	for _, e := range hook.AllEntries() {
		if e.Message != "frame dropped" {
			continue
		}
		switch e.Level {
		case logrus.InfoLevel:
			infoDrops++
			assert.Equal(t, DropUnknownDiscriminator, e.Data["reason"])
			assert.Equal(t, "unknownSig", e.Data["signature"])
		case logrus.DebugLevel:
			debugDrops++
			assert.Equal(t, DropMalformed, e.Data["reason"])
		}
	}
	assert.Equal(t, 1, infoDrops)
	assert.Equal(t, 1, debugDrops)

	require.NotNil(t, ws.filter.Accounts)
	assert.Equal(t, []string{solana.WatchedProgramID.String()}, ws.filter.Accounts.Include)
	assert.Equal(t, Commitment, ws.opts.Commitment)
}

func TestDriver_SubscribeRejected(t *testing.T) {
	ws := &fakeWS{err: fmt.Errorf("%w: invalid params", solana.ErrSubscriptionRejected)}
	log, _ := test.NewNullLogger()

	err := New(ws, solana.WatchedProgramID, &recordingHandler{}, log).Run(context.Background())
	assert.ErrorIs(t, err, solana.ErrSubscriptionRejected)
}

func TestDriver_ContextCancel(t *testing.T) {
	ws := &fakeWS{frames: make(chan []byte)}
	log, _ := test.NewNullLogger()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- New(ws, solana.WatchedProgramID, &recordingHandler{}, log).Run(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestDropReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{parser.ErrMalformedFrame, DropMalformed},
		{fmt.Errorf("wrap: %w", parser.ErrNoTargetInstruction), DropNoTarget},
		{parser.ErrInvalidData, DropInvalidData},
		{fmt.Errorf("decode: %w", decoder.ErrUnknownDiscriminator), DropUnknownDiscriminator},
		{decoder.ErrShortBuffer, DropDecodeError},
		{errors.New("other"), DropDecodeError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, dropReason(tt.err), tt.err.Error())
	}
}
