package parser

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moonshot-watcher/internal/decoder"
	"moonshot-watcher/internal/domain"
)

const computeBudgetProgram = "ComputeBudget111111111111111111111111111111"

var watched = solana.MustPublicKeyFromBase58("MoonCVVNZFSYkqNXP6bxHLPL6QQJiMagDL3qcqUQTrG")

func testKey(b byte) string {
	return solana.PublicKeyFromBytes(bytes.Repeat([]byte{b}, 32)).String()
}

func tradeAccounts() []string {
	accounts := make([]string, 10)
	for i := range accounts {
		accounts[i] = testKey(byte(0x10 + i))
	}
	accounts[decoder.TradeSenderIndex] = testKey(0xAA)
	accounts[decoder.TradeCurveIndex] = testKey(0xBB)
	accounts[decoder.TradeMintIndex] = testKey(0xCC)
	return accounts
}

func createAccounts() []string {
	return []string{testKey(0xAA), testKey(0x01), testKey(0xBB), testKey(0xCC), testKey(0x02)}
}

func tradePayload(disc decoder.Discriminator, amount, collateral, slippage uint64) []byte {
	buf := make([]byte, 32)
	copy(buf, disc[:])
	binary.LittleEndian.PutUint64(buf[8:], amount)
	binary.LittleEndian.PutUint64(buf[16:], collateral)
	binary.LittleEndian.PutUint64(buf[24:], slippage)
	return buf
}

func createPayload(name, symbol, uri string) []byte {
	var buf bytes.Buffer
	buf.Write(decoder.CreateDiscriminator[:])
	for _, s := range []string{name, symbol, uri} {
		binary.Write(&buf, binary.LittleEndian, uint32(len(s)))
		buf.WriteString(s)
	}
	return buf.Bytes()
}

type testInstruction struct {
	ProgramID string   `json:"programId,omitempty"`
	Accounts  []string `json:"accounts"`
	Data      string   `json:"data"`
}

func preamble() testInstruction {
	return testInstruction{ProgramID: computeBudgetProgram, Accounts: []string{}, Data: "3DdGGhkhJbjm"}
}

func watchedIx(data []byte, accounts []string) testInstruction {
	return testInstruction{ProgramID: watched.String(), Accounts: accounts, Data: base58.Encode(data)}
}

func frame(t *testing.T, instructions ...testInstruction) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "transactionNotification",
		"params": map[string]interface{}{
			"subscription": 1,
			"result": map[string]interface{}{
				"context": map[string]interface{}{"slot": 250000001},
				"value": map[string]interface{}{
					"signature": "5sig",
					"slot":      250000001,
					"transaction": map[string]interface{}{
						"meta": map[string]interface{}{"err": nil},
						"transaction": map[string]interface{}{
							"signatures": []string{"5sig"},
							"message": map[string]interface{}{
								"instructions": instructions,
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

func TestParse_ScenarioA_Sell(t *testing.T) {
	p := New(watched)

	n, err := p.Parse(frame(t, preamble(), watchedIx(tradePayload(decoder.SellDiscriminator, 1, 2, 3), tradeAccounts())))
	require.NoError(t, err)

	assert.Equal(t, uint64(250000001), n.Slot)
	assert.Equal(t, "5sig", n.Signature)

	sell, ok := n.Event.(*domain.SellEvent)
	require.True(t, ok, "expected *SellEvent, got %T", n.Event)
	assert.Equal(t, uint64(1), sell.Amount)
	assert.Equal(t, uint64(2), sell.CollateralAmount)
	assert.Equal(t, uint64(3), sell.SlippageBps)
	assert.Equal(t, testKey(0xAA), sell.Sender.String())
	assert.Equal(t, testKey(0xBB), sell.CurveAccount.String())
	assert.Equal(t, testKey(0xCC), sell.Mint.String())
}

func TestParse_ScenarioB_Buy(t *testing.T) {
	p := New(watched)

	n, err := p.Parse(frame(t, preamble(), watchedIx(tradePayload(decoder.BuyDiscriminator, 1, 2, 3), tradeAccounts())))
	require.NoError(t, err)

	buy, ok := n.Event.(*domain.BuyEvent)
	require.True(t, ok, "expected *BuyEvent, got %T", n.Event)
	assert.Equal(t, uint64(1), buy.Amount)
	assert.Equal(t, uint64(2), buy.CollateralAmount)
	assert.Equal(t, uint64(3), buy.SlippageBps)
	assert.Equal(t, testKey(0xCC), buy.Mint.String())
}

func TestParse_ScenarioC_CreateWithoutDevBuy(t *testing.T) {
	p := New(watched)

	n, err := p.Parse(frame(t, preamble(), watchedIx(createPayload("PUMP", "PMP", "https://example.com/x.json"), createAccounts())))
	require.NoError(t, err)

	create, ok := n.Event.(*domain.CreateEvent)
	require.True(t, ok, "expected *CreateEvent, got %T", n.Event)
	assert.Equal(t, "PUMP", create.Name)
	assert.Equal(t, "PMP", create.Symbol)
	assert.Equal(t, "https://example.com/x.json", create.URI)
	assert.Equal(t, testKey(0xAA), create.Sender.String())
	assert.Equal(t, testKey(0xBB), create.CurveAccount.String())
	assert.Equal(t, testKey(0xCC), create.Mint.String())
	assert.Nil(t, create.BuyEvent)
}

func TestParse_ScenarioD_CreateWithDevBuy(t *testing.T) {
	p := New(watched)

	n, err := p.Parse(frame(t,
		preamble(),
		watchedIx(createPayload("PUMP", "PMP", "https://example.com/x.json"), createAccounts()),
		watchedIx(tradePayload(decoder.BuyDiscriminator, 1_000_000_000_000_000_000, 7, 100), tradeAccounts()),
	))
	require.NoError(t, err)

	create, ok := n.Event.(*domain.CreateEvent)
	require.True(t, ok, "expected *CreateEvent, got %T", n.Event)
	require.NotNil(t, create.BuyEvent)
	assert.Equal(t, uint64(1_000_000_000_000_000_000), create.BuyEvent.Amount)
	assert.Equal(t, uint64(7), create.BuyEvent.CollateralAmount)
}

func TestParse_DevBuyWithoutProgramIDUsesCreateAccounts(t *testing.T) {
	p := New(watched)

	// Create accounts are long enough for the trade layout here.
	accounts := tradeAccounts()
	accounts[decoder.CreateCurveIndex] = testKey(0xBB)
	accounts[decoder.CreateMintIndex] = testKey(0xCC)

	n, err := p.Parse(frame(t,
		preamble(),
		watchedIx(createPayload("N", "S", "U"), accounts),
		testInstruction{Data: base58.Encode(tradePayload(decoder.BuyDiscriminator, 42, 0, 0))},
	))
	require.NoError(t, err)

	create := n.Event.(*domain.CreateEvent)
	require.NotNil(t, create.BuyEvent)
	assert.Equal(t, uint64(42), create.BuyEvent.Amount)
}

func TestParse_DevBuyIgnoredWhenNotABuy(t *testing.T) {
	p := New(watched)

	tests := []struct {
		name string
		next testInstruction
	}{
		{"other program", testInstruction{ProgramID: computeBudgetProgram, Accounts: tradeAccounts(),
			Data: base58.Encode(tradePayload(decoder.BuyDiscriminator, 1, 2, 3))}},
		{"sell", watchedIx(tradePayload(decoder.SellDiscriminator, 1, 2, 3), tradeAccounts())},
		{"bad base58", testInstruction{ProgramID: watched.String(), Data: "0OIl"}},
		{"truncated buy", watchedIx(tradePayload(decoder.BuyDiscriminator, 1, 2, 3)[:20], tradeAccounts())},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := p.Parse(frame(t, preamble(), watchedIx(createPayload("N", "S", "U"), createAccounts()), tt.next))
			require.NoError(t, err)

			create := n.Event.(*domain.CreateEvent)
			assert.Nil(t, create.BuyEvent)
		})
	}
}

func TestParse_ScenarioE_UnknownDiscriminator(t *testing.T) {
	p := New(watched)

	data := tradePayload(decoder.Discriminator{0xaf, 0xaf, 0x6d, 0x1f, 0x0d, 0x98, 0x9b, 0xed}, 1, 2, 3)
	n, err := p.Parse(frame(t, preamble(), watchedIx(data, tradeAccounts())))

	assert.ErrorIs(t, err, decoder.ErrUnknownDiscriminator)
	require.NotNil(t, n)
	assert.Nil(t, n.Event)
	assert.Equal(t, "5sig", n.Signature)
}

func TestParse_ScenarioF_MissingTransaction(t *testing.T) {
	p := New(watched)

	b, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "transactionNotification",
		"params": map[string]interface{}{
			"result": map[string]interface{}{
				"value": map[string]interface{}{"slot": 1},
			},
		},
	})
	require.NoError(t, err)

	n, err := p.Parse(b)
	assert.Nil(t, n)
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestParse_ScansForWatchedProgram(t *testing.T) {
	p := New(watched)

	// Two preamble instructions push the event to index 2.
	n, err := p.Parse(frame(t,
		preamble(),
		preamble(),
		watchedIx(tradePayload(decoder.SellDiscriminator, 9, 8, 7), tradeAccounts()),
	))
	require.NoError(t, err)

	sell, ok := n.Event.(*domain.SellEvent)
	require.True(t, ok, "expected *SellEvent, got %T", n.Event)
	assert.Equal(t, uint64(9), sell.Amount)
}

func TestParse_FallsBackToIndexOne(t *testing.T) {
	p := New(watched)

	ix := watchedIx(tradePayload(decoder.BuyDiscriminator, 5, 0, 0), tradeAccounts())
	ix.ProgramID = ""

	n, err := p.Parse(frame(t, preamble(), ix))
	require.NoError(t, err)
	assert.Equal(t, domain.EventKindBuy, n.Event.Kind())
}

func TestParse_DevBuyAttachmentByLength(t *testing.T) {
	p := New(watched)
	create := watchedIx(createPayload("N", "S", "U"), createAccounts())
	buy := watchedIx(tradePayload(decoder.BuyDiscriminator, 1, 2, 3), tradeAccounts())

	n, err := p.Parse(frame(t, preamble(), create))
	require.NoError(t, err)
	assert.Nil(t, n.Event.(*domain.CreateEvent).BuyEvent)

	n, err = p.Parse(frame(t, preamble(), create, buy))
	require.NoError(t, err)
	assert.NotNil(t, n.Event.(*domain.CreateEvent).BuyEvent)
}

func TestParse_Robustness(t *testing.T) {
	p := New(watched)

	truncated := createPayload("PUMP", "PMP", "uri")
	truncated = truncated[:len(truncated)-2]

	tests := []struct {
		name    string
		frame   []byte
		wantErr error
	}{
		{"invalid json", []byte(`{"params":`), ErrMalformedFrame},
		{"not an object", []byte(`[1,2,3]`), ErrMalformedFrame},
		{"empty object", []byte(`{}`), ErrMalformedFrame},
		{"wrong field type", []byte(`{"params":{"result":{"value":{"transaction":{"transaction":{"message":{"instructions":"x"}}}}}}}`), ErrMalformedFrame},
		{"no instructions", frame(t), ErrNoTargetInstruction},
		{"single foreign instruction", frame(t, preamble()), ErrNoTargetInstruction},
		{"bad base58", frame(t, preamble(), testInstruction{ProgramID: watched.String(), Data: "0OIl"}), ErrInvalidData},
		{"empty data", frame(t, preamble(), testInstruction{ProgramID: watched.String()}), ErrInvalidData},
		{"short discriminator", frame(t, preamble(), watchedIx([]byte{0x33, 0xe6}, tradeAccounts())), decoder.ErrShortBuffer},
		{"truncated create", frame(t, preamble(), watchedIx(truncated, createAccounts())), decoder.ErrShortBuffer},
		{"missing accounts", frame(t, preamble(), watchedIx(tradePayload(decoder.SellDiscriminator, 1, 2, 3), tradeAccounts()[:3])), decoder.ErrMissingAccount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var n *Notification
			var err error
			assert.NotPanics(t, func() {
				n, err = p.Parse(tt.frame)
			})
			assert.ErrorIs(t, err, tt.wantErr)
			if n != nil {
				assert.Nil(t, n.Event)
			}
		})
	}
}
