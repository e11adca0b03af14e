package history

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moonshot-watcher/internal/domain"
	"moonshot-watcher/internal/solana"
	"moonshot-watcher/internal/solana/stub"
	"moonshot-watcher/internal/storage/memory"
)

func key(b byte) solanago.PublicKey {
	return solanago.PublicKeyFromBytes(bytes.Repeat([]byte{b}, 32))
}

// fakeMetadata returns synthetic metadata and records lookups.
type fakeMetadata struct {
	mu      sync.Mutex
	calls   []string
	failFor map[string]bool
}

func (f *fakeMetadata) Fetch(_ context.Context, mint solanago.PublicKey) (*domain.OnChainMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, mint.String())
	if f.failFor[mint.String()] {
		return nil, errors.New("account missing")
	}
	return &domain.OnChainMetadata{Mint: mint, Name: "Token " + mint.String()[:4], Symbol: "TKN"}, nil
}

func signatures(prefix string, n int) []solana.SignatureInfo {
	sigs := make([]solana.SignatureInfo, n)
	for i := range sigs {
		sigs[i] = solana.SignatureInfo{Signature: fmt.Sprintf("%s-%d", prefix, i)}
	}
	return sigs
}

// addMint registers a mint whose earliest transaction does or does not invoke the watched program.
func addMint(rpc *stub.RPCClient, mint string, fromProgram bool) {
	sigs := signatures(mint, 3)
	rpc.AddSignatures(mint, sigs)

	program := solana.TokenProgramID.String()
	if fromProgram {
		program = solana.WatchedProgramID.String()
	}
	rpc.AddTransaction(&solana.Transaction{
		Signature: sigs[len(sigs)-1].Signature,
		Slot:      250000000,
		BlockTime: 1700000000,
		Message: &solana.TransactionMessage{
			Instructions: []solana.Instruction{
				{ProgramID: "ComputeBudget111111111111111111111111111111"},
				{ProgramID: program},
			},
		},
	})
}

func quietLogger() *logrus.Logger {
	log, _ := test.NewNullLogger()
	return log
}

func TestResolver_Resolve(t *testing.T) {
	rpc := stub.NewRPCClient()
	creator := key(1)
	m1, m2, m3 := key(2).String(), key(3).String(), key(4).String()

	rpc.AddTokenAccounts(creator.String(), []solana.TokenAccount{
		{Pubkey: "acc1", Mint: m1, Parsed: true},
		{Pubkey: "acc2", Mint: m2, Parsed: true},
		{Pubkey: "acc3", Mint: m1, Parsed: true},
		{Pubkey: "acc4", Parsed: false},
		{Pubkey: "acc5", Mint: m3, Parsed: true},
	})
	addMint(rpc, m1, true)
	addMint(rpc, m2, false)
	// m3 has no signatures at all

	md := &fakeMetadata{}
	r := New(rpc, md, WithLogger(quietLogger()))

	history, err := r.Resolve(context.Background(), creator)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, m1, history[0].Mint.String())
	assert.Equal(t, []string{m1}, md.calls)
	assert.Equal(t, 2, rpc.Calls("getTransaction"))
}

func TestResolver_PreservesEnumerationOrder(t *testing.T) {
	rpc := stub.NewRPCClient()
	creator := key(1)

	var (
		accounts []solana.TokenAccount
		want     []string
	)
	for b := byte(10); b < 30; b++ {
		mint := key(b).String()
		accounts = append(accounts, solana.TokenAccount{Mint: mint, Parsed: true})
		addMint(rpc, mint, b%2 == 0)
		if b%2 == 0 {
			want = append(want, mint)
		}
	}
	rpc.AddTokenAccounts(creator.String(), accounts)

	r := New(rpc, &fakeMetadata{}, WithConcurrency(8), WithLogger(quietLogger()))

	history, err := r.Resolve(context.Background(), creator)
	require.NoError(t, err)

	got := make([]string, len(history))
	for i, md := range history {
		got[i] = md.Mint.String()
	}
	assert.Equal(t, want, got)
}

func TestResolver_EarliestSignature_Paging(t *testing.T) {
	tests := []struct {
		name      string
		count     int
		wantSig   string
		wantCalls int
	}{
		{"single short page", 3, "m-2", 1},
		{"exactly one full page", solana.MaxSignaturesPage, fmt.Sprintf("m-%d", solana.MaxSignaturesPage-1), 2},
		{"three pages", 2*solana.MaxSignaturesPage + 5, fmt.Sprintf("m-%d", 2*solana.MaxSignaturesPage+4), 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rpc := stub.NewRPCClient()
			rpc.AddSignatures("m", signatures("m", tt.count))

			sig, err := New(rpc, &fakeMetadata{}).EarliestSignature(context.Background(), "m")
			require.NoError(t, err)
			assert.Equal(t, tt.wantSig, sig)
			assert.Equal(t, tt.wantCalls, rpc.Calls("getSignaturesForAddress"))
		})
	}
}

func TestResolver_EarliestSignature_EmptyFirstPage(t *testing.T) {
	rpc := stub.NewRPCClient()

	_, err := New(rpc, &fakeMetadata{}).EarliestSignature(context.Background(), "m")
	assert.ErrorIs(t, err, ErrNoSignatures)
	assert.Equal(t, 1, rpc.Calls("getSignaturesForAddress"))
}

func TestResolver_Qualifies_Memoized(t *testing.T) {
	rpc := stub.NewRPCClient()
	mint := key(7).String()
	addMint(rpc, mint, true)

	store := memory.NewMintOriginStore()
	r := New(rpc, &fakeMetadata{}, WithOriginStore(store))

	ok, err := r.Qualifies(context.Background(), mint)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Qualifies(context.Background(), mint)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, 1, rpc.Calls("getTransaction"))
	assert.Equal(t, 1, rpc.Calls("getSignaturesForAddress"))

	origin, err := store.Get(context.Background(), mint)
	require.NoError(t, err)
	assert.Equal(t, mint+"-2", origin.EarliestSignature)
	assert.Greater(t, origin.CheckedAt, int64(0))
}

func TestResolver_Qualifies_CachedAnswerWins(t *testing.T) {
	rpc := stub.NewRPCClient()
	store := memory.NewMintOriginStore()
	require.NoError(t, store.Insert(context.Background(), &domain.MintOrigin{Mint: "cached", Qualified: true}))

	ok, err := New(rpc, &fakeMetadata{}, WithOriginStore(store)).Qualifies(context.Background(), "cached")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, rpc.Calls("getSignaturesForAddress"))
}

func TestResolver_Qualifies_TransactionMissing(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddSignatures("m", signatures("m", 1))

	_, err := New(rpc, &fakeMetadata{}).Qualifies(context.Background(), "m")
	assert.Error(t, err)
}

func TestResolver_TokenAccountsError(t *testing.T) {
	rpc := stub.NewRPCClient()
	creator := key(1)
	rpc.SetError("getTokenAccountsByOwner", creator.String(), errors.New("node down"))

	_, err := New(rpc, &fakeMetadata{}).Resolve(context.Background(), creator)
	assert.Error(t, err)
}

func TestResolver_PerMintFailuresAreSkipped(t *testing.T) {
	rpc := stub.NewRPCClient()
	creator := key(1)
	broken, noMeta, good := key(2).String(), key(3).String(), key(4).String()

	rpc.AddTokenAccounts(creator.String(), []solana.TokenAccount{
		{Mint: broken, Parsed: true},
		{Mint: noMeta, Parsed: true},
		{Mint: good, Parsed: true},
	})
	addMint(rpc, broken, true)
	addMint(rpc, noMeta, true)
	addMint(rpc, good, true)
	rpc.SetError("getSignaturesForAddress", broken, errors.New("rate limited"))

	log, hook := test.NewNullLogger()
	md := &fakeMetadata{failFor: map[string]bool{noMeta: true}}

	history, err := New(rpc, md, WithLogger(log)).Resolve(context.Background(), creator)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, good, history[0].Mint.String())

	warnings := 0
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			warnings++
		}
	}
	assert.Equal(t, 2, warnings)
}

func TestResolver_Qualifies_LogsOrigin(t *testing.T) {
	rpc := stub.NewRPCClient()
	mint := key(9).String()
	addMint(rpc, mint, true)

	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	r := New(rpc, &fakeMetadata{}, WithLogger(log))

	ok, err := r.Qualifies(context.Background(), mint)
	require.NoError(t, err)
	assert.True(t, ok)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "mint origin resolved", entry.Message)
	assert.Equal(t, mint, entry.Data["mint"])
	assert.Equal(t, mint+"-2", entry.Data["signature"])
	assert.Equal(t, int64(1700000000), entry.Data["block_time"])
	assert.Equal(t, true, entry.Data["qualified"])
}
