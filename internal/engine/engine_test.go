package engine_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/memeflow/copytrade/internal/authority"
	"github.com/memeflow/copytrade/internal/commission"
	"github.com/memeflow/copytrade/internal/engine"
	"github.com/memeflow/copytrade/internal/events"
	"github.com/memeflow/copytrade/internal/localnet"
	"github.com/memeflow/copytrade/internal/metrics"
	"github.com/memeflow/copytrade/internal/program"
	"github.com/memeflow/copytrade/internal/storage"
	"github.com/memeflow/copytrade/internal/storage/memory"
	"github.com/memeflow/copytrade/internal/storage/models"
	"github.com/memeflow/copytrade/internal/wallet"
)

// recorder collects every published event.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) ofType(t events.EventType) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Type() == t {
			out = append(out, e)
		}
	}
	return out
}

type swapFunc func(ctx context.Context, executor *wallet.Wallet, req authority.SwapRequest) (*authority.SwapResult, error)

func (f swapFunc) ExecuteSwap(ctx context.Context, executor *wallet.Wallet, req authority.SwapRequest) (*authority.SwapResult, error) {
	return f(ctx, executor, req)
}

func fixedSwap(amountIn, amountOut uint64) swapFunc {
	return func(_ context.Context, _ *wallet.Wallet, req authority.SwapRequest) (*authority.SwapResult, error) {
		return &authority.SwapResult{
			Signature: solana.Signature{1},
			Receipt: &program.SwapReceipt{
				AmountIn:  amountIn,
				AmountOut: amountOut,
				CostBasis: req.Args.CostBasis,
				Fees:      program.ComputeFees(amountOut, req.Args.CostBasis),
			},
		}, nil
	}
}

func newWallet(t *testing.T) *wallet.Wallet {
	t.Helper()
	w, err := wallet.NewRandomWallet()
	require.NoError(t, err)
	return w
}

// seedNetwork builds root <- s1 (V4) <- follower and root <- s2 (V1).
func seedNetwork(t *testing.T, store storage.Store) {
	t.Helper()
	ctx := context.Background()
	for _, a := range []*models.Affiliate{
		{UserID: "root"},
		{UserID: "s1", SponsorID: "root", Rank: 4},
		{UserID: "s2", SponsorID: "root", Rank: 1},
		{UserID: "follower", SponsorID: "s1"},
	} {
		require.NoError(t, store.UpsertAffiliate(ctx, a))
	}
}

func newEngine(t *testing.T, swapper engine.Swapper, store storage.Store, bus events.Publisher, executor *wallet.Wallet) *engine.Engine {
	t.Helper()
	return engine.New(engine.Config{Workers: 2, MaxUplineDepth: 32, QuoteDecimals: 3},
		swapper, executor, store, bus, metrics.NewCollector(prometheus.NewRegistry()), zaptest.NewLogger(t))
}

func testTrade(id string) *engine.TradeClosed {
	return &engine.TradeClosed{
		CopyTradeID:      id,
		FollowerID:       "follower",
		FollowerWallet:   solana.NewWallet().PublicKey(),
		SourceToken:      solana.NewWallet().PublicKey(),
		DestinationToken: solana.NewWallet().PublicKey(),
		FeeCollector:     solana.NewWallet().PublicKey(),
		Venue:            solana.NewWallet().PublicKey(),
		AmountIn:         1_000_000,
		MinimumOut:       1,
		CostBasis:        900_000,
	}
}

func TestSettleOnLocalnet(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	cluster := localnet.New(program.DefaultProgramID, solana.NewWallet().PublicKey(), logger)
	client := authority.NewClient(program.DefaultProgramID, cluster, logger,
		authority.WithRetry(time.Millisecond, 3, time.Second))

	admin, executor, user := newWallet(t), newWallet(t), newWallet(t)
	memeMint, quoteMint := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()

	userMeme, err := cluster.CreateTokenAccount(memeMint, user.PublicKey, 5_000_000)
	require.NoError(t, err)
	userQuote, err := cluster.CreateTokenAccount(quoteMint, user.PublicKey, 1_000_000)
	require.NoError(t, err)
	feeCollector, err := cluster.CreateTokenAccount(quoteMint, admin.PublicKey, 0)
	require.NoError(t, err)
	pool, err := cluster.CreatePool(memeMint, quoteMint, 1_000_000_000, 1_000_000_000)
	require.NoError(t, err)
	route, err := cluster.RouteAccounts(pool)
	require.NoError(t, err)

	_, err = client.Initialize(ctx, admin, admin.PublicKey, executor.PublicKey, cluster.Venue.ProgramID())
	require.NoError(t, err)
	_, err = client.DelegateAuthority(ctx, user, userMeme, executor.PublicKey, 2_000_000)
	require.NoError(t, err)

	store := memory.New()
	seedNetwork(t, store)
	rec := &recorder{}
	e := newEngine(t, client, store, rec, executor)

	trade := &engine.TradeClosed{
		CopyTradeID:      "trade-1",
		FollowerID:       "follower",
		FollowerWallet:   user.PublicKey,
		SourceToken:      userMeme,
		DestinationToken: userQuote,
		FeeCollector:     feeCollector,
		Venue:            cluster.Venue.ProgramID(),
		AmountIn:         1_000_000,
		MinimumOut:       990_000,
		CostBasis:        900_000,
	}
	for _, m := range route {
		trade.Route = append(trade.Route, engine.RouteAccount{Pubkey: m.PublicKey, Writable: m.IsWritable})
	}

	// без делегирования destination комиссия не списывается, расчёт не сохраняется
	_, err = e.Settle(ctx, trade)
	require.Error(t, err)
	assert.ErrorIs(t, err, program.ErrTokenOperationFailed)
	_, err = store.GetSettlement(ctx, "trade-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	require.Len(t, rec.ofType(events.SettlementFailed), 1)
	assert.Equal(t, engine.StageSwap, rec.ofType(events.SettlementFailed)[0].(*events.SettlementFailedEvent).Stage)

	_, err = client.DelegateAuthority(ctx, user, userQuote, executor.PublicKey, 1_000_000)
	require.NoError(t, err)

	settlement, err := e.Settle(ctx, trade)
	require.NoError(t, err)

	// out = 1e9 * 1e6 / (1e9 + 1e6) = 999000, profit = 99000 base units = 99 quote
	assert.Equal(t, uint64(999_000), settlement.AmountOut)
	assert.True(t, decimal.NewFromInt(99).Equal(settlement.ProfitAmount), settlement.ProfitAmount.String())
	assert.True(t, decimal.RequireFromString("29.7").Equal(settlement.PerformanceFee))

	fee, err := cluster.TokenBalance(ctx, feeCollector)
	require.NoError(t, err)
	assert.Equal(t, uint64(29_700), fee)

	amounts := map[string]string{}
	for _, d := range settlement.Distributions {
		amounts[d.RecipientID] = d.Amount.String()
	}
	assert.Equal(t, map[string]string{
		"s1":                      "7.92",
		"root":                    "0",
		commission.PlatformSinkID: "11.88",
	}, amounts)

	s1, err := store.GetAffiliate(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "7.92", s1.TotalEarnings.String())

	// root: 99 network profit, lines s1 (V4) and s2 (V1) => V2
	root, err := store.GetAffiliate(ctx, "root")
	require.NoError(t, err)
	assert.Equal(t, 2, root.Rank)
	progress, err := store.ListRankProgress(ctx, "root")
	require.NoError(t, err)
	require.Len(t, progress, 1)
	assert.Equal(t, 0, progress[0].FromRank)
	assert.Equal(t, 2, progress[0].ToRank)

	require.Len(t, rec.ofType(events.SwapExecuted), 1)
	require.Len(t, rec.ofType(events.CommissionDistributed), 1)
	require.Len(t, rec.ofType(events.RankPromoted), 1)

	_, err = e.Settle(ctx, trade)
	assert.ErrorIs(t, err, engine.ErrAlreadySettled)
}

func TestSettleSwapFailureLeavesNoSettlement(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seedNetwork(t, store)
	rec := &recorder{}
	swapper := swapFunc(func(context.Context, *wallet.Wallet, authority.SwapRequest) (*authority.SwapResult, error) {
		return nil, program.ErrDelegationInactive
	})
	e := newEngine(t, swapper, store, rec, newWallet(t))

	_, err := e.Settle(ctx, testTrade("trade-x"))
	assert.ErrorIs(t, err, program.ErrDelegationInactive)

	_, err = store.GetSettlement(ctx, "trade-x")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	failed := rec.ofType(events.SettlementFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, engine.StageSwap, failed[0].(*events.SettlementFailedEvent).Stage)
}

func TestSettleUnknownFollowerPaysSink(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	e := newEngine(t, fixedSwap(1_000_000, 1_100_000), store, &recorder{}, newWallet(t))

	trade := testTrade("trade-orphan")
	trade.CostBasis = 1_000_000
	settlement, err := e.Settle(ctx, trade)
	require.NoError(t, err)

	// profit 100 quote, sink takes the whole 20%
	require.Len(t, settlement.Distributions, 1)
	assert.Equal(t, commission.PlatformSinkID, settlement.Distributions[0].RecipientID)
	assert.Equal(t, "20", settlement.Distributions[0].Amount.String())
}

func TestSettleRejectsConcurrentDuplicate(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seedNetwork(t, store)

	entered := make(chan struct{})
	release := make(chan struct{})
	inner := fixedSwap(1_000_000, 1_000_000)
	swapper := swapFunc(func(ctx context.Context, w *wallet.Wallet, req authority.SwapRequest) (*authority.SwapResult, error) {
		close(entered)
		<-release
		return inner(ctx, w, req)
	})
	e := newEngine(t, swapper, store, &recorder{}, newWallet(t))

	trade := testTrade("trade-lock")
	done := make(chan error, 1)
	go func() {
		_, err := e.Settle(ctx, trade)
		done <- err
	}()

	<-entered
	_, err := e.Settle(ctx, trade)
	assert.ErrorIs(t, err, engine.ErrInFlight)

	close(release)
	require.NoError(t, <-done)
}

func TestRunSettlesEveryTrade(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := memory.New()
	seedNetwork(t, store)
	var swaps atomic.Int32
	inner := fixedSwap(1_000_000, 1_000_000)
	swapper := swapFunc(func(ctx context.Context, w *wallet.Wallet, req authority.SwapRequest) (*authority.SwapResult, error) {
		swaps.Add(1)
		return inner(ctx, w, req)
	})
	e := newEngine(t, swapper, store, &recorder{}, newWallet(t))

	trades := make(chan *engine.TradeClosed, 8)
	ids := []string{"a", "b", "c", "d", "a"}
	for _, id := range ids {
		trades <- testTrade(id)
	}
	close(trades)

	require.NoError(t, e.Run(ctx, trades))

	for _, id := range []string{"a", "b", "c", "d"} {
		_, err := store.GetSettlement(ctx, id)
		assert.NoError(t, err, id)
	}
	// the repeated "a" is skipped either as in flight or as settled
	assert.Equal(t, int32(4), swaps.Load())
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	e := newEngine(t, fixedSwap(1, 1), memory.New(), &recorder{}, newWallet(t))

	trades := make(chan *engine.TradeClosed)
	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(ctx, trades) }()

	cancel()
	select {
	case err := <-errCh:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
}

// flakyStore fails the first settlement write.
type flakyStore struct {
	storage.Store
	failed atomic.Bool
}

func (s *flakyStore) RecordSettlement(ctx context.Context, st *models.Settlement) error {
	if s.failed.CompareAndSwap(false, true) {
		return errors.New("connection reset by peer")
	}
	return s.Store.RecordSettlement(ctx, st)
}

func TestSettleResumesFromRecordedSwap(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: memory.New()}
	seedNetwork(t, store)

	var swaps atomic.Int32
	swapper := swapFunc(func(ctx context.Context, w *wallet.Wallet, req authority.SwapRequest) (*authority.SwapResult, error) {
		swaps.Add(1)
		return fixedSwap(1_000_000, 999_000)(ctx, w, req)
	})
	bus := &recorder{}
	eng := newEngine(t, swapper, store, bus, newWallet(t))

	_, err := eng.Settle(ctx, testTrade("t1"))
	require.Error(t, err)
	_, err = store.GetSettlement(ctx, "t1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	rec, err := store.GetSwap(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, uint64(999_000), rec.AmountOut)

	st, err := eng.Settle(ctx, testTrade("t1"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), swaps.Load(), "retried trade must not swap again")
	assert.Equal(t, rec.Signature, st.Signature)
	assert.Equal(t, uint64(999_000), st.AmountOut)
	assert.True(t, st.ProfitAmount.Equal(decimal.NewFromInt(99)), st.ProfitAmount.String())
	assert.Len(t, bus.ofType(events.SwapExecuted), 1)
	assert.Len(t, bus.ofType(events.CommissionDistributed), 1)

	_, err = eng.Settle(ctx, testTrade("t1"))
	assert.ErrorIs(t, err, engine.ErrAlreadySettled)
}
