// =============================
// File: internal/engine/engine.go
// =============================
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/memeflow/copytrade/internal/authority"
	"github.com/memeflow/copytrade/internal/commission"
	"github.com/memeflow/copytrade/internal/events"
	"github.com/memeflow/copytrade/internal/logger"
	"github.com/memeflow/copytrade/internal/metrics"
	"github.com/memeflow/copytrade/internal/storage"
	"github.com/memeflow/copytrade/internal/storage/models"
	"github.com/memeflow/copytrade/internal/wallet"
)

var (
	// ErrInFlight is returned when the same (follower, trade) is already being settled.
	ErrInFlight = errors.New("settlement already in flight")
	// ErrAlreadySettled is returned for a copy trade with a persisted settlement.
	ErrAlreadySettled = errors.New("copy trade already settled")
)

// Settlement stages, used for metrics and failure events.
const (
	StageUpline  = "upline"
	StageSwap    = "swap"
	StagePersist = "persist"
	StageRanking = "ranking"
)

// Swapper executes a delegated swap through the authority program.
type Swapper interface {
	ExecuteSwap(ctx context.Context, executor *wallet.Wallet, req authority.SwapRequest) (*authority.SwapResult, error)
}

// Config controls the worker pool and commission parameters.
type Config struct {
	Workers        int
	MaxUplineDepth int
	// QuoteDecimals converts on-chain base units of the destination token
	// into the decimal profit the commission engine works with.
	QuoteDecimals int32
}

// Engine settles closed copy trades: swap, commission split, persistence
// and rank evaluation.
type Engine struct {
	cfg      Config
	swapper  Swapper
	executor *wallet.Wallet
	store    storage.Store
	bus      events.Publisher
	metrics  *metrics.Collector
	logger   *zap.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

func New(cfg Config, swapper Swapper, executor *wallet.Wallet, store storage.Store, bus events.Publisher, collector *metrics.Collector, logger *zap.Logger) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Engine{
		cfg:      cfg,
		swapper:  swapper,
		executor: executor,
		store:    store,
		bus:      bus,
		metrics:  collector,
		logger:   logger.Named("engine"),
		inflight: make(map[string]struct{}),
	}
}

// Run settles trades from the channel with cfg.Workers workers until the
// channel is closed or ctx is cancelled. Per-trade failures are logged and
// published; they do not stop the pool.
func (e *Engine) Run(ctx context.Context, trades <-chan *TradeClosed) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < e.cfg.Workers; i++ {
		logger := e.logger.With(zap.Int("worker_id", i+1))
		g.Go(func() error {
			logger.Debug("Worker started")
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case t, ok := <-trades:
					if !ok {
						logger.Debug("Trade channel closed")
						return nil
					}
					if _, err := e.Settle(ctx, t); err != nil {
						e.logSettleError(logger, t, err)
					}
				}
			}
		})
	}
	return g.Wait()
}

func (e *Engine) logSettleError(logger *zap.Logger, t *TradeClosed, err error) {
	fields := []zap.Field{
		zap.String("copy_trade_id", t.CopyTradeID),
		zap.String("follower_id", t.FollowerID),
		zap.Error(err),
	}
	if errors.Is(err, ErrAlreadySettled) || errors.Is(err, ErrInFlight) {
		logger.Info("Trade skipped", fields...)
		return
	}
	logger.Error("Settlement failed", fields...)
}

func (e *Engine) acquire(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inflight[key]; busy {
		return false
	}
	e.inflight[key] = struct{}{}
	return true
}

func (e *Engine) release(key string) {
	e.mu.Lock()
	delete(e.inflight, key)
	e.mu.Unlock()
}

// Settle runs one trade end to end. At most one settlement per
// (follower, trade) runs at a time, and a persisted settlement is never
// repeated. Rank evaluation errors are reported alongside a successful
// settlement.
func (e *Engine) Settle(ctx context.Context, t *TradeClosed) (*models.Settlement, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	key := t.Key()
	if !e.acquire(key) {
		return nil, fmt.Errorf("%w: %s", ErrInFlight, key)
	}
	defer e.release(key)

	log := logger.WithOperation(e.logger, "settle").With(
		zap.String("copy_trade_id", t.CopyTradeID),
		zap.String("follower_id", t.FollowerID))

	e.metrics.SettlementStarted()
	status := "failed"
	defer func() { e.metrics.SettlementDone(status) }()

	switch _, err := e.store.GetSettlement(ctx, t.CopyTradeID); {
	case err == nil:
		status = "duplicate"
		return nil, fmt.Errorf("%w: %s", ErrAlreadySettled, t.CopyTradeID)
	case !errors.Is(err, storage.ErrNotFound):
		return nil, e.fail(t, StagePersist, fmt.Errorf("check settlement: %w", err))
	}

	e.publish(&events.SettlementStartedEvent{
		BaseEvent:   events.NewBase(events.SettlementStarted),
		CopyTradeID: t.CopyTradeID,
		FollowerID:  t.FollowerID,
	})

	// Цепочка читается до свапа: без неё нельзя распределить комиссию.
	chain, err := e.uplineChain(ctx, t.FollowerID)
	if err != nil {
		return nil, e.fail(t, StageUpline, err)
	}

	swap, err := e.swap(ctx, t, log)
	if err != nil {
		return nil, err
	}

	profit := e.toQuote(swap.RealizedProfit)
	result := commission.ProcessTradeCommission(chain, profit)

	settlement := &models.Settlement{
		CopyTradeID:      t.CopyTradeID,
		FollowerID:       t.FollowerID,
		Signature:        swap.Signature,
		AmountIn:         swap.AmountIn,
		AmountOut:        swap.AmountOut,
		ProfitAmount:     result.ProfitAmount,
		PerformanceFee:   result.PerformanceFee,
		MasterTraderFee:  result.MasterTraderFee,
		NetworkFee:       result.NetworkFee,
		TotalDistributed: result.TotalDistributed,
		Distributions:    distributionRecords(t.CopyTradeID, result),
	}

	persistStart := time.Now()
	err = e.store.RecordSettlement(ctx, settlement)
	e.metrics.ObserveStage(StagePersist, time.Since(persistStart))
	if errors.Is(err, storage.ErrDuplicateKey) {
		// свап уже прошёл, но расчёт записал другой процесс
		log.Error("Settlement persisted concurrently after swap", zap.String("signature", settlement.Signature))
		status = "duplicate"
		return nil, fmt.Errorf("%w: %s", ErrAlreadySettled, t.CopyTradeID)
	}
	if err != nil {
		return nil, e.fail(t, StagePersist, fmt.Errorf("record settlement: %w", err))
	}

	e.publish(&events.CommissionDistributedEvent{
		BaseEvent:        events.NewBase(events.CommissionDistributed),
		CopyTradeID:      t.CopyTradeID,
		FollowerID:       t.FollowerID,
		Profit:           result.ProfitAmount,
		NetworkFee:       result.NetworkFee,
		TotalDistributed: result.TotalDistributed,
		Amounts:          result.CommissionAmounts,
	})

	log.Info("Trade settled",
		zap.String("signature", settlement.Signature),
		zap.String("profit", result.ProfitAmount.String()),
		zap.String("distributed", result.TotalDistributed.String()),
		zap.Int("upline", len(chain)))

	status = "settled"
	if profit.IsPositive() && len(chain) > 0 {
		rankStart := time.Now()
		err = e.updateRanks(ctx, chain, profit)
		e.metrics.ObserveStage(StageRanking, time.Since(rankStart))
		if err != nil {
			return settlement, e.fail(t, StageRanking, err)
		}
	}
	return settlement, nil
}

// swap executes the trade's swap at most once. A recorded swap without a
// settlement is left by an attempt that failed after the swap committed;
// settlement resumes from the record.
func (e *Engine) swap(ctx context.Context, t *TradeClosed, log *zap.Logger) (*models.SwapRecord, error) {
	rec, err := e.store.GetSwap(ctx, t.CopyTradeID)
	switch {
	case err == nil:
		log.Warn("Resuming settlement from recorded swap", zap.String("signature", rec.Signature))
		return rec, nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, e.fail(t, StagePersist, fmt.Errorf("check swap: %w", err))
	}

	start := time.Now()
	res, err := e.swapper.ExecuteSwap(ctx, e.executor, t.swapRequest())
	e.metrics.RecordContractCall("execute_swap", err)
	e.metrics.ObserveStage(StageSwap, time.Since(start))
	if err != nil {
		return nil, e.fail(t, StageSwap, err)
	}

	receipt := res.Receipt
	rec = &models.SwapRecord{
		CopyTradeID:    t.CopyTradeID,
		FollowerID:     t.FollowerID,
		Signature:      res.Signature.String(),
		AmountIn:       receipt.AmountIn,
		AmountOut:      receipt.AmountOut,
		RealizedProfit: receipt.RealizedProfit,
		PerformanceFee: receipt.PerformanceFee,
	}
	e.publish(&events.SwapExecutedEvent{
		BaseEvent:      events.NewBase(events.SwapExecuted),
		CopyTradeID:    t.CopyTradeID,
		FollowerID:     t.FollowerID,
		Signature:      rec.Signature,
		AmountIn:       rec.AmountIn,
		AmountOut:      rec.AmountOut,
		RealizedProfit: rec.RealizedProfit,
		PerformanceFee: rec.PerformanceFee,
	})

	if err := e.store.RecordSwap(ctx, rec); err != nil {
		// свап уже исполнен, поэтому расчёт продолжается без отметки
		log.Error("Executed swap not recorded", zap.String("signature", rec.Signature), zap.Error(err))
	}
	return rec, nil
}

// uplineChain loads the follower's sponsors. A follower outside the
// referral graph has no upline and the whole network fee goes to the sink.
func (e *Engine) uplineChain(ctx context.Context, followerID string) ([]commission.Upline, error) {
	start := time.Now()
	defer func() { e.metrics.ObserveStage(StageUpline, time.Since(start)) }()

	entries, err := e.store.UplineChain(ctx, followerID, e.cfg.MaxUplineDepth)
	if errors.Is(err, storage.ErrNotFound) {
		e.logger.Warn("Follower has no affiliate record", zap.String("follower_id", followerID))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("upline chain: %w", err)
	}

	chain := make([]commission.Upline, 0, len(entries))
	for _, u := range entries {
		chain = append(chain, commission.Upline{ID: u.UserID, Rank: commission.Rank(u.Rank)})
	}
	return chain, nil
}

// updateRanks credits profit to every upline and promotes those whose
// network now meets a higher rank's requirements.
func (e *Engine) updateRanks(ctx context.Context, chain []commission.Upline, profit decimal.Decimal) error {
	defer logger.TrackPerformance(e.logger, "rank_evaluation")()

	ids := make([]string, 0, len(chain))
	for _, u := range chain {
		ids = append(ids, u.ID)
	}
	if err := e.store.AddNetworkProfit(ctx, ids, profit); err != nil {
		return fmt.Errorf("add network profit: %w", err)
	}

	var errs []error
	for _, id := range ids {
		if err := e.evaluateRank(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) evaluateRank(ctx context.Context, userID string) error {
	a, err := e.store.GetAffiliate(ctx, userID)
	if err != nil {
		return err
	}
	stats, err := e.store.LineStats(ctx, userID, e.cfg.MaxUplineDepth)
	if err != nil {
		return err
	}

	lines := make([]commission.Rank, 0, len(stats.LineBestRanks))
	for _, r := range stats.LineBestRanks {
		lines = append(lines, commission.Rank(r))
	}
	current := commission.Rank(a.Rank)
	next := commission.QualifiedRank(current, commission.NetworkStats{
		NetworkProfit: stats.NetworkProfit,
		LineBestRanks: lines,
	})
	if next <= current {
		return nil
	}

	progress := &models.RankingProgress{
		UserID:        userID,
		ToRank:        int(next),
		NetworkProfit: stats.NetworkProfit,
	}
	err = e.store.RecordRankProgress(ctx, progress)
	if errors.Is(err, storage.ErrRankNotPromoted) {
		// обогнал параллельный расчёт
		return nil
	}
	if err != nil {
		return err
	}

	e.logger.Info("Affiliate promoted",
		zap.String("user_id", userID),
		zap.Stringer("from", commission.Rank(progress.FromRank)),
		zap.Stringer("to", next))
	e.publish(&events.RankPromotedEvent{
		BaseEvent:     events.NewBase(events.RankPromoted),
		UserID:        userID,
		FromRank:      progress.FromRank,
		ToRank:        progress.ToRank,
		NetworkProfit: stats.NetworkProfit,
	})
	return nil
}

func (e *Engine) toQuote(baseUnits uint64) decimal.Decimal {
	return decimal.NewFromUint64(baseUnits).Shift(-e.cfg.QuoteDecimals)
}

func distributionRecords(copyTradeID string, r commission.Result) []models.CommissionRecord {
	records := make([]models.CommissionRecord, 0, len(r.Allocations))
	for _, a := range r.Allocations {
		records = append(records, models.CommissionRecord{
			CopyTradeID:   copyTradeID,
			RecipientID:   a.ID,
			RecipientRank: int(a.Rank),
			Percentage:    a.Percentage,
			Amount:        r.CommissionAmounts[a.ID],
		})
	}
	return records
}

func (e *Engine) fail(t *TradeClosed, stage string, err error) error {
	e.publish(&events.SettlementFailedEvent{
		BaseEvent:   events.NewBase(events.SettlementFailed),
		CopyTradeID: t.CopyTradeID,
		FollowerID:  t.FollowerID,
		Stage:       stage,
		Error:       err,
	})
	return fmt.Errorf("%s: %w", stage, err)
}

func (e *Engine) publish(ev events.Event) {
	if err := e.bus.Publish(ev); err != nil {
		e.logger.Warn("Event dropped", zap.String("type", string(ev.Type())), zap.Error(err))
	}
}
