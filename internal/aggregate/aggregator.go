// Package aggregate folds decoded pool events into per-window swap and fee metrics.
package aggregate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"poolcore/internal/model"
)

// MetricsStore receives finished windows.
type MetricsStore interface {
	UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error
}

// Config controls aggregation behavior.
type Config struct {
	WindowSeconds uint64
	BatchSize     int
	RecomputeFrom uint64
	StateStore    StateStore
}

// Aggregator aggregates typed events into pool window metrics.
type Aggregator struct {
	cfg          Config
	store        MetricsStore
	tokens       *PoolTokenCache
	logger       *zap.Logger
	accumulators map[string]*Accumulator
	missingMeta  map[string]bool
}

func NewAggregator(cfg Config, store MetricsStore, tokens *PoolTokenCache, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tokens == nil {
		tokens = NewPoolTokenCache()
	}

	return &Aggregator{
		cfg:          cfg,
		store:        store,
		tokens:       tokens,
		logger:       logger,
		accumulators: make(map[string]*Accumulator),
		missingMeta:  make(map[string]bool),
	}
}

// Run executes aggregation over a typed events JSONL file.
func (a *Aggregator) Run(ctx context.Context, inputPath string) error {
	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer file.Close()
	return a.Process(ctx, file)
}

// Process aggregates typed event lines read from r.
func (a *Aggregator) Process(ctx context.Context, r io.Reader) error {
	if a.store == nil {
		return fmt.Errorf("store is nil")
	}
	if a.cfg.WindowSeconds == 0 {
		return fmt.Errorf("window seconds must be > 0")
	}
	if a.cfg.BatchSize <= 0 {
		a.cfg.BatchSize = 1000
	}

	startTs, err := a.loadStartTimestamp(ctx)
	if err != nil {
		return err
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	run := aggregateRun{
		batch: make([]model.PoolWindowMetrics, 0, a.cfg.BatchSize),
		maxTs: startTs,
	}
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		run.total++

		var record model.TypedEventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			run.failed++
			a.logger.Warn("decode typed event", zap.Error(err))
			continue
		}
		if record.Timestamp <= startTs {
			run.skipped++
			continue
		}

		acc := a.accumulatorFor(record, &run)
		if err := acc.AddEvent(record); err != nil {
			run.failed++
			a.logger.Warn("aggregate event", zap.Error(err), zap.String("pool", record.Address), zap.String("event", record.EventName))
			continue
		}
		if record.Timestamp > run.maxTs {
			run.maxTs = record.Timestamp
		}

		if len(run.batch) >= a.cfg.BatchSize {
			if err := a.writeBatch(ctx, &run); err != nil {
				return err
			}
			if err := a.saveState(ctx); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan input: %w", err)
	}

	for _, acc := range a.accumulators {
		run.add(a.flushAccumulator(acc))
	}
	a.accumulators = make(map[string]*Accumulator)
	if err := a.writeBatch(ctx, &run); err != nil {
		return err
	}

	a.cfg.RecomputeFrom = run.maxTs
	if err := a.saveState(ctx); err != nil {
		return err
	}

	a.logger.Info("aggregate complete",
		zap.Int("total", run.total),
		zap.Int("windows", run.windows),
		zap.Int("skipped", run.skipped),
		zap.Int("failed", run.failed),
	)
	return nil
}

// aggregateRun carries the counters and pending rows of one Process call.
type aggregateRun struct {
	batch                           []model.PoolWindowMetrics
	maxTs                           uint64
	total, windows, skipped, failed int
}

func (r *aggregateRun) add(metrics *model.PoolWindowMetrics) {
	if metrics == nil {
		return
	}
	r.batch = append(r.batch, *metrics)
	r.windows++
}

// accumulatorFor returns the open window of record's pool, closing the
// previous window into run when record starts a new one.
func (a *Aggregator) accumulatorFor(record model.TypedEventRecord, run *aggregateRun) *Accumulator {
	start := windowStart(record.Timestamp, a.cfg.WindowSeconds)
	key := poolKey(record.Address)

	prev := a.accumulators[key]
	if prev != nil && prev.WindowStart == start {
		return prev
	}
	acc := NewAccumulator(record, start, start+a.cfg.WindowSeconds)
	if prev != nil {
		run.add(a.flushAccumulator(prev))
		acc.CarryReserves(prev)
	}
	a.accumulators[key] = acc
	return acc
}

func (a *Aggregator) writeBatch(ctx context.Context, run *aggregateRun) error {
	if len(run.batch) == 0 {
		return nil
	}
	if err := a.store.UpsertWindowMetrics(ctx, run.batch); err != nil {
		return err
	}
	run.batch = run.batch[:0]
	return nil
}

// loadStartTimestamp returns the last timestamp already folded into stored
// windows. Events at or before it are skipped.
func (a *Aggregator) loadStartTimestamp(ctx context.Context) (uint64, error) {
	switch {
	case a.cfg.RecomputeFrom > 0:
		return a.cfg.RecomputeFrom - 1, nil
	case a.cfg.StateStore == nil:
		return 0, nil
	}
	last, _, err := a.cfg.StateStore.Load(ctx)
	return last, err
}

// saveState records progress up to just before the oldest window still open,
// so a restart rebuilds that window from its first event.
func (a *Aggregator) saveState(ctx context.Context) error {
	if a.cfg.StateStore == nil {
		return nil
	}
	progress := a.cfg.RecomputeFrom
	if open, ok := oldestOpenWindow(a.accumulators); ok && open > 0 {
		progress = open - 1
	}
	return a.cfg.StateStore.Save(ctx, progress)
}

// flushAccumulator renders a finished window. Windows without swaps only
// carry reserves forward and produce no row.
func (a *Aggregator) flushAccumulator(acc *Accumulator) *model.PoolWindowMetrics {
	if acc == nil || acc.SwapCount == 0 {
		return nil
	}

	tokens, ok := a.tokens.Get(acc.PoolAddress)
	if !ok && !a.missingMeta[poolKey(acc.PoolAddress)] {
		a.missingMeta[poolKey(acc.PoolAddress)] = true
		a.logger.Warn("missing pool tokens, amounts stay in raw units", zap.String("pool", acc.PoolAddress))
	}
	decimalsA, decimalsB := tokens.TokenA.Decimals, tokens.TokenB.Decimals

	tvlA, tvlB, tvlMethod := windowTVL(acc)
	var tvlAStr, tvlBStr *string
	if tvlA != nil {
		valA := formatTokenAmount(tvlA, decimalsA)
		valB := formatTokenAmount(tvlB, decimalsB)
		tvlAStr, tvlBStr = &valA, &valB
	}

	feeRateA, feeRateB := computeFeeRates(acc.LPFeeA, acc.LPFeeB, tvlA, tvlB)

	return &model.PoolWindowMetrics{
		ChainID:        acc.ChainID,
		PoolAddress:    acc.PoolAddress,
		WindowSizeSecs: int64(a.cfg.WindowSeconds),
		WindowStart:    time.Unix(int64(acc.WindowStart), 0).UTC(),
		WindowEnd:      time.Unix(int64(acc.WindowEnd), 0).UTC(),
		SwapCount:      acc.SwapCount,
		VolumeA:        formatTokenAmount(acc.VolumeA, decimalsA),
		VolumeB:        formatTokenAmount(acc.VolumeB, decimalsB),
		LPFeeA:         formatTokenAmount(acc.LPFeeA, decimalsA),
		LPFeeB:         formatTokenAmount(acc.LPFeeB, decimalsB),
		ProtocolFeeA:   formatTokenAmount(acc.ProtocolFeeA, decimalsA),
		ProtocolFeeB:   formatTokenAmount(acc.ProtocolFeeB, decimalsB),
		PartnerFeeA:    formatTokenAmount(acc.PartnerFeeA, decimalsA),
		PartnerFeeB:    formatTokenAmount(acc.PartnerFeeB, decimalsB),
		ReferralFeeA:   formatTokenAmount(acc.ReferralFeeA, decimalsA),
		ReferralFeeB:   formatTokenAmount(acc.ReferralFeeB, decimalsB),
		FeeRateA:       feeRateA,
		FeeRateB:       feeRateB,
		TVLA:           tvlAStr,
		TVLB:           tvlBStr,
		APR:            computeAPR(feeRateA, feeRateB, a.cfg.WindowSeconds),
		TVLMethod:      tvlMethod,
		LastPrice:      PriceFromSqrtX96(acc.LastSqrtPrice, decimalsA, decimalsB),
		LastSqrtPrice:  acc.LastSqrtPrice,
	}
}

func windowStart(ts uint64, windowSec uint64) uint64 {
	return ts - (ts % windowSec)
}

func oldestOpenWindow(open map[string]*Accumulator) (uint64, bool) {
	var (
		oldest uint64
		found  bool
	)
	for _, acc := range open {
		if acc != nil && (!found || acc.WindowStart < oldest) {
			oldest, found = acc.WindowStart, true
		}
	}
	return oldest, found
}
