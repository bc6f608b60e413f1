package sim

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"poolcore/internal/events"
	"poolcore/internal/model"
	"poolcore/internal/pool"
	"poolcore/internal/poolerr"
	"poolcore/internal/storage"
	"poolcore/internal/token"
)

// RunConfig holds runtime settings for a simulation.
type RunConfig struct {
	ChainID           uint64
	BatchSize         uint64
	CheckpointPath    string
	CheckpointEnabled bool
	// StopOnError aborts on the first op failing without an expect_error.
	StopOnError bool
}

// SnapshotStore persists the final pool state.
type SnapshotStore interface {
	UpsertPoolSnapshot(ctx context.Context, p model.PoolSnapshot) error
	UpsertPositions(ctx context.Context, positions []model.PositionSnapshot) error
}

// Deps are the collaborators of a Runner. Faucet and Snapshots are optional;
// without a faucet the mint and set_tax ops fail.
type Deps struct {
	Pool      *pool.Pool
	Time      TimeSource
	Faucet    *token.Ledger
	Storage   storage.Storage
	Snapshots SnapshotStore
}

// Result summarises a run.
type Result struct {
	Replayed int
	Applied  int
	Failed   int
	Logs     int
}

// Runner executes a script against a pool and writes the emitted events to storage.
type Runner struct {
	cfg        RunConfig
	deps       Deps
	encoder    *events.Encoder
	logger     *zap.Logger
	checkpoint *CheckpointStore
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(cfg RunConfig, deps Deps, logger *zap.Logger) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	encoder, err := events.NewEncoder()
	if err != nil {
		return nil, err
	}
	return &Runner{
		cfg:        cfg,
		deps:       deps,
		encoder:    encoder,
		logger:     logger,
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
	}, nil
}

// Run applies ops in order. Ops at or before the checkpoint are replayed
// without writing events so the pool state matches the earlier run.
func (r *Runner) Run(ctx context.Context, ops []ScriptOp) (Result, error) {
	var res Result
	if r.deps.Pool == nil {
		return res, fmt.Errorf("pool is nil")
	}
	if r.deps.Time == nil {
		return res, fmt.Errorf("time source is nil")
	}
	if r.deps.Storage == nil {
		return res, fmt.Errorf("storage is nil")
	}
	if r.cfg.BatchSize == 0 {
		return res, fmt.Errorf("batch size must be greater than zero")
	}

	poolAddress := r.deps.Pool.Address().Hex()
	total := uint64(len(ops))

	var resumeAfter uint64
	cp, ok, err := r.checkpoint.Load()
	if err != nil {
		return res, err
	}
	if ok {
		if cp.Pool != "" && !strings.EqualFold(cp.Pool, poolAddress) {
			return res, fmt.Errorf("checkpoint belongs to pool %s, not %s", cp.Pool, poolAddress)
		}
		resumeAfter = cp.LastAppliedOp
		if resumeAfter > total {
			resumeAfter = total
		}
		r.logger.Info("resume from checkpoint", zap.Uint64("last_applied", cp.LastAppliedOp), zap.Uint64("total", total))
	}

	for _, op := range ops[:resumeAfter] {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := r.step(ctx, op, &res); err != nil {
			return res, err
		}
		r.deps.Pool.DrainEvents()
		res.Replayed++
	}

	if resumeAfter < total {
		ranges, err := SplitOps(resumeAfter+1, total, r.cfg.BatchSize)
		if err != nil {
			return res, err
		}
		for _, opRange := range ranges {
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			default:
			}

			records, err := r.applyRange(ctx, ops[opRange.From-1:opRange.To], &res)
			if err != nil {
				return res, err
			}
			if err := r.deps.Storage.PutLogBatch(records); err != nil {
				return res, fmt.Errorf("store logs: %w", err)
			}
			if err := r.checkpoint.Save(opRange.To, poolAddress); err != nil {
				return res, err
			}
			res.Logs += len(records)

			r.logger.Info("batch complete", zap.Int("logs", len(records)), zap.Uint64("from", opRange.From), zap.Uint64("to", opRange.To))
		}
	} else {
		r.logger.Info("nothing to apply", zap.Uint64("total", total))
	}

	if r.deps.Snapshots != nil {
		if err := r.saveSnapshot(ctx); err != nil {
			return res, err
		}
	}

	r.logger.Info("simulation complete",
		zap.Int("replayed", res.Replayed),
		zap.Int("applied", res.Applied),
		zap.Int("failed", res.Failed),
		zap.Int("logs", res.Logs),
	)
	return res, nil
}

func (r *Runner) applyRange(ctx context.Context, ops []ScriptOp, res *Result) ([]model.LogRecord, error) {
	var records []model.LogRecord
	for _, op := range ops {
		if err := r.step(ctx, op, res); err != nil {
			return nil, err
		}
		res.Applied++

		encoded, err := r.encoder.EncodeAll(events.LogRef{
			ChainID:  r.cfg.ChainID,
			Sequence: op.Sequence,
			OpHash:   op.Hash.Hex(),
		}, r.deps.Pool.DrainEvents())
		if err != nil {
			return nil, fmt.Errorf("encode op %d events: %w", op.Sequence, err)
		}
		records = append(records, encoded...)
	}
	return records, nil
}

// step runs one op and reconciles the outcome with its expect_error.
func (r *Runner) step(ctx context.Context, op ScriptOp, res *Result) error {
	now, err := r.deps.Time.Tick(ctx, op.At, op.advance())
	if err != nil {
		return fmt.Errorf("op %d: tick clock: %w", op.Sequence, err)
	}

	err = r.apply(ctx, op.Op)
	if op.ExpectError != "" {
		if err == nil {
			return fmt.Errorf("op %d (%s): expected error %q", op.Sequence, op.Type, op.ExpectError)
		}
		if !strings.Contains(err.Error(), op.ExpectError) {
			return fmt.Errorf("op %d (%s): unexpected error: %w", op.Sequence, op.Type, err)
		}
		r.logger.Debug("op failed as expected", zap.Uint64("seq", op.Sequence), zap.String("type", op.Type), zap.Error(err))
		return nil
	}
	if err != nil {
		res.Failed++
		r.logger.Warn("op failed",
			zap.Uint64("seq", op.Sequence),
			zap.String("type", op.Type),
			zap.Uint64("point", now),
			zap.Stringer("kind", poolerr.KindOf(err)),
			zap.Error(err),
		)
		if r.cfg.StopOnError {
			return fmt.Errorf("op %d (%s): %w", op.Sequence, op.Type, err)
		}
	}
	return nil
}

func (r *Runner) saveSnapshot(ctx context.Context) error {
	poolRecord, positions := r.deps.Pool.Snapshot().Records(r.cfg.ChainID)
	if err := r.deps.Snapshots.UpsertPoolSnapshot(ctx, poolRecord); err != nil {
		return fmt.Errorf("store pool snapshot: %w", err)
	}
	if err := r.deps.Snapshots.UpsertPositions(ctx, positions); err != nil {
		return fmt.Errorf("store positions: %w", err)
	}
	r.logger.Info("snapshot stored", zap.String("pool", poolRecord.Address), zap.Int("positions", len(positions)))
	return nil
}
