package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"poolcore/internal/chain"
	"poolcore/internal/clock"
	"poolcore/internal/config"
	"poolcore/internal/sim"
	"poolcore/internal/storage"
	"poolcore/internal/storage/postgres"
)

func runSimulation(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadRun(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.PoolFile == "" {
		return fmt.Errorf("pool file is required")
	}
	if cfg.Script == "" {
		return fmt.Errorf("script path is required")
	}
	if cfg.Out == "" {
		return fmt.Errorf("output path is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	poolFile, err := config.LoadPoolFile(cfg.PoolFile)
	if err != nil {
		return err
	}
	ops, err := sim.ReadScriptFile(cfg.Script)
	if err != nil {
		return err
	}

	var (
		clk        clock.Clock
		timeSource sim.TimeSource
	)
	if cfg.RPCURL != "" {
		chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		defer chainClient.Close()

		chainID, err := chainClient.ChainID(ctx)
		if err != nil {
			return fmt.Errorf("get chain id: %w", err)
		}
		if !chainID.IsUint64() {
			return fmt.Errorf("chain id does not fit in uint64: %s", chainID)
		}
		cfg.ChainID = chainID.Uint64()

		chainClock := clock.NewChain(clock.ChainConfig{
			MaxVestingDuration: cfg.MaxVestingDuration,
			MaxRetries:         cfg.MaxRetries,
			RetryBackoff:       cfg.RetryBackoff,
		}, chainClient, logger)
		if _, err := chainClock.Refresh(ctx); err != nil {
			return err
		}
		clk, timeSource = chainClock, sim.ChainTime{Clock: chainClock}
	} else {
		manual := clock.NewManual(startPoint(cfg.StartPoint, poolFile), cfg.MaxVestingDuration)
		clk, timeSource = manual, sim.ManualTime{Clock: manual}
	}

	env, err := newPoolEnv(poolFile, clk, logger)
	if err != nil {
		return err
	}

	deps := sim.Deps{
		Pool:    env.pool,
		Time:    timeSource,
		Faucet:  env.custody,
		Storage: storage.NewJsonlStorage(cfg.Out),
	}
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		deps.Snapshots = store
	}

	runner, err := sim.NewRunner(sim.RunConfig{
		ChainID:           cfg.ChainID,
		BatchSize:         cfg.BatchSize,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
		StopOnError:       cfg.StopOnError,
	}, deps, logger)
	if err != nil {
		return err
	}

	logger.Info("simulation start",
		zap.String("pool", env.pool.Address().Hex()),
		zap.String("script", cfg.Script),
		zap.Int("ops", len(ops)),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.String("out", cfg.Out),
		zap.Bool("chain_clock", cfg.RPCURL != ""),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
		zap.String("checkpoint", cfg.Checkpoint),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
	)

	_, err = runner.Run(ctx, ops)
	return err
}
