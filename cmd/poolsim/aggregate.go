package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"poolcore/internal/aggregate"
	"poolcore/internal/chain"
	"poolcore/internal/config"
	"poolcore/internal/model"
	"poolcore/internal/pool"
	"poolcore/internal/storage/postgres"
)

func runAggregate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadAggregate(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Input == "" {
		return fmt.Errorf("input path is required")
	}
	if cfg.PGDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}

	windowDuration, err := time.ParseDuration(cfg.Window)
	if err != nil {
		return fmt.Errorf("invalid window: %w", err)
	}
	if windowDuration <= 0 {
		return fmt.Errorf("window must be positive")
	}
	windowSeconds := uint64(windowDuration.Seconds())
	if windowSeconds == 0 {
		return fmt.Errorf("window must be at least 1s")
	}

	recomputeFrom, err := config.ParseTimestamp(cfg.RecomputeFrom)
	if err != nil {
		return fmt.Errorf("parse recompute-from: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metaSource tokenMetaSource
	if cfg.RPCURL != "" {
		chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		defer chainClient.Close()
		metaSource = chainClient
	}

	tokens, err := loadPoolTokens(ctx, cfg.PoolFiles, metaSource, logger)
	if err != nil {
		return err
	}

	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	var stateStore aggregate.StateStore
	if cfg.StateFile != "" {
		stateStore = &aggregate.FileStateStore{Path: cfg.StateFile, WindowSeconds: windowSeconds}
	} else {
		stateStore = &aggregate.DBStateStore{
			Rows:          store,
			Name:          cfg.StateName,
			WindowSeconds: windowSeconds,
			Pools:         tokens.Pools(),
		}
	}

	agg := aggregate.NewAggregator(aggregate.Config{
		WindowSeconds: windowSeconds,
		BatchSize:     cfg.BatchSize,
		RecomputeFrom: recomputeFrom,
		StateStore:    stateStore,
	}, store, tokens, logger)

	logger.Info("aggregate start",
		zap.String("input", cfg.Input),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Uint64("window_seconds", windowSeconds),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Uint64("recompute_from", recomputeFrom),
		zap.Int("pools", len(cfg.PoolFiles)),
	)

	return agg.Run(ctx, cfg.Input)
}

type tokenMetaSource interface {
	TokenMeta(ctx context.Context, token common.Address) (model.TokenMeta, error)
}

// loadPoolTokens maps each pool's derived address to its token metadata.
// Tokens without a symbol are looked up through source when one is given.
func loadPoolTokens(ctx context.Context, paths []string, source tokenMetaSource, logger *zap.Logger) (*aggregate.PoolTokenCache, error) {
	tokens := aggregate.NewPoolTokenCache()
	for _, path := range paths {
		file, err := config.LoadPoolFile(path)
		if err != nil {
			return nil, err
		}
		cfg, err := file.PoolConfig()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if source != nil {
			file.TokenA = lookupTokenMeta(ctx, source, cfg.TokenA, file.TokenA, logger)
			file.TokenB = lookupTokenMeta(ctx, source, cfg.TokenB, file.TokenB, logger)
		}
		address := pool.DeriveAddress(cfg.TokenA, cfg.TokenB, cfg.SqrtMinPrice, cfg.SqrtMaxPrice)
		tokens.Set(address.Hex(), aggregate.PoolTokens{TokenA: file.TokenA, TokenB: file.TokenB})
	}
	return tokens, nil
}

func lookupTokenMeta(ctx context.Context, source tokenMetaSource, token common.Address, declared model.TokenMeta, logger *zap.Logger) model.TokenMeta {
	if declared.Symbol != "" {
		return declared
	}
	meta, err := source.TokenMeta(ctx, token)
	if err != nil {
		logger.Warn("token metadata lookup failed, using pool file values", zap.String("token", token.Hex()), zap.Error(err))
		return declared
	}
	return meta
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
