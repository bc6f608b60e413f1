package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"poolcore/internal/clock"
	"poolcore/internal/config"
	"poolcore/internal/model"
	"poolcore/internal/pool"
	"poolcore/internal/token"
)

// activationSetter is implemented by clock.Manual and clock.Chain.
type activationSetter interface {
	SetActivation(pool common.Address, point uint64)
}

// poolEnv is a pool wired to an in-memory token ledger.
type poolEnv struct {
	pool    *pool.Pool
	custody *token.Ledger
}

// newPoolEnv builds the pool described by file on clk and opens its reward
// channels. Reward initialization emits no events.
func newPoolEnv(file config.PoolFile, clk clock.Clock, logger *zap.Logger) (*poolEnv, error) {
	cfg, err := file.PoolConfig()
	if err != nil {
		return nil, err
	}

	custody := token.NewLedger()
	p, err := pool.New(cfg, clk, custody, logger)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if setter, ok := clk.(activationSetter); ok {
		setter.SetActivation(p.Address(), file.ActivationPoint)
	}
	if err := file.InitializeRewards(p); err != nil {
		return nil, err
	}
	return &poolEnv{pool: p, custody: custody}, nil
}

// startPoint picks the first clock point of a manual simulation.
func startPoint(flagValue uint64, file config.PoolFile) uint64 {
	if flagValue > 0 {
		return flagValue
	}
	return file.ActivationPoint
}

// nopStorage drops log batches.
type nopStorage struct{}

func (nopStorage) PutLogBatch(_ []model.LogRecord) error { return nil }
