package config

import (
	"time"

	"github.com/spf13/pflag"
)

// RunConfig holds configuration for the run command.
type RunConfig struct {
	PoolFile           string
	Script             string
	Out                string
	Checkpoint         string
	CheckpointEnabled  bool
	BatchSize          uint64
	ChainID            uint64
	StartPoint         uint64
	MaxVestingDuration uint64
	RPCURL             string
	MaxRetries         int
	RetryBackoff       time.Duration
	PGDSN              string
	StopOnError        bool
	LogLevel           string
}

// LoadRun merges config file, environment variables, and flags into RunConfig.
func LoadRun(cfgFile string, flags *pflag.FlagSet) (RunConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"out":                  "./data/logs.jsonl",
		"checkpoint":           "./data/checkpoint.json",
		"checkpoint-enabled":   true,
		"batch-size":           uint64(500),
		"chain-id":             uint64(31337),
		"max-vesting-duration": uint64(365 * 24 * 3600),
		"max-retries":          5,
		"retry-backoff":        500 * time.Millisecond,
		"log-level":            "info",
	})
	if err != nil {
		return RunConfig{}, err
	}

	return RunConfig{
		PoolFile:           v.GetString("pool"),
		Script:             v.GetString("script"),
		Out:                v.GetString("out"),
		Checkpoint:         v.GetString("checkpoint"),
		CheckpointEnabled:  v.GetBool("checkpoint-enabled"),
		BatchSize:          v.GetUint64("batch-size"),
		ChainID:            v.GetUint64("chain-id"),
		StartPoint:         v.GetUint64("start-point"),
		MaxVestingDuration: v.GetUint64("max-vesting-duration"),
		RPCURL:             v.GetString("rpc"),
		MaxRetries:         v.GetInt("max-retries"),
		RetryBackoff:       v.GetDuration("retry-backoff"),
		PGDSN:              v.GetString("pg-dsn"),
		StopOnError:        v.GetBool("stop-on-error"),
		LogLevel:           v.GetString("log-level"),
	}, nil
}
