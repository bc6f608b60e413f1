package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "poolsim",
		Short:        "Concentrated-liquidity pool simulator",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Replay an operation script against a pool and write event logs",
		RunE:  runSimulation,
	}

	runCmd.Flags().String("pool", "", "pool definition file (yaml or json)")
	runCmd.Flags().String("script", "", "operation script JSONL")
	runCmd.Flags().String("out", "./data/logs.jsonl", "output JSONL path")
	runCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	runCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	runCmd.Flags().Uint64("batch-size", 500, "ops per storage batch")
	runCmd.Flags().Uint64("chain-id", 31337, "chain id stamped on log records, replaced by the node's when --rpc is set")
	runCmd.Flags().Uint64("start-point", 0, "initial clock point, 0 means the pool activation point")
	runCmd.Flags().Uint64("max-vesting-duration", 365*24*3600, "maximum lock duration in seconds")
	runCmd.Flags().String("rpc", "", "follow the block time of this RPC node instead of script points")
	runCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	runCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	runCmd.Flags().String("pg-dsn", "", "store the final pool snapshot in Postgres")
	runCmd.Flags().Bool("stop-on-error", false, "abort on the first failing op")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a swap against a pool, optionally after replaying a script",
		RunE:  runQuote,
	}

	quoteCmd.Flags().String("pool", "", "pool definition file (yaml or json)")
	quoteCmd.Flags().String("script", "", "operation script replayed before quoting")
	quoteCmd.Flags().String("side", "a", "input token (a or b)")
	quoteCmd.Flags().String("amount", "", "input amount in token units (e.g. 1.5)")
	quoteCmd.Flags().String("trader", "0x000000000000000000000000000000000000dEaD", "trader address")
	quoteCmd.Flags().String("referral", "", "referral address")
	quoteCmd.Flags().Uint64("at", 0, "quote at this point, 0 keeps the clock")
	quoteCmd.Flags().Uint64("start-point", 0, "initial clock point, 0 means the pool activation point")
	quoteCmd.Flags().Uint64("max-vesting-duration", 365*24*3600, "maximum lock duration in seconds")
	quoteCmd.Flags().String("log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(quoteCmd)

	decodeCmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode event logs into typed events",
		RunE:  runDecode,
	}

	decodeCmd.Flags().String("in", "./data/logs.jsonl", "input event logs JSONL")
	decodeCmd.Flags().String("out", "./data/typed_events.jsonl", "output typed events JSONL")
	decodeCmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	decodeCmd.Flags().String("topic0-map", "", "extra topic0->event mappings (comma-separated key=value)")
	decodeCmd.Flags().StringSlice("events", nil, "only keep these events (comma-separated names)")
	decodeCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(decodeCmd)

	aggregateCmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Aggregate typed events into window metrics",
		RunE:  runAggregate,
	}

	aggregateCmd.Flags().String("in", "./data/typed_events.jsonl", "input typed events JSONL")
	aggregateCmd.Flags().String("window", "5m", "aggregation window (e.g. 1m, 5m, 1h)")
	aggregateCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	aggregateCmd.Flags().Int("batch-size", 1000, "batch size for DB writes")
	aggregateCmd.Flags().String("state-file", "", "optional local state file for progress tracking")
	aggregateCmd.Flags().String("state-name", "aggregate", "state row name when tracking progress in Postgres")
	aggregateCmd.Flags().String("recompute-from", "", "recompute from timestamp (unix seconds or RFC3339)")
	aggregateCmd.Flags().StringSlice("pool", nil, "pool definition files supplying token decimals")
	aggregateCmd.Flags().String("rpc", "", "RPC URL used to look up token metadata missing from pool files")
	aggregateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(aggregateCmd)

	return root
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
