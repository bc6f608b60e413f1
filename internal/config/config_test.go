package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"poolcore/internal/fees"
	fm "poolcore/internal/fullmath"
)

const poolYAML = `
token_a:
  address: "0x000000000000000000000000000000000000aaaa"
  symbol: AAA
  decimals: 6
token_b:
  address: "0x000000000000000000000000000000000000bbbb"
  symbol: BBB
  decimals: 6
min_price: "1"
max_price: "16"
price: "4"
collect_fee_mode: only_b
treasury: "0x0000000000000000000000000000000000007777"
activation_point: 1000
fees:
  cliff_fee_rate: 10000
  scheduler: exponential
  period_frequency: 60
  number_of_period: 10
  reduction_factor: 5000
  protocol_fee_percent: 20
  dynamic:
    bin_step: 1
    filter_period: 10
    decay_period: 120
    reduction_factor: 5000
    max_volatility_accumulator: 14460000
    variable_fee_control: 1000
rewards:
  - index: 0
    token: "0x000000000000000000000000000000000000cccc"
    funder: "0x000000000000000000000000000000000000f00d"
    duration: 3600
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadPoolFile(t *testing.T) {
	f, err := LoadPoolFile(writeFile(t, "pool.yaml", poolYAML))
	require.NoError(t, err)
	require.Equal(t, "AAA", f.TokenA.Symbol)
	require.Equal(t, uint8(6), f.TokenB.Decimals)
	require.Equal(t, uint64(1000), f.ActivationPoint)
	require.Len(t, f.Rewards, 1)

	cfg, err := f.PoolConfig()
	require.NoError(t, err)
	require.Equal(t, fm.Q96, cfg.SqrtMinPrice)
	require.Equal(t, new(uint256.Int).Mul(fm.Q96, uint256.NewInt(4)), cfg.SqrtMaxPrice)
	require.Equal(t, new(uint256.Int).Mul(fm.Q96, uint256.NewInt(2)), cfg.SqrtPrice)
	require.Equal(t, fees.CollectOnlyB, cfg.CollectFeeMode)
	require.Equal(t, fees.ModeExponential, cfg.Fees.Base.Mode)
	require.True(t, cfg.Fees.Dynamic.Enabled)
	require.Equal(t, uint8(20), cfg.Fees.ProtocolFeePercent)
}

func TestPoolFileRejectsBadInput(t *testing.T) {
	f, err := LoadPoolFile(writeFile(t, "pool.yaml", poolYAML))
	require.NoError(t, err)

	bad := f
	bad.CollectFeeMode = "sideways"
	_, err = bad.PoolConfig()
	require.Error(t, err)

	bad = f
	bad.TokenA.Address = "nope"
	_, err = bad.PoolConfig()
	require.Error(t, err)

	bad = f
	bad.Price = "32"
	_, err = bad.PoolConfig()
	require.Error(t, err, "price above the range")

	_, err = LoadPoolFile("")
	require.Error(t, err)
}

func TestSqrtPriceX96(t *testing.T) {
	got, err := SqrtPriceX96(decimal.NewFromInt(1), 6, 18)
	require.NoError(t, err)
	require.Equal(t, new(uint256.Int).Mul(fm.Q96, uint256.NewInt(1_000_000)), got)

	_, err = SqrtPriceX96(decimal.Zero, 6, 6)
	require.Error(t, err)
}

func TestLoadRunLayers(t *testing.T) {
	cfgFile := writeFile(t, "config.yaml", "script: ops.jsonl\npool: pool.yaml\nbatch-size: 20\n")
	t.Setenv("POOLSIM_CHAIN_ID", "5")

	flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
	flags.String("out", "", "")
	require.NoError(t, flags.Parse([]string{"--out", "/tmp/x.jsonl"}))

	cfg, err := LoadRun(cfgFile, flags)
	require.NoError(t, err)
	require.Equal(t, "ops.jsonl", cfg.Script)
	require.Equal(t, "pool.yaml", cfg.PoolFile)
	require.Equal(t, uint64(20), cfg.BatchSize)
	require.Equal(t, uint64(5), cfg.ChainID)
	require.Equal(t, "/tmp/x.jsonl", cfg.Out)
	require.True(t, cfg.CheckpointEnabled)
}

func TestLoadDecodeAndAggregate(t *testing.T) {
	cfgFile := writeFile(t, "config.yaml", "topic0-map: \"0xabc=swap\"\nevents: \"Swap, ReserveSync\"\npool: \"a.yaml,b.yaml\"\n")

	dec, err := LoadDecode(cfgFile, nil)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"0xabc": "swap"}, dec.Topic0Map)
	require.Equal(t, []string{"Swap", "ReserveSync"}, dec.Events)

	agg, err := LoadAggregate(cfgFile, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"a.yaml", "b.yaml"}, agg.PoolFiles)
	require.Equal(t, "5m", agg.Window)
	require.Equal(t, "aggregate", agg.StateName)
}

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("1700000000")
	require.NoError(t, err)
	require.Equal(t, uint64(1700000000), ts)

	ts, err = ParseTimestamp("2023-11-14T22:13:20Z")
	require.NoError(t, err)
	require.Equal(t, uint64(1700000000), ts)

	ts, err = ParseTimestamp("")
	require.NoError(t, err)
	require.Zero(t, ts)

	_, err = ParseTimestamp("yesterday")
	require.Error(t, err)
}
