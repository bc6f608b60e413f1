package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"poolcore/internal/config"
	"poolcore/internal/model"
	"poolcore/internal/pool"
)

const testPoolYAML = `
token_a: {address: "0x000000000000000000000000000000000000aaaa", symbol: AAA, decimals: 6}
token_b: {address: "0x000000000000000000000000000000000000bbbb", symbol: BBB, decimals: 6}
min_price: "1"
max_price: "16"
price: "4"
treasury: "0x0000000000000000000000000000000000007777"
activation_point: 1000
fees:
  cliff_fee_rate: 2500
  protocol_fee_percent: 20
`

const testScript = `{"type":"mint","owner":"0x00000000000000000000000000000000000a11ce","token":"a","amount":"10000000"}
{"type":"mint","owner":"0x00000000000000000000000000000000000a11ce","token":"b","amount":"10000000"}
{"type":"add_liquidity","owner":"0x00000000000000000000000000000000000a11ce","liquidity":"1000000"}
{"type":"mint","owner":"0x0000000000000000000000000000000000000b0b","token":"a","amount":"1000"}
{"type":"swap","at":1100,"owner":"0x0000000000000000000000000000000000000b0b","amount_a":"1000"}
`

func writeTemp(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs(args)
	require.NoError(t, root.Execute())
	return out.String()
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()
	n := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		n++
	}
	require.NoError(t, scanner.Err())
	return n
}

func TestRunThenDecode(t *testing.T) {
	dir := t.TempDir()
	poolPath := writeTemp(t, dir, "pool.yaml", testPoolYAML)
	scriptPath := writeTemp(t, dir, "ops.jsonl", testScript)
	logs := filepath.Join(dir, "logs.jsonl")

	execute(t, "run", "--pool", poolPath, "--script", scriptPath, "--out", logs,
		"--checkpoint", filepath.Join(dir, "cp.json"), "--log-level", "error", "--stop-on-error")
	require.Equal(t, 5, countLines(t, logs))

	typed := filepath.Join(dir, "typed.jsonl")
	execute(t, "decode", "--in", logs, "--out", typed, "--errors", filepath.Join(dir, "errors.jsonl"),
		"--events", "swap", "--log-level", "error")
	require.Equal(t, 1, countLines(t, typed))
	require.Equal(t, 0, countLines(t, filepath.Join(dir, "errors.jsonl")))

	data, err := os.ReadFile(typed)
	require.NoError(t, err)
	var record model.TypedEventRecord
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &record))
	require.Equal(t, model.EventSwap, record.EventName)
	require.Equal(t, uint64(1100), record.Timestamp)
	require.Equal(t, uint64(5), record.Sequence)

	// a rerun resumes from the checkpoint and appends nothing
	execute(t, "run", "--pool", poolPath, "--script", scriptPath, "--out", logs,
		"--checkpoint", filepath.Join(dir, "cp.json"), "--log-level", "error")
	require.Equal(t, 5, countLines(t, logs))
}

func TestQuoteAfterReplay(t *testing.T) {
	dir := t.TempDir()
	poolPath := writeTemp(t, dir, "pool.yaml", testPoolYAML)
	scriptPath := writeTemp(t, dir, "ops.jsonl", testScript)

	out := execute(t, "quote", "--pool", poolPath, "--script", scriptPath, "--side", "a", "--amount", "0.001", "--log-level", "error")

	var q quoteOutput
	require.NoError(t, json.Unmarshal([]byte(out), &q))
	require.Equal(t, "AtoB", q.Direction)
	require.Equal(t, "0.001000", q.AmountIn)
	require.Equal(t, "0.2500", q.FeePercent)
	require.Equal(t, "BBB", q.FeeToken)
	require.NotNil(t, q.PriceBefore)
	require.NotNil(t, q.PriceAfter)
	require.Less(t, *q.PriceAfter, *q.PriceBefore)
}

func TestRawAmounts(t *testing.T) {
	got, err := toRawAmount("1.5", 6)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(1_500_000), got)

	_, err = toRawAmount("0.0000001", 6)
	require.Error(t, err)
	_, err = toRawAmount("-1", 6)
	require.Error(t, err)
	_, err = toRawAmount("abc", 6)
	require.Error(t, err)

	require.Equal(t, "1.500000", fromRawAmount(uint256.NewInt(1_500_000), 6))
	require.Equal(t, "0", fromRawAmount(nil, 6))
}

type stubMetaSource map[common.Address]model.TokenMeta

func (s stubMetaSource) TokenMeta(_ context.Context, token common.Address) (model.TokenMeta, error) {
	meta, ok := s[token]
	if !ok {
		return model.TokenMeta{}, errors.New("no contract")
	}
	return meta, nil
}

func TestLoadPoolTokensFillsMissingSymbols(t *testing.T) {
	dir := t.TempDir()
	body := `
token_a: {address: "0x000000000000000000000000000000000000aaaa", decimals: 6}
token_b: {address: "0x000000000000000000000000000000000000bbbb", symbol: BBB, decimals: 6}
min_price: "1"
max_price: "16"
price: "4"
treasury: "0x0000000000000000000000000000000000007777"
fees:
  cliff_fee_rate: 2500
`
	poolPath := writeTemp(t, dir, "pool.yaml", body)
	tokenA := common.HexToAddress("0x000000000000000000000000000000000000aaaa")
	source := stubMetaSource{
		tokenA: {Address: tokenA.Hex(), Symbol: "AAA", Decimals: 6},
	}

	tokens, err := loadPoolTokens(context.Background(), []string{poolPath}, source, zap.NewNop())
	require.NoError(t, err)

	file, err := config.LoadPoolFile(poolPath)
	require.NoError(t, err)
	cfg, err := file.PoolConfig()
	require.NoError(t, err)
	address := pool.DeriveAddress(cfg.TokenA, cfg.TokenB, cfg.SqrtMinPrice, cfg.SqrtMaxPrice)

	got, ok := tokens.Get(address.Hex())
	require.True(t, ok)
	require.Equal(t, "AAA", got.TokenA.Symbol)
	require.Equal(t, "BBB", got.TokenB.Symbol)

	_, err = loadPoolTokens(context.Background(), []string{poolPath}, stubMetaSource{}, zap.NewNop())
	require.NoError(t, err)
}
