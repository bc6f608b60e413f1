package sim

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"poolcore/internal/clock"
	"poolcore/internal/events"
	fm "poolcore/internal/fullmath"
	"poolcore/internal/model"
	"poolcore/internal/pool"
	"poolcore/internal/token"
)

const script = `# seed liquidity
{"type":"mint","owner":"0x00000000000000000000000000000000000a11ce","token":"a","amount":"10000000"}
{"type":"mint","owner":"0x00000000000000000000000000000000000a11ce","token":"b","amount":"10000000"}
{"type":"add_liquidity","owner":"0x00000000000000000000000000000000000a11ce","liquidity":"1000000"}
{"type":"mint","owner":"0x0000000000000000000000000000000000000b0b","token":"a","amount":"1000"}
{"type":"swap","at":1100,"owner":"0x0000000000000000000000000000000000000b0b","amount_a":"1000"}

{"type":"swap","owner":"0x0000000000000000000000000000000000000b0b","amount_a":"100","min_out":"1000000","expect_error":"slippage"}
{"type":"lock_position","owner":"0x00000000000000000000000000000000000a11ce","lock":{"cliff_point":2000,"cliff_unlock_liquidity":"100000"}}
{"type":"refresh_vesting","at":2000,"owner":"0x00000000000000000000000000000000000a11ce"}
{"type":"split_position","owner":"0x00000000000000000000000000000000000a11ce","to":"0x00000000000000000000000000000000000ca201","split":{"unlocked":50}}
`

type memoryStorage struct {
	batches [][]model.LogRecord
}

func (m *memoryStorage) PutLogBatch(logs []model.LogRecord) error {
	m.batches = append(m.batches, append([]model.LogRecord(nil), logs...))
	return nil
}

func (m *memoryStorage) all() []model.LogRecord {
	var out []model.LogRecord
	for _, b := range m.batches {
		out = append(out, b...)
	}
	return out
}

type memorySnapshots struct {
	pool      model.PoolSnapshot
	positions []model.PositionSnapshot
}

func (m *memorySnapshots) UpsertPoolSnapshot(_ context.Context, p model.PoolSnapshot) error {
	m.pool = p
	return nil
}

func (m *memorySnapshots) UpsertPositions(_ context.Context, positions []model.PositionSnapshot) error {
	m.positions = positions
	return nil
}

func newDeps(t *testing.T) Deps {
	t.Helper()
	clk := clock.NewManual(1_000, 10_000)
	ledger := token.NewLedger()
	p, err := pool.New(pool.Config{
		TokenA:       common.HexToAddress("0x000000000000000000000000000000000000aaaa"),
		TokenB:       common.HexToAddress("0x000000000000000000000000000000000000bbbb"),
		SqrtMinPrice: new(uint256.Int).Set(fm.Q96),
		SqrtMaxPrice: new(uint256.Int).Mul(fm.Q96, uint256.NewInt(4)),
		SqrtPrice:    new(uint256.Int).Mul(fm.Q96, uint256.NewInt(2)),
		Treasury:     common.HexToAddress("0x0000000000000000000000000000000000007777"),
	}, clk, ledger, nil)
	require.NoError(t, err)
	return Deps{Pool: p, Time: ManualTime{Clock: clk}, Faucet: ledger, Storage: &memoryStorage{}}
}

func readScript(t *testing.T, text string) []ScriptOp {
	t.Helper()
	ops, err := ReadScript(strings.NewReader(text))
	require.NoError(t, err)
	return ops
}

func TestRunWritesEncodedEvents(t *testing.T) {
	deps := newDeps(t)
	snapshots := &memorySnapshots{}
	deps.Snapshots = snapshots
	cpPath := filepath.Join(t.TempDir(), "cp", "sim.json")

	runner, err := NewRunner(RunConfig{ChainID: 31337, BatchSize: 3, CheckpointPath: cpPath, CheckpointEnabled: true, StopOnError: true}, deps, nil)
	require.NoError(t, err)

	ops := readScript(t, script)
	require.Len(t, ops, 9)

	res, err := runner.Run(context.Background(), ops)
	require.NoError(t, err)
	require.Equal(t, Result{Applied: 9, Logs: 8}, res)

	storage := deps.Storage.(*memoryStorage)
	require.Len(t, storage.batches, 3)

	decoder, err := events.NewDecoder(events.DecoderConfig{})
	require.NoError(t, err)

	var names []string
	for _, rec := range storage.all() {
		require.Equal(t, uint64(31337), rec.ChainID)
		require.Equal(t, deps.Pool.Address().Hex(), rec.Address)
		typed, err := decoder.Decode(rec)
		require.NoError(t, err)
		names = append(names, typed.EventName)
	}
	require.Equal(t, []string{
		model.EventPositionCreated, model.EventLiquidityModified, model.EventReserveSync,
		model.EventSwap, model.EventReserveSync,
		model.EventPositionLocked,
		model.EventPositionCreated, model.EventPositionSplit,
	}, names)

	swapLog := storage.all()[3]
	require.Equal(t, uint64(5), swapLog.Sequence)
	require.Equal(t, ops[4].Hash.Hex(), swapLog.OpHash)
	require.Equal(t, uint64(1100), swapLog.Timestamp)

	cp, ok, err := NewCheckpointStore(cpPath, true).Load()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(9), cp.LastAppliedOp)

	require.Equal(t, deps.Pool.Address().Hex(), snapshots.pool.Address)
	require.Len(t, snapshots.positions, 2)
	for _, pos := range snapshots.positions {
		require.Equal(t, "500000", pos.Unlocked)
	}
}

func TestResumeReplaysAppliedOps(t *testing.T) {
	ops := readScript(t, script)
	cpPath := filepath.Join(t.TempDir(), "sim.json")
	cfg := RunConfig{ChainID: 1, BatchSize: 10, CheckpointPath: cpPath, CheckpointEnabled: true, StopOnError: true}

	first := newDeps(t)
	runner, err := NewRunner(cfg, first, nil)
	require.NoError(t, err)
	res, err := runner.Run(context.Background(), ops[:5])
	require.NoError(t, err)
	require.Equal(t, 5, res.Applied)

	resumed := newDeps(t)
	runner, err = NewRunner(cfg, resumed, nil)
	require.NoError(t, err)
	res, err = runner.Run(context.Background(), ops)
	require.NoError(t, err)
	require.Equal(t, 5, res.Replayed)
	require.Equal(t, 4, res.Applied)
	require.Equal(t, 3, res.Logs)

	logs := resumed.Storage.(*memoryStorage).all()
	require.Equal(t, uint64(7), logs[0].Sequence)

	straight := newDeps(t)
	runner, err = NewRunner(RunConfig{ChainID: 1, BatchSize: 10, StopOnError: true}, straight, nil)
	require.NoError(t, err)
	_, err = runner.Run(context.Background(), ops)
	require.NoError(t, err)

	wantPool, wantPositions := straight.Pool.Snapshot().Records(1)
	gotPool, gotPositions := resumed.Pool.Snapshot().Records(1)
	require.Equal(t, wantPool, gotPool)
	require.ElementsMatch(t, wantPositions, gotPositions)
}

func TestCheckpointForOtherPoolRejected(t *testing.T) {
	cpPath := filepath.Join(t.TempDir(), "sim.json")
	require.NoError(t, NewCheckpointStore(cpPath, true).Save(3, "0x0000000000000000000000000000000000000001"))

	runner, err := NewRunner(RunConfig{BatchSize: 1, CheckpointPath: cpPath, CheckpointEnabled: true}, newDeps(t), nil)
	require.NoError(t, err)
	_, err = runner.Run(context.Background(), readScript(t, script))
	require.ErrorContains(t, err, "checkpoint belongs to pool")
}

func TestFailedOps(t *testing.T) {
	bad := `{"type":"swap","owner":"0x0000000000000000000000000000000000000b0b","amount_a":"5"}
{"type":"teleport"}
`
	ops := readScript(t, bad)

	runner, err := NewRunner(RunConfig{BatchSize: 5}, newDeps(t), nil)
	require.NoError(t, err)
	res, err := runner.Run(context.Background(), ops)
	require.NoError(t, err)
	require.Equal(t, 2, res.Failed)
	require.Equal(t, 2, res.Applied)

	runner, err = NewRunner(RunConfig{BatchSize: 5, StopOnError: true}, newDeps(t), nil)
	require.NoError(t, err)
	_, err = runner.Run(context.Background(), ops)
	require.ErrorContains(t, err, "op 1 (swap)")

	unmet := readScript(t, `{"type":"advance","duration":5,"expect_error":"anything"}`)
	runner, err = NewRunner(RunConfig{BatchSize: 5}, newDeps(t), nil)
	require.NoError(t, err)
	_, err = runner.Run(context.Background(), unmet)
	require.ErrorContains(t, err, "expected error")
}

func TestReadScript(t *testing.T) {
	_, err := ReadScript(strings.NewReader(`{"type":"swap","bogus":1}`))
	require.Error(t, err)
	_, err = ReadScript(strings.NewReader(`{"owner":"0x01"}`))
	require.ErrorContains(t, err, "missing type")

	path := filepath.Join(t.TempDir(), "ops.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o644))
	fromFile, err := ReadScriptFile(path)
	require.NoError(t, err)
	ops := readScript(t, script)
	require.Equal(t, ops, fromFile)
	require.NotEqual(t, ops[0].Hash, ops[1].Hash)
	require.Equal(t, uint64(8), ops[7].Sequence)
}

func TestSplitOps(t *testing.T) {
	got, err := SplitOps(1, 5, 2)
	require.NoError(t, err)
	require.Equal(t, []OpRange{{From: 1, To: 2}, {From: 3, To: 4}, {From: 5, To: 5}}, got)

	got, err = SplitOps(4, 4, 10)
	require.NoError(t, err)
	require.Equal(t, []OpRange{{From: 4, To: 4}}, got)

	_, err = SplitOps(0, 3, 1)
	require.Error(t, err)
	_, err = SplitOps(3, 2, 1)
	require.Error(t, err)
	_, err = SplitOps(1, 3, 0)
	require.Error(t, err)
}
