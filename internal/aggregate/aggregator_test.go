package aggregate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"poolcore/internal/model"
)

const (
	testPool     = "0x00000000000000000000000000000000000000aa"
	twoQ96String = "158456325028528675187087900672"
)

type memoryMetricsStore struct {
	calls   int
	metrics []model.PoolWindowMetrics
}

func (s *memoryMetricsStore) UpsertWindowMetrics(_ context.Context, metrics []model.PoolWindowMetrics) error {
	s.calls++
	s.metrics = append(s.metrics, metrics...)
	return nil
}

func typedLine(t *testing.T, ts uint64, name string, data interface{}) string {
	t.Helper()
	decoded, err := json.Marshal(data)
	require.NoError(t, err)
	line, err := json.Marshal(model.TypedEventRecord{
		ChainID:   31337,
		Sequence:  ts,
		Address:   testPool,
		EventName: name,
		Timestamp: ts,
		Decoded:   decoded,
	})
	require.NoError(t, err)
	return string(line)
}

func sampleInput(t *testing.T) string {
	lines := []string{
		typedLine(t, 100, model.EventReserveSync, model.ReserveSyncData{ReserveA: "1000000", ReserveB: "2000000"}),
		typedLine(t, 200, model.EventSwap, model.SwapData{
			AToB: true, AmountIn: "10000", AmountOut: "19000", FeeOnTokenA: true,
			LPFee: "80", ProtocolFee: "20", PartnerFee: "0", ReferralFee: "0",
			SqrtPriceX96: twoQ96String,
		}),
		"{not json",
		typedLine(t, 4000, model.EventSwap, model.SwapData{
			AToB: false, AmountIn: "5000", AmountOut: "2400", FeeOnTokenA: false,
			LPFee: "40", ProtocolFee: "10", PartnerFee: "2", ReferralFee: "1",
			SqrtPriceX96: twoQ96String,
		}),
	}
	return strings.Join(lines, "\n") + "\n"
}

func newTestAggregator(store MetricsStore, state StateStore) *Aggregator {
	tokens := NewPoolTokenCache()
	tokens.Set(strings.ToUpper(testPool), PoolTokens{
		TokenA: model.TokenMeta{Symbol: "AAA", Decimals: 6},
		TokenB: model.TokenMeta{Symbol: "BBB", Decimals: 6},
	})
	return NewAggregator(Config{WindowSeconds: 3600, StateStore: state}, store, tokens, nil)
}

func TestProcessBuildsWindowMetrics(t *testing.T) {
	store := &memoryMetricsStore{}
	agg := newTestAggregator(store, nil)

	require.NoError(t, agg.Process(context.Background(), strings.NewReader(sampleInput(t))))
	require.Len(t, store.metrics, 2)

	first := store.metrics[0]
	require.Equal(t, uint64(1), first.SwapCount)
	require.Equal(t, int64(0), first.WindowStart.Unix())
	require.Equal(t, int64(3600), first.WindowEnd.Unix())
	require.Equal(t, "0.010000", first.VolumeA)
	require.Equal(t, "0.019000", first.VolumeB)
	require.Equal(t, "0.000080", first.LPFeeA)
	require.Equal(t, "0.000020", first.ProtocolFeeA)
	require.Equal(t, "0.000000", first.LPFeeB)
	require.NotNil(t, first.FeeRateA)
	require.Equal(t, "0.000080000000000000", *first.FeeRateA)
	require.Nil(t, first.FeeRateB)
	require.Equal(t, tvlMethodReserveSync, first.TVLMethod)
	require.Equal(t, "1.000000", *first.TVLA)
	require.Equal(t, "2.000000", *first.TVLB)
	require.NotNil(t, first.APR)
	require.Equal(t, "0.700800000000000000", *first.APR)
	require.Equal(t, "4.000000000000000000", *first.LastPrice)

	second := store.metrics[1]
	require.Equal(t, int64(3600), second.WindowStart.Unix())
	require.Equal(t, "0.005000", second.VolumeB)
	require.Equal(t, "0.002400", second.VolumeA)
	require.Equal(t, "0.000001", second.ReferralFeeB)
	require.Nil(t, second.FeeRateA)
	require.Equal(t, "0.000020000000000000", *second.FeeRateB)
	require.Equal(t, "1.000000", *second.TVLA, "reserves carry into the next window")
}

func TestWindowsWithoutSwapsAreSkipped(t *testing.T) {
	store := &memoryMetricsStore{}
	agg := newTestAggregator(store, nil)

	input := typedLine(t, 100, model.EventReserveSync, model.ReserveSyncData{ReserveA: "5", ReserveB: "7"}) + "\n"
	require.NoError(t, agg.Process(context.Background(), strings.NewReader(input)))
	require.Empty(t, store.metrics)
	require.Zero(t, store.calls)
}

func TestStateStoreSkipsProcessedEvents(t *testing.T) {
	state := &FileStateStore{Path: filepath.Join(t.TempDir(), "state", "aggregate.json"), WindowSeconds: 3600}

	store := &memoryMetricsStore{}
	require.NoError(t, newTestAggregator(store, state).Process(context.Background(), strings.NewReader(sampleInput(t))))
	require.Len(t, store.metrics, 2)

	last, ok, err := state.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(4000), last)

	again := &memoryMetricsStore{}
	require.NoError(t, newTestAggregator(again, state).Process(context.Background(), strings.NewReader(sampleInput(t))))
	require.Empty(t, again.metrics)

	other := &FileStateStore{Path: state.Path, WindowSeconds: 60}
	_, _, err = other.Load(context.Background())
	require.Error(t, err)
}

func TestProcessRequiresWindow(t *testing.T) {
	agg := NewAggregator(Config{}, &memoryMetricsStore{}, nil, nil)
	require.Error(t, agg.Process(context.Background(), bytes.NewReader(nil)))

	agg = NewAggregator(Config{WindowSeconds: 60}, nil, nil, nil)
	require.Error(t, agg.Process(context.Background(), bytes.NewReader(nil)))
}

func TestFormatting(t *testing.T) {
	require.Equal(t, "1.234567", formatTokenAmount(uint256.NewInt(1234567), 6))
	require.Equal(t, "42", formatTokenAmount(uint256.NewInt(42), 0))
	require.Equal(t, "0", formatTokenAmount(nil, 6))

	price := PriceFromSqrtX96("79228162514264337593543950336", 18, 6)
	require.NotNil(t, price)
	require.Equal(t, "1000000000000.000000000000000000", *price)
	require.Nil(t, PriceFromSqrtX96("", 6, 6))
	require.Nil(t, PriceFromSqrtX96("0", 6, 6))

	rateA := "0.001"
	rateB := "0.002"
	require.Nil(t, computeAPR(&rateA, &rateB, 3600))
	require.Nil(t, computeAPR(nil, nil, 3600))
}

type memoryStateRows map[string]uint64

func (m memoryStateRows) LoadState(_ context.Context, name string) (uint64, bool, error) {
	ts, ok := m[name]
	return ts, ok, nil
}

func (m memoryStateRows) SaveState(_ context.Context, name string, ts uint64) error {
	if name == "" {
		return errors.New("state name required")
	}
	m[name] = ts
	return nil
}

func TestDBStateStoreScopesRows(t *testing.T) {
	ctx := context.Background()
	rows := memoryStateRows{}
	other := "0x00000000000000000000000000000000000000BB"

	plain := &DBStateStore{Rows: rows, Name: "aggregate", WindowSeconds: 300}
	require.Equal(t, "aggregate:300s", plain.Key())

	scoped := &DBStateStore{Rows: rows, Name: "aggregate", WindowSeconds: 300, Pools: []string{testPool, other}}
	reordered := &DBStateStore{Rows: rows, Name: "aggregate", WindowSeconds: 300, Pools: []string{strings.ToLower(other), testPool}}
	require.Equal(t, scoped.Key(), reordered.Key())
	require.True(t, strings.HasPrefix(scoped.Key(), "aggregate:300s:"))
	require.NotEqual(t, plain.Key(), scoped.Key())

	hourly := &DBStateStore{Rows: rows, Name: "aggregate", WindowSeconds: 3600, Pools: []string{testPool, other}}
	require.NotEqual(t, scoped.Key(), hourly.Key())

	require.NoError(t, scoped.Save(ctx, 4000))
	ts, ok, err := reordered.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(4000), ts)

	_, ok, err = hourly.Load(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	var missing *DBStateStore
	_, ok, err = missing.Load(ctx)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, missing.Save(ctx, 1))
}
