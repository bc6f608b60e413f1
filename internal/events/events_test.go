package events

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"poolcore/internal/model"
)

var (
	poolAddr = common.HexToAddress("0x1111111111111111111111111111111111111111").Hex()
	owner    = common.HexToAddress("0x2222222222222222222222222222222222222222").Hex()
	other    = common.HexToAddress("0x3333333333333333333333333333333333333333").Hex()
)

func sampleEvents() []model.Event {
	payloads := []interface{}{
		model.PositionCreatedData{Owner: owner},
		model.LiquidityModifiedData{Owner: owner, LiquidityDelta: "-1000", AmountA: "250", AmountB: "1000", TotalLiquidity: "5000"},
		model.FeesClaimedData{Owner: owner, AmountA: "0", AmountB: "31"},
		model.RewardsClaimedData{Owner: owner, RewardIndex: 1, Token: other, Amount: "499"},
		model.SwapData{
			Trader: owner, AToB: true, AmountIn: "1000", AmountOut: "3952", FeeOnTokenA: false,
			LPFee: "32", ProtocolFee: "4", PartnerFee: "3", ReferralFee: "1",
			SqrtPriceX96: "158456325028528675187087900672", Liquidity: "1000000",
		},
		model.ReserveSyncData{ReserveA: "251000", ReserveB: "996008"},
		model.PositionLockedData{Owner: owner, Permanent: false, Amount: "500000", EndPoint: 1600},
		model.PositionSplitData{From: owner, To: other, Unlocked: "400000", Permanent: "200000", FeeA: "0", FeeB: "5", Reward0: "0", Reward1: "0"},
		model.RewardFundedData{Funder: other, RewardIndex: 0, Amount: "1000", DurationEnd: 1100},
	}
	names := []string{
		model.EventPositionCreated, model.EventLiquidityModified, model.EventFeesClaimed,
		model.EventRewardsClaimed, model.EventSwap, model.EventReserveSync,
		model.EventPositionLocked, model.EventPositionSplit, model.EventRewardFunded,
	}
	out := make([]model.Event, len(payloads))
	for i := range payloads {
		out[i] = model.Event{Name: names[i], Pool: poolAddr, Point: 1000 + uint64(i), Data: payloads[i]}
	}
	return out
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	enc, err := NewEncoder()
	require.NoError(t, err)
	dec, err := NewDecoder(DecoderConfig{})
	require.NoError(t, err)

	events := sampleEvents()
	ref := LogRef{ChainID: 56, Sequence: 7, OpHash: "0xabc"}
	records, err := enc.EncodeAll(ref, events)
	require.NoError(t, err)
	require.Len(t, records, len(events))

	for i, rec := range records {
		require.Equal(t, uint64(i), rec.LogIndex)
		require.Equal(t, uint64(7), rec.Sequence)
		require.Equal(t, poolAddr, rec.Address)
		require.True(t, dec.CanDecode(rec.Topics[0]))

		typed, err := dec.Decode(rec)
		require.NoError(t, err)
		require.Equal(t, events[i].Name, typed.EventName)
		require.Equal(t, events[i].Point, typed.Timestamp)
		require.Equal(t, events[i].Data, typed.Decoded)
		require.Equal(t, rec.Topics[0], typed.Raw.Topic0)
	}
}

func TestIndexedOwnerTopic(t *testing.T) {
	enc, err := NewEncoder()
	require.NoError(t, err)

	rec, err := enc.Encode(LogRef{}, 0, model.Event{Name: model.EventPositionSplit, Pool: poolAddr, Data: model.PositionSplitData{
		From: owner, To: other, Unlocked: "1", Permanent: "0", FeeA: "0", FeeB: "0", Reward0: "0", Reward1: "0",
	}})
	require.NoError(t, err)
	require.Len(t, rec.Topics, 3)
	require.Equal(t, common.HexToAddress(owner), common.HexToAddress(rec.Topics[1][26:]))
	require.Equal(t, common.HexToAddress(other), common.HexToAddress(rec.Topics[2][26:]))
}

func TestEncodeRejectsBadPayload(t *testing.T) {
	enc, err := NewEncoder()
	require.NoError(t, err)

	_, err = enc.Encode(LogRef{}, 0, model.Event{Name: "Mint", Pool: poolAddr})
	require.Error(t, err)

	_, err = enc.Encode(LogRef{}, 0, model.Event{Name: model.EventFeesClaimed, Pool: poolAddr, Data: model.FeesClaimedData{Owner: owner, AmountA: "x", AmountB: "1"}})
	require.ErrorContains(t, err, "invalid integer")

	_, err = enc.Encode(LogRef{}, 0, model.Event{Name: model.EventFeesClaimed, Pool: poolAddr, Data: model.ReserveSyncData{ReserveA: "1", ReserveB: "1"}})
	require.ErrorContains(t, err, "indexed args")
}

func TestDecodeErrors(t *testing.T) {
	dec, err := NewDecoder(DecoderConfig{})
	require.NoError(t, err)

	_, err = dec.Decode(model.LogRecord{Address: poolAddr})
	require.ErrorContains(t, err, "missing topics")

	_, err = dec.Decode(model.LogRecord{Address: poolAddr, Topics: []string{common.Hash{}.Hex()}})
	require.ErrorContains(t, err, "unsupported topic0")

	topic, ok := dec.Topic0(model.EventSwap)
	require.True(t, ok)
	_, err = dec.Decode(model.LogRecord{Address: poolAddr, Topics: []string{topic}, Data: "0x"})
	require.ErrorContains(t, err, "expected 2 topics")
}

func TestTopicAliases(t *testing.T) {
	alias := "0x" + "ab" + common.Hash{}.Hex()[4:]
	_, err := NewDecoder(DecoderConfig{Topic0Map: map[string]string{alias: "nope"}})
	require.Error(t, err)

	dec, err := NewDecoder(DecoderConfig{Topic0Map: map[string]string{alias: "reservesync"}})
	require.NoError(t, err)
	require.True(t, dec.CanDecode(alias))

	enc, err := NewEncoder()
	require.NoError(t, err)
	rec, err := enc.Encode(LogRef{}, 0, model.Event{Name: model.EventReserveSync, Pool: poolAddr, Data: model.ReserveSyncData{ReserveA: "1", ReserveB: "2"}})
	require.NoError(t, err)
	rec.Topics[0] = alias
	typed, err := dec.Decode(rec)
	require.NoError(t, err)
	require.Equal(t, model.ReserveSyncData{ReserveA: "1", ReserveB: "2"}, typed.Decoded)
}
