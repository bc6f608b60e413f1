package events

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"poolcore/internal/model"
)

// DecoderConfig configures decoder behavior. Topic0Map adds aliases from a
// topic0 hash to one of the pool event names.
type DecoderConfig struct {
	Topic0Map map[string]string
}

// Decoder turns pool log records into typed events.
type Decoder struct {
	poolABI     abi.ABI
	topicToName map[string]string
}

// NewDecoder builds a decoder for every pool event.
func NewDecoder(cfg DecoderConfig) (*Decoder, error) {
	poolABI, err := PoolEventsABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool events abi: %w", err)
	}

	topicToName := make(map[string]string, len(poolABI.Events)+len(cfg.Topic0Map))
	for name, event := range poolABI.Events {
		topicToName[strings.ToLower(event.ID.Hex())] = name
	}
	for topic0, name := range cfg.Topic0Map {
		normalized := normalizeEventName(poolABI, name)
		if normalized == "" {
			return nil, fmt.Errorf("unsupported event name in topic0 map: %s", name)
		}
		if topic0 == "" {
			continue
		}
		topicToName[strings.ToLower(topic0)] = normalized
	}

	return &Decoder{poolABI: poolABI, topicToName: topicToName}, nil
}

// Topic0 returns the topic0 hash of a pool event name, matched case-insensitively.
func (d *Decoder) Topic0(name string) (string, bool) {
	event, ok := d.poolABI.Events[normalizeEventName(d.poolABI, name)]
	if !ok {
		return "", false
	}
	return event.ID.Hex(), true
}

// CanDecode checks if the topic0 is supported.
func (d *Decoder) CanDecode(topic0 string) bool {
	if topic0 == "" {
		return false
	}
	_, ok := d.topicToName[strings.ToLower(topic0)]
	return ok
}

// Decode converts a LogRecord into a TypedEvent.
func (d *Decoder) Decode(log model.LogRecord) (*model.TypedEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("missing topics")
	}
	name, ok := d.topicToName[strings.ToLower(log.Topics[0])]
	if !ok {
		return nil, fmt.Errorf("unsupported topic0: %s", log.Topics[0])
	}
	if !common.IsHexAddress(log.Address) {
		return nil, fmt.Errorf("invalid pool address: %s", log.Address)
	}

	event := d.poolABI.Events[name]
	fields, err := unpackEvent(event, log)
	if err != nil {
		return nil, err
	}
	decoded, err := buildPayload(name, fields)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}

	return &model.TypedEvent{
		ChainID:   log.ChainID,
		Sequence:  log.Sequence,
		OpHash:    log.OpHash,
		LogIndex:  log.LogIndex,
		Address:   log.Address,
		EventName: name,
		Timestamp: log.Timestamp,
		Decoded:   decoded,
		Raw:       &model.RawLogRef{Topic0: log.Topics[0], Data: log.Data},
	}, nil
}

func normalizeEventName(poolABI abi.ABI, name string) string {
	trimmed := strings.TrimSpace(name)
	for known := range poolABI.Events {
		if strings.EqualFold(known, trimmed) {
			return known
		}
	}
	return ""
}

func unpackEvent(event abi.Event, log model.LogRecord) (fieldMap, error) {
	indexed := indexedArguments(event.Inputs)
	if len(log.Topics) != len(indexed)+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", len(indexed)+1, len(log.Topics))
	}
	hashes, err := parseTopicHashes(log.Topics[1:])
	if err != nil {
		return nil, err
	}

	fields := make(map[string]interface{}, len(event.Inputs))
	if err := abi.ParseTopicsIntoMap(fields, indexed, hashes); err != nil {
		return nil, fmt.Errorf("parse topics: %w", err)
	}
	data, err := hexutil.Decode(log.Data)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	if err := event.Inputs.NonIndexed().UnpackIntoMap(fields, data); err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	return fields, nil
}

func parseTopicHashes(topics []string) ([]common.Hash, error) {
	out := make([]common.Hash, 0, len(topics))
	for _, topic := range topics {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func buildPayload(name string, f fieldMap) (interface{}, error) {
	var out interface{}
	switch name {
	case model.EventPositionCreated:
		out = model.PositionCreatedData{Owner: f.addr("owner")}
	case model.EventLiquidityModified:
		out = model.LiquidityModifiedData{
			Owner:          f.addr("owner"),
			LiquidityDelta: f.num("liquidityDelta"),
			AmountA:        f.num("amountA"),
			AmountB:        f.num("amountB"),
			TotalLiquidity: f.num("totalLiquidity"),
		}
	case model.EventFeesClaimed:
		out = model.FeesClaimedData{Owner: f.addr("owner"), AmountA: f.num("amountA"), AmountB: f.num("amountB")}
	case model.EventRewardsClaimed:
		out = model.RewardsClaimedData{
			Owner:       f.addr("owner"),
			RewardIndex: f.u8("rewardIndex"),
			Token:       f.addr("token"),
			Amount:      f.num("amount"),
		}
	case model.EventSwap:
		out = model.SwapData{
			Trader:       f.addr("trader"),
			AToB:         f.flag("aToB"),
			AmountIn:     f.num("amountIn"),
			AmountOut:    f.num("amountOut"),
			FeeOnTokenA:  f.flag("feeOnTokenA"),
			LPFee:        f.num("lpFee"),
			ProtocolFee:  f.num("protocolFee"),
			PartnerFee:   f.num("partnerFee"),
			ReferralFee:  f.num("referralFee"),
			SqrtPriceX96: f.num("sqrtPriceX96"),
			Liquidity:    f.num("liquidity"),
		}
	case model.EventReserveSync:
		out = model.ReserveSyncData{ReserveA: f.num("reserveA"), ReserveB: f.num("reserveB")}
	case model.EventPositionLocked:
		out = model.PositionLockedData{
			Owner:     f.addr("owner"),
			Permanent: f.flag("permanent"),
			Amount:    f.num("amount"),
			EndPoint:  f.u64("endPoint"),
		}
	case model.EventPositionSplit:
		out = model.PositionSplitData{
			From:      f.addr("from"),
			To:        f.addr("to"),
			Unlocked:  f.num("unlocked"),
			Permanent: f.num("permanent"),
			FeeA:      f.num("feeA"),
			FeeB:      f.num("feeB"),
			Reward0:   f.num("reward0"),
			Reward1:   f.num("reward1"),
		}
	case model.EventRewardFunded:
		out = model.RewardFundedData{
			Funder:      f.addr("funder"),
			RewardIndex: f.u8("rewardIndex"),
			Amount:      f.num("amount"),
			DurationEnd: f.u64("durationEnd"),
		}
	default:
		return nil, fmt.Errorf("unsupported event name: %s", name)
	}
	if err := f.err(); err != nil {
		return nil, err
	}
	return out, nil
}

// fieldMap holds unpacked event arguments. A missing or mistyped field is
// recorded under the "" key and reported by err.
type fieldMap map[string]interface{}

func (f fieldMap) fail(key string, v interface{}) {
	if _, ok := f[""]; !ok {
		f[""] = fmt.Errorf("field %s: unexpected %T", key, v)
	}
}

func (f fieldMap) err() error {
	if e, ok := f[""].(error); ok {
		return e
	}
	return nil
}

func (f fieldMap) num(key string) string {
	v, ok := f[key].(*big.Int)
	if !ok || v == nil {
		f.fail(key, f[key])
		return ""
	}
	return v.String()
}

func (f fieldMap) addr(key string) string {
	v, ok := f[key].(common.Address)
	if !ok {
		f.fail(key, f[key])
		return ""
	}
	return v.Hex()
}

func (f fieldMap) flag(key string) bool {
	v, ok := f[key].(bool)
	if !ok {
		f.fail(key, f[key])
	}
	return v
}

func (f fieldMap) u8(key string) uint8 {
	v, ok := f[key].(uint8)
	if !ok {
		f.fail(key, f[key])
	}
	return v
}

func (f fieldMap) u64(key string) uint64 {
	v, ok := f[key].(uint64)
	if !ok {
		f.fail(key, f[key])
	}
	return v
}
