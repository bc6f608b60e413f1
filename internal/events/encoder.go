// Package events converts pool events to ABI-encoded log records and back.
package events

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"poolcore/internal/model"
)

// LogRef locates the operation that produced a batch of events.
type LogRef struct {
	ChainID  uint64
	Sequence uint64
	OpHash   string
}

// Encoder packs model.Event values into log records.
type Encoder struct {
	poolABI abi.ABI
	now     func() time.Time
}

// NewEncoder builds an encoder over the pool event ABI.
func NewEncoder() (*Encoder, error) {
	poolABI, err := PoolEventsABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool events abi: %w", err)
	}
	return &Encoder{poolABI: poolABI, now: time.Now}, nil
}

// EncodeAll encodes a batch, numbering logs from zero.
func (e *Encoder) EncodeAll(ref LogRef, events []model.Event) ([]model.LogRecord, error) {
	out := make([]model.LogRecord, 0, len(events))
	for i, ev := range events {
		rec, err := e.Encode(ref, uint64(i), ev)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Encode packs a single event.
func (e *Encoder) Encode(ref LogRef, logIndex uint64, ev model.Event) (model.LogRecord, error) {
	event, ok := e.poolABI.Events[ev.Name]
	if !ok {
		return model.LogRecord{}, fmt.Errorf("unknown event: %s", ev.Name)
	}
	indexed, values, err := eventArgs(ev.Data)
	if err != nil {
		return model.LogRecord{}, fmt.Errorf("encode %s: %w", ev.Name, err)
	}
	if want := len(indexedArguments(event.Inputs)); want != len(indexed) {
		return model.LogRecord{}, fmt.Errorf("encode %s: expected %d indexed args, got %d", ev.Name, want, len(indexed))
	}
	data, err := event.Inputs.NonIndexed().Pack(values...)
	if err != nil {
		return model.LogRecord{}, fmt.Errorf("pack %s: %w", ev.Name, err)
	}

	topics := make([]string, 0, len(indexed)+1)
	topics = append(topics, event.ID.Hex())
	for _, addr := range indexed {
		topics = append(topics, common.BytesToHash(addr.Bytes()).Hex())
	}

	return model.LogRecord{
		ChainID:    ref.ChainID,
		Sequence:   ref.Sequence,
		OpHash:     ref.OpHash,
		LogIndex:   logIndex,
		Address:    ev.Pool,
		Topics:     topics,
		Data:       hexutil.Encode(data),
		Timestamp:  ev.Point,
		IngestedAt: e.now().UTC().Format(time.RFC3339Nano),
	}, nil
}

func eventArgs(data interface{}) (indexed []common.Address, values []interface{}, err error) {
	var p parser
	switch d := data.(type) {
	case model.PositionCreatedData:
		indexed = []common.Address{p.addr(d.Owner)}
	case model.LiquidityModifiedData:
		indexed = []common.Address{p.addr(d.Owner)}
		values = []interface{}{p.num(d.LiquidityDelta), p.num(d.AmountA), p.num(d.AmountB), p.num(d.TotalLiquidity)}
	case model.FeesClaimedData:
		indexed = []common.Address{p.addr(d.Owner)}
		values = []interface{}{p.num(d.AmountA), p.num(d.AmountB)}
	case model.RewardsClaimedData:
		indexed = []common.Address{p.addr(d.Owner)}
		values = []interface{}{d.RewardIndex, p.addr(d.Token), p.num(d.Amount)}
	case model.SwapData:
		indexed = []common.Address{p.addr(d.Trader)}
		values = []interface{}{
			d.AToB, p.num(d.AmountIn), p.num(d.AmountOut), d.FeeOnTokenA,
			p.num(d.LPFee), p.num(d.ProtocolFee), p.num(d.PartnerFee), p.num(d.ReferralFee),
			p.num(d.SqrtPriceX96), p.num(d.Liquidity),
		}
	case model.ReserveSyncData:
		values = []interface{}{p.num(d.ReserveA), p.num(d.ReserveB)}
	case model.PositionLockedData:
		indexed = []common.Address{p.addr(d.Owner)}
		values = []interface{}{d.Permanent, p.num(d.Amount), d.EndPoint}
	case model.PositionSplitData:
		indexed = []common.Address{p.addr(d.From), p.addr(d.To)}
		values = []interface{}{
			p.num(d.Unlocked), p.num(d.Permanent), p.num(d.FeeA), p.num(d.FeeB),
			p.num(d.Reward0), p.num(d.Reward1),
		}
	case model.RewardFundedData:
		indexed = []common.Address{p.addr(d.Funder)}
		values = []interface{}{d.RewardIndex, p.num(d.Amount), d.DurationEnd}
	default:
		return nil, nil, fmt.Errorf("unsupported payload %T", data)
	}
	return indexed, values, p.err
}

// parser keeps the first conversion error so payload fields can be listed inline.
type parser struct {
	err error
}

func (p *parser) num(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		if p.err == nil {
			p.err = fmt.Errorf("invalid integer: %q", s)
		}
		return new(big.Int)
	}
	return v
}

func (p *parser) addr(s string) common.Address {
	if !common.IsHexAddress(s) {
		if p.err == nil {
			p.err = fmt.Errorf("invalid address: %q", s)
		}
		return common.Address{}
	}
	return common.HexToAddress(s)
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}
