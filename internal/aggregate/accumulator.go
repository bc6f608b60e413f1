package aggregate

import (
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"

	"poolcore/internal/model"
)

// Accumulator holds aggregate values for a pool window.
type Accumulator struct {
	ChainID      uint64
	PoolAddress  string
	WindowStart  uint64
	WindowEnd    uint64
	SwapCount    uint64
	VolumeA      *uint256.Int
	VolumeB      *uint256.Int
	LPFeeA       *uint256.Int
	LPFeeB       *uint256.Int
	ProtocolFeeA *uint256.Int
	ProtocolFeeB *uint256.Int
	PartnerFeeA  *uint256.Int
	PartnerFeeB  *uint256.Int
	ReferralFeeA *uint256.Int
	ReferralFeeB *uint256.Int
	// ReserveA and ReserveB are the last synced reserves; nil until a ReserveSync is seen.
	ReserveA      *uint256.Int
	ReserveB      *uint256.Int
	LastSqrtPrice string
	LastTS        uint64
}

func NewAccumulator(record model.TypedEventRecord, windowStart, windowEnd uint64) *Accumulator {
	return &Accumulator{
		ChainID:      record.ChainID,
		PoolAddress:  record.Address,
		WindowStart:  windowStart,
		WindowEnd:    windowEnd,
		VolumeA:      new(uint256.Int),
		VolumeB:      new(uint256.Int),
		LPFeeA:       new(uint256.Int),
		LPFeeB:       new(uint256.Int),
		ProtocolFeeA: new(uint256.Int),
		ProtocolFeeB: new(uint256.Int),
		PartnerFeeA:  new(uint256.Int),
		PartnerFeeB:  new(uint256.Int),
		ReferralFeeA: new(uint256.Int),
		ReferralFeeB: new(uint256.Int),
		LastTS:       record.Timestamp,
	}
}

// CarryReserves seeds the reserves from the previous window of the same pool.
func (a *Accumulator) CarryReserves(prev *Accumulator) {
	if prev == nil || prev.ReserveA == nil {
		return
	}
	a.ReserveA, a.ReserveB = prev.ReserveA.Clone(), prev.ReserveB.Clone()
}

func (a *Accumulator) AddEvent(record model.TypedEventRecord) error {
	if record.Timestamp >= a.LastTS {
		a.LastTS = record.Timestamp
	}

	switch record.EventName {
	case model.EventSwap:
		var swap model.SwapData
		if err := json.Unmarshal(record.Decoded, &swap); err != nil {
			return fmt.Errorf("decode swap: %w", err)
		}
		return a.applySwap(swap)
	case model.EventReserveSync:
		var sync model.ReserveSyncData
		if err := json.Unmarshal(record.Decoded, &sync); err != nil {
			return fmt.Errorf("decode reserve sync: %w", err)
		}
		return a.applyReserveSync(sync)
	default:
		return nil
	}
}

func (a *Accumulator) applySwap(swap model.SwapData) error {
	var p amountParser
	amountIn := p.parse(swap.AmountIn)
	amountOut := p.parse(swap.AmountOut)
	lp := p.parse(swap.LPFee)
	protocol := p.parse(swap.ProtocolFee)
	partner := p.parse(swap.PartnerFee)
	referral := p.parse(swap.ReferralFee)
	if p.err != nil {
		return p.err
	}

	if swap.AToB {
		a.VolumeA.Add(a.VolumeA, amountIn)
		a.VolumeB.Add(a.VolumeB, amountOut)
	} else {
		a.VolumeB.Add(a.VolumeB, amountIn)
		a.VolumeA.Add(a.VolumeA, amountOut)
	}

	if swap.FeeOnTokenA {
		a.LPFeeA.Add(a.LPFeeA, lp)
		a.ProtocolFeeA.Add(a.ProtocolFeeA, protocol)
		a.PartnerFeeA.Add(a.PartnerFeeA, partner)
		a.ReferralFeeA.Add(a.ReferralFeeA, referral)
	} else {
		a.LPFeeB.Add(a.LPFeeB, lp)
		a.ProtocolFeeB.Add(a.ProtocolFeeB, protocol)
		a.PartnerFeeB.Add(a.PartnerFeeB, partner)
		a.ReferralFeeB.Add(a.ReferralFeeB, referral)
	}

	a.LastSqrtPrice = swap.SqrtPriceX96
	a.SwapCount++
	return nil
}

func (a *Accumulator) applyReserveSync(sync model.ReserveSyncData) error {
	var p amountParser
	reserveA := p.parse(sync.ReserveA)
	reserveB := p.parse(sync.ReserveB)
	if p.err != nil {
		return p.err
	}
	a.ReserveA, a.ReserveB = reserveA, reserveB
	return nil
}

type amountParser struct {
	err error
}

func (p *amountParser) parse(value string) *uint256.Int {
	if value == "" {
		return new(uint256.Int)
	}
	parsed, err := uint256.FromDecimal(value)
	if err != nil {
		if p.err == nil {
			p.err = fmt.Errorf("invalid amount %q: %w", value, err)
		}
		return new(uint256.Int)
	}
	return parsed
}
