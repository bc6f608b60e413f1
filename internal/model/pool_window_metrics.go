package model

import "time"

// PoolWindowMetrics stores aggregated swap metrics for a pool window.
type PoolWindowMetrics struct {
	ChainID        uint64
	PoolAddress    string
	WindowSizeSecs int64
	WindowStart    time.Time
	WindowEnd      time.Time
	SwapCount      uint64
	VolumeA        string
	VolumeB        string
	LPFeeA         string
	LPFeeB         string
	ProtocolFeeA   string
	ProtocolFeeB   string
	PartnerFeeA    string
	PartnerFeeB    string
	ReferralFeeA   string
	ReferralFeeB   string
	FeeRateA       *string
	FeeRateB       *string
	TVLA           *string
	TVLB           *string
	APR            *string
	TVLMethod      string
	LastPrice      *string
	LastSqrtPrice  string
}
