package model

// PoolSnapshot is the persisted view of a pool. Amounts are decimal strings.
type PoolSnapshot struct {
	ChainID          uint64 `json:"chain_id"`
	Address          string `json:"address"`
	TokenA           string `json:"token_a"`
	TokenB           string `json:"token_b"`
	SqrtPriceX96     string `json:"sqrt_price_x96"`
	SqrtMinPriceX96  string `json:"sqrt_min_price_x96"`
	SqrtMaxPriceX96  string `json:"sqrt_max_price_x96"`
	Liquidity        string `json:"liquidity"`
	ReserveA         string `json:"reserve_a"`
	ReserveB         string `json:"reserve_b"`
	FeeAPerLiquidity string `json:"fee_a_per_liquidity"`
	FeeBPerLiquidity string `json:"fee_b_per_liquidity"`
	ProtocolAFee     string `json:"protocol_a_fee"`
	ProtocolBFee     string `json:"protocol_b_fee"`
	PartnerAFee      string `json:"partner_a_fee"`
	PartnerBFee      string `json:"partner_b_fee"`
	Version          uint64 `json:"version"`
	Point            uint64 `json:"point"`
}

// PositionSnapshot is the persisted view of one position.
type PositionSnapshot struct {
	ChainID     uint64 `json:"chain_id"`
	PoolAddress string `json:"pool_address"`
	Owner       string `json:"owner"`
	Unlocked    string `json:"unlocked"`
	Vested      string `json:"vested"`
	Permanent   string `json:"permanent"`
	FeeAPending string `json:"fee_a_pending"`
	FeeBPending string `json:"fee_b_pending"`
	FeeAClaimed string `json:"fee_a_claimed"`
	FeeBClaimed string `json:"fee_b_claimed"`
	Reward0     string `json:"reward0_pending"`
	Reward1     string `json:"reward1_pending"`
}
