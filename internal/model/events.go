package model

// Event names emitted by pools.
const (
	EventPositionCreated   = "PositionCreated"
	EventLiquidityModified = "LiquidityModified"
	EventFeesClaimed       = "FeesClaimed"
	EventRewardsClaimed    = "RewardsClaimed"
	EventSwap              = "Swap"
	EventReserveSync       = "ReserveSync"
	EventPositionLocked    = "PositionLocked"
	EventPositionSplit     = "PositionSplit"
	EventRewardFunded      = "RewardFunded"
)

// Event is a pool event before encoding. Data is one of the *Data payloads below.
type Event struct {
	Name  string
	Pool  string
	Point uint64
	Data  interface{}
}

// PositionCreatedData is emitted the first time an owner touches a pool.
type PositionCreatedData struct {
	Owner string `json:"owner"`
}

// LiquidityModifiedData carries a signed liquidity delta and the token amounts moved.
type LiquidityModifiedData struct {
	Owner          string `json:"owner"`
	LiquidityDelta string `json:"liquidity_delta"`
	AmountA        string `json:"amount_a"`
	AmountB        string `json:"amount_b"`
	TotalLiquidity string `json:"total_liquidity"`
}

// FeesClaimedData is emitted on a position fee claim.
type FeesClaimedData struct {
	Owner   string `json:"owner"`
	AmountA string `json:"amount_a"`
	AmountB string `json:"amount_b"`
}

// RewardsClaimedData is emitted on a reward claim.
type RewardsClaimedData struct {
	Owner       string `json:"owner"`
	RewardIndex uint8  `json:"reward_index"`
	Token       string `json:"token"`
	Amount      string `json:"amount"`
}

// SwapData is the payload of a settled trade.
type SwapData struct {
	Trader       string `json:"trader"`
	AToB         bool   `json:"a_to_b"`
	AmountIn     string `json:"amount_in"`
	AmountOut    string `json:"amount_out"`
	FeeOnTokenA  bool   `json:"fee_on_token_a"`
	LPFee        string `json:"lp_fee"`
	ProtocolFee  string `json:"protocol_fee"`
	PartnerFee   string `json:"partner_fee"`
	ReferralFee  string `json:"referral_fee"`
	SqrtPriceX96 string `json:"sqrt_price_x96"`
	Liquidity    string `json:"liquidity"`
}

// ReserveSyncData reports pool reserves after a balance-changing operation.
type ReserveSyncData struct {
	ReserveA string `json:"reserve_a"`
	ReserveB string `json:"reserve_b"`
}

// PositionLockedData is emitted when liquidity moves to vested or permanent.
type PositionLockedData struct {
	Owner     string `json:"owner"`
	Permanent bool   `json:"permanent"`
	Amount    string `json:"amount"`
	EndPoint  uint64 `json:"end_point"`
}

// PositionSplitData lists what moved between two positions.
type PositionSplitData struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Unlocked  string `json:"unlocked"`
	Permanent string `json:"permanent"`
	FeeA      string `json:"fee_a"`
	FeeB      string `json:"fee_b"`
	Reward0   string `json:"reward0"`
	Reward1   string `json:"reward1"`
}

// RewardFundedData is emitted when a reward channel receives tokens.
type RewardFundedData struct {
	Funder      string `json:"funder"`
	RewardIndex uint8  `json:"reward_index"`
	Amount      string `json:"amount"`
	DurationEnd uint64 `json:"duration_end"`
}
