package poolerr

import "errors"

// Kind classifies pool failures.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindValidation
	KindArithmetic
	KindState
	KindExternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindArithmetic:
		return "arithmetic"
	case KindState:
		return "state"
	case KindExternal:
		return "external"
	default:
		return "unknown"
	}
}

// Error is a classified sentinel. Compare with errors.Is.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

func newErr(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

var (
	ErrInvalidPercentage   = newErr(KindValidation, "pool: invalid percentage")
	ErrZeroAddress         = newErr(KindValidation, "pool: zero address")
	ErrInvalidRewardIndex  = newErr(KindValidation, "pool: invalid reward index")
	ErrInvalidAmount       = newErr(KindValidation, "pool: invalid amount")
	ErrInvalidSwapInput    = newErr(KindValidation, "pool: exactly one input amount must be non-zero")
	ErrInvalidFeeConfig    = newErr(KindValidation, "pool: invalid fee config")
	ErrInvalidPriceRange   = newErr(KindValidation, "pool: invalid price range")
	ErrInvalidVesting      = newErr(KindValidation, "pool: invalid vesting parameters")
	ErrSamePosition        = newErr(KindValidation, "pool: source and destination must differ")
	ErrMismatchedLengths   = newErr(KindValidation, "pool: mismatched batch lengths")
	ErrUnauthorized        = newErr(KindValidation, "pool: caller is not authorized")
	ErrInvalidRewardConfig = newErr(KindValidation, "pool: invalid reward configuration")

	ErrOverflow       = newErr(KindArithmetic, "math: overflow")
	ErrUnderflow      = newErr(KindArithmetic, "math: underflow")
	ErrDivideByZero   = newErr(KindArithmetic, "math: divide by zero")
	ErrPriceOutOfBits = newErr(KindArithmetic, "math: sqrt price does not fit 160 bits")

	ErrPositionNotFound      = newErr(KindState, "pool: position not found")
	ErrInsufficientUnlocked  = newErr(KindState, "pool: insufficient unlocked liquidity")
	ErrInsufficientVested    = newErr(KindState, "pool: insufficient vested liquidity")
	ErrInsufficientPermanent = newErr(KindState, "pool: insufficient permanent liquidity")
	ErrInsufficientFee       = newErr(KindState, "pool: insufficient fee balance")
	ErrInsufficientReward    = newErr(KindState, "pool: insufficient reward balance")
	ErrInsufficientReserve   = newErr(KindState, "pool: insufficient reserve")
	ErrPriceRangeViolation   = newErr(KindState, "pool: price range is violated")
	ErrVestingNotDue         = newErr(KindState, "pool: nothing to release yet")
	ErrVestingActive         = newErr(KindState, "pool: position has an active vesting schedule")
	ErrNoVesting             = newErr(KindState, "pool: position has no vesting schedule")
	ErrZeroLiquidity         = newErr(KindState, "pool: pool has no liquidity")
	ErrZeroOutput            = newErr(KindState, "pool: output amount is zero")
	ErrSlippage              = newErr(KindState, "pool: exceeded slippage tolerance")
	ErrStaleQuote            = newErr(KindState, "pool: quote is stale")
	ErrQuoteSettled          = newErr(KindState, "pool: quote already settled")
	ErrRewardUninitialized   = newErr(KindState, "pool: reward channel is not initialized")
	ErrRewardInitialized     = newErr(KindState, "pool: reward channel already initialized")
	ErrRewardPeriodActive    = newErr(KindState, "pool: reward period is still active")
	ErrNothingToWithdraw     = newErr(KindState, "pool: nothing to withdraw")

	ErrSettlementShortfall = newErr(KindExternal, "pool: settlement did not deliver the owed balance")
	ErrTransferFailed      = newErr(KindExternal, "pool: token transfer failed")
)

// KindOf returns the classification of the first *Error in err's chain.
func KindOf(err error) Kind {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind
	}
	return KindUnknown
}
