package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	fm "poolcore/internal/fullmath"
	"poolcore/internal/poolerr"
)

// SplitPercentages selects how much of each dimension moves. A non-zero value
// is a share in 1..100; zero leaves that dimension of both positions
// untouched.
type SplitPercentages struct {
	Unlocked  uint8 `json:"unlocked"`
	Permanent uint8 `json:"permanent"`
	FeeA      uint8 `json:"feeA"`
	FeeB      uint8 `json:"feeB"`
	Reward0   uint8 `json:"reward0"`
	Reward1   uint8 `json:"reward1"`
}

// Validate requires every value in 0..100 and at least one non-zero. Zero is
// accepted per dimension and means "leave untouched", not "move 0%".
func (p SplitPercentages) Validate() error {
	nonZero := false
	for _, v := range []uint8{p.Unlocked, p.Permanent, p.FeeA, p.FeeB, p.Reward0, p.Reward1} {
		if v > 100 {
			return poolerr.ErrInvalidPercentage
		}
		if v > 0 {
			nonZero = true
		}
	}
	if !nonZero {
		return poolerr.ErrInvalidPercentage
	}
	return nil
}

// SplitAmounts is what moved from source to destination.
type SplitAmounts struct {
	Unlocked  *uint256.Int
	Permanent *uint256.Int
	FeeA      *uint256.Int
	FeeB      *uint256.Int
	Rewards   [NumRewards]*uint256.Int
}

// Split moves floor(x*pct/100) of each dimension from src to dst after
// settling both. Pool liquidity does not change.
func (l *Ledger) Split(src, dst common.Address, pct SplitPercentages, now uint64) (out SplitAmounts, err error) {
	err = l.run(now, func(tx *Tx) error {
		out, err = tx.Split(src, dst, pct)
		return err
	})
	return out, err
}

// Split stages a split of src into dst.
func (tx *Tx) Split(src, dst common.Address, pct SplitPercentages) (SplitAmounts, error) {
	if err := pct.Validate(); err != nil {
		return SplitAmounts{}, err
	}
	if src == dst {
		return SplitAmounts{}, poolerr.ErrSamePosition
	}
	if dst == (common.Address{}) {
		return SplitAmounts{}, poolerr.ErrZeroAddress
	}
	from, err := tx.position(src, false)
	if err != nil {
		return SplitAmounts{}, err
	}
	if from.HasActiveVesting() {
		return SplitAmounts{}, poolerr.ErrVestingActive
	}
	to, err := tx.position(dst, true)
	if err != nil {
		return SplitAmounts{}, err
	}

	var out SplitAmounts
	moves := []struct {
		pct      uint8
		from, to **uint256.Int
		moved    **uint256.Int
	}{
		{pct.Unlocked, &from.Unlocked, &to.Unlocked, &out.Unlocked},
		{pct.Permanent, &from.Permanent, &to.Permanent, &out.Permanent},
		{pct.FeeA, &from.FeeAPending, &to.FeeAPending, &out.FeeA},
		{pct.FeeB, &from.FeeBPending, &to.FeeBPending, &out.FeeB},
		{pct.Reward0, &from.Rewards[0].Pending, &to.Rewards[0].Pending, &out.Rewards[0]},
		{pct.Reward1, &from.Rewards[1].Pending, &to.Rewards[1].Pending, &out.Rewards[1]},
	}
	for i, m := range moves {
		amount, err := fm.Percent(*m.from, m.pct)
		if err != nil {
			return SplitAmounts{}, err
		}
		credited, err := fm.Add(*m.to, amount)
		if err != nil {
			return SplitAmounts{}, fmt.Errorf("split dimension %d: %w", i, err)
		}
		if i < 2 && !fm.FitsU128(credited) {
			return SplitAmounts{}, poolerr.ErrOverflow
		}
		*m.from = new(uint256.Int).Sub(*m.from, amount)
		*m.to = credited
		*m.moved = amount
	}
	return out, nil
}
