package ledger

import (
	"github.com/holiman/uint256"

	"poolcore/internal/vesting"
)

// NumRewards is the number of reward channels per pool.
const NumRewards = 2

// RewardInfo is a position's view of one reward channel.
type RewardInfo struct {
	Checkpoint   *uint256.Int
	Pending      *uint256.Int
	TotalClaimed *uint256.Int
}

func newRewardInfo() RewardInfo {
	return RewardInfo{Checkpoint: new(uint256.Int), Pending: new(uint256.Int), TotalClaimed: new(uint256.Int)}
}

func (r RewardInfo) clone() RewardInfo {
	return RewardInfo{Checkpoint: r.Checkpoint.Clone(), Pending: r.Pending.Clone(), TotalClaimed: r.TotalClaimed.Clone()}
}

// Position is one owner's liquidity in a pool.
type Position struct {
	Unlocked  *uint256.Int
	Vested    *uint256.Int
	Permanent *uint256.Int

	FeeACheckpoint *uint256.Int
	FeeBCheckpoint *uint256.Int
	FeeAPending    *uint256.Int
	FeeBPending    *uint256.Int
	FeeAClaimed    *uint256.Int
	FeeBClaimed    *uint256.Int

	Rewards [NumRewards]RewardInfo

	Vesting *vesting.Schedule
}

func newPosition(feeA, feeB *uint256.Int, rewards [NumRewards]RewardChannel) *Position {
	p := &Position{
		Unlocked:       new(uint256.Int),
		Vested:         new(uint256.Int),
		Permanent:      new(uint256.Int),
		FeeACheckpoint: feeA.Clone(),
		FeeBCheckpoint: feeB.Clone(),
		FeeAPending:    new(uint256.Int),
		FeeBPending:    new(uint256.Int),
		FeeAClaimed:    new(uint256.Int),
		FeeBClaimed:    new(uint256.Int),
	}
	for i := range p.Rewards {
		p.Rewards[i] = newRewardInfo()
		p.Rewards[i].Checkpoint = rewards[i].PerTokenStored.Clone()
	}
	return p
}

// Clone returns a deep copy.
func (p *Position) Clone() *Position {
	out := &Position{
		Unlocked:       p.Unlocked.Clone(),
		Vested:         p.Vested.Clone(),
		Permanent:      p.Permanent.Clone(),
		FeeACheckpoint: p.FeeACheckpoint.Clone(),
		FeeBCheckpoint: p.FeeBCheckpoint.Clone(),
		FeeAPending:    p.FeeAPending.Clone(),
		FeeBPending:    p.FeeBPending.Clone(),
		FeeAClaimed:    p.FeeAClaimed.Clone(),
		FeeBClaimed:    p.FeeBClaimed.Clone(),
		Vesting:        p.Vesting.Clone(),
	}
	for i := range p.Rewards {
		out.Rewards[i] = p.Rewards[i].clone()
	}
	return out
}

// Liquidity is unlocked + vested + permanent.
func (p *Position) Liquidity() *uint256.Int {
	total := new(uint256.Int).Add(p.Unlocked, p.Vested)
	return total.Add(total, p.Permanent)
}

// HasActiveVesting reports whether a lock schedule is still running.
func (p *Position) HasActiveVesting() bool {
	return p.Vesting != nil && !p.Vesting.Done()
}
