package pool

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"poolcore/internal/ledger"
	"poolcore/internal/model"
	"poolcore/internal/volatility"
)

// Snapshot is a deep copy of a pool's state.
type Snapshot struct {
	Address        common.Address
	Config         Config
	SqrtPrice      *uint256.Int
	Liquidity      *uint256.Int
	ReserveA       *uint256.Int
	ReserveB       *uint256.Int
	ProtocolAFee   *uint256.Int
	ProtocolBFee   *uint256.Int
	PartnerAFee    *uint256.Int
	PartnerBFee    *uint256.Int
	TotalLPAFee    *uint256.Int
	TotalLPBFee    *uint256.Int
	RewardReserves [ledger.NumRewards]*uint256.Int
	Volatility     volatility.State
	Ledger         *ledger.Ledger
	Version        uint64
	Point          uint64
}

// Snapshot copies the pool state.
func (p *Pool) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Snapshot{
		Address:      p.address,
		Config:       p.cfg,
		SqrtPrice:    p.st.sqrtPrice.Clone(),
		Liquidity:    p.st.ledger.Liquidity.Clone(),
		ReserveA:     p.st.reserveA.Clone(),
		ReserveB:     p.st.reserveB.Clone(),
		ProtocolAFee: p.st.protocolAFee.Clone(),
		ProtocolBFee: p.st.protocolBFee.Clone(),
		PartnerAFee:  p.st.partnerAFee.Clone(),
		PartnerBFee:  p.st.partnerBFee.Clone(),
		TotalLPAFee:  p.st.lpAFee.Clone(),
		TotalLPBFee:  p.st.lpBFee.Clone(),
		Volatility:   p.st.volatility.Clone(),
		Ledger:       p.st.ledger.Clone(),
		Version:      p.version,
		Point:        p.clock.CurrentPoint(),
	}
	for i, r := range p.st.rewardReserves {
		s.RewardReserves[i] = r.Clone()
	}
	return s
}

// Records flattens the snapshot for storage.
func (s Snapshot) Records(chainID uint64) (model.PoolSnapshot, []model.PositionSnapshot) {
	pool := model.PoolSnapshot{
		ChainID:          chainID,
		Address:          s.Address.Hex(),
		TokenA:           s.Config.TokenA.Hex(),
		TokenB:           s.Config.TokenB.Hex(),
		SqrtPriceX96:     s.SqrtPrice.Dec(),
		SqrtMinPriceX96:  s.Config.SqrtMinPrice.Dec(),
		SqrtMaxPriceX96:  s.Config.SqrtMaxPrice.Dec(),
		Liquidity:        s.Liquidity.Dec(),
		ReserveA:         s.ReserveA.Dec(),
		ReserveB:         s.ReserveB.Dec(),
		FeeAPerLiquidity: s.Ledger.FeeAPerLiquidity.Dec(),
		FeeBPerLiquidity: s.Ledger.FeeBPerLiquidity.Dec(),
		ProtocolAFee:     s.ProtocolAFee.Dec(),
		ProtocolBFee:     s.ProtocolBFee.Dec(),
		PartnerAFee:      s.PartnerAFee.Dec(),
		PartnerBFee:      s.PartnerBFee.Dec(),
		Version:          s.Version,
		Point:            s.Point,
	}

	owners := s.Ledger.Owners()
	positions := make([]model.PositionSnapshot, 0, len(owners))
	for _, owner := range owners {
		pos := s.Ledger.Positions[owner]
		positions = append(positions, model.PositionSnapshot{
			ChainID:     chainID,
			PoolAddress: pool.Address,
			Owner:       owner.Hex(),
			Unlocked:    pos.Unlocked.Dec(),
			Vested:      pos.Vested.Dec(),
			Permanent:   pos.Permanent.Dec(),
			FeeAPending: pos.FeeAPending.Dec(),
			FeeBPending: pos.FeeBPending.Dec(),
			FeeAClaimed: pos.FeeAClaimed.Dec(),
			FeeBClaimed: pos.FeeBClaimed.Dec(),
			Reward0:     pos.Rewards[0].Pending.Dec(),
			Reward1:     pos.Rewards[1].Pending.Dec(),
		})
	}
	return pool, positions
}
