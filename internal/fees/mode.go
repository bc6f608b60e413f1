package fees

import (
	"github.com/holiman/uint256"

	fm "poolcore/internal/fullmath"
)

// CollectFeeMode decides which token fees are charged in.
type CollectFeeMode uint8

const (
	CollectBothToken CollectFeeMode = iota
	CollectOnlyB
)

func (m CollectFeeMode) String() string {
	if m == CollectOnlyB {
		return "onlyB"
	}
	return "bothToken"
}

// Direction of a trade.
type Direction uint8

const (
	AtoB Direction = iota
	BtoA
)

func (d Direction) String() string {
	if d == BtoA {
		return "BtoA"
	}
	return "AtoB"
}

// Mode tells the swap engine where to take the fee.
type Mode struct {
	OnInput     bool
	OnTokenA    bool
	HasReferral bool
}

// ModeFor applies the fee mode table. BothToken charges the output leg, so the
// fee token follows the output. OnlyB charges token B, which is the input leg
// only when trading B for A.
func ModeFor(collect CollectFeeMode, dir Direction, hasReferral bool) Mode {
	bToA := dir == BtoA
	return Mode{
		OnInput:     bToA && collect == CollectOnlyB,
		OnTokenA:    bToA && collect == CollectBothToken,
		HasReferral: hasReferral,
	}
}

// Breakdown of a gross fee.
type Breakdown struct {
	LP       *uint256.Int
	Protocol *uint256.Int
	Partner  *uint256.Int
	Referral *uint256.Int
}

// Split divides gross between LPs and the protocol, then carves the referral
// and partner shares out of the protocol share in that order.
func Split(gross *uint256.Int, cfg Config, hasReferral, hasPartner bool) (Breakdown, error) {
	protocol, err := fm.Percent(gross, cfg.ProtocolFeePercent)
	if err != nil {
		return Breakdown{}, err
	}
	lp := new(uint256.Int).Sub(gross, protocol)

	referral := new(uint256.Int)
	if hasReferral {
		if referral, err = fm.Percent(protocol, cfg.ReferralFeePercent); err != nil {
			return Breakdown{}, err
		}
	}
	protocol.Sub(protocol, referral)

	partner := new(uint256.Int)
	if hasPartner {
		if partner, err = fm.Percent(protocol, cfg.PartnerFeePercent); err != nil {
			return Breakdown{}, err
		}
	}
	protocol.Sub(protocol, partner)

	return Breakdown{LP: lp, Protocol: protocol, Partner: partner, Referral: referral}, nil
}

// Total returns the sum of all shares.
func (b Breakdown) Total() *uint256.Int {
	out := new(uint256.Int)
	for _, part := range []*uint256.Int{b.LP, b.Protocol, b.Partner, b.Referral} {
		if part != nil {
			out.Add(out, part)
		}
	}
	return out
}
