package aggregate

import "github.com/holiman/uint256"

const (
	tvlMethodReserveSync = "reserve_sync"
	tvlMethodNone        = "unavailable"
)

// windowTVL returns the reserves used as the fee rate denominator.
func windowTVL(acc *Accumulator) (*uint256.Int, *uint256.Int, string) {
	if acc.ReserveA == nil || acc.ReserveB == nil {
		return nil, nil, tvlMethodNone
	}
	return acc.ReserveA, acc.ReserveB, tvlMethodReserveSync
}
