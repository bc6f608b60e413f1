package aggregate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// StateRows reads and writes named progress rows. *postgres.Store implements it.
type StateRows interface {
	LoadState(ctx context.Context, name string) (uint64, bool, error)
	SaveState(ctx context.Context, name string, ts uint64) error
}

// DBStateStore keeps progress in a state row scoped to one window size and
// one set of pools, so runs with other windows or pool files never share it.
type DBStateStore struct {
	Rows          StateRows
	Name          string
	WindowSeconds uint64
	Pools         []string
}

// Key is the state row name, e.g. "aggregate:300s" or
// "aggregate:300s:1f2e3d4c5b6a7988" when pools are set.
func (s *DBStateStore) Key() string {
	key := fmt.Sprintf("%s:%ds", s.Name, s.WindowSeconds)
	if len(s.Pools) == 0 {
		return key
	}
	pools := make([]string, 0, len(s.Pools))
	for _, p := range s.Pools {
		pools = append(pools, poolKey(p))
	}
	sort.Strings(pools)
	digest := crypto.Keccak256([]byte(strings.Join(pools, ",")))
	return fmt.Sprintf("%s:%x", key, digest[:8])
}

func (s *DBStateStore) Load(ctx context.Context) (uint64, bool, error) {
	if s == nil || s.Rows == nil {
		return 0, false, nil
	}
	ts, ok, err := s.Rows.LoadState(ctx, s.Key())
	if err != nil {
		return 0, false, fmt.Errorf("load state %s: %w", s.Key(), err)
	}
	return ts, ok, nil
}

func (s *DBStateStore) Save(ctx context.Context, ts uint64) error {
	if s == nil || s.Rows == nil {
		return nil
	}
	if err := s.Rows.SaveState(ctx, s.Key(), ts); err != nil {
		return fmt.Errorf("save state %s: %w", s.Key(), err)
	}
	return nil
}
