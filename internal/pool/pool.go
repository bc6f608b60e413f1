// Package pool ties the curve, fee scheduler, volatility tracker and ledger
// into a single-range liquidity pool. Every mutating entry point runs under
// the pool mutex. Operations that take tokens from a caller are split into a
// quote, which reads a copy of the state, and a settlement, which pulls the
// tokens, checks the received balance and only then commits.
package pool

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"poolcore/internal/clock"
	"poolcore/internal/fees"
	fm "poolcore/internal/fullmath"
	"poolcore/internal/ledger"
	"poolcore/internal/model"
	"poolcore/internal/poolerr"
	"poolcore/internal/token"
	"poolcore/internal/volatility"
)

// Config is the immutable pool definition.
type Config struct {
	TokenA         common.Address
	TokenB         common.Address
	SqrtMinPrice   *uint256.Int
	SqrtMaxPrice   *uint256.Int
	SqrtPrice      *uint256.Int
	Fees           fees.Config
	CollectFeeMode fees.CollectFeeMode
	// Partner receives a share of protocol fees when set.
	Partner common.Address
	// Treasury receives protocol fees.
	Treasury common.Address
}

// Validate checks token identity, price bounds and fee settings.
func (c Config) Validate() error {
	if c.TokenA == (common.Address{}) || c.TokenB == (common.Address{}) {
		return poolerr.ErrZeroAddress
	}
	if c.TokenA == c.TokenB {
		return fmt.Errorf("identical tokens: %w", poolerr.ErrInvalidPriceRange)
	}
	if c.SqrtMinPrice == nil || c.SqrtMaxPrice == nil || c.SqrtPrice == nil {
		return fmt.Errorf("missing price: %w", poolerr.ErrInvalidPriceRange)
	}
	if c.SqrtMinPrice.IsZero() || !c.SqrtMaxPrice.Gt(c.SqrtMinPrice) || c.SqrtMaxPrice.Gt(fm.MaxU160) {
		return poolerr.ErrInvalidPriceRange
	}
	if c.SqrtPrice.Lt(c.SqrtMinPrice) || c.SqrtPrice.Gt(c.SqrtMaxPrice) {
		return fmt.Errorf("initial price outside range: %w", poolerr.ErrInvalidPriceRange)
	}
	if c.CollectFeeMode > fees.CollectOnlyB {
		return fmt.Errorf("collect fee mode %d: %w", c.CollectFeeMode, poolerr.ErrInvalidFeeConfig)
	}
	return c.Fees.Validate()
}

// DeriveAddress returns the deterministic pool address for a token pair and range.
func DeriveAddress(tokenA, tokenB common.Address, sqrtMin, sqrtMax *uint256.Int) common.Address {
	minBytes := sqrtMin.Bytes32()
	maxBytes := sqrtMax.Bytes32()
	hash := crypto.Keccak256(tokenA.Bytes(), tokenB.Bytes(), minBytes[:], maxBytes[:])
	return common.BytesToAddress(hash[12:])
}

type state struct {
	sqrtPrice      *uint256.Int
	reserveA       *uint256.Int
	reserveB       *uint256.Int
	protocolAFee   *uint256.Int
	protocolBFee   *uint256.Int
	partnerAFee    *uint256.Int
	partnerBFee    *uint256.Int
	lpAFee         *uint256.Int
	lpBFee         *uint256.Int
	rewardReserves [ledger.NumRewards]*uint256.Int
	volatility     volatility.State
	ledger         *ledger.Ledger
}

// Pool is a single-range liquidity pool.
type Pool struct {
	mu      sync.Mutex
	address common.Address
	cfg     Config
	clock   clock.Clock
	custody token.Custody
	logger  *zap.Logger

	st      state
	version uint64
	events  []model.Event
}

// New creates a pool with no liquidity.
func New(cfg Config, clk clock.Clock, custody token.Custody, logger *zap.Logger) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate pool config: %w", err)
	}
	if clk == nil || custody == nil {
		return nil, fmt.Errorf("clock and custody are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.SqrtMinPrice = cfg.SqrtMinPrice.Clone()
	cfg.SqrtMaxPrice = cfg.SqrtMaxPrice.Clone()
	cfg.SqrtPrice = cfg.SqrtPrice.Clone()

	address := DeriveAddress(cfg.TokenA, cfg.TokenB, cfg.SqrtMinPrice, cfg.SqrtMaxPrice)
	p := &Pool{
		address: address,
		cfg:     cfg,
		clock:   clk,
		custody: custody,
		logger:  logger.With(zap.String("pool", address.Hex())),
		st: state{
			sqrtPrice:    cfg.SqrtPrice.Clone(),
			reserveA:     new(uint256.Int),
			reserveB:     new(uint256.Int),
			protocolAFee: new(uint256.Int),
			protocolBFee: new(uint256.Int),
			partnerAFee:  new(uint256.Int),
			partnerBFee:  new(uint256.Int),
			lpAFee:       new(uint256.Int),
			lpBFee:       new(uint256.Int),
			volatility:   volatility.NewState(cfg.SqrtPrice, clk.CurrentPoint()),
			ledger:       ledger.New(),
		},
	}
	for i := range p.st.rewardReserves {
		p.st.rewardReserves[i] = new(uint256.Int)
	}
	return p, nil
}

// Address returns the pool address.
func (p *Pool) Address() common.Address {
	return p.address
}

// Config returns the pool definition.
func (p *Pool) Config() Config {
	return p.cfg
}

// Version increases with every committed mutation.
func (p *Pool) Version() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.version
}

// DrainEvents returns and clears events emitted since the last call.
func (p *Pool) DrainEvents() []model.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.events
	p.events = nil
	return out
}

func (p *Pool) emit(now uint64, name string, data interface{}) {
	p.events = append(p.events, model.Event{Name: name, Pool: p.address.Hex(), Point: now, Data: data})
}

func (p *Pool) emitReserveSync(now uint64) {
	p.emit(now, model.EventReserveSync, model.ReserveSyncData{
		ReserveA: p.st.reserveA.Dec(),
		ReserveB: p.st.reserveB.Dec(),
	})
}

func (p *Pool) activation() uint64 {
	return p.clock.ActivationPoint(p.address)
}

// reserve returns a pointer to the tracked reserve of tokenA or tokenB.
func (s *state) reserve(tokenA bool) **uint256.Int {
	if tokenA {
		return &s.reserveA
	}
	return &s.reserveB
}

func debit(balance *uint256.Int, amount *uint256.Int, insufficient error) (*uint256.Int, error) {
	if amount.Gt(balance) {
		return nil, insufficient
	}
	return new(uint256.Int).Sub(balance, amount), nil
}
