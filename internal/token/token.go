// Package token defines the custody interface pools settle through and an
// in-memory implementation with allowances and optional transfer tax.
package token

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrInsufficientBalance   = errors.New("token: insufficient balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	ErrInvalidTax            = errors.New("token: tax above 10000 bps")
)

// Custody moves token balances on behalf of pools.
type Custody interface {
	BalanceOf(ctx context.Context, token, account common.Address) (*uint256.Int, error)
	Transfer(ctx context.Context, token, from, to common.Address, amount *uint256.Int) error
	TransferFrom(ctx context.Context, token, spender, from, to common.Address, amount *uint256.Int) error
}

// Ledger is an in-memory Custody. A per-token tax in basis points is burned
// from every transfer, so the receiver gets less than was sent.
type Ledger struct {
	mu         sync.Mutex
	balances   map[common.Address]map[common.Address]*uint256.Int
	allowances map[common.Address]map[[2]common.Address]*uint256.Int
	taxBps     map[common.Address]uint64
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		balances:   make(map[common.Address]map[common.Address]*uint256.Int),
		allowances: make(map[common.Address]map[[2]common.Address]*uint256.Int),
		taxBps:     make(map[common.Address]uint64),
	}
}

// SetTax configures the transfer tax of token.
func (l *Ledger) SetTax(token common.Address, bps uint64) error {
	if bps > 10_000 {
		return ErrInvalidTax
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.taxBps[token] = bps
	return nil
}

// Mint credits amount to account.
func (l *Ledger) Mint(token, account common.Address, amount *uint256.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	bal := l.balance(token, account)
	bal.Add(bal, amount)
}

// Approve sets spender's allowance over owner's token.
func (l *Ledger) Approve(token, owner, spender common.Address, amount *uint256.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.allowances[token] == nil {
		l.allowances[token] = make(map[[2]common.Address]*uint256.Int)
	}
	l.allowances[token][[2]common.Address{owner, spender}] = amount.Clone()
}

// Allowance returns spender's remaining allowance.
func (l *Ledger) Allowance(token, owner, spender common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if a, ok := l.allowances[token][[2]common.Address{owner, spender}]; ok {
		return a.Clone()
	}
	return new(uint256.Int)
}

func (l *Ledger) balance(token, account common.Address) *uint256.Int {
	accounts, ok := l.balances[token]
	if !ok {
		accounts = make(map[common.Address]*uint256.Int)
		l.balances[token] = accounts
	}
	bal, ok := accounts[account]
	if !ok {
		bal = new(uint256.Int)
		accounts[account] = bal
	}
	return bal
}

func (l *Ledger) BalanceOf(_ context.Context, token, account common.Address) (*uint256.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance(token, account).Clone(), nil
}

func (l *Ledger) Transfer(_ context.Context, token, from, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(token, from, to, amount)
}

func (l *Ledger) TransferFrom(_ context.Context, token, spender, from, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := [2]common.Address{from, spender}
	allowance := l.allowances[token][key]
	if spender != from {
		if allowance == nil || allowance.Lt(amount) {
			return fmt.Errorf("transfer %s from %s: %w", amount.Dec(), from.Hex(), ErrInsufficientAllowance)
		}
	}
	if err := l.move(token, from, to, amount); err != nil {
		return err
	}
	if spender != from {
		allowance.Sub(allowance, amount)
	}
	return nil
}

func (l *Ledger) move(token, from, to common.Address, amount *uint256.Int) error {
	src := l.balance(token, from)
	if src.Lt(amount) {
		return fmt.Errorf("transfer %s from %s: %w", amount.Dec(), from.Hex(), ErrInsufficientBalance)
	}
	received := amount.Clone()
	if bps := l.taxBps[token]; bps > 0 {
		tax := new(uint256.Int).Mul(amount, uint256.NewInt(bps))
		tax.Div(tax, uint256.NewInt(10_000))
		received.Sub(received, tax)
	}
	src.Sub(src, amount)
	dst := l.balance(token, to)
	dst.Add(dst, received)
	return nil
}

var _ Custody = (*Ledger)(nil)
