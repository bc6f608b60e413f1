package pool

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"poolcore/internal/poolerr"
)

type transfer struct {
	token  common.Address
	to     common.Address
	amount *uint256.Int
}

// pull takes amount of token from payer and verifies the pool balance grew
// by at least amount. On a shortfall whatever arrived is sent back.
func (p *Pool) pull(ctx context.Context, tkn, payer common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	before, err := p.custody.BalanceOf(ctx, tkn, p.address)
	if err != nil {
		return fmt.Errorf("%w: balance before: %w", poolerr.ErrTransferFailed, err)
	}
	if err := p.custody.TransferFrom(ctx, tkn, p.address, payer, p.address, amount); err != nil {
		return fmt.Errorf("%w: pull %s: %w", poolerr.ErrTransferFailed, tkn.Hex(), err)
	}
	after, err := p.custody.BalanceOf(ctx, tkn, p.address)
	if err != nil {
		return fmt.Errorf("%w: balance after: %w", poolerr.ErrTransferFailed, err)
	}

	received := new(uint256.Int)
	if after.Gt(before) {
		received.Sub(after, before)
	}
	if received.Lt(amount) {
		p.refund(ctx, tkn, payer, received)
		p.logger.Warn("settlement shortfall",
			zap.String("token", tkn.Hex()),
			zap.String("payer", payer.Hex()),
			zap.String("owed", amount.Dec()),
			zap.String("received", received.Dec()),
		)
		return fmt.Errorf("%w: token %s owed %s received %s", poolerr.ErrSettlementShortfall, tkn.Hex(), amount.Dec(), received.Dec())
	}
	return nil
}

// refund returns tokens that arrived for an operation that did not commit.
func (p *Pool) refund(ctx context.Context, tkn, to common.Address, amount *uint256.Int) {
	if amount == nil || amount.IsZero() {
		return
	}
	if err := p.custody.Transfer(ctx, tkn, p.address, to, amount); err != nil {
		p.logger.Error("refund failed",
			zap.Error(err),
			zap.String("token", tkn.Hex()),
			zap.String("to", to.Hex()),
			zap.String("amount", amount.Dec()),
		)
	}
}

// payout sends tokens out of the pool. Custody balances are checked up front
// so a transfer batch does not stop halfway for lack of funds.
func (p *Pool) payout(ctx context.Context, transfers ...transfer) error {
	need := make(map[common.Address]*uint256.Int)
	for _, t := range transfers {
		if t.amount == nil || t.amount.IsZero() {
			continue
		}
		if t.to == (common.Address{}) {
			return poolerr.ErrZeroAddress
		}
		sum, ok := need[t.token]
		if !ok {
			sum = new(uint256.Int)
			need[t.token] = sum
		}
		sum.Add(sum, t.amount)
	}
	for tkn, sum := range need {
		bal, err := p.custody.BalanceOf(ctx, tkn, p.address)
		if err != nil {
			return fmt.Errorf("%w: balance of %s: %w", poolerr.ErrTransferFailed, tkn.Hex(), err)
		}
		if bal.Lt(sum) {
			return fmt.Errorf("%w: custody holds %s of %s, need %s", poolerr.ErrTransferFailed, bal.Dec(), tkn.Hex(), sum.Dec())
		}
	}
	for _, t := range transfers {
		if t.amount == nil || t.amount.IsZero() {
			continue
		}
		if err := p.custody.Transfer(ctx, t.token, p.address, t.to, t.amount); err != nil {
			return fmt.Errorf("%w: pay %s to %s: %w", poolerr.ErrTransferFailed, t.token.Hex(), t.to.Hex(), err)
		}
	}
	return nil
}
