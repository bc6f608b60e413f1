// Package sim replays scripted operations against a pool and records the
// events they emit.
package sim

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"poolcore/internal/ledger"
	"poolcore/internal/vesting"
)

// Operation types understood by the runner.
const (
	OpMint                 = "mint"
	OpSetTax               = "set_tax"
	OpAddLiquidity         = "add_liquidity"
	OpRemoveLiquidity      = "remove_liquidity"
	OpRemoveAllLiquidity   = "remove_all_liquidity"
	OpSwap                 = "swap"
	OpClaimPositionFee     = "claim_position_fee"
	OpClaimReward          = "claim_reward"
	OpClaimProtocolFee     = "claim_protocol_fee"
	OpClaimPartnerFee      = "claim_partner_fee"
	OpLockPosition         = "lock_position"
	OpPermanentLock        = "permanent_lock"
	OpRefreshVesting       = "refresh_vesting"
	OpSplitPosition        = "split_position"
	OpInitializeReward     = "initialize_reward"
	OpFundReward           = "fund_reward"
	OpWithdrawIneligible   = "withdraw_ineligible_reward"
	OpUpdateRewardDuration = "update_reward_duration"
	OpUpdateRewardFunder   = "update_reward_funder"
	OpAdvance              = "advance"
)

// Op is one line of a simulation script. Amounts are decimal strings. At
// moves a manual clock to that point before the op runs; zero keeps it.
type Op struct {
	Type        string                   `json:"type"`
	At          uint64                   `json:"at,omitempty"`
	Owner       string                   `json:"owner,omitempty"`
	To          string                   `json:"to,omitempty"`
	Token       string                   `json:"token,omitempty"`
	Amount      string                   `json:"amount,omitempty"`
	AmountA     string                   `json:"amount_a,omitempty"`
	AmountB     string                   `json:"amount_b,omitempty"`
	Liquidity   string                   `json:"liquidity,omitempty"`
	MinOut      string                   `json:"min_out,omitempty"`
	MinA        string                   `json:"min_a,omitempty"`
	MinB        string                   `json:"min_b,omitempty"`
	Referral    string                   `json:"referral,omitempty"`
	RewardIndex int                      `json:"reward_index,omitempty"`
	Duration    uint64                   `json:"duration,omitempty"`
	TaxBps      uint64                   `json:"tax_bps,omitempty"`
	Lock        *LockSpec                `json:"lock,omitempty"`
	Split       *ledger.SplitPercentages `json:"split,omitempty"`
	// ExpectError marks an op that must fail with an error containing this text.
	ExpectError string `json:"expect_error,omitempty"`
}

// LockSpec is the vesting part of a lock_position op.
type LockSpec struct {
	CliffPoint           uint64 `json:"cliff_point"`
	PeriodFrequency      uint64 `json:"period_frequency"`
	CliffUnlockLiquidity string `json:"cliff_unlock_liquidity"`
	LiquidityPerPeriod   string `json:"liquidity_per_period"`
	NumberOfPeriod       uint64 `json:"number_of_period"`
}

// ScriptOp is an op with its position in the script. Sequence starts at 1.
type ScriptOp struct {
	Op
	Sequence uint64
	Hash     common.Hash
}

// ReadScriptFile loads a JSONL script from path.
func ReadScriptFile(path string) ([]ScriptOp, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open script: %w", err)
	}
	defer file.Close()
	return ReadScript(file)
}

// ReadScript parses one op per line. Blank lines and lines starting with #
// are ignored. Each op is identified by the keccak hash of its line.
func ReadScript(r io.Reader) ([]ScriptOp, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var ops []ScriptOp
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		var op Op
		dec := json.NewDecoder(bytes.NewReader(line))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&op); err != nil {
			return nil, fmt.Errorf("parse script line %d: %w", lineNo, err)
		}
		if op.Type == "" {
			return nil, fmt.Errorf("parse script line %d: missing type", lineNo)
		}
		ops = append(ops, ScriptOp{
			Op:       op,
			Sequence: uint64(len(ops) + 1),
			Hash:     crypto.Keccak256Hash(line),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan script: %w", err)
	}
	return ops, nil
}

// argParser collects the first conversion error of an op.
type argParser struct {
	err error
}

func (p *argParser) fail(format string, args ...interface{}) {
	if p.err == nil {
		p.err = fmt.Errorf(format, args...)
	}
}

// amount parses a decimal amount. Empty means nil, which the pool treats as
// unbounded for thresholds.
func (p *argParser) amount(field, value string) *uint256.Int {
	if value == "" {
		return nil
	}
	v, err := uint256.FromDecimal(value)
	if err != nil {
		p.fail("%s %q: %w", field, value, err)
		return nil
	}
	return v
}

func (p *argParser) required(field, value string) *uint256.Int {
	if value == "" {
		p.fail("%s is required", field)
		return new(uint256.Int)
	}
	v := p.amount(field, value)
	if v == nil {
		return new(uint256.Int)
	}
	return v
}

func (p *argParser) address(field, value string) common.Address {
	if value == "" {
		return common.Address{}
	}
	if !common.IsHexAddress(value) {
		p.fail("%s: invalid address %q", field, value)
		return common.Address{}
	}
	return common.HexToAddress(value)
}

func (p *argParser) requiredAddress(field, value string) common.Address {
	if value == "" {
		p.fail("%s is required", field)
		return common.Address{}
	}
	return p.address(field, value)
}

// token resolves "a" and "b" to the pool tokens, anything else as an address.
func (p *argParser) token(value string, tokenA, tokenB common.Address) common.Address {
	switch strings.ToLower(value) {
	case "a":
		return tokenA
	case "b":
		return tokenB
	default:
		return p.requiredAddress("token", value)
	}
}

func (p *argParser) lock(ls *LockSpec) vesting.Params {
	if ls == nil {
		p.fail("lock is required")
		return vesting.Params{}
	}
	return vesting.Params{
		CliffPoint:           ls.CliffPoint,
		PeriodFrequency:      ls.PeriodFrequency,
		CliffUnlockLiquidity: p.amount("cliff_unlock_liquidity", ls.CliffUnlockLiquidity),
		LiquidityPerPeriod:   p.amount("liquidity_per_period", ls.LiquidityPerPeriod),
		NumberOfPeriod:       ls.NumberOfPeriod,
	}
}
