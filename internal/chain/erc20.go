package chain

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"poolcore/internal/model"
)

const erc20ABIJSON = `[
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "symbol", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"}
]`

// Some older tokens return symbol as bytes32.
const erc20Bytes32SymbolJSON = `[
  {"inputs": [], "name": "symbol", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"}
]`

var (
	erc20Once     sync.Once
	erc20ABI      abi.ABI
	erc20Bytes32  abi.ABI
	erc20ParseErr error
)

func erc20ABIs() (abi.ABI, abi.ABI, error) {
	erc20Once.Do(func() {
		erc20ABI, erc20ParseErr = abi.JSON(strings.NewReader(erc20ABIJSON))
		if erc20ParseErr != nil {
			return
		}
		erc20Bytes32, erc20ParseErr = abi.JSON(strings.NewReader(erc20Bytes32SymbolJSON))
	})
	return erc20ABI, erc20Bytes32, erc20ParseErr
}

// TokenMeta loads decimals and symbol of an ERC20 token, using an in-memory cache.
func (c *Client) TokenMeta(ctx context.Context, token common.Address) (model.TokenMeta, error) {
	c.mu.RLock()
	meta, ok := c.metaCache[token]
	c.mu.RUnlock()
	if ok {
		return meta, nil
	}

	parsed, _, err := erc20ABIs()
	if err != nil {
		return model.TokenMeta{}, fmt.Errorf("parse erc20 abi: %w", err)
	}

	meta = model.TokenMeta{Address: token.Hex()}
	resp, err := c.call(ctx, token, parsed, "decimals")
	if err != nil {
		return meta, err
	}
	values, err := parsed.Unpack("decimals", resp)
	if err != nil {
		return meta, fmt.Errorf("unpack decimals: %w", err)
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return meta, fmt.Errorf("unsupported decimals type %T", values[0])
	}
	meta.Decimals = decimals

	if resp, err := c.call(ctx, token, parsed, "symbol"); err == nil {
		meta.Symbol, _ = decodeSymbol(resp)
	}

	c.mu.Lock()
	c.metaCache[token] = meta
	c.mu.Unlock()
	return meta, nil
}

func (c *Client) call(ctx context.Context, to common.Address, parsed abi.ABI, method string) ([]byte, error) {
	data, err := parsed.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	resp, err := c.ethClient.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	return resp, nil
}

// decodeSymbol accepts both the string and the bytes32 symbol encodings.
func decodeSymbol(resp []byte) (string, error) {
	stringABI, bytes32ABI, err := erc20ABIs()
	if err != nil {
		return "", err
	}
	if values, err := stringABI.Unpack("symbol", resp); err == nil {
		if symbol, ok := values[0].(string); ok {
			return symbol, nil
		}
	}
	values, err := bytes32ABI.Unpack("symbol", resp)
	if err != nil {
		return "", fmt.Errorf("unpack symbol: %w", err)
	}
	raw, ok := values[0].([32]byte)
	if !ok {
		return "", fmt.Errorf("unsupported symbol type %T", values[0])
	}
	return string(bytes.TrimRight(raw[:], "\x00")), nil
}
