// Package evm implements the chain oracle over EVM JSON-RPC.
package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/vietddude/sentinel/internal/infra/chain"
)

var gweiPerWei = big.NewInt(1_000_000_000)

// Caller makes JSON-RPC calls. Satisfied by *rpc.Client.
type Caller interface {
	Call(ctx context.Context, method string, params []any) (any, error)
}

// Oracle reads base fees and submits raw transactions for one EVM chain.
type Oracle struct {
	chainName string
	client    Caller
}

// NewOracle creates an oracle for the named chain.
func NewOracle(chainName string, client Caller) *Oracle {
	return &Oracle{chainName: chainName, client: client}
}

// ChainName returns the configured chain name.
func (o *Oracle) ChainName() string {
	return o.chainName
}

// BaseFeeGwei returns the latest block's base fee in gwei. Pre-EIP-1559
// chains have no baseFeePerGas field; the legacy eth_gasPrice call is used
// instead, transparent to the scheduler.
func (o *Oracle) BaseFeeGwei(ctx context.Context) (uint64, error) {
	result, err := o.client.Call(ctx, "eth_getBlockByNumber", []any{"latest", false})
	if err != nil {
		return 0, fmt.Errorf("%w: eth_getBlockByNumber: %v", chain.ErrOracleUnavailable, err)
	}

	rawBlock, ok := result.(map[string]any)
	if !ok {
		return 0, fmt.Errorf("%w: invalid block format", chain.ErrOracleUnavailable)
	}

	feeHex := getString(rawBlock["baseFeePerGas"])
	if feeHex == "" {
		return o.gasPriceGwei(ctx)
	}

	fee, err := parseHexToBigInt(feeHex)
	if err != nil {
		return 0, fmt.Errorf("%w: baseFeePerGas: %v", chain.ErrOracleUnavailable, err)
	}
	return weiToGwei(fee), nil
}

// gasPriceGwei is the legacy fallback for chains without a base fee field.
func (o *Oracle) gasPriceGwei(ctx context.Context) (uint64, error) {
	result, err := o.client.Call(ctx, "eth_gasPrice", nil)
	if err != nil {
		return 0, fmt.Errorf("%w: eth_gasPrice: %v", chain.ErrOracleUnavailable, err)
	}

	priceHex, ok := result.(string)
	if !ok {
		return 0, fmt.Errorf("%w: invalid gas price response", chain.ErrOracleUnavailable)
	}
	price, err := parseHexToBigInt(priceHex)
	if err != nil {
		return 0, fmt.Errorf("%w: gas price: %v", chain.ErrOracleUnavailable, err)
	}
	return weiToGwei(price), nil
}

// BroadcastRaw submits a hex-encoded signed transaction and returns its hash.
func (o *Oracle) BroadcastRaw(ctx context.Context, rawTxHex string) (string, error) {
	if !strings.HasPrefix(rawTxHex, "0x") {
		rawTxHex = "0x" + rawTxHex
	}

	result, err := o.client.Call(ctx, "eth_sendRawTransaction", []any{rawTxHex})
	if err != nil {
		return "", fmt.Errorf("%w: %v", chain.ErrBroadcastRejected, err)
	}

	txHash, ok := result.(string)
	if !ok || txHash == "" {
		return "", fmt.Errorf("%w: invalid tx hash response", chain.ErrBroadcastRejected)
	}
	return txHash, nil
}

func weiToGwei(wei *big.Int) uint64 {
	return new(big.Int).Div(wei, gweiPerWei).Uint64()
}

func parseHexToBigInt(hexStr string) (*big.Int, error) {
	n := new(big.Int)
	if _, ok := n.SetString(strings.TrimPrefix(hexStr, "0x"), 16); !ok {
		return nil, fmt.Errorf("invalid hex: %s", hexStr)
	}
	return n, nil
}

func getString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
