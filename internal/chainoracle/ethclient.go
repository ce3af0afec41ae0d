// Package chainoracle provides a concrete blockclock.Oracle: an
// Ethereum-compatible JSON-RPC endpoint queried via go-ethereum's
// ethclient, the direct analogue of original_source/utils/block.py's
// bt.subtensor(network).get_current_block() against a different chain
// client library for a different consensus network.
package chainoracle

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"
)

// EthOracle queries block height from an Ethereum-compatible JSON-RPC
// node.
type EthOracle struct {
	client *ethclient.Client
}

// Dial connects to an Ethereum-compatible JSON-RPC endpoint.
func Dial(rpcURL string) (*EthOracle, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial chain rpc: %w", err)
	}
	return &EthOracle{client: client}, nil
}

// CurrentBlock implements blockclock.Oracle.
func (o *EthOracle) CurrentBlock(ctx context.Context) (int64, error) {
	height, err := o.client.BlockNumber(ctx)
	if err != nil {
		return 0, err
	}
	return int64(height), nil
}

// Close releases the underlying RPC connection.
func (o *EthOracle) Close() { o.client.Close() }
