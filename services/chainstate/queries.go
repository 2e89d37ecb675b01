package chainstate

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"slices"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/services/feeestimator"
	"github.com/bsv-blockchain/chainstate/services/mempool"
	"github.com/bsv-blockchain/chainstate/stores/utxo"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// CoinFilter selects coins for GetBalance and ListUnspent. The zero value
// selects every coin.
type CoinFilter struct {
	// LockingScript restricts the result to outputs paying exactly this script.
	LockingScript []byte
	// MinConfirmations skips coins with fewer confirmations; a coin in the tip has one.
	MinConfirmations uint32
	// ExcludeImmature skips coinbase outputs that cannot be spent in the next block.
	ExcludeImmature bool
}

// UnspentOutput is one coin as reported by ListUnspent.
type UnspentOutput struct {
	TxID          string `csv:"txid" json:"txid"`
	Vout          uint32 `csv:"vout" json:"vout"`
	Satoshis      uint64 `csv:"satoshis" json:"satoshis"`
	LockingScript string `csv:"locking_script" json:"lockingScript"`
	Height        uint32 `csv:"height" json:"height"`
	Confirmations uint32 `csv:"confirmations" json:"confirmations"`
	Coinbase      bool   `csv:"coinbase" json:"coinbase"`
}

// BlockChainInfo summarises the active chain.
type BlockChainInfo struct {
	Chain         string  `json:"chain"`
	Blocks        uint32  `json:"blocks"`
	Headers       uint32  `json:"headers"`
	BestBlockHash string  `json:"bestBlockHash"`
	Difficulty    float64 `json:"difficulty"`
	MedianTime    int64   `json:"medianTime"`
	ChainWork     string  `json:"chainWork"`
	Pruned        bool    `json:"pruned"`
	PruneHeight   uint32  `json:"pruneHeight"`
	Corrupt       bool    `json:"corrupt"`
	OrphanBlocks  int     `json:"orphanBlocks"`
}

// forEachCoin calls fn for every coin of the active chain that matches filter.
// The caller holds mu for reading.
func (c *Chainstate) forEachCoin(ctx context.Context, filter CoinFilter, fn func(utxo.Outpoint, *utxo.Coin, uint32) error) error {
	tipHeight := c.tip.Height
	maturity := c.params.CoinbaseMaturity

	return c.utxoStore.Iterate(ctx, func(outpoint utxo.Outpoint, coin *utxo.Coin) error {
		if err := ctx.Err(); err != nil {
			return errors.NewContextCanceledError("coin iteration cancelled", err)
		}

		if filter.LockingScript != nil && !bytes.Equal(coin.Script, filter.LockingScript) {
			return nil
		}

		var confirmations uint32
		if coin.Height <= tipHeight {
			confirmations = tipHeight - coin.Height + 1
		}

		if confirmations < filter.MinConfirmations {
			return nil
		}

		if filter.ExcludeImmature && coin.Coinbase && !coin.IsMature(tipHeight+1, maturity) {
			return nil
		}

		return fn(outpoint, coin, confirmations)
	})
}

// GetBalance returns the total value of the coins matching filter.
func (c *Chainstate) GetBalance(ctx context.Context, filter CoinFilter) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var total uint64

	err := c.forEachCoin(ctx, filter, func(_ utxo.Outpoint, coin *utxo.Coin, _ uint32) error {
		total += coin.Value
		return nil
	})
	if err != nil {
		return 0, err
	}

	return total, nil
}

// ListUnspent returns the coins matching filter, ordered by outpoint.
func (c *Chainstate) ListUnspent(ctx context.Context, filter CoinFilter) ([]*UnspentOutput, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	type found struct {
		outpoint utxo.Outpoint
		output   *UnspentOutput
	}

	var coins []found

	err := c.forEachCoin(ctx, filter, func(outpoint utxo.Outpoint, coin *utxo.Coin, confirmations uint32) error {
		coins = append(coins, found{
			outpoint: outpoint,
			output: &UnspentOutput{
				TxID:          outpoint.TxID.String(),
				Vout:          outpoint.Index,
				Satoshis:      coin.Value,
				LockingScript: hex.EncodeToString(coin.Script),
				Height:        coin.Height,
				Confirmations: confirmations,
				Coinbase:      coin.Coinbase,
			},
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(coins, func(a, b found) int {
		return a.outpoint.Compare(b.outpoint)
	})

	outputs := make([]*UnspentOutput, len(coins))
	for i, f := range coins {
		outputs[i] = f.output
	}

	return outputs, nil
}

// GetCoin returns the unspent output at outpoint in the active chain, not
// counting the mempool.
func (c *Chainstate) GetCoin(ctx context.Context, outpoint utxo.Outpoint) (*utxo.Coin, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.utxoStore.GetCoin(ctx, outpoint)
}

// EstimateFee returns the fee rate, in satoshis per 1000 bytes, expected to
// confirm a transaction within target blocks.
func (c *Chainstate) EstimateFee(target int) (feeestimator.FeeRate, error) {
	return c.feeEstimator.EstimateFeeRate(target)
}

// GetMempoolEntry returns a copy of the pool entry of txID.
// GetMempoolEntry and GetMempoolInfo never observe the mempool halfway
// through a tip change.
func (c *Chainstate) GetMempoolEntry(txID chainhash.Hash) (*mempool.TxEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.mempool.Get(txID)
	if !ok {
		return nil, errors.NewTxNotFoundError("transaction %s is not in the mempool", txID)
	}

	return entry, nil
}

func (c *Chainstate) GetMempoolInfo() *mempool.Info {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.mempool.Info()
}

// GetBlockChainInfo describes the active chain and the best known header.
func (c *Chainstate) GetBlockChainInfo() *BlockChainInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tip := c.tip

	headers := tip.Height
	if best := c.index.BestCandidate(nil); best != nil && best.Height > headers {
		headers = best.Height
	}

	difficulty, _ := tip.Header.Bits.CalculateDifficulty().Float64()

	return &BlockChainInfo{
		Chain:         c.params.Name,
		Blocks:        tip.Height,
		Headers:       headers,
		BestBlockHash: tip.Hash.String(),
		Difficulty:    difficulty,
		MedianTime:    c.index.MedianTimePast(tip),
		ChainWork:     fmt.Sprintf("%064x", tip.ChainWork),
		Pruned:        c.settings.BlockStore.Prune,
		PruneHeight:   c.pruneHeight,
		Corrupt:       c.corrupt.Load(),
		OrphanBlocks:  c.orphanBlocks.Len(),
	}
}
