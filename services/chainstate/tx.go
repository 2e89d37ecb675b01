package chainstate

import (
	"context"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/services/mempool"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// OnTransactionReceived offers a serialized transaction from fromPeer to the
// mempool. Submitting a transaction that is already in the pool is a no-op
// reported as AlreadyKnown.
func (c *Chainstate) OnTransactionReceived(ctx context.Context, raw []byte, fromPeer string) Verdict {
	verdict, _ := c.submitTransaction(ctx, raw, fromPeer)
	return verdict
}

// SubmitTransaction is OnTransactionReceived for local callers that also want
// the mempool's accept result.
func (c *Chainstate) SubmitTransaction(ctx context.Context, raw []byte) (Verdict, *mempool.AcceptResult) {
	return c.submitTransaction(ctx, raw, "")
}

func (c *Chainstate) submitTransaction(ctx context.Context, raw []byte, fromPeer string) (Verdict, *mempool.AcceptResult) {
	tx, err := bt.NewTxFromBytes(raw)
	if err != nil {
		verdict := verdictFromError(chainhash.Hash{}, errors.NewTxMalformedError("transaction does not parse", err))
		c.report(objectTx, []peerVerdict{{fromPeer: fromPeer, verdict: verdict}})

		return verdict, nil
	}

	txID := *tx.TxIDChainHash()

	c.mu.Lock()

	var result *mempool.AcceptResult

	if err = c.checkWritable(); err == nil {
		result, err = c.mempool.Accept(ctx, tx)
	}

	c.mu.Unlock()

	verdict := verdictFromError(txID, err)
	c.report(objectTx, []peerVerdict{{fromPeer: fromPeer, verdict: verdict}})

	return verdict, result
}
