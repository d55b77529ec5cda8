package wallet

import (
	"context"
	"fmt"
	"time"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/hermeznetwork/tracerr"
	"github.com/hermeznetwork/zkwallet/common"
	"github.com/hermeznetwork/zkwallet/eth"
	"github.com/hermeznetwork/zkwallet/log"
	"github.com/hermeznetwork/zkwallet/metric"
)

// WaitOpts sets how a wait polls.  Zero fields take the wallet defaults.
type WaitOpts struct {
	PollInterval time.Duration
	// Timeout limits the wait.  On timeout common.ErrTimeout is returned
	// and the transaction is not affected.
	Timeout time.Duration
}

func (w *Wallet) waitOpts(opts []WaitOpts) WaitOpts {
	o := WaitOpts{PollInterval: w.cfg.PollInterval, Timeout: w.cfg.Timeout}
	if len(opts) > 0 {
		if opts[0].PollInterval != 0 {
			o.PollInterval = opts[0].PollInterval
		}
		if opts[0].Timeout != 0 {
			o.Timeout = opts[0].Timeout
		}
	}
	return o
}

type pendingTx struct {
	w         *Wallet
	chain     string
	operation string
	hash      ethCommon.Hash
	client    eth.EthereumInterface
	// rejectErr is the error of a failed receipt
	rejectErr error
}

// Hash returns the hash of the submitted transaction
func (p *pendingTx) Hash() ethCommon.Hash {
	return p.hash
}

func (p *pendingTx) wait(ctx context.Context, opts []WaitOpts) (*common.Receipt, error) {
	o := p.w.waitOpts(opts)
	start := time.Now()
	receipt, err := eth.WaitReceipt(ctx, p.client, p.hash, o.PollInterval, o.Timeout)
	if err != nil {
		metric.MeasureDuration(metric.WaitReceipt, start, p.chain, "timeout")
		return nil, tracerr.Wrap(err)
	}
	metric.MeasureDuration(metric.WaitReceipt, start, p.chain, "included")
	return p.check(receipt)
}

func (p *pendingTx) check(receipt *common.Receipt) (*common.Receipt, error) {
	if !receipt.Succeeded() {
		return nil, p.w.rejected(p.chain, p.operation, fmt.Errorf("%w: transaction %v failed in block %v",
			p.rejectErr, p.hash.Hex(), receipt.BlockNumber))
	}
	return receipt, nil
}

// PendingL1Tx is a submitted L1 transaction
type PendingL1Tx struct {
	pendingTx
}

func (w *Wallet) newPendingL1Tx(hash ethCommon.Hash, operation string, rejectErr error) *PendingL1Tx {
	return &PendingL1Tx{pendingTx{w: w, chain: chainL1, operation: operation, hash: hash,
		client: w.l1, rejectErr: rejectErr}}
}

// Wait blocks until the transaction is included and returns its receipt.
// A failed transaction returns the error of the operation, such as
// common.ErrDepositRejected.
func (p *PendingL1Tx) Wait(ctx context.Context, opts ...WaitOpts) (*common.Receipt, error) {
	return p.wait(ctx, opts)
}

// PendingL2Tx is a submitted L2 transaction
type PendingL2Tx struct {
	pendingTx
}

func (w *Wallet) newPendingL2Tx(hash ethCommon.Hash, operation string, rejectErr error) *PendingL2Tx {
	return &PendingL2Tx{pendingTx{w: w, chain: chainL2, operation: operation, hash: hash,
		client: w.l2, rejectErr: rejectErr}}
}

// Wait blocks until the transaction is included and returns its receipt
func (p *PendingL2Tx) Wait(ctx context.Context, opts ...WaitOpts) (*common.Receipt, error) {
	return p.wait(ctx, opts)
}

// WaitFinalized blocks until the block of the transaction is finalized, so
// that a withdrawal can be finalized on L1.  The timeout covers both the
// inclusion and the finalization.
func (p *PendingL2Tx) WaitFinalized(ctx context.Context, opts ...WaitOpts) (*common.Receipt, error) {
	o := p.w.waitOpts(opts)
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}
	receipt, err := p.Wait(ctx, WaitOpts{PollInterval: o.PollInterval})
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	start := time.Now()
	for {
		finalized, err := p.w.l2.FinalizedBlockNumber(ctx)
		if err != nil {
			log.Debugw("Finalized block poll failed", "tx", p.hash.Hex(), "err", err)
		} else {
			metric.LastL2Finalized.Set(float64(finalized))
			if finalized >= receipt.BlockNumber {
				metric.MeasureDuration(metric.WaitReceipt, start, p.chain, "finalized")
				return receipt, nil
			}
		}
		select {
		case <-ctx.Done():
			metric.MeasureDuration(metric.WaitReceipt, start, p.chain, "timeout")
			return nil, tracerr.Wrap(fmt.Errorf("%w: %v not finalized: %v", common.ErrTimeout,
				p.hash.Hex(), ctx.Err()))
		case <-time.After(o.PollInterval):
		}
	}
}
