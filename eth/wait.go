package eth

import (
	"context"
	"fmt"
	"time"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/hermeznetwork/tracerr"
	"github.com/hermeznetwork/zkwallet/common"
	"github.com/hermeznetwork/zkwallet/log"
)

// ReceiptReader reads receipts
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, txHash ethCommon.Hash) (*common.Receipt, error)
}

// WaitReceipt blocks until the transaction is included, polling every
// interval.  After timeout it returns common.ErrTimeout; the transaction is
// not affected.  A zero timeout means no limit other than ctx.  Errors of
// individual polls are logged and retried.
func WaitReceipt(ctx context.Context, c ReceiptReader, txHash ethCommon.Hash,
	interval, timeout time.Duration) (*common.Receipt, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	log.Debugw("Waiting for receipt", "tx", txHash.Hex())
	var lastErr error
	for {
		receipt, err := c.TransactionReceipt(ctx, txHash)
		if err != nil {
			lastErr = err
			log.Debugw("Receipt poll failed", "tx", txHash.Hex(), "err", err)
		} else if receipt != nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			log.Debugw("Pending transaction / Wait receipt timeout", "tx", txHash.Hex(),
				"lasterr", lastErr)
			return nil, tracerr.Wrap(fmt.Errorf("%w: %v: %v", common.ErrTimeout,
				txHash.Hex(), ctx.Err()))
		case <-time.After(interval):
		}
	}
}
