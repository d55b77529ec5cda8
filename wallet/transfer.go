package wallet

import (
	"context"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/hermeznetwork/tracerr"
	"github.com/hermeznetwork/zkwallet/common"
	"github.com/hermeznetwork/zkwallet/eip712"
	"github.com/hermeznetwork/zkwallet/resolver"
)

// Transfer sends ether on the L2 with a standard EIP-1559 transaction.  A
// request with a paymaster is sent as an L2 envelope instead.
func (w *Wallet) Transfer(ctx context.Context, req *TransferRequest) (*PendingL2Tx, error) {
	if req.paymaster != nil {
		return w.TransferEIP712(ctx, req)
	}
	to := req.to
	txReq := &resolver.TxRequest{
		To:    &to,
		Value: req.amount,
		Data:  ethCommon.CopyBytes(req.data),
	}
	req.overrides.applyRequest(txReq)
	hash, err := w.sendRequest(ctx, chainL2, "transfer", txReq, common.ErrTransactionReverted)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return w.newPendingL2Tx(hash, "transfer", common.ErrTransactionReverted), nil
}

// TransferEIP712 sends ether on the L2 with an L2 envelope
func (w *Wallet) TransferEIP712(ctx context.Context, req *TransferRequest) (*PendingL2Tx, error) {
	to := req.to
	data := ethCommon.CopyBytes(req.data)
	if data == nil {
		data = []byte{}
	}
	tx := &eip712.Transaction{
		To:    &to,
		From:  w.Address(),
		Value: req.amount,
		Data:  data,
		Meta:  withPaymaster(nil, req.paymaster),
	}
	req.overrides.applyEnvelope(tx)
	return w.submitEnvelope(ctx, "transfer_eip712", tx, common.ErrTransactionReverted)
}
