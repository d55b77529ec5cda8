package wallet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/hermeznetwork/tracerr"
	"github.com/hermeznetwork/zkwallet/common"
	"github.com/hermeznetwork/zkwallet/eip712"
	"github.com/hermeznetwork/zkwallet/eth/contracts/zksync"
	"github.com/hermeznetwork/zkwallet/resolver"
)

// Deposit submits the L1 transaction that moves ether to the L2.  The L2
// credit is applied by the rollup once the L1 transaction is included; use
// WaitDepositL2 to wait for it.
func (w *Wallet) Deposit(ctx context.Context, req *DepositRequest) (*PendingL1Tx, error) {
	const operation = "deposit"
	if err := amountArg(req.amount); err != nil {
		return nil, w.rejected(chainL1, operation, err)
	}
	to := w.Address()
	if req.to != nil {
		to = *req.to
	}
	refundRecipient := w.Address()
	if req.refundRecipient != nil {
		refundRecipient = *req.refundRecipient
	}
	l2GasLimit := req.l2GasLimit
	if l2GasLimit == nil {
		l2GasLimit = big.NewInt(common.RecommendedDepositL2GasLimit)
	}
	gasPerPubdata := req.gasPerPubdata
	if gasPerPubdata == nil {
		gasPerPubdata = big.NewInt(common.DepositGasPerPubdataLimit)
	}
	mainContract, err := w.l2.MainContract(ctx)
	if err != nil {
		return nil, w.rejected(chainL1, operation, err)
	}

	txReq := &resolver.TxRequest{From: w.L1Address(), To: &mainContract}
	req.overrides.applyRequest(txReq)
	if err := w.checkL1Funds(ctx, &resolver.TxRequest{Value: req.amount}); err != nil {
		return nil, w.rejected(chainL1, operation, err)
	}
	fees, err := w.l1Resolver.Fees(ctx, txReq)
	if err != nil {
		return nil, w.rejected(chainL1, operation, err)
	}
	txReq.MaxFeePerGas, txReq.MaxPriorityFeePerGas = fees.MaxFeePerGas, fees.MaxPriorityFeePerGas
	baseCost, err := w.baseCost(ctx, mainContract, fees.MaxFeePerGas, l2GasLimit, gasPerPubdata)
	if err != nil {
		return nil, w.rejected(chainL1, operation, err)
	}
	if txReq.Value, err = common.AddAmounts(req.amount, baseCost); err != nil {
		return nil, w.rejected(chainL1, operation, err)
	}
	if txReq.Data, err = zksync.MainContract.Pack("requestL2Transaction", to, req.amount, []byte{},
		l2GasLimit, gasPerPubdata, [][]byte{}, refundRecipient); err != nil {
		return nil, w.rejected(chainL1, operation, err)
	}
	if err := w.checkL1Funds(ctx, txReq); err != nil {
		return nil, w.rejected(chainL1, operation, err)
	}
	hash, err := w.sendRequest(ctx, chainL1, operation, txReq, common.ErrDepositRejected)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return w.newPendingL1Tx(hash, operation, common.ErrDepositRejected), nil
}

func amountArg(amount *big.Int) error {
	if amount == nil {
		return tracerr.Wrap(fmt.Errorf("%w: missing amount", common.ErrMalformedEnvelope))
	}
	if amount.Sign() < 0 {
		return tracerr.Wrap(fmt.Errorf("%w: %v", common.ErrNegativeAmount, amount))
	}
	return nil
}

// baseCost returns the L2 fee a deposit pays on L1
func (w *Wallet) baseCost(ctx context.Context, mainContract ethCommon.Address, gasPrice,
	l2GasLimit, gasPerPubdata *big.Int) (*big.Int, error) {
	values, err := w.call(ctx, w.l1, mainContract, zksync.MainContract.Methods["l2TransactionBaseCost"],
		gasPrice, l2GasLimit, gasPerPubdata)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return values[0].(*big.Int), nil
}

// DepositL2Hash returns the hash of the L2 transaction of an included
// deposit
func (w *Wallet) DepositL2Hash(ctx context.Context, l1Hash ethCommon.Hash) (ethCommon.Hash, error) {
	receipt, err := w.l1.TransactionReceipt(ctx, l1Hash)
	if err != nil {
		return ethCommon.Hash{}, tracerr.Wrap(err)
	}
	if receipt == nil {
		return ethCommon.Hash{}, tracerr.Wrap(fmt.Errorf("%w: deposit %v is not included",
			ethereum.NotFound, l1Hash.Hex()))
	}
	return w.depositL2Hash(ctx, receipt)
}

func (w *Wallet) depositL2Hash(ctx context.Context, receipt *common.Receipt) (ethCommon.Hash, error) {
	if !receipt.Succeeded() {
		return ethCommon.Hash{}, tracerr.Wrap(fmt.Errorf("%w: transaction %v failed",
			common.ErrDepositRejected, receipt.TxHash.Hex()))
	}
	mainContract, err := w.l2.MainContract(ctx)
	if err != nil {
		return ethCommon.Hash{}, tracerr.Wrap(err)
	}
	event := zksync.MainContract.Events["NewPriorityRequest"]
	for _, l := range receipt.Logs {
		if l.Address != mainContract || len(l.Topics) == 0 || l.Topics[0] != event.ID {
			continue
		}
		values, err := zksync.MainContract.Unpack(event.Name, l.Data)
		if err != nil {
			return ethCommon.Hash{}, tracerr.Wrap(err)
		}
		return values[1].([32]byte), nil
	}
	return ethCommon.Hash{}, tracerr.Wrap(fmt.Errorf("%w: no priority request in %v",
		ethereum.NotFound, receipt.TxHash.Hex()))
}

// WaitDepositL2 waits for the L1 transaction of a deposit and then for its
// L2 transaction
func (w *Wallet) WaitDepositL2(ctx context.Context, l1Hash ethCommon.Hash,
	opts ...WaitOpts) (*common.Receipt, error) {
	o := w.waitOpts(opts)
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}
	pending := w.newPendingL1Tx(l1Hash, "deposit", common.ErrDepositRejected)
	receipt, err := pending.Wait(ctx, WaitOpts{PollInterval: o.PollInterval})
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	l2Hash, err := w.depositL2Hash(ctx, receipt)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	l2Pending := w.newPendingL2Tx(l2Hash, "deposit", common.ErrDepositRejected)
	return l2Pending.Wait(ctx, WaitOpts{PollInterval: o.PollInterval})
}

// DepositStatus returns the state of the deposit submitted in l1Hash.  A
// reverted deposit returns common.ErrDepositRejected.
func (w *Wallet) DepositStatus(ctx context.Context, l1Hash ethCommon.Hash) (common.DepositState, error) {
	receipt, err := w.l1.TransactionReceipt(ctx, l1Hash)
	if err != nil {
		return common.DepositSubmitted, tracerr.Wrap(err)
	}
	if receipt == nil {
		return common.DepositSubmitted, nil
	}
	l2Hash, err := w.depositL2Hash(ctx, receipt)
	if err != nil {
		return common.DepositL1Included, tracerr.Wrap(err)
	}
	l2Receipt, err := w.l2.TransactionReceipt(ctx, l2Hash)
	if err != nil {
		return common.DepositL1Included, tracerr.Wrap(err)
	}
	if l2Receipt == nil {
		return common.DepositL1Included, nil
	}
	return common.DepositL2Included, nil
}

// Withdraw submits the L2 transaction that starts a withdrawal.  Once its
// block is finalized (PendingL2Tx.WaitFinalized), FinalizeWithdraw releases
// the ether on L1.
func (w *Wallet) Withdraw(ctx context.Context, req *WithdrawRequest) (*PendingL2Tx, error) {
	const operation = "withdraw"
	if err := amountArg(req.amount); err != nil {
		return nil, w.rejected(chainL2, operation, err)
	}
	receiver := w.L1Address()
	if req.to != nil {
		receiver = *req.to
	}
	data, err := zksync.L2EthToken.Pack("withdraw", receiver)
	if err != nil {
		return nil, w.rejected(chainL2, operation, err)
	}
	to := common.L2EthTokenAddress
	tx := &eip712.Transaction{
		To:    &to,
		From:  w.Address(),
		Value: req.amount,
		Data:  data,
		Meta:  withPaymaster(nil, req.paymaster),
	}
	req.overrides.applyEnvelope(tx)
	return w.submitEnvelope(ctx, operation, tx, common.ErrWithdrawRejected)
}

// withdrawalParams are the arguments of the L1 finalization of a withdrawal
type withdrawalParams struct {
	batch    *big.Int
	index    *big.Int
	txNumber uint16
	message  []byte
	proof    [][32]byte
}

func notYetFinalized(l2Hash ethCommon.Hash, format string, args ...interface{}) error {
	return tracerr.Wrap(fmt.Errorf("%w: withdrawal %v %s", common.ErrNotYetFinalized,
		l2Hash.Hex(), fmt.Sprintf(format, args...)))
}

// finalizedWithdrawal returns the finalization arguments of a withdrawal
// whose L2 block is finalized
func (w *Wallet) finalizedWithdrawal(ctx context.Context, l2Hash ethCommon.Hash) (*withdrawalParams, error) {
	receipt, err := w.l2.TransactionReceipt(ctx, l2Hash)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	if receipt == nil {
		return nil, notYetFinalized(l2Hash, "is not included")
	}
	if !receipt.Succeeded() {
		return nil, tracerr.Wrap(fmt.Errorf("%w: transaction %v failed",
			common.ErrWithdrawRejected, l2Hash.Hex()))
	}
	if receipt.L1BatchNumber == nil || receipt.L1BatchTxIndex == nil {
		return nil, notYetFinalized(l2Hash, "has no L1 batch yet")
	}
	finalized, err := w.l2.FinalizedBlockNumber(ctx)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	if receipt.BlockNumber > finalized {
		return nil, notYetFinalized(l2Hash, "is in block %v, finalized block is %v",
			receipt.BlockNumber, finalized)
	}

	message, err := withdrawalMessage(receipt)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	logIndex := -1
	for i, l := range receipt.L2ToL1Logs {
		if l.Sender == common.L1MessengerAddress {
			logIndex = i
			break
		}
	}
	if logIndex < 0 {
		return nil, tracerr.Wrap(fmt.Errorf("%w: no L2 to L1 log in %v",
			common.ErrWithdrawRejected, l2Hash.Hex()))
	}
	proof, err := w.l2.L2ToL1LogProof(ctx, l2Hash, logIndex)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	if proof == nil {
		return nil, notYetFinalized(l2Hash, "has no proof yet")
	}
	params := &withdrawalParams{
		batch:    receipt.L1BatchNumber,
		index:    new(big.Int).SetUint64(proof.ID),
		txNumber: uint16(receipt.L1BatchTxIndex.Uint64()),
		message:  message,
		proof:    make([][32]byte, len(proof.Proof)),
	}
	for i := range proof.Proof {
		params.proof[i] = proof.Proof[i]
	}
	return params, nil
}

// withdrawalMessage returns the message the withdrawal sent to L1
func withdrawalMessage(receipt *common.Receipt) ([]byte, error) {
	event := zksync.L1Messenger.Events["L1MessageSent"]
	token := ethCommon.BytesToHash(common.L2EthTokenAddress.Bytes())
	for _, l := range receipt.Logs {
		if l.Address != common.L1MessengerAddress || len(l.Topics) < 2 ||
			l.Topics[0] != event.ID || !bytes.Equal(l.Topics[1].Bytes(), token.Bytes()) {
			continue
		}
		values, err := event.Inputs.NonIndexed().Unpack(l.Data)
		if err != nil {
			return nil, tracerr.Wrap(err)
		}
		return values[0].([]byte), nil
	}
	return nil, tracerr.Wrap(fmt.Errorf("%w: no withdrawal message in %v",
		common.ErrWithdrawRejected, receipt.TxHash.Hex()))
}

// FinalizeWithdraw submits the L1 transaction that releases the ether of a
// withdrawal.  It fails with common.ErrNotYetFinalized, without submitting
// anything, while the L2 block of the withdrawal isn't finalized.  A
// withdrawal that was already finalized is rejected by the main contract.
func (w *Wallet) FinalizeWithdraw(ctx context.Context, l2Hash ethCommon.Hash,
	overrides *Overrides) (*PendingL1Tx, error) {
	const operation = "finalize_withdraw"
	params, err := w.finalizedWithdrawal(ctx, l2Hash)
	if err != nil {
		return nil, w.rejected(chainL1, operation, err)
	}
	mainContract, err := w.l2.MainContract(ctx)
	if err != nil {
		return nil, w.rejected(chainL1, operation, err)
	}
	data, err := zksync.MainContract.Pack("finalizeEthWithdrawal", params.batch, params.index,
		params.txNumber, params.message, params.proof)
	if err != nil {
		return nil, w.rejected(chainL1, operation, err)
	}
	txReq := &resolver.TxRequest{To: &mainContract, Data: data}
	overrides.applyRequest(txReq)
	hash, err := w.sendRequest(ctx, chainL1, operation, txReq, common.ErrWithdrawRejected)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return w.newPendingL1Tx(hash, operation, common.ErrWithdrawRejected), nil
}

// WithdrawalStatus returns the state of the withdrawal started in l2Hash.
// The submission of the finalization isn't visible from the chains: a
// withdrawal goes from WithdrawalL2Finalized to WithdrawalL1Included.
func (w *Wallet) WithdrawalStatus(ctx context.Context, l2Hash ethCommon.Hash) (common.WithdrawalState, error) {
	receipt, err := w.l2.TransactionReceipt(ctx, l2Hash)
	if err != nil {
		return common.WithdrawalSubmitted, tracerr.Wrap(err)
	}
	if receipt == nil {
		return common.WithdrawalSubmitted, nil
	}
	params, err := w.finalizedWithdrawal(ctx, l2Hash)
	if errors.Is(err, common.ErrNotYetFinalized) {
		return common.WithdrawalL2Included, nil
	} else if err != nil {
		return common.WithdrawalL2Included, tracerr.Wrap(err)
	}
	mainContract, err := w.l2.MainContract(ctx)
	if err != nil {
		return common.WithdrawalL2Finalized, tracerr.Wrap(err)
	}
	values, err := w.call(ctx, w.l1, mainContract, zksync.MainContract.Methods["isEthWithdrawalFinalized"],
		params.batch, params.index)
	if err != nil {
		return common.WithdrawalL2Finalized, tracerr.Wrap(err)
	}
	if values[0].(bool) {
		return common.WithdrawalL1Included, nil
	}
	return common.WithdrawalL2Finalized, nil
}
