package test

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/hermeznetwork/zkwallet/common"
	"github.com/hermeznetwork/zkwallet/eip712"
	"github.com/hermeznetwork/zkwallet/eth"
	"github.com/hermeznetwork/zkwallet/eth/contracts/zksync"
	"github.com/hermeznetwork/zkwallet/signer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "7e5bfb82febc4c2c8529167104271ceec190eafdca277314912eaabdb67c6e5f"

var (
	_ eth.L1Interface = (*L1Client)(nil)
	_ eth.L2Interface = (*L2Client)(nil)
)

func newTestClients(t *testing.T) (*signer.PrivateKeySigner, *L1Client, *L2Client) {
	s, err := signer.NewPrivateKeySignerFromHex(testKey)
	require.NoError(t, err)
	l1, l2 := NewClients(NewClientSetupExample(s.Address()))
	return s, l1, l2
}

func sendStandard(t *testing.T, c *chain, send func(context.Context, []byte) (ethCommon.Hash, error),
	s signer.Signer, nonce uint64, to ethCommon.Address, value *big.Int, data []byte) (ethCommon.Hash, error) {
	ctx := context.Background()
	fees, err := c.SuggestFees(ctx)
	require.NoError(t, err)
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: fees.MaxPriorityFeePerGas,
		GasFeeCap: fees.MaxFeePerGas,
		Gas:       1000000,
		To:        &to,
		Value:     value,
		Data:      data,
	})
	signed, err := signer.SignTx(ctx, s, tx, c.chainID)
	require.NoError(t, err)
	raw, err := signed.MarshalBinary()
	require.NoError(t, err)
	return send(ctx, raw)
}

func TestStandardTransfer(t *testing.T) {
	ctx := context.Background()
	s, l1, _ := newTestClients(t)
	to := ethCommon.HexToAddress("0x00000000000000000000000000000000000000aa")
	before, err := l1.BalanceAt(ctx, s.Address(), nil)
	require.NoError(t, err)

	hash, err := sendStandard(t, l1.chain, l1.SendRawTransaction, s, 0, to, big.NewInt(1000), nil)
	require.NoError(t, err)
	receipt, err := l1.TransactionReceipt(ctx, hash)
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.True(t, receipt.Succeeded())
	assert.Equal(t, s.Address(), receipt.From)
	assert.Equal(t, uint64(1), receipt.BlockNumber)

	balance, err := l1.BalanceAt(ctx, to, nil)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1000), balance)
	after, err := l1.BalanceAt(ctx, s.Address(), nil)
	require.NoError(t, err)
	spent := new(big.Int).Add(big.NewInt(1000), receipt.Fee())
	assert.Equal(t, new(big.Int).Sub(before, spent), after)
	// The state of past blocks is kept
	past, err := l1.BalanceAt(ctx, s.Address(), big.NewInt(0))
	require.NoError(t, err)
	assert.Equal(t, before, past)

	// Replayed nonce
	_, err = sendStandard(t, l1.chain, l1.SendRawTransaction, s, 0, to, big.NewInt(1000), nil)
	assert.ErrorIs(t, err, common.ErrSubmissionRejected)
	// Not enough funds
	_, err = sendStandard(t, l1.chain, l1.SendRawTransaction, s, 1, to, after, nil)
	assert.ErrorIs(t, err, common.ErrInsufficientFunds)
}

func TestHideReceipts(t *testing.T) {
	ctx := context.Background()
	s, l1, _ := newTestClients(t)
	l1.CtlHideReceipts(true)
	hash, err := sendStandard(t, l1.chain, l1.SendRawTransaction, s, 0, s.Address(), big.NewInt(1), nil)
	require.NoError(t, err)
	receipt, err := l1.TransactionReceipt(ctx, hash)
	require.NoError(t, err)
	assert.Nil(t, receipt)
	l1.CtlHideReceipts(false)
	receipt, err = l1.TransactionReceipt(ctx, hash)
	require.NoError(t, err)
	assert.NotNil(t, receipt)
}

func testEnvelope(t *testing.T, c *L2Client, from ethCommon.Address, nonce int64) *eip712.Transaction {
	fees, err := c.SuggestFees(context.Background())
	require.NoError(t, err)
	to := common.L2EthTokenAddress
	return &eip712.Transaction{
		To:                   &to,
		From:                 from,
		Nonce:                big.NewInt(nonce),
		GasLimit:             big.NewInt(1000000),
		MaxFeePerGas:         fees.MaxFeePerGas,
		MaxPriorityFeePerGas: fees.MaxPriorityFeePerGas,
		Value:                big.NewInt(0),
		Data:                 []byte{},
		ChainID:              c.chainID,
		Meta:                 &eip712.Meta{GasPerPubdata: big.NewInt(common.DefaultGasPerPubdataLimit)},
	}
}

func submitEnvelope(t *testing.T, c *L2Client, s signer.Signer, tx *eip712.Transaction) (ethCommon.Hash, error) {
	ctx := context.Background()
	stx, err := tx.Sign(ctx, s)
	require.NoError(t, err)
	raw, err := stx.Bytes()
	require.NoError(t, err)
	hash, err := c.SendRawTransaction(ctx, raw)
	if err == nil {
		assert.Equal(t, stx.Hash(), hash)
	}
	return hash, err
}

func TestDepositAndWithdraw(t *testing.T) {
	ctx := context.Background()
	s, l1, l2 := newTestClients(t)
	receiver := ethCommon.HexToAddress("0x00000000000000000000000000000000000000bb")
	amount := big.NewInt(7000000000)

	// Deposit
	fees, err := l1.SuggestFees(ctx)
	require.NoError(t, err)
	l2GasLimit := big.NewInt(common.RecommendedDepositL2GasLimit)
	costData, err := zksync.MainContract.Pack("l2TransactionBaseCost", fees.MaxFeePerGas,
		l2GasLimit, big.NewInt(common.DepositGasPerPubdataLimit))
	require.NoError(t, err)
	main := l1.MainContractAddress()
	res, err := l1.CallContract(ctx, ethereum.CallMsg{To: &main, Data: costData}, nil)
	require.NoError(t, err)
	cost, err := zksync.MainContract.Unpack("l2TransactionBaseCost", res)
	require.NoError(t, err)
	data, err := zksync.MainContract.Pack("requestL2Transaction", receiver, amount, []byte{},
		l2GasLimit, big.NewInt(common.DepositGasPerPubdataLimit), [][]byte{}, s.Address())
	require.NoError(t, err)
	// The value doesn't cover the base cost
	hash, err := sendStandard(t, l1.chain, l1.SendRawTransaction, s, 0, main, amount, data)
	require.NoError(t, err)
	receipt, err := l1.TransactionReceipt(ctx, hash)
	require.NoError(t, err)
	assert.False(t, receipt.Succeeded())

	value := new(big.Int).Add(amount, cost[0].(*big.Int))
	hash, err = sendStandard(t, l1.chain, l1.SendRawTransaction, s, 1, main, value, data)
	require.NoError(t, err)
	receipt, err = l1.TransactionReceipt(ctx, hash)
	require.NoError(t, err)
	require.True(t, receipt.Succeeded())
	require.Len(t, receipt.Logs, 1)
	values, err := zksync.MainContract.Unpack("NewPriorityRequest", receipt.Logs[0].Data)
	require.NoError(t, err)
	l2Hash := ethCommon.Hash(values[1].([32]byte))
	l2Receipt, err := l2.TransactionReceipt(ctx, l2Hash)
	require.NoError(t, err)
	require.NotNil(t, l2Receipt)
	balance, err := l2.BalanceAt(ctx, receiver, nil)
	require.NoError(t, err)
	assert.Equal(t, amount, balance)

	// Withdraw
	tx := testEnvelope(t, l2, s.Address(), 0)
	tx.Value = amount
	tx.Data, err = zksync.L2EthToken.Pack("withdraw", receiver)
	require.NoError(t, err)
	hash, err = submitEnvelope(t, l2, s, tx)
	require.NoError(t, err)
	receipt, err = l2.TransactionReceipt(ctx, hash)
	require.NoError(t, err)
	require.True(t, receipt.Succeeded())
	require.Len(t, receipt.L2ToL1Logs, 1)
	assert.Equal(t, common.L1MessengerAddress, receipt.L2ToL1Logs[0].Sender)
	require.NotNil(t, receipt.L1BatchNumber)
	batch := receipt.L1BatchNumber.Uint64()

	finalized, err := l2.FinalizedBlockNumber(ctx)
	require.NoError(t, err)
	assert.Less(t, finalized, receipt.BlockNumber)
	l2.CtlFinalize()
	finalized, err = l2.FinalizedBlockNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, receipt.BlockNumber, finalized)

	proof, err := l2.L2ToL1LogProof(ctx, hash, 0)
	require.NoError(t, err)
	require.NotNil(t, proof)
	missing, err := l2.L2ToL1LogProof(ctx, hash, 1)
	require.NoError(t, err)
	assert.Nil(t, missing)

	sent := zksync.L1Messenger.Events["L1MessageSent"]
	var message []byte
	for _, l := range receipt.Logs {
		if l.Address == common.L1MessengerAddress && l.Topics[0] == sent.ID {
			values, err := sent.Inputs.NonIndexed().Unpack(l.Data)
			require.NoError(t, err)
			message = values[0].([]byte)
		}
	}
	require.NotNil(t, message)
	proofArg := make([][32]byte, len(proof.Proof))
	for i := range proof.Proof {
		proofArg[i] = proof.Proof[i]
	}
	data, err = zksync.MainContract.Pack("finalizeEthWithdrawal", receipt.L1BatchNumber,
		new(big.Int).SetUint64(proof.ID), uint16(receipt.L1BatchTxIndex.Uint64()), message, proofArg)
	require.NoError(t, err)
	hash, err = sendStandard(t, l1.chain, l1.SendRawTransaction, s, 2, main, big.NewInt(0), data)
	require.NoError(t, err)
	receipt, err = l1.TransactionReceipt(ctx, hash)
	require.NoError(t, err)
	assert.True(t, receipt.Succeeded())
	balance, err = l1.BalanceAt(ctx, receiver, nil)
	require.NoError(t, err)
	assert.Equal(t, amount, balance)
	assert.True(t, l1.CtlIsWithdrawalFinalized(batch, proof.ID))

	// Finalizing twice reverts at estimation
	_, err = l1.EstimateGas(ctx, ethereum.CallMsg{From: s.Address(), To: &main, Data: data})
	assert.ErrorIs(t, err, common.ErrEstimationFailed)
	assert.Contains(t, err.Error(), "Withdrawal is already finalized")
}

func TestEnvelopePaymaster(t *testing.T) {
	ctx := context.Background()
	s, _, l2 := newTestClients(t)
	paymaster := ethCommon.HexToAddress("0x00000000000000000000000000000000000000cc")
	l2.CtlSetBalance(paymaster, big.NewInt(1000000000000000000))
	before, err := l2.BalanceAt(ctx, s.Address(), nil)
	require.NoError(t, err)

	tx := testEnvelope(t, l2, s.Address(), 0)
	to := ethCommon.HexToAddress("0x00000000000000000000000000000000000000dd")
	tx.To = &to
	tx.Value = big.NewInt(5)
	input, err := common.GeneralPaymasterInput([]byte{})
	require.NoError(t, err)
	tx.Meta.PaymasterParams = &common.PaymasterParams{Paymaster: paymaster, PaymasterInput: input}
	hash, err := submitEnvelope(t, l2, s, tx)
	require.NoError(t, err)
	receipt, err := l2.TransactionReceipt(ctx, hash)
	require.NoError(t, err)
	assert.True(t, receipt.Succeeded())

	after, err := l2.BalanceAt(ctx, s.Address(), nil)
	require.NoError(t, err)
	assert.Equal(t, new(big.Int).Sub(before, big.NewInt(5)), after)
	paid, err := l2.BalanceAt(ctx, paymaster, nil)
	require.NoError(t, err)
	assert.Equal(t, new(big.Int).Sub(big.NewInt(1000000000000000000), receipt.Fee()), paid)
}

func TestEnvelopeRejected(t *testing.T) {
	s, _, l2 := newTestClients(t)
	other, err := signer.NewPrivateKeySignerFromHex(
		"0b2ed5e6b1a8a2b0b0c7ed6a3d4b4ff9b8dd3f0e8d2f30f30f1dff2a7c8b6a21")
	require.NoError(t, err)

	tx := testEnvelope(t, l2, s.Address(), 1)
	_, err = submitEnvelope(t, l2, s, tx)
	assert.ErrorIs(t, err, common.ErrSubmissionRejected)

	tx = testEnvelope(t, l2, s.Address(), 0)
	tx.ChainID = big.NewInt(1)
	_, err = submitEnvelope(t, l2, s, tx)
	assert.ErrorIs(t, err, common.ErrSubmissionRejected)

	// Nothing to pay the fees with
	tx = testEnvelope(t, l2, other.Address(), 0)
	_, err = submitEnvelope(t, l2, other, tx)
	assert.ErrorIs(t, err, common.ErrInsufficientFunds)
	assert.Equal(t, uint64(0), l2.BlockNum())
}
