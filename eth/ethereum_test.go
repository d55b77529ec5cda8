package eth

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/hermeznetwork/zkwallet/common"
	"github.com/hermeznetwork/zkwallet/eip712"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testTxHash   = ethCommon.HexToHash("0x01")
	testMainAddr = ethCommon.HexToAddress("0x00000000000000000000000000000000000000cc")
)

// revertError is an rpc error carrying the revert data of a failed call
type revertError struct {
	data string
}

func (e *revertError) Error() string          { return "execution reverted" }
func (e *revertError) ErrorCode() int         { return 3 } //nolint:gomnd
func (e *revertError) ErrorData() interface{} { return e.data }

type plainError struct {
	msg string
}

func (e *plainError) Error() string  { return e.msg }
func (e *plainError) ErrorCode() int { return -32000 } //nolint:gomnd

type ethService struct {
	sendErr     error
	estimateErr error
	lastCall    map[string]interface{}
	receiptNull bool
}

func (s *ethService) ChainId() hexutil.Big { //nolint:stylecheck
	return hexutil.Big(*big.NewInt(270))
}

func (s *ethService) SendRawTransaction(raw hexutil.Bytes) (ethCommon.Hash, error) {
	if s.sendErr != nil {
		return ethCommon.Hash{}, s.sendErr
	}
	return testTxHash, nil
}

func (s *ethService) EstimateGas(call map[string]interface{}, block *string) (hexutil.Uint64, error) {
	s.lastCall = call
	if s.estimateErr != nil {
		return 0, s.estimateErr
	}
	if call["data"] == "0xdead" || call["input"] == "0xdead" {
		// Error(string) "nope"
		return 0, &revertError{data: "0x08c379a0" +
			"0000000000000000000000000000000000000000000000000000000000000020" +
			"0000000000000000000000000000000000000000000000000000000000000004" +
			"6e6f706500000000000000000000000000000000000000000000000000000000"}
	}
	return 21000, nil
}

func (s *ethService) GetTransactionReceipt(hash ethCommon.Hash) (map[string]interface{}, error) {
	if s.receiptNull || hash != testTxHash {
		return nil, nil
	}
	return map[string]interface{}{
		"status":            "0x1",
		"transactionHash":   testTxHash,
		"from":              "0x00000000000000000000000000000000000000aa",
		"to":                "0x00000000000000000000000000000000000000bb",
		"contractAddress":   nil,
		"gasUsed":           "0x5208",
		"effectiveGasPrice": "0x2",
		"blockNumber":       "0x10",
		"blockHash":         ethCommon.HexToHash("0x02"),
		"logs":              []interface{}{},
		"l1BatchNumber":     "0x3",
		"l1BatchTxIndex":    "0x1",
		"l2ToL1Logs": []interface{}{
			map[string]interface{}{
				"blockNumber":      "0x10",
				"l1BatchNumber":    "0x3",
				"transactionIndex": "0x0",
				"shardId":          "0x0",
				"isService":        true,
				"sender":           common.L1MessengerAddress,
				"key":              ethCommon.HexToHash("0x04"),
				"value":            ethCommon.HexToHash("0x05"),
				"transactionHash":  testTxHash,
				"logIndex":         "0x0",
			},
		},
	}, nil
}

type zksService struct{}

func (s *zksService) GetMainContract() ethCommon.Address {
	return testMainAddr
}

func (s *zksService) GetL2ToL1LogProof(hash ethCommon.Hash, index int) (map[string]interface{}, error) {
	if hash != testTxHash {
		return nil, nil
	}
	return map[string]interface{}{
		"proof": []ethCommon.Hash{ethCommon.HexToHash("0x07")},
		"id":    index,
		"root":  ethCommon.HexToHash("0x08"),
	}, nil
}

func newTestClient(t *testing.T, service *ethService) *ZKSyncClient {
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", service))
	require.NoError(t, server.RegisterName("zks", &zksService{}))
	t.Cleanup(server.Stop)
	return NewZKSyncClient(rpc.DialInProc(server), nil)
}

func TestTransactionReceipt(t *testing.T) {
	service := &ethService{}
	c := newTestClient(t, service)
	ctx := context.Background()

	receipt, err := c.TransactionReceipt(ctx, testTxHash)
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.True(t, receipt.Succeeded())
	assert.Equal(t, ethCommon.HexToAddress("0xaa"), receipt.From)
	assert.Equal(t, ethCommon.HexToAddress("0xbb"), *receipt.To)
	assert.Nil(t, receipt.ContractAddress)
	assert.Equal(t, uint64(16), receipt.BlockNumber)
	assert.Equal(t, big.NewInt(42000), receipt.Fee())
	assert.Equal(t, big.NewInt(3), receipt.L1BatchNumber)
	assert.Equal(t, big.NewInt(1), receipt.L1BatchTxIndex)
	require.Equal(t, 1, len(receipt.L2ToL1Logs))
	assert.Equal(t, common.L1MessengerAddress, receipt.L2ToL1Logs[0].Sender)
	assert.True(t, receipt.L2ToL1Logs[0].IsService)

	receipt, err = c.TransactionReceipt(ctx, ethCommon.HexToHash("0x09"))
	require.NoError(t, err)
	assert.Nil(t, receipt)
}

func TestSendRawTransaction(t *testing.T) {
	service := &ethService{}
	c := newTestClient(t, service)
	ctx := context.Background()

	hash, err := c.SendRawTransaction(ctx, []byte{0x71})
	require.NoError(t, err)
	assert.Equal(t, testTxHash, hash)

	service.sendErr = &plainError{msg: "insufficient funds for gas * price + value"}
	_, err = c.SendRawTransaction(ctx, []byte{0x71})
	assert.True(t, errors.Is(err, common.ErrInsufficientFunds))

	service.sendErr = &plainError{msg: "nonce too low"}
	_, err = c.SendRawTransaction(ctx, []byte{0x71})
	assert.True(t, errors.Is(err, common.ErrSubmissionRejected))
	assert.Contains(t, err.Error(), "nonce too low")
}

func TestZKSyncNamespace(t *testing.T) {
	c := newTestClient(t, &ethService{})
	ctx := context.Background()

	chainID, err := c.ChainID(ctx)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(270), chainID)

	addr, err := c.MainContract(ctx)
	require.NoError(t, err)
	assert.Equal(t, testMainAddr, addr)

	proof, err := c.L2ToL1LogProof(ctx, testTxHash, 2)
	require.NoError(t, err)
	require.NotNil(t, proof)
	assert.Equal(t, uint64(2), proof.ID)
	assert.Equal(t, []ethCommon.Hash{ethCommon.HexToHash("0x07")}, proof.Proof)

	proof, err = c.L2ToL1LogProof(ctx, ethCommon.HexToHash("0x09"), 0)
	require.NoError(t, err)
	assert.Nil(t, proof)
}

func TestEstimateEnvelopeGas(t *testing.T) {
	service := &ethService{}
	c := newTestClient(t, service)
	ctx := context.Background()
	to := ethCommon.HexToAddress("0xbb")
	tx := &eip712.Transaction{
		To:    &to,
		From:  ethCommon.HexToAddress("0xaa"),
		Value: big.NewInt(1),
		Meta: &eip712.Meta{
			GasPerPubdata: big.NewInt(50000),
			FactoryDeps:   [][]byte{{0x01, 0x02}},
			PaymasterParams: &common.PaymasterParams{
				Paymaster:      ethCommon.HexToAddress("0xee"),
				PaymasterInput: []byte{0xff},
			},
		},
	}
	gas, err := c.EstimateEnvelopeGas(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, uint64(21000), gas)
	assert.Equal(t, "0x71", service.lastCall["type"])
	meta, ok := service.lastCall["eip712Meta"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "0xc350", meta["gasPerPubdata"])
	assert.Equal(t, []interface{}{[]interface{}{float64(1), float64(2)}}, meta["factoryDeps"])
	pp, ok := meta["paymasterParams"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, []interface{}{float64(255)}, pp["paymasterInput"])

	tx.Data = []byte{0xde, 0xad}
	_, err = c.EstimateEnvelopeGas(ctx, tx)
	require.True(t, errors.Is(err, common.ErrEstimationFailed))
	assert.True(t, errors.Is(err, common.ErrTransactionReverted))
	assert.Contains(t, err.Error(), "nope")
}

func TestEstimateGasErrors(t *testing.T) {
	service := &ethService{}
	c := newTestClient(t, service)
	ctx := context.Background()
	to := ethCommon.HexToAddress("0xbb")
	msg := ethereum.CallMsg{From: ethCommon.HexToAddress("0xaa"), To: &to, Value: big.NewInt(1)}

	gas, err := c.EstimateGas(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, uint64(21000), gas)

	service.estimateErr = &plainError{msg: "insufficient funds for gas * price + value: " +
		"address 0xaa have 1 want 2"}
	_, err = c.EstimateGas(ctx, msg)
	assert.True(t, errors.Is(err, common.ErrInsufficientFunds))
	assert.False(t, errors.Is(err, common.ErrEstimationFailed))

	service.estimateErr = &plainError{msg: "header not found"}
	_, err = c.EstimateGas(ctx, msg)
	assert.True(t, errors.Is(err, common.ErrEstimationFailed))
	assert.False(t, errors.Is(err, common.ErrTransactionReverted))

	service.estimateErr = nil
	msg.Data = []byte{0xde, 0xad}
	_, err = c.EstimateGas(ctx, msg)
	assert.True(t, errors.Is(err, common.ErrEstimationFailed))
	assert.True(t, errors.Is(err, common.ErrTransactionReverted))
	assert.Contains(t, err.Error(), "nope")
}

type receiptSequence struct {
	calls int
	after int
}

func (r *receiptSequence) TransactionReceipt(ctx context.Context,
	txHash ethCommon.Hash) (*common.Receipt, error) {
	r.calls++
	if r.calls <= r.after {
		return nil, nil
	}
	return &common.Receipt{TxHash: txHash, Status: common.ReceiptStatusSuccessful}, nil
}

func TestWaitReceipt(t *testing.T) {
	r := &receiptSequence{after: 2}
	receipt, err := WaitReceipt(context.Background(), r, testTxHash, time.Millisecond, time.Second)
	require.NoError(t, err)
	assert.Equal(t, testTxHash, receipt.TxHash)
	assert.Equal(t, 3, r.calls)

	r = &receiptSequence{after: 1 << 30}
	_, err = WaitReceipt(context.Background(), r, testTxHash, time.Millisecond, 20*time.Millisecond)
	assert.True(t, errors.Is(err, common.ErrTimeout))
}
