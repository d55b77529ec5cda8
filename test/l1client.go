package test

import (
	"bytes"
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hermeznetwork/tracerr"
	"github.com/hermeznetwork/zkwallet/eth/contracts/zksync"
)

// priorityTxExpiration is the expiration set on every priority request
const priorityTxExpiration = 1 << 32

// decodeStandardTx decodes a signed standard transaction of a chain
func decodeStandardTx(c *chain, raw []byte) (*txData, error) {
	var tx types.Transaction
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, rejected("invalid transaction: %v", err)
	}
	if tx.ChainId().Cmp(c.chainID) != 0 {
		return nil, rejected("invalid chain id %v", tx.ChainId())
	}
	from, err := types.Sender(types.LatestSignerForChainID(c.chainID), &tx)
	if err != nil {
		return nil, rejected("invalid sender: %v", err)
	}
	return &txData{
		hash:     tx.Hash(),
		from:     from,
		to:       tx.To(),
		nonce:    tx.Nonce(),
		gasLimit: tx.Gas(),
		maxFee:   tx.GasFeeCap(),
		tip:      tx.GasTipCap(),
		value:    tx.Value(),
		data:     tx.Data(),
	}, nil
}

func methodOf(contract abi.ABI, data []byte) (*abi.Method, []interface{}, error) {
	if len(data) < 4 { //nolint:gomnd
		return nil, nil, fmt.Errorf("missing method selector")
	}
	method, err := contract.MethodById(data[:4])
	if err != nil {
		return nil, nil, err
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, err
	}
	return method, args, nil
}

func withdrawalFinalizedKey(batch, index *big.Int) string {
	return fmt.Sprintf("withdrawal/%v/%v", batch, index)
}

// l2CanonicalTransaction is the transaction of a NewPriorityRequest event
type l2CanonicalTransaction struct {
	TxType                 *big.Int
	From                   *big.Int
	To                     *big.Int
	GasLimit               *big.Int
	GasPerPubdataByteLimit *big.Int
	MaxFeePerGas           *big.Int
	MaxPriorityFeePerGas   *big.Int
	Paymaster              *big.Int
	Nonce                  *big.Int
	Value                  *big.Int
	Reserved               [4]*big.Int
	Data                   []byte
	Signature              []byte
	FactoryDeps            []*big.Int
	PaymasterInput         []byte
	ReservedDynamic        []byte
}

// L1Client is a fake settlement chain with the main contract of the rollup
type L1Client struct {
	*chain
	mainContract ethCommon.Address
	l2           *L2Client
	bridge       *bridge
	priorityOps  uint64
}

// L1 implements the main contract
type l1Executor struct {
	c *L1Client
}

func (e *l1Executor) exec(st *State, ctx *execContext) (*execResult, error) {
	c := e.c
	tx := ctx.tx
	if tx.to == nil || *tx.to != c.mainContract || len(tx.data) == 0 {
		return &execResult{}, nil
	}
	method, args, err := methodOf(zksync.MainContract, tx.data)
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "requestL2Transaction":
		return c.requestL2Transaction(st, ctx, args)
	case "finalizeEthWithdrawal":
		return c.finalizeEthWithdrawal(st, args)
	default:
		return nil, fmt.Errorf("method %v is not payable", method.Name)
	}
}

func (e *l1Executor) call(st *State, msg ethereum.CallMsg) ([]byte, error) {
	c := e.c
	if msg.To == nil || *msg.To != c.mainContract {
		return []byte{}, nil
	}
	method, args, err := methodOf(zksync.MainContract, msg.Data)
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "l2TransactionBaseCost":
		return method.Outputs.Pack(baseCost(args[0].(*big.Int), args[1].(*big.Int)))
	case "isEthWithdrawalFinalized":
		key := withdrawalFinalizedKey(args[0].(*big.Int), args[1].(*big.Int))
		return method.Outputs.Pack(len(st.Storage[key]) > 0)
	default:
		return nil, fmt.Errorf("method %v is not a view", method.Name)
	}
}

func baseCost(gasPrice, l2GasLimit *big.Int) *big.Int {
	return new(big.Int).Mul(gasPrice, l2GasLimit)
}

func (c *L1Client) requestL2Transaction(st *State, ctx *execContext,
	args []interface{}) (*execResult, error) {
	tx := ctx.tx
	contractL2 := args[0].(ethCommon.Address)
	l2Value := args[1].(*big.Int)
	calldata := args[2].([]byte)
	l2GasLimit := args[3].(*big.Int)
	gasPerPubdata := args[4].(*big.Int)
	cost := baseCost(ctx.gasPrice, l2GasLimit)
	if required := new(big.Int).Add(l2Value, cost); tx.value.Cmp(required) < 0 {
		return nil, fmt.Errorf("msg.value (%v) is less than the required %v", tx.value, required)
	}
	l2Hash := crypto.Keccak256Hash(tx.hash.Bytes(), []byte("priority"))
	txID := new(big.Int).SetUint64(c.priorityOps)
	event := zksync.MainContract.Events["NewPriorityRequest"]
	data, err := event.Inputs.NonIndexed().Pack(txID, [32]byte(l2Hash), uint64(priorityTxExpiration),
		l2CanonicalTransaction{
			TxType:                 big.NewInt(0xff), //nolint:gomnd
			From:                   new(big.Int).SetBytes(tx.from.Bytes()),
			To:                     new(big.Int).SetBytes(contractL2.Bytes()),
			GasLimit:               l2GasLimit,
			GasPerPubdataByteLimit: gasPerPubdata,
			MaxFeePerGas:           ctx.gasPrice,
			MaxPriorityFeePerGas:   big.NewInt(0),
			Paymaster:              big.NewInt(0),
			Nonce:                  txID,
			Value:                  l2Value,
			Reserved:               [4]*big.Int{tx.value, big.NewInt(0), big.NewInt(0), big.NewInt(0)},
			Data:                   calldata,
			Signature:              []byte{},
			FactoryDeps:            []*big.Int{},
			PaymasterInput:         []byte{},
			ReservedDynamic:        []byte{},
		}, [][]byte{})
	if err != nil {
		return nil, err
	}
	from := tx.from
	value := new(big.Int).Set(l2Value)
	return &execResult{
		logs: []*types.Log{{
			Address: c.mainContract,
			Topics:  []ethCommon.Hash{event.ID},
			Data:    data,
		}},
		afterMine: func() {
			c.priorityOps++
			if c.l2 != nil {
				c.l2.applyPriorityOp(l2Hash, from, contractL2, value)
			}
		},
	}, nil
}

func (c *L1Client) finalizeEthWithdrawal(st *State, args []interface{}) (*execResult, error) {
	batch := args[0].(*big.Int)
	index := args[1].(*big.Int)
	txNumber := args[2].(uint16)
	message := args[3].([]byte)
	proof := args[4].([][32]byte)
	key := withdrawalFinalizedKey(batch, index)
	if len(st.Storage[key]) > 0 {
		return nil, fmt.Errorf("Withdrawal is already finalized")
	}
	if err := c.bridge.verify(batch.Uint64(), index.Uint64(), txNumber, message, proof); err != nil {
		return nil, err
	}
	selector := zksync.MainContract.Methods["finalizeEthWithdrawal"].ID
	if len(message) != 4+ethCommon.AddressLength+32 || !bytes.Equal(message[:4], selector) {
		return nil, fmt.Errorf("incorrectly formatted message")
	}
	receiver := ethCommon.BytesToAddress(message[4 : 4+ethCommon.AddressLength])
	amount := new(big.Int).SetBytes(message[4+ethCommon.AddressLength:])
	if err := st.transfer(c.mainContract, receiver, amount); err != nil {
		return nil, err
	}
	st.Storage[key] = []byte{1}
	return &execResult{}, nil
}

// SendRawTransaction validates and mines a signed transaction
func (c *L1Client) SendRawTransaction(ctx context.Context, raw []byte) (ethCommon.Hash, error) {
	tx, err := decodeStandardTx(c.chain, raw)
	if err != nil {
		return ethCommon.Hash{}, tracerr.Wrap(err)
	}
	return c.submit(tx)
}

// MainContractAddress returns the address of the main contract
func (c *L1Client) MainContractAddress() ethCommon.Address {
	return c.mainContract
}

// CtlIsWithdrawalFinalized returns whether the withdrawal of the L2 batch
// and message index has been finalized on L1
func (c *L1Client) CtlIsWithdrawalFinalized(batch, index uint64) bool {
	c.rw.RLock()
	defer c.rw.RUnlock()
	key := withdrawalFinalizedKey(new(big.Int).SetUint64(batch), new(big.Int).SetUint64(index))
	return len(c.currentState().Storage[key]) > 0
}
