package common

import (
	"math/big"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Receipt status values
const (
	ReceiptStatusFailed     = types.ReceiptStatusFailed
	ReceiptStatusSuccessful = types.ReceiptStatusSuccessful
)

// L2ToL1Log is a log emitted by the L2 that is committed to L1 with its batch
type L2ToL1Log struct {
	BlockNumber      uint64
	L1BatchNumber    *big.Int
	TransactionIndex uint64
	ShardID          uint64
	IsService        bool
	Sender           ethCommon.Address
	Key              ethCommon.Hash
	Value            ethCommon.Hash
	TxHash           ethCommon.Hash
	LogIndex         uint64
}

// Receipt is the result of an included transaction, on either chain. The L1
// batch fields are only set by the L2.
type Receipt struct {
	Status            uint64
	TxHash            ethCommon.Hash
	From              ethCommon.Address
	To                *ethCommon.Address
	ContractAddress   *ethCommon.Address
	GasUsed           uint64
	EffectiveGasPrice *big.Int
	BlockNumber       uint64
	BlockHash         ethCommon.Hash
	Logs              []*types.Log

	L1BatchNumber  *big.Int
	L1BatchTxIndex *big.Int
	L2ToL1Logs     []L2ToL1Log
}

// Succeeded returns true if the transaction was executed successfully
func (r *Receipt) Succeeded() bool {
	return r.Status == ReceiptStatusSuccessful
}

// Fee returns the amount paid for gas: gasUsed * effectiveGasPrice
func (r *Receipt) Fee() *big.Int {
	if r.EffectiveGasPrice == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(r.GasUsed), r.EffectiveGasPrice)
}

// L2ToL1LogProof is the merkle proof of an L2 to L1 log inside its L1 batch
type L2ToL1LogProof struct {
	Proof []ethCommon.Hash
	ID    uint64
	Root  ethCommon.Hash
}

// FeeFields are the EIP-1559 fee parameters of a transaction
type FeeFields struct {
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}
