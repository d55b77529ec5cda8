package eth

import (
	"context"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/hermeznetwork/zkwallet/common"
	"github.com/hermeznetwork/zkwallet/eip712"
)

// L1Interface is the settlement chain access used by the wallet
type L1Interface interface {
	EthereumInterface
}

// L2Interface is the rollup chain access used by the wallet
type L2Interface interface {
	EthereumInterface
	EstimateEnvelopeGas(ctx context.Context, tx *eip712.Transaction) (uint64, error)
	MainContract(ctx context.Context) (ethCommon.Address, error)
	L2ToL1LogProof(ctx context.Context, txHash ethCommon.Hash, index int) (*common.L2ToL1LogProof, error)
}

var (
	_ L1Interface = (*EthereumClient)(nil)
	_ L2Interface = (*ZKSyncClient)(nil)
)
