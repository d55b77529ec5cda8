package eth

import (
	"context"
	"strconv"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/hermeznetwork/tracerr"
	"github.com/hermeznetwork/zkwallet/common"
	"github.com/hermeznetwork/zkwallet/eip712"
)

// ZKSyncClient is the L2 client: the standard ethereum API plus the zks_
// namespace
type ZKSyncClient struct {
	EthereumClient
}

// NewZKSyncClient creates a ZKSyncClient
func NewZKSyncClient(rpcClient *rpc.Client, config *EthereumConfig) *ZKSyncClient {
	return &ZKSyncClient{EthereumClient: *NewEthereumClient(rpcClient, config, nil)}
}

// DialZKSync connects to the L2 node at url
func DialZKSync(ctx context.Context, url string, config *EthereumConfig,
	opts ...rpc.ClientOption) (*ZKSyncClient, error) {
	rpcClient, err := rpc.DialOptions(ctx, url, opts...)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return NewZKSyncClient(rpcClient, config), nil
}

// MainContract returns the address of the rollup main contract on L1
func (c *ZKSyncClient) MainContract(ctx context.Context) (ethCommon.Address, error) {
	var addr ethCommon.Address
	if err := c.rpc.CallContext(ctx, &addr, "zks_getMainContract"); err != nil {
		return ethCommon.Address{}, tracerr.Wrap(err)
	}
	return addr, nil
}

type rpcLogProof struct {
	Proof []ethCommon.Hash `json:"proof"`
	ID    uint64           `json:"id"`
	Root  ethCommon.Hash   `json:"root"`
}

// L2ToL1LogProof returns the proof of the L2 to L1 log at index among the
// L2 to L1 logs of the transaction.  It returns nil without error if the
// proof is not available yet.
func (c *ZKSyncClient) L2ToL1LogProof(ctx context.Context, txHash ethCommon.Hash,
	index int) (*common.L2ToL1LogProof, error) {
	var proof *rpcLogProof
	if err := c.rpc.CallContext(ctx, &proof, "zks_getL2ToL1LogProof", txHash, index); err != nil {
		return nil, tracerr.Wrap(err)
	}
	if proof == nil {
		return nil, nil
	}
	return &common.L2ToL1LogProof{Proof: proof.Proof, ID: proof.ID, Root: proof.Root}, nil
}

// byteArray is serialized as a JSON array of numbers, the way the node
// expects factory deps and paymaster input
type byteArray []byte

func (b byteArray) MarshalJSON() ([]byte, error) {
	if len(b) == 0 {
		return []byte("[]"), nil
	}
	out := make([]byte, 0, len(b)*4+2) //nolint:gomnd
	out = append(out, '[')
	for i, v := range b {
		if i > 0 {
			out = append(out, ',')
		}
		out = strconv.AppendInt(out, int64(v), 10) //nolint:gomnd
	}
	return append(out, ']'), nil
}

type rpcPaymasterParams struct {
	Paymaster      ethCommon.Address `json:"paymaster"`
	PaymasterInput byteArray         `json:"paymasterInput"`
}

type rpcEip712Meta struct {
	GasPerPubdata   *hexutil.Big        `json:"gasPerPubdata"`
	FactoryDeps     []byteArray         `json:"factoryDeps"`
	CustomSignature hexutil.Bytes       `json:"customSignature,omitempty"`
	PaymasterParams *rpcPaymasterParams `json:"paymasterParams,omitempty"`
}

type rpcEnvelopeCall struct {
	From                 ethCommon.Address  `json:"from"`
	To                   *ethCommon.Address `json:"to"`
	Gas                  *hexutil.Uint64    `json:"gas,omitempty"`
	MaxFeePerGas         *hexutil.Big       `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big       `json:"maxPriorityFeePerGas,omitempty"`
	Value                *hexutil.Big       `json:"value,omitempty"`
	Data                 hexutil.Bytes      `json:"data"`
	Type                 hexutil.Uint64     `json:"type"`
	Eip712Meta           *rpcEip712Meta     `json:"eip712Meta"`
}

func envelopeCall(tx *eip712.Transaction) *rpcEnvelopeCall {
	call := &rpcEnvelopeCall{
		From:                 tx.From,
		To:                   tx.To,
		MaxFeePerGas:         (*hexutil.Big)(tx.MaxFeePerGas),
		MaxPriorityFeePerGas: (*hexutil.Big)(tx.MaxPriorityFeePerGas),
		Value:                (*hexutil.Big)(tx.Value),
		Data:                 tx.Data,
		Type:                 common.TxTypeEIP712,
		Eip712Meta: &rpcEip712Meta{
			GasPerPubdata: (*hexutil.Big)(tx.GasPerPubdata()),
			FactoryDeps:   []byteArray{},
		},
	}
	if call.Data == nil {
		call.Data = hexutil.Bytes{}
	}
	if tx.GasLimit != nil {
		gas := hexutil.Uint64(tx.GasLimit.Uint64())
		call.Gas = &gas
	}
	for _, dep := range tx.FactoryDeps() {
		call.Eip712Meta.FactoryDeps = append(call.Eip712Meta.FactoryDeps, byteArray(dep))
	}
	if tx.Meta != nil {
		call.Eip712Meta.CustomSignature = tx.Meta.CustomSignature
	}
	if pp := tx.PaymasterParams(); !pp.IsEmpty() {
		call.Eip712Meta.PaymasterParams = &rpcPaymasterParams{
			Paymaster:      pp.Paymaster,
			PaymasterInput: pp.PaymasterInput,
		}
	}
	return call
}

// EstimateEnvelopeGas estimates the gas of an L2 envelope, including its
// factory deps and paymaster.  Failures are classified the same way as in
// EthereumClient.EstimateGas.
func (c *ZKSyncClient) EstimateEnvelopeGas(ctx context.Context, tx *eip712.Transaction) (uint64, error) {
	var gas hexutil.Uint64
	if err := c.rpc.CallContext(ctx, &gas, "eth_estimateGas", envelopeCall(tx)); err != nil {
		return 0, tracerr.Wrap(estimationError(err))
	}
	return uint64(gas), nil
}
