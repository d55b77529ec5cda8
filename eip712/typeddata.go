package eip712

import (
	"math/big"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/hermeznetwork/tracerr"
	"github.com/hermeznetwork/zkwallet/common"
)

const (
	// DomainName is the EIP-712 domain name of the L2
	DomainName = "zkSync"
	// DomainVersion is the EIP-712 domain version of the L2
	DomainVersion = "2"
	primaryType   = "Transaction"
)

var typedDataTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
	},
	primaryType: {
		{Name: "txType", Type: "uint256"},
		{Name: "from", Type: "uint256"},
		{Name: "to", Type: "uint256"},
		{Name: "gasLimit", Type: "uint256"},
		{Name: "gasPerPubdataByteLimit", Type: "uint256"},
		{Name: "maxFeePerGas", Type: "uint256"},
		{Name: "maxPriorityFeePerGas", Type: "uint256"},
		{Name: "paymaster", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "value", Type: "uint256"},
		{Name: "data", Type: "bytes"},
		{Name: "factoryDeps", Type: "bytes32[]"},
		{Name: "paymasterInput", Type: "bytes"},
	},
}

func addressToBig(addr ethCommon.Address) *big.Int {
	return new(big.Int).SetBytes(addr.Bytes())
}

// TypedData returns the EIP-712 typed data of the transaction.  The
// transaction must be complete.
func (tx *Transaction) TypedData() (*apitypes.TypedData, error) {
	if err := tx.Validate(); err != nil {
		return nil, tracerr.Wrap(err)
	}
	factoryDeps := make([]interface{}, len(tx.FactoryDeps()))
	for i, dep := range tx.FactoryDeps() {
		h, err := HashBytecode(dep)
		if err != nil {
			return nil, tracerr.Wrap(err)
		}
		factoryDeps[i] = h.Bytes()
	}
	paymaster := big.NewInt(0)
	paymasterInput := []byte{}
	if pp := tx.PaymasterParams(); !pp.IsEmpty() {
		paymaster = addressToBig(pp.Paymaster)
		paymasterInput = pp.PaymasterInput
	}
	data := tx.Data
	if data == nil {
		data = []byte{}
	}
	return &apitypes.TypedData{
		Types:       typedDataTypes,
		PrimaryType: primaryType,
		Domain: apitypes.TypedDataDomain{
			Name:    DomainName,
			Version: DomainVersion,
			ChainId: (*math.HexOrDecimal256)(new(big.Int).Set(tx.ChainID)),
		},
		Message: apitypes.TypedDataMessage{
			"txType":                 big.NewInt(common.TxTypeEIP712),
			"from":                   addressToBig(tx.From),
			"to":                     addressToBig(*tx.To),
			"gasLimit":               tx.GasLimit,
			"gasPerPubdataByteLimit": tx.GasPerPubdata(),
			"maxFeePerGas":           tx.MaxFeePerGas,
			"maxPriorityFeePerGas":   tx.MaxPriorityFeePerGas,
			"paymaster":              paymaster,
			"nonce":                  tx.Nonce,
			"value":                  tx.Value,
			"data":                   data,
			"factoryDeps":            factoryDeps,
			"paymasterInput":         paymasterInput,
		},
	}, nil
}

// SigningHash returns the EIP-712 digest that the sender signs
func (tx *Transaction) SigningHash() (ethCommon.Hash, error) {
	typedData, err := tx.TypedData()
	if err != nil {
		return ethCommon.Hash{}, tracerr.Wrap(err)
	}
	hash, _, err := apitypes.TypedDataAndHash(*typedData)
	if err != nil {
		return ethCommon.Hash{}, tracerr.Wrap(err)
	}
	return ethCommon.BytesToHash(hash), nil
}
