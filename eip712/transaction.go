/*
Package eip712 builds the L2 custom transaction envelope (type 0x71): its
EIP-712 typed data, the signing hash and the serialized form that is
submitted once signed.

An envelope with unset (nil) fields is a request. It must be completed, for
example with the resolver package, before it can be hashed or serialized.
*/
package eip712

import (
	"fmt"
	"math/big"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/hermeznetwork/tracerr"
	"github.com/hermeznetwork/zkwallet/common"
)

// Meta holds the fields specific to the L2 envelope
type Meta struct {
	// GasPerPubdata is the maximum gas the sender pays per byte of
	// published data
	GasPerPubdata *big.Int
	// FactoryDeps are the bytecodes required by a contract creation, in
	// order
	FactoryDeps [][]byte
	// CustomSignature replaces the ECDSA signature for non-EOA accounts
	CustomSignature []byte
	// PaymasterParams optionally sponsor the fees
	PaymasterParams *common.PaymasterParams
}

// Copy returns a deep copy of the meta
func (m *Meta) Copy() *Meta {
	if m == nil {
		return nil
	}
	cpy := &Meta{
		CustomSignature: ethCommon.CopyBytes(m.CustomSignature),
		PaymasterParams: m.PaymasterParams.Copy(),
	}
	if m.GasPerPubdata != nil {
		cpy.GasPerPubdata = new(big.Int).Set(m.GasPerPubdata)
	}
	if m.FactoryDeps != nil {
		cpy.FactoryDeps = make([][]byte, len(m.FactoryDeps))
		for i, dep := range m.FactoryDeps {
			cpy.FactoryDeps[i] = ethCommon.CopyBytes(dep)
		}
	}
	return cpy
}

// Transaction is the L2 custom transaction envelope
type Transaction struct {
	To                   *ethCommon.Address
	From                 ethCommon.Address
	Nonce                *big.Int
	GasLimit             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	Value                *big.Int
	Data                 []byte
	ChainID              *big.Int
	Meta                 *Meta
}

// GasPerPubdata returns the gas per pubdata limit, or nil if unset
func (tx *Transaction) GasPerPubdata() *big.Int {
	if tx.Meta == nil {
		return nil
	}
	return tx.Meta.GasPerPubdata
}

// PaymasterParams returns the paymaster params, or nil if unset
func (tx *Transaction) PaymasterParams() *common.PaymasterParams {
	if tx.Meta == nil {
		return nil
	}
	return tx.Meta.PaymasterParams
}

// FactoryDeps returns the factory dependencies
func (tx *Transaction) FactoryDeps() [][]byte {
	if tx.Meta == nil {
		return nil
	}
	return tx.Meta.FactoryDeps
}

// SetGasPerPubdata sets the gas per pubdata limit, creating the meta if needed
func (tx *Transaction) SetGasPerPubdata(v *big.Int) {
	if tx.Meta == nil {
		tx.Meta = &Meta{}
	}
	tx.Meta.GasPerPubdata = v
}

// Copy returns a deep copy of the transaction
func (tx *Transaction) Copy() *Transaction {
	cpy := &Transaction{
		From:                 tx.From,
		Nonce:                copyBig(tx.Nonce),
		GasLimit:             copyBig(tx.GasLimit),
		MaxFeePerGas:         copyBig(tx.MaxFeePerGas),
		MaxPriorityFeePerGas: copyBig(tx.MaxPriorityFeePerGas),
		Value:                copyBig(tx.Value),
		Data:                 ethCommon.CopyBytes(tx.Data),
		ChainID:              copyBig(tx.ChainID),
		Meta:                 tx.Meta.Copy(),
	}
	if tx.To != nil {
		to := *tx.To
		cpy.To = &to
	}
	return cpy
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func malformed(format string, args ...interface{}) error {
	return tracerr.Wrap(fmt.Errorf("%w: %s", common.ErrMalformedEnvelope, fmt.Sprintf(format, args...)))
}

// ValidateRequest checks what can be checked on an incomplete transaction:
// the paymaster params and the factory dependencies.
func (tx *Transaction) ValidateRequest() error {
	if err := tx.PaymasterParams().Validate(); err != nil {
		return tracerr.Wrap(err)
	}
	for i, dep := range tx.FactoryDeps() {
		if _, err := HashBytecode(dep); err != nil {
			return tracerr.Wrap(fmt.Errorf("factory dep %d: %w", i, err))
		}
	}
	for name, v := range map[string]*big.Int{
		"nonce": tx.Nonce, "gasLimit": tx.GasLimit, "maxFeePerGas": tx.MaxFeePerGas,
		"maxPriorityFeePerGas": tx.MaxPriorityFeePerGas, "value": tx.Value,
		"chainId": tx.ChainID, "gasPerPubdata": tx.GasPerPubdata(),
	} {
		if v != nil && v.Sign() < 0 {
			return malformed("negative %s", name)
		}
	}
	return nil
}

// Validate checks that every field required for hashing and submission is
// set.
func (tx *Transaction) Validate() error {
	if err := tx.ValidateRequest(); err != nil {
		return tracerr.Wrap(err)
	}
	switch {
	case tx.To == nil:
		return malformed("missing to")
	case tx.From == (ethCommon.Address{}):
		return malformed("missing from")
	case tx.Nonce == nil:
		return malformed("missing nonce")
	case tx.GasLimit == nil:
		return malformed("missing gasLimit")
	case tx.MaxFeePerGas == nil:
		return malformed("missing maxFeePerGas")
	case tx.MaxPriorityFeePerGas == nil:
		return malformed("missing maxPriorityFeePerGas")
	case tx.Value == nil:
		return malformed("missing value")
	case tx.ChainID == nil || tx.ChainID.Sign() == 0:
		return malformed("missing chainId")
	case tx.GasPerPubdata() == nil:
		return malformed("missing gasPerPubdata")
	}
	if tx.MaxPriorityFeePerGas.Cmp(tx.MaxFeePerGas) > 0 {
		return malformed("maxPriorityFeePerGas %v above maxFeePerGas %v",
			tx.MaxPriorityFeePerGas, tx.MaxFeePerGas)
	}
	return nil
}
