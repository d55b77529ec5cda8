package wallet

import (
	"math/big"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/hermeznetwork/zkwallet/common"
	"github.com/hermeznetwork/zkwallet/deployer"
	"github.com/hermeznetwork/zkwallet/eip712"
	"github.com/hermeznetwork/zkwallet/resolver"
)

// Overrides are the transaction fields the caller may fix instead of
// letting them be resolved from the chain.  nil fields are resolved.
type Overrides struct {
	Nonce    *uint64
	GasLimit *uint64
	// GasPrice is a legacy single price, used for both fee fields when
	// neither is set
	GasPrice             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	// GasPerPubdata only applies to L2 envelopes
	GasPerPubdata *big.Int
}

func (o *Overrides) applyRequest(req *resolver.TxRequest) {
	if o == nil {
		return
	}
	req.Nonce = o.Nonce
	req.GasLimit = o.GasLimit
	req.GasPrice = o.GasPrice
	req.MaxFeePerGas = o.MaxFeePerGas
	req.MaxPriorityFeePerGas = o.MaxPriorityFeePerGas
}

func (o *Overrides) applyEnvelope(tx *eip712.Transaction) {
	if o == nil {
		return
	}
	if o.Nonce != nil {
		tx.Nonce = new(big.Int).SetUint64(*o.Nonce)
	}
	if o.GasLimit != nil {
		tx.GasLimit = new(big.Int).SetUint64(*o.GasLimit)
	}
	tx.MaxFeePerGas = o.MaxFeePerGas
	tx.MaxPriorityFeePerGas = o.MaxPriorityFeePerGas
	if o.GasPrice != nil && o.MaxFeePerGas == nil && o.MaxPriorityFeePerGas == nil {
		tx.MaxFeePerGas = o.GasPrice
		tx.MaxPriorityFeePerGas = o.GasPrice
	}
	if o.GasPerPubdata != nil {
		tx.SetGasPerPubdata(o.GasPerPubdata)
	}
}

// TransferRequest sends ether on the L2
type TransferRequest struct {
	to        ethCommon.Address
	amount    *big.Int
	data      []byte
	paymaster *common.PaymasterParams
	overrides *Overrides
}

// NewTransferRequest creates a TransferRequest of amount to to
func NewTransferRequest(to ethCommon.Address, amount *big.Int) *TransferRequest {
	return &TransferRequest{to: to, amount: amount}
}

// Data sets the call data sent along with the ether
func (r *TransferRequest) Data(data []byte) *TransferRequest {
	r.data = data
	return r
}

// Paymaster sets the paymaster that pays the fees
func (r *TransferRequest) Paymaster(params *common.PaymasterParams) *TransferRequest {
	r.paymaster = params
	return r
}

// Overrides fixes transaction fields
func (r *TransferRequest) Overrides(o *Overrides) *TransferRequest {
	r.overrides = o
	return r
}

// DepositRequest moves ether from the L1 to the L2
type DepositRequest struct {
	to              *ethCommon.Address
	amount          *big.Int
	l2GasLimit      *big.Int
	gasPerPubdata   *big.Int
	refundRecipient *ethCommon.Address
	overrides       *Overrides
}

// NewDepositRequest creates a DepositRequest of amount to the wallet L2
// address
func NewDepositRequest(amount *big.Int) *DepositRequest {
	return &DepositRequest{amount: amount}
}

// To sets the L2 receiver
func (r *DepositRequest) To(to ethCommon.Address) *DepositRequest {
	r.to = &to
	return r
}

// L2GasLimit sets the gas limit of the L2 leg
func (r *DepositRequest) L2GasLimit(gas *big.Int) *DepositRequest {
	r.l2GasLimit = gas
	return r
}

// GasPerPubdata sets the gas per pubdata byte of the L2 leg
func (r *DepositRequest) GasPerPubdata(v *big.Int) *DepositRequest {
	r.gasPerPubdata = v
	return r
}

// RefundRecipient sets the L2 address that receives the unused L2 fee
func (r *DepositRequest) RefundRecipient(addr ethCommon.Address) *DepositRequest {
	r.refundRecipient = &addr
	return r
}

// Overrides fixes fields of the L1 transaction
func (r *DepositRequest) Overrides(o *Overrides) *DepositRequest {
	r.overrides = o
	return r
}

// WithdrawRequest starts moving ether from the L2 to the L1
type WithdrawRequest struct {
	to        *ethCommon.Address
	amount    *big.Int
	paymaster *common.PaymasterParams
	overrides *Overrides
}

// NewWithdrawRequest creates a WithdrawRequest of amount to the wallet L1
// address
func NewWithdrawRequest(amount *big.Int) *WithdrawRequest {
	return &WithdrawRequest{amount: amount}
}

// To sets the L1 receiver
func (r *WithdrawRequest) To(to ethCommon.Address) *WithdrawRequest {
	r.to = &to
	return r
}

// Paymaster sets the paymaster that pays the L2 fees
func (r *WithdrawRequest) Paymaster(params *common.PaymasterParams) *WithdrawRequest {
	r.paymaster = params
	return r
}

// Overrides fixes fields of the L2 transaction
func (r *WithdrawRequest) Overrides(o *Overrides) *WithdrawRequest {
	r.overrides = o
	return r
}

// DeployRequest creates a contract on the L2
type DeployRequest struct {
	contract  *deployer.CompiledContract
	args      []interface{}
	deps      [][]byte
	salt      *[32]byte
	paymaster *common.PaymasterParams
	overrides *Overrides
}

// NewDeployRequest creates a DeployRequest of contract with the constructor
// args
func NewDeployRequest(contract *deployer.CompiledContract, args ...interface{}) *DeployRequest {
	return &DeployRequest{contract: contract, args: args}
}

// Deps adds the bytecodes of the contracts that contract creates
func (r *DeployRequest) Deps(deps ...[]byte) *DeployRequest {
	r.deps = append(r.deps, deps...)
	return r
}

// Salt makes the deployment a create2 one
func (r *DeployRequest) Salt(salt [32]byte) *DeployRequest {
	r.salt = &salt
	return r
}

// Paymaster sets the paymaster that pays the fees
func (r *DeployRequest) Paymaster(params *common.PaymasterParams) *DeployRequest {
	r.paymaster = params
	return r
}

// Overrides fixes transaction fields
func (r *DeployRequest) Overrides(o *Overrides) *DeployRequest {
	r.overrides = o
	return r
}

func (r *DeployRequest) build() (*deployer.Deployment, error) {
	if r.salt != nil {
		return deployer.BuildDeploy2(r.contract, *r.salt, r.args, r.deps...)
	}
	return deployer.BuildDeploy(r.contract, r.args, r.deps...)
}

func withPaymaster(meta *eip712.Meta, params *common.PaymasterParams) *eip712.Meta {
	if meta == nil {
		meta = &eip712.Meta{}
	}
	if params != nil {
		meta.PaymasterParams = params.Copy()
	}
	return meta
}
