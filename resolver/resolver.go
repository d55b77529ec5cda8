/*
Package resolver completes partially populated transactions.  Every field the
caller leaves unset is filled from the chain, in this order: chain id, nonce,
fees, value, gas per pubdata and finally the gas limit, which is estimated on
the otherwise complete transaction.  Fields set by the caller are never
overridden, and a fully populated transaction is returned without any call
to the chain.
*/
package resolver

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/hermeznetwork/tracerr"
	"github.com/hermeznetwork/zkwallet/common"
	"github.com/hermeznetwork/zkwallet/eip712"
)

// ChainState is the read only chain access needed to complete a transaction
type ChainState interface {
	ChainID(ctx context.Context) (*big.Int, error)
	NonceAt(ctx context.Context, account ethCommon.Address, blockNumber *big.Int) (uint64, error)
	SuggestFees(ctx context.Context) (*common.FeeFields, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
}

// EnvelopeEstimator is implemented by chains that can estimate the gas of
// an L2 envelope
type EnvelopeEstimator interface {
	EstimateEnvelopeGas(ctx context.Context, tx *eip712.Transaction) (uint64, error)
}

// Resolver completes transactions for a single chain.  The chain id is
// queried at most once.
type Resolver struct {
	chain         ChainState
	gasPerPubdata *big.Int
	mutex         sync.Mutex
	chainID       *big.Int
}

// NewResolver creates a Resolver for chain.  gasPerPubdata is the default
// used for envelopes that don't set it; if nil,
// common.DefaultGasPerPubdataLimit is used.
func NewResolver(chain ChainState, gasPerPubdata *big.Int) *Resolver {
	if gasPerPubdata == nil {
		gasPerPubdata = big.NewInt(common.DefaultGasPerPubdataLimit)
	}
	return &Resolver{chain: chain, gasPerPubdata: gasPerPubdata}
}

// ChainID returns the cached chain id, querying it the first time
func (r *Resolver) ChainID(ctx context.Context) (*big.Int, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.chainID == nil {
		chainID, err := r.chain.ChainID(ctx)
		if err != nil {
			return nil, tracerr.Wrap(err)
		}
		r.chainID = chainID
	}
	return new(big.Int).Set(r.chainID), nil
}

// resolveChainID returns the chain id to use given an explicit one.  An
// explicit chain id is trusted without a query only while it isn't cached
// and the rest of the transaction is complete, so that fully populated
// transactions don't reach the chain.
func (r *Resolver) resolveChainID(ctx context.Context, explicit *big.Int, complete bool) (*big.Int,
	error) {
	r.mutex.Lock()
	cached := r.chainID
	r.mutex.Unlock()
	if explicit != nil && cached == nil && complete {
		return explicit, nil
	}
	chainID, err := r.ChainID(ctx)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	if explicit != nil && explicit.Cmp(chainID) != 0 {
		return nil, tracerr.Wrap(fmt.Errorf("%w: transaction chain id %v, chain reports %v",
			common.ErrChainIDMismatch, explicit, chainID))
	}
	return chainID, nil
}

// resolveFees fills the unset fee fields from the chain suggestion.  If only
// one is set, the other is kept consistent with it.
func (r *Resolver) resolveFees(ctx context.Context, maxFee, maxPriorityFee *big.Int) (*big.Int,
	*big.Int, error) {
	if maxFee != nil && maxPriorityFee != nil {
		return maxFee, maxPriorityFee, nil
	}
	fees, err := r.chain.SuggestFees(ctx)
	if err != nil {
		return nil, nil, tracerr.Wrap(err)
	}
	switch {
	case maxFee == nil && maxPriorityFee == nil:
		return fees.MaxFeePerGas, fees.MaxPriorityFeePerGas, nil
	case maxFee == nil:
		maxFee = fees.MaxFeePerGas
		if maxFee.Cmp(maxPriorityFee) < 0 {
			maxFee = maxPriorityFee
		}
		return maxFee, maxPriorityFee, nil
	default:
		maxPriorityFee = fees.MaxPriorityFeePerGas
		if maxPriorityFee.Cmp(maxFee) > 0 {
			maxPriorityFee = maxFee
		}
		return maxFee, maxPriorityFee, nil
	}
}

func estimationFailed(err error) error {
	if errors.Is(err, common.ErrEstimationFailed) || errors.Is(err, common.ErrInsufficientFunds) {
		return tracerr.Wrap(err)
	}
	return tracerr.Wrap(fmt.Errorf("%w: %v", common.ErrEstimationFailed, err))
}

// ResolveEnvelope returns a completed copy of an L2 envelope request
func (r *Resolver) ResolveEnvelope(ctx context.Context,
	req *eip712.Transaction) (*eip712.Transaction, error) {
	if err := req.ValidateRequest(); err != nil {
		return nil, tracerr.Wrap(err)
	}
	tx := req.Copy()
	if tx.To == nil {
		return nil, tracerr.Wrap(fmt.Errorf("%w: missing to", common.ErrMalformedEnvelope))
	}
	complete := tx.Nonce != nil && tx.MaxFeePerGas != nil && tx.MaxPriorityFeePerGas != nil &&
		tx.GasLimit != nil
	var err error
	if tx.ChainID, err = r.resolveChainID(ctx, tx.ChainID, complete); err != nil {
		return nil, tracerr.Wrap(err)
	}
	if tx.Nonce == nil {
		nonce, err := r.chain.NonceAt(ctx, tx.From, nil)
		if err != nil {
			return nil, tracerr.Wrap(err)
		}
		tx.Nonce = new(big.Int).SetUint64(nonce)
	}
	tx.MaxFeePerGas, tx.MaxPriorityFeePerGas, err = r.resolveFees(ctx,
		tx.MaxFeePerGas, tx.MaxPriorityFeePerGas)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	if tx.Value == nil {
		tx.Value = big.NewInt(0)
	}
	if tx.GasPerPubdata() == nil {
		tx.SetGasPerPubdata(new(big.Int).Set(r.gasPerPubdata))
	}
	if tx.GasLimit == nil {
		estimator, ok := r.chain.(EnvelopeEstimator)
		if !ok {
			return nil, tracerr.Wrap(fmt.Errorf("%w: chain can't estimate envelopes",
				common.ErrEstimationFailed))
		}
		gas, err := estimator.EstimateEnvelopeGas(ctx, tx)
		if err != nil {
			return nil, estimationFailed(err)
		}
		tx.GasLimit = new(big.Int).SetUint64(gas)
	}
	if err := tx.Validate(); err != nil {
		return nil, tracerr.Wrap(err)
	}
	return tx, nil
}

// TxRequest is a standard EIP-1559 transaction request.  nil fields are
// unset.  GasPrice is a legacy single price; when it's the only fee set it's
// used for both fee fields.
type TxRequest struct {
	From                 ethCommon.Address
	To                   *ethCommon.Address
	Nonce                *uint64
	GasLimit             *uint64
	GasPrice             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	Value                *big.Int
	Data                 []byte
	ChainID              *big.Int
}

// Copy returns a copy of the request
func (req *TxRequest) Copy() *TxRequest {
	cpy := *req
	cpy.Data = ethCommon.CopyBytes(req.Data)
	if req.To != nil {
		to := *req.To
		cpy.To = &to
	}
	if req.Nonce != nil {
		nonce := *req.Nonce
		cpy.Nonce = &nonce
	}
	if req.GasLimit != nil {
		gas := *req.GasLimit
		cpy.GasLimit = &gas
	}
	return &cpy
}

// CallMsg returns the request as a call message for estimations and calls
func (req *TxRequest) CallMsg() ethereum.CallMsg {
	msg := ethereum.CallMsg{
		From:      req.From,
		To:        req.To,
		GasFeeCap: req.MaxFeePerGas,
		GasTipCap: req.MaxPriorityFeePerGas,
		Value:     req.Value,
		Data:      req.Data,
	}
	if req.GasLimit != nil {
		msg.Gas = *req.GasLimit
	}
	return msg
}

// Transaction builds the unsigned transaction of a complete request
func (req *TxRequest) Transaction() (*types.Transaction, error) {
	switch {
	case req.Nonce == nil:
		return nil, tracerr.Wrap(fmt.Errorf("%w: missing nonce", common.ErrMalformedEnvelope))
	case req.GasLimit == nil:
		return nil, tracerr.Wrap(fmt.Errorf("%w: missing gasLimit", common.ErrMalformedEnvelope))
	case req.MaxFeePerGas == nil || req.MaxPriorityFeePerGas == nil:
		return nil, tracerr.Wrap(fmt.Errorf("%w: missing fees", common.ErrMalformedEnvelope))
	case req.ChainID == nil:
		return nil, tracerr.Wrap(fmt.Errorf("%w: missing chainId", common.ErrMalformedEnvelope))
	}
	value := req.Value
	if value == nil {
		value = big.NewInt(0)
	}
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   req.ChainID,
		Nonce:     *req.Nonce,
		GasTipCap: req.MaxPriorityFeePerGas,
		GasFeeCap: req.MaxFeePerGas,
		Gas:       *req.GasLimit,
		To:        req.To,
		Value:     value,
		Data:      req.Data,
	}), nil
}

// ResolveRequest returns a completed copy of a standard request
func (r *Resolver) ResolveRequest(ctx context.Context, req *TxRequest) (*TxRequest, error) {
	if req.Value != nil && req.Value.Sign() < 0 {
		return nil, tracerr.Wrap(fmt.Errorf("%w: negative value", common.ErrMalformedEnvelope))
	}
	tx := req.Copy()
	complete := tx.Nonce != nil && tx.GasLimit != nil &&
		((tx.MaxFeePerGas != nil && tx.MaxPriorityFeePerGas != nil) ||
			(tx.GasPrice != nil && tx.MaxFeePerGas == nil && tx.MaxPriorityFeePerGas == nil))
	var err error
	if tx.ChainID, err = r.resolveChainID(ctx, tx.ChainID, complete); err != nil {
		return nil, tracerr.Wrap(err)
	}
	if tx.Nonce == nil {
		nonce, err := r.chain.NonceAt(ctx, tx.From, nil)
		if err != nil {
			return nil, tracerr.Wrap(err)
		}
		tx.Nonce = &nonce
	}
	fees, err := r.Fees(ctx, tx)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	tx.MaxFeePerGas, tx.MaxPriorityFeePerGas = fees.MaxFeePerGas, fees.MaxPriorityFeePerGas
	if tx.Value == nil {
		tx.Value = big.NewInt(0)
	}
	if tx.GasLimit == nil {
		gas, err := r.chain.EstimateGas(ctx, tx.CallMsg())
		if err != nil {
			return nil, estimationFailed(err)
		}
		tx.GasLimit = &gas
	}
	return tx, nil
}

// Fees returns the fee fields a request resolves to.  The chain is only
// queried if a fee field is unset.
func (r *Resolver) Fees(ctx context.Context, req *TxRequest) (*common.FeeFields, error) {
	maxFee, maxPriorityFee := req.MaxFeePerGas, req.MaxPriorityFeePerGas
	if req.GasPrice != nil && maxFee == nil && maxPriorityFee == nil {
		maxFee, maxPriorityFee = req.GasPrice, req.GasPrice
	}
	maxFee, maxPriorityFee, err := r.resolveFees(ctx, maxFee, maxPriorityFee)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return &common.FeeFields{MaxFeePerGas: maxFee, MaxPriorityFeePerGas: maxPriorityFee}, nil
}
