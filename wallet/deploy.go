package wallet

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/hermeznetwork/tracerr"
	"github.com/hermeznetwork/zkwallet/common"
	"github.com/hermeznetwork/zkwallet/deployer"
	"github.com/hermeznetwork/zkwallet/eth/contracts/zksync"
)

// DeployAsync submits a contract deployment
func (w *Wallet) DeployAsync(ctx context.Context, req *DeployRequest) (*PendingL2Tx, error) {
	const operation = "deploy"
	deployment, err := req.build()
	if err != nil {
		return nil, w.rejected(chainL2, operation, err)
	}
	tx := deployment.Tx
	tx.From = w.Address()
	tx.Meta = withPaymaster(tx.Meta, req.paymaster)
	req.overrides.applyEnvelope(tx)
	return w.submitEnvelope(ctx, operation, tx, common.ErrTransactionReverted)
}

// Deploy deploys a contract, waits for the deployment and returns the
// address of the new contract
func (w *Wallet) Deploy(ctx context.Context, req *DeployRequest,
	opts ...WaitOpts) (ethCommon.Address, *common.Receipt, error) {
	pending, err := w.DeployAsync(ctx, req)
	if err != nil {
		return ethCommon.Address{}, nil, tracerr.Wrap(err)
	}
	receipt, err := pending.Wait(ctx, opts...)
	if err != nil {
		return ethCommon.Address{}, nil, tracerr.Wrap(err)
	}
	addr, err := DeployedAddress(receipt)
	if err != nil {
		return ethCommon.Address{}, nil, tracerr.Wrap(err)
	}
	return addr, receipt, nil
}

// DeployedAddress returns the address of the contract created by the
// transaction of receipt
func DeployedAddress(receipt *common.Receipt) (ethCommon.Address, error) {
	if receipt.ContractAddress != nil && *receipt.ContractAddress != (ethCommon.Address{}) {
		return *receipt.ContractAddress, nil
	}
	event := zksync.ContractDeployer.Events["ContractDeployed"]
	for _, l := range receipt.Logs {
		if l.Address == common.ContractDeployerAddress && len(l.Topics) == 4 && l.Topics[0] == event.ID {
			return ethCommon.BytesToAddress(l.Topics[3].Bytes()), nil
		}
	}
	return ethCommon.Address{}, tracerr.Wrap(fmt.Errorf("%w: no contract deployed in %v",
		ethereum.NotFound, receipt.TxHash.Hex()))
}

// PredictDeployAddress returns the address the deployment will create if
// it's the next deployment of the wallet
func (w *Wallet) PredictDeployAddress(ctx context.Context, req *DeployRequest) (ethCommon.Address, error) {
	deployment, err := req.build()
	if err != nil {
		return ethCommon.Address{}, tracerr.Wrap(err)
	}
	if deployment.Salt != nil {
		return deployment.Address(w.Address(), nil), nil
	}
	values, err := w.call(ctx, w.l2, common.NonceHolderAddress,
		zksync.NonceHolder.Methods["getDeploymentNonce"], w.Address())
	if err != nil {
		return ethCommon.Address{}, tracerr.Wrap(err)
	}
	return deployer.CreateAddress(w.Address(), values[0].(*big.Int)), nil
}
