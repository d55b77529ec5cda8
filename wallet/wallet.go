/*
Package wallet implements the operations of an account across the L1 and the
L2: transfers, deposits, two phase withdrawals, contract deployments and
read only calls.

Each bridging operation is a sequence of transactions on different chains.
The wallet keeps no state about them between calls: the caller persists the
transaction hashes and uses DepositStatus and WithdrawalStatus to resume.

The wallet doesn't serialize concurrent operations from the same sender.
Nonces are read from the chain when a transaction is built, so callers that
need ordering must wait for each operation to be included or set explicit
nonces with Overrides.
*/
package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/hermeznetwork/tracerr"
	"github.com/hermeznetwork/zkwallet/common"
	"github.com/hermeznetwork/zkwallet/eip712"
	"github.com/hermeznetwork/zkwallet/eth"
	"github.com/hermeznetwork/zkwallet/log"
	"github.com/hermeznetwork/zkwallet/metric"
	"github.com/hermeznetwork/zkwallet/resolver"
	"github.com/hermeznetwork/zkwallet/signer"
	"golang.org/x/sync/errgroup"
)

const (
	chainL1 = "l1"
	chainL2 = "l2"

	defaultPollInterval = time.Second
)

// Config is the configuration of a Wallet
type Config struct {
	// PollInterval is the default interval between receipt polls
	PollInterval time.Duration
	// Timeout is the default limit of a wait.  Zero means no limit other
	// than the context.
	Timeout time.Duration
	// GasPerPubdata is the default gas per pubdata byte of L2 envelopes.
	// If nil, common.DefaultGasPerPubdataLimit is used.
	GasPerPubdata *big.Int
}

// Wallet operates an account on both chains.  The L2 signer signs the L2
// transactions and the L1 signer the L1 ones; they are usually the same key.
type Wallet struct {
	l1Signer   signer.Signer
	l2Signer   signer.Signer
	l1         eth.L1Interface
	l2         eth.L2Interface
	l1Resolver *resolver.Resolver
	l2Resolver *resolver.Resolver
	cfg        Config
}

// New creates a Wallet.  l1Signer may be nil, in which case l2Signer signs
// on both chains.
func New(l2Signer, l1Signer signer.Signer, l1 eth.L1Interface, l2 eth.L2Interface,
	cfg *Config) (*Wallet, error) {
	if l2Signer == nil {
		return nil, tracerr.Wrap(fmt.Errorf("missing L2 signer"))
	}
	if l1 == nil || l2 == nil {
		return nil, tracerr.Wrap(fmt.Errorf("missing chain client"))
	}
	if l1Signer == nil {
		l1Signer = l2Signer
	}
	w := &Wallet{
		l1Signer: l1Signer,
		l2Signer: l2Signer,
		l1:       l1,
		l2:       l2,
	}
	if cfg != nil {
		w.cfg = *cfg
	}
	if w.cfg.PollInterval == 0 {
		w.cfg.PollInterval = defaultPollInterval
	}
	w.l1Resolver = resolver.NewResolver(l1, nil)
	w.l2Resolver = resolver.NewResolver(l2, w.cfg.GasPerPubdata)
	return w, nil
}

// Address returns the L2 address of the wallet
func (w *Wallet) Address() ethCommon.Address {
	return w.l2Signer.Address()
}

// L1Address returns the L1 address of the wallet
func (w *Wallet) L1Address() ethCommon.Address {
	return w.l1Signer.Address()
}

// Balances of the wallet on both chains
type Balances struct {
	L1 *big.Int
	L2 *big.Int
}

// Balances returns the latest balances of the wallet on both chains
func (w *Wallet) Balances(ctx context.Context) (*Balances, error) {
	var balances Balances
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b, err := w.l1.BalanceAt(gCtx, w.L1Address(), nil)
		if err != nil {
			return tracerr.Wrap(err)
		}
		balances.L1 = b
		return nil
	})
	g.Go(func() error {
		b, err := w.l2.BalanceAt(gCtx, w.Address(), nil)
		if err != nil {
			return tracerr.Wrap(err)
		}
		balances.L2 = b
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, tracerr.Wrap(err)
	}
	return &balances, nil
}

func (w *Wallet) rejected(chain, operation string, err error) error {
	metric.Rejections.WithLabelValues(chain, operation).Inc()
	log.Warnw("Operation failed", "chain", chain, "operation", operation, "err", err)
	return tracerr.Wrap(err)
}

func (w *Wallet) submitted(chain, operation string, hash ethCommon.Hash, from ethCommon.Address) {
	metric.Submissions.WithLabelValues(chain, operation).Inc()
	log.Infow("Transaction submitted", "chain", chain, "operation", operation,
		"tx", hash.Hex(), "from", from.Hex())
}

// revertedAs adds the rejection error of an operation to an estimation
// error caused by a revert
func revertedAs(err, rejectErr error) error {
	if rejectErr == nil || errors.Is(err, rejectErr) || !errors.Is(err, common.ErrTransactionReverted) {
		return err
	}
	return fmt.Errorf("%w: %w", rejectErr, err)
}

// submitEnvelope resolves, signs and submits an L2 envelope
func (w *Wallet) submitEnvelope(ctx context.Context, operation string, req *eip712.Transaction,
	rejectErr error) (*PendingL2Tx, error) {
	tx, err := w.l2Resolver.ResolveEnvelope(ctx, req)
	if err != nil {
		return nil, w.rejected(chainL2, operation, revertedAs(err, rejectErr))
	}
	stx, err := tx.Sign(ctx, w.l2Signer)
	if err != nil {
		return nil, w.rejected(chainL2, operation, err)
	}
	raw, err := stx.Bytes()
	if err != nil {
		return nil, w.rejected(chainL2, operation, err)
	}
	hash, err := w.l2.SendRawTransaction(ctx, raw)
	if err != nil {
		return nil, w.rejected(chainL2, operation, err)
	}
	w.submitted(chainL2, operation, hash, tx.From)
	return w.newPendingL2Tx(hash, operation, rejectErr), nil
}

// sendRequest resolves, signs and submits a standard transaction
func (w *Wallet) sendRequest(ctx context.Context, chain, operation string, req *resolver.TxRequest,
	rejectErr error) (ethCommon.Hash, error) {
	r, client, s := w.l1Resolver, eth.EthereumInterface(w.l1), w.l1Signer
	if chain == chainL2 {
		r, client, s = w.l2Resolver, w.l2, w.l2Signer
	}
	req = req.Copy()
	req.From = s.Address()
	resolved, err := r.ResolveRequest(ctx, req)
	if err != nil {
		return ethCommon.Hash{}, w.rejected(chain, operation, revertedAs(err, rejectErr))
	}
	tx, err := resolved.Transaction()
	if err != nil {
		return ethCommon.Hash{}, w.rejected(chain, operation, err)
	}
	signed, err := signer.SignTx(ctx, s, tx, resolved.ChainID)
	if err != nil {
		return ethCommon.Hash{}, w.rejected(chain, operation, err)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return ethCommon.Hash{}, w.rejected(chain, operation, err)
	}
	hash, err := client.SendRawTransaction(ctx, raw)
	if err != nil {
		return ethCommon.Hash{}, w.rejected(chain, operation, err)
	}
	w.submitted(chain, operation, hash, req.From)
	return hash, nil
}

// checkL1Funds fails with common.ErrInsufficientFunds if the L1 balance
// can't cover value plus the maximum fee of the request
func (w *Wallet) checkL1Funds(ctx context.Context, req *resolver.TxRequest) error {
	balance, err := w.l1.BalanceAt(ctx, w.L1Address(), nil)
	if err != nil {
		return tracerr.Wrap(err)
	}
	cost := req.Value
	if req.GasLimit != nil && req.MaxFeePerGas != nil {
		maxFee, err := common.MulAmount(req.MaxFeePerGas, *req.GasLimit)
		if err != nil {
			return tracerr.Wrap(err)
		}
		if cost, err = common.AddAmounts(cost, maxFee); err != nil {
			return tracerr.Wrap(err)
		}
	}
	if balance.Cmp(cost) < 0 {
		return tracerr.Wrap(fmt.Errorf("%w: balance of %v is %v, %v required",
			common.ErrInsufficientFunds, w.L1Address().Hex(), balance, cost))
	}
	return nil
}
