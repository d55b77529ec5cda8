package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	ethKeystore "github.com/ethereum/go-ethereum/accounts/keystore"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/hermeznetwork/tracerr"
	"github.com/hermeznetwork/zkwallet/common"
	"github.com/hermeznetwork/zkwallet/deployer"
	"github.com/hermeznetwork/zkwallet/journal"
	"github.com/hermeznetwork/zkwallet/log"
	"github.com/hermeznetwork/zkwallet/wallet"
	"github.com/urfave/cli/v2"
)

func cmdVersion(*cli.Context) error {
	fmt.Printf("Version = \"%v\"\n", version)
	fmt.Printf("Build = \"%v\"\n", commit)
	fmt.Printf("Date = \"%v\"\n", date)
	return nil
}

func cmdImportKey(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return tracerr.Wrap(fmt.Errorf("error parsing flags and config: %w", err))
	}
	if cfg.Signer.Keystore.Path == "" {
		return tracerr.Wrap(fmt.Errorf("importkey needs Signer.Keystore.Path"))
	}
	sk, err := importedKey(c)
	if err != nil {
		return tracerr.Wrap(err)
	}
	password := cfg.Signer.Keystore.Password
	if password == "" {
		if password, err = readPassword("Keystore password: "); err != nil {
			return tracerr.Wrap(err)
		}
	}
	keyStore := ethKeystore.NewKeyStore(cfg.Signer.Keystore.Path,
		ethKeystore.StandardScryptN, ethKeystore.StandardScryptP)
	acc, err := keyStore.ImportECDSA(sk, password)
	if err != nil {
		return tracerr.Wrap(err)
	}
	log.Infow("Imported private key", "addr", acc.Address.Hex())
	return nil
}

func cmdBalance(c *cli.Context) error {
	e, err := newEnv(c)
	if err != nil {
		return tracerr.Wrap(err)
	}
	defer e.close()
	balances, err := e.wallet.Balances(c.Context)
	if err != nil {
		return tracerr.Wrap(err)
	}
	fmt.Printf("Address = \"%v\"\n", e.wallet.Address().Hex())
	fmt.Printf("L1 = \"%v\"\n", common.FormatAmount(balances.L1))
	fmt.Printf("L2 = \"%v\"\n", common.FormatAmount(balances.L2))
	return nil
}

func parseAddress(c *cli.Context, name string) (*ethCommon.Address, error) {
	s := c.String(name)
	if s == "" {
		return nil, nil
	}
	if !ethCommon.IsHexAddress(s) {
		return nil, tracerr.Wrap(fmt.Errorf("invalid %v address %q", name, s))
	}
	addr := ethCommon.HexToAddress(s)
	return &addr, nil
}

func parsePaymaster(c *cli.Context) (*common.PaymasterParams, error) {
	addr, err := parseAddress(c, flagPaymaster)
	if err != nil || addr == nil {
		return nil, tracerr.Wrap(err)
	}
	var inner []byte
	if s := c.String(flagPaymasterInput); s != "" {
		if inner, err = hexutil.Decode(s); err != nil {
			return nil, tracerr.Wrap(fmt.Errorf("invalid %v: %w", flagPaymasterInput, err))
		}
	}
	input, err := common.GeneralPaymasterInput(inner)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return &common.PaymasterParams{Paymaster: *addr, PaymasterInput: input}, nil
}

// record stores a submitted operation in the journal.  Failing to record
// doesn't fail the command since the transaction is already submitted.
func (e *env) record(op *journal.Operation) {
	if err := e.journal.Add(op); err != nil {
		log.Errorw("journal.Add", "hash", op.TxHash.Hex(), "err", err)
	}
}

func (e *env) updateState(hash ethCommon.Hash, state string) {
	if err := e.journal.UpdateState(hash, state); err != nil {
		log.Errorw("journal.UpdateState", "hash", hash.Hex(), "err", err)
	}
}

func printReceipt(receipt *common.Receipt) {
	fmt.Printf("Status = %v\n", receipt.Status)
	fmt.Printf("Block = %v\n", receipt.BlockNumber)
	fmt.Printf("GasUsed = %v\n", receipt.GasUsed)
	fmt.Printf("Fee = \"%v\"\n", common.FormatAmount(receipt.Fee()))
}

func cmdTransfer(c *cli.Context) error {
	e, err := newEnv(c)
	if err != nil {
		return tracerr.Wrap(err)
	}
	defer e.close()
	to, err := parseAddress(c, flagTo)
	if err != nil {
		return tracerr.Wrap(err)
	}
	amount, err := common.ParseAmount(c.String(flagAmount))
	if err != nil {
		return tracerr.Wrap(err)
	}
	paymaster, err := parsePaymaster(c)
	if err != nil {
		return tracerr.Wrap(err)
	}
	pending, err := e.wallet.Transfer(c.Context, wallet.NewTransferRequest(*to, amount).Paymaster(paymaster))
	if err != nil {
		return tracerr.Wrap(err)
	}
	fmt.Printf("Hash = \"%v\"\n", pending.Hash().Hex())
	e.record(&journal.Operation{
		Kind:   journal.KindTransfer,
		Chain:  "l2",
		TxHash: pending.Hash(),
		From:   e.wallet.Address(),
		To:     to,
		Amount: amount,
		State:  journal.StateSubmitted,
	})
	if !c.Bool(flagWait) {
		return nil
	}
	receipt, err := pending.Wait(c.Context)
	if err != nil {
		e.failed(pending.Hash(), err)
		return tracerr.Wrap(err)
	}
	e.updateState(pending.Hash(), journal.StateIncluded)
	printReceipt(receipt)
	return nil
}

// failed marks the operation of hash as failed when err says it failed on
// chain
func (e *env) failed(hash ethCommon.Hash, err error) {
	if errors.Is(err, common.ErrTransactionReverted) || errors.Is(err, common.ErrDepositRejected) ||
		errors.Is(err, common.ErrWithdrawRejected) {
		e.updateState(hash, journal.StateFailed)
	}
}

func cmdDeposit(c *cli.Context) error {
	e, err := newEnv(c)
	if err != nil {
		return tracerr.Wrap(err)
	}
	defer e.close()
	amount, err := common.ParseAmount(c.String(flagAmount))
	if err != nil {
		return tracerr.Wrap(err)
	}
	to, err := parseAddress(c, flagTo)
	if err != nil {
		return tracerr.Wrap(err)
	}
	req := wallet.NewDepositRequest(amount)
	receiver := e.wallet.Address()
	if to != nil {
		req = req.To(*to)
		receiver = *to
	}
	pending, err := e.wallet.Deposit(c.Context, req)
	if err != nil {
		return tracerr.Wrap(err)
	}
	fmt.Printf("Hash = \"%v\"\n", pending.Hash().Hex())
	e.record(&journal.Operation{
		Kind:   journal.KindDeposit,
		Chain:  "l1",
		TxHash: pending.Hash(),
		From:   e.wallet.L1Address(),
		To:     &receiver,
		Amount: amount,
		State:  common.DepositSubmitted.String(),
	})
	if !c.Bool(flagWait) {
		return nil
	}
	receipt, err := e.wallet.WaitDepositL2(c.Context, pending.Hash())
	if err != nil {
		e.failed(pending.Hash(), err)
		return tracerr.Wrap(err)
	}
	e.updateState(pending.Hash(), common.DepositL2Included.String())
	fmt.Printf("L2Hash = \"%v\"\n", receipt.TxHash.Hex())
	printReceipt(receipt)
	return nil
}

func cmdWithdraw(c *cli.Context) error {
	e, err := newEnv(c)
	if err != nil {
		return tracerr.Wrap(err)
	}
	defer e.close()
	amount, err := common.ParseAmount(c.String(flagAmount))
	if err != nil {
		return tracerr.Wrap(err)
	}
	to, err := parseAddress(c, flagTo)
	if err != nil {
		return tracerr.Wrap(err)
	}
	paymaster, err := parsePaymaster(c)
	if err != nil {
		return tracerr.Wrap(err)
	}
	req := wallet.NewWithdrawRequest(amount).Paymaster(paymaster)
	receiver := e.wallet.L1Address()
	if to != nil {
		req = req.To(*to)
		receiver = *to
	}
	pending, err := e.wallet.Withdraw(c.Context, req)
	if err != nil {
		return tracerr.Wrap(err)
	}
	fmt.Printf("Hash = \"%v\"\n", pending.Hash().Hex())
	e.record(&journal.Operation{
		Kind:   journal.KindWithdraw,
		Chain:  "l2",
		TxHash: pending.Hash(),
		From:   e.wallet.Address(),
		To:     &receiver,
		Amount: amount,
		State:  common.WithdrawalSubmitted.String(),
	})
	if !c.Bool(flagWait) {
		return nil
	}
	receipt, err := pending.Wait(c.Context)
	if err != nil {
		e.failed(pending.Hash(), err)
		return tracerr.Wrap(err)
	}
	e.updateState(pending.Hash(), common.WithdrawalL2Included.String())
	printReceipt(receipt)
	return nil
}

func cmdFinalize(c *cli.Context) error {
	e, err := newEnv(c)
	if err != nil {
		return tracerr.Wrap(err)
	}
	defer e.close()
	l2Hash := ethCommon.HexToHash(c.String(flagHash))
	pending, err := e.wallet.FinalizeWithdraw(c.Context, l2Hash, nil)
	if err != nil {
		return tracerr.Wrap(err)
	}
	fmt.Printf("Hash = \"%v\"\n", pending.Hash().Hex())
	e.record(&journal.Operation{
		Kind:       journal.KindFinalizeWithdraw,
		Chain:      "l1",
		TxHash:     pending.Hash(),
		ParentHash: &l2Hash,
		From:       e.wallet.L1Address(),
		State:      common.WithdrawalFinalizationSubmitted.String(),
	})
	if _, err := e.journal.GetByHash(l2Hash); err == nil {
		e.updateState(l2Hash, common.WithdrawalFinalizationSubmitted.String())
	}
	if !c.Bool(flagWait) {
		return nil
	}
	receipt, err := pending.Wait(c.Context)
	if err != nil {
		e.failed(pending.Hash(), err)
		return tracerr.Wrap(err)
	}
	e.updateState(pending.Hash(), common.WithdrawalL1Included.String())
	if _, err := e.journal.GetByHash(l2Hash); err == nil {
		e.updateState(l2Hash, common.WithdrawalL1Included.String())
	}
	printReceipt(receipt)
	return nil
}

func cmdDeploy(c *cli.Context) error {
	e, err := newEnv(c)
	if err != nil {
		return tracerr.Wrap(err)
	}
	defer e.close()
	contract, err := deployer.LoadCompiledContract(c.String(flagContract))
	if err != nil {
		return tracerr.Wrap(err)
	}
	args, err := deployer.ParseConstructorArgs(contract.ABI, c.StringSlice(flagArg))
	if err != nil {
		return tracerr.Wrap(err)
	}
	var deps [][]byte
	for _, path := range c.StringSlice(flagDep) {
		dep, err := deployer.LoadCompiledContract(path)
		if err != nil {
			return tracerr.Wrap(err)
		}
		deps = append(deps, dep.Bin)
	}
	paymaster, err := parsePaymaster(c)
	if err != nil {
		return tracerr.Wrap(err)
	}
	req := wallet.NewDeployRequest(contract, args...).Deps(deps...).Paymaster(paymaster)
	if s := c.String(flagSalt); s != "" {
		salt, err := hexutil.Decode(s)
		if err != nil || len(salt) != 32 {
			return tracerr.Wrap(fmt.Errorf("invalid %v %q", flagSalt, s))
		}
		var salt32 [32]byte
		copy(salt32[:], salt)
		req = req.Salt(salt32)
	}
	predicted, err := e.wallet.PredictDeployAddress(c.Context, req)
	if err != nil {
		return tracerr.Wrap(err)
	}
	pending, err := e.wallet.DeployAsync(c.Context, req)
	if err != nil {
		return tracerr.Wrap(err)
	}
	fmt.Printf("Hash = \"%v\"\n", pending.Hash().Hex())
	e.record(&journal.Operation{
		Kind:   journal.KindDeploy,
		Chain:  "l2",
		TxHash: pending.Hash(),
		From:   e.wallet.Address(),
		To:     &predicted,
		State:  journal.StateSubmitted,
	})
	receipt, err := pending.Wait(c.Context)
	if err != nil {
		e.failed(pending.Hash(), err)
		return tracerr.Wrap(err)
	}
	e.updateState(pending.Hash(), journal.StateIncluded)
	addr, err := wallet.DeployedAddress(receipt)
	if err != nil {
		return tracerr.Wrap(err)
	}
	fmt.Printf("Address = \"%v\"\n", addr.Hex())
	printReceipt(receipt)
	return nil
}

// refresh queries the chains for the state of op and stores it
func (e *env) refresh(ctx context.Context, op *journal.Operation) (string, error) {
	var state string
	switch op.Kind {
	case journal.KindDeposit:
		s, err := e.wallet.DepositStatus(ctx, op.TxHash)
		if err != nil {
			e.failed(op.TxHash, err)
			return op.State, tracerr.Wrap(err)
		}
		state = s.String()
	case journal.KindWithdraw:
		s, err := e.wallet.WithdrawalStatus(ctx, op.TxHash)
		if err != nil {
			return op.State, tracerr.Wrap(err)
		}
		// The finalization submission isn't visible from the chains
		if s == common.WithdrawalL2Finalized &&
			op.State == common.WithdrawalFinalizationSubmitted.String() {
			s = common.WithdrawalFinalizationSubmitted
		}
		state = s.String()
	default:
		client := e.l2.TransactionReceipt
		if op.Chain == "l1" {
			client = e.l1.TransactionReceipt
		}
		receipt, err := client(ctx, op.TxHash)
		if err != nil {
			return op.State, tracerr.Wrap(err)
		}
		switch {
		case receipt == nil:
			return op.State, nil
		case receipt.Status == common.ReceiptStatusFailed:
			state = journal.StateFailed
		case op.Kind == journal.KindFinalizeWithdraw:
			state = common.WithdrawalL1Included.String()
		default:
			state = journal.StateIncluded
		}
	}
	if state != op.State {
		if err := e.journal.UpdateState(op.TxHash, state); err != nil {
			return op.State, tracerr.Wrap(err)
		}
	}
	return state, nil
}

func printOperation(op *journal.Operation, state string) {
	amount := "-"
	if op.Amount != nil {
		amount = common.FormatAmount(op.Amount)
	}
	fmt.Printf("%v\t%v\t%v\t%v\t%v\n", op.TxHash.Hex(), op.Kind, op.Chain, amount, state)
}

func cmdStatus(c *cli.Context) error {
	e, err := newEnv(c)
	if err != nil {
		return tracerr.Wrap(err)
	}
	defer e.close()
	var ops []*journal.Operation
	switch {
	case c.String(flagHash) != "":
		op, err := e.journal.GetByHash(ethCommon.HexToHash(c.String(flagHash)))
		if errors.Is(err, sql.ErrNoRows) {
			return tracerr.Wrap(fmt.Errorf("operation %v not in the journal", c.String(flagHash)))
		} else if err != nil {
			return tracerr.Wrap(err)
		}
		ops = append(ops, op)
	case c.Uint(flagLimit) > 0:
		ops, err = e.journal.List("", c.Uint(flagLimit))
	default:
		ops, err = e.journal.Unfinished()
	}
	if err != nil {
		return tracerr.Wrap(err)
	}
	for _, op := range ops {
		state, err := e.refresh(c.Context, op)
		if err != nil {
			log.Warnw("Status not refreshed", "hash", op.TxHash.Hex(), "err", err)
		}
		printOperation(op, state)
	}
	return nil
}
