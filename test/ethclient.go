package test

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"reflect"
	"sync"

	"github.com/ethereum/go-ethereum"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/hermeznetwork/tracerr"
	"github.com/hermeznetwork/zkwallet/common"
	"github.com/hermeznetwork/zkwallet/log"
	"github.com/mitchellh/copystructure"
)

func init() {
	copystructure.Copiers[reflect.TypeOf(big.Int{})] =
		func(raw interface{}) (interface{}, error) {
			in := raw.(big.Int)
			out := new(big.Int).Set(&in)
			return *out, nil
		}
}

// State is the account state of a chain at a block
type State struct {
	Balances         map[ethCommon.Address]*big.Int
	Nonces           map[ethCommon.Address]uint64
	DeploymentNonces map[ethCommon.Address]uint64
	Code             map[ethCommon.Address][]byte
	// Storage holds the contract state the clients simulate
	Storage map[string][]byte
}

func newState() *State {
	return &State{
		Balances:         make(map[ethCommon.Address]*big.Int),
		Nonces:           make(map[ethCommon.Address]uint64),
		DeploymentNonces: make(map[ethCommon.Address]uint64),
		Code:             make(map[ethCommon.Address][]byte),
		Storage:          make(map[string][]byte),
	}
}

func (s *State) copy() *State {
	sCopyRaw, err := copystructure.Copy(s)
	if err != nil {
		panic(err)
	}
	return sCopyRaw.(*State)
}

func (s *State) balance(addr ethCommon.Address) *big.Int {
	if b, ok := s.Balances[addr]; ok {
		return new(big.Int).Set(b)
	}
	return big.NewInt(0)
}

func (s *State) add(addr ethCommon.Address, amount *big.Int) {
	s.Balances[addr] = new(big.Int).Add(s.balance(addr), amount)
}

func (s *State) sub(addr ethCommon.Address, amount *big.Int) error {
	b := s.balance(addr)
	if b.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient balance of %v: %v < %v", addr.Hex(), b, amount)
	}
	s.Balances[addr] = b.Sub(b, amount)
	return nil
}

func (s *State) transfer(from, to ethCommon.Address, amount *big.Int) error {
	if err := s.sub(from, amount); err != nil {
		return err
	}
	s.add(to, amount)
	return nil
}

// Block stores the state of a chain after a block
type Block struct {
	Number     uint64
	Hash       ethCommon.Hash
	ParentHash ethCommon.Hash
	State      *State
	Txs        []ethCommon.Hash
}

func (b *Block) copy() *Block {
	bCopyRaw, err := copystructure.Copy(b)
	if err != nil {
		panic(err)
	}
	return bCopyRaw.(*Block)
}

// Next prepares the successive block.
func (b *Block) Next(hash ethCommon.Hash) *Block {
	blockNext := b.copy()
	blockNext.Number = b.Number + 1
	blockNext.ParentHash = b.Hash
	blockNext.Hash = hash
	blockNext.Txs = nil
	return blockNext
}

type hasher struct {
	counter uint64
}

// Next returns the next hash
func (h *hasher) Next() ethCommon.Hash {
	var hash ethCommon.Hash
	binary.LittleEndian.PutUint64(hash[:], h.counter)
	h.counter++
	return hash
}

// ClientSetup is used to initialize the test chains
type ClientSetup struct {
	L1ChainID *big.Int
	L2ChainID *big.Int
	// BaseFee is the constant base fee of both chains
	BaseFee *big.Int
	// GasTipCap is the suggested priority fee
	GasTipCap *big.Int
	// GasPerTx is the gas used by every transaction
	GasPerTx     uint64
	MainContract ethCommon.Address
	// L1Balances and L2Balances are the genesis balances
	L1Balances map[ethCommon.Address]*big.Int
	L2Balances map[ethCommon.Address]*big.Int
	// AutoFinalize marks every L2 block as finalized as soon as it's mined
	AutoFinalize bool
}

// NewClientSetupExample returns a ClientSetup example with the given
// accounts funded on both chains.
//nolint:gomnd
func NewClientSetupExample(accounts ...ethCommon.Address) *ClientSetup {
	fund, ok := new(big.Int).SetString("1000000000000000000000", 10) // 1000 * (1e18)
	if !ok {
		panic("bad fund")
	}
	mainContract := ethCommon.HexToAddress("0x9A6DE0f62Aa270A8bCB1e2610078650D539B1Ef9")
	setup := &ClientSetup{
		L1ChainID:    big.NewInt(9),
		L2ChainID:    big.NewInt(270),
		BaseFee:      big.NewInt(250000000),
		GasTipCap:    big.NewInt(1000),
		GasPerTx:     160000,
		MainContract: mainContract,
		L1Balances:   map[ethCommon.Address]*big.Int{mainContract: new(big.Int).Set(fund)},
		L2Balances:   make(map[ethCommon.Address]*big.Int),
	}
	for _, addr := range accounts {
		setup.L1Balances[addr] = new(big.Int).Set(fund)
		setup.L2Balances[addr] = new(big.Int).Set(fund)
	}
	return setup
}

// txData is a decoded submitted transaction
type txData struct {
	hash        ethCommon.Hash
	from        ethCommon.Address
	to          *ethCommon.Address
	nonce       uint64
	gasLimit    uint64
	maxFee      *big.Int
	tip         *big.Int
	value       *big.Int
	data        []byte
	factoryDeps [][]byte
	// feePayer pays the fees instead of from when set
	feePayer *ethCommon.Address
}

// execContext is the context a transaction is executed in
type execContext struct {
	tx       *txData
	gasPrice *big.Int
	block    *Block
}

type execResult struct {
	logs            []*types.Log
	contractAddress *ethCommon.Address
	l2ToL1Logs      []common.L2ToL1Log
	// afterMine runs once the including block is mined
	afterMine func()
}

// executor implements the contract logic of a chain
type executor interface {
	exec(st *State, ctx *execContext) (*execResult, error)
	call(st *State, msg ethereum.CallMsg) ([]byte, error)
}

// chain is the deterministic chain shared by the L1 and L2 test clients.
// Every accepted transaction is mined in its own block.
type chain struct {
	rw           *sync.RWMutex
	name         string
	chainID      *big.Int
	baseFee      *big.Int
	tip          *big.Int
	gasPerTx     uint64
	blocks       map[uint64]*Block
	blockNum     uint64
	finalized    uint64
	autoFinalize bool
	hideReceipts bool
	hasher       hasher
	receipts     map[ethCommon.Hash]*common.Receipt
	executor     executor
	isL2         bool
}

func newChain(name string, chainID *big.Int, setup *ClientSetup,
	balances map[ethCommon.Address]*big.Int) *chain {
	c := &chain{
		rw:       &sync.RWMutex{},
		name:     name,
		chainID:  chainID,
		baseFee:  setup.BaseFee,
		tip:      setup.GasTipCap,
		gasPerTx: setup.GasPerTx,
		blocks:   make(map[uint64]*Block),
		receipts: make(map[ethCommon.Hash]*common.Receipt),
	}
	genesis := &Block{Number: 0, Hash: c.hasher.Next(), State: newState()}
	for addr, b := range balances {
		genesis.State.Balances[addr] = new(big.Int).Set(b)
	}
	c.blocks[0] = genesis
	return c
}

func (c *chain) currentState() *State {
	return c.blocks[c.blockNum].State
}

func (c *chain) stateAt(blockNumber *big.Int) (*State, error) {
	if blockNumber == nil {
		return c.currentState(), nil
	}
	block, ok := c.blocks[blockNumber.Uint64()]
	if !ok || blockNumber.Sign() < 0 {
		return nil, ethereum.NotFound
	}
	return block.State, nil
}

// Debugw logs with the chain name
func (c *chain) Debugw(template string, kv ...interface{}) {
	log.Debugw(fmt.Sprintf("Test%vClient %v", c.name, template), kv...)
}

// mineBlock mines the next block after applying fn to it
func (c *chain) mineBlock(fn func(block *Block)) *Block {
	block := c.blocks[c.blockNum].Next(c.hasher.Next())
	fn(block)
	c.blockNum++
	c.blocks[c.blockNum] = block
	if c.autoFinalize {
		c.finalized = c.blockNum
	}
	c.Debugw("mined block", "blockNum", c.blockNum)
	return block
}

//
// Mock Control
//

// CtlMineBlock mines an empty block
func (c *chain) CtlMineBlock() {
	c.rw.Lock()
	defer c.rw.Unlock()
	c.mineBlock(func(*Block) {})
}

// CtlFinalize marks every mined block as finalized
func (c *chain) CtlFinalize() {
	c.rw.Lock()
	defer c.rw.Unlock()
	c.finalized = c.blockNum
}

// CtlSetAutoFinalize sets whether new blocks are finalized when mined
func (c *chain) CtlSetAutoFinalize(auto bool) {
	c.rw.Lock()
	defer c.rw.Unlock()
	c.autoFinalize = auto
}

// CtlHideReceipts makes receipts look pending while hide is true
func (c *chain) CtlHideReceipts(hide bool) {
	c.rw.Lock()
	defer c.rw.Unlock()
	c.hideReceipts = hide
}

// CtlSetBalance sets the balance of an account in the current block
func (c *chain) CtlSetBalance(addr ethCommon.Address, amount *big.Int) {
	c.rw.Lock()
	defer c.rw.Unlock()
	c.currentState().Balances[addr] = new(big.Int).Set(amount)
}

// CtlSetCode sets the code of an account in the current block
func (c *chain) CtlSetCode(addr ethCommon.Address, code []byte) {
	c.rw.Lock()
	defer c.rw.Unlock()
	c.currentState().Code[addr] = ethCommon.CopyBytes(code)
}

// BlockNum returns the number of the last mined block
func (c *chain) BlockNum() uint64 {
	c.rw.RLock()
	defer c.rw.RUnlock()
	return c.blockNum
}

//
// Ethereum
//

// ChainID returns the chain id
func (c *chain) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(c.chainID), nil
}

// BalanceAt returns the balance of an account at a block, nil for the latest
func (c *chain) BalanceAt(ctx context.Context, account ethCommon.Address,
	blockNumber *big.Int) (*big.Int, error) {
	c.rw.RLock()
	defer c.rw.RUnlock()
	st, err := c.stateAt(blockNumber)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return st.balance(account), nil
}

// NonceAt returns the transaction count of an account
func (c *chain) NonceAt(ctx context.Context, account ethCommon.Address,
	blockNumber *big.Int) (uint64, error) {
	c.rw.RLock()
	defer c.rw.RUnlock()
	st, err := c.stateAt(blockNumber)
	if err != nil {
		return 0, tracerr.Wrap(err)
	}
	return st.Nonces[account], nil
}

// CodeAt returns the code of an account
func (c *chain) CodeAt(ctx context.Context, account ethCommon.Address,
	blockNumber *big.Int) ([]byte, error) {
	c.rw.RLock()
	defer c.rw.RUnlock()
	st, err := c.stateAt(blockNumber)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return ethCommon.CopyBytes(st.Code[account]), nil
}

// SuggestFees returns a max fee of twice the base fee plus the tip
func (c *chain) SuggestFees(ctx context.Context) (*common.FeeFields, error) {
	maxFee := new(big.Int).Mul(c.baseFee, big.NewInt(2)) //nolint:gomnd
	return &common.FeeFields{
		MaxFeePerGas:         maxFee.Add(maxFee, c.tip),
		MaxPriorityFeePerGas: new(big.Int).Set(c.tip),
	}, nil
}

// FinalizedBlockNumber returns the last finalized block
func (c *chain) FinalizedBlockNumber(ctx context.Context) (uint64, error) {
	c.rw.RLock()
	defer c.rw.RUnlock()
	return c.finalized, nil
}

// TransactionReceipt returns the receipt of a mined transaction or nil
func (c *chain) TransactionReceipt(ctx context.Context,
	txHash ethCommon.Hash) (*common.Receipt, error) {
	c.rw.RLock()
	defer c.rw.RUnlock()
	receipt, ok := c.receipts[txHash]
	if !ok || c.hideReceipts {
		return nil, nil
	}
	rCopyRaw, err := copystructure.Copy(receipt)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return rCopyRaw.(*common.Receipt), nil
}

// CallContract performs a read only call against the state at a block
func (c *chain) CallContract(ctx context.Context, msg ethereum.CallMsg,
	blockNumber *big.Int) ([]byte, error) {
	c.rw.RLock()
	defer c.rw.RUnlock()
	st, err := c.stateAt(blockNumber)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	res, err := c.executor.call(st.copy(), msg)
	if err != nil {
		return nil, tracerr.Wrap(fmt.Errorf("%w: execution reverted: %v",
			common.ErrTransactionReverted, err))
	}
	return res, nil
}

func (c *chain) effectiveGasPrice(maxFee, tip *big.Int) *big.Int {
	price := new(big.Int).Add(c.baseFee, tip)
	if price.Cmp(maxFee) > 0 {
		return new(big.Int).Set(maxFee)
	}
	return price
}

// simulate runs tx on a copy of the current state
func (c *chain) simulate(tx *txData) (uint64, error) {
	c.rw.RLock()
	defer c.rw.RUnlock()
	st := c.currentState().copy()
	gasPrice := c.baseFee
	if tx.maxFee != nil {
		gasPrice = tx.maxFee
		feePayer := tx.from
		if tx.feePayer != nil {
			feePayer = *tx.feePayer
		}
		maxCost := new(big.Int).Mul(new(big.Int).SetUint64(c.gasPerTx), tx.maxFee)
		if feePayer == tx.from {
			maxCost.Add(maxCost, tx.value)
		}
		if st.balance(feePayer).Cmp(maxCost) < 0 {
			return 0, tracerr.Wrap(fmt.Errorf("%w: insufficient funds for gas * price + value: "+
				"address %v have %v want %v", common.ErrInsufficientFunds, feePayer.Hex(),
				st.balance(feePayer), maxCost))
		}
	}
	if tx.value.Sign() > 0 {
		if tx.to == nil {
			return 0, tracerr.Wrap(fmt.Errorf("%w: missing to", common.ErrEstimationFailed))
		}
		if err := st.transfer(tx.from, *tx.to, tx.value); err != nil {
			return 0, tracerr.Wrap(fmt.Errorf("%w: %v", common.ErrEstimationFailed, err))
		}
	}
	ctx := &execContext{tx: tx, gasPrice: gasPrice, block: c.blocks[c.blockNum]}
	if _, err := c.executor.exec(st, ctx); err != nil {
		return 0, tracerr.Wrap(fmt.Errorf("%w: %w: %v", common.ErrEstimationFailed,
			common.ErrTransactionReverted, err))
	}
	return c.gasPerTx, nil
}

// EstimateGas simulates the call and returns the gas every transaction uses
func (c *chain) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	value := msg.Value
	if value == nil {
		value = big.NewInt(0)
	}
	return c.simulate(&txData{
		from:   msg.From,
		to:     msg.To,
		maxFee: msg.GasFeeCap,
		tip:    msg.GasTipCap,
		value:  value,
		data:   msg.Data,
	})
}

func rejected(format string, args ...interface{}) error {
	return tracerr.Wrap(fmt.Errorf("%w: %s", common.ErrSubmissionRejected, fmt.Sprintf(format, args...)))
}

// submit validates and mines a transaction
func (c *chain) submit(tx *txData) (ethCommon.Hash, error) {
	c.rw.Lock()
	defer c.rw.Unlock()

	if _, ok := c.receipts[tx.hash]; ok {
		return ethCommon.Hash{}, rejected("already known")
	}
	st := c.currentState()
	if nonce := st.Nonces[tx.from]; tx.nonce < nonce {
		return ethCommon.Hash{}, rejected("nonce too low: next nonce %v, tx nonce %v", nonce, tx.nonce)
	} else if tx.nonce > nonce {
		return ethCommon.Hash{}, rejected("nonce too high: next nonce %v, tx nonce %v", nonce, tx.nonce)
	}
	if tx.maxFee.Cmp(c.baseFee) < 0 {
		return ethCommon.Hash{}, rejected("max fee per gas less than block base fee")
	}
	if tx.tip.Cmp(tx.maxFee) > 0 {
		return ethCommon.Hash{}, rejected("max priority fee per gas higher than max fee per gas")
	}
	feePayer := tx.from
	if tx.feePayer != nil {
		feePayer = *tx.feePayer
	}
	maxCost := new(big.Int).Mul(new(big.Int).SetUint64(tx.gasLimit), tx.maxFee)
	if feePayer == tx.from {
		maxCost.Add(maxCost, tx.value)
	} else if st.balance(tx.from).Cmp(tx.value) < 0 {
		return ethCommon.Hash{}, tracerr.Wrap(fmt.Errorf("%w: insufficient funds for value",
			common.ErrInsufficientFunds))
	}
	if st.balance(feePayer).Cmp(maxCost) < 0 {
		return ethCommon.Hash{}, tracerr.Wrap(fmt.Errorf("%w: insufficient funds for gas * price + value: "+
			"address %v have %v want %v", common.ErrInsufficientFunds, feePayer.Hex(),
			st.balance(feePayer), maxCost))
	}

	var afterMine func()
	c.mineBlock(func(block *Block) {
		st := block.State
		block.Txs = append(block.Txs, tx.hash)
		st.Nonces[tx.from]++
		gasPrice := c.effectiveGasPrice(tx.maxFee, tx.tip)
		gasUsed := c.gasPerTx
		status := common.ReceiptStatusSuccessful
		if tx.gasLimit < gasUsed {
			gasUsed = tx.gasLimit
			status = common.ReceiptStatusFailed
		}
		fee := new(big.Int).Mul(new(big.Int).SetUint64(gasUsed), gasPrice)
		if err := st.sub(feePayer, fee); err != nil {
			panic(err) // checked above
		}
		receipt := &common.Receipt{
			Status:            status,
			TxHash:            tx.hash,
			From:              tx.from,
			To:                tx.to,
			GasUsed:           gasUsed,
			EffectiveGasPrice: gasPrice,
			BlockNumber:       block.Number,
			BlockHash:         block.Hash,
			Logs:              []*types.Log{},
		}
		if c.isL2 {
			receipt.L1BatchNumber = new(big.Int).SetUint64(block.Number)
			receipt.L1BatchTxIndex = big.NewInt(0)
		}
		if status == common.ReceiptStatusSuccessful {
			snapshot := st.copy()
			res, err := c.execute(st, &execContext{tx: tx, gasPrice: gasPrice, block: block})
			if err != nil {
				c.Debugw("transaction reverted", "tx", tx.hash.Hex(), "err", err)
				block.State = snapshot
				receipt.Status = common.ReceiptStatusFailed
			} else {
				receipt.ContractAddress = res.contractAddress
				for i, l := range res.logs {
					l.TxHash = tx.hash
					l.BlockNumber = block.Number
					l.BlockHash = block.Hash
					l.Index = uint(i)
				}
				receipt.Logs = res.logs
				for i := range res.l2ToL1Logs {
					res.l2ToL1Logs[i].TxHash = tx.hash
					res.l2ToL1Logs[i].BlockNumber = block.Number
					res.l2ToL1Logs[i].L1BatchNumber = new(big.Int).SetUint64(block.Number)
					res.l2ToL1Logs[i].LogIndex = uint64(i)
				}
				receipt.L2ToL1Logs = res.l2ToL1Logs
				afterMine = res.afterMine
			}
		}
		c.receipts[tx.hash] = receipt
	})
	c.Debugw("transaction mined", "tx", tx.hash.Hex(), "from", tx.from.Hex())
	if afterMine != nil {
		afterMine()
	}
	return tx.hash, nil
}

// execute moves the value and runs the contract logic
func (c *chain) execute(st *State, ctx *execContext) (*execResult, error) {
	tx := ctx.tx
	if tx.value != nil && tx.value.Sign() > 0 {
		if tx.to == nil {
			return nil, fmt.Errorf("value transfer without recipient")
		}
		if err := st.transfer(tx.from, *tx.to, tx.value); err != nil {
			return nil, err
		}
	}
	return c.executor.exec(st, ctx)
}
