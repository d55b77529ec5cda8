package test

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hermeznetwork/tracerr"
	"github.com/hermeznetwork/zkwallet/common"
	"github.com/hermeznetwork/zkwallet/deployer"
	"github.com/hermeznetwork/zkwallet/eip712"
	"github.com/hermeznetwork/zkwallet/eth/contracts/zksync"
	"github.com/hermeznetwork/zkwallet/signer"
)

// CallHandler answers the read only calls to a contract of the L2
type CallHandler func(st *State, msg ethereum.CallMsg) ([]byte, error)

// L2Client is a fake rollup chain with the system contracts the wallet uses
type L2Client struct {
	*chain
	mainContract ethCommon.Address
	bridge       *bridge
	callHandlers map[ethCommon.Address]CallHandler
}

// ConstructorInput returns the constructor input a contract was deployed with
func (s *State) ConstructorInput(addr ethCommon.Address) []byte {
	return ethCommon.CopyBytes(s.Storage[constructorInputKey(addr)])
}

func constructorInputKey(addr ethCommon.Address) string {
	return "constructor/" + addr.Hex()
}

type l2Executor struct {
	c *L2Client
}

func (e *l2Executor) exec(st *State, ctx *execContext) (*execResult, error) {
	tx := ctx.tx
	if tx.to == nil || len(tx.data) == 0 {
		return &execResult{}, nil
	}
	switch *tx.to {
	case common.L2EthTokenAddress:
		return e.c.withdraw(st, ctx)
	case common.ContractDeployerAddress:
		return e.c.deploy(st, ctx)
	}
	return &execResult{}, nil
}

func (e *l2Executor) call(st *State, msg ethereum.CallMsg) ([]byte, error) {
	if msg.To == nil {
		return nil, fmt.Errorf("missing to")
	}
	switch *msg.To {
	case common.NonceHolderAddress:
		method, args, err := methodOf(zksync.NonceHolder, msg.Data)
		if err != nil {
			return nil, err
		}
		addr := args[0].(ethCommon.Address)
		switch method.Name {
		case "getMinNonce":
			return method.Outputs.Pack(new(big.Int).SetUint64(st.Nonces[addr]))
		default:
			return method.Outputs.Pack(new(big.Int).SetUint64(st.DeploymentNonces[addr]))
		}
	case common.L2EthTokenAddress:
		method, args, err := methodOf(zksync.L2EthToken, msg.Data)
		if err != nil {
			return nil, err
		}
		if method.Name != "balanceOf" {
			return nil, fmt.Errorf("method %v is not a view", method.Name)
		}
		addr := ethCommon.BigToAddress(args[0].(*big.Int))
		return method.Outputs.Pack(st.balance(addr))
	}
	if handler, ok := e.c.callHandlers[*msg.To]; ok {
		return handler(st, msg)
	}
	if len(st.Code[*msg.To]) == 0 {
		return []byte{}, nil
	}
	return nil, fmt.Errorf("no call handler for %v", msg.To.Hex())
}

// withdraw burns the value and sends the withdrawal message to L1
func (c *L2Client) withdraw(st *State, ctx *execContext) (*execResult, error) {
	tx := ctx.tx
	method, args, err := methodOf(zksync.L2EthToken, tx.data)
	if err != nil {
		return nil, err
	}
	if method.Name != "withdraw" {
		return nil, fmt.Errorf("method %v is not payable", method.Name)
	}
	receiver := args[0].(ethCommon.Address)
	if err := st.sub(common.L2EthTokenAddress, tx.value); err != nil {
		return nil, err
	}
	message := make([]byte, 0, 4+ethCommon.AddressLength+32) //nolint:gomnd
	message = append(message, zksync.MainContract.Methods["finalizeEthWithdrawal"].ID...)
	message = append(message, receiver.Bytes()...)
	message = append(message, ethCommon.LeftPadBytes(tx.value.Bytes(), 32)...) //nolint:gomnd
	messageHash := crypto.Keccak256Hash(message)

	sentEvent := zksync.L1Messenger.Events["L1MessageSent"]
	sentData, err := sentEvent.Inputs.NonIndexed().Pack(message)
	if err != nil {
		return nil, err
	}
	withdrawalEvent := zksync.L2EthToken.Events["Withdrawal"]
	withdrawalData, err := withdrawalEvent.Inputs.NonIndexed().Pack(tx.value)
	if err != nil {
		return nil, err
	}
	tokenKey := ethCommon.BytesToHash(common.L2EthTokenAddress.Bytes())
	hash := tx.hash
	batch := ctx.block.Number
	return &execResult{
		logs: []*types.Log{
			{
				Address: common.L1MessengerAddress,
				Topics:  []ethCommon.Hash{sentEvent.ID, tokenKey, messageHash},
				Data:    sentData,
			},
			{
				Address: common.L2EthTokenAddress,
				Topics: []ethCommon.Hash{withdrawalEvent.ID,
					ethCommon.BytesToHash(tx.from.Bytes()), ethCommon.BytesToHash(receiver.Bytes())},
				Data: withdrawalData,
			},
		},
		l2ToL1Logs: []common.L2ToL1Log{{
			IsService: true,
			Sender:    common.L1MessengerAddress,
			Key:       tokenKey,
			Value:     messageHash,
		}},
		afterMine: func() {
			c.bridge.register(hash, batch, 0, message)
		},
	}, nil
}

// deploy creates a contract whose bytecode is one of the factory deps
func (c *L2Client) deploy(st *State, ctx *execContext) (*execResult, error) {
	tx := ctx.tx
	method, args, err := methodOf(zksync.ContractDeployer, tx.data)
	if err != nil {
		return nil, err
	}
	salt := args[0].([32]byte)
	bytecodeHash := ethCommon.Hash(args[1].([32]byte))
	input := args[2].([]byte)
	var code []byte
	for _, dep := range tx.factoryDeps {
		if hash, err := eip712.HashBytecode(dep); err == nil && hash == bytecodeHash {
			code = dep
			break
		}
	}
	if code == nil {
		return nil, fmt.Errorf("the code hash is not known")
	}
	var addr ethCommon.Address
	switch method.Name {
	case "create":
		nonce := new(big.Int).SetUint64(st.DeploymentNonces[tx.from])
		addr = deployer.CreateAddress(tx.from, nonce)
	case "create2":
		addr = deployer.Create2Address(tx.from, salt, bytecodeHash, input)
	default:
		return nil, fmt.Errorf("method %v is not payable", method.Name)
	}
	st.DeploymentNonces[tx.from]++
	if len(st.Code[addr]) > 0 {
		return nil, fmt.Errorf("code already deployed at %v", addr.Hex())
	}
	st.Code[addr] = ethCommon.CopyBytes(code)
	st.Storage[constructorInputKey(addr)] = ethCommon.CopyBytes(input)
	event := zksync.ContractDeployer.Events["ContractDeployed"]
	return &execResult{
		logs: []*types.Log{{
			Address: common.ContractDeployerAddress,
			Topics: []ethCommon.Hash{event.ID, ethCommon.BytesToHash(tx.from.Bytes()),
				bytecodeHash, ethCommon.BytesToHash(addr.Bytes())},
			Data: []byte{},
		}},
		contractAddress: &addr,
	}, nil
}

// applyPriorityOp mines the L2 leg of a deposit
func (c *L2Client) applyPriorityOp(l2Hash ethCommon.Hash, from, to ethCommon.Address,
	value *big.Int) {
	c.rw.Lock()
	defer c.rw.Unlock()
	c.mineBlock(func(block *Block) {
		block.Txs = append(block.Txs, l2Hash)
		block.State.add(to, value)
		c.receipts[l2Hash] = &common.Receipt{
			Status:            common.ReceiptStatusSuccessful,
			TxHash:            l2Hash,
			From:              from,
			To:                &to,
			EffectiveGasPrice: big.NewInt(0),
			BlockNumber:       block.Number,
			BlockHash:         block.Hash,
			Logs:              []*types.Log{},
			L1BatchNumber:     new(big.Int).SetUint64(block.Number),
			L1BatchTxIndex:    big.NewInt(0),
		}
	})
	c.Debugw("priority operation applied", "tx", l2Hash.Hex(), "to", to.Hex(), "value", value)
}

func (c *L2Client) decodeEnvelope(raw []byte) (*txData, error) {
	stx, err := eip712.Decode(raw)
	if err != nil {
		return nil, rejected("%v", err)
	}
	tx := stx.Transaction()
	if err := tx.Validate(); err != nil {
		return nil, rejected("%v", err)
	}
	if tx.ChainID.Cmp(c.chainID) != 0 {
		return nil, rejected("invalid chain id %v", tx.ChainID)
	}
	if sig := stx.Signature(); sig != nil {
		hash := stx.SigningHash()
		from, err := signer.RecoverAddress(hash.Bytes(), sig)
		if err != nil || from != tx.From {
			return nil, rejected("invalid signature")
		}
	} else if len(c.currentState().Code[tx.From]) == 0 {
		return nil, rejected("custom signature from an account without code")
	}
	data := &txData{
		hash:        stx.Hash(),
		from:        tx.From,
		to:          tx.To,
		nonce:       tx.Nonce.Uint64(),
		gasLimit:    tx.GasLimit.Uint64(),
		maxFee:      tx.MaxFeePerGas,
		tip:         tx.MaxPriorityFeePerGas,
		value:       tx.Value,
		data:        tx.Data,
		factoryDeps: tx.FactoryDeps(),
	}
	if pp := tx.PaymasterParams(); !pp.IsEmpty() {
		paymaster := pp.Paymaster
		data.feePayer = &paymaster
	}
	return data, nil
}

// SendRawTransaction validates and mines a signed transaction, either an L2
// envelope or a standard one
func (c *L2Client) SendRawTransaction(ctx context.Context, raw []byte) (ethCommon.Hash, error) {
	var tx *txData
	var err error
	if len(raw) > 0 && raw[0] == common.TxTypeEIP712 {
		c.rw.RLock()
		tx, err = c.decodeEnvelope(raw)
		c.rw.RUnlock()
	} else {
		tx, err = decodeStandardTx(c.chain, raw)
	}
	if err != nil {
		return ethCommon.Hash{}, tracerr.Wrap(err)
	}
	return c.submit(tx)
}

// EstimateEnvelopeGas simulates an envelope
func (c *L2Client) EstimateEnvelopeGas(ctx context.Context, tx *eip712.Transaction) (uint64, error) {
	value := tx.Value
	if value == nil {
		value = big.NewInt(0)
	}
	data := &txData{
		from:        tx.From,
		to:          tx.To,
		maxFee:      tx.MaxFeePerGas,
		tip:         tx.MaxPriorityFeePerGas,
		value:       value,
		data:        tx.Data,
		factoryDeps: tx.FactoryDeps(),
	}
	if pp := tx.PaymasterParams(); !pp.IsEmpty() {
		paymaster := pp.Paymaster
		data.feePayer = &paymaster
	}
	return c.simulate(data)
}

// MainContract returns the address of the main contract on L1
func (c *L2Client) MainContract(ctx context.Context) (ethCommon.Address, error) {
	return c.mainContract, nil
}

// L2ToL1LogProof returns the proof of the index-th L2 to L1 log of a
// transaction, nil if there is none
func (c *L2Client) L2ToL1LogProof(ctx context.Context, txHash ethCommon.Hash,
	index int) (*common.L2ToL1LogProof, error) {
	return c.bridge.proof(txHash, index), nil
}

// CtlSetCallHandler sets the function answering the calls to addr
func (c *L2Client) CtlSetCallHandler(addr ethCommon.Address, handler CallHandler) {
	c.rw.Lock()
	defer c.rw.Unlock()
	c.callHandlers[addr] = handler
}

// CtlConstructorInput returns the constructor input of a deployed contract
func (c *L2Client) CtlConstructorInput(addr ethCommon.Address) []byte {
	c.rw.RLock()
	defer c.rw.RUnlock()
	return c.currentState().ConstructorInput(addr)
}

// NewClients creates a pair of connected L1 and L2 test clients
func NewClients(setup *ClientSetup) (*L1Client, *L2Client) {
	b := newBridge()
	l2 := &L2Client{
		chain:        newChain("L2", setup.L2ChainID, setup, setup.L2Balances),
		mainContract: setup.MainContract,
		bridge:       b,
		callHandlers: make(map[ethCommon.Address]CallHandler),
	}
	l2.isL2 = true
	l2.autoFinalize = setup.AutoFinalize
	l2.executor = &l2Executor{c: l2}
	l1 := &L1Client{
		chain:        newChain("L1", setup.L1ChainID, setup, setup.L1Balances),
		mainContract: setup.MainContract,
		l2:           l2,
		bridge:       b,
	}
	l1.autoFinalize = true
	l1.executor = &l1Executor{c: l1}
	return l1, l2
}
