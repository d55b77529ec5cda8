package eth

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/hermeznetwork/tracerr"
	"github.com/hermeznetwork/zkwallet/common"
	"github.com/hermeznetwork/zkwallet/etherscan"
	"github.com/hermeznetwork/zkwallet/log"
)

// EthereumInterface is the chain access shared by L1 and L2
type EthereumInterface interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account ethCommon.Address, blockNumber *big.Int) (*big.Int, error)
	NonceAt(ctx context.Context, account ethCommon.Address, blockNumber *big.Int) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestFees(ctx context.Context) (*common.FeeFields, error)
	SendRawTransaction(ctx context.Context, raw []byte) (ethCommon.Hash, error)
	// TransactionReceipt returns nil without error if the transaction is
	// not included yet
	TransactionReceipt(ctx context.Context, txHash ethCommon.Hash) (*common.Receipt, error)
	FinalizedBlockNumber(ctx context.Context) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	CodeAt(ctx context.Context, account ethCommon.Address, blockNumber *big.Int) ([]byte, error)
}

const (
	// default values
	defaultGasPriceIncPerc     = 10
	defaultBaseFeeMultiplier   = 2
	defaultReceiptTimeout      = 60 * time.Second
	defaultIntervalReceiptLoop = 200 * time.Millisecond
)

// EthereumConfig defines the configuration parameters of the EthereumClient
type EthereumConfig struct {
	// GasPriceIncPerc is the percentage added to the suggested max fee
	GasPriceIncPerc int64
	// ReceiptTimeout is the default timeout of receipt waits
	ReceiptTimeout time.Duration
	// IntervalReceiptLoop is the default polling interval of receipt waits
	IntervalReceiptLoop time.Duration
}

// DefaultEthereumConfig returns the configuration used when none is given
func DefaultEthereumConfig() *EthereumConfig {
	return &EthereumConfig{
		GasPriceIncPerc:     defaultGasPriceIncPerc,
		ReceiptTimeout:      defaultReceiptTimeout,
		IntervalReceiptLoop: defaultIntervalReceiptLoop,
	}
}

// EthereumClient is an ethereum client to submit transactions and query the
// chain state.
type EthereumClient struct {
	client    *ethclient.Client
	rpc       *rpc.Client
	gasOracle etherscan.Client
	config    *EthereumConfig
}

// NewEthereumClient creates a EthereumClient instance.  gasOracle is
// optional: when set, its proposed gas price is used as a lower bound of the
// suggested max fee.
func NewEthereumClient(rpcClient *rpc.Client, config *EthereumConfig,
	gasOracle etherscan.Client) *EthereumClient {
	if config == nil {
		config = DefaultEthereumConfig()
	}
	return &EthereumClient{
		client:    ethclient.NewClient(rpcClient),
		rpc:       rpcClient,
		gasOracle: gasOracle,
		config:    config,
	}
}

// Dial connects to the node at url
func Dial(ctx context.Context, url string, config *EthereumConfig,
	gasOracle etherscan.Client, opts ...rpc.ClientOption) (*EthereumClient, error) {
	rpcClient, err := rpc.DialOptions(ctx, url, opts...)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return NewEthereumClient(rpcClient, config, gasOracle), nil
}

// Config returns the client configuration
func (c *EthereumClient) Config() *EthereumConfig {
	return c.config
}

// Client returns the internal ethclient.Client
func (c *EthereumClient) Client() *ethclient.Client {
	return c.client
}

// Close closes the connection
func (c *EthereumClient) Close() {
	c.rpc.Close()
}

// ChainID returns the chain id of the node
func (c *EthereumClient) ChainID(ctx context.Context) (*big.Int, error) {
	chainID, err := c.client.ChainID(ctx)
	return chainID, tracerr.Wrap(err)
}

// BalanceAt returns the balance of an account
func (c *EthereumClient) BalanceAt(ctx context.Context, account ethCommon.Address,
	blockNumber *big.Int) (*big.Int, error) {
	balance, err := c.client.BalanceAt(ctx, account, blockNumber)
	return balance, tracerr.Wrap(err)
}

// NonceAt returns the transaction count of an account.  With a nil block
// number the pending transactions are counted.
func (c *EthereumClient) NonceAt(ctx context.Context, account ethCommon.Address,
	blockNumber *big.Int) (uint64, error) {
	if blockNumber == nil {
		nonce, err := c.client.PendingNonceAt(ctx, account)
		return nonce, tracerr.Wrap(err)
	}
	nonce, err := c.client.NonceAt(ctx, account, blockNumber)
	return nonce, tracerr.Wrap(err)
}

// CodeAt returns the code of a contract
func (c *EthereumClient) CodeAt(ctx context.Context, account ethCommon.Address,
	blockNumber *big.Int) ([]byte, error) {
	code, err := c.client.CodeAt(ctx, account, blockNumber)
	return code, tracerr.Wrap(err)
}

// CallContract performs a read only call
func (c *EthereumClient) CallContract(ctx context.Context, msg ethereum.CallMsg,
	blockNumber *big.Int) ([]byte, error) {
	res, err := c.client.CallContract(ctx, msg, blockNumber)
	if err != nil {
		return nil, tracerr.Wrap(fmt.Errorf("%w: %v", common.ErrTransactionReverted, revertReason(err)))
	}
	return res, nil
}

// revertReason returns the error message extended with the decoded revert
// reason, if the node returned one
func revertReason(err error) string {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return err.Error()
	}
	hexData, ok := dataErr.ErrorData().(string)
	if !ok {
		return err.Error()
	}
	data, decErr := hexutil.Decode(hexData)
	if decErr != nil {
		return err.Error()
	}
	reason, unpackErr := abi.UnpackRevert(data)
	if unpackErr != nil {
		return err.Error()
	}
	return fmt.Sprintf("%v: %v", err.Error(), reason)
}

// EstimateGas estimates the gas of a transaction.  Failures are returned as
// common.ErrEstimationFailed with the node reason, also wrapping
// common.ErrTransactionReverted on reverts, or as common.ErrInsufficientFunds
// when the sender can't pay gas * price + value.
func (c *EthereumClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	gas, err := c.client.EstimateGas(ctx, msg)
	if err != nil {
		return 0, tracerr.Wrap(estimationError(err))
	}
	return gas, nil
}

func estimationError(err error) error {
	reason := revertReason(err)
	var dataErr rpc.DataError
	switch {
	case strings.Contains(strings.ToLower(reason), "insufficient funds"):
		return fmt.Errorf("%w: %v", common.ErrInsufficientFunds, reason)
	case (errors.As(err, &dataErr) && dataErr.ErrorData() != nil) ||
		strings.Contains(reason, "execution reverted"):
		return fmt.Errorf("%w: %w: %v", common.ErrEstimationFailed, common.ErrTransactionReverted, reason)
	default:
		return fmt.Errorf("%w: %v", common.ErrEstimationFailed, reason)
	}
}

// SuggestFees suggests the EIP-1559 fees: the suggested tip and a max fee of
// twice the latest base fee plus the tip, increased by GasPriceIncPerc.  On
// chains without base fee the legacy gas price is used for both.
func (c *EthereumClient) SuggestFees(ctx context.Context) (*common.FeeFields, error) {
	header, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	var maxFee, tip *big.Int
	if header.BaseFee == nil {
		gasPrice, err := c.client.SuggestGasPrice(ctx)
		if err != nil {
			return nil, tracerr.Wrap(err)
		}
		maxFee, tip = gasPrice, new(big.Int).Set(gasPrice)
	} else {
		if tip, err = c.client.SuggestGasTipCap(ctx); err != nil {
			return nil, tracerr.Wrap(err)
		}
		maxFee = new(big.Int).Mul(header.BaseFee, big.NewInt(defaultBaseFeeMultiplier))
		maxFee.Add(maxFee, tip)
	}
	inc := new(big.Int).Mul(maxFee, big.NewInt(c.config.GasPriceIncPerc))
	inc.Div(inc, big.NewInt(100)) //nolint:gomnd
	maxFee = new(big.Int).Add(maxFee, inc)

	if c.gasOracle != nil {
		gasPrice, err := c.gasOracle.GetGasPrice(ctx)
		if err != nil {
			log.Warnw("EthereumClient: gas oracle", "err", err)
		} else if propose, err := gasPrice.ProposeGasPriceWei(); err == nil && propose.Cmp(maxFee) > 0 {
			maxFee = propose
		}
	}
	if tip.Cmp(maxFee) > 0 {
		tip = new(big.Int).Set(maxFee)
	}
	log.Debugw("EthereumClient: suggested fees", "maxFeePerGas", maxFee, "maxPriorityFeePerGas", tip)
	return &common.FeeFields{MaxFeePerGas: maxFee, MaxPriorityFeePerGas: tip}, nil
}

// SendRawTransaction submits a signed serialized transaction and returns the
// hash reported by the node
func (c *EthereumClient) SendRawTransaction(ctx context.Context, raw []byte) (ethCommon.Hash, error) {
	var hash ethCommon.Hash
	if err := c.rpc.CallContext(ctx, &hash, "eth_sendRawTransaction", hexutil.Bytes(raw)); err != nil {
		return ethCommon.Hash{}, submissionError(err)
	}
	return hash, nil
}

func submissionError(err error) error {
	msg := err.Error()
	if strings.Contains(strings.ToLower(msg), "insufficient funds") {
		return tracerr.Wrap(fmt.Errorf("%w: %v", common.ErrInsufficientFunds, msg))
	}
	return tracerr.Wrap(fmt.Errorf("%w: %v", common.ErrSubmissionRejected, msg))
}

// FinalizedBlockNumber returns the number of the latest finalized block
func (c *EthereumClient) FinalizedBlockNumber(ctx context.Context) (uint64, error) {
	header, err := c.client.HeaderByNumber(ctx, big.NewInt(int64(rpc.FinalizedBlockNumber)))
	if err != nil {
		return 0, tracerr.Wrap(err)
	}
	return header.Number.Uint64(), nil
}

type rpcL2ToL1Log struct {
	BlockNumber      hexutil.Uint64    `json:"blockNumber"`
	L1BatchNumber    *hexutil.Big      `json:"l1BatchNumber"`
	TransactionIndex hexutil.Uint64    `json:"transactionIndex"`
	ShardID          hexutil.Uint64    `json:"shardId"`
	IsService        bool              `json:"isService"`
	Sender           ethCommon.Address `json:"sender"`
	Key              ethCommon.Hash    `json:"key"`
	Value            ethCommon.Hash    `json:"value"`
	TxHash           ethCommon.Hash    `json:"transactionHash"`
	LogIndex         hexutil.Uint64    `json:"logIndex"`
}

type rpcReceipt struct {
	Status            hexutil.Uint64     `json:"status"`
	TxHash            ethCommon.Hash     `json:"transactionHash"`
	From              ethCommon.Address  `json:"from"`
	To                *ethCommon.Address `json:"to"`
	ContractAddress   *ethCommon.Address `json:"contractAddress"`
	GasUsed           hexutil.Uint64     `json:"gasUsed"`
	EffectiveGasPrice *hexutil.Big       `json:"effectiveGasPrice"`
	BlockNumber       hexutil.Uint64     `json:"blockNumber"`
	BlockHash         ethCommon.Hash     `json:"blockHash"`
	Logs              []*types.Log       `json:"logs"`
	L1BatchNumber     *hexutil.Big       `json:"l1BatchNumber"`
	L1BatchTxIndex    *hexutil.Big       `json:"l1BatchTxIndex"`
	L2ToL1Logs        []rpcL2ToL1Log     `json:"l2ToL1Logs"`
}

func (r *rpcReceipt) receipt() *common.Receipt {
	receipt := &common.Receipt{
		Status:            uint64(r.Status),
		TxHash:            r.TxHash,
		From:              r.From,
		To:                r.To,
		ContractAddress:   r.ContractAddress,
		GasUsed:           uint64(r.GasUsed),
		EffectiveGasPrice: (*big.Int)(r.EffectiveGasPrice),
		BlockNumber:       uint64(r.BlockNumber),
		BlockHash:         r.BlockHash,
		Logs:              r.Logs,
		L1BatchNumber:     (*big.Int)(r.L1BatchNumber),
		L1BatchTxIndex:    (*big.Int)(r.L1BatchTxIndex),
	}
	for _, l := range r.L2ToL1Logs {
		receipt.L2ToL1Logs = append(receipt.L2ToL1Logs, common.L2ToL1Log{
			BlockNumber:      uint64(l.BlockNumber),
			L1BatchNumber:    (*big.Int)(l.L1BatchNumber),
			TransactionIndex: uint64(l.TransactionIndex),
			ShardID:          uint64(l.ShardID),
			IsService:        l.IsService,
			Sender:           l.Sender,
			Key:              l.Key,
			Value:            l.Value,
			TxHash:           l.TxHash,
			LogIndex:         uint64(l.LogIndex),
		})
	}
	return receipt
}

// TransactionReceipt returns the receipt of a transaction, or nil if it's
// not included yet
func (c *EthereumClient) TransactionReceipt(ctx context.Context,
	txHash ethCommon.Hash) (*common.Receipt, error) {
	var r *rpcReceipt
	if err := c.rpc.CallContext(ctx, &r, "eth_getTransactionReceipt", txHash); err != nil {
		return nil, tracerr.Wrap(err)
	}
	if r == nil {
		return nil, nil
	}
	return r.receipt(), nil
}
