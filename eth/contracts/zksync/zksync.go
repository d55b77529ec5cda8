// Package zksync contains the ABIs of the L1 and L2 contracts of the rollup
// used by the wallet.
package zksync

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Parsed ABIs
var (
	MainContract     = mustParseABI(MainContractABI)
	L2EthToken       = mustParseABI(L2EthTokenABI)
	L1Messenger      = mustParseABI(L1MessengerABI)
	ContractDeployer = mustParseABI(ContractDeployerABI)
	NonceHolder      = mustParseABI(NonceHolderABI)
)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

// MainContractABI is the ABI of the L1 main contract (mailbox facet) of the
// rollup
const MainContractABI = `[
	{"type":"function","name":"requestL2Transaction","stateMutability":"payable","inputs":[
		{"name":"_contractL2","type":"address"},
		{"name":"_l2Value","type":"uint256"},
		{"name":"_calldata","type":"bytes"},
		{"name":"_l2GasLimit","type":"uint256"},
		{"name":"_l2GasPerPubdataByteLimit","type":"uint256"},
		{"name":"_factoryDeps","type":"bytes[]"},
		{"name":"_refundRecipient","type":"address"}],
	"outputs":[{"name":"canonicalTxHash","type":"bytes32"}]},
	{"type":"function","name":"l2TransactionBaseCost","stateMutability":"view","inputs":[
		{"name":"_gasPrice","type":"uint256"},
		{"name":"_l2GasLimit","type":"uint256"},
		{"name":"_l2GasPerPubdataByteLimit","type":"uint256"}],
	"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"finalizeEthWithdrawal","stateMutability":"nonpayable","inputs":[
		{"name":"_l2BatchNumber","type":"uint256"},
		{"name":"_l2MessageIndex","type":"uint256"},
		{"name":"_l2TxNumberInBatch","type":"uint16"},
		{"name":"_message","type":"bytes"},
		{"name":"_merkleProof","type":"bytes32[]"}],
	"outputs":[]},
	{"type":"function","name":"isEthWithdrawalFinalized","stateMutability":"view","inputs":[
		{"name":"_l2BatchNumber","type":"uint256"},
		{"name":"_l2MessageIndex","type":"uint256"}],
	"outputs":[{"name":"","type":"bool"}]},
	{"type":"event","name":"NewPriorityRequest","anonymous":false,"inputs":[
		{"name":"txId","type":"uint256","indexed":false},
		{"name":"txHash","type":"bytes32","indexed":false},
		{"name":"expirationTimestamp","type":"uint64","indexed":false},
		{"name":"transaction","type":"tuple","indexed":false,"components":[
			{"name":"txType","type":"uint256"},
			{"name":"from","type":"uint256"},
			{"name":"to","type":"uint256"},
			{"name":"gasLimit","type":"uint256"},
			{"name":"gasPerPubdataByteLimit","type":"uint256"},
			{"name":"maxFeePerGas","type":"uint256"},
			{"name":"maxPriorityFeePerGas","type":"uint256"},
			{"name":"paymaster","type":"uint256"},
			{"name":"nonce","type":"uint256"},
			{"name":"value","type":"uint256"},
			{"name":"reserved","type":"uint256[4]"},
			{"name":"data","type":"bytes"},
			{"name":"signature","type":"bytes"},
			{"name":"factoryDeps","type":"uint256[]"},
			{"name":"paymasterInput","type":"bytes"},
			{"name":"reservedDynamic","type":"bytes"}]},
		{"name":"factoryDeps","type":"bytes[]","indexed":false}]}
]`

// L2EthTokenABI is the ABI of the L2 system contract that holds ether
// balances
const L2EthTokenABI = `[
	{"type":"function","name":"withdraw","stateMutability":"payable","inputs":[
		{"name":"_l1Receiver","type":"address"}],"outputs":[]},
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[
		{"name":"","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"event","name":"Withdrawal","anonymous":false,"inputs":[
		{"name":"_l2Sender","type":"address","indexed":true},
		{"name":"_l1Receiver","type":"address","indexed":true},
		{"name":"_amount","type":"uint256","indexed":false}]}
]`

// L1MessengerABI is the ABI of the L2 system contract that sends messages to
// L1
const L1MessengerABI = `[
	{"type":"function","name":"sendToL1","stateMutability":"nonpayable","inputs":[
		{"name":"_message","type":"bytes"}],"outputs":[{"name":"","type":"bytes32"}]},
	{"type":"event","name":"L1MessageSent","anonymous":false,"inputs":[
		{"name":"_sender","type":"address","indexed":true},
		{"name":"_hash","type":"bytes32","indexed":true},
		{"name":"_message","type":"bytes","indexed":false}]}
]`

// ContractDeployerABI is the ABI of the L2 system contract that creates
// contracts
const ContractDeployerABI = `[
	{"type":"function","name":"create","stateMutability":"payable","inputs":[
		{"name":"_salt","type":"bytes32"},
		{"name":"_bytecodeHash","type":"bytes32"},
		{"name":"_input","type":"bytes"}],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"create2","stateMutability":"payable","inputs":[
		{"name":"_salt","type":"bytes32"},
		{"name":"_bytecodeHash","type":"bytes32"},
		{"name":"_input","type":"bytes"}],"outputs":[{"name":"","type":"address"}]},
	{"type":"event","name":"ContractDeployed","anonymous":false,"inputs":[
		{"name":"deployerAddress","type":"address","indexed":true},
		{"name":"bytecodeHash","type":"bytes32","indexed":true},
		{"name":"contractAddress","type":"address","indexed":true}]}
]`

// NonceHolderABI is the ABI of the L2 system contract that keeps nonces
const NonceHolderABI = `[
	{"type":"function","name":"getMinNonce","stateMutability":"view","inputs":[
		{"name":"_address","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getDeploymentNonce","stateMutability":"view","inputs":[
		{"name":"_address","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`
