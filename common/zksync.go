package common

import (
	ethCommon "github.com/ethereum/go-ethereum/common"
)

// TxTypeEIP712 is the type byte of the L2 custom transaction envelope
const TxTypeEIP712 = 0x71

const (
	// DefaultGasPerPubdataLimit is the gas per pubdata byte used when a
	// transaction doesn't set it
	DefaultGasPerPubdataLimit = 50000
	// DepositGasPerPubdataLimit is the gas per pubdata byte used for the L2
	// leg of a deposit
	DepositGasPerPubdataLimit = 800
	// RecommendedDepositL2GasLimit is the L2 gas limit used for the L2 leg
	// of a deposit
	RecommendedDepositL2GasLimit = 10000000
)

// L2 system contracts
var (
	// BootloaderAddress is the address of the bootloader, which acts as
	// the formal sender of fee payments
	BootloaderAddress = ethCommon.HexToAddress("0x0000000000000000000000000000000000008001")
	// NonceHolderAddress keeps the account and deployment nonces
	NonceHolderAddress = ethCommon.HexToAddress("0x0000000000000000000000000000000000008003")
	// ContractDeployerAddress is the target of every contract creation
	ContractDeployerAddress = ethCommon.HexToAddress("0x0000000000000000000000000000000000008006")
	// L1MessengerAddress sends L2 to L1 messages
	L1MessengerAddress = ethCommon.HexToAddress("0x0000000000000000000000000000000000008008")
	// L2EthTokenAddress holds the L2 ether balances and the withdraw entry point
	L2EthTokenAddress = ethCommon.HexToAddress("0x000000000000000000000000000000000000800a")
)
