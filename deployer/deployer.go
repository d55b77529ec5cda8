/*
Package deployer composes L2 contract creations.  On the L2 every contract
is created by a call to the ContractDeployer system contract, carrying the
bytecode hash and the constructor input, with the bytecode itself (and the
bytecodes of the contracts it may create) attached as factory deps.
*/
package deployer

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hermeznetwork/tracerr"
	"github.com/hermeznetwork/zkwallet/common"
	"github.com/hermeznetwork/zkwallet/eip712"
	"github.com/hermeznetwork/zkwallet/eth/contracts/zksync"
)

var (
	createPrefix  = crypto.Keccak256([]byte("zksyncCreate"))
	create2Prefix = crypto.Keccak256([]byte("zksyncCreate2"))
)

// CompiledContract is a compiled contract: its ABI and its bytecode
type CompiledContract struct {
	ABI abi.ABI
	Bin []byte
}

type compiledContractJSON struct {
	ABI json.RawMessage `json:"abi"`
	Bin string          `json:"bin"`
}

// ParseCompiledContract parses a combined JSON artifact of the form
// {"abi": [...], "bin": "..."}
func ParseCompiledContract(data []byte) (*CompiledContract, error) {
	var c compiledContractJSON
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, tracerr.Wrap(err)
	}
	contractABI, err := abi.JSON(strings.NewReader(string(c.ABI)))
	if err != nil {
		return nil, tracerr.Wrap(fmt.Errorf("abi: %w", err))
	}
	bin := c.Bin
	if !strings.HasPrefix(bin, "0x") {
		bin = "0x" + bin
	}
	code, err := hexutil.Decode(bin)
	if err != nil {
		return nil, tracerr.Wrap(fmt.Errorf("bin: %w", err))
	}
	if _, err := eip712.HashBytecode(code); err != nil {
		return nil, tracerr.Wrap(err)
	}
	return &CompiledContract{ABI: contractABI, Bin: code}, nil
}

// LoadCompiledContract reads a combined JSON artifact from a file
func LoadCompiledContract(path string) (*CompiledContract, error) {
	data, err := ioutil.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return ParseCompiledContract(data)
}

// BytecodeHash returns the versioned hash of the contract bytecode
func (c *CompiledContract) BytecodeHash() (ethCommon.Hash, error) {
	return eip712.HashBytecode(c.Bin)
}

// ConstructorInput encodes the constructor arguments
func (c *CompiledContract) ConstructorInput(args ...interface{}) ([]byte, error) {
	if len(c.ABI.Constructor.Inputs) == 0 {
		if len(args) > 0 {
			return nil, tracerr.Wrap(fmt.Errorf("%w: constructor takes no arguments, got %d",
				common.ErrMalformedEnvelope, len(args)))
		}
		return []byte{}, nil
	}
	input, err := c.ABI.Pack("", args...)
	if err != nil {
		return nil, tracerr.Wrap(fmt.Errorf("%w: constructor: %v", common.ErrMalformedEnvelope, err))
	}
	return input, nil
}

// Deployment is a composed contract creation
type Deployment struct {
	// Tx is the transaction request to the ContractDeployer.  From and the
	// fee fields are left unset.
	Tx           *eip712.Transaction
	BytecodeHash ethCommon.Hash
	Input        []byte
	// Salt is only set for create2 deployments
	Salt *[32]byte
}

func build(contract *CompiledContract, salt *[32]byte, args []interface{},
	deps [][]byte) (*Deployment, error) {
	bytecodeHash, err := contract.BytecodeHash()
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	input, err := contract.ConstructorInput(args...)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	method := "create"
	var saltArg [32]byte
	if salt != nil {
		method = "create2"
		saltArg = *salt
	}
	data, err := zksync.ContractDeployer.Pack(method, saltArg, [32]byte(bytecodeHash), input)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	factoryDeps := make([][]byte, 0, len(deps)+1)
	factoryDeps = append(factoryDeps, ethCommon.CopyBytes(contract.Bin))
	for _, dep := range deps {
		factoryDeps = append(factoryDeps, ethCommon.CopyBytes(dep))
	}
	to := common.ContractDeployerAddress
	tx := &eip712.Transaction{
		To:   &to,
		Data: data,
		Meta: &eip712.Meta{FactoryDeps: factoryDeps},
	}
	if err := tx.ValidateRequest(); err != nil {
		return nil, tracerr.Wrap(err)
	}
	return &Deployment{Tx: tx, BytecodeHash: bytecodeHash, Input: input, Salt: salt}, nil
}

// BuildDeploy composes a create deployment of contract with the constructor
// args.  deps are the bytecodes of the contracts that contract may create.
// Missing deps are not detected locally: the creation fails on chain.
func BuildDeploy(contract *CompiledContract, args []interface{}, deps ...[]byte) (*Deployment, error) {
	return build(contract, nil, args, deps)
}

// BuildDeploy2 composes a create2 deployment with the given salt
func BuildDeploy2(contract *CompiledContract, salt [32]byte, args []interface{},
	deps ...[]byte) (*Deployment, error) {
	return build(contract, &salt, args, deps)
}

// Address returns the address the deployment creates given the sender and,
// for create deployments, its deployment nonce.  A nil nonce is taken as zero.
func (d *Deployment) Address(sender ethCommon.Address, deploymentNonce *big.Int) ethCommon.Address {
	if d.Salt != nil {
		return Create2Address(sender, *d.Salt, d.BytecodeHash, d.Input)
	}
	return CreateAddress(sender, deploymentNonce)
}

// CreateAddress returns the address of a contract created with create by
// sender with its deployment nonce.  A nil nonce is taken as zero.
func CreateAddress(sender ethCommon.Address, deploymentNonce *big.Int) ethCommon.Address {
	if deploymentNonce == nil {
		deploymentNonce = new(big.Int)
	}
	hash := crypto.Keccak256(createPrefix,
		ethCommon.LeftPadBytes(sender.Bytes(), 32),          //nolint:gomnd
		ethCommon.LeftPadBytes(deploymentNonce.Bytes(), 32)) //nolint:gomnd
	return ethCommon.BytesToAddress(hash[12:])
}

// Create2Address returns the address of a contract created with create2
func Create2Address(sender ethCommon.Address, salt [32]byte, bytecodeHash ethCommon.Hash,
	input []byte) ethCommon.Address {
	hash := crypto.Keccak256(create2Prefix,
		ethCommon.LeftPadBytes(sender.Bytes(), 32), //nolint:gomnd
		salt[:],
		bytecodeHash.Bytes(),
		crypto.Keccak256(input))
	return ethCommon.BytesToAddress(hash[12:])
}
