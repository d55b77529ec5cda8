package deployer

import (
	"errors"
	"math/big"
	"testing"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hermeznetwork/zkwallet/common"
	"github.com/hermeznetwork/zkwallet/eth/contracts/zksync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSender = ethCommon.HexToAddress("0x36615Cf349d7F6344891B1e7CA7C72883F5dc049")

func TestLoadCompiledContract(t *testing.T) {
	greeter, err := LoadCompiledContract("testdata/greeter_combined.json")
	require.NoError(t, err)
	assert.Equal(t, 96, len(greeter.Bin))
	_, ok := greeter.ABI.Methods["greet"]
	assert.True(t, ok)

	_, err = ParseCompiledContract([]byte(`{"abi":[],"bin":"0x0102"}`))
	assert.True(t, errors.Is(err, common.ErrMalformedEnvelope))
	_, err = ParseCompiledContract([]byte(`{"abi":[],"bin":"zz"}`))
	assert.Error(t, err)
	_, err = LoadCompiledContract("testdata/missing.json")
	assert.Error(t, err)
}

func TestParseConstructorArgs(t *testing.T) {
	contract, err := LoadCompiledContract("testdata/import_combined.json")
	require.NoError(t, err)
	args, err := ParseConstructorArgs(contract.ABI, []string{
		testSender.Hex(), "10", "-5", "true", "0x01020304", "0xff",
	})
	require.NoError(t, err)
	assert.Equal(t, testSender, args[0])
	assert.Equal(t, uint8(10), args[1])
	assert.Equal(t, big.NewInt(-5), args[2])
	assert.Equal(t, true, args[3])
	assert.Equal(t, [4]byte{1, 2, 3, 4}, args[4])
	assert.Equal(t, []byte{0xff}, args[5])
	_, err = contract.ConstructorInput(args...)
	require.NoError(t, err)

	bad := [][]string{
		{"0x12", "10", "-5", "true", "0x01020304", "0xff"},
		{testSender.Hex(), "256", "-5", "true", "0x01020304", "0xff"},
		{testSender.Hex(), "-1", "-5", "true", "0x01020304", "0xff"},
		{testSender.Hex(), "10", "x", "true", "0x01020304", "0xff"},
		{testSender.Hex(), "10", "-5", "maybe", "0x01020304", "0xff"},
		{testSender.Hex(), "10", "-5", "true", "0x0102", "0xff"},
		{testSender.Hex(), "10"},
	}
	for i, b := range bad {
		_, err := ParseConstructorArgs(contract.ABI, b)
		assert.True(t, errors.Is(err, common.ErrMalformedEnvelope), "case %d", i)
	}
}

func TestBuildDeploy(t *testing.T) {
	greeter, err := LoadCompiledContract("testdata/greeter_combined.json")
	require.NoError(t, err)
	counter, err := LoadCompiledContract("testdata/import_combined.json")
	require.NoError(t, err)
	args, err := ParseConstructorArgs(greeter.ABI, []string{"Hey"})
	require.NoError(t, err)

	d, err := BuildDeploy(greeter, args, counter.Bin)
	require.NoError(t, err)
	assert.Equal(t, common.ContractDeployerAddress, *d.Tx.To)
	require.Equal(t, 2, len(d.Tx.FactoryDeps()))
	assert.Equal(t, greeter.Bin, d.Tx.FactoryDeps()[0])
	assert.Equal(t, counter.Bin, d.Tx.FactoryDeps()[1])

	method, err := zksync.ContractDeployer.MethodById(d.Tx.Data[:4])
	require.NoError(t, err)
	assert.Equal(t, "create", method.Name)
	values, err := method.Inputs.Unpack(d.Tx.Data[4:])
	require.NoError(t, err)
	assert.Equal(t, [32]byte{}, values[0])
	assert.Equal(t, [32]byte(d.BytecodeHash), values[1])
	assert.Equal(t, d.Input, values[2])
	unpacked, err := greeter.ABI.Constructor.Inputs.Unpack(d.Input)
	require.NoError(t, err)
	assert.Equal(t, "Hey", unpacked[0])

	// Missing constructor args
	_, err = BuildDeploy(greeter, nil)
	assert.True(t, errors.Is(err, common.ErrMalformedEnvelope))

	var salt [32]byte
	salt[31] = 1
	d2, err := BuildDeploy2(greeter, salt, args)
	require.NoError(t, err)
	method, err = zksync.ContractDeployer.MethodById(d2.Tx.Data[:4])
	require.NoError(t, err)
	assert.Equal(t, "create2", method.Name)
	assert.Equal(t, Create2Address(testSender, salt, d2.BytecodeHash, d2.Input),
		d2.Address(testSender, nil))
	assert.Equal(t, CreateAddress(testSender, big.NewInt(3)), d.Address(testSender, big.NewInt(3)))
	assert.Equal(t, CreateAddress(testSender, big.NewInt(0)), d.Address(testSender, nil))
}

func TestCreateAddress(t *testing.T) {
	prefix := crypto.Keccak256([]byte("zksyncCreate"))
	expected := crypto.Keccak256(prefix,
		ethCommon.LeftPadBytes(testSender.Bytes(), 32),
		ethCommon.LeftPadBytes([]byte{1}, 32))
	assert.Equal(t, ethCommon.BytesToAddress(expected[12:]), CreateAddress(testSender, big.NewInt(1)))
	assert.NotEqual(t, CreateAddress(testSender, big.NewInt(1)), CreateAddress(testSender, big.NewInt(2)))
	assert.Equal(t, CreateAddress(testSender, big.NewInt(0)), CreateAddress(testSender, new(big.Int)))
	assert.Equal(t, CreateAddress(testSender, big.NewInt(0)), CreateAddress(testSender, nil))

	var salt [32]byte
	h := ethCommon.HexToHash("0x0100000100000000000000000000000000000000000000000000000000000000")
	a1 := Create2Address(testSender, salt, h, nil)
	a2 := Create2Address(testSender, salt, h, []byte{})
	assert.Equal(t, a1, a2)
	salt[0] = 1
	assert.NotEqual(t, a1, Create2Address(testSender, salt, h, nil))
}
