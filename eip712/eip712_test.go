package eip712

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"math/big"
	"testing"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hermeznetwork/zkwallet/common"
	"github.com/hermeznetwork/zkwallet/signer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyHex = "7e5bfb82febc4c2c8529167104271ceec190eafdca277314912eaabdb67c6e5f"

func testSigner(t *testing.T) *signer.PrivateKeySigner {
	s, err := signer.NewPrivateKeySignerFromHex(testKeyHex)
	require.NoError(t, err)
	return s
}

func testBytecode(words int) []byte {
	return bytes.Repeat([]byte{0xab}, words*32)
}

func testTx(from ethCommon.Address) *Transaction {
	to := ethCommon.HexToAddress("0x00000000000000000000000000000000000000bb")
	return &Transaction{
		To:                   &to,
		From:                 from,
		Nonce:                big.NewInt(7),
		GasLimit:             big.NewInt(300000),
		MaxFeePerGas:         big.NewInt(250000000),
		MaxPriorityFeePerGas: big.NewInt(0),
		Value:                big.NewInt(1000),
		Data:                 []byte{0x01, 0x02},
		ChainID:              big.NewInt(270),
		Meta: &Meta{
			GasPerPubdata: big.NewInt(common.DefaultGasPerPubdataLimit),
		},
	}
}

func TestHashBytecode(t *testing.T) {
	code := testBytecode(3)
	h, err := HashBytecode(code)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x00, 0x00, 0x03}, h[:4])
	sum := sha256.Sum256(code)
	assert.Equal(t, sum[4:], h[4:])

	_, err = HashBytecode(code[:95])
	assert.True(t, errors.Is(err, common.ErrMalformedEnvelope))
	_, err = HashBytecode(testBytecode(2))
	assert.True(t, errors.Is(err, common.ErrMalformedEnvelope))
	_, err = HashBytecode(nil)
	assert.True(t, errors.Is(err, common.ErrMalformedEnvelope))
	_, err = HashBytecode(testBytecode(1 << 16))
	assert.True(t, errors.Is(err, common.ErrMalformedEnvelope))
}

func TestValidate(t *testing.T) {
	s := testSigner(t)
	tx := testTx(s.Address())
	require.NoError(t, tx.Validate())

	missing := []func(tx *Transaction){
		func(tx *Transaction) { tx.To = nil },
		func(tx *Transaction) { tx.From = ethCommon.Address{} },
		func(tx *Transaction) { tx.Nonce = nil },
		func(tx *Transaction) { tx.GasLimit = nil },
		func(tx *Transaction) { tx.MaxFeePerGas = nil },
		func(tx *Transaction) { tx.MaxPriorityFeePerGas = nil },
		func(tx *Transaction) { tx.Value = nil },
		func(tx *Transaction) { tx.ChainID = nil },
		func(tx *Transaction) { tx.Meta = nil },
		func(tx *Transaction) { tx.Value = big.NewInt(-1) },
		func(tx *Transaction) { tx.MaxPriorityFeePerGas = big.NewInt(300000000) },
		func(tx *Transaction) { tx.Meta.FactoryDeps = [][]byte{testBytecode(2)} },
	}
	for i, f := range missing {
		cpy := tx.Copy()
		f(cpy)
		err := cpy.Validate()
		assert.True(t, errors.Is(err, common.ErrMalformedEnvelope), "case %d: %v", i, err)
		_, err = cpy.SigningHash()
		assert.Error(t, err)
	}

	// Paymaster input without a paymaster is rejected before any field is
	// required
	req := &Transaction{Meta: &Meta{PaymasterParams: &common.PaymasterParams{
		PaymasterInput: []byte{0x01},
	}}}
	err := req.ValidateRequest()
	assert.True(t, errors.Is(err, common.ErrInvalidPaymasterParams))
	req.Meta.PaymasterParams = nil
	assert.NoError(t, req.ValidateRequest())
}

func TestSigningHash(t *testing.T) {
	s := testSigner(t)
	tx := testTx(s.Address())
	h1, err := tx.SigningHash()
	require.NoError(t, err)
	h2, err := tx.Copy().SigningHash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	changes := []func(tx *Transaction){
		func(tx *Transaction) { tx.Nonce = big.NewInt(8) },
		func(tx *Transaction) { tx.Value = big.NewInt(1001) },
		func(tx *Transaction) { tx.GasLimit = big.NewInt(300001) },
		func(tx *Transaction) { tx.MaxFeePerGas = big.NewInt(250000001) },
		func(tx *Transaction) { tx.MaxPriorityFeePerGas = big.NewInt(1) },
		func(tx *Transaction) { tx.Data = []byte{0x01} },
		func(tx *Transaction) { to := ethCommon.HexToAddress("0xcc"); tx.To = &to },
		func(tx *Transaction) { tx.From = ethCommon.HexToAddress("0xdd") },
		func(tx *Transaction) { tx.Meta.GasPerPubdata = big.NewInt(800) },
		func(tx *Transaction) { tx.Meta.FactoryDeps = [][]byte{testBytecode(1)} },
		func(tx *Transaction) {
			tx.Meta.PaymasterParams = &common.PaymasterParams{
				Paymaster: ethCommon.HexToAddress("0xee"),
			}
		},
		// Domain separation
		func(tx *Transaction) { tx.ChainID = big.NewInt(280) },
	}
	seen := map[ethCommon.Hash]bool{h1: true}
	for i, f := range changes {
		cpy := tx.Copy()
		f(cpy)
		h, err := cpy.SigningHash()
		require.NoError(t, err)
		assert.False(t, seen[h], "case %d", i)
		seen[h] = true
	}

	// The factory deps order is part of the hash
	a := tx.Copy()
	a.Meta.FactoryDeps = [][]byte{testBytecode(1), testBytecode(3)}
	b := tx.Copy()
	b.Meta.FactoryDeps = [][]byte{testBytecode(3), testBytecode(1)}
	ha, err := a.SigningHash()
	require.NoError(t, err)
	hb, err := b.SigningHash()
	require.NoError(t, err)
	assert.NotEqual(t, ha, hb)
}

func TestSignEncodeDecode(t *testing.T) {
	s := testSigner(t)
	tx := testTx(s.Address())
	tx.Meta.FactoryDeps = [][]byte{testBytecode(1)}
	input, err := common.GeneralPaymasterInput(nil)
	require.NoError(t, err)
	tx.Meta.PaymasterParams = &common.PaymasterParams{
		Paymaster:      ethCommon.HexToAddress("0xee"),
		PaymasterInput: input,
	}

	stx, err := tx.Sign(context.Background(), s)
	require.NoError(t, err)
	addr, err := signer.RecoverAddress(stx.SigningHash().Bytes(), stx.Signature())
	require.NoError(t, err)
	assert.Equal(t, s.Address(), addr)

	raw, err := stx.Bytes()
	require.NoError(t, err)
	assert.Equal(t, byte(common.TxTypeEIP712), raw[0])

	decoded, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, stx.Hash(), decoded.Hash())
	assert.Equal(t, stx.SigningHash(), decoded.SigningHash())
	assert.Equal(t, stx.Signature(), decoded.Signature())
	raw2, err := decoded.Bytes()
	require.NoError(t, err)
	assert.Equal(t, raw, raw2)
	dtx := decoded.Transaction()
	assert.Equal(t, tx.From, dtx.From)
	assert.Equal(t, *tx.To, *dtx.To)
	assert.True(t, tx.PaymasterParams().Equal(dtx.PaymasterParams()))
	assert.Nil(t, dtx.Meta.CustomSignature)

	// Mutating the source doesn't affect the signed transaction
	tx.Value = big.NewInt(5)
	assert.Equal(t, big.NewInt(1000), stx.Transaction().Value)

	// The hash binds the signature
	expected := crypto.Keccak256Hash(stx.SigningHash().Bytes(),
		crypto.Keccak256(stx.Signature().EthereumBytes()))
	assert.Equal(t, expected, stx.Hash())

	_, err = Decode(raw[1:])
	assert.True(t, errors.Is(err, common.ErrMalformedEnvelope))
	_, err = Decode(append([]byte{common.TxTypeEIP712}, 0xc0))
	assert.True(t, errors.Is(err, common.ErrMalformedEnvelope))
}

func TestSignWrongSigner(t *testing.T) {
	s := testSigner(t)
	tx := testTx(ethCommon.HexToAddress("0xdd"))
	_, err := tx.Sign(context.Background(), s)
	assert.True(t, errors.Is(err, common.ErrSigningFailed))
}

func TestCustomSignature(t *testing.T) {
	tx := testTx(ethCommon.HexToAddress("0xdd"))
	_, err := NewSignedTransaction(tx, nil)
	assert.True(t, errors.Is(err, common.ErrMalformedEnvelope))

	tx.Meta.CustomSignature = []byte{0x0a, 0x0b}
	stx, err := NewSignedTransaction(tx, nil)
	require.NoError(t, err)
	raw, err := stx.Bytes()
	require.NoError(t, err)
	decoded, err := Decode(raw)
	require.NoError(t, err)
	assert.Nil(t, decoded.Signature())
	assert.Equal(t, []byte{0x0a, 0x0b}, decoded.Transaction().Meta.CustomSignature)
	assert.Equal(t, stx.Hash(), decoded.Hash())
}
