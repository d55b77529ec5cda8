package main

import (
	"testing"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKey(t *testing.T) {
	mnemonic := "test test test test test test test test test test test junk"
	sk, err := deriveKey(mnemonic, defaultDerivationPath)
	require.NoError(t, err)
	assert.Equal(t, ethCommon.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"),
		crypto.PubkeyToAddress(sk.PublicKey))

	sk, err = deriveKey(mnemonic, "m/44'/60'/0'/0/1")
	require.NoError(t, err)
	assert.Equal(t, ethCommon.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"),
		crypto.PubkeyToAddress(sk.PublicKey))

	_, err = deriveKey("not a mnemonic", defaultDerivationPath)
	assert.Error(t, err)
	_, err = deriveKey(mnemonic, "m/x")
	assert.Error(t, err)
}
