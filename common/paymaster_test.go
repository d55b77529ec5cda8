package common

import (
	"encoding/hex"
	"errors"
	"math/big"
	"testing"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymasterParamsValidate(t *testing.T) {
	var nilParams *PaymasterParams
	assert.NoError(t, nilParams.Validate())
	assert.True(t, nilParams.IsEmpty())

	p := &PaymasterParams{PaymasterInput: []byte{0x01}}
	assert.True(t, errors.Is(p.Validate(), ErrInvalidPaymasterParams))

	p.Paymaster = ethCommon.HexToAddress("0x1000000000000000000000000000000000000001")
	assert.NoError(t, p.Validate())
	assert.False(t, p.IsEmpty())

	cpy := p.Copy()
	assert.True(t, cpy.Equal(p))
	cpy.PaymasterInput[0] = 0x02
	assert.False(t, cpy.Equal(p))
	assert.True(t, (&PaymasterParams{}).Equal(nil))
}

func TestPaymasterInputs(t *testing.T) {
	input, err := GeneralPaymasterInput(nil)
	require.NoError(t, err)
	// general(bytes) selector
	assert.Equal(t, "8c5a3445", hex.EncodeToString(input[:4]))

	token := ethCommon.HexToAddress("0x2000000000000000000000000000000000000002")
	input, err = ApprovalBasedPaymasterInput(token, big.NewInt(1), []byte{})
	require.NoError(t, err)
	// approvalBased(address,uint256,bytes) selector
	assert.Equal(t, "949431dc", hex.EncodeToString(input[:4]))
	assert.Equal(t, token.Bytes(), input[4+12:4+32])
}
