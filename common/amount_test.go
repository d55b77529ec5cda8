package common

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmounts(t *testing.T) {
	sum, err := AddAmounts(big.NewInt(10), big.NewInt(5))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(15), sum)

	diff, err := SubAmounts(big.NewInt(10), big.NewInt(10))
	require.NoError(t, err)
	assert.Equal(t, 0, diff.Sign())

	_, err = SubAmounts(big.NewInt(10), big.NewInt(11))
	assert.True(t, errors.Is(err, ErrNegativeAmount))

	maxU256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	_, err = AddAmounts(maxU256, big.NewInt(1))
	assert.True(t, errors.Is(err, ErrAmountOverflow))

	_, err = MulAmount(maxU256, 2)
	assert.True(t, errors.Is(err, ErrAmountOverflow))

	prod, err := MulAmount(big.NewInt(21000), 3)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(63000), prod)

	_, err = AddAmounts(big.NewInt(-1), big.NewInt(1))
	assert.True(t, errors.Is(err, ErrNegativeAmount))

	// nil counts as zero
	sum, err = AddAmounts(nil, big.NewInt(7))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(7), sum)
}

func TestParseAmount(t *testing.T) {
	a, err := ParseAmount("0.01")
	require.NoError(t, err)
	assert.Equal(t, "10000000000000000", a.String())

	a, err = ParseAmount("1")
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", a.String())

	_, err = ParseAmount("0.0000000000000000001")
	assert.Error(t, err)
	_, err = ParseAmount("abc")
	assert.Error(t, err)
	_, err = ParseAmount("-1")
	assert.True(t, errors.Is(err, ErrNegativeAmount))
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "0", FormatAmount(nil))
	assert.Equal(t, "0.01", FormatAmount(big.NewInt(10000000000000000)))
	assert.Equal(t, "1.5", FormatAmount(big.NewInt(1500000000000000000)))
	assert.Equal(t, "0.000000000000000001", FormatAmount(big.NewInt(1)))

	a, err := ParseAmount("123.456")
	require.NoError(t, err)
	assert.Equal(t, "123.456", FormatAmount(a))
}
