package common

import (
	"fmt"
	"math/big"

	"github.com/hermeznetwork/tracerr"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// checkAmount verifies that the amount is a valid non negative 256 bit value
func checkAmount(a *big.Int) error {
	if a == nil {
		return nil
	}
	if a.Sign() < 0 {
		return tracerr.Wrap(fmt.Errorf("%w: %v", ErrNegativeAmount, a))
	}
	if _, overflow := uint256.FromBig(a); overflow {
		return tracerr.Wrap(fmt.Errorf("%w: %v", ErrAmountOverflow, a))
	}
	return nil
}

func toUint256(a *big.Int) (*uint256.Int, error) {
	if err := checkAmount(a); err != nil {
		return nil, err
	}
	if a == nil {
		return new(uint256.Int), nil
	}
	v, _ := uint256.FromBig(a)
	return v, nil
}

// AddAmounts returns a + b. A nil amount counts as zero.
func AddAmounts(a, b *big.Int) (*big.Int, error) {
	x, err := toUint256(a)
	if err != nil {
		return nil, err
	}
	y, err := toUint256(b)
	if err != nil {
		return nil, err
	}
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, tracerr.Wrap(fmt.Errorf("%w: %v + %v", ErrAmountOverflow, a, b))
	}
	return z.ToBig(), nil
}

// SubAmounts returns a - b, failing with ErrNegativeAmount if b > a.
func SubAmounts(a, b *big.Int) (*big.Int, error) {
	x, err := toUint256(a)
	if err != nil {
		return nil, err
	}
	y, err := toUint256(b)
	if err != nil {
		return nil, err
	}
	z, underflow := new(uint256.Int).SubOverflow(x, y)
	if underflow {
		return nil, tracerr.Wrap(fmt.Errorf("%w: %v - %v", ErrNegativeAmount, a, b))
	}
	return z.ToBig(), nil
}

// MulAmount returns a * n
func MulAmount(a *big.Int, n uint64) (*big.Int, error) {
	x, err := toUint256(a)
	if err != nil {
		return nil, err
	}
	z, overflow := new(uint256.Int).MulOverflow(x, uint256.NewInt(n))
	if overflow {
		return nil, tracerr.Wrap(fmt.Errorf("%w: %v * %v", ErrAmountOverflow, a, n))
	}
	return z.ToBig(), nil
}

// etherDecimals is the number of decimals of an ether amount in wei
const etherDecimals = 18

// ParseAmount parses a decimal amount expressed in ether units (for example
// "0.01") into wei.
func ParseAmount(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, tracerr.Wrap(fmt.Errorf("invalid amount %q: %w", s, err))
	}
	d = d.Shift(etherDecimals)
	if !d.Equal(d.Truncate(0)) {
		return nil, tracerr.Wrap(fmt.Errorf("amount %q has more than %v decimals", s, etherDecimals))
	}
	amount := d.BigInt()
	if err := checkAmount(amount); err != nil {
		return nil, err
	}
	return amount, nil
}

// FormatAmount formats an amount in wei as ether units, without trailing
// zeros.  A nil amount is "0".
func FormatAmount(a *big.Int) string {
	if a == nil {
		return "0"
	}
	return decimal.NewFromBigInt(a, -etherDecimals).String()
}
