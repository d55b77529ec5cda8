package common

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/hermeznetwork/tracerr"
)

// PaymasterParams are the optional envelope fields that let a paymaster
// contract sponsor the fees of a transaction
type PaymasterParams struct {
	Paymaster      ethCommon.Address
	PaymasterInput []byte
}

// Validate checks the shape of the params: an input without a paymaster
// address is rejected.
func (p *PaymasterParams) Validate() error {
	if p == nil {
		return nil
	}
	if p.Paymaster == (ethCommon.Address{}) && len(p.PaymasterInput) > 0 {
		return tracerr.Wrap(fmt.Errorf("%w: input of %d bytes without paymaster address",
			ErrInvalidPaymasterParams, len(p.PaymasterInput)))
	}
	return nil
}

// IsEmpty returns true if no paymaster is set
func (p *PaymasterParams) IsEmpty() bool {
	return p == nil || (p.Paymaster == (ethCommon.Address{}) && len(p.PaymasterInput) == 0)
}

// Copy returns a deep copy of the params
func (p *PaymasterParams) Copy() *PaymasterParams {
	if p == nil {
		return nil
	}
	return &PaymasterParams{
		Paymaster:      p.Paymaster,
		PaymasterInput: ethCommon.CopyBytes(p.PaymasterInput),
	}
}

// Equal compares two params
func (p *PaymasterParams) Equal(o *PaymasterParams) bool {
	if p.IsEmpty() || o.IsEmpty() {
		return p.IsEmpty() == o.IsEmpty()
	}
	return p.Paymaster == o.Paymaster && bytes.Equal(p.PaymasterInput, o.PaymasterInput)
}

const paymasterFlowABIJSON = `[
	{"type":"function","name":"general","inputs":[{"name":"input","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"approvalBased","inputs":[
		{"name":"_token","type":"address"},
		{"name":"_minAllowance","type":"uint256"},
		{"name":"_innerInput","type":"bytes"}],"outputs":[]}
]`

var paymasterFlowABI = mustParseABI(paymasterFlowABIJSON)

func mustParseABI(s string) abi.ABI {
	a, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return a
}

// GeneralPaymasterInput encodes the input of the general paymaster flow
func GeneralPaymasterInput(innerInput []byte) ([]byte, error) {
	if innerInput == nil {
		innerInput = []byte{}
	}
	input, err := paymasterFlowABI.Pack("general", innerInput)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return input, nil
}

// ApprovalBasedPaymasterInput encodes the input of the approval based
// paymaster flow, where the paymaster is allowed to take minAllowance of
// token from the sender.
func ApprovalBasedPaymasterInput(token ethCommon.Address, minAllowance *big.Int,
	innerInput []byte) ([]byte, error) {
	if innerInput == nil {
		innerInput = []byte{}
	}
	input, err := paymasterFlowABI.Pack("approvalBased", token, minAllowance, innerInput)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return input, nil
}
