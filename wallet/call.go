package wallet

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/hermeznetwork/tracerr"
	"github.com/hermeznetwork/zkwallet/eth"
)

// CallRequest is a read only call to a contract method
type CallRequest struct {
	to     ethCommon.Address
	method abi.Method
	args   []interface{}
	onL1   bool
}

// NewCallRequest creates a call to method of the contract at to
func NewCallRequest(to ethCommon.Address, method abi.Method, args ...interface{}) *CallRequest {
	return &CallRequest{to: to, method: method, args: args}
}

// NewSignatureCallRequest creates a call to the method described by a
// signature such as "balanceOf(address)(uint256)"
func NewSignatureCallRequest(to ethCommon.Address, signature string,
	args ...interface{}) (*CallRequest, error) {
	method, err := ParseSignature(signature)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return NewCallRequest(to, method, args...), nil
}

// L1 makes the call on the L1
func (r *CallRequest) L1() *CallRequest {
	r.onL1 = true
	return r
}

// Call performs a read only call and returns the decoded outputs
func (w *Wallet) Call(ctx context.Context, req *CallRequest) ([]interface{}, error) {
	client, from := eth.EthereumInterface(w.l2), w.Address()
	if req.onL1 {
		client, from = w.l1, w.L1Address()
	}
	return w.callFrom(ctx, client, from, req.to, req.method, req.args...)
}

func (w *Wallet) call(ctx context.Context, client eth.EthereumInterface, to ethCommon.Address,
	method abi.Method, args ...interface{}) ([]interface{}, error) {
	return w.callFrom(ctx, client, ethCommon.Address{}, to, method, args...)
}

func (w *Wallet) callFrom(ctx context.Context, client eth.EthereumInterface, from, to ethCommon.Address,
	method abi.Method, args ...interface{}) ([]interface{}, error) {
	input, err := method.Inputs.Pack(args...)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	data := append(append([]byte{}, method.ID...), input...)
	res, err := client.CallContract(ctx, ethereum.CallMsg{From: from, To: &to, Data: data}, nil)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	values, err := method.Outputs.Unpack(res)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return values, nil
}

// ParseSignature parses a method signature of the form
// "name(inputs)(outputs)", where the outputs are optional.  Tuples are not
// supported.
func ParseSignature(signature string) (abi.Method, error) {
	signature = strings.TrimSpace(signature)
	open := strings.IndexByte(signature, '(')
	if open <= 0 {
		return abi.Method{}, tracerr.Wrap(fmt.Errorf("invalid signature %q", signature))
	}
	name := signature[:open]
	rest := signature[open:]
	inputs, rest, err := parseTypeList(rest)
	if err != nil {
		return abi.Method{}, tracerr.Wrap(fmt.Errorf("invalid signature %q: %w", signature, err))
	}
	var outputs abi.Arguments
	if rest != "" {
		if outputs, rest, err = parseTypeList(rest); err != nil {
			return abi.Method{}, tracerr.Wrap(fmt.Errorf("invalid signature %q: %w", signature, err))
		}
	}
	if rest != "" {
		return abi.Method{}, tracerr.Wrap(fmt.Errorf("invalid signature %q: trailing %q", signature, rest))
	}
	return abi.NewMethod(name, name, abi.Function, "view", false, false, inputs, outputs), nil
}

// parseTypeList parses a parenthesized list of types and returns the rest
func parseTypeList(s string) (abi.Arguments, string, error) {
	if !strings.HasPrefix(s, "(") {
		return nil, "", fmt.Errorf("expected (")
	}
	end := strings.IndexByte(s, ')')
	if end < 0 {
		return nil, "", fmt.Errorf("missing )")
	}
	list := strings.TrimSpace(s[1:end])
	if strings.ContainsRune(list, '(') {
		return nil, "", fmt.Errorf("tuples are not supported")
	}
	args := abi.Arguments{}
	if list != "" {
		for _, typeName := range strings.Split(list, ",") {
			typeName = strings.TrimSpace(typeName)
			if i := strings.IndexByte(typeName, ' '); i >= 0 {
				typeName = typeName[:i]
			}
			t, err := abi.NewType(typeName, "", nil)
			if err != nil {
				return nil, "", err
			}
			args = append(args, abi.Argument{Type: t})
		}
	}
	return args, s[end+1:], nil
}
