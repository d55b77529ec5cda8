package deployer

import (
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/hermeznetwork/tracerr"
	"github.com/hermeznetwork/zkwallet/common"
)

// ParseConstructorArgs converts textual constructor arguments to the values
// expected by the ABI packer
func ParseConstructorArgs(contractABI abi.ABI, args []string) ([]interface{}, error) {
	return ParseArgs(contractABI.Constructor.Inputs, args)
}

// ParseArgs converts textual arguments to the values expected by the ABI
// packer for inputs.  Supported types are string, address, bool, intN,
// uintN, bytes and bytesN.
func ParseArgs(inputs abi.Arguments, args []string) ([]interface{}, error) {
	if len(inputs) != len(args) {
		return nil, tracerr.Wrap(fmt.Errorf("%w: expected %d arguments, got %d",
			common.ErrMalformedEnvelope, len(inputs), len(args)))
	}
	values := make([]interface{}, len(args))
	for i, input := range inputs {
		v, err := parseArg(input.Type, strings.TrimSpace(args[i]))
		if err != nil {
			return nil, tracerr.Wrap(fmt.Errorf("%w: argument %d (%v): %v",
				common.ErrMalformedEnvelope, i, input.Type.String(), err))
		}
		values[i] = v
	}
	return values, nil
}

func parseArg(t abi.Type, s string) (interface{}, error) {
	switch t.T {
	case abi.StringTy:
		return s, nil
	case abi.AddressTy:
		if !ethCommon.IsHexAddress(s) {
			return nil, fmt.Errorf("invalid address %q", s)
		}
		return ethCommon.HexToAddress(s), nil
	case abi.BoolTy:
		return strconv.ParseBool(s)
	case abi.IntTy, abi.UintTy:
		n, ok := new(big.Int).SetString(s, 0)
		if !ok {
			return nil, fmt.Errorf("invalid integer %q", s)
		}
		if t.T == abi.UintTy && n.Sign() < 0 {
			return nil, fmt.Errorf("negative value %v", n)
		}
		if !fits(n, t) {
			return nil, fmt.Errorf("%v doesn't fit in %v", n, t.String())
		}
		goType := t.GetType()
		if goType.Kind() == reflect.Ptr {
			return n, nil
		}
		if t.T == abi.UintTy {
			return reflect.ValueOf(n.Uint64()).Convert(goType).Interface(), nil
		}
		return reflect.ValueOf(n.Int64()).Convert(goType).Interface(), nil
	case abi.BytesTy:
		return hexutil.Decode(s)
	case abi.FixedBytesTy:
		b, err := hexutil.Decode(s)
		if err != nil {
			return nil, err
		}
		if len(b) != t.Size {
			return nil, fmt.Errorf("expected %d bytes, got %d", t.Size, len(b))
		}
		arr := reflect.New(t.GetType()).Elem()
		reflect.Copy(arr, reflect.ValueOf(b))
		return arr.Interface(), nil
	default:
		return nil, fmt.Errorf("unsupported type %v", t.String())
	}
}

func fits(n *big.Int, t abi.Type) bool {
	if t.T == abi.UintTy {
		return n.BitLen() <= t.Size
	}
	limit := new(big.Int).Lsh(big.NewInt(1), uint(t.Size-1))
	if n.Sign() < 0 {
		return n.Cmp(new(big.Int).Neg(limit)) >= 0
	}
	return n.Cmp(limit) < 0
}
