package journal

import (
	"fmt"
	"math/big"

	"github.com/hermeznetwork/tracerr"
)

// BigIntNullMeddler encodes or decodes a nullable *big.Int as a decimal
// string
type BigIntNullMeddler struct{}

// PreRead is called before a Scan operation for fields that have the BigIntNullMeddler
func (b BigIntNullMeddler) PreRead(fieldAddr interface{}) (scanTarget interface{}, err error) {
	return &fieldAddr, nil
}

// PostRead is called after a Scan operation for fields that have the BigIntNullMeddler
func (b BigIntNullMeddler) PostRead(fieldPtr, scanTarget interface{}) error {
	field := fieldPtr.(**big.Int)
	ptrPtr := scanTarget.(*interface{})
	var s string
	switch v := (*ptrPtr).(type) {
	case nil:
		// null column, so set target to be zero value
		*field = nil
		return nil
	case []byte:
		s = string(v)
	case string:
		s = v
	case int64:
		*field = big.NewInt(v)
		return nil
	default:
		return tracerr.Wrap(fmt.Errorf("BigIntNullMeddler.PostRead: unexpected type %T", v))
	}
	var ok bool
	*field, ok = new(big.Int).SetString(s, 10)
	if !ok {
		return tracerr.Wrap(fmt.Errorf("big.Int.SetString failed on \"%v\"", s))
	}
	return nil
}

// PreWrite is called before an Insert or Update operation for fields that have the BigIntNullMeddler
func (b BigIntNullMeddler) PreWrite(fieldPtr interface{}) (saveValue interface{}, err error) {
	field := fieldPtr.(*big.Int)
	if field == nil {
		return nil, nil
	}
	return field.String(), nil
}
