package common

import (
	"fmt"
	"math/big"

	"github.com/hermeznetwork/tracerr"
)

// SignatureLength is the length of a serialized signature: R || S || V
const SignatureLength = 65

// Signature is a recoverable secp256k1 signature. V is the recovery id (0 or
// 1).
type Signature struct {
	R [32]byte
	S [32]byte
	V byte
}

// SignatureFromBytes parses a 65 byte R || S || V signature. V may be given
// either as a recovery id (0/1) or in the 27/28 form.
func SignatureFromBytes(b []byte) (*Signature, error) {
	if len(b) != SignatureLength {
		return nil, tracerr.Wrap(fmt.Errorf("invalid signature length %d", len(b)))
	}
	var sig Signature
	copy(sig.R[:], b[:32])
	copy(sig.S[:], b[32:64])
	sig.V = b[64]
	if sig.V >= 27 { //nolint:gomnd
		sig.V -= 27
	}
	if sig.V > 1 {
		return nil, tracerr.Wrap(fmt.Errorf("invalid signature recovery id %d", b[64]))
	}
	return &sig, nil
}

// Bytes returns R || S || V with V as the recovery id, the format used by
// go-ethereum crypto.
func (s *Signature) Bytes() []byte {
	b := make([]byte, SignatureLength)
	copy(b[:32], s.R[:])
	copy(b[32:64], s.S[:])
	b[64] = s.V
	return b
}

// EthereumBytes returns R || S || V with V in the 27/28 form.
func (s *Signature) EthereumBytes() []byte {
	b := s.Bytes()
	b[64] += 27 //nolint:gomnd
	return b
}

// RBig returns R as an integer
func (s *Signature) RBig() *big.Int { return new(big.Int).SetBytes(s.R[:]) }

// SBig returns S as an integer
func (s *Signature) SBig() *big.Int { return new(big.Int).SetBytes(s.S[:]) }
