package eip712

import (
	"crypto/sha256"
	"encoding/binary"
	"math"

	ethCommon "github.com/ethereum/go-ethereum/common"
)

const (
	bytecodeWordSize = 32
	bytecodeVersion  = 1
)

// HashBytecode returns the versioned hash the L2 uses to identify a
// contract bytecode: version byte, zero byte, the length in 32 byte words as
// a big endian uint16 and the last 28 bytes of the sha256 of the code.
func HashBytecode(code []byte) (ethCommon.Hash, error) {
	var h ethCommon.Hash
	if len(code) == 0 {
		return h, malformed("empty bytecode")
	}
	if len(code)%bytecodeWordSize != 0 {
		return h, malformed("bytecode length %d is not a multiple of %d",
			len(code), bytecodeWordSize)
	}
	words := len(code) / bytecodeWordSize
	if words > math.MaxUint16 {
		return h, malformed("bytecode of %d words is too long", words)
	}
	if words%2 == 0 {
		return h, malformed("bytecode length in words (%d) must be odd", words)
	}
	sum := sha256.Sum256(code)
	copy(h[4:], sum[4:])
	h[0] = bytecodeVersion
	binary.BigEndian.PutUint16(h[2:4], uint16(words))
	return h, nil
}
