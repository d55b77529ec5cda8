package signer

import (
	"context"
	"crypto/ecdsa"
	"sync"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hermeznetwork/tracerr"
	"github.com/hermeznetwork/zkwallet/common"
)

// PrivateKeySigner signs with an in-process private key
type PrivateKeySigner struct {
	mutex   sync.Mutex
	key     *ecdsa.PrivateKey
	address ethCommon.Address
}

// NewPrivateKeySigner creates a PrivateKeySigner from a key
func NewPrivateKeySigner(key *ecdsa.PrivateKey) *PrivateKeySigner {
	return &PrivateKeySigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// NewPrivateKeySignerFromHex creates a PrivateKeySigner from a hex encoded
// key, with or without the 0x prefix
func NewPrivateKeySignerFromHex(hexKey string) (*PrivateKeySigner, error) {
	if len(hexKey) >= 2 && hexKey[:2] == "0x" {
		hexKey = hexKey[2:]
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, signingFailed("invalid private key: %v", err)
	}
	return NewPrivateKeySigner(key), nil
}

// Address returns the address of the key
func (s *PrivateKeySigner) Address() ethCommon.Address {
	return s.address
}

// SignHash signs a 32 byte hash
func (s *PrivateKeySigner) SignHash(ctx context.Context, hash []byte) (*common.Signature, error) {
	if err := checkHash(hash); err != nil {
		return nil, tracerr.Wrap(err)
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	sigBytes, err := crypto.Sign(hash, s.key)
	if err != nil {
		return nil, signingFailed("%v", err)
	}
	sig, err := common.SignatureFromBytes(sigBytes)
	if err != nil {
		return nil, signingFailed("%v", err)
	}
	return sig, nil
}
