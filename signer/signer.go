/*
Package signer adapts the different ways of holding a key to the single
capability the wallet needs: signing a 32 byte hash on behalf of an address.
Every adapter serializes its own signing calls.
*/
package signer

import (
	"context"
	"fmt"
	"math/big"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hermeznetwork/tracerr"
	"github.com/hermeznetwork/zkwallet/common"
)

// Signer signs hashes on behalf of an address
type Signer interface {
	// Address is the address whose key produces the signatures
	Address() ethCommon.Address
	// SignHash signs a 32 byte hash.  Blocking.
	SignHash(ctx context.Context, hash []byte) (*common.Signature, error)
}

func signingFailed(format string, args ...interface{}) error {
	return tracerr.Wrap(fmt.Errorf("%w: %s", common.ErrSigningFailed, fmt.Sprintf(format, args...)))
}

func checkHash(hash []byte) error {
	if len(hash) != ethCommon.HashLength {
		return signingFailed("hash of %d bytes, expected %d", len(hash), ethCommon.HashLength)
	}
	return nil
}

// RecoverAddress returns the address whose key produced sig over hash
func RecoverAddress(hash []byte, sig *common.Signature) (ethCommon.Address, error) {
	pub, err := crypto.SigToPub(hash, sig.Bytes())
	if err != nil {
		return ethCommon.Address{}, tracerr.Wrap(err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// SignTx signs a standard transaction with s for the given chain
func SignTx(ctx context.Context, s Signer, tx *types.Transaction,
	chainID *big.Int) (*types.Transaction, error) {
	txSigner := types.LatestSignerForChainID(chainID)
	hash := txSigner.Hash(tx)
	sig, err := s.SignHash(ctx, hash.Bytes())
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	signed, err := tx.WithSignature(txSigner, sig.Bytes())
	if err != nil {
		return nil, signingFailed("%v", err)
	}
	return signed, nil
}
