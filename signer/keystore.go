package signer

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	ethKeystore "github.com/ethereum/go-ethereum/accounts/keystore"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/hermeznetwork/tracerr"
	"github.com/hermeznetwork/zkwallet/common"
)

// KeystoreConfig is the configuration of a keystore signer
type KeystoreConfig struct {
	Path     string
	Password string
}

// KeystoreSigner signs with an account of an encrypted go-ethereum keystore.
// The key never leaves the keystore.
type KeystoreSigner struct {
	mutex   sync.Mutex
	ks      *ethKeystore.KeyStore
	account accounts.Account
}

// NewKeystoreSigner opens the keystore at cfg.Path and unlocks the account
// of address with cfg.Password
func NewKeystoreSigner(cfg KeystoreConfig, address ethCommon.Address) (*KeystoreSigner, error) {
	ks := ethKeystore.NewKeyStore(cfg.Path, ethKeystore.LightScryptN, ethKeystore.LightScryptP)
	return NewKeystoreSignerFromKeyStore(ks, address, cfg.Password)
}

// NewKeystoreSignerFromKeyStore uses an already opened keystore
func NewKeystoreSignerFromKeyStore(ks *ethKeystore.KeyStore, address ethCommon.Address,
	password string) (*KeystoreSigner, error) {
	account, err := ks.Find(accounts.Account{Address: address})
	if err != nil {
		return nil, signingFailed("account %v: %v", address.Hex(), err)
	}
	if err := ks.Unlock(account, password); err != nil {
		return nil, signingFailed("unlock %v: %v", address.Hex(), err)
	}
	return &KeystoreSigner{ks: ks, account: account}, nil
}

// Address returns the address of the keystore account
func (s *KeystoreSigner) Address() ethCommon.Address {
	return s.account.Address
}

// SignHash signs a 32 byte hash
func (s *KeystoreSigner) SignHash(ctx context.Context, hash []byte) (*common.Signature, error) {
	if err := checkHash(hash); err != nil {
		return nil, tracerr.Wrap(err)
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	sigBytes, err := s.ks.SignHash(s.account, hash)
	if err != nil {
		return nil, signingFailed("%v", err)
	}
	sig, err := common.SignatureFromBytes(sigBytes)
	if err != nil {
		return nil, signingFailed("%v", err)
	}
	return sig, nil
}
