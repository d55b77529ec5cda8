package eip712

import (
	"bytes"
	"context"
	"fmt"
	"math/big"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/hermeznetwork/tracerr"
	"github.com/hermeznetwork/zkwallet/common"
	"github.com/hermeznetwork/zkwallet/signer"
)

// SignedTransaction is a complete transaction together with its signature.
// It's immutable: the transaction and the signature are copied on
// construction and on access.
type SignedTransaction struct {
	tx          *Transaction
	sig         *common.Signature
	signingHash ethCommon.Hash
}

// NewSignedTransaction validates the transaction and binds it to the
// signature.  sig may be nil only if the transaction carries a custom
// signature.
func NewSignedTransaction(tx *Transaction, sig *common.Signature) (*SignedTransaction, error) {
	signingHash, err := tx.SigningHash()
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	if sig == nil && (tx.Meta == nil || len(tx.Meta.CustomSignature) == 0) {
		return nil, tracerr.Wrap(fmt.Errorf("%w: missing signature", common.ErrMalformedEnvelope))
	}
	stx := &SignedTransaction{tx: tx.Copy(), signingHash: signingHash}
	if sig != nil {
		s := *sig
		stx.sig = &s
	}
	return stx, nil
}

// Sign computes the signing hash of the transaction and signs it with s,
// which must control the From address.
func (tx *Transaction) Sign(ctx context.Context, s signer.Signer) (*SignedTransaction, error) {
	if s.Address() != tx.From {
		return nil, tracerr.Wrap(fmt.Errorf("%w: signer %v can't sign for %v",
			common.ErrSigningFailed, s.Address().Hex(), tx.From.Hex()))
	}
	hash, err := tx.SigningHash()
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	sig, err := s.SignHash(ctx, hash.Bytes())
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return NewSignedTransaction(tx, sig)
}

// Transaction returns a copy of the signed transaction
func (stx *SignedTransaction) Transaction() *Transaction {
	return stx.tx.Copy()
}

// Signature returns a copy of the signature, or nil when the transaction
// uses a custom signature
func (stx *SignedTransaction) Signature() *common.Signature {
	if stx.sig == nil {
		return nil
	}
	s := *stx.sig
	return &s
}

// SigningHash returns the EIP-712 digest that was signed
func (stx *SignedTransaction) SigningHash() ethCommon.Hash {
	return stx.signingHash
}

// signatureBytes is the signature as it's placed in the custom signature
// field of the serialization
func (stx *SignedTransaction) signatureBytes() []byte {
	if stx.tx.Meta != nil && len(stx.tx.Meta.CustomSignature) > 0 {
		return ethCommon.CopyBytes(stx.tx.Meta.CustomSignature)
	}
	return stx.sig.EthereumBytes()
}

// Hash returns the L2 transaction hash: keccak256(signingHash ||
// keccak256(signature))
func (stx *SignedTransaction) Hash() ethCommon.Hash {
	return crypto.Keccak256Hash(stx.signingHash.Bytes(),
		crypto.Keccak256(stx.signatureBytes()))
}

type rlpTransaction struct {
	Nonce                *big.Int
	MaxPriorityFeePerGas *big.Int
	MaxFeePerGas         *big.Int
	GasLimit             *big.Int
	To                   []byte
	Value                *big.Int
	Data                 []byte
	V                    *big.Int
	R                    *big.Int
	S                    *big.Int
	ChainID              *big.Int
	From                 ethCommon.Address
	GasPerPubdata        *big.Int
	FactoryDeps          [][]byte
	CustomSignature      []byte
	PaymasterParams      [][]byte
}

// Bytes returns the serialization submitted to the node: the type byte
// followed by the RLP list of the fields
func (stx *SignedTransaction) Bytes() ([]byte, error) {
	tx := stx.tx
	enc := rlpTransaction{
		Nonce:                tx.Nonce,
		MaxPriorityFeePerGas: tx.MaxPriorityFeePerGas,
		MaxFeePerGas:         tx.MaxFeePerGas,
		GasLimit:             tx.GasLimit,
		To:                   tx.To.Bytes(),
		Value:                tx.Value,
		Data:                 tx.Data,
		ChainID:              tx.ChainID,
		From:                 tx.From,
		GasPerPubdata:        tx.GasPerPubdata(),
		FactoryDeps:          tx.FactoryDeps(),
		CustomSignature:      stx.signatureBytes(),
		PaymasterParams:      [][]byte{},
	}
	if stx.sig != nil {
		enc.V = big.NewInt(int64(stx.sig.V))
		enc.R = stx.sig.RBig()
		enc.S = stx.sig.SBig()
	} else {
		enc.V = tx.ChainID
		enc.R = big.NewInt(0)
		enc.S = big.NewInt(0)
	}
	if enc.FactoryDeps == nil {
		enc.FactoryDeps = [][]byte{}
	}
	if pp := tx.PaymasterParams(); !pp.IsEmpty() {
		enc.PaymasterParams = [][]byte{pp.Paymaster.Bytes(), pp.PaymasterInput}
	}
	var buf bytes.Buffer
	buf.WriteByte(common.TxTypeEIP712)
	if err := rlp.Encode(&buf, &enc); err != nil {
		return nil, tracerr.Wrap(err)
	}
	return buf.Bytes(), nil
}

// Decode parses a serialized signed transaction
func Decode(raw []byte) (*SignedTransaction, error) {
	if len(raw) == 0 || raw[0] != common.TxTypeEIP712 {
		return nil, malformed("not an L2 envelope")
	}
	var dec rlpTransaction
	if err := rlp.DecodeBytes(raw[1:], &dec); err != nil {
		return nil, malformed("rlp: %v", err)
	}
	if len(dec.To) != ethCommon.AddressLength {
		return nil, malformed("invalid to of %d bytes", len(dec.To))
	}
	to := ethCommon.BytesToAddress(dec.To)
	tx := &Transaction{
		To:                   &to,
		From:                 dec.From,
		Nonce:                dec.Nonce,
		GasLimit:             dec.GasLimit,
		MaxFeePerGas:         dec.MaxFeePerGas,
		MaxPriorityFeePerGas: dec.MaxPriorityFeePerGas,
		Value:                dec.Value,
		Data:                 dec.Data,
		ChainID:              dec.ChainID,
		Meta: &Meta{
			GasPerPubdata: dec.GasPerPubdata,
		},
	}
	if len(dec.FactoryDeps) > 0 {
		tx.Meta.FactoryDeps = dec.FactoryDeps
	}
	switch len(dec.PaymasterParams) {
	case 0:
	case 2:
		if len(dec.PaymasterParams[0]) != ethCommon.AddressLength {
			return nil, malformed("invalid paymaster of %d bytes", len(dec.PaymasterParams[0]))
		}
		tx.Meta.PaymasterParams = &common.PaymasterParams{
			Paymaster:      ethCommon.BytesToAddress(dec.PaymasterParams[0]),
			PaymasterInput: dec.PaymasterParams[1],
		}
	default:
		return nil, malformed("invalid paymaster params of %d items", len(dec.PaymasterParams))
	}

	var sig *common.Signature
	if dec.R.Sign() != 0 || dec.S.Sign() != 0 {
		if dec.V.Cmp(big.NewInt(1)) > 0 || dec.R.BitLen() > 256 || dec.S.BitLen() > 256 {
			return nil, malformed("invalid signature values")
		}
		sig = &common.Signature{V: byte(dec.V.Uint64())}
		dec.R.FillBytes(sig.R[:])
		dec.S.FillBytes(sig.S[:])
		if !bytes.Equal(sig.EthereumBytes(), dec.CustomSignature) {
			tx.Meta.CustomSignature = dec.CustomSignature
		}
	} else {
		tx.Meta.CustomSignature = dec.CustomSignature
	}
	stx, err := NewSignedTransaction(tx, sig)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return stx, nil
}
