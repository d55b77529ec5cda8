package test

import (
	"fmt"
	"sync"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hermeznetwork/zkwallet/common"
)

type withdrawalKey struct {
	batch uint64
	index uint64
}

type withdrawal struct {
	message  []byte
	txNumber uint16
	proof    []ethCommon.Hash
	root     ethCommon.Hash
	l2TxHash ethCommon.Hash
}

// bridge is the record of the L2 to L1 messages committed by the L2, which
// the L1 main contract verifies withdrawals against
type bridge struct {
	rw          sync.RWMutex
	withdrawals map[withdrawalKey]*withdrawal
	byTx        map[ethCommon.Hash][]withdrawalKey
}

func newBridge() *bridge {
	return &bridge{
		withdrawals: make(map[withdrawalKey]*withdrawal),
		byTx:        make(map[ethCommon.Hash][]withdrawalKey),
	}
}

func (b *bridge) register(l2TxHash ethCommon.Hash, batch uint64, txNumber uint16, message []byte) {
	b.rw.Lock()
	defer b.rw.Unlock()
	key := withdrawalKey{batch: batch, index: uint64(len(b.byTx[l2TxHash]))}
	leaf := crypto.Keccak256Hash(message)
	b.withdrawals[key] = &withdrawal{
		message:  ethCommon.CopyBytes(message),
		txNumber: txNumber,
		proof:    []ethCommon.Hash{leaf},
		root:     crypto.Keccak256Hash(leaf.Bytes(), l2TxHash.Bytes()),
		l2TxHash: l2TxHash,
	}
	b.byTx[l2TxHash] = append(b.byTx[l2TxHash], key)
}

func (b *bridge) proof(l2TxHash ethCommon.Hash, index int) *common.L2ToL1LogProof {
	b.rw.RLock()
	defer b.rw.RUnlock()
	keys := b.byTx[l2TxHash]
	if index < 0 || index >= len(keys) {
		return nil
	}
	w := b.withdrawals[keys[index]]
	return &common.L2ToL1LogProof{
		Proof: append([]ethCommon.Hash{}, w.proof...),
		ID:    keys[index].index,
		Root:  w.root,
	}
}

// verify checks a withdrawal finalization against the committed messages
func (b *bridge) verify(batch, index uint64, txNumber uint16, message []byte,
	proof [][32]byte) error {
	b.rw.RLock()
	defer b.rw.RUnlock()
	w, ok := b.withdrawals[withdrawalKey{batch: batch, index: index}]
	if !ok {
		return fmt.Errorf("unknown message %v in batch %v", index, batch)
	}
	if w.txNumber != txNumber || string(w.message) != string(message) {
		return fmt.Errorf("message doesn't match")
	}
	if len(proof) != len(w.proof) {
		return fmt.Errorf("invalid proof length %v", len(proof))
	}
	for i := range proof {
		if ethCommon.Hash(proof[i]) != w.proof[i] {
			return fmt.Errorf("invalid proof")
		}
	}
	return nil
}
