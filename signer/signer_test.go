package signer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	ethKeystore "github.com/ethereum/go-ethereum/accounts/keystore"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hermeznetwork/zkwallet/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

const testKeyHex = "7e5bfb82febc4c2c8529167104271ceec190eafdca277314912eaabdb67c6e5f"

var testHash = crypto.Keccak256([]byte("zkwallet"))

func checkRoundTrip(t *testing.T, s Signer) {
	sig, err := s.SignHash(context.Background(), testHash)
	require.NoError(t, err)
	addr, err := RecoverAddress(testHash, sig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), addr)
	assert.LessOrEqual(t, sig.V, byte(1))

	_, err = s.SignHash(context.Background(), testHash[:31])
	assert.True(t, errors.Is(err, common.ErrSigningFailed))
}

func TestPrivateKeySigner(t *testing.T) {
	s, err := NewPrivateKeySignerFromHex("0x" + testKeyHex)
	require.NoError(t, err)
	key, err := crypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), s.Address())
	checkRoundTrip(t, s)

	_, err = NewPrivateKeySignerFromHex("zz")
	assert.True(t, errors.Is(err, common.ErrSigningFailed))
}

func TestKeystoreSigner(t *testing.T) {
	dir := t.TempDir()
	ks := ethKeystore.NewKeyStore(dir, ethKeystore.LightScryptN, ethKeystore.LightScryptP)
	key, err := crypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)
	account, err := ks.ImportECDSA(key, "pass")
	require.NoError(t, err)

	_, err = NewKeystoreSignerFromKeyStore(ks, account.Address, "wrong")
	assert.True(t, errors.Is(err, common.ErrSigningFailed))

	s, err := NewKeystoreSignerFromKeyStore(ks, account.Address, "pass")
	require.NoError(t, err)
	checkRoundTrip(t, s)

	// Same key, same deterministic signature
	pk := NewPrivateKeySigner(key)
	sig1, err := s.SignHash(context.Background(), testHash)
	require.NoError(t, err)
	sig2, err := pk.SignHash(context.Background(), testHash)
	require.NoError(t, err)
	assert.Equal(t, sig2, sig1)
}

func newRemoteServer(t *testing.T, signWith string) *httptest.Server {
	return httptest.NewServer(remoteHandler(t, signWith))
}

func remoteHandler(t *testing.T, signWith string) http.HandlerFunc {
	key, err := crypto.HexToECDSA(signWith)
	require.NoError(t, err)
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     uint64            `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		res := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		var hash hexutil.Bytes
		if req.Method != RemoteSignMethod || len(req.Params) != 2 ||
			json.Unmarshal(req.Params[1], &hash) != nil {
			res["error"] = map[string]interface{}{"code": -32601, "message": "bad request"}
		} else {
			sig, err := crypto.Sign(hash, key)
			require.NoError(t, err)
			sig[64] += 27
			res["result"] = hexutil.Bytes(sig)
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(res))
	}
}

func TestRemoteSigner(t *testing.T) {
	key, err := crypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(key.PublicKey)

	server := newRemoteServer(t, testKeyHex)
	defer server.Close()
	s := NewRemoteSigner(server.URL, address)
	checkRoundTrip(t, s)

	// The service signs with a key that doesn't match the address
	other := ethCommon.HexToAddress("0x00000000000000000000000000000000000000aa")
	s = NewRemoteSigner(server.URL, other)
	_, err = s.SignHash(context.Background(), testHash)
	assert.True(t, errors.Is(err, common.ErrSigningFailed))

	server.Close()
	_, err = s.SignHash(context.Background(), testHash)
	assert.True(t, errors.Is(err, common.ErrSigningFailed))
}

func TestSignTx(t *testing.T) {
	s, err := NewPrivateKeySignerFromHex(testKeyHex)
	require.NoError(t, err)
	chainID := big.NewInt(270)
	to := ethCommon.HexToAddress("0x00000000000000000000000000000000000000bb")
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     3,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(100),
		Gas:       21000,
		To:        &to,
		Value:     big.NewInt(1000),
	})
	signed, err := SignTx(context.Background(), s, tx, chainID)
	require.NoError(t, err)
	from, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), from)
}

func signConcurrently(t *testing.T, s Signer, n int) {
	hashes := make([][]byte, n)
	sigs := make([]*common.Signature, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		hashes[i] = crypto.Keccak256([]byte{byte(i)})
		g.Go(func() error {
			sig, err := s.SignHash(context.Background(), hashes[i])
			sigs[i] = sig
			return err
		})
	}
	require.NoError(t, g.Wait())
	for i := range sigs {
		addr, err := RecoverAddress(hashes[i], sigs[i])
		require.NoError(t, err)
		assert.Equal(t, s.Address(), addr)
	}
}

func TestConcurrentSignHash(t *testing.T) {
	const n = 16
	key, err := crypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(key.PublicKey)

	var (
		mutex       sync.Mutex
		inFlight    int
		maxInFlight int
		ids         = make(map[uint64]bool)
	)
	handler := remoteHandler(t, testKeyHex)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req struct {
			ID uint64 `json:"id"`
		}
		require.NoError(t, json.Unmarshal(body, &req))
		mutex.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		ids[req.ID] = true
		mutex.Unlock()
		time.Sleep(time.Millisecond)
		r.Body = io.NopCloser(bytes.NewReader(body))
		handler(w, r)
		mutex.Lock()
		inFlight--
		mutex.Unlock()
	}))
	defer server.Close()

	signConcurrently(t, NewRemoteSigner(server.URL, address), n)
	mutex.Lock()
	assert.Equal(t, 1, maxInFlight)
	assert.Len(t, ids, n)
	mutex.Unlock()

	signConcurrently(t, NewPrivateKeySigner(key), n)

	ks := ethKeystore.NewKeyStore(t.TempDir(), ethKeystore.LightScryptN, ethKeystore.LightScryptP)
	account, err := ks.ImportECDSA(key, "pass")
	require.NoError(t, err)
	ksSigner, err := NewKeystoreSignerFromKeyStore(ks, account.Address, "pass")
	require.NoError(t, err)
	signConcurrently(t, ksSigner, n)
}
