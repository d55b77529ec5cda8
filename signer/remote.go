package signer

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dghubble/sling"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/hermeznetwork/tracerr"
	"github.com/hermeznetwork/zkwallet/common"
)

const (
	defaultMaxIdleConns    = 10
	defaultIdleConnTimeout = 2 * time.Second
	// RemoteSignMethod is the JSON-RPC method called on the remote signer
	RemoteSignMethod = "sign_hash"
)

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Result  hexutil.Bytes `json:"result"`
	Error   *rpcError     `json:"error"`
}

// RemoteSigner delegates signing to a JSON-RPC service over HTTP that holds
// the key.  Returned signatures are checked to recover to the configured
// address.
type RemoteSigner struct {
	mutex   sync.Mutex
	client  *sling.Sling
	address ethCommon.Address
	nextID  uint64
}

// NewRemoteSigner creates a RemoteSigner calling url for address
func NewRemoteSigner(url string, address ethCommon.Address) *RemoteSigner {
	tr := &http.Transport{
		MaxIdleConns:       defaultMaxIdleConns,
		IdleConnTimeout:    defaultIdleConnTimeout,
		DisableCompression: true,
	}
	httpClient := &http.Client{Transport: tr}
	return &RemoteSigner{
		client:  sling.New().Base(url).Client(httpClient),
		address: address,
	}
}

// Address returns the address the remote service signs for
func (s *RemoteSigner) Address() ethCommon.Address {
	return s.address
}

// SignHash asks the remote service to sign a 32 byte hash
func (s *RemoteSigner) SignHash(ctx context.Context, hash []byte) (*common.Signature, error) {
	if err := checkHash(hash); err != nil {
		return nil, tracerr.Wrap(err)
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.nextID++
	body := rpcRequest{
		JSONRPC: "2.0",
		ID:      s.nextID,
		Method:  RemoteSignMethod,
		Params:  []interface{}{s.address, hexutil.Bytes(hash)},
	}
	req, err := s.client.New().Post("").BodyJSON(&body).Request()
	if err != nil {
		return nil, signingFailed("%v", err)
	}
	var resBody rpcResponse
	res, err := s.client.Do(req.WithContext(ctx), &resBody, nil)
	if err != nil {
		return nil, signingFailed("remote: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, signingFailed("remote http status %v", res.StatusCode)
	}
	if resBody.Error != nil {
		return nil, signingFailed("remote error %d: %v", resBody.Error.Code, resBody.Error.Message)
	}
	sig, err := common.SignatureFromBytes(resBody.Result)
	if err != nil {
		return nil, signingFailed("remote signature: %v", err)
	}
	recovered, err := RecoverAddress(hash, sig)
	if err != nil {
		return nil, signingFailed("remote signature: %v", err)
	}
	if recovered != s.address {
		return nil, signingFailed("remote signature recovers to %v, expected %v",
			recovered.Hex(), s.address.Hex())
	}
	return sig, nil
}
