package etherscan

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/dghubble/sling"
	"github.com/hermeznetwork/tracerr"
	"github.com/shopspring/decimal"
)

const (
	defaultMaxIdleConns    = 10
	defaultIdleConnTimeout = 2 * time.Second
	gweiDecimals           = 9
)

type etherscanResponse struct {
	Status  string            `json:"status"`
	Message string            `json:"message"`
	Result  GasPriceEtherscan `json:"result"`
}

// GasPriceEtherscan is the gas oracle response, prices in gwei
type GasPriceEtherscan struct {
	LastBlock       string `json:"LastBlock"`
	SafeGasPrice    string `json:"SafeGasPrice"`
	ProposeGasPrice string `json:"ProposeGasPrice"`
	FastGasPrice    string `json:"FastGasPrice"`
	SuggestBaseFee  string `json:"suggestBaseFee"`
}

// ProposeGasPriceWei returns the proposed gas price in wei
func (g *GasPriceEtherscan) ProposeGasPriceWei() (*big.Int, error) {
	return gweiToWei(g.ProposeGasPrice)
}

// FastGasPriceWei returns the fast gas price in wei
func (g *GasPriceEtherscan) FastGasPriceWei() (*big.Int, error) {
	return gweiToWei(g.FastGasPrice)
}

// gweiToWei converts a decimal gwei string, which may have a fractional
// part, to wei
func gweiToWei(s string) (*big.Int, error) {
	gwei, err := decimal.NewFromString(s)
	if err != nil || gwei.Sign() < 0 {
		return nil, tracerr.Wrap(fmt.Errorf("invalid gas price %q", s))
	}
	return gwei.Shift(gweiDecimals).BigInt(), nil
}

// Service is the etherscan gas oracle client
type Service struct {
	clientEtherscan *sling.Sling
	apiKey          string
}

// Client is the interface to an L1 gas price oracle
type Client interface {
	// Blocking.  Returns the gas price.
	GetGasPrice(ctx context.Context) (*GasPriceEtherscan, error)
}

// NewEtherscanService is the constructor that creates an etherscanService
func NewEtherscanService(etherscanURL string, apikey string) (*Service, error) {
	tr := &http.Transport{
		MaxIdleConns:       defaultMaxIdleConns,
		IdleConnTimeout:    defaultIdleConnTimeout,
		DisableCompression: true,
	}
	httpClient := &http.Client{Transport: tr}
	return &Service{
		clientEtherscan: sling.New().Base(etherscanURL).Client(httpClient),
		apiKey:          apikey,
	}, nil
}

type gasOracleParams struct {
	Module string `url:"module"`
	Action string `url:"action"`
	APIKey string `url:"apikey"`
}

// GetGasPrice retrieves the gas price estimation from etherscan
func (p *Service) GetGasPrice(ctx context.Context) (*GasPriceEtherscan, error) {
	var resBody etherscanResponse
	params := &gasOracleParams{Module: "gastracker", Action: "gasoracle", APIKey: p.apiKey}
	req, err := p.clientEtherscan.New().Get("api").QueryStruct(params).Request()
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	res, err := p.clientEtherscan.Do(req.WithContext(ctx), &resBody, nil)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, tracerr.Wrap(fmt.Errorf("http response is not is %v", res.StatusCode))
	}
	if resBody.Status != "1" {
		return nil, tracerr.Wrap(fmt.Errorf("etherscan error: %v", resBody.Message))
	}
	return &resBody.Result, nil
}
