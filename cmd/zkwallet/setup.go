package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/hermeznetwork/tracerr"
	"github.com/hermeznetwork/zkwallet/config"
	"github.com/hermeznetwork/zkwallet/eth"
	"github.com/hermeznetwork/zkwallet/etherscan"
	"github.com/hermeznetwork/zkwallet/journal"
	"github.com/hermeznetwork/zkwallet/log"
	"github.com/hermeznetwork/zkwallet/metric"
	"github.com/hermeznetwork/zkwallet/signer"
	"github.com/hermeznetwork/zkwallet/wallet"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
)

const metricsShutdownTimeout = 5 * time.Second

// env is the context of a command: the configuration and the connections
// built from it
type env struct {
	cfg     *config.Config
	l1      *eth.EthereumClient
	l2      *eth.ZKSyncClient
	wallet  *wallet.Wallet
	journal *journal.Journal
	metrics *http.Server
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	var envFiles []string
	if path := c.String(flagEnv); path != "" {
		envFiles = append(envFiles, path)
	}
	// A missing .env file is not an error
	if err := godotenv.Load(envFiles...); err != nil {
		log.Debugw("godotenv.Load", "err", err)
	}
	cfg, err := config.Load(c.String(flagCfg))
	if err != nil {
		if err := cli.ShowAppHelp(c); err != nil {
			panic(err)
		}
		return nil, tracerr.Wrap(err)
	}
	var opts []log.Option
	if cfg.Log.Format == "json" {
		opts = append(opts, log.WithJSON())
	}
	log.Init(cfg.Log.Level, cfg.Log.Out, opts...)
	if err := log.InitErrorsFile(cfg.Log.ErrorsFile); err != nil {
		return nil, tracerr.Wrap(err)
	}
	return cfg, nil
}

func newSigner(cfg *config.Signer) (signer.Signer, error) {
	switch {
	case cfg.PrivateKey != "":
		return signer.NewPrivateKeySignerFromHex(cfg.PrivateKey)
	case cfg.Remote.URL != "":
		return signer.NewRemoteSigner(cfg.Remote.URL, cfg.Address), nil
	case cfg.Keystore.Path != "":
		return signer.NewKeystoreSigner(signer.KeystoreConfig{
			Path:     cfg.Keystore.Path,
			Password: cfg.Keystore.Password,
		}, cfg.Address)
	default:
		return nil, tracerr.Wrap(fmt.Errorf("no signer configured: " +
			"set Signer.PrivateKey, Signer.Remote.URL or Signer.Keystore.Path"))
	}
}

func ethereumConfig(cfg *config.Chain) *eth.EthereumConfig {
	return &eth.EthereumConfig{
		GasPriceIncPerc:     cfg.GasPriceIncPerc,
		ReceiptTimeout:      cfg.ReceiptTimeout.Duration,
		IntervalReceiptLoop: cfg.IntervalReceiptLoop.Duration,
	}
}

func newEnv(c *cli.Context) (*env, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	e := &env{cfg: cfg}
	if err := e.connect(c.Context); err != nil {
		e.close()
		return nil, tracerr.Wrap(err)
	}
	return e, nil
}

func (e *env) connect(ctx context.Context) error {
	if e.cfg.Metrics.Address != "" {
		e.serveMetrics()
	}
	prom, err := metric.NewPrometheus()
	if err != nil {
		return tracerr.Wrap(err)
	}
	httpClient := rpc.WithHTTPClient(prom.HTTPClient())

	var gasOracle etherscan.Client
	if e.cfg.Etherscan.URL != "" {
		gasOracle, err = etherscan.NewEtherscanService(e.cfg.Etherscan.URL, e.cfg.Etherscan.APIKey)
		if err != nil {
			return tracerr.Wrap(err)
		}
	}
	e.l1, err = eth.Dial(ctx, e.cfg.L1.URL, ethereumConfig(&e.cfg.L1), gasOracle, httpClient)
	if err != nil {
		return tracerr.Wrap(fmt.Errorf("eth.Dial L1: %w", err))
	}
	e.l2, err = eth.DialZKSync(ctx, e.cfg.L2.URL, ethereumConfig(&e.cfg.L2.Chain), httpClient)
	if err != nil {
		return tracerr.Wrap(fmt.Errorf("eth.DialZKSync: %w", err))
	}

	s, err := newSigner(&e.cfg.Signer)
	if err != nil {
		return tracerr.Wrap(err)
	}
	e.wallet, err = wallet.New(s, nil, e.l1, e.l2, &wallet.Config{
		PollInterval:  e.cfg.Wait.PollInterval.Duration,
		Timeout:       e.cfg.Wait.Timeout.Duration,
		GasPerPubdata: &e.cfg.L2.GasPerPubdata.Int,
	})
	if err != nil {
		return tracerr.Wrap(err)
	}

	e.journal, err = journal.Open(e.cfg.Journal.Driver, e.cfg.Journal.DSN)
	if err != nil {
		return tracerr.Wrap(fmt.Errorf("journal.Open: %w", err))
	}
	log.Infow("Wallet ready", "address", e.wallet.Address().Hex())
	return nil
}

func (e *env) serveMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	e.metrics = &http.Server{
		Addr:              e.cfg.Metrics.Address,
		Handler:           mux,
		ReadHeaderTimeout: metricsShutdownTimeout,
	}
	go func() {
		log.Infof("Metrics server listening on %v", e.cfg.Metrics.Address)
		if err := e.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("Metrics server", "err", err)
		}
	}()
}

func (e *env) close() {
	if e.journal != nil {
		if err := e.journal.Close(); err != nil {
			log.Errorw("journal.Close", "err", err)
		}
	}
	if e.l1 != nil {
		e.l1.Close()
	}
	if e.l2 != nil {
		e.l2.Close()
	}
	if e.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := e.metrics.Shutdown(ctx); err != nil {
			log.Errorw("Metrics server shutdown", "err", err)
		}
	}
}
