package config

import (
	"fmt"
	"math/big"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v6"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/hermeznetwork/tracerr"
	"gopkg.in/go-playground/validator.v9"
)

// Duration is a wrapper type that parses time duration from text.
type Duration struct {
	time.Duration `validate:"required"`
}

// UnmarshalText unmarshalls time duration from text.
func (d *Duration) UnmarshalText(data []byte) error {
	duration, err := time.ParseDuration(string(data))
	if err != nil {
		return tracerr.Wrap(err)
	}
	d.Duration = duration
	return nil
}

// BigInt is a wrapper type that parses a decimal big.Int from text
type BigInt struct {
	big.Int
}

// UnmarshalText unmarshalls a decimal big.Int from text
func (b *BigInt) UnmarshalText(data []byte) error {
	if _, ok := b.Int.SetString(string(data), 10); !ok {
		return tracerr.Wrap(fmt.Errorf("invalid integer %q", string(data)))
	}
	return nil
}

// LogConf is the logging configuration
type LogConf struct {
	Level string `validate:"required,oneof=debug info warn error" env:"ZKWALLET_LOG_LEVEL"`
	// Out are the paths where the logs will be stored.  Optional
	Out []string
	// Format is "console" or "json"
	Format string `validate:"omitempty,oneof=console json"`
	// ErrorsFile is a file where the error messages are also appended.
	// Optional
	ErrorsFile string
}

// Chain is the configuration of the connection to one chain
type Chain struct {
	// URL is the JSON-RPC endpoint of the node
	URL string `validate:"required,url"`
	// GasPriceIncPerc is the percentage added to the suggested max fee
	GasPriceIncPerc int64 `validate:"gte=0"`
	// ReceiptTimeout is the default timeout of receipt waits
	ReceiptTimeout Duration `validate:"required"`
	// IntervalReceiptLoop is the default polling interval of receipt waits
	IntervalReceiptLoop Duration `validate:"required"`
}

// Signer selects how transactions are signed.  When several methods are
// configured, PrivateKey takes precedence over Remote, and Remote over
// Keystore.
type Signer struct {
	// Address is the account of the keystore or the remote signer
	Address ethCommon.Address `env:"ZKWALLET_SIGNER_ADDRESS"`
	// PrivateKey is a hex encoded secp256k1 key.  Prefer setting it
	// through the environment.
	PrivateKey string `env:"ZKWALLET_PRIVATE_KEY"`
	Keystore   struct {
		// Path is the directory of the encrypted keystore
		Path string `env:"ZKWALLET_KEYSTORE_PATH"`
		// Password unlocks the account
		Password string `env:"ZKWALLET_KEYSTORE_PASSWORD"`
	}
	Remote struct {
		// URL is the JSON-RPC endpoint of an external signer exposing
		// account_signHash
		URL string `validate:"omitempty,url" env:"ZKWALLET_REMOTE_SIGNER_URL"`
	}
}

// Config is the wallet configuration
type Config struct {
	Log LogConf
	L1  Chain
	L2  struct {
		Chain
		// GasPerPubdata is the default gas per pubdata byte limit of the
		// L2 envelopes
		GasPerPubdata BigInt
	}
	Etherscan struct {
		// URL of the etherscan API.  If empty, the gas oracle is not used
		URL    string `validate:"omitempty,url"`
		APIKey string `env:"ZKWALLET_ETHERSCAN_APIKEY"`
	}
	Signer Signer
	Wait   struct {
		// PollInterval is the interval between receipt polls
		PollInterval Duration `validate:"required"`
		// Timeout is the limit of a wait
		Timeout Duration `validate:"required"`
	}
	Journal struct {
		// Driver is "sqlite3" or "postgres"
		Driver string `validate:"required,oneof=sqlite3 postgres"`
		// DSN is the file name for sqlite3 or the connection string for
		// postgres
		DSN string `validate:"required" env:"ZKWALLET_JOURNAL_DSN"`
	}
	Metrics struct {
		// Address to serve the prometheus metrics on while a command
		// runs.  If empty, metrics are not served
		Address string
	}
}

// Load loads the configuration at path over the default values, applies the
// environment overrides and validates the result.  An empty path loads only
// the defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.Decode(DefaultValues, &cfg); err != nil {
		return nil, tracerr.Wrap(fmt.Errorf("default values: %w", err))
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, tracerr.Wrap(fmt.Errorf("error loading config file %v: %w", path, err))
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, tracerr.Wrap(fmt.Errorf("error loading environment: %w", err))
	}
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, tracerr.Wrap(fmt.Errorf("error validating configuration file: %w", err))
	}
	return &cfg, nil
}
