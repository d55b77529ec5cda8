package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "http://localhost:8545", cfg.L1.URL)
	assert.Equal(t, int64(10), cfg.L1.GasPriceIncPerc)
	assert.Equal(t, 200*time.Millisecond, cfg.L2.IntervalReceiptLoop.Duration)
	assert.Equal(t, "50000", cfg.L2.GasPerPubdata.String())
	assert.Equal(t, time.Second, cfg.Wait.PollInterval.Duration)
	assert.Equal(t, 10*time.Minute, cfg.Wait.Timeout.Duration)
	assert.Equal(t, "sqlite3", cfg.Journal.Driver)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
[L2]
URL = "https://testnet.era.example:3050"
GasPerPubdata = "800"

[Signer]
Address = "0x36615Cf349d7F6344891B1e7CA7C72883F5dc049"

[Wait]
Timeout = "30s"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://testnet.era.example:3050", cfg.L2.URL)
	assert.Equal(t, "800", cfg.L2.GasPerPubdata.String())
	// values not in the file keep their defaults
	assert.Equal(t, 60*time.Second, cfg.L2.ReceiptTimeout.Duration)
	assert.Equal(t, 30*time.Second, cfg.Wait.Timeout.Duration)
	assert.Equal(t, ethCommon.HexToAddress("0x36615Cf349d7F6344891B1e7CA7C72883F5dc049"),
		cfg.Signer.Address)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("ZKWALLET_PRIVATE_KEY", "0x7726827caac94a7f9e1b160f7ea819f172f7b6f9d2a97f992c38edeab82d4110")
	t.Setenv("ZKWALLET_KEYSTORE_PASSWORD", "secret")
	t.Setenv("ZKWALLET_LOG_LEVEL", "debug")
	t.Setenv("ZKWALLET_SIGNER_ADDRESS", "0x36615Cf349d7F6344891B1e7CA7C72883F5dc049")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "0x7726827caac94a7f9e1b160f7ea819f172f7b6f9d2a97f992c38edeab82d4110",
		cfg.Signer.PrivateKey)
	assert.Equal(t, "secret", cfg.Signer.Keystore.Password)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ethCommon.HexToAddress("0x36615Cf349d7F6344891B1e7CA7C72883F5dc049"),
		cfg.Signer.Address)

	t.Setenv("ZKWALLET_SIGNER_ADDRESS", "nope")
	_, err = Load("")
	assert.Error(t, err)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
[Log]
Level = "warn"

[Journal]
Driver = "postgres"
DSN = "postgres://file"
`)
	t.Setenv("ZKWALLET_JOURNAL_DSN", "postgres://env")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Journal.Driver)
	assert.Equal(t, "postgres://env", cfg.Journal.DSN)
	assert.Equal(t, "warn", cfg.Log.Level)
	// Fields without a variable set keep the file and default values
	assert.Equal(t, "http://localhost:8545", cfg.L1.URL)
	assert.Equal(t, "50000", cfg.L2.GasPerPubdata.String())
	assert.Equal(t, time.Second, cfg.Wait.PollInterval.Duration)

	t.Setenv("ZKWALLET_LOG_LEVEL", "verbose")
	_, err = Load(path)
	assert.Error(t, err)
}

func TestLoadInvalid(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	path := writeConfig(t, `
[Journal]
Driver = "mysql"
`)
	_, err = Load(path)
	assert.Error(t, err)

	path = writeConfig(t, `
[Wait]
PollInterval = "soon"
`)
	_, err = Load(path)
	assert.Error(t, err)

	path = writeConfig(t, `
[L1]
URL = ""
`)
	_, err = Load(path)
	assert.Error(t, err)
}
