package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog(t *testing.T) {
	Infow("Test log.Infow", "value", 10)
	Infof("Test log.Infof %d", 10)
	Debugw("Test log.Debugw", "tx", "0x01")
	Warnw("Test log.Warnw", "value", 10)
}

func TestJSONOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.log")
	Init("info", []string{path}, WithJSON())
	defer Init("debug", []string{"stdout"})

	Debugw("not written", "value", 1)
	Infow("Transaction submitted", "chain", "l2")

	content, err := os.ReadFile(path) //nolint:gosec
	require.NoError(t, err)
	assert.Contains(t, string(content), `"message":"Transaction submitted"`)
	assert.Contains(t, string(content), `"chain":"l2"`)
	assert.NotContains(t, string(content), "not written")
}

func TestErrorsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "errors.log")
	require.NoError(t, InitErrorsFile(path))
	defer func() { require.NoError(t, InitErrorsFile("")) }()

	Error("Test log.Error ", 10)
	Errorw("Test log.Errorw", "value", 11)

	content, err := os.ReadFile(path) //nolint:gosec
	require.NoError(t, err)
	assert.Contains(t, string(content), "Test log.Error 10")
	assert.Contains(t, string(content), "Test log.Errorw")
}
