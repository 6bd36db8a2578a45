package cachingproxy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	yml := "max_conns: 32\n" +
		"management_addr: \":9090\"\n" +
		"access_log: memory\n" +
		"dial_timeout_seconds: 3\n"
	require.NoError(t, os.WriteFile(path, []byte(yml), 0644))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.MaxConns)
	assert.Equal(t, ":9090", cfg.ManagementAddr)
	assert.Equal(t, "memory", cfg.AccessLog)
	assert.Equal(t, 3, cfg.DialTimeoutSeconds)
}

func TestLoadConfigFileMissing(t *testing.T) {
	_, err := LoadConfigFile(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}
