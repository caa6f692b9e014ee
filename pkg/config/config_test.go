package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"LOG_LEVEL", "ANCHORITE_DB", "ANCHORITE_CHAIN_ID", "REDIS_ADDR"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg := Load()
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "anchorite.db", cfg.DatabasePath)
	assert.Equal(t, "anchorite-local", cfg.ChainID)
	assert.Empty(t, cfg.RedisAddr)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("ANCHORITE_DB", "/tmp/test.db")
	t.Setenv("ANCHORITE_CHAIN_ID", "sepolia")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg := Load()
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "/tmp/test.db", cfg.DatabasePath)
	assert.Equal(t, "sepolia", cfg.ChainID)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
}

func TestLoadChainProfile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile_sepolia.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: Sepolia Testnet
chain_id: sepolia
rpc_endpoint: https://rpc.sepolia.example
min_confirmations: 6
anchor_interval_ms: 30000
live_confirmation: true
`), 0o644))

	p, err := LoadChainProfile(path)
	require.NoError(t, err)
	assert.Equal(t, "sepolia", p.ChainID)
	assert.Equal(t, "Sepolia Testnet", p.Name)
	assert.Equal(t, 6, p.MinConfirmations)
	assert.Equal(t, 30*time.Second, p.AnchorInterval())
	assert.True(t, p.LiveConfirmation)
}

func TestLoadChainProfile_MissingChainID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: nameless\n"), 0o644))

	_, err := LoadChainProfile(path)
	assert.Error(t, err)
}

func TestLoadChainProfile_MissingFile(t *testing.T) {
	_, err := LoadChainProfile("/nonexistent/profile.yaml")
	assert.Error(t, err)
}
