package parley

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parley.yaml")
	data := []byte(`
name: TestServer
listen_host: 0.0.0.0
listen_port: 9100
admin_addr: "127.0.0.1:9101"
capacity: 25
heartbeat_interval_sec: 15
heartbeat_timeout_sec: 20
rate_limit: 5
rate_window_ms: 2000
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "TestServer", cfg.Name)
	assert.Equal(t, "0.0.0.0:9100", cfg.ListenAddr())
	assert.Equal(t, "127.0.0.1:9101", cfg.AdminAddr)
	assert.Equal(t, 25, cfg.Capacity)
	assert.Equal(t, 5, cfg.RateLimit)

	// Every configured concern becomes an Option.
	assert.Len(t, cfg.Options(), 5)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parley.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen_host: 10.0.0.1\nlisten_port: 9100\n"), 0o644))

	t.Setenv("PARLEY_HOST", "0.0.0.0")
	t.Setenv("PARLEY_PORT", "9200")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9200", cfg.ListenAddr())
}

func TestLoadConfig_EmptyPathUsesEnvOnly(t *testing.T) {
	t.Setenv("PARLEY_HOST", "127.0.0.1")
	t.Setenv("PARLEY_PORT", "9300")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9300", cfg.ListenAddr())
}

func TestLoadConfig_MissingFileFails(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestConfig_NoListenPortMeansOutboundOnly(t *testing.T) {
	var cfg Config
	assert.Equal(t, "", cfg.ListenAddr())
	assert.Empty(t, cfg.Options())
}
