package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
descriptor:
  file_path: /etc/descriptors.pb
server:
  listen_address: ":8080"
  backend_address: "localhost:7233"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "temporal.api.", cfg.Index.ScanPackagePrefix)
	require.Equal(t, "default-inline-transform", cfg.Codec.Strategy)
	require.Equal(t, "info", cfg.Log.Level)
	require.Equal(t, "json", cfg.Log.Format)
}

func TestLoadRequiresDescriptorSource(t *testing.T) {
	path := writeConfigFile(t, `
server:
  listen_address: ":8080"
  backend_address: "localhost:7233"
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRequiresRedisForBatchedStrategy(t *testing.T) {
	path := writeConfigFile(t, `
descriptor:
  file_path: /etc/descriptors.pb
server:
  listen_address: ":8080"
  backend_address: "localhost:7233"
codec:
  strategy: batched-external-store
`)
	_, err := Load(path)
	require.Error(t, err)

	path = writeConfigFile(t, `
descriptor:
  file_path: /etc/descriptors.pb
server:
  listen_address: ":8080"
  backend_address: "localhost:7233"
codec:
  strategy: batched-external-store
redis:
  address: "localhost:6379"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "localhost:6379", cfg.Redis.Address)
}

func TestLoadEnvOverlayOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
descriptor:
  file_path: /etc/descriptors.pb
server:
  listen_address: ":8080"
  backend_address: "localhost:7233"
`)

	t.Setenv("TPP_SERVER__LISTEN_ADDRESS", ":9090")
	t.Setenv("TPP_LOG__LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.Server.ListenAddress)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "localhost:7233", cfg.Server.BackendAddress)
}
