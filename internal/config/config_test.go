package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0644))
	return p
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New(), writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 16, cfg.Server.MaxConcurrent)
	assert.Equal(t, "./services", cfg.Services.Dir)
	assert.Equal(t, []string{"service-nanny"}, cfg.Services.Exclude)
	assert.Equal(t, "docker", cfg.Runtime.Command)
	assert.Equal(t, []string{"compose", "up", "-d"}, cfg.Runtime.Up)
	assert.Equal(t, 120*time.Second, cfg.Runtime.UpTimeout)
	assert.Equal(t, 60*time.Second, cfg.Runtime.DownTimeout)
	assert.Equal(t, 30*time.Second, cfg.Runtime.LogsTimeout)
	assert.Equal(t, 5*time.Second, cfg.Health.DefaultTimeout)
	assert.Equal(t, 1000, cfg.Journal.Retain)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  address: ":7000"
runtime:
  command: podman
  up_timeout: 5m
health:
  poll_interval: 0s
`)
	t.Setenv("SERVICE_NANNY_SERVER_ADDRESS", "127.0.0.1:9000")
	t.Setenv("SERVICES_DIR", "/srv/services")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Address)
	assert.Equal(t, "/srv/services", cfg.Services.Dir)
	assert.Equal(t, "podman", cfg.Runtime.Command)
	assert.Equal(t, 5*time.Minute, cfg.Runtime.UpTimeout)
	assert.Equal(t, time.Duration(0), cfg.Health.PollInterval)
}

func TestPrefixedServicesDirWins(t *testing.T) {
	t.Setenv("SERVICE_NANNY_SERVICES_DIR", "/a")
	t.Setenv("SERVICES_DIR", "/b")
	cfg, err := Load(viper.New(), writeConfig(t, "{}\n"))
	require.NoError(t, err)
	assert.Equal(t, "/a", cfg.Services.Dir)
}

func TestLoadRejectsInvalid(t *testing.T) {
	_, err := Load(viper.New(), writeConfig(t, "runtime:\n  up_timeout: -1s\n"))
	assert.ErrorContains(t, err, "runtime.up_timeout")

	_, err = Load(viper.New(), writeConfig(t, "server:\n  max_concurrent: 0\n"))
	assert.ErrorContains(t, err, "max_concurrent")

	_, err = Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
