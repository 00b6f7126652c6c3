package manifest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"service-nanny/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func serviceDir(t *testing.T, name string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.MkdirAll(dir, 0755))
	return dir
}

func TestLoadYAMLDefaults(t *testing.T) {
	dir := serviceDir(t, "dia")
	writeFile(t, dir, "service.yaml", `
health_endpoint: http://localhost:8003/health
gpu_required: true
tags: [tts, audio, tts]
`)

	desc, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "dia", desc.Name)
	assert.Equal(t, DefaultDescription, desc.Description)
	assert.Equal(t, DefaultVersion, desc.Version)
	assert.True(t, desc.RequiresExclusiveResource)
	assert.Equal(t, 0, desc.ResourceUnits)
	assert.Equal(t, models.Duration(DefaultHealthTimeout), desc.HealthTimeout)
	assert.Equal(t, []string{"audio", "tts"}, desc.Tags)
	assert.Empty(t, desc.Ports)
	assert.Equal(t, dir, desc.WorkingDirectory)
	assert.Equal(t, filepath.Join(dir, "service.yaml"), desc.ManifestPath)
}

func TestLoadYAMLFull(t *testing.T) {
	dir := serviceDir(t, "qwen-coder")
	writeFile(t, dir, "service.yml", `
name: qwen
description: Code model
version: 1.5
gpu_required: true
vram_gb: 12
ports:
  - 8001:8000
  - "9000:9000/udp"
health_endpoint: http://localhost:8001/health
health_timeout: 2s
`)

	loader := &Loader{DefaultTimeout: time.Second}
	desc, err := loader.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "qwen", desc.Name)
	assert.Equal(t, "1.5", desc.Version)
	assert.Equal(t, 12, desc.ResourceUnits)
	assert.Equal(t, []string{"8001:8000", "9000:9000/udp"}, desc.Ports)
	assert.Equal(t, models.Duration(2*time.Second), desc.HealthTimeout)
}

func TestLoadTOML(t *testing.T) {
	dir := serviceDir(t, "sd")
	writeFile(t, dir, "service.toml", `
name = "minimal-sd-api"
gpu_required = false
ports = ["7860:7860"]
health_endpoint = "https://sd.local/health"
`)

	desc, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "minimal-sd-api", desc.Name)
	assert.False(t, desc.RequiresExclusiveResource)
	assert.Equal(t, []string{"7860:7860"}, desc.Ports)
}

func TestLoadPrefersYAML(t *testing.T) {
	dir := serviceDir(t, "both")
	writeFile(t, dir, "service.toml", `name = "from-toml"
health_endpoint = "http://localhost/health"`)
	writeFile(t, dir, "service.yaml", "name: from-yaml\nhealth_endpoint: http://localhost/health\n")

	desc, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-yaml", desc.Name)
}

func TestLoadNoManifest(t *testing.T) {
	_, err := Load(serviceDir(t, "empty"))
	assert.ErrorIs(t, err, ErrNoManifest)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"missing health":  "name: a\n",
		"relative health": "health_endpoint: /health\n",
		"ftp health":      "health_endpoint: ftp://host/health\n",
		"bad name":        "name: -bad\nhealth_endpoint: http://h/\n",
		"bad port":        "health_endpoint: http://h/\nports: [\"80\"]\n",
		"port range":      "health_endpoint: http://h/\nports: [\"70000:80\"]\n",
		"negative vram":   "health_endpoint: http://h/\nvram_gb: -1\n",
		"zero timeout":    "health_endpoint: http://h/\nhealth_timeout: 0s\n",
		"bad timeout":     "health_endpoint: http://h/\nhealth_timeout: soon\n",
		"not yaml":        "health_endpoint: [\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			dir := serviceDir(t, "svc")
			writeFile(t, dir, "service.yaml", content)
			_, err := Load(dir)
			require.Error(t, err)
			assert.NotErrorIs(t, err, ErrNoManifest)
		})
	}
}

func TestValidatePort(t *testing.T) {
	assert.NoError(t, ValidatePort("8000:8000"))
	assert.NoError(t, ValidatePort("53:53/udp"))
	assert.Error(t, ValidatePort("0:80"))
	assert.Error(t, ValidatePort("127.0.0.1:80:80"))
	assert.Error(t, ValidatePort("80:80/icmp"))
}
