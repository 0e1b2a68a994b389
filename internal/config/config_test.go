package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
server:
  port: 9090
database:
  driver: postgres
  host: db
  port: 5432
  user: agri
  password: ${AGRI_DB_PASSWORD}
  name: agrivision
analysis:
  backendTimeout: 20s
  defaultBackends: [gemini]
backends:
  gemini:
    type: gemini_vision
    apiKey: ${AGRI_GEMINI_KEY}
    timeout: 30s
  google_vision:
    type: vision_label
weights:
  fallback: 0.6
  backends:
    gemini: 0.9
`

func TestParseExpandsEnvAndAppliesDefaults(t *testing.T) {
	t.Setenv("AGRI_DB_PASSWORD", "s3cret")
	t.Setenv("AGRI_GEMINI_KEY", "g-key")

	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.Equal(t, "g-key", cfg.Backends["gemini"].APIKey)
	assert.Equal(t, 30*time.Second, cfg.Backends["gemini"].Timeout)
	assert.Equal(t, 20*time.Second, cfg.Analysis.BackendTimeout)
	assert.Equal(t, 90*time.Second, cfg.Analysis.Timeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 0.6, cfg.Weights.Fallback)
	assert.Contains(t, cfg.PostgresDSN(), "password=s3cret")
	assert.Contains(t, cfg.PostgresDSN(), "sslmode=disable")
}

func TestParseDefaultsToMemoryDriver(t *testing.T) {
	cfg, err := Parse([]byte("server:\n  port: 1\n"))
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Empty(t, cfg.Backends)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	bad := `
database:
  driver: sqlite
analysis:
  defaultBackends: [missing]
backends:
  x:
    type: carrier_pigeon
weights:
  backends:
    x: 1.5
`
	_, err := Parse([]byte(bad))
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "database.driver")
	assert.Contains(t, msg, "backends.x.type")
	assert.Contains(t, msg, `"missing"`)
	assert.Contains(t, msg, "weights.backends.x")
}

func TestValidateMinioRequiresEndpointWhenEnabled(t *testing.T) {
	_, err := Parse([]byte("minio:\n  enabled: true\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "minio")
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 7000\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)

	_, err = Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestMySQLDSN(t *testing.T) {
	var cfg Config
	cfg.Database.User = "u"
	cfg.Database.Password = "p"
	cfg.Database.Host = "h"
	cfg.Database.Port = 3306
	cfg.Database.Name = "n"
	assert.Equal(t, "u:p@tcp(h:3306)/n?parseTime=true&charset=utf8mb4&loc=UTC", cfg.MySQLDSN())
}
