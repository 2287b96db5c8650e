package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "composer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Dictionary, cfg.Dictionary)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /tmp/test.db
redis:
  enabled: true
  addr: redis:6379
  breaker_timeout: 5s
server:
  addr: ":9000"
poet:
  max_edges: 0
log:
  level: debug
  format: json
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/test.db", cfg.Database.Path)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 5*time.Second, cfg.Redis.BreakerTimeout)
	assert.Equal(t, uint32(3), cfg.Redis.BreakerFailures)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 0, cfg.Poet.MaxEdges)
	assert.Equal(t, "json", cfg.Log.Format)
	// Untouched sections keep their defaults.
	assert.Equal(t, Default().Grammar, cfg.Grammar)
	assert.Equal(t, 4, cfg.Ingest.Workers)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("COMPOSER_DB", "env.db")
	t.Setenv("COMPOSER_REDIS_ADDR", "cache:6379")
	t.Setenv("COMPOSER_WORKERS", "9")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "env.db", cfg.Database.Path)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, 9, cfg.Ingest.Workers)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "database: [unclosed"))
	assert.ErrorContains(t, err, "failed to parse")
}

func TestValidateReportsEverything(t *testing.T) {
	cfg := Default()
	cfg.Ingest.Workers = 0
	cfg.Grammar.Penalty = 1
	cfg.Log.Format = "xml"
	cfg.Log.Level = "loud"
	cfg.Poet.MaxEdges = -1

	err := cfg.Validate()
	require.Error(t, err)
	for _, field := range []string{"ingest.workers", "grammar.penalty", "log.format", "log.level", "poet.max_edges"} {
		assert.ErrorContains(t, err, field)
	}
}
