package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"refsync/errors"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.False(t, cfg.Engine.Isolated())
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: sqlite
  dsn: file:refsync.db
relay:
  kind: nats
  nats:
    url: nats://localhost:4222
    max_age: 24h
  retry:
    max_attempts: 5
engine:
  cascade_mode: isolated
`), 0o600))
	t.Setenv("REFSYNC_ENGINE_AUTHOR", "importer")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "file:refsync.db", cfg.Database.DSN)
	assert.Equal(t, KindNATS, cfg.Relay.Kind)
	assert.Equal(t, 24*time.Hour, cfg.Relay.NATS.MaxAge)
	assert.Equal(t, "REFSYNC", cfg.Relay.NATS.Stream)
	assert.Equal(t, 5, cfg.Relay.Retry.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, cfg.Relay.Retry.InitialDelay)
	assert.Equal(t, "importer", cfg.Engine.Author)
	assert.True(t, cfg.Engine.Isolated())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"未知驱动", func(c *Config) { c.Database.Driver = "oracle" }},
		{"sqlite 缺少 dsn", func(c *Config) { c.Database.Driver = DriverSQLite }},
		{"nats 缺少地址", func(c *Config) { c.Relay.Kind = KindNATS }},
		{"redis 索引缺少地址", func(c *Config) { c.Index.Kind = KindRedis }},
		{"索引不支持 nats", func(c *Config) { c.Index.Kind = KindNATS }},
		{"未知级联模式", func(c *Config) { c.Engine.CascadeMode = "LOUD" }},
		{"深度为零", func(c *Config) { c.Engine.MaxDepth = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsValidation(err))
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
