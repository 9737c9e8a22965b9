package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, `
entities:
  kinds: [user]
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, BackendSQLite, cfg.Log.Backend)
	assert.Equal(t, 8, cfg.Cache.MaxParallelResolve)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadConfig_Full(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
  request_timeout: 2s
log:
  backend: pebble
  path: /tmp/testlog
cache:
  max_parallel_resolve: 4
entities:
  kinds: [user, order]
metrics:
  enabled: true
  port: 9100
logging:
  level: debug
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, BackendPebble, cfg.Log.Backend)
	assert.Equal(t, "/tmp/testlog", cfg.Log.Path)
	assert.Equal(t, 4, cfg.Cache.MaxParallelResolve)
	assert.Equal(t, []string{"user", "order"}, cfg.Entities.Kinds)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "unknown backend",
			content: `
log:
  backend: etcd
entities:
  kinds: [user]
`,
		},
		{
			name:    "no kinds",
			content: `{}`,
		},
		{
			name: "duplicate kinds",
			content: `
entities:
  kinds: [user, user]
`,
		},
		{
			name: "bad port",
			content: `
server:
  port: 70000
entities:
  kinds: [user]
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
