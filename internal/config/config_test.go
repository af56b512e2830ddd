package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
tap:
  workers: 4
  fanout_id: 99
clickhouse:
  enabled: true
  host: ch.example.com
  port: 9000
  database: flows
nats_export:
  enabled: true
  url: nats://127.0.0.1:4222
  subject: clerk.ipfix
api:
  enabled: true
  listen: 0.0.0.0:9099
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Tap.Workers)
	assert.Equal(t, uint16(99), cfg.Tap.FanoutID)
	// Defaults survive for keys the file leaves out.
	assert.Equal(t, 256, cfg.Tap.BatchSize)
	assert.Equal(t, "clerk", cfg.Tap.NATSQueue)
	assert.True(t, cfg.ClickHouse.Enabled)
	assert.Equal(t, "ch.example.com", cfg.ClickHouse.Host)
	assert.True(t, cfg.NATSExport.Enabled)
	assert.Equal(t, "clerk.ipfix", cfg.NATSExport.Subject)
	assert.Equal(t, "0.0.0.0:9099", cfg.API.Listen)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.False(t, cfg.ClickHouse.Enabled)
	assert.False(t, cfg.NATSExport.Enabled)
	assert.Equal(t, "127.0.0.1:9099", cfg.API.Listen)
}
