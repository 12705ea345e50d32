package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ha1tch/blockalloc/pkg/vdisk"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blockalloc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
disk:
  total_blocks: 64
  block_size: 1KB
storage:
  path: /tmp/disk.db
housekeeping:
  junk_extensions: [.tmp, .swp]
  compress_threshold: 1MB
engine:
  reject_when_busy: true
server:
  listen: "127.0.0.1:8080"
  audit_display_limit: 10
log_level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, vdisk.Geometry{TotalBlocks: 64, BlockSize: 1024}, cfg.Geometry())
	assert.Equal(t, "/tmp/disk.db", cfg.Storage.Path)
	assert.Equal(t, []string{".tmp", ".swp"}, cfg.Housekeeping.JunkExtensions)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Listen)
	assert.Equal(t, 10, cfg.Server.AuditDisplayLimit)
	assert.Equal(t, "debug", cfg.LogLevel)

	opts := cfg.EngineOptions()
	assert.Equal(t, 1024, opts.CompressThresholdKB)
	assert.True(t, opts.RejectWhenBusy)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "log_level: warn\n"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, vdisk.DefaultGeometry(), cfg.Geometry())
	assert.Equal(t, vdisk.DefaultJunkExtensions, cfg.Housekeeping.JunkExtensions)
	assert.Equal(t, vdisk.DefaultCompressThresholdKB, cfg.EngineOptions().CompressThresholdKB)
	assert.Equal(t, DefaultListen, cfg.Server.Listen)
	assert.Equal(t, DefaultAuditDisplayLimit, cfg.Server.AuditDisplayLimit)
	assert.NotEmpty(t, cfg.Server.AllowedOrigins)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.False(t, cfg.Engine.RejectWhenBusy)
}

func TestLoad_ExpandsHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	cfg, err := Load(writeConfig(t, "storage:\n  path: ~/sim/disk.db\n"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "sim", "disk.db"), cfg.Storage.Path)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "disk: [unclosed\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "disk:\n  block_size: huge\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"block size not a multiple of 1KB", func(c *Config) { c.Disk.BlockSize = 1500 }},
		{"negative blocks", func(c *Config) { c.Disk.TotalBlocks = -5 }},
		{"junk without dot", func(c *Config) { c.Housekeeping.JunkExtensions = []string{"tmp"} }},
		{"empty listen", func(c *Config) { c.Server.Listen = "" }},
		{"unknown log level", func(c *Config) { c.LogLevel = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			require.NoError(t, cfg.Validate())
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
