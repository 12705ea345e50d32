// Package config loads the blockalloc YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ha1tch/blockalloc/pkg/bytesize"
	"github.com/ha1tch/blockalloc/pkg/vdisk"
)

const (
	DefaultStoragePath       = "~/.blockalloc/disk.db"
	DefaultListen            = ":5000"
	DefaultAuditDisplayLimit = 50
	DefaultLogLevel          = "info"
)

// DiskConfig holds the geometry of the virtual disk.
type DiskConfig struct {
	TotalBlocks int           `yaml:"total_blocks"`
	BlockSize   bytesize.Size `yaml:"block_size"` // e.g. "4KB"
}

// StorageConfig holds the location of the SQLite store.
type StorageConfig struct {
	Path string `yaml:"path"` // Defaults to DefaultStoragePath
}

// HousekeepingConfig holds the junk and compression policy.
type HousekeepingConfig struct {
	JunkExtensions    []string      `yaml:"junk_extensions"`
	CompressThreshold bytesize.Size `yaml:"compress_threshold"` // Suggest compression above this size
}

// EngineConfig holds mutation scheduling options.
type EngineConfig struct {
	RejectWhenBusy bool `yaml:"reject_when_busy"` // Fail with busy instead of queueing writers
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Listen            string   `yaml:"listen"`
	AuditDisplayLimit int      `yaml:"audit_display_limit"` // Events returned by /logs
	AllowedOrigins    []string `yaml:"allowed_origins"`     // CORS origins
}

// Config is the top-level configuration file.
type Config struct {
	Disk         DiskConfig         `yaml:"disk"`
	Storage      StorageConfig      `yaml:"storage"`
	Housekeeping HousekeepingConfig `yaml:"housekeeping"`
	Engine       EngineConfig       `yaml:"engine"`
	Server       ServerConfig       `yaml:"server"`
	LogLevel     string             `yaml:"log_level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a configuration file and fills in defaults for anything it
// leaves out.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	cfg.applyDefaults()

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Disk.TotalBlocks == 0 {
		c.Disk.TotalBlocks = vdisk.DefaultTotalBlocks
	}
	if c.Disk.BlockSize == 0 {
		c.Disk.BlockSize = bytesize.Size(vdisk.DefaultBlockSize)
	}
	if c.Storage.Path == "" {
		c.Storage.Path = DefaultStoragePath
	}
	c.Storage.Path = expandHome(c.Storage.Path)
	if c.Housekeeping.JunkExtensions == nil {
		c.Housekeeping.JunkExtensions = append([]string(nil), vdisk.DefaultJunkExtensions...)
	}
	if c.Housekeeping.CompressThreshold == 0 {
		c.Housekeeping.CompressThreshold = bytesize.Size(vdisk.DefaultCompressThresholdKB * bytesize.KB)
	}
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}
	if c.Server.AuditDisplayLimit == 0 {
		c.Server.AuditDisplayLimit = DefaultAuditDisplayLimit
	}
	if c.Server.AllowedOrigins == nil {
		c.Server.AllowedOrigins = []string{"http://localhost:5173", "http://127.0.0.1:5173"}
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

// expandHome replaces a leading "~/" with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(homeDir, path[2:])
}

// Geometry returns the disk shape described by the configuration.
func (c *Config) Geometry() vdisk.Geometry {
	return vdisk.Geometry{
		TotalBlocks: c.Disk.TotalBlocks,
		BlockSize:   int(c.Disk.BlockSize.Bytes()),
	}
}

// EngineOptions returns the engine settings of the configuration. The
// caller supplies the store and logger.
func (c *Config) EngineOptions() vdisk.Options {
	return vdisk.Options{
		Geometry:            c.Geometry(),
		JunkExtensions:      c.Housekeeping.JunkExtensions,
		CompressThresholdKB: c.Housekeeping.CompressThreshold.KB(),
		RejectWhenBusy:      c.Engine.RejectWhenBusy,
	}
}

// Validate checks the configuration for values the engine or server
// would reject.
func (c *Config) Validate() error {
	if err := c.Geometry().Validate(); err != nil {
		return fmt.Errorf("disk: %w", err)
	}
	for _, ext := range c.Housekeeping.JunkExtensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			return fmt.Errorf("housekeeping.junk_extensions: %q must start with a dot", ext)
		}
	}
	if c.Housekeeping.CompressThreshold < 0 {
		return fmt.Errorf("housekeeping.compress_threshold must not be negative")
	}
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	if c.Server.AuditDisplayLimit < 0 {
		return fmt.Errorf("server.audit_display_limit must not be negative")
	}
	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level: unknown level %q", c.LogLevel)
	}
	return nil
}
