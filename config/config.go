// Package config loads blockfs settings from a YAML file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mit-pdos/go-blockfs/common"
	"github.com/mit-pdos/go-blockfs/disk"
)

const (
	EnvPath = "BLOCKFS_CONFIG"

	DefaultImage    = "disk"
	DefaultSize     = 1 << 20
	DefaultInodes   = 512
	DefaultLogLevel = "off"
)

type Config struct {
	Image    string `yaml:"image"`     // path of the disk image
	Size     uint64 `yaml:"size"`      // image size in bytes
	Inodes   uint64 `yaml:"inodes"`    // inodes created by mkfs
	LogLevel string `yaml:"log_level"` // trace, debug, info, warn, off
}

// Default returns a Config with every field at its default.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-value fields with their defaults.
func (cfg *Config) ApplyDefaults() {
	if cfg.Image == "" {
		cfg.Image = DefaultImage
	}
	if cfg.Size == 0 {
		cfg.Size = DefaultSize
	}
	if cfg.Inodes == 0 {
		cfg.Inodes = DefaultInodes
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
}

// Blocks is the image size in blocks.
func (cfg *Config) Blocks() uint64 {
	return cfg.Size / disk.BlockSize
}

func (cfg *Config) Validate() error {
	if cfg.Size%disk.BlockSize != 0 {
		return fmt.Errorf("size %d is not a multiple of %d: %w", cfg.Size, disk.BlockSize, common.ErrInvalidArgument)
	}
	switch cfg.LogLevel {
	case "trace", "debug", "info", "warn", "off":
	default:
		return fmt.Errorf("log_level %q: %w", cfg.LogLevel, common.ErrInvalidArgument)
	}
	return nil
}

// Path picks the config file: the flag value if set, else $BLOCKFS_CONFIG.
func Path(flag string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv(EnvPath)
}

// LoadFromPath reads the config at path. A missing file, or an empty path,
// gives the defaults.
func LoadFromPath(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}
