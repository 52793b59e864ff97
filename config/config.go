// Package config loads the adbvol configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/gen2brain/adbvol"
	"github.com/gen2brain/adbvol/adb"
	"github.com/gen2brain/adbvol/hostaudio"
)

// FileName is the name of the configuration file in the working directory.
const FileName = "adbvol.yaml"

// Config is the complete configuration.
type Config struct {
	Device adb.Config       `yaml:"device"`
	Host   hostaudio.Config `yaml:"host"`
	Sync   adbvol.Config    `yaml:"sync"`
	// LogLevel is one of debug, info, warn or error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Device:   adb.DefaultConfig(),
		Host:     hostaudio.DefaultConfig(),
		Sync:     adbvol.DefaultConfig(),
		LogLevel: "info",
	}
}

// Load reads the configuration file at path. Keys missing from the file keep
// their defaults, and a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}

		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes cfg to path, creating the parent directory.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SearchPaths returns the locations DefaultPath looks at, in order.
func SearchPaths() []string {
	paths := []string{FileName}

	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "adbvol", "config.yaml"))
	}

	return append(paths, "/etc/adbvol/config.yaml")
}

// DefaultPath returns the first existing search path, or the user config
// path when none exists.
func DefaultPath() string {
	paths := SearchPaths()

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if len(paths) > 2 {
		return paths[1]
	}

	return paths[0]
}

// Validate checks every section.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Device.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("device: %w", err))
	}

	if err := c.Host.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("host: %w", err))
	}

	if err := c.Sync.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("sync: %w", err))
	}

	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.LogLevel))
	}

	return errors.Join(errs...)
}
