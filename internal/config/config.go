// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Mufeed Ali

// Package config handles the optional profmerge configuration file, which
// supplies defaults for the merge tuning knobs that are not mandatory on the
// command line.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultTimeout bounds a single llvm-profdata invocation.
	DefaultTimeout = time.Hour

	// DefaultConcurrency is the number of fragments validated at once.
	DefaultConcurrency = 8
)

// ErrInvalidConfig is returned when a config file parses but holds unusable values.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the top-level application configuration.
type Config struct {
	// Sparse passes -sparse=true to llvm-profdata merge.
	Sparse bool `yaml:"sparse"`

	// Timeout bounds each llvm-profdata invocation.
	Timeout time.Duration `yaml:"timeout"`

	// Validate checks each fragment with `llvm-profdata show` before merging.
	Validate bool `yaml:"validate"`

	// Concurrency limits parallel fragment validation.
	Concurrency int `yaml:"concurrency"`

	// MinToolVersion is an optional minimum llvm-profdata version (e.g. "11.0.0").
	MinToolVersion string `yaml:"min_tool_version,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level,omitempty"`

	// LogToFile also writes logs to $XDG_STATE_HOME/profmerge/app.log.
	LogToFile bool `yaml:"log_to_file"`
}

// Default returns the built-in configuration used when no file exists.
func Default() Config {
	return Config{
		Sparse:      true,
		Timeout:     DefaultTimeout,
		Concurrency: DefaultConcurrency,
		LogLevel:    "info",
		LogToFile:   true,
	}
}

func DefaultConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configDir, "profmerge", "config.yaml"), nil
}

// LoadConfig reads the config file at path, or the default path when path is
// empty. A missing default file yields Default(); a missing explicit file is
// an error.
func LoadConfig(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Default(), nil
		}
		path = defaultPath
	}

	resolved, err := ResolvePath(path)
	if err != nil {
		return Config{}, err
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("failed to read config file %s: %w", resolved, err)
	}

	return Parse(data)
}

// Parse decodes YAML config data on top of Default() and validates it.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Timeout < 0 {
		return Config{}, fmt.Errorf("%w: timeout must not be negative", ErrInvalidConfig)
	}
	if cfg.Concurrency < 0 {
		return Config{}, fmt.Errorf("%w: concurrency must not be negative", ErrInvalidConfig)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = DefaultConcurrency
	}

	return cfg, nil
}

// Marshal renders cfg as YAML.
func Marshal(cfg Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to YAML: %w", err)
	}
	return data, nil
}

func ResolvePath(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path, fmt.Errorf("could not get user home directory to resolve path '%s': %w", path, err)
	}

	return filepath.Join(homeDir, path[2:]), nil
}
