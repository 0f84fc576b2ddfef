// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Mufeed Ali

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    Config
		wantErr error
	}{
		{
			name: "empty document keeps defaults",
			data: "",
			want: Default(),
		},
		{
			name: "overrides",
			data: "sparse: false\ntimeout: 90s\nvalidate: true\nconcurrency: 2\nmin_tool_version: \"11.0\"\nlog_level: debug\nlog_to_file: false\n",
			want: Config{
				Sparse:         false,
				Timeout:        90 * time.Second,
				Validate:       true,
				Concurrency:    2,
				MinToolVersion: "11.0",
				LogLevel:       "debug",
				LogToFile:      false,
			},
		},
		{
			name: "zero values fall back to defaults",
			data: "timeout: 0s\nconcurrency: 0\n",
			want: Default(),
		},
		{
			name:    "negative concurrency",
			data:    "concurrency: -1\n",
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "negative timeout",
			data:    "timeout: -5m\n",
			wantErr: ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse([]byte(tt.data))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("sparse: [unterminated"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestLoadConfig(t *testing.T) {
	t.Run("explicit file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("validate: true\n"), 0o600))

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.True(t, cfg.Validate)
		assert.True(t, cfg.Sparse)
	})

	t.Run("missing explicit file is an error", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})

	t.Run("missing default file yields defaults", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", t.TempDir())
		t.Setenv("HOME", t.TempDir())

		cfg, err := LoadConfig("")
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})
}

func TestDefaultLogsToFile(t *testing.T) {
	assert.True(t, Default().LogToFile)

	cfg, err := Parse([]byte("log_level: warn\n"))
	require.NoError(t, err)
	assert.True(t, cfg.LogToFile)

	data, err := Marshal(Default())
	require.NoError(t, err)
	assert.Contains(t, string(data), "log_to_file: true")
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.MinToolVersion = "14.0.0"

	data, err := Marshal(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(data), "timeout: 1h0m0s")

	back, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}

func TestResolvePath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := ResolvePath("~/cfg/profmerge.yaml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "cfg", "profmerge.yaml"), got)

	got, err = ResolvePath("/etc/profmerge.yaml")
	require.NoError(t, err)
	assert.Equal(t, "/etc/profmerge.yaml", got)
}
