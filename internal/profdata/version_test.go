// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Mufeed Ali

package profdata

import (
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseToolVersion(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    string
		wantErr bool
	}{
		{
			name:   "upstream",
			output: "LLVM (http://llvm.org/):\n  LLVM version 17.0.6\n  Optimized build.\n",
			want:   "17.0.6",
		},
		{
			name:   "apple",
			output: "Apple LLVM version 15.0.0 (clang-1500.1.0.2.5)\n  Optimized build.\n",
			want:   "15.0.0",
		},
		{
			name:   "distribution suffix",
			output: "Ubuntu LLVM version 14.0.0\n",
			want:   "14.0.0",
		},
		{
			name:   "git build",
			output: "LLVM version 19.0.0git\n",
			want:   "19.0.0",
		},
		{
			name:    "no version",
			output:  "llvm-profdata: unknown option\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := parseToolVersion(tt.output)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrToolVersion)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.String())
		})
	}
}

func TestCheckToolVersion(t *testing.T) {
	v17 := semver.MustParse("17.0.6")

	tests := []struct {
		name    string
		version *semver.Version
		minimum string
		wantErr error
	}{
		{name: "no minimum", version: v17},
		{name: "no minimum, unknown version", version: nil},
		{name: "bare major satisfied", version: v17, minimum: "11"},
		{name: "exact", version: v17, minimum: "17.0.6"},
		{name: "too old", version: v17, minimum: "18.1.0", wantErr: ErrToolVersion},
		{name: "range constraint", version: v17, minimum: ">= 14, < 19"},
		{name: "range excludes", version: v17, minimum: ">= 18", wantErr: ErrToolVersion},
		{name: "unknown version with minimum", version: nil, minimum: "11", wantErr: ErrToolVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkToolVersion(tt.version, tt.minimum)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestCheckToolVersionBadConstraint(t *testing.T) {
	err := checkToolVersion(semver.MustParse("17.0.0"), "not a version")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid minimum tool version")
}
