// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Mufeed Ali

package profdata

import (
	"fmt"
	"regexp"

	"github.com/Masterminds/semver/v3"
)

// versionLine matches "LLVM version 17.0.6" as well as vendor variants such
// as "Apple LLVM version 15.0.0 (clang-1500.1.0.2.5)".
var versionLine = regexp.MustCompile(`LLVM version (\d+(?:\.\d+){0,2})`)

// parseToolVersion extracts the LLVM version from `llvm-profdata --version` output.
func parseToolVersion(output string) (*semver.Version, error) {
	m := versionLine.FindStringSubmatch(output)
	if m == nil {
		return nil, fmt.Errorf("%w: no version in tool output", ErrToolVersion)
	}
	v, err := semver.NewVersion(m[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrToolVersion, m[1], err)
	}
	return v, nil
}

// versionConstraint turns a minimum version ("11", "14.0.6") or an explicit
// constraint (">= 11, < 19") into a semver constraint.
func versionConstraint(minimum string) (*semver.Constraints, error) {
	if _, err := semver.NewVersion(minimum); err == nil {
		minimum = ">= " + minimum
	}
	c, err := semver.NewConstraint(minimum)
	if err != nil {
		return nil, fmt.Errorf("invalid minimum tool version %q: %w", minimum, err)
	}
	return c, nil
}

// checkToolVersion verifies v against minimum. An empty minimum accepts anything.
func checkToolVersion(v *semver.Version, minimum string) error {
	if minimum == "" {
		return nil
	}
	c, err := versionConstraint(minimum)
	if err != nil {
		return err
	}
	if v == nil {
		return fmt.Errorf("%w: version unknown, need %s", ErrToolVersion, c)
	}
	if !c.Check(v) {
		return fmt.Errorf("%w: have %s, need %s", ErrToolVersion, v, c)
	}
	return nil
}
