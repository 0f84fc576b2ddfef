// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Mufeed Ali

package profdata

import (
	"errors"

	"profmerge/internal/runner"
)

var (
	// ErrNoFragments is returned when no usable profile fragment was found.
	ErrNoFragments = errors.New("no profile fragments to merge")

	// ErrToolNotFound is returned when the llvm-profdata executable cannot be run.
	ErrToolNotFound = errors.New("llvm-profdata executable not found")

	// ErrToolVersion is returned when the tool version is unknown or too old.
	ErrToolVersion = errors.New("unsupported llvm-profdata version")

	// ErrMergeFailed is returned when llvm-profdata merge fails.
	ErrMergeFailed = errors.New("profile merge failed")
)

// ExitStatus maps a Merge error to a process exit status: 0 for nil, the
// tool's own exit status when llvm-profdata ran and failed, 1 otherwise.
func ExitStatus(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *runner.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode > 0 {
		return exitErr.ExitCode
	}
	return 1
}
