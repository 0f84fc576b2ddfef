// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Mufeed Ali

// Package discovery finds profile fragments below an input directory. A
// fragment is a regular file whose name carries the fragment extension and
// in which a filename pattern is found.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"profmerge/internal/logger"
)

// MatchAll is the filename pattern used when none is given.
const MatchAll = ".*"

// maxConcurrentChecks is used by ForEach when the caller passes no limit.
const maxConcurrentChecks = 8

var (
	// ErrInputDir is returned when the input directory is missing or not a directory.
	ErrInputDir = errors.New("invalid input directory")

	// ErrInvalidPattern is returned when the filename pattern does not compile.
	ErrInvalidPattern = errors.New("invalid filename pattern")
)

// CompilePattern compiles a filename pattern. The pattern may match anywhere
// in a file name; callers anchor it with ^ or $ themselves. An empty pattern
// matches everything.
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		pattern = MatchAll
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidPattern, pattern, err)
	}
	return re, nil
}

// FindFragments walks root recursively and returns the paths of all files
// whose base name ends with extension and matches pattern. Paths are sorted.
func FindFragments(root, extension string, pattern *regexp.Regexp) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrInputDir, root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInputDir, root)
	}

	var fragments []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			logger.Warn("Skipping unreadable path", "path", path, "error", walkErr)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		name := d.Name()
		if !strings.HasSuffix(name, extension) {
			return nil
		}
		if pattern != nil && !pattern.MatchString(name) {
			logger.Debug("Fragment does not match pattern", "path", path, "pattern", pattern.String())
			return nil
		}
		fragments = append(fragments, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}

	sort.Strings(fragments)
	logger.Debug("Fragment discovery finished", "root", root, "extension", extension, "count", len(fragments))
	return fragments, nil
}

// ForEach calls fn for every item with at most limit calls in flight and
// returns the per-item errors, index-aligned with items. A failing item does
// not stop the others; only cancellation of ctx does, in which case the
// context error is returned.
func ForEach(ctx context.Context, items []string, limit int, fn func(ctx context.Context, item string) error) ([]error, error) {
	if limit <= 0 {
		limit = maxConcurrentChecks
	}

	results := make([]error, len(items))
	sem := semaphore.NewWeighted(int64(limit))
	g, gctx := errgroup.WithContext(ctx)

	for i, item := range items {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			results[i] = fn(gctx, item)
			return nil
		})
	}

	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}
