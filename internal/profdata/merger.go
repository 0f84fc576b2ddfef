// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Mufeed Ali

// Package profdata merges LLVM coverage profile fragments into a single
// indexed profile using the llvm-profdata tool.
package profdata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"profmerge/internal/config"
	"profmerge/internal/discovery"
	"profmerge/internal/logger"
	"profmerge/internal/runner"
)

// FragmentExtension identifies profile fragment files.
const FragmentExtension = ".profdata"

// Options tune a merge without changing what is merged.
type Options struct {
	Sparse         bool
	Timeout        time.Duration
	Validate       bool
	Concurrency    int
	MinToolVersion string
}

// DefaultOptions mirrors config.Default().
func DefaultOptions() Options {
	return OptionsFromConfig(config.Default())
}

// OptionsFromConfig copies the merge settings out of a loaded configuration.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Sparse:         cfg.Sparse,
		Timeout:        cfg.Timeout,
		Validate:       cfg.Validate,
		Concurrency:    cfg.Concurrency,
		MinToolVersion: cfg.MinToolVersion,
	}
}

// Request is a single merge invocation.
type Request struct {
	InputDir   string
	OutputFile string
	Extension  string
	ToolPath   string
	Pattern    string
	Options    Options
}

// Result describes a completed merge.
type Result struct {
	Merged      []string
	Invalid     []string
	ToolVersion *semver.Version
}

// Merger merges the profile fragments described by a Request.
type Merger interface {
	Merge(ctx context.Context, req Request) (Result, error)
}

// LLVMMerger implements Merger by running llvm-profdata.
type LLVMMerger struct {
	// Stdout and Stderr receive llvm-profdata output while it runs. Nil discards it.
	Stdout io.Writer
	Stderr io.Writer

	// Progress, when set, is told which phase the merge is in.
	Progress func(phase string)

	run func(ctx context.Context, step runner.Step) (string, error)
}

// NewLLVMMerger returns a merger that runs llvm-profdata on the local host.
func NewLLVMMerger() *LLVMMerger {
	return &LLVMMerger{run: runner.Run}
}

func (m *LLVMMerger) progress(phase string) {
	if m.Progress != nil {
		m.Progress(phase)
	}
}

func (m *LLVMMerger) exec(ctx context.Context, timeout time.Duration, step runner.Step) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	run := m.run
	if run == nil {
		run = runner.Run
	}
	out, err := run(ctx, step)
	if errors.Is(err, runner.ErrNotFound) {
		return out, fmt.Errorf("%w: %s: %w", ErrToolNotFound, step.Command, err)
	}
	return out, err
}

// Merge discovers the fragments under req.InputDir, optionally validates
// them, and merges them into req.OutputFile. Fragments that llvm-profdata
// reports as unreadable are excluded and the merge is retried once.
func (m *LLVMMerger) Merge(ctx context.Context, req Request) (Result, error) {
	var result Result
	if req.Extension == "" {
		req.Extension = FragmentExtension
	}

	pattern, err := discovery.CompilePattern(req.Pattern)
	if err != nil {
		return result, err
	}

	m.progress("Discovering profile fragments")
	fragments, err := discovery.FindFragments(req.InputDir, req.Extension, pattern)
	if err != nil {
		return result, err
	}
	if len(fragments) == 0 {
		return result, fmt.Errorf("%w: none matching %q with extension %s in %s", ErrNoFragments, pattern.String(), req.Extension, req.InputDir)
	}
	logger.Info("Found profile fragments", "count", len(fragments), "input_dir", req.InputDir)

	m.progress("Checking llvm-profdata")
	version, err := m.toolVersion(ctx, req)
	if err != nil {
		return result, err
	}
	result.ToolVersion = version

	valid := fragments
	if req.Options.Validate {
		m.progress(fmt.Sprintf("Validating %d fragments", len(fragments)))
		invalid, err := m.validate(ctx, req, fragments)
		if err != nil {
			return result, err
		}
		result.Invalid = append(result.Invalid, invalid...)
		valid = without(fragments, invalid)
	}
	if len(valid) == 0 {
		return result, fmt.Errorf("%w: all %d fragments are invalid", ErrNoFragments, len(fragments))
	}

	if dir := filepath.Dir(req.OutputFile); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return result, fmt.Errorf("failed to create output directory %s: %w", dir, err)
		}
	}

	m.progress(fmt.Sprintf("Merging %d fragments", len(valid)))
	output, err := m.mergeOnce(ctx, req, valid)
	if err != nil {
		bad := invalidProfiles(output, valid)
		var exitErr *runner.ExitError
		if len(bad) == 0 || !errors.As(err, &exitErr) || ctx.Err() != nil {
			return result, fmt.Errorf("%w: %w", ErrMergeFailed, err)
		}

		logger.Warn("Excluding fragments rejected by llvm-profdata", "invalid", bad)
		result.Invalid = append(result.Invalid, bad...)
		valid = without(valid, bad)
		if len(valid) == 0 {
			return result, fmt.Errorf("%w: all fragments rejected by llvm-profdata", ErrNoFragments)
		}

		m.progress(fmt.Sprintf("Retrying merge with %d fragments", len(valid)))
		if _, err := m.mergeOnce(ctx, req, valid); err != nil {
			return result, fmt.Errorf("%w: retry without invalid fragments: %w", ErrMergeFailed, err)
		}
	}

	result.Merged = valid
	logger.Info("Merged profile written",
		"output_file", req.OutputFile,
		"merged", len(result.Merged),
		"invalid", len(result.Invalid))
	return result, nil
}

// toolVersion runs `llvm-profdata --version` and enforces the configured minimum.
// An unparsable version only matters when a minimum is configured.
func (m *LLVMMerger) toolVersion(ctx context.Context, req Request) (*semver.Version, error) {
	out, err := m.exec(ctx, req.Options.Timeout, runner.Step{
		Name:    "version",
		Command: req.ToolPath,
		Args:    []string{"--version"},
	})
	if errors.Is(err, ErrToolNotFound) {
		return nil, err
	}

	var version *semver.Version
	if err != nil {
		logger.Warn("Could not query llvm-profdata version", "tool", req.ToolPath, "error", err)
	} else if version, err = parseToolVersion(out); err != nil {
		logger.Warn("Could not parse llvm-profdata version", "tool", req.ToolPath, "error", err)
	} else {
		logger.Debug("Detected llvm-profdata", "tool", req.ToolPath, "version", version.String())
	}

	if err := checkToolVersion(version, req.Options.MinToolVersion); err != nil {
		return nil, err
	}
	return version, nil
}

// validate runs `llvm-profdata show` on every fragment and returns those it rejects.
func (m *LLVMMerger) validate(ctx context.Context, req Request, fragments []string) ([]string, error) {
	errs, err := discovery.ForEach(ctx, fragments, req.Options.Concurrency, func(ctx context.Context, fragment string) error {
		_, err := m.exec(ctx, req.Options.Timeout, runner.Step{
			Name:    "validate " + filepath.Base(fragment),
			Command: req.ToolPath,
			Args:    []string{"show", fragment},
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	var invalid []string
	for i, fragErr := range errs {
		if fragErr == nil {
			continue
		}
		if errors.Is(fragErr, ErrToolNotFound) {
			return nil, fragErr
		}
		logger.Warn("Invalid profile fragment", "fragment", fragments[i], "error", fragErr)
		invalid = append(invalid, fragments[i])
	}
	return invalid, nil
}

// mergeOnce runs llvm-profdata merge over fragments. The inputs are passed
// through a list file to stay clear of command-line length limits.
func (m *LLVMMerger) mergeOnce(ctx context.Context, req Request, fragments []string) (string, error) {
	list, err := os.CreateTemp("", "profmerge-inputs-*.txt")
	if err != nil {
		return "", fmt.Errorf("failed to create input list: %w", err)
	}
	defer os.Remove(list.Name())

	_, werr := io.WriteString(list, strings.Join(fragments, "\n")+"\n")
	if cerr := list.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return "", fmt.Errorf("failed to write input list %s: %w", list.Name(), werr)
	}

	args := []string{"merge", "-o", req.OutputFile}
	if req.Options.Sparse {
		args = append(args, "-sparse=true")
	}
	args = append(args, "-f", list.Name())

	return m.exec(ctx, req.Options.Timeout, runner.Step{
		Name:    "merge",
		Command: req.ToolPath,
		Args:    args,
		Stdout:  m.Stdout,
		Stderr:  m.Stderr,
	})
}

// toolError matches the file named in an llvm-profdata diagnostic, e.g.
// "error: /out/unit.profdata: Malformed instrumentation profile data".
var toolError = regexp.MustCompile(`(?m)^(?:error|warning): (.+?): `)

// invalidProfiles returns the fragments named in tool diagnostics, in the
// order of fragments.
func invalidProfiles(output string, fragments []string) []string {
	named := make(map[string]bool)
	for _, m := range toolError.FindAllStringSubmatch(output, -1) {
		named[m[1]] = true
	}

	var bad []string
	for _, f := range fragments {
		if named[f] {
			bad = append(bad, f)
		}
	}
	return bad
}

// without returns items minus drop, preserving order.
func without(items, drop []string) []string {
	if len(drop) == 0 {
		return items
	}
	skip := make(map[string]bool, len(drop))
	for _, d := range drop {
		skip[d] = true
	}
	kept := make([]string, 0, len(items))
	for _, item := range items {
		if !skip[item] {
			kept = append(kept, item)
		}
	}
	return kept
}
