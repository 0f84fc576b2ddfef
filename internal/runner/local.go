// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Mufeed Ali

// Package runner executes external tools on the local host, capturing their
// output and exit status.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os/exec"
	"sync"
	"time"

	"profmerge/internal/logger"
	"profmerge/internal/util"
)

// waitDelay bounds how long Run waits for output pipes after the tool was
// killed. Children the tool forked may keep them open.
const waitDelay = time.Second

// ErrNotFound is returned when the executable does not exist or is not runnable.
var ErrNotFound = errors.New("executable not found")

// Step describes a single invocation of an external tool.
type Step struct {
	Name    string
	Command string
	Args    []string

	// Stdout and Stderr, when set, receive the tool's output as it is produced
	// in addition to it being captured.
	Stdout io.Writer
	Stderr io.Writer
}

// ExitError reports a tool that started but did not finish successfully.
type ExitError struct {
	Step     string
	ExitCode int // -1 when the process was killed or the status is unknown
	Output   string
	Err      error
}

func (e *ExitError) Error() string {
	if e.ExitCode >= 0 {
		return fmt.Sprintf("%s exited with status %d", e.Step, e.ExitCode)
	}
	return fmt.Sprintf("%s failed: %v", e.Step, e.Err)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// lockedBuffer collects stdout and stderr into a single transcript.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Run executes step and waits for it to finish. The returned string is the
// combined stdout and stderr of the tool, also on failure.
func Run(ctx context.Context, step Step) (string, error) {
	cmdDesc := fmt.Sprintf("step '%s'", step.Name)
	logger.Debug("Running command", "step", step.Name, "command", util.FormatCommand(step.Command, step.Args...))

	var transcript lockedBuffer
	cmd := exec.CommandContext(ctx, step.Command, step.Args...) //nolint:gosec // tool path is provided by the user
	cmd.WaitDelay = waitDelay

	cmd.Stdout = &transcript
	if step.Stdout != nil {
		cmd.Stdout = io.MultiWriter(&transcript, step.Stdout)
	}
	cmd.Stderr = &transcript
	if step.Stderr != nil {
		cmd.Stderr = io.MultiWriter(&transcript, step.Stderr)
	}

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return "", fmt.Errorf("failed to start %s: %w: %s", cmdDesc, ErrNotFound, step.Command)
		}
		return "", fmt.Errorf("failed to start %s: %w", cmdDesc, err)
	}

	cmdErr := cmd.Wait()
	output := transcript.String()
	if cmdErr == nil {
		return output, nil
	}

	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(cmdErr, &exitErr) {
		exitCode = exitErr.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		// A killed process reports -1; surface the deadline or cancellation instead.
		cmdErr = ctxErr
		exitCode = -1
	}

	logger.Debug("Command failed", "step", step.Name, "exit_code", exitCode, "error", cmdErr)
	return output, &ExitError{Step: cmdDesc, ExitCode: exitCode, Output: output, Err: cmdErr}
}
