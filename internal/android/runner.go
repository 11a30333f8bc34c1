package android

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
)

// Runner executes adb invocations. The default implementation shells out to
// the adb binary; tests substitute a fake.
type Runner interface {
	// Output runs adb and returns its stdout.
	Output(ctx context.Context, args ...string) ([]byte, error)
	// Stream runs adb and returns its stdout as a stream. Closing the stream
	// waits for the process to exit.
	Stream(ctx context.Context, args ...string) (io.ReadCloser, error)
	// Feed runs adb with stdin attached to r and returns the combined output.
	Feed(ctx context.Context, r io.Reader, args ...string) ([]byte, error)
}

type execRunner struct {
	adbPath string
}

// NewExecRunner returns a Runner backed by the adb binary at adbPath.
func NewExecRunner(adbPath string) Runner {
	if adbPath == "" {
		adbPath = "adb"
	}
	return &execRunner{adbPath: adbPath}
}

func (r *execRunner) Output(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, r.adbPath, args...)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return output, fmt.Errorf("adb %s failed: %w (stderr: %s)", args[0], err, bytes.TrimSpace(exitErr.Stderr))
		}
		return output, fmt.Errorf("adb %s failed: %w", args[0], err)
	}
	return output, nil
}

func (r *execRunner) Stream(ctx context.Context, args ...string) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, r.adbPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open adb stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start adb: %w", err)
	}
	return &cmdStream{ReadCloser: stdout, cmd: cmd}, nil
}

func (r *execRunner) Feed(ctx context.Context, in io.Reader, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, r.adbPath, args...)
	cmd.Stdin = in
	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, fmt.Errorf("adb %s failed: %w (output: %s)", args[0], err, bytes.TrimSpace(output))
	}
	return output, nil
}

type cmdStream struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (s *cmdStream) Close() error {
	// Drain so the process can exit when the caller stops early.
	_, _ = io.Copy(io.Discard, s.ReadCloser)
	if err := s.cmd.Wait(); err != nil {
		return fmt.Errorf("adb stream failed: %w", err)
	}
	return nil
}
