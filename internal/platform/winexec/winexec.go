// Package winexec runs child processes for the install workflow: platform
// installers, version probes, and PowerShell one-liners. Every call blocks
// until the child exits and surfaces the process exit code.
package winexec

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Run invokes exe with args and blocks until it exits. Combined stdout and
// stderr are appended to logPath when it is non-empty (the installer's native
// log stream). The returned exit code is valid whenever err is nil or the
// process itself exited non-zero; err is reserved for failures to run at all.
func Run(ctx context.Context, exe string, args []string, logPath string) (int, error) {
	cmd := exec.CommandContext(ctx, exe, args...)

	if logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
			return -1, fmt.Errorf("create installer log directory: %w", err)
		}
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return -1, fmt.Errorf("open installer log %s: %w", logPath, err)
		}
		defer f.Close()
		cmd.Stdout = f
		cmd.Stderr = f
	}

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("run %s: %w", exe, err)
}

// RunCapture invokes exe with args and returns trimmed combined output plus
// the exit code. Used for version probes and enrollment status commands whose
// output feeds the audit trail.
func RunCapture(ctx context.Context, exe string, args []string) (string, int, error) {
	cmd := exec.CommandContext(ctx, exe, args...)
	out, err := cmd.CombinedOutput()
	text := strings.TrimSpace(string(out))
	if err == nil {
		return text, 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return text, exitErr.ExitCode(), nil
	}
	return text, -1, fmt.Errorf("run %s: %w", exe, err)
}

// RunPowerShell executes a PowerShell command and returns stdout+stderr.
// Uses -ErrorAction Stop so PowerShell script errors propagate as non-zero exit.
func RunPowerShell(ctx context.Context, script string) (string, error) {
	wrapped := "$ErrorActionPreference='Stop'; " + script
	cmd := exec.CommandContext(ctx, "powershell.exe", "-NoProfile", "-NonInteractive", "-Command", wrapped)
	out, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(out)), err
}
