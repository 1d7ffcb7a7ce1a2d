// Package installer implements the idempotent install workflow shared by all
// supported agents: detect, acquire, execute, verify, report. Agent-specific
// behavior comes in as data (agentspec.Spec), never as separate code paths.
package installer

import (
	"encoding/json"
	"fmt"
)

// Status is the terminal outcome of one install run.
type Status string

const (
	// StatusAlreadyInstalled: detection found the agent present (and, under
	// exact version policy, matching). Terminal success, not an error.
	StatusAlreadyInstalled Status = "AlreadyInstalled"

	// StatusInstalled: the full workflow ran and verification passed.
	StatusInstalled Status = "Installed"

	// StatusDownloadFailed: payload acquisition failed; no install attempt.
	StatusDownloadFailed Status = "DownloadFailed"

	// StatusInstallFailed: the platform installer exited with an
	// untolerated non-zero code.
	StatusInstallFailed Status = "InstallFailed"

	// StatusVerificationFailed: a post-install check failed after its
	// bounded corrective attempt.
	StatusVerificationFailed Status = "VerificationFailed"

	// StatusError: an unexpected fault outside the stage-specific failure
	// taxonomy. The catch-all, always the last line of defense.
	StatusError Status = "Error"
)

// ExitCode maps a terminal status to the process exit code contract consumed
// by the invoking controller.
func (s Status) ExitCode() int {
	switch s {
	case StatusAlreadyInstalled, StatusInstalled:
		return 0
	case StatusDownloadFailed:
		return 2
	case StatusError:
		return 3
	default: // InstallFailed, VerificationFailed, anything unrecognized
		return 1
	}
}

// Result is the structured outcome of one install run. Details is append-only
// and chronological: it is the audit trail, never reordered or deduplicated.
type Result struct {
	Software string   `json:"software"`
	Expected string   `json:"expected"`
	Status   Status   `json:"status"`
	Details  []string `json:"details"`
	ExitCode int      `json:"exit_code"`
}

func newResult(software, expected string) *Result {
	return &Result{
		Software: software,
		Expected: expected,
		Details:  []string{},
	}
}

// detail appends one formatted line to the audit trail.
func (r *Result) detail(format string, args ...interface{}) {
	r.Details = append(r.Details, fmt.Sprintf(format, args...))
}

// finalize sets the terminal status, derives the exit code, and appends the
// terminal-status line. Called exactly once per run.
func (r *Result) finalize(status Status) *Result {
	r.Status = status
	r.ExitCode = status.ExitCode()
	r.detail("terminal status: %s (exit %d)", status, r.ExitCode)
	return r
}

// JSON renders the result as a single machine-parseable line.
func (r *Result) JSON() string {
	data, err := json.Marshal(r)
	if err != nil {
		// Marshal of this struct cannot fail; keep the contract anyway.
		return fmt.Sprintf(`{"software":%q,"status":"Error","exit_code":3}`, r.Software)
	}
	return string(data)
}
