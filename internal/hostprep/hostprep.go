// Package hostprep applies ambient host-level preparation that some agents
// assume as a precondition: timezone normalization and event log source
// registration. These are deliberate, separate steps invoked before any
// install workflow, never side effects buried inside one.
package hostprep

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/pallav98/windows-ws/internal/platform/eventlog"
	"github.com/pallav98/windows-ws/internal/platform/winexec"
)

// Step is one independently-runnable preparation action. Steps are
// idempotent: re-running a prepared host is a no-op success.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// StepResult pairs a step with its outcome.
type StepResult struct {
	Name string
	Err  error
}

// Steps returns the preparation steps for the given timezone. An empty
// timezone skips the timezone step.
func Steps(timezone string) []Step {
	var steps []Step
	if timezone != "" {
		steps = append(steps, Step{
			Name: "set-timezone",
			Run:  func(ctx context.Context) error { return SetTimezone(ctx, timezone) },
		})
	}
	steps = append(steps, Step{
		Name: "register-event-source",
		Run:  func(ctx context.Context) error { return eventlog.RegisterSource() },
	})
	return steps
}

// RunAll executes every step, continuing past failures so one broken step
// does not mask the others. Each result carries its own error.
func RunAll(ctx context.Context, steps []Step) []StepResult {
	results := make([]StepResult, 0, len(steps))
	for _, s := range steps {
		results = append(results, StepResult{Name: s.Name, Err: s.Run(ctx)})
	}
	return results
}

// SetTimezone sets the host timezone via tzutil, skipping the call when the
// host already reports the wanted zone.
func SetTimezone(ctx context.Context, tz string) error {
	if runtime.GOOS != "windows" {
		return fmt.Errorf("timezone preparation only supported on Windows")
	}

	current, code, err := winexec.RunCapture(ctx, "tzutil.exe", []string{"/g"})
	if err == nil && code == 0 && strings.EqualFold(strings.TrimSpace(current), tz) {
		return nil
	}

	out, code, err := winexec.RunCapture(ctx, "tzutil.exe", []string{"/s", tz})
	if err != nil {
		return fmt.Errorf("tzutil: %w", err)
	}
	if code != 0 {
		return fmt.Errorf("tzutil exited %d: %s", code, out)
	}
	return nil
}
