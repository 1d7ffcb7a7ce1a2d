// Package verify runs ordered post-install checks. Each check may take a
// small, bounded corrective action before failing: a stopped service gets one
// start attempt, an unlinked agent gets one unlink+relink cycle. Retries are
// capped, never unbounded.
package verify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pallav98/windows-ws/internal/agentspec"
	"github.com/pallav98/windows-ws/internal/platform/svcctl"
	"github.com/pallav98/windows-ws/internal/platform/winexec"
)

// ServiceControl abstracts SCM operations so checks can be tested with fakes.
type ServiceControl interface {
	Exists(name string) (bool, error)
	State(name string) (svcctl.State, error)
	Start(name string) error
}

// CommandRunner runs a child process and captures output plus exit code.
type CommandRunner interface {
	RunCapture(ctx context.Context, exe string, args []string) (string, int, error)
}

// Verifier executes post-install checks against injected collaborators.
type Verifier struct {
	Services ServiceControl
	Runner   CommandRunner

	// Poll overrides the service-state poll interval; zero means 1s.
	Poll time.Duration
}

// New creates a Verifier backed by the live platform facades.
func New() *Verifier {
	return &Verifier{
		Services: scmServices{},
		Runner:   execRunner{},
	}
}

// Run executes one check, appending human-readable progress to detail.
// A nil return means the check passed (possibly after a corrective action).
func (v *Verifier) Run(ctx context.Context, check agentspec.Check, detail func(string)) error {
	switch check.Kind {
	case agentspec.CheckServiceRunning:
		return v.serviceRunning(ctx, check, detail)
	case agentspec.CheckVersionMatch:
		return v.versionMatch(ctx, check, detail)
	case agentspec.CheckEnrollment:
		return v.enrollment(ctx, check, detail)
	default:
		return fmt.Errorf("unknown check kind %q", check.Kind)
	}
}

// serviceRunning verifies the service is running, attempting one start and
// waiting for the running transition when it exists but is stopped.
func (v *Verifier) serviceRunning(ctx context.Context, check agentspec.Check, detail func(string)) error {
	exists, err := v.Services.Exists(check.ServiceName)
	if err != nil {
		return fmt.Errorf("query service %s: %w", check.ServiceName, err)
	}
	if !exists {
		return fmt.Errorf("service %s not registered after install", check.ServiceName)
	}

	state, err := v.Services.State(check.ServiceName)
	if err != nil {
		return fmt.Errorf("query service %s state: %w", check.ServiceName, err)
	}
	if state == svcctl.StateRunning {
		detail(fmt.Sprintf("service %s is running", check.ServiceName))
		return nil
	}

	// One corrective start, then wait for the transition.
	detail(fmt.Sprintf("service %s is %s, attempting start", check.ServiceName, state))
	if err := v.Services.Start(check.ServiceName); err != nil {
		return fmt.Errorf("start service %s: %w", check.ServiceName, err)
	}

	timeout := check.StartTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if err := v.waitForRunning(ctx, check.ServiceName, timeout); err != nil {
		return err
	}

	detail(fmt.Sprintf("service %s started after corrective action", check.ServiceName))
	return nil
}

func (v *Verifier) waitForRunning(ctx context.Context, name string, timeout time.Duration) error {
	poll := v.Poll
	if poll <= 0 {
		poll = time.Second
	}
	deadline := time.Now().Add(timeout)
	for {
		state, err := v.Services.State(name)
		if err == nil && state == svcctl.StateRunning {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("service %s did not reach running within %v", name, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll):
		}
	}
}

// versionMatch probes the installed binary for its version string and
// compares against the expectation. Containment is enough: vendors decorate
// version output with product names and build metadata.
func (v *Verifier) versionMatch(ctx context.Context, check agentspec.Check, detail func(string)) error {
	out, code, err := v.Runner.RunCapture(ctx, check.ExePath, check.VersionArgs)
	if err != nil {
		return fmt.Errorf("version probe %s: %w", check.ExePath, err)
	}
	if code != 0 {
		return fmt.Errorf("version probe %s exited %d: %s", check.ExePath, code, out)
	}
	if !strings.Contains(out, check.ExpectedVersion) {
		return fmt.Errorf("version mismatch: expected %s, probe reported %q", check.ExpectedVersion, out)
	}
	detail(fmt.Sprintf("version check passed: %s reports %s", check.ExePath, check.ExpectedVersion))
	return nil
}

// enrollment verifies the agent reports being linked to its management
// server. When the first probe says otherwise, one unlink+relink cycle is
// attempted before re-probing once.
func (v *Verifier) enrollment(ctx context.Context, check agentspec.Check, detail func(string)) error {
	out, _, err := v.Runner.RunCapture(ctx, check.StatusExe, check.StatusArgs)
	if err != nil {
		return fmt.Errorf("enrollment status %s: %w", check.StatusExe, err)
	}
	if strings.Contains(out, check.LinkedMarker) {
		detail("enrollment check passed: agent is linked")
		return nil
	}

	detail(fmt.Sprintf("agent not linked (status: %q), attempting relink", truncate(out, 120)))

	if check.UnlinkExe != "" {
		if uout, ucode, uerr := v.Runner.RunCapture(ctx, check.UnlinkExe, check.UnlinkArgs); uerr != nil || ucode != 0 {
			detail(fmt.Sprintf("unlink step reported exit %d: %s", ucode, truncate(uout, 120)))
		}
	}
	if check.RelinkExe == "" {
		return fmt.Errorf("agent not linked and no relink command configured")
	}
	rout, rcode, rerr := v.Runner.RunCapture(ctx, check.RelinkExe, check.RelinkArgs)
	if rerr != nil {
		return fmt.Errorf("relink: %w", rerr)
	}
	if rcode != 0 {
		return fmt.Errorf("relink exited %d: %s", rcode, truncate(rout, 120))
	}

	// One re-probe only.
	out, _, err = v.Runner.RunCapture(ctx, check.StatusExe, check.StatusArgs)
	if err != nil {
		return fmt.Errorf("enrollment re-probe: %w", err)
	}
	if !strings.Contains(out, check.LinkedMarker) {
		return fmt.Errorf("agent still not linked after relink (status: %q)", truncate(out, 120))
	}

	detail("enrollment check passed after relink")
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// scmServices adapts the svcctl facade to ServiceControl.
type scmServices struct{}

func (scmServices) Exists(name string) (bool, error)        { return svcctl.Exists(name) }
func (scmServices) State(name string) (svcctl.State, error) { return svcctl.Query(name) }
func (scmServices) Start(name string) error                 { return svcctl.Start(name) }

// execRunner adapts winexec to CommandRunner.
type execRunner struct{}

func (execRunner) RunCapture(ctx context.Context, exe string, args []string) (string, int, error) {
	return winexec.RunCapture(ctx, exe, args)
}
