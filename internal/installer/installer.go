package installer

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pallav98/windows-ws/internal/agentspec"
)

// Detection is the outcome of evaluating a spec's detection predicate.
type Detection struct {
	Present bool
	Version string // populated when the predicate surfaces one
	Note    string // human-readable evidence for the audit trail
}

// Detector evaluates a spec's detection predicate against the live host.
type Detector interface {
	Detect(ctx context.Context, spec *agentspec.Spec) (Detection, error)
}

// Fetcher stages the installer payload and returns its local path.
type Fetcher interface {
	Stage(ctx context.Context, src agentspec.Source) (string, error)
}

// Runner executes the platform installer synchronously and returns its exit
// code.
type Runner interface {
	Run(ctx context.Context, exe string, args []string, logPath string) (int, error)
}

// Checker runs one post-install check, appending progress via detail.
type Checker interface {
	Run(ctx context.Context, check agentspec.Check, detail func(string)) error
}

// Installer drives the five-stage workflow. All collaborators are injected
// so every stage can be exercised with fakes.
type Installer struct {
	Detector Detector
	Fetcher  Fetcher
	Runner   Runner
	Checker  Checker

	// Sleep is the settle-delay hook; tests replace it to avoid real waits.
	Sleep func(ctx context.Context, d time.Duration)

	Log zerolog.Logger
}

// Install runs the workflow for one spec and always returns a finalized
// Result: no fault escapes uncaught, including panics from collaborator
// implementations.
func (ins *Installer) Install(ctx context.Context, spec *agentspec.Spec) (res *Result) {
	res = newResult(spec.Name, spec.Expected)

	defer func() {
		if r := recover(); r != nil {
			res.detail("unexpected fault: %v", r)
			res.finalize(StatusError)
			ins.Log.Error().Str("software", spec.Name).Interface("panic", r).Msg("install run panicked")
		}
	}()

	if err := spec.Validate(); err != nil {
		res.detail("invalid spec: %v", err)
		return res.finalize(StatusError)
	}

	// Detect
	det, err := ins.Detector.Detect(ctx, spec)
	if err != nil {
		res.detail("detection failed: %v", err)
		return res.finalize(StatusError)
	}

	if det.Present {
		if det.Note != "" {
			res.detail("detected: %s", det.Note)
		} else {
			res.detail("detected: %s present", spec.Name)
		}

		switch spec.EffectiveVersionPolicy() {
		case agentspec.VersionExact:
			if det.Version == spec.Detection.ExpectedVersion {
				res.detail("version %s matches expectation, nothing to do", det.Version)
				return res.finalize(StatusAlreadyInstalled)
			}
			// Stale install: proceed to install-over rather than failing.
			res.detail("stale version %q (expected %s), proceeding with install-over",
				det.Version, spec.Detection.ExpectedVersion)
		default:
			return res.finalize(StatusAlreadyInstalled)
		}
	} else {
		res.detail("not detected: %s absent", spec.Name)
	}

	// Acquire
	installerPath, err := ins.Fetcher.Stage(ctx, spec.Source)
	if err != nil {
		res.detail("acquisition failed: %v", err)
		return res.finalize(StatusDownloadFailed)
	}
	res.detail("staged installer at %s", installerPath)

	// Execute
	exe := renderPath(spec.InstallCommand.Exe, installerPath)
	args := renderArgs(spec.InstallCommand.Args, installerPath)
	code, err := ins.Runner.Run(ctx, exe, args, spec.InstallCommand.LogFile)
	if err != nil {
		res.detail("installer could not be run: %v", err)
		return res.finalize(StatusInstallFailed)
	}
	if code != 0 && !tolerated(code, spec.InstallCommand.TolerableExitCodes) {
		res.detail("installer exited %d", code)
		return res.finalize(StatusInstallFailed)
	}
	if code != 0 {
		res.detail("installer exited %d (tolerated)", code)
	} else {
		res.detail("installer exited 0")
	}

	// Several installers register their service asynchronously after the
	// installer process exits; give them a fixed settle window.
	if spec.SettleDelay > 0 {
		ins.sleep(ctx, spec.SettleDelay)
		res.detail("waited %s for installer to settle", spec.SettleDelay)
	}

	// Verify
	for i, check := range spec.PostInstallChecks {
		if err := ins.Checker.Run(ctx, check, func(line string) { res.detail("%s", line) }); err != nil {
			res.detail("check %d (%s) failed: %v", i+1, check.Kind, err)
			return res.finalize(StatusVerificationFailed)
		}
	}

	return res.finalize(StatusInstalled)
}

func (ins *Installer) sleep(ctx context.Context, d time.Duration) {
	if ins.Sleep != nil {
		ins.Sleep(ctx, d)
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// renderPath substitutes the staged payload path for the {{installer}}
// placeholder. Self-installing payloads use it as the exe itself.
func renderPath(s, installerPath string) string {
	return strings.ReplaceAll(s, "{{installer}}", installerPath)
}

func renderArgs(args []string, installerPath string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = renderPath(a, installerPath)
	}
	return out
}

func tolerated(code int, tolerable []int) bool {
	for _, t := range tolerable {
		if code == t {
			return true
		}
	}
	return false
}
