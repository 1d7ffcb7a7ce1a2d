// Package agentspec defines the configuration model for one provisionable
// agent: how to detect it, where its installer comes from, how to run the
// installer silently, and how to verify the result. Specs are data; all
// behavior lives in the installer packages.
package agentspec

import (
	"fmt"
	"time"
)

// DetectionKind selects which detection predicate applies to an agent.
type DetectionKind string

const (
	// DetectService treats the presence of a registered Windows service
	// as "installed", regardless of its running state.
	DetectService DetectionKind = "service-exists"

	// DetectRegistry scans the native and WOW6432Node uninstall hives and
	// matches DisplayName entries by substring.
	DetectRegistry DetectionKind = "registry-display-name"

	// DetectExecutable checks for a binary on disk; when present the binary
	// is invoked to report its version for the audit trail.
	DetectExecutable DetectionKind = "executable-version"
)

// SourceKind selects how the installer payload is acquired.
type SourceKind string

const (
	SourceURL   SourceKind = "url"
	SourceShare SourceKind = "share"
)

// CheckKind selects a post-install verification predicate.
type CheckKind string

const (
	// CheckServiceRunning verifies a service is running, attempting one
	// start if it exists but is stopped.
	CheckServiceRunning CheckKind = "service-running"

	// CheckVersionMatch compares the installed version (registry or
	// executable probe) against the expected version string.
	CheckVersionMatch CheckKind = "version-match"

	// CheckEnrollment runs the agent's status command and verifies it
	// reports being linked to the expected management server, attempting
	// one unlink+relink cycle before failing.
	CheckEnrollment CheckKind = "enrollment"
)

// VersionPolicy decides whether a detected-but-stale install counts as
// satisfied or triggers an install-over.
type VersionPolicy string

const (
	// VersionAny: any installed version satisfies detection.
	VersionAny VersionPolicy = "any"

	// VersionExact: detection is satisfied only by an exact version match;
	// a mismatch proceeds to install-over.
	VersionExact VersionPolicy = "exact"
)

// Detection describes the already-installed predicate for an agent.
type Detection struct {
	Kind DetectionKind `yaml:"kind"`

	// DetectService
	ServiceName string `yaml:"service_name,omitempty"`

	// DetectRegistry
	DisplayNamePattern string `yaml:"display_name_pattern,omitempty"`

	// DetectExecutable
	ExePath     string   `yaml:"exe_path,omitempty"`
	VersionArgs []string `yaml:"version_args,omitempty"`

	// ExpectedVersion is consulted only under VersionExact.
	ExpectedVersion string `yaml:"expected_version,omitempty"`
}

// Source describes where the installer payload comes from and where it is
// staged locally before execution.
type Source struct {
	Kind       SourceKind `yaml:"kind"`
	URL        string     `yaml:"url,omitempty"`
	SharePath  string     `yaml:"share_path,omitempty"`
	StagingDir string     `yaml:"staging_dir"`
	Filename   string     `yaml:"filename"`
}

// InstallCommand describes the silent installer invocation. The executable
// and arguments are opaque to the workflow beyond "run this, capture the
// exit code". {{installer}} in Args is replaced with the staged payload path.
type InstallCommand struct {
	Exe  string   `yaml:"exe"`
	Args []string `yaml:"args"`

	// TolerableExitCodes lists non-zero installer exit codes that are
	// treated as success. Empty for every built-in agent.
	TolerableExitCodes []int `yaml:"tolerable_exit_codes,omitempty"`

	// LogFile receives the installer's native log output when set.
	LogFile string `yaml:"log_file,omitempty"`
}

// Check is one ordered post-install verification predicate.
type Check struct {
	Kind CheckKind `yaml:"kind"`

	// CheckServiceRunning
	ServiceName  string        `yaml:"service_name,omitempty"`
	StartTimeout time.Duration `yaml:"start_timeout,omitempty"`

	// CheckVersionMatch
	ExePath         string   `yaml:"exe_path,omitempty"`
	VersionArgs     []string `yaml:"version_args,omitempty"`
	ExpectedVersion string   `yaml:"expected_version,omitempty"`

	// CheckEnrollment
	StatusExe     string   `yaml:"status_exe,omitempty"`
	StatusArgs    []string `yaml:"status_args,omitempty"`
	LinkedMarker  string   `yaml:"linked_marker,omitempty"`
	RelinkExe     string   `yaml:"relink_exe,omitempty"`
	RelinkArgs    []string `yaml:"relink_args,omitempty"`
	UnlinkExe     string   `yaml:"unlink_exe,omitempty"`
	UnlinkArgs    []string `yaml:"unlink_args,omitempty"`
}

// Spec is the full configuration for one agent. A Spec is immutable for the
// duration of a run.
type Spec struct {
	Name              string         `yaml:"name"`
	Expected          string         `yaml:"expected"`
	Detection         Detection      `yaml:"detection"`
	VersionPolicy     VersionPolicy  `yaml:"version_policy,omitempty"`
	Source            Source         `yaml:"source"`
	InstallCommand    InstallCommand `yaml:"install_command"`
	SettleDelay       time.Duration  `yaml:"settle_delay,omitempty"`
	PostInstallChecks []Check        `yaml:"post_install_checks"`
	LogDestination    string         `yaml:"log_destination"`
}

// Validate checks the spec for structural problems before a run starts.
func (s *Spec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("spec missing name")
	}

	switch s.Detection.Kind {
	case DetectService:
		if s.Detection.ServiceName == "" {
			return fmt.Errorf("%s: service-exists detection requires service_name", s.Name)
		}
	case DetectRegistry:
		if s.Detection.DisplayNamePattern == "" {
			return fmt.Errorf("%s: registry detection requires display_name_pattern", s.Name)
		}
	case DetectExecutable:
		if s.Detection.ExePath == "" {
			return fmt.Errorf("%s: executable detection requires exe_path", s.Name)
		}
	default:
		return fmt.Errorf("%s: unknown detection kind %q", s.Name, s.Detection.Kind)
	}

	switch s.VersionPolicy {
	case "", VersionAny, VersionExact:
	default:
		return fmt.Errorf("%s: unknown version policy %q", s.Name, s.VersionPolicy)
	}
	if s.VersionPolicy == VersionExact && s.Detection.ExpectedVersion == "" {
		return fmt.Errorf("%s: exact version policy requires detection.expected_version", s.Name)
	}

	switch s.Source.Kind {
	case SourceURL:
		if s.Source.URL == "" {
			return fmt.Errorf("%s: url source requires url", s.Name)
		}
	case SourceShare:
		if s.Source.SharePath == "" {
			return fmt.Errorf("%s: share source requires share_path", s.Name)
		}
	default:
		return fmt.Errorf("%s: unknown source kind %q", s.Name, s.Source.Kind)
	}
	if s.Source.StagingDir == "" {
		return fmt.Errorf("%s: source requires staging_dir", s.Name)
	}
	if s.Source.Filename == "" {
		return fmt.Errorf("%s: source requires filename", s.Name)
	}

	if s.InstallCommand.Exe == "" {
		return fmt.Errorf("%s: install command requires exe", s.Name)
	}

	for i, c := range s.PostInstallChecks {
		switch c.Kind {
		case CheckServiceRunning:
			if c.ServiceName == "" {
				return fmt.Errorf("%s: check %d: service-running requires service_name", s.Name, i)
			}
		case CheckVersionMatch:
			if c.ExpectedVersion == "" {
				return fmt.Errorf("%s: check %d: version-match requires expected_version", s.Name, i)
			}
		case CheckEnrollment:
			if c.StatusExe == "" || c.LinkedMarker == "" {
				return fmt.Errorf("%s: check %d: enrollment requires status_exe and linked_marker", s.Name, i)
			}
		default:
			return fmt.Errorf("%s: check %d: unknown check kind %q", s.Name, i, c.Kind)
		}
	}

	return nil
}

// EffectiveVersionPolicy returns the spec's policy, defaulting to VersionAny.
func (s *Spec) EffectiveVersionPolicy() VersionPolicy {
	if s.VersionPolicy == "" {
		return VersionAny
	}
	return s.VersionPolicy
}
