package installer

import (
	"context"
	"fmt"
	"os"

	"github.com/pallav98/windows-ws/internal/agentspec"
	"github.com/pallav98/windows-ws/internal/platform/svcctl"
	"github.com/pallav98/windows-ws/internal/platform/winexec"
	"github.com/pallav98/windows-ws/internal/platform/wmi"
)

// hostDetector evaluates detection predicates against the live host using
// the platform facades.
type hostDetector struct{}

// NewHostDetector returns the production Detector.
func NewHostDetector() Detector {
	return hostDetector{}
}

func (hostDetector) Detect(ctx context.Context, spec *agentspec.Spec) (Detection, error) {
	d := spec.Detection
	switch d.Kind {
	case agentspec.DetectService:
		return detectService(d)
	case agentspec.DetectRegistry:
		return detectRegistry(ctx, d)
	case agentspec.DetectExecutable:
		return detectExecutable(ctx, d)
	default:
		return Detection{}, fmt.Errorf("unknown detection kind %q", d.Kind)
	}
}

// detectService: a registered service means installed, regardless of its
// running state. Running state belongs to verification, not detection.
func detectService(d agentspec.Detection) (Detection, error) {
	exists, err := svcctl.Exists(d.ServiceName)
	if err != nil {
		return Detection{}, err
	}
	if !exists {
		return Detection{}, nil
	}
	return Detection{
		Present: true,
		Note:    fmt.Sprintf("service %s is registered", d.ServiceName),
	}, nil
}

// detectRegistry: scan both uninstall hives, merge, then substring-match the
// display name.
func detectRegistry(ctx context.Context, d agentspec.Detection) (Detection, error) {
	products, err := wmi.InstalledProducts(ctx)
	if err != nil {
		return Detection{}, err
	}
	p, found := wmi.MatchDisplayName(products, d.DisplayNamePattern)
	if !found {
		return Detection{}, nil
	}
	return Detection{
		Present: true,
		Version: p.DisplayVersion,
		Note: fmt.Sprintf("registry entry %q version %s (%s hive)",
			p.DisplayName, p.DisplayVersion, p.Hive),
	}, nil
}

// detectExecutable: binary presence determines "installed"; when present the
// binary is probed for its version so the audit trail records it, and so the
// exact-version policy has something to compare.
func detectExecutable(ctx context.Context, d agentspec.Detection) (Detection, error) {
	if _, err := os.Stat(d.ExePath); err != nil {
		if os.IsNotExist(err) {
			return Detection{}, nil
		}
		return Detection{}, fmt.Errorf("stat %s: %w", d.ExePath, err)
	}

	det := Detection{
		Present: true,
		Note:    fmt.Sprintf("executable %s present", d.ExePath),
	}

	if len(d.VersionArgs) > 0 {
		out, code, err := winexec.RunCapture(ctx, d.ExePath, d.VersionArgs)
		if err == nil && code == 0 {
			det.Version = out
			det.Note = fmt.Sprintf("executable %s reports version %q", d.ExePath, out)
		}
		// A failed version probe does not negate presence.
	}

	return det, nil
}
