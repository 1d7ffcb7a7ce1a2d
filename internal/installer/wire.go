package installer

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/pallav98/windows-ws/internal/acquire"
	"github.com/pallav98/windows-ws/internal/platform/winexec"
	"github.com/pallav98/windows-ws/internal/verify"
)

// New returns an Installer wired to the live host: WMI/SCM detection, TLS
// download staging, real child-process execution, SCM-backed verification.
func New(logger zerolog.Logger) *Installer {
	return &Installer{
		Detector: NewHostDetector(),
		Fetcher:  acquire.New(),
		Runner:   processRunner{},
		Checker:  verify.New(),
		Log:      logger,
	}
}

// processRunner adapts winexec.Run to the Runner interface.
type processRunner struct{}

func (processRunner) Run(ctx context.Context, exe string, args []string, logPath string) (int, error) {
	return winexec.Run(ctx, exe, args, logPath)
}
