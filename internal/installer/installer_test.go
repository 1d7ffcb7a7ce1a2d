package installer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/pallav98/windows-ws/internal/agentspec"
)

// --- fakes -----------------------------------------------------------------

type fakeDetector struct {
	det   Detection
	err   error
	calls int
}

func (f *fakeDetector) Detect(ctx context.Context, spec *agentspec.Spec) (Detection, error) {
	f.calls++
	return f.det, f.err
}

type fakeFetcher struct {
	path  string
	err   error
	calls int
}

func (f *fakeFetcher) Stage(ctx context.Context, src agentspec.Source) (string, error) {
	f.calls++
	return f.path, f.err
}

type fakeRunner struct {
	exitCode int
	err      error
	calls    int
	lastExe  string
	lastArgs []string
}

func (f *fakeRunner) Run(ctx context.Context, exe string, args []string, logPath string) (int, error) {
	f.calls++
	f.lastExe = exe
	f.lastArgs = args
	return f.exitCode, f.err
}

type fakeChecker struct {
	errs  []error // per call, nil entries pass
	lines []string
	calls int
}

func (f *fakeChecker) Run(ctx context.Context, check agentspec.Check, detail func(string)) error {
	idx := f.calls
	f.calls++
	for _, l := range f.lines {
		detail(l)
	}
	if idx < len(f.errs) {
		return f.errs[idx]
	}
	return nil
}

type panicDetector struct{}

func (panicDetector) Detect(ctx context.Context, spec *agentspec.Spec) (Detection, error) {
	panic("registry hive exploded")
}

// --- helpers ---------------------------------------------------------------

func testSpec() *agentspec.Spec {
	return &agentspec.Spec{
		Name:     "Nessus Agent",
		Expected: "10.6.1",
		Detection: agentspec.Detection{
			Kind:        agentspec.DetectService,
			ServiceName: "svcX",
		},
		Source: agentspec.Source{
			Kind:       agentspec.SourceURL,
			URL:        "https://downloads.example.com/agent.msi",
			StagingDir: `C:\Temp\scratch`,
			Filename:   "agent.msi",
		},
		InstallCommand: agentspec.InstallCommand{
			Exe:  "msiexec.exe",
			Args: []string{"/i", "{{installer}}", "/qn"},
		},
		PostInstallChecks: []agentspec.Check{
			{Kind: agentspec.CheckServiceRunning, ServiceName: "svcX"},
		},
	}
}

func testInstaller(d Detector, f Fetcher, r Runner, c Checker) *Installer {
	return &Installer{
		Detector: d,
		Fetcher:  f,
		Runner:   r,
		Checker:  c,
		Sleep:    func(ctx context.Context, d time.Duration) {},
		Log:      zerolog.Nop(),
	}
}

// --- tests -----------------------------------------------------------------

func TestIdempotenceAlreadyInstalled(t *testing.T) {
	fetcher := &fakeFetcher{}
	runner := &fakeRunner{}
	ins := testInstaller(
		&fakeDetector{det: Detection{Present: true, Note: "service svcX is registered"}},
		fetcher, runner, &fakeChecker{},
	)

	res := ins.Install(context.Background(), testSpec())

	if res.Status != StatusAlreadyInstalled {
		t.Fatalf("expected AlreadyInstalled, got %s", res.Status)
	}
	if res.ExitCode != 0 {
		t.Errorf("expected exit 0, got %d", res.ExitCode)
	}
	if fetcher.calls != 0 {
		t.Error("acquire stage must not run when already installed")
	}
	if runner.calls != 0 {
		t.Error("execute stage must not run when already installed")
	}
}

func TestExactPolicyMatchIsAlreadyInstalled(t *testing.T) {
	spec := testSpec()
	spec.VersionPolicy = agentspec.VersionExact
	spec.Detection.ExpectedVersion = "10.6.1"

	fetcher := &fakeFetcher{}
	ins := testInstaller(
		&fakeDetector{det: Detection{Present: true, Version: "10.6.1"}},
		fetcher, &fakeRunner{}, &fakeChecker{},
	)

	res := ins.Install(context.Background(), spec)
	if res.Status != StatusAlreadyInstalled || res.ExitCode != 0 {
		t.Fatalf("expected AlreadyInstalled/0, got %s/%d", res.Status, res.ExitCode)
	}
	if fetcher.calls != 0 {
		t.Error("no acquisition on exact version match")
	}
}

func TestExactPolicyStaleVersionInstallsOver(t *testing.T) {
	spec := testSpec()
	spec.VersionPolicy = agentspec.VersionExact
	spec.Detection.ExpectedVersion = "10.6.1"

	fetcher := &fakeFetcher{path: `C:\Temp\scratch\agent.msi`}
	runner := &fakeRunner{}
	ins := testInstaller(
		&fakeDetector{det: Detection{Present: true, Version: "10.4.0"}},
		fetcher, runner, &fakeChecker{},
	)

	res := ins.Install(context.Background(), spec)
	if res.Status != StatusInstalled {
		t.Fatalf("stale version should install-over, got %s", res.Status)
	}
	if fetcher.calls != 1 || runner.calls != 1 {
		t.Error("install-over path must acquire and execute")
	}
	if !strings.Contains(strings.Join(res.Details, "\n"), "stale version") {
		t.Errorf("details should record the stale version, got %v", res.Details)
	}
}

func TestFullInstallHappyPath(t *testing.T) {
	fetcher := &fakeFetcher{path: `C:\Temp\scratch\agent.msi`}
	runner := &fakeRunner{}
	checker := &fakeChecker{lines: []string{"service svcX is stopped, attempting start", "service svcX started after corrective action"}}
	ins := testInstaller(&fakeDetector{}, fetcher, runner, checker)

	res := ins.Install(context.Background(), testSpec())

	if res.Status != StatusInstalled || res.ExitCode != 0 {
		t.Fatalf("expected Installed/0, got %s/%d", res.Status, res.ExitCode)
	}
	if runner.lastExe != "msiexec.exe" {
		t.Errorf("unexpected installer exe %q", runner.lastExe)
	}
	// {{installer}} placeholder rendered with the staged path
	found := false
	for _, a := range runner.lastArgs {
		if a == `C:\Temp\scratch\agent.msi` {
			found = true
		}
	}
	if !found {
		t.Errorf("staged path not substituted into args: %v", runner.lastArgs)
	}
	if !strings.Contains(strings.Join(res.Details, "\n"), "corrective") {
		t.Errorf("details should surface the corrective start, got %v", res.Details)
	}
}

func TestSelfInstallingExeRendersInstallerPlaceholder(t *testing.T) {
	// Sensor-style payloads are their own installer: the exe field is the
	// {{installer}} placeholder itself.
	runner := &fakeRunner{}
	ins := testInstaller(
		&fakeDetector{},
		&fakeFetcher{path: `C:\Temp\scratch\WindowsSensor.exe`},
		runner, &fakeChecker{},
	)

	spec := testSpec()
	spec.InstallCommand.Exe = "{{installer}}"
	spec.InstallCommand.Args = []string{"/install", "/quiet"}

	res := ins.Install(context.Background(), spec)
	if res.Status != StatusInstalled {
		t.Fatalf("status: %s", res.Status)
	}
	if runner.lastExe != `C:\Temp\scratch\WindowsSensor.exe` {
		t.Fatalf("exe placeholder not rendered: %q", runner.lastExe)
	}
}

func TestDownloadFailure(t *testing.T) {
	runner := &fakeRunner{}
	ins := testInstaller(
		&fakeDetector{},
		&fakeFetcher{err: fmt.Errorf("download https://downloads.example.com/agent.msi: connection refused")},
		runner, &fakeChecker{},
	)

	res := ins.Install(context.Background(), testSpec())

	if res.Status != StatusDownloadFailed {
		t.Fatalf("expected DownloadFailed, got %s", res.Status)
	}
	if res.ExitCode != 2 {
		t.Errorf("expected exit 2, got %d", res.ExitCode)
	}
	if runner.calls != 0 {
		t.Error("execute stage must not run after download failure")
	}
	for _, line := range res.Details {
		if strings.Contains(line, "installer exited") {
			t.Errorf("no execute-stage detail expected, got %q", line)
		}
	}
}

func TestInstallerNonZeroExit(t *testing.T) {
	ins := testInstaller(
		&fakeDetector{},
		&fakeFetcher{path: "agent.msi"},
		&fakeRunner{exitCode: 1603},
		&fakeChecker{},
	)

	res := ins.Install(context.Background(), testSpec())

	if res.Status != StatusInstallFailed || res.ExitCode != 1 {
		t.Fatalf("expected InstallFailed/1, got %s/%d", res.Status, res.ExitCode)
	}
	if !strings.Contains(strings.Join(res.Details, "\n"), "1603") {
		t.Errorf("details should record the installer exit code, got %v", res.Details)
	}
}

func TestToleratedExitCode(t *testing.T) {
	spec := testSpec()
	spec.InstallCommand.TolerableExitCodes = []int{3010} // reboot required

	ins := testInstaller(
		&fakeDetector{},
		&fakeFetcher{path: "agent.msi"},
		&fakeRunner{exitCode: 3010},
		&fakeChecker{},
	)

	res := ins.Install(context.Background(), spec)
	if res.Status != StatusInstalled {
		t.Fatalf("tolerated exit code should continue to verify, got %s", res.Status)
	}
	if !strings.Contains(strings.Join(res.Details, "\n"), "tolerated") {
		t.Errorf("details should note the tolerated code, got %v", res.Details)
	}
}

func TestVerificationFailure(t *testing.T) {
	ins := testInstaller(
		&fakeDetector{},
		&fakeFetcher{path: "agent.msi"},
		&fakeRunner{},
		&fakeChecker{errs: []error{fmt.Errorf("service svcX did not reach running within 30s")}},
	)

	res := ins.Install(context.Background(), testSpec())
	if res.Status != StatusVerificationFailed || res.ExitCode != 1 {
		t.Fatalf("expected VerificationFailed/1, got %s/%d", res.Status, res.ExitCode)
	}
}

func TestChecksRunInOrderAndStopAtFirstFailure(t *testing.T) {
	spec := testSpec()
	spec.PostInstallChecks = []agentspec.Check{
		{Kind: agentspec.CheckServiceRunning, ServiceName: "svcX"},
		{Kind: agentspec.CheckVersionMatch, ExpectedVersion: "1.0"},
		{Kind: agentspec.CheckEnrollment, StatusExe: "cli", LinkedMarker: "Linked"},
	}

	checker := &fakeChecker{errs: []error{nil, fmt.Errorf("version mismatch")}}
	ins := testInstaller(&fakeDetector{}, &fakeFetcher{path: "a.msi"}, &fakeRunner{}, checker)

	res := ins.Install(context.Background(), spec)
	if res.Status != StatusVerificationFailed {
		t.Fatalf("expected VerificationFailed, got %s", res.Status)
	}
	if checker.calls != 2 {
		t.Errorf("verification must stop at first failure, ran %d checks", checker.calls)
	}
}

func TestDetectionErrorIsError(t *testing.T) {
	ins := testInstaller(
		&fakeDetector{err: fmt.Errorf("WMI locator unavailable")},
		&fakeFetcher{}, &fakeRunner{}, &fakeChecker{},
	)

	res := ins.Install(context.Background(), testSpec())
	if res.Status != StatusError || res.ExitCode != 3 {
		t.Fatalf("expected Error/3, got %s/%d", res.Status, res.ExitCode)
	}
}

func TestPanicIsContained(t *testing.T) {
	ins := testInstaller(panicDetector{}, &fakeFetcher{}, &fakeRunner{}, &fakeChecker{})

	res := ins.Install(context.Background(), testSpec())
	if res.Status != StatusError || res.ExitCode != 3 {
		t.Fatalf("expected Error/3 from contained panic, got %s/%d", res.Status, res.ExitCode)
	}
	if !strings.Contains(strings.Join(res.Details, "\n"), "registry hive exploded") {
		t.Errorf("panic value should land in details, got %v", res.Details)
	}
}

func TestDetailChronology(t *testing.T) {
	ins := testInstaller(
		&fakeDetector{},
		&fakeFetcher{path: "agent.msi"},
		&fakeRunner{},
		&fakeChecker{lines: []string{"service svcX is running"}},
	)

	res := ins.Install(context.Background(), testSpec())

	// detect-outcome, acquire-outcome, execute-outcome, verify-outcome(s),
	// terminal-status — in that order.
	markers := []string{"not detected", "staged installer", "installer exited", "service svcX is running", "terminal status"}
	pos := -1
	joined := strings.Join(res.Details, "\n")
	for _, m := range markers {
		idx := strings.Index(joined, m)
		if idx < 0 {
			t.Fatalf("marker %q missing from details: %v", m, res.Details)
		}
		if idx < pos {
			t.Fatalf("marker %q out of order in details: %v", m, res.Details)
		}
		pos = idx
	}

	if res.Details[len(res.Details)-1] != fmt.Sprintf("terminal status: %s (exit %d)", res.Status, res.ExitCode) {
		t.Errorf("last detail must be the terminal status, got %q", res.Details[len(res.Details)-1])
	}
}

func TestExitCodeMapping(t *testing.T) {
	tests := []struct {
		status Status
		want   int
	}{
		{StatusAlreadyInstalled, 0},
		{StatusInstalled, 0},
		{StatusInstallFailed, 1},
		{StatusVerificationFailed, 1},
		{StatusDownloadFailed, 2},
		{StatusError, 3},
	}
	for _, tt := range tests {
		if got := tt.status.ExitCode(); got != tt.want {
			t.Errorf("%s: expected exit %d, got %d", tt.status, tt.want, got)
		}
	}
}

func TestResultJSONShape(t *testing.T) {
	ins := testInstaller(
		&fakeDetector{det: Detection{Present: true}},
		&fakeFetcher{}, &fakeRunner{}, &fakeChecker{},
	)
	res := ins.Install(context.Background(), testSpec())

	var decoded struct {
		Software string   `json:"software"`
		Expected string   `json:"expected"`
		Status   string   `json:"status"`
		Details  []string `json:"details"`
		ExitCode int      `json:"exit_code"`
	}
	if err := json.Unmarshal([]byte(res.JSON()), &decoded); err != nil {
		t.Fatalf("result JSON must parse: %v", err)
	}
	if decoded.Software != "Nessus Agent" || decoded.Status != "AlreadyInstalled" || decoded.ExitCode != 0 {
		t.Errorf("unexpected decoded result: %+v", decoded)
	}
	if len(decoded.Details) == 0 {
		t.Error("details must not be empty")
	}
}

func TestReportWritesJSONAsLastStdoutLine(t *testing.T) {
	ins := testInstaller(
		&fakeDetector{det: Detection{Present: true}},
		&fakeFetcher{}, &fakeRunner{}, &fakeChecker{},
	)
	res := ins.Install(context.Background(), testSpec())

	logPath := filepath.Join(t.TempDir(), "install.log")
	var stdout bytes.Buffer
	if err := Report(res, logPath, &stdout); err != nil {
		t.Fatalf("unexpected report error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	last := lines[len(lines)-1]
	var decoded Result
	if err := json.Unmarshal([]byte(last), &decoded); err != nil {
		t.Fatalf("last stdout line must be the JSON result: %v", err)
	}
	if decoded.Software != res.Software || decoded.ExitCode != res.ExitCode {
		t.Errorf("stdout result mismatch: %+v", decoded)
	}

	logData, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("log destination not written: %v", err)
	}
	if !strings.Contains(string(logData), "terminal status") {
		t.Error("log destination should contain the detail lines")
	}
}
