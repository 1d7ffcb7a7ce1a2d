package installer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pallav98/windows-ws/internal/platform/eventlog"
)

// Report serializes the finalized result: each detail line plus the JSON
// record are appended to the spec's log destination, and the JSON record is
// written to stdout as the last line, where the invoking controller picks
// it up.
func Report(res *Result, logDestination string, stdout io.Writer) error {
	var logErr error
	if logDestination != "" {
		logErr = appendRunLog(res, logDestination)
	}

	fmt.Fprintln(stdout, res.JSON())

	reportEventLog(res)
	return logErr
}

func appendRunLog(res *Result, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log destination %s: %w", path, err)
	}
	defer f.Close()

	ts := time.Now().Format(time.RFC3339)
	fmt.Fprintf(f, "=== %s install run %s ===\n", res.Software, ts)
	for _, line := range res.Details {
		fmt.Fprintf(f, "%s %s\n", ts, line)
	}
	fmt.Fprintln(f, res.JSON())
	return nil
}

// reportEventLog mirrors the outcome into the application event log with the
// severity-coded event IDs. Event log failures never affect the run outcome;
// off Windows this is a no-op by way of the facade's error.
func reportEventLog(res *Result) {
	msg := fmt.Sprintf("%s: %s (exit %d)", res.Software, res.Status, res.ExitCode)
	switch res.Status {
	case StatusAlreadyInstalled, StatusInstalled:
		_ = eventlog.Info(eventlog.EventInstallSuccess, msg)
	case StatusDownloadFailed:
		_ = eventlog.Warning(eventlog.EventAgentNotFound, msg)
	default:
		_ = eventlog.Error(eventlog.EventInstallFailure, msg)
	}
}
