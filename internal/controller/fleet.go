package controller

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pallav98/windows-ws/internal/installer"
)

// Statuses a host run can record beyond the provisioner's own taxonomy.
const (
	// StatusSkipped marks agents never attempted because the host did not
	// answer WinRM.
	StatusSkipped = "Skipped"

	// StatusTransportFailed marks a run where the command could not be
	// delivered or its output could not be read, after retries.
	StatusTransportFailed = "TransportFailed"
)

// Row is one (host, agent) outcome in the fleet summary.
type Row struct {
	Hostname string
	Agent    string
	Status   string
	ExitCode int
	Duration time.Duration
	Note     string
}

// remoteRunner is the transport the fleet run uses; *Executor satisfies it.
type remoteRunner interface {
	RunScript(ctx context.Context, target *Target, script string, retries int, retryDelay time.Duration) (*RemoteResult, error)
	Reachable(ctx context.Context, target *Target) bool
}

// Fleet runs the provisioner sequence across hosts, one host at a time, and
// accumulates the summary rows.
type Fleet struct {
	Cfg      Config
	Exec     remoteRunner
	Password string
	Log      zerolog.Logger
}

// NewFleet wires a Fleet over a live WinRM executor.
func NewFleet(cfg Config, password string, log zerolog.Logger) *Fleet {
	return &Fleet{
		Cfg:      cfg,
		Exec:     NewExecutor(log),
		Password: password,
		Log:      log.With().Str("component", "fleet").Logger(),
	}
}

// Run provisions every host in order and returns one row per (host, agent).
// Unreachable hosts get a Skipped row for each agent in the sequence; the run
// continues with the next host. An installer failure on one agent does not
// stop the remaining agents on that host.
func (f *Fleet) Run(ctx context.Context, hosts []Host) []Row {
	var rows []Row
	for _, h := range hosts {
		target := &Target{
			Hostname:  h.Hostname,
			Port:      f.Cfg.Port,
			Username:  h.Username,
			Password:  f.Password,
			UseSSL:    f.Cfg.UseSSL,
			VerifySSL: f.Cfg.VerifySSL,
		}

		if !f.Exec.Reachable(ctx, target) {
			f.Log.Warn().Str("host", h.Hostname).Msg("host unreachable, skipping")
			for _, agent := range f.Cfg.Sequence {
				rows = append(rows, Row{
					Hostname: h.Hostname,
					Agent:    agent,
					Status:   StatusSkipped,
					ExitCode: -1,
					Note:     "host did not answer WinRM",
				})
			}
			continue
		}

		for _, agent := range f.Cfg.Sequence {
			rows = append(rows, f.runOne(ctx, target, agent))
		}
	}
	return rows
}

func (f *Fleet) runOne(ctx context.Context, target *Target, agent string) Row {
	f.Log.Info().Str("host", target.Hostname).Str("agent", agent).Msg("provisioning")
	start := time.Now()

	runCtx, cancel := context.WithTimeout(ctx, f.Cfg.Timeout())
	defer cancel()

	script := fmt.Sprintf("& '%s' install %s; exit $LASTEXITCODE", f.Cfg.ProvisionerPath, agent)
	res, err := f.Exec.RunScript(runCtx, target, script, f.Cfg.Retries, f.Cfg.RetryDelay())
	elapsed := time.Since(start)

	if err != nil {
		f.Log.Error().Str("host", target.Hostname).Str("agent", agent).Err(err).Msg("transport failed")
		return Row{
			Hostname: target.Hostname,
			Agent:    agent,
			Status:   StatusTransportFailed,
			ExitCode: -1,
			Duration: elapsed,
			Note:     err.Error(),
		}
	}

	row := Row{
		Hostname: target.Hostname,
		Agent:    agent,
		ExitCode: res.ExitCode,
		Duration: elapsed,
	}
	if parsed, ok := ParseResultLine(res.Stdout); ok {
		row.Status = string(parsed.Status)
		row.ExitCode = parsed.ExitCode
		if n := len(parsed.Details); n > 0 {
			row.Note = parsed.Details[n-1]
		}
	} else {
		// The provisioner prints its result as the last stdout line; not
		// finding one means the run died before reporting.
		row.Status = string(installer.StatusError)
		row.Note = lastLine(res.Stderr)
	}

	f.Log.Info().Str("host", target.Hostname).Str("agent", agent).
		Str("status", row.Status).Int("exit_code", row.ExitCode).
		Dur("took", elapsed).Msg("done")
	return row
}

// ParseResultLine extracts the provisioner's structured result from the last
// non-empty line of stdout.
func ParseResultLine(stdout string) (*installer.Result, bool) {
	line := lastLine(stdout)
	if !strings.HasPrefix(line, "{") {
		return nil, false
	}
	var res installer.Result
	if err := json.Unmarshal([]byte(line), &res); err != nil {
		return nil, false
	}
	if res.Software == "" || res.Status == "" {
		return nil, false
	}
	return &res, true
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// Failed reports whether any row is a failure. Skipped and transport-failed
// rows count: the fleet run's exit code must not hide them.
func Failed(rows []Row) bool {
	for _, r := range rows {
		if r.ExitCode != 0 {
			return true
		}
	}
	return false
}

// WriteSummary writes the per-(host, agent) rows as a CSV report.
func WriteSummary(path string, rows []Row) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create summary: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"hostname", "agent", "status", "exit_code", "duration_seconds", "note"}); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.Hostname,
			r.Agent,
			r.Status,
			strconv.Itoa(r.ExitCode),
			strconv.FormatFloat(r.Duration.Seconds(), 'f', 1, 64),
			r.Note,
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
