package controller

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	gowinrm "github.com/masterzen/winrm"
	"github.com/rs/zerolog"
)

const (
	sessionMaxAge     = 5 * time.Minute
	inlineScriptLimit = 2000 // chars before switching to temp-file mode
	chunkSize         = 6000 // base64 chunk size safe for cmd.exe echo
)

// Target describes one Windows machine to run commands on.
type Target struct {
	Hostname  string
	Port      int // 0 selects 5985/5986 by SSL
	Username  string
	Password  string
	UseSSL    bool
	VerifySSL bool
}

// RemoteResult is the outcome of one remote script run.
type RemoteResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

type cachedSession struct {
	client    *gowinrm.Client
	createdAt time.Time
}

// Executor runs PowerShell scripts on targets over WinRM with NTLM auth,
// session caching, and retry with linear backoff on transport failures.
type Executor struct {
	log      zerolog.Logger
	mu       sync.Mutex
	sessions map[string]*cachedSession
}

// NewExecutor returns an Executor with an empty session cache.
func NewExecutor(log zerolog.Logger) *Executor {
	return &Executor{
		log:      log.With().Str("component", "winrm").Logger(),
		sessions: make(map[string]*cachedSession),
	}
}

// RunScript executes a PowerShell script on the target, retrying transport
// failures up to retries times. Installer-level failures surface as a
// non-zero ExitCode, not an error, and are not retried.
func (e *Executor) RunScript(ctx context.Context, target *Target, script string, retries int, retryDelay time.Duration) (*RemoteResult, error) {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * retryDelay
			e.log.Warn().Str("host", target.Hostname).
				Int("attempt", attempt).Int("retries", retries).
				Dur("delay", delay).Msg("retrying after transport failure")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		res, err := e.runOnce(target, script)
		if err != nil {
			lastErr = err
			e.log.Warn().Str("host", target.Hostname).Err(err).Msg("remote execution failed")
			e.invalidateSession(target.Hostname)
			continue
		}
		return res, nil
	}
	return nil, fmt.Errorf("%s: %w", target.Hostname, lastErr)
}

// Reachable reports whether the target answers a trivial command.
func (e *Executor) Reachable(ctx context.Context, target *Target) bool {
	res, err := e.RunScript(ctx, target, `Write-Output 'ok'`, 0, 0)
	return err == nil && res.ExitCode == 0
}

func (e *Executor) runOnce(target *Target, script string) (*RemoteResult, error) {
	client, err := e.getSession(target)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if len(script) > inlineScriptLimit {
		return runViaTempFile(client, script)
	}
	return runInline(client, script)
}

func runInline(client *gowinrm.Client, script string) (*RemoteResult, error) {
	shell, err := client.CreateShell()
	if err != nil {
		return nil, fmt.Errorf("create shell: %w", err)
	}
	defer shell.Close()

	cmd, err := shell.Execute("powershell.exe", "-NoProfile", "-NonInteractive", "-EncodedCommand", encodePowerShell(script))
	if err != nil {
		return nil, fmt.Errorf("execute: %w", err)
	}
	defer cmd.Close()

	return collect(cmd), nil
}

// runViaTempFile works around the cmd.exe 8191 character limit by writing the
// script to a remote temp file in base64 chunks before executing it.
func runViaTempFile(client *gowinrm.Client, script string) (*RemoteResult, error) {
	scriptHash := fmt.Sprintf("%x", sha256.Sum256([]byte(script)))[:8]
	tempB64 := fmt.Sprintf(`C:\Windows\Temp\wsp_%s.b64`, scriptHash)
	tempPS1 := fmt.Sprintf(`C:\Windows\Temp\wsp_%s.ps1`, scriptHash)

	shell, err := client.CreateShell()
	if err != nil {
		return nil, fmt.Errorf("create shell: %w", err)
	}
	defer shell.Close()

	encoded := base64.StdEncoding.EncodeToString([]byte(script))
	for i, chunk := range splitString(encoded, chunkSize) {
		op := ">"
		if i > 0 {
			op = ">>"
		}
		cmd, err := shell.Execute("cmd.exe", "/c", fmt.Sprintf(`echo %s%s"%s"`, chunk, op, tempB64))
		if err != nil {
			return nil, fmt.Errorf("write chunk %d: %w", i, err)
		}
		cmd.Wait()
		code := cmd.ExitCode()
		cmd.Close()
		if code != 0 {
			return nil, fmt.Errorf("write chunk %d failed: exit %d", i, code)
		}
	}

	decodeAndRun := fmt.Sprintf(
		`$r=(Get-Content '%s' -Raw) -replace '\s',''; `+
			`$b=[Convert]::FromBase64String($r); `+
			`[IO.File]::WriteAllText('%s',[Text.Encoding]::UTF8.GetString($b)); `+
			`Remove-Item '%s' -Force -EA SilentlyContinue; `+
			`try { & '%s' } finally { Remove-Item '%s' -Force -EA SilentlyContinue }`,
		tempB64, tempPS1, tempB64, tempPS1, tempPS1,
	)
	cmd, err := shell.Execute("powershell.exe", "-NoProfile", "-NonInteractive", "-EncodedCommand", encodePowerShell(decodeAndRun))
	if err != nil {
		return nil, fmt.Errorf("execute temp file: %w", err)
	}
	defer cmd.Close()

	return collect(cmd), nil
}

func collect(cmd *gowinrm.Command) *RemoteResult {
	var stdout, stderr bytes.Buffer
	go io.Copy(&stdout, cmd.Stdout)
	go io.Copy(&stderr, cmd.Stderr)
	cmd.Wait()
	return &RemoteResult{
		Stdout:   strings.TrimSpace(stdout.String()),
		Stderr:   strings.TrimSpace(stderr.String()),
		ExitCode: cmd.ExitCode(),
	}
}

func (e *Executor) getSession(target *Target) (*gowinrm.Client, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cached, ok := e.sessions[target.Hostname]; ok {
		if time.Since(cached.createdAt) < sessionMaxAge {
			return cached.client, nil
		}
		e.log.Debug().Str("host", target.Hostname).Msg("session expired, refreshing")
	}

	port := target.Port
	if port == 0 {
		if target.UseSSL {
			port = 5986
		} else {
			port = 5985
		}
	}

	endpoint := gowinrm.NewEndpoint(target.Hostname, port, target.UseSSL, !target.VerifySSL, nil, nil, nil, 120*time.Second)

	// NTLM; Basic auth is rarely enabled in domain environments.
	params := gowinrm.NewParameters("PT120S", "en-US", 153600)
	params.TransportDecorator = func() gowinrm.Transporter { return &gowinrm.ClientNTLM{} }

	client, err := gowinrm.NewClientWithParameters(endpoint, target.Username, target.Password, params)
	if err != nil {
		return nil, fmt.Errorf("create client for %s: %w", target.Hostname, err)
	}

	e.sessions[target.Hostname] = &cachedSession{client: client, createdAt: time.Now()}
	e.log.Debug().Str("host", target.Hostname).Int("port", port).Bool("ssl", target.UseSSL).Msg("new session")
	return client, nil
}

func (e *Executor) invalidateSession(hostname string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sessions, hostname)
}

// encodePowerShell encodes a script for -EncodedCommand (UTF-16LE base64).
func encodePowerShell(script string) string {
	utf16 := make([]byte, len(script)*2)
	for i, c := range []byte(script) {
		utf16[i*2] = c
		utf16[i*2+1] = 0
	}
	return base64.StdEncoding.EncodeToString(utf16)
}

func splitString(s string, size int) []string {
	var chunks []string
	for len(s) > 0 {
		end := size
		if end > len(s) {
			end = len(s)
		}
		chunks = append(chunks, s[:end])
		s = s[end:]
	}
	return chunks
}
