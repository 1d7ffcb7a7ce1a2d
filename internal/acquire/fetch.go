// Package acquire stages installer payloads into a clean local scratch
// directory, either by copying from a network share or downloading over
// HTTPS with TLS 1.2 as the floor.
package acquire

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pallav98/windows-ws/internal/agentspec"
)

// Fetcher stages installer payloads. The zero value is not usable; call New.
type Fetcher struct {
	client *http.Client
}

// New creates a Fetcher with a TLS-1.2-minimum HTTP client. The generous
// timeout covers large vendor installers over slow links.
func New() *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: 10 * time.Minute,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
				Proxy:           http.ProxyFromEnvironment,
			},
		},
	}
}

// Stage prepares the scratch directory and places the installer payload in
// it, returning the staged file path. The scratch directory is removed and
// recreated first so a run never mixes artifacts with a previous attempt.
func (f *Fetcher) Stage(ctx context.Context, src agentspec.Source) (string, error) {
	if err := CleanScratch(src.StagingDir); err != nil {
		return "", err
	}

	dest := filepath.Join(src.StagingDir, src.Filename)

	switch src.Kind {
	case agentspec.SourceURL:
		if err := f.download(ctx, src.URL, dest); err != nil {
			return "", err
		}
	case agentspec.SourceShare:
		if err := copyFromShare(src.SharePath, dest); err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("unknown source kind %q", src.Kind)
	}

	return dest, nil
}

// CleanScratch removes and recreates a scratch directory. A leftover
// directory from a killed run is remediated here.
func CleanScratch(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("clear scratch dir %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create scratch dir %s: %w", dir, err)
	}
	return nil
}

// download fetches url to destPath. A partial file is removed on error.
func (f *Fetcher) download(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", destPath, err)
	}
	defer out.Close()

	n, err := io.Copy(out, resp.Body)
	if err != nil {
		os.Remove(destPath)
		return fmt.Errorf("write %s: %w", destPath, err)
	}

	log.Debug().Str("component", "acquire").Str("url", url).Int64("bytes", n).Msg("downloaded installer")
	return nil
}

// copyFromShare copies the installer from a mounted network share path.
func copyFromShare(sharePath, destPath string) error {
	in, err := os.Open(sharePath)
	if err != nil {
		return fmt.Errorf("open share path %s: %w", sharePath, err)
	}
	defer in.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", destPath, err)
	}
	defer out.Close()

	n, err := io.Copy(out, in)
	if err != nil {
		os.Remove(destPath)
		return fmt.Errorf("copy from %s: %w", sharePath, err)
	}

	log.Debug().Str("component", "acquire").Str("share", sharePath).Int64("bytes", n).Msg("copied installer")
	return nil
}
