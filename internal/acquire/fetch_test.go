package acquire

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/pallav98/windows-ws/internal/agentspec"
)

func TestStageFromURL(t *testing.T) {
	payload := []byte("MSI PAYLOAD BYTES")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	staging := filepath.Join(t.TempDir(), "scratch")
	src := agentspec.Source{
		Kind:       agentspec.SourceURL,
		URL:        srv.URL + "/agent.msi",
		StagingDir: staging,
		Filename:   "agent.msi",
	}

	path, err := New().Stage(context.Background(), src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != string(payload) {
		t.Errorf("staged payload mismatch: got %q", data)
	}
}

func TestStageFromShare(t *testing.T) {
	shareDir := t.TempDir()
	sharePath := filepath.Join(shareDir, "agent.msi")
	if err := os.WriteFile(sharePath, []byte("SHARE PAYLOAD"), 0644); err != nil {
		t.Fatal(err)
	}

	staging := filepath.Join(t.TempDir(), "scratch")
	src := agentspec.Source{
		Kind:       agentspec.SourceShare,
		SharePath:  sharePath,
		StagingDir: staging,
		Filename:   "agent.msi",
	}

	path, err := New().Stage(context.Background(), src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "SHARE PAYLOAD" {
		t.Errorf("staged payload mismatch: got %q", data)
	}
}

func TestStageClearsPriorScratch(t *testing.T) {
	staging := filepath.Join(t.TempDir(), "scratch")
	if err := os.MkdirAll(staging, 0755); err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(staging, "stale-from-failed-run.msi")
	if err := os.WriteFile(stale, []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fresh"))
	}))
	defer srv.Close()

	src := agentspec.Source{
		Kind:       agentspec.SourceURL,
		URL:        srv.URL,
		StagingDir: staging,
		Filename:   "agent.msi",
	}

	if _, err := New().Stage(context.Background(), src); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale artifact from prior run survived staging")
	}

	entries, err := os.ReadDir(staging)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "agent.msi" {
		t.Errorf("scratch should contain only the fresh payload, got %v", entries)
	}
}

func TestStageDownloadErrors(t *testing.T) {
	staging := filepath.Join(t.TempDir(), "scratch")

	t.Run("http status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "gone", http.StatusNotFound)
		}))
		defer srv.Close()

		src := agentspec.Source{Kind: agentspec.SourceURL, URL: srv.URL, StagingDir: staging, Filename: "a.msi"}
		if _, err := New().Stage(context.Background(), src); err == nil {
			t.Error("expected error for HTTP 404")
		}
	})

	t.Run("unreachable host", func(t *testing.T) {
		src := agentspec.Source{
			Kind:       agentspec.SourceURL,
			URL:        "http://127.0.0.1:1/agent.msi",
			StagingDir: staging,
			Filename:   "a.msi",
		}
		if _, err := New().Stage(context.Background(), src); err == nil {
			t.Error("expected error for unreachable source")
		}
	})

	t.Run("missing share", func(t *testing.T) {
		src := agentspec.Source{
			Kind:       agentspec.SourceShare,
			SharePath:  filepath.Join(t.TempDir(), "missing", "agent.msi"),
			StagingDir: staging,
			Filename:   "a.msi",
		}
		if _, err := New().Stage(context.Background(), src); err == nil {
			t.Error("expected error for missing share path")
		}
	})
}
