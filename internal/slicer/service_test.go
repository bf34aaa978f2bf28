package slicer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeHelperScript(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "helper.py")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write helper script: %v", err)
	}
	return path
}

func TestExecutePrependsHelperAndContext(t *testing.T) {
	helperPath := writeHelperScript(t, "def helper(): pass")

	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		gotBody = string(buf)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	s, err := New(helperPath, 2*time.Second)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := s.Execute(context.Background(), srv.URL, "print('hi')", map[string]any{"n": 5, "name": "ct"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result["ok"] != true {
		t.Fatalf("expected ok=true, got %v", result)
	}

	if !strings.Contains(gotBody, "def helper(): pass") {
		t.Fatal("expected helper source to be prepended")
	}
	if !strings.Contains(gotBody, "n = 5") {
		t.Fatal("expected numeric context variable to be inlined")
	}
	if !strings.Contains(gotBody, "name = 'ct'") {
		t.Fatal("expected string context variable to be quoted")
	}
	if !strings.Contains(gotBody, "print('hi')") {
		t.Fatal("expected the user script to be appended last")
	}
}

func TestExecuteRawSkipsHelper(t *testing.T) {
	helperPath := writeHelperScript(t, "SENTINEL_HELPER_MARKER")

	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		gotBody = string(buf)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	s, err := New(helperPath, 2*time.Second)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := s.ExecuteRaw(context.Background(), srv.URL, "raw script"); err != nil {
		t.Fatalf("ExecuteRaw: %v", err)
	}
	if strings.Contains(gotBody, "SENTINEL_HELPER_MARKER") {
		t.Fatal("execute_raw must not prepend the helper source")
	}
	if gotBody != "raw script" {
		t.Fatalf("expected body to be exactly the raw script, got %q", gotBody)
	}
}

func TestPingReturnsFalseOnNon200(t *testing.T) {
	helperPath := writeHelperScript(t, "")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s, err := New(helperPath, 2*time.Second)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.Ping(context.Background(), srv.URL) {
		t.Fatal("expected Ping to return false on a non-200 response")
	}
}

func TestPingReturnsTrueOn200(t *testing.T) {
	helperPath := writeHelperScript(t, "")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	s, err := New(helperPath, 2*time.Second)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !s.Ping(context.Background(), srv.URL) {
		t.Fatal("expected Ping to return true on a 200 response")
	}
}

func TestPingReturnsFalseWhenUnreachable(t *testing.T) {
	helperPath := writeHelperScript(t, "")
	s, err := New(helperPath, 200*time.Millisecond)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.Ping(context.Background(), "http://127.0.0.1:1") {
		t.Fatal("expected Ping to return false when Slicer is unreachable")
	}
}
