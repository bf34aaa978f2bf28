// Package slicer talks to a user's local 3D Slicer instance over its
// embedded web server, composing a helper-DSL prefix and a context
// block onto user-supplied scripts before sending them for execution.
// Grounded on internal/evidence/submitter.go's short-lived
// *http.Client POST-and-check-status shape.
package slicer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/radionest/clarinet/internal/clarineterr"
)

// Service orchestrates building and sending scripts to Slicer. The
// helper source is read once at construction and prepended to every
// execute() call; execute_raw skips it.
type Service struct {
	helperSource string
	timeout      time.Duration
}

// New reads helperScriptPath into memory and returns a Service that
// prepends it to every script passed to Execute.
func New(helperScriptPath string, timeout time.Duration) (*Service, error) {
	raw, err := os.ReadFile(helperScriptPath)
	if err != nil {
		return nil, clarineterr.Internalf(err, "read slicer helper script %s", helperScriptPath)
	}
	return &Service{helperSource: string(raw), timeout: timeout}, nil
}

// Execute composes helper source, a blank line, one `k = repr(v)`
// assignment per context entry (sorted by key for deterministic
// output), a blank line, and the user script, then POSTs it to
// {baseURL}/slicer/exec.
func (s *Service) Execute(ctx context.Context, baseURL, script string, vars map[string]any) (map[string]any, error) {
	full := s.buildScript(script, vars)
	return s.send(ctx, baseURL, full, s.timeout)
}

// ExecuteRaw sends script as-is, without the helper prefix.
func (s *Service) ExecuteRaw(ctx context.Context, baseURL, script string) (map[string]any, error) {
	return s.send(ctx, baseURL, script, s.timeout)
}

// Ping runs a trivial script against baseURL and reports whether
// Slicer responded successfully.
func (s *Service) Ping(ctx context.Context, baseURL string) bool {
	_, err := s.send(ctx, baseURL, "print('pong')", s.timeout)
	return err == nil
}

func (s *Service) buildScript(script string, vars map[string]any) string {
	var b strings.Builder
	b.WriteString(s.helperSource)
	b.WriteString("\n\n")
	if len(vars) > 0 {
		b.WriteString(buildContextBlock(vars))
		b.WriteString("\n\n")
	}
	b.WriteString(script)
	return b.String()
}

// buildContextBlock renders context as Python variable assignments
// using a repr-equivalent encoding: strings are single-quoted, numbers
// and bools print bare, everything else falls back to its JSON
// representation (close enough to Python repr for the scalar and
// collection types the flow engine ever injects).
func buildContextBlock(vars map[string]any) string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("# --- context variables ---\n")
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(" = ")
		b.WriteString(reprValue(vars[k]))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func reprValue(v any) string {
	switch t := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(strings.ReplaceAll(t, "\\", "\\\\"), "'", "\\'") + "'"
	case bool:
		if t {
			return "True"
		}
		return "False"
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case nil:
		return "None"
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(raw)
	}
}

// send opens a short-lived HTTP client per call and POSTs script to
// baseURL + "/slicer/exec".
func (s *Service) send(ctx context.Context, baseURL, script string, timeout time.Duration) (map[string]any, error) {
	client := &http.Client{Timeout: timeout}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/slicer/exec", bytes.NewBufferString(script))
	if err != nil {
		return nil, clarineterr.Internalf(err, "build slicer request")
	}
	req.Header.Set("Content-Type", "text/x-python")

	resp, err := client.Do(req)
	if err != nil {
		return nil, clarineterr.DependencyTimeoutf(err, "connect to slicer at %s", baseURL)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, clarineterr.DependencyTimeoutf(
			fmt.Errorf("status %d: %s", resp.StatusCode, string(body)),
			"slicer execution failed",
		)
	}

	var result map[string]any
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, clarineterr.Internalf(err, "decode slicer response")
	}
	return result, nil
}
