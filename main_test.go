package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/s1natex/classtasks-api/internal/config"
	"github.com/s1natex/classtasks-api/internal/tasks"
)

func newTestRouter(t *testing.T, apiKey string) (*chi.Mux, string) {
	t.Helper()
	dataDir := t.TempDir()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	cfg := config.Config{
		DataDir:        dataDir,
		APIKey:         apiKey,
		Port:           5055,
		RateLimitBurst: 10,
		CORSOrigins:    []string{"*"},
		TraceExporter:  "none",
	}
	repo := tasks.NewFileRepo(tasks.NewResolver(dataDir), tasks.NewDocumentStore(logger))
	return newRouter(repo, cfg, logger), dataDir
}

func TestHealthEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, "")

	req := httptest.NewRequest("GET", "/api/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	expected := `{"ok":true}`
	if strings.TrimSpace(w.Body.String()) != expected {
		t.Errorf("expected body %s, got %s", expected, w.Body.String())
	}
}

func TestCORSPreflightAllowsNamespaceHeaders(t *testing.T) {
	r, _ := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodOptions, "/api/tasks", nil)
	req.Header.Set("Origin", "https://class.example")
	req.Header.Set("Access-Control-Request-Method", "PATCH")
	req.Header.Set("Access-Control-Request-Headers", "X-Class-Code, X-Student-Id, X-API-Key")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected allow origin *, got %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); got != "PATCH" {
		t.Fatalf("expected PATCH to be allowed, got %q", got)
	}
	allowed := strings.ToLower(w.Header().Get("Access-Control-Allow-Headers"))
	for _, h := range []string{"x-class-code", "x-student-id", "x-api-key"} {
		if !strings.Contains(allowed, h) {
			t.Errorf("expected %s in allowed headers, got %q", h, allowed)
		}
	}
}

func TestTaskLifecycleWithAPIKey(t *testing.T) {
	r, dataDir := newTestRouter(t, "s3cret")
	const ns = "?class_code=7A&student_id=alice01"

	send := func(method, target, body, key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, target, bytes.NewReader([]byte(body)))
		if key != "" {
			req.Header.Set("X-API-Key", key)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	if w := send(http.MethodPost, "/api/tasks"+ns, `{"title":"homework"}`, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", w.Code)
	}

	w := send(http.MethodPost, "/api/tasks"+ns, `{"title":"homework","due_date":"2025-09-01"}`, "s3cret")
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", w.Code, w.Body.String())
	}
	var created tasks.Task
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	// reads stay open
	w = send(http.MethodGet, "/api/tasks"+ns, "", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"homework"`) {
		t.Fatalf("expected list with task, got %d %s", w.Code, w.Body.String())
	}

	w = send(http.MethodPatch, "/api/tasks/1"+ns, `{"done":true}`, "s3cret")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"done":true`) {
		t.Fatalf("expected patched task, got %d %s", w.Code, w.Body.String())
	}

	raw, err := os.ReadFile(filepath.Join(dataDir, "7A", "alice01.json"))
	if err != nil {
		t.Fatalf("expected document on disk: %v", err)
	}
	if !strings.Contains(string(raw), `"next_id": 2`) || !strings.Contains(string(raw), `"done": true`) {
		t.Fatalf("unexpected document:\n%s", raw)
	}

	if w := send(http.MethodDelete, "/api/tasks/1"+ns, "", "s3cret"); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if w := send(http.MethodDelete, "/api/tasks/1"+ns, "", "s3cret"); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, "")

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/tasks?class_code=7A&student_id=zed", nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `http_requests_total{method="GET",path="/api/tasks",status="200"}`) {
		t.Fatalf("expected task route metric, got:\n%s", w.Body.String())
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if strings.TrimSpace(out.String()) == "" {
		t.Fatalf("expected a version string")
	}
}

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("warn", &buf)
	logger.Info("hidden")
	logger.Warn("shown")

	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected log output %q", buf.String())
	}
}
