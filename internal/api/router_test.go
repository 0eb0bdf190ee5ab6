// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/cropstream/internal/cloud"
	"github.com/tomtom215/cropstream/internal/config"
	"github.com/tomtom215/cropstream/internal/handler"
)

type fakeBatches struct {
	result handler.Result
	bodies []string
}

func (f *fakeBatches) Handle(_ context.Context, body []byte) handler.Result {
	f.bodies = append(f.bodies, string(body))
	return f.result
}

type fakePublisher struct {
	mu      sync.Mutex
	records []string
	failAt  int
}

func (p *fakePublisher) PublishRecord(_ context.Context, raw []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failAt > 0 && len(p.records)+1 == p.failAt {
		return errors.New("nats unavailable")
	}
	p.records = append(p.records, string(raw))
	return nil
}

type fakeSaved struct {
	docs []any
	err  error
}

func (s *fakeSaved) PutSaved(_ context.Context, v any) error {
	if s.err != nil {
		return s.err
	}
	s.docs = append(s.docs, v)
	return nil
}

func newTestRouter(deps Dependencies, cfg RouterConfig) http.Handler {
	if deps.Batches == nil {
		deps.Batches = &fakeBatches{result: handler.Result{Message: handler.MessageOK}}
	}
	return NewRouter(NewHandler(deps), cfg)
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var resp APIResponse
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response %q: %v", w.Body.String(), err)
		}
	}
	return w, resp
}

func TestRecords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		result     handler.Result
		wantStatus int
		wantOK     bool
	}{
		{
			name:       "batch processed",
			result:     handler.Result{Message: handler.MessageOK, RecordsProcessed: 2},
			wantStatus: http.StatusOK,
			wantOK:     true,
		},
		{
			name:       "record errors still answer 200",
			result:     handler.Result{Message: handler.MessageOK, RecordsProcessed: 2, ExceptionCount: 3},
			wantStatus: http.StatusOK,
			wantOK:     true,
		},
		{
			name:       "unreadable batch",
			result:     handler.Result{Message: handler.MessageFailed},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			batches := &fakeBatches{result: tt.result}
			r := newTestRouter(Dependencies{Batches: batches}, RouterConfig{})

			w, resp := do(t, r, http.MethodPost, "/api/v1/records", `{"Records":[]}`)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if resp.Success != tt.wantOK {
				t.Errorf("success = %v, want %v", resp.Success, tt.wantOK)
			}
			if len(batches.bodies) != 1 || batches.bodies[0] != `{"Records":[]}` {
				t.Errorf("handled bodies = %v", batches.bodies)
			}
			if w.Header().Get("X-Request-Id") == "" {
				t.Error("X-Request-Id header missing")
			}
		})
	}
}

func TestRecords_BodyTooLarge(t *testing.T) {
	t.Parallel()
	r := newTestRouter(Dependencies{}, RouterConfig{MaxBodyBytes: 8})

	w, resp := do(t, r, http.MethodPost, "/api/v1/records", `{"Records":[{},{},{}]}`)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", w.Code)
	}
	if resp.Error == nil || resp.Error.Code != ErrCodeTooLarge {
		t.Errorf("error = %+v", resp.Error)
	}
}

func TestEnqueueRecords(t *testing.T) {
	t.Parallel()

	t.Run("publishes every record", func(t *testing.T) {
		t.Parallel()
		pub := &fakePublisher{}
		r := newTestRouter(Dependencies{Publisher: pub}, RouterConfig{})

		w, _ := do(t, r, http.MethodPost, "/api/v1/records/enqueue",
			`{"Records":[{"kinesis":{"data":"YQ=="}},{"kinesis":{"data":"Yg=="}}]}`)
		if w.Code != http.StatusAccepted {
			t.Fatalf("status = %d, want 202", w.Code)
		}
		if len(pub.records) != 2 || pub.records[1] != `{"kinesis":{"data":"Yg=="}}` {
			t.Errorf("published = %v", pub.records)
		}
	})

	t.Run("no publisher", func(t *testing.T) {
		t.Parallel()
		r := newTestRouter(Dependencies{}, RouterConfig{})
		if w, _ := do(t, r, http.MethodPost, "/api/v1/records/enqueue", `{"Records":[]}`); w.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", w.Code)
		}
	})

	t.Run("missing Records", func(t *testing.T) {
		t.Parallel()
		r := newTestRouter(Dependencies{Publisher: &fakePublisher{}}, RouterConfig{})
		if w, _ := do(t, r, http.MethodPost, "/api/v1/records/enqueue", `{"records":[]}`); w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("publish failure", func(t *testing.T) {
		t.Parallel()
		pub := &fakePublisher{failAt: 2}
		r := newTestRouter(Dependencies{Publisher: pub}, RouterConfig{})
		w, resp := do(t, r, http.MethodPost, "/api/v1/records/enqueue", `{"Records":[{},{},{}]}`)
		if w.Code != http.StatusBadGateway {
			t.Fatalf("status = %d, want 502", w.Code)
		}
		details, _ := resp.Error.Details.(map[string]any)
		if details["enqueued"] != float64(1) {
			t.Errorf("details = %v", resp.Error.Details)
		}
	})
}

func TestSaved(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		sink       *fakeSaved
		body       string
		wantStatus int
		wantDocs   int
	}{
		{"object saved", &fakeSaved{}, `{"record_type":"aux"}`, http.StatusAccepted, 1},
		{"array rejected", &fakeSaved{}, `[1,2]`, http.StatusBadRequest, 0},
		{"null rejected", &fakeSaved{}, `null`, http.StatusBadRequest, 0},
		{"stream not configured", &fakeSaved{err: cloud.ErrStreamNotConfigured}, `{}`, http.StatusServiceUnavailable, 0},
		{"publish failure", &fakeSaved{err: errors.New("boom")}, `{}`, http.StatusInternalServerError, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := newTestRouter(Dependencies{Saved: tt.sink}, RouterConfig{})
			w, _ := do(t, r, http.MethodPost, "/api/v1/saved", tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if len(tt.sink.docs) != tt.wantDocs {
				t.Errorf("saved %d docs, want %d", len(tt.sink.docs), tt.wantDocs)
			}
		})
	}

	t.Run("no sink", func(t *testing.T) {
		t.Parallel()
		r := newTestRouter(Dependencies{}, RouterConfig{})
		if w, _ := do(t, r, http.MethodPost, "/api/v1/saved", `{}`); w.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", w.Code)
		}
	})
}

func TestHealth(t *testing.T) {
	t.Parallel()

	failing := errors.New("lookup store closed")
	tests := []struct {
		name       string
		deps       Dependencies
		path       string
		wantStatus int
	}{
		{"live", Dependencies{}, "/api/v1/health/live", http.StatusOK},
		{"ready without checks", Dependencies{Types: func() []string { return []string{"aux"} }}, "/api/v1/health/ready", http.StatusOK},
		{"not ready without types", Dependencies{Types: func() []string { return nil }}, "/api/v1/health/ready", http.StatusServiceUnavailable},
		{
			"not ready with failing check",
			Dependencies{Checks: map[string]HealthCheck{"lookup": func(context.Context) error { return failing }}},
			"/api/v1/health/ready",
			http.StatusServiceUnavailable,
		},
		{
			"degraded health still answers 200",
			Dependencies{Checks: map[string]HealthCheck{"lookup": func(context.Context) error { return failing }}},
			"/api/v1/health",
			http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := newTestRouter(tt.deps, RouterConfig{})
			if w, _ := do(t, r, http.MethodGet, tt.path, ""); w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestHealth_Body(t *testing.T) {
	t.Parallel()
	r := newTestRouter(Dependencies{
		Types:  func() []string { return []string{"wave", "aux"} },
		Checks: map[string]HealthCheck{"lookup": func(context.Context) error { return nil }},
	}, RouterConfig{})

	_, resp := do(t, r, http.MethodGet, "/api/v1/health", "")
	data, _ := resp.Data.(map[string]any)
	if data["status"] != "healthy" {
		t.Errorf("status = %v", data["status"])
	}
	types, _ := data["record_types"].([]any)
	if len(types) != 2 || types[0] != "aux" {
		t.Errorf("record_types = %v", data["record_types"])
	}
	deps, _ := data["dependencies"].(map[string]any)
	if deps["lookup"] != "ok" {
		t.Errorf("dependencies = %v", data["dependencies"])
	}
}

func TestRouter_Fallbacks(t *testing.T) {
	t.Parallel()
	r := newTestRouter(Dependencies{}, RouterConfig{})

	if w, _ := do(t, r, http.MethodGet, "/api/v1/nope", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d", w.Code)
	}
	if w, _ := do(t, r, http.MethodGet, "/api/v1/records", ""); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /records status = %d", w.Code)
	}
	w, _ := do(t, r, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Errorf("/metrics status = %d", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()
	r := newTestRouter(Dependencies{}, RouterConfig{RateLimitReqs: 2, RateLimitWindow: time.Minute})

	codes := make([]int, 0, 3)
	for range 3 {
		w, _ := do(t, r, http.MethodPost, "/api/v1/records", `{"Records":[]}`)
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("status codes = %v", codes)
	}
}

func TestRouterConfigFrom(t *testing.T) {
	t.Parallel()
	cfg := RouterConfigFrom(config.ServerConfig{RateLimitReqs: 10, RateLimitWindow: time.Second, MaxBodyBytes: 1024, Timeout: time.Minute})
	if cfg.RateLimitReqs != 10 || cfg.RateLimitWindow != time.Second || cfg.MaxBodyBytes != 1024 || cfg.Timeout != time.Minute {
		t.Errorf("RouterConfigFrom() = %+v", cfg)
	}
}
