package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func get(t *testing.T, h *Handler, path string) (*httptest.ResponseRecorder, result) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return rec, body
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	rec, body := get(t, New(Flag("worker", func() bool { return false })), "/healthz")
	if rec.Code != http.StatusOK || body.Status != "ok" {
		t.Errorf("healthz = %d %q, want 200 ok", rec.Code, body.Status)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()
	var workerReady atomic.Bool
	h := New(
		Flag("speak_worker", workerReady.Load),
		Checker{Name: "scheduler", Check: func(context.Context) error { return nil }},
	)

	rec, body := get(t, h, "/readyz")
	if rec.Code != http.StatusServiceUnavailable || body.Status != "fail" {
		t.Fatalf("readyz = %d %q, want 503 fail", rec.Code, body.Status)
	}
	if got := body.Checks["speak_worker"]; !strings.Contains(got, ErrNotReady.Error()) {
		t.Errorf("speak_worker check = %q", got)
	}
	if got := body.Checks["scheduler"]; got != "ok" {
		t.Errorf("scheduler check = %q, want ok", got)
	}

	workerReady.Store(true)
	rec, body = get(t, h, "/readyz")
	if rec.Code != http.StatusOK || body.Status != "ok" {
		t.Fatalf("readyz = %d %q, want 200 ok", rec.Code, body.Status)
	}
}

func TestReadyz_AddAfterConstruction(t *testing.T) {
	t.Parallel()
	h := New()
	h.Add(Checker{Name: "home_server", Check: func(context.Context) error { return errors.New("circuit open") }})

	rec, body := get(t, h, "/readyz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if body.Checks["home_server"] != "fail: circuit open" {
		t.Errorf("home_server = %q", body.Checks["home_server"])
	}
}

func TestReadyz_ChecksRunConcurrently(t *testing.T) {
	t.Parallel()
	slow := func(ctx context.Context) error {
		select {
		case <-time.After(200 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h := New(Checker{Name: "a", Check: slow}, Checker{Name: "b", Check: slow}, Checker{Name: "c", Check: slow})

	start := time.Now()
	rec, _ := get(t, h, "/readyz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if elapsed := time.Since(start); elapsed > 550*time.Millisecond {
		t.Errorf("readyz took %v, checks should run concurrently", elapsed)
	}
}
