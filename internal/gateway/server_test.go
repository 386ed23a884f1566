package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/FergusFettes/openai-cd2-proxy/internal/scheduler"
	"github.com/FergusFettes/openai-cd2-proxy/internal/tokencount"
)

func TestServer_RoutesCompletionsThroughMiddlewareChain(t *testing.T) {
	sched := newTestScheduler(t, stubUpstream{})
	h := NewHandler(sched, tokencount.NewApproximateCounter(), nil, nil)

	var calledAuth, calledMetrics bool
	auth := Middleware(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calledAuth = true
			next.ServeHTTP(w, r)
		})
	})
	metrics := Middleware(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calledMetrics = true
			next.ServeHTTP(w, r)
		})
	})

	srv := NewServer(Config{Addr: ":0"}, h, nil, &ServerOpts{AuthMiddleware: auth, MetricsMiddleware: metrics})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/completions", bytes.NewBufferString(`{"prompt":"hi"}`))
	srv.http.Handler.ServeHTTP(rec, req)

	if !calledAuth || !calledMetrics {
		t.Fatalf("expected both middlewares invoked, got auth=%v metrics=%v", calledAuth, calledMetrics)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestServer_HealthEndpoint(t *testing.T) {
	sched := newTestScheduler(t, stubUpstream{})
	h := NewHandler(sched, tokencount.NewApproximateCounter(), nil, nil)
	srv := NewServer(Config{Addr: ":0"}, h, nil, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	srv.http.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	var decoded map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["status"] != "ok" {
		t.Fatalf("unexpected body: %v", decoded)
	}
}

func TestServer_ShutdownIsGraceful(t *testing.T) {
	sched := newTestScheduler(t, stubUpstream{})
	h := NewHandler(sched, tokencount.NewApproximateCounter(), nil, nil)
	srv := NewServer(Config{Addr: "127.0.0.1:0"}, h, nil, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Start returned error after shutdown: %v", err)
	}
}

var _ scheduler.UpstreamClient = stubUpstream{}
