package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/FergusFettes/openai-cd2-proxy/internal/identity"
	"github.com/FergusFettes/openai-cd2-proxy/internal/scheduler"
	"github.com/FergusFettes/openai-cd2-proxy/internal/tokencount"
	"github.com/FergusFettes/openai-cd2-proxy/internal/usage"
)

// stubUpstream implements scheduler.UpstreamClient for handler tests: it
// either echoes one choice per prompt or returns a canned error.
type stubUpstream struct {
	err error
}

func (s stubUpstream) Complete(ctx context.Context, shared scheduler.SharedParams, prompts []string) ([]scheduler.Choice, error) {
	if s.err != nil {
		return nil, s.err
	}
	choices := make([]scheduler.Choice, len(prompts))
	for i, p := range prompts {
		choices[i] = scheduler.Choice{"text": p}
	}
	return choices, nil
}

func newTestScheduler(t *testing.T, upstream scheduler.UpstreamClient) *scheduler.Scheduler {
	t.Helper()
	sched := scheduler.New(scheduler.Config{Model: "test-model"}, upstream, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sched.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return sched
}

type fakeLedger struct {
	records []usage.Record
}

func (f *fakeLedger) Record(ctx context.Context, rec usage.Record) error {
	f.records = append(f.records, rec)
	return nil
}

func TestHandleCompletions_SinglePromptSuccess(t *testing.T) {
	sched := newTestScheduler(t, stubUpstream{})
	ledger := &fakeLedger{}
	h := NewHandler(sched, tokencount.NewApproximateCounter(), ledger, nil)

	body := bytes.NewBufferString(`{"prompt":"hello","max_tokens":10,"n":1}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/completions", body)
	ctx := context.WithValue(req.Context(), identity.CallerContextKey, "alice")
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()

	h.handleCompletions(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var decoded struct {
		Choices []map[string]any `json:"choices"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(decoded.Choices) != 1 || decoded.Choices[0]["text"] != "hello" {
		t.Fatalf("unexpected choices: %+v", decoded.Choices)
	}
	if len(ledger.records) != 2 {
		t.Fatalf("got %d usage records, want 2 (prompt + completion)", len(ledger.records))
	}
	for _, r := range ledger.records {
		if r.Caller != "alice" {
			t.Fatalf("usage record caller = %q, want alice", r.Caller)
		}
	}
}

func TestHandleCompletions_MissingPromptReturns400(t *testing.T) {
	sched := newTestScheduler(t, stubUpstream{})
	h := NewHandler(sched, tokencount.NewApproximateCounter(), nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/completions", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()

	h.handleCompletions(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", rec.Code)
	}
}

func TestHandleCompletions_ShuttingDownReturns503(t *testing.T) {
	sched := scheduler.New(scheduler.Config{Model: "test-model"}, stubUpstream{}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	doneCh := make(chan struct{})
	go func() {
		defer close(doneCh)
		sched.Run(ctx)
	}()
	cancel()
	<-doneCh

	h := NewHandler(sched, tokencount.NewApproximateCounter(), nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/completions", bytes.NewBufferString(`{"prompt":"hi"}`))
	rec := httptest.NewRecorder()

	h.handleCompletions(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("got status %d, want 503: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleCompletions_UpstreamErrorReturns500(t *testing.T) {
	sched := newTestScheduler(t, stubUpstream{err: errStubUpstreamFailure})
	h := NewHandler(sched, tokencount.NewApproximateCounter(), nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/completions", bytes.NewBufferString(`{"prompt":"hi"}`))
	req = req.WithContext(context.WithValue(req.Context(), identity.CallerContextKey, "alice"))
	rec := httptest.NewRecorder()

	handlerDone := make(chan struct{})
	go func() {
		defer close(handlerDone)
		h.handleCompletions(rec, req)
	}()
	select {
	case <-handlerDone:
	case <-time.After(5 * time.Second):
		t.Fatal("handler did not return in time")
	}

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("got status %d, want 500: %s", rec.Code, rec.Body.String())
	}
}

func TestDecodePrompt_ListForm(t *testing.T) {
	p, err := decodePrompt(json.RawMessage(`["a","b"]`))
	if err != nil {
		t.Fatalf("decodePrompt: %v", err)
	}
	if !p.IsList || len(p.Multiple) != 2 {
		t.Fatalf("unexpected prompt: %+v", p)
	}
}

var errStubUpstreamFailure = errors.New("stub upstream failure")
