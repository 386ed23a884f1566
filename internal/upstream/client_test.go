package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/FergusFettes/openai-cd2-proxy/internal/scheduler"
)

func ptrInt(i int) *int { return &i }

func TestClient_MultiPromptWireFormAndHeaders(t *testing.T) {
	var gotBody requestBody
	var gotAuth, gotOrg string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/completions" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotOrg = r.Header.Get("OpenAI-Organization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		resp := responseBody{Choices: []scheduler.Choice{
			{"text": "p1"}, {"text": "p2"},
		}}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "sk-test", Org: "org-1", Timeout: 5 * time.Second}, nil, nil)

	shared := scheduler.SharedParams{Model: "test-model", MaxTokens: ptrInt(16)}
	choices, err := c.Complete(context.Background(), shared, []string{"p1", "p2"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(choices) != 2 {
		t.Fatalf("expected 2 choices, got %d", len(choices))
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("expected bearer auth header, got %q", gotAuth)
	}
	if gotOrg != "org-1" {
		t.Fatalf("expected org header, got %q", gotOrg)
	}
	if gotBody.Model != "test-model" || len(gotBody.Prompt) != 2 {
		t.Fatalf("unexpected request body: %+v", gotBody)
	}
	if gotBody.MaxTokens == nil || *gotBody.MaxTokens != 16 {
		t.Fatalf("expected max_tokens=16, got %+v", gotBody.MaxTokens)
	}
	if gotBody.Stop != nil {
		t.Fatalf("expected absent stop field, got %v", gotBody.Stop)
	}
}

func TestClient_NonTwoXXReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"boom"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Timeout: 5 * time.Second}, nil, nil)
	_, err := c.Complete(context.Background(), scheduler.SharedParams{Model: "m"}, []string{"x"})
	if err == nil {
		t.Fatal("expected an error for non-2xx response")
	}
}

func TestClient_EmptyStopSentWhenPresent(t *testing.T) {
	var gotRaw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotRaw)
		json.NewEncoder(w).Encode(responseBody{Choices: []scheduler.Choice{{"text": "x"}}})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Timeout: 5 * time.Second}, nil, nil)
	shared := scheduler.SharedParams{Model: "m", HasStop: true, Stop: []string{}}
	if _, err := c.Complete(context.Background(), shared, []string{"x"}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if _, ok := gotRaw["stop"]; !ok {
		t.Fatalf("expected stop field present (empty list) when HasStop is true")
	}
}
