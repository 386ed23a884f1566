package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/FergusFettes/openai-cd2-proxy/internal/identity"
	"github.com/FergusFettes/openai-cd2-proxy/internal/scheduler"
	"github.com/FergusFettes/openai-cd2-proxy/internal/tokencount"
	"github.com/FergusFettes/openai-cd2-proxy/internal/usage"
)

// Submitter is the port through which the handler reaches the
// coalescing scheduler. Satisfied by *scheduler.Scheduler.
type Submitter interface {
	Submit(params scheduler.CompletionParams, caller string) (*scheduler.Waiter, error)
}

// Handler serves the admission front-end's HTTP surface.
type Handler struct {
	scheduler Submitter
	counter   tokencount.Counter
	ledger    usage.Ledger
	logger    *slog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(sched Submitter, counter tokencount.Counter, ledger usage.Ledger, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		scheduler: sched,
		counter:   counter,
		ledger:    ledger,
		logger:    logger.With("component", "gateway-handler"),
	}
}

// RegisterRoutes mounts the admission front-end's routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/completions", h.handleCompletions)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /ready", h.handleHealth)
}

// completionRequest is the inbound wire shape.
type completionRequest struct {
	Prompt      json.RawMessage `json:"prompt"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	N           *int            `json:"n,omitempty"`
	Stop        []string        `json:"stop,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
}

// decodePrompt accepts either a single JSON string or an ordered array
// of strings, preserving which form the caller used.
func decodePrompt(raw json.RawMessage) (scheduler.Prompt, error) {
	if len(raw) == 0 {
		return scheduler.Prompt{}, ErrPromptRequired
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return scheduler.Prompt{Single: single}, nil
	}

	var multiple []string
	if err := json.Unmarshal(raw, &multiple); err == nil {
		return scheduler.Prompt{Multiple: multiple, IsList: true}, nil
	}

	return scheduler.Prompt{}, ErrPromptRequired
}

func (h *Handler) handleCompletions(w http.ResponseWriter, r *http.Request) {
	var req completionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrPromptRequired.Error())
		return
	}

	prompt, err := decodePrompt(req.Prompt)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	caller := identity.Caller(r.Context())

	params := scheduler.CompletionParams{
		Prompt:      prompt,
		Model:       "", // forced to the deployment value by the scheduler
		MaxTokens:   req.MaxTokens,
		N:           req.N,
		Stop:        req.Stop,
		Temperature: req.Temperature,
	}

	promptTokens := h.counter.Count(prompt.Text())

	waiter, err := h.scheduler.Submit(params, caller)
	if err != nil {
		h.writeSchedulerError(w, r, caller, err)
		return
	}

	select {
	case <-waiter.Done():
	case <-r.Context().Done():
		// Client disconnect does not retract the Waiter; it still
		// resolves in the background, there is just no response left
		// to write.
		return
	}

	result := waiter.Result()
	if result.Err != nil {
		h.writeSchedulerError(w, r, caller, result.Err)
		return
	}

	h.recordUsage(r, caller, usage.KindPrompt, promptTokens)
	h.recordUsage(r, caller, usage.KindCompletion, countChoiceTokens(h.counter, result.Choices))

	writeJSON(w, http.StatusOK, map[string]any{"choices": result.Choices})
}

func countChoiceTokens(counter tokencount.Counter, choices []scheduler.Choice) int {
	total := 0
	for _, c := range choices {
		text, _ := c["text"].(string)
		total += counter.Count(text)
	}
	return total
}

func (h *Handler) recordUsage(r *http.Request, caller string, kind usage.Kind, tokens int) {
	if h.ledger == nil || tokens == 0 {
		return
	}
	rec := usage.Record{Caller: caller, Time: float64(time.Now().Unix()), Tokens: tokens, Kind: kind}
	if err := h.ledger.Record(r.Context(), rec); err != nil {
		h.logger.Error("failed to record usage", "caller", caller, "kind", kind, "error", err)
	}
}

// writeSchedulerError maps a scheduler error kind to an HTTP status.
// The raw prompt text is never logged, only the caller and error kind.
func (h *Handler) writeSchedulerError(w http.ResponseWriter, r *http.Request, caller string, err error) {
	switch {
	case errors.Is(err, scheduler.ErrShuttingDown):
		h.logger.Warn("rejected submission during shutdown", "caller", caller)
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, scheduler.ErrUpstreamTransport), errors.Is(err, scheduler.ErrUpstreamShape):
		h.logger.Error("upstream dispatch failed", "caller", caller, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		h.logger.Error("unexpected scheduler error", "caller", caller, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
