package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/FergusFettes/openai-cd2-proxy/internal/scheduler"
)

// Client performs one HTTP POST to the upstream completion endpoint per
// call. It implements scheduler.UpstreamClient.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient constructs a Client. The given http.Client is reused across
// calls; pass nil to get one scoped to cfg.Timeout.
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, httpClient: httpClient, logger: logger.With("component", "upstream-client")}
}

// requestBody is the outbound wire shape: model + prompt list + whatever
// shared parameters were present.
type requestBody struct {
	Model       string    `json:"model"`
	Prompt      []string  `json:"prompt"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	N           *int      `json:"n,omitempty"`
	Stop        *[]string `json:"stop,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type responseBody struct {
	Choices []scheduler.Choice `json:"choices"`
}

// Complete implements scheduler.UpstreamClient. The multi-prompt wire
// form is used whenever len(prompts) > 1; for a single prompt either
// form is acceptable to the upstream, so the single-element list form is
// used uniformly.
func (c *Client) Complete(ctx context.Context, shared scheduler.SharedParams, prompts []string) ([]scheduler.Choice, error) {
	body := requestBody{
		Model:       shared.Model,
		Prompt:      prompts,
		MaxTokens:   shared.MaxTokens,
		N:           shared.N,
		Temperature: shared.Temperature,
	}
	if shared.HasStop {
		stop := shared.Stop
		body.Stop = &stop
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal upstream request: %w", err)
	}

	url := c.cfg.BaseURL + "/v1/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if c.cfg.Org != "" {
		req.Header.Set("OpenAI-Organization", c.cfg.Org)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upstream response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("upstream returned non-2xx",
			"status", resp.StatusCode,
			"prompts", len(prompts),
		)
		return nil, fmt.Errorf("upstream status %d: %s", resp.StatusCode, string(respBytes))
	}

	var parsed responseBody
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		return nil, fmt.Errorf("decode upstream response: %w", err)
	}

	return parsed.Choices, nil
}
