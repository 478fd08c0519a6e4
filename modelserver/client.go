// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package modelserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/memory-palace/core/core/resilience"
	mperrors "github.com/memory-palace/core/pkg/errors"
	"github.com/memory-palace/core/observability/logging"
	"github.com/memory-palace/core/observability/metrics"
)

const (
	embedFirstAttemptTimeout = 30 * time.Second
	embedRetryTimeout        = 60 * time.Second
	generateTimeout          = 180 * time.Second
)

// ClientConfig configures a Client.
type ClientConfig struct {
	// BaseURL is the model server's base URL, e.g. "http://localhost:11434".
	BaseURL string

	// MaxEmbeddingChars truncates embedding input to this many
	// characters. Default 6000.
	MaxEmbeddingChars int

	Metrics *metrics.StoreMetrics
	Log     logging.Logger
}

// Client is an Ollama-protocol HTTP model-server client. It tracks
// three roles independently (embedding, LLM, classification), each
// with its own preference list and detection cache.
type Client struct {
	baseURL           string
	httpClient        *http.Client
	maxEmbeddingChars int
	retryConfig       *resilience.RetryConfig
	metrics           *metrics.StoreMetrics
	log               logging.Logger

	roles map[Role]*roleCache
	sf    singleflight.Group
	cb    *resilience.CircuitBreaker
}

// NewClient constructs a Client. A zero-value cfg.BaseURL defaults to
// "http://localhost:11434"; cfg.MaxEmbeddingChars defaults to 6000.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	maxChars := cfg.MaxEmbeddingChars
	if maxChars <= 0 {
		maxChars = MaxEmbeddingChars
	}

	embedRetry := resilience.DefaultRetryConfig()
	embedRetry.ShouldRetry = func(err error) bool {
		return !mperrors.Is(err, mperrors.ErrContextLengthExceeded)
	}

	return &Client{
		baseURL:           strings.TrimRight(baseURL, "/"),
		httpClient:        &http.Client{},
		maxEmbeddingChars: maxChars,
		retryConfig:       embedRetry,
		metrics:           cfg.Metrics,
		log:               cfg.Log,
		roles: map[Role]*roleCache{
			RoleEmbedding:      newRoleCache(PreferredEmbeddingModels),
			RoleLLM:            newRoleCache(PreferredLLMModels),
			RoleClassification: newRoleCache(PreferredClassificationModels),
		},
		cb: resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig()),
	}
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels returns the names of every model the server currently has
// available, via GET /api/tags.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("build tags request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", mperrors.ErrModelServerUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read tags response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: tags probe returned status %d", mperrors.ErrModelServerUnavailable, resp.StatusCode)
	}

	var tags tagsResponse
	if err := json.Unmarshal(body, &tags); err != nil {
		return nil, fmt.Errorf("decode tags response: %w", err)
	}

	names := make([]string, len(tags.Models))
	for i, m := range tags.Models {
		names[i] = m.Name
	}
	return names, nil
}

// IsEmbeddingServerAvailable probes the server's availability for the
// embedding role. It shares the /api/tags probe with IsLLMAvailable but
// is kept as a separate named method because policy code (recall's
// synthesis fallback) reads better calling the role-specific name.
func (c *Client) IsEmbeddingServerAvailable(ctx context.Context) bool {
	_, err := c.modelFor(ctx, RoleEmbedding)
	return err == nil
}

// IsLLMAvailable probes the server's availability for the LLM role.
func (c *Client) IsLLMAvailable(ctx context.Context) bool {
	_, err := c.modelFor(ctx, RoleLLM)
	return err == nil
}

// ClearModelCache invalidates all three roles' cached model selection,
// forcing the next call of each role to re-probe /api/tags.
func (c *Client) ClearModelCache() {
	for _, rc := range c.roles {
		rc.clear()
	}
}

type embedRequest struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	KeepAlive string `json:"keep_alive"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
	Error     string    `json:"error"`
}

// Embed generates a vector embedding for text. Input is truncated to
// MaxEmbeddingChars, the server is asked to unload the model
// immediately after the call (keep_alive "0"), and the call is retried
// per the embedding retry policy: up to 3 attempts, exponential
// backoff from 2s, first attempt bounded at 30s and retries at 60s to
// cover a cold model load.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	model, err := c.modelFor(ctx, RoleEmbedding)
	if err != nil {
		return nil, err
	}

	input := truncateForEmbedding(text, c.maxEmbeddingChars)

	var result []float32
	attempt := 0
	start := time.Now()
	retryErr := resilience.Retry(ctx, c.retryConfig, func(ctx context.Context) error {
		attempt++
		timeout := embedFirstAttemptTimeout
		if attempt > 1 {
			timeout = embedRetryTimeout
		}

		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		var vec []float32
		callErr := c.cb.Execute(callCtx, func(ctx context.Context) error {
			v, err := c.doEmbed(ctx, model, input)
			if err != nil {
				return err
			}
			vec = v
			return nil
		})
		if callErr != nil {
			if c.log != nil {
				c.log.Warn(ctx, "embedding attempt failed",
					logging.Int("attempt", attempt),
					logging.Error(callErr),
					logging.Int("input_length", len(input)))
			}
			return callErr
		}
		result = vec
		return nil
	})

	if c.metrics != nil {
		c.metrics.RecordEmbedding(model, time.Since(start).Seconds(), retryErr)
	}

	if retryErr != nil {
		if mperrors.Is(retryErr, mperrors.ErrContextLengthExceeded) {
			if c.log != nil {
				c.log.Error(ctx, "embedding failed with context length exceeded after truncation, this indicates a truncation budget bug",
					logging.Error(retryErr))
			}
		}
		return nil, retryErr
	}
	return result, nil
}

func (c *Client) doEmbed(ctx context.Context, model, text string) ([]float32, error) {
	reqBody, err := json.Marshal(embedRequest{Model: model, Prompt: text, KeepAlive: "0"})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embeddings", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", mperrors.ErrModelServerUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}

	// The body is parsed even on a server error status, because the
	// server may return an `error` field with status 500 on cold
	// starts.
	var parsed embedResponse
	if jsonErr := json.Unmarshal(body, &parsed); jsonErr != nil {
		return nil, fmt.Errorf("decode embed response: %w", jsonErr)
	}

	if parsed.Error != "" {
		if strings.Contains(strings.ToLower(parsed.Error), "context length") {
			return nil, mperrors.ErrContextLengthExceeded
		}
		return nil, fmt.Errorf("model server error: %s", parsed.Error)
	}

	if len(parsed.Embedding) == 0 {
		return nil, mperrors.ErrEmptyEmbedding
	}

	return parsed.Embedding, nil
}

type generateOptions struct {
	NumCtx      int     `json:"num_ctx,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
	FlashAttn   bool    `json:"flash_attn,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

type generateRequestBody struct {
	Model     string          `json:"model"`
	Prompt    string          `json:"prompt"`
	System    string          `json:"system,omitempty"`
	Stream    bool            `json:"stream"`
	Think     bool            `json:"think,omitempty"`
	KeepAlive string          `json:"keep_alive"`
	Options   generateOptions `json:"options"`
}

type generateResponseBody struct {
	Response string `json:"response"`
	Thinking string `json:"thinking"`
	Error    string `json:"error"`
}

// Generate performs a single non-streaming text generation call. It is
// never retried — a single 180s ceiling applies, matching spec.md's
// "generation calls are not retried".
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	model := req.Model
	if model == "" {
		role := RoleLLM
		selected, err := c.modelFor(ctx, role)
		if err != nil {
			return "", err
		}
		model = selected
	}

	numCtx := req.NumCtx
	if numCtx == 0 {
		numCtx = 8192
	}

	callCtx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	reqBody, err := json.Marshal(generateRequestBody{
		Model:     model,
		Prompt:    req.Prompt,
		System:    req.System,
		Stream:    false,
		Think:     req.Think,
		KeepAlive: "0",
		Options: generateOptions{
			NumCtx:      numCtx,
			NumPredict:  req.NumPredict,
			Temperature: req.Temperature,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}

	var parsed generateResponseBody
	cbErr := c.cb.Execute(callCtx, func(ctx context.Context) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(reqBody))
		if err != nil {
			return fmt.Errorf("build generate request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return fmt.Errorf("%w: %v", mperrors.ErrModelServerUnavailable, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read generate response: %w", err)
		}

		if err := json.Unmarshal(body, &parsed); err != nil {
			return fmt.Errorf("decode generate response: %w", err)
		}
		return nil
	})
	if cbErr != nil {
		if c.log != nil {
			c.log.Warn(ctx, "generation call failed", logging.Error(cbErr))
		}
		return "", cbErr
	}

	if parsed.Error != "" {
		if c.log != nil {
			c.log.Warn(ctx, "model server reported a generation error", logging.String("error", parsed.Error))
		}
		return "", fmt.Errorf("model server error: %s", parsed.Error)
	}

	return parsed.Response, nil
}
