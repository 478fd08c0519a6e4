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
	"os"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements Provider for OpenAI. It is constructed
// directly with NewOpenAIProvider; no configuration setting selects it.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// OpenAIProviderConfig configures OpenAIProvider.
type OpenAIProviderConfig struct {
	// APIKey defaults to the OPENAI_API_KEY environment variable.
	APIKey string

	// Model defaults to "gpt-4o".
	Model string

	// BaseURL overrides the API base URL, for OpenAI-compatible gateways.
	BaseURL string
}

// NewOpenAIProvider constructs an OpenAIProvider.
func NewOpenAIProvider(cfg OpenAIProviderConfig) *OpenAIProvider {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o"
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

// Generate performs a single non-streaming chat completion.
func (p *OpenAIProvider) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	var messages []openai.ChatCompletionMessage
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}
	if req.NumPredict > 0 {
		chatReq.MaxTokens = req.NumPredict
	}
	if req.Temperature > 0 {
		chatReq.Temperature = float32(req.Temperature)
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no completion choices")
	}
	return resp.Choices[0].Message.Content, nil
}

const (
	anthropicAPIURL     = "https://api.anthropic.com/v1/messages"
	anthropicAPIVersion = "2023-06-01"
)

// AnthropicProvider implements Provider for Anthropic Claude. It calls
// the Messages API directly over HTTP rather than through the SDK:
// the declared anthropic-sdk-go dependency in the donor codebase this
// package is descended from was never actually imported by its own
// Anthropic adapter, which hand-rolls the same request/response shapes
// used here.
type AnthropicProvider struct {
	apiKey     string
	model      string
	httpClient *http.Client
}

// AnthropicProviderConfig configures AnthropicProvider.
type AnthropicProviderConfig struct {
	// APIKey defaults to the ANTHROPIC_API_KEY environment variable.
	APIKey string

	// Model defaults to "claude-3-5-sonnet-20241022".
	Model string

	HTTPClient *http.Client
}

// NewAnthropicProvider constructs an AnthropicProvider.
func NewAnthropicProvider(cfg AnthropicProviderConfig) *AnthropicProvider {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}

	model := cfg.Model
	if model == "" {
		model = "claude-3-5-sonnet-20241022"
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &AnthropicProvider{
		apiKey:     apiKey,
		model:      model,
		httpClient: httpClient,
	}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

type anthropicMessageRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	System    string             `json:"system,omitempty"`
	MaxTokens int                `json:"max_tokens"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicMessageResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

type anthropicErrorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate performs a single non-streaming message call.
func (p *AnthropicProvider) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	maxTokens := req.NumPredict
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	anthropicReq := anthropicMessageRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Messages: []anthropicMessage{
			{Role: "user", Content: req.Prompt},
		},
		System: req.System,
	}

	body, err := json.Marshal(anthropicReq)
	if err != nil {
		return "", fmt.Errorf("marshal anthropic request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicAPIURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build anthropic request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("anthropic request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read anthropic response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errBody anthropicErrorBody
		if jsonErr := json.Unmarshal(respBody, &errBody); jsonErr == nil && errBody.Error.Message != "" {
			return "", fmt.Errorf("anthropic API error (status %d): %s", resp.StatusCode, errBody.Error.Message)
		}
		return "", fmt.Errorf("anthropic API error (status %d)", resp.StatusCode)
	}

	var parsed anthropicMessageResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decode anthropic response: %w", err)
	}

	var text string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}
