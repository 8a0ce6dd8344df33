package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultOpenAIURL   = "https://api.openai.com"
	defaultOpenAIModel = "gpt-4o-mini"
)

// OpenAI talks to the OpenAI chat completions API or any server that speaks
// the same protocol.
type OpenAI struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	log     zerolog.Logger
}

// NewOpenAI builds an OpenAI-compatible provider. An empty key produces a
// provider that reports itself unavailable.
func NewOpenAI(baseURL, apiKey, model string, log zerolog.Logger) *OpenAI {
	if baseURL == "" {
		baseURL = defaultOpenAIURL
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAI{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
		log:     log.With().Str("client", "openai").Logger(),
	}
}

// Name implements Provider.
func (o *OpenAI) Name() string { return "openai" }

// Model implements Provider.
func (o *OpenAI) Model() string { return o.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete implements Provider via /v1/chat/completions.
func (o *OpenAI) Complete(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userMessage},
		},
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("openai returned status %d", resp.StatusCode)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

// Available implements Provider. A provider without a key is never
// available; otherwise the models endpoint is probed.
func (o *OpenAI) Available(ctx context.Context) bool {
	if o.apiKey == "" {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/v1/models", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	resp, err := o.client.Do(req)
	if err != nil {
		o.log.Debug().Err(err).Msg("openai not reachable")
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
