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
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "llama3.2"
)

// Ollama talks to a local Ollama daemon.
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
	log     zerolog.Logger
}

// NewOllama builds an Ollama provider. Empty arguments select the local
// daemon defaults.
func NewOllama(baseURL, model string, log zerolog.Logger) *Ollama {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if model == "" {
		model = defaultOllamaModel
	}
	return &Ollama{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
		log:     log.With().Str("client", "ollama").Logger(),
	}
}

// Name implements Provider.
func (o *Ollama) Name() string { return "ollama" }

// Model implements Provider.
func (o *Ollama) Model() string { return o.model }

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	System  string         `json:"system,omitempty"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

// Complete implements Provider via the /api/generate endpoint. Temperature
// is pinned to zero so repeated runs stay comparable.
func (o *Ollama) Complete(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	payload, err := json.Marshal(ollamaGenerateRequest{
		Model:   o.model,
		System:  systemPrompt,
		Prompt:  userMessage,
		Stream:  false,
		Options: map[string]any{"temperature": 0},
	})
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}

	var out ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}
	return strings.TrimSpace(out.Response), nil
}

// Available implements Provider by probing /api/tags.
func (o *Ollama) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := o.client.Do(req)
	if err != nil {
		o.log.Debug().Err(err).Msg("ollama not reachable")
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
