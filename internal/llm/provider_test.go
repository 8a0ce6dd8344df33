package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaComplete(t *testing.T) {
	var gotReq ollamaGenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"response": "  BUY 100 AAPL  "})
	}))
	defer srv.Close()

	p := NewOllama(srv.URL, "testmodel", zerolog.Nop())
	out, err := p.Complete(context.Background(), "you translate orders", "buy apple")

	require.NoError(t, err)
	assert.Equal(t, "BUY 100 AAPL", out, "output is trimmed")
	assert.Equal(t, "testmodel", gotReq.Model)
	assert.Equal(t, "you translate orders", gotReq.System)
	assert.Equal(t, "buy apple", gotReq.Prompt)
	assert.False(t, gotReq.Stream)
}

func TestOllamaCompleteServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewOllama(srv.URL, "", zerolog.Nop())
	_, err := p.Complete(context.Background(), "sys", "user")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestOllamaAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p := NewOllama(srv.URL, "", zerolog.Nop())
	assert.True(t, p.Available(context.Background()))

	srv.Close()
	assert.False(t, p.Available(context.Background()), "closed server is unavailable")
}

func TestOllamaDefaults(t *testing.T) {
	p := NewOllama("", "", zerolog.Nop())
	assert.Equal(t, "ollama", p.Name())
	assert.Equal(t, defaultOllamaModel, p.Model())
	assert.Equal(t, defaultOllamaURL, p.baseURL)
}

func TestOpenAIComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "user", req.Messages[1].Role)
		assert.Zero(t, req.Temperature)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": `{"symbol":"AAPL"}`}},
			},
		})
	}))
	defer srv.Close()

	p := NewOpenAI(srv.URL, "sk-test", "gpt-test", zerolog.Nop())
	out, err := p.Complete(context.Background(), "sys", "user")

	require.NoError(t, err)
	assert.Equal(t, `{"symbol":"AAPL"}`, out)
}

func TestOpenAICompleteNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	p := NewOpenAI(srv.URL, "sk-test", "", zerolog.Nop())
	_, err := p.Complete(context.Background(), "sys", "user")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestOpenAIAvailableRequiresKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/models", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	withKey := NewOpenAI(srv.URL, "sk-test", "", zerolog.Nop())
	assert.True(t, withKey.Available(context.Background()))

	withoutKey := NewOpenAI(srv.URL, "", "", zerolog.Nop())
	assert.False(t, withoutKey.Available(context.Background()))
}
