package restclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticAuth struct {
	token string
	err   error
	calls int
}

func (a *staticAuth) Token(_ context.Context) (string, error) {
	a.calls++
	return a.token, a.err
}

func TestClientGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/ping", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zerolog.Nop())
	status, body, err := client.Get(context.Background(), "/api/ping")

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"ok":true}`, string(body))
}

func TestClientPostEncodesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"text":"buy apple"}`, string(data))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zerolog.Nop())
	status, _, err := client.Post(context.Background(), "api/translate", map[string]string{"text": "buy apple"})

	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, status)
}

func TestClientPutAndDelete(t *testing.T) {
	var methods []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zerolog.Nop())

	status, _, err := client.Put(context.Background(), "/api/thing", map[string]int{"n": 1})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, status)

	status, _, err = client.Delete(context.Background(), "/api/thing")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, status)

	assert.Equal(t, []string{http.MethodPut, http.MethodDelete}, methods)
}

func TestClientSendsBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	auth := &staticAuth{token: "tok-123"}
	client := NewClient(srv.URL, zerolog.Nop(), WithAuthenticator(auth))

	_, _, err := client.Get(context.Background(), "/api/secure")
	require.NoError(t, err)
	assert.Equal(t, 1, auth.calls)
}

func TestClientAuthFailureShortCircuits(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	auth := &staticAuth{err: errors.New("idp down")}
	client := NewClient(srv.URL, zerolog.Nop(), WithAuthenticator(auth))

	_, _, err := client.Get(context.Background(), "/api/secure")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token")
	assert.Zero(t, requests)
}

func TestClientStatusPassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "short and stout"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zerolog.Nop())
	status, body, err := client.Get(context.Background(), "/api/teapot")

	// Non-2xx statuses are data, not errors.
	require.NoError(t, err)
	assert.Equal(t, http.StatusTeapot, status)
	assert.Contains(t, string(body), "short and stout")
}
