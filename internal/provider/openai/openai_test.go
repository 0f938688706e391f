package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/felipepmaragno/agentrouter/internal/httputil"
	"github.com/felipepmaragno/agentrouter/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o", req.Model)
		assert.Equal(t, 1000, req.MaxTokens)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "hello", req.Messages[0].Content)

		w.Write([]byte(`{"model":"gpt-4o","choices":[{"message":{"role":"assistant","content":"Hi!"}}],"usage":{"total_tokens":2000}}`))
	}))
	defer srv.Close()

	p := New("sk-test", srv.URL, srv.Client())
	c, err := p.Complete(context.Background(), "gpt-4o", "hello", provider.CompletionOptions{})
	require.NoError(t, err)

	assert.Equal(t, "Hi!", c.Content)
	assert.Equal(t, 2000, c.TokensUsed)
	assert.InDelta(t, 0.01, c.Cost, 1e-12)
	assert.Equal(t, "gpt-4o", c.ModelUsed)
}

func TestProvider_CompleteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer srv.Close()

	p := New("bad", srv.URL, srv.Client())
	_, err := p.Complete(context.Background(), "gpt-4o", "hello", provider.CompletionOptions{})

	var se *httputil.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.Code)
}

func TestProvider_Models(t *testing.T) {
	p := New("k", "", nil)
	models := p.Models()

	require.Len(t, models, 3)
	assert.Equal(t, "gpt-4o", models[0].ID)
	assert.Equal(t, ProviderID, models[0].Provider)
	assert.InDelta(t, 0.000005, models[0].CostPerToken, 1e-15)
	assert.Equal(t, 10, models[2].SpeedRating)
}

func TestProvider_HealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	assert.NoError(t, New("k", srv.URL, srv.Client()).HealthCheck(context.Background()))
}
