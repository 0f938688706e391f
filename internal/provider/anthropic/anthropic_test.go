package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/felipepmaragno/agentrouter/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		var req messagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "claude-3-haiku-20240307", req.Model)
		assert.Equal(t, "be brief", req.System)

		w.Write([]byte(`{"content":[{"type":"text","text":"Hello"},{"type":"text","text":" there"}],"usage":{"input_tokens":1500,"output_tokens":500}}`))
	}))
	defer srv.Close()

	p := New("key", srv.URL, srv.Client())
	c, err := p.Complete(context.Background(), "claude-3-haiku-20240307", "hi", provider.CompletionOptions{System: "be brief"})
	require.NoError(t, err)

	assert.Equal(t, "Hello there", c.Content)
	assert.Equal(t, 2000, c.TokensUsed)
	assert.InDelta(t, 0.0005, c.Cost, 1e-12)
}

func TestProvider_UnknownModelHasZeroCost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content":[{"type":"text","text":"x"}],"usage":{"input_tokens":10,"output_tokens":10}}`))
	}))
	defer srv.Close()

	c, err := New("key", srv.URL, srv.Client()).Complete(context.Background(), "claude-next", "hi", provider.CompletionOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0.0, c.Cost)
}

func TestProvider_Models(t *testing.T) {
	models := New("key", "", nil).Models()
	require.Len(t, models, 2)
	assert.Equal(t, "Claude 3.5 Sonnet", models[0].Name)
	assert.Equal(t, ProviderID, models[1].Provider)
}
