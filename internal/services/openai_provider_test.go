package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skald/internal/store"
)

func TestOpenAIProvider_Embed(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotModel = req.Model

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"object": "list",
			"data": [{"object": "embedding", "index": 0, "embedding": [0.5, 0.25, 0.125]}],
			"model": "text-embedding-3-small",
			"usage": {"prompt_tokens": 7, "total_tokens": 7}
		}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("sk-test", "text-embedding-3-small", srv.URL+"/v1")
	assert.Equal(t, store.ProviderStatusActive, p.Status())
	assert.Equal(t, 1536, p.Dimension())

	res, err := p.Embed(context.Background(), "Name: Lamp")
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-3-small", gotModel)
	assert.Equal(t, 7, res.TokensUsed)
	assert.Len(t, res.Vector, 3)
}

func TestOpenAIProvider_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": {"message": "boom", "type": "server_error"}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("sk-test", "", srv.URL+"/v1")
	_, err := p.Embed(context.Background(), "x")
	assert.Error(t, err)
}

func TestOpenAIProvider_DisabledWithoutKey(t *testing.T) {
	p := NewOpenAIProvider("", "text-embedding-3-large", "")
	assert.Equal(t, store.ProviderStatusDisabled, p.Status())
	assert.Equal(t, 3072, p.Dimension())

	_, err := p.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, ErrProviderDisabled)
}
