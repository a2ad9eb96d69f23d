package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kousskous/menu-extractor/internal/llm"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClient_CompleteSendsImageAndParsesChoice(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Title"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id": "gen-42", "model": "google/gemini-2.5-flash",
			"choices": [{"message": {"content": "  {\"restaurants\": []}  "}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 1200, "completion_tokens": 30}}`)
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL + "/", Model: "google/gemini-2.5-flash"}, discardLogger())
	resp, err := c.Complete(context.Background(), llm.VisionRequest{
		SystemPrompt: "system",
		UserPrompt:   "user",
		ImageDataURL: "data:image/png;base64,AAAA",
		JSONSchema:   llm.BuildExtractionJSONSchema(),
	})
	require.NoError(t, err)
	assert.Equal(t, "gen-42", resp.RequestID)
	assert.Equal(t, `{"restaurants": []}`, resp.Content)
	assert.Equal(t, 1200, resp.PromptTokens)
	assert.Equal(t, 30, resp.CompletionTokens)

	assert.Equal(t, "google/gemini-2.5-flash", got["model"])
	assert.Equal(t, map[string]any{"type": "json_object"}, got["response_format"])
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 3)
	assert.Contains(t, msgs[2].(map[string]any)["content"], "JSON Schema")
	user := msgs[1].(map[string]any)
	parts := user["content"].([]any)
	require.Len(t, parts, 2)
	image := parts[1].(map[string]any)
	assert.Equal(t, "image_url", image["type"])
	assert.Equal(t, "data:image/png;base64,AAAA", image["image_url"].(map[string]any)["url"])
}

func TestClient_CompleteWithoutSchema(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id": "gen-43", "choices": [{"message": {"content": "{}"}}]}`)
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL, DisableSchema: true}, discardLogger())
	_, err := c.Complete(context.Background(), llm.VisionRequest{
		SystemPrompt: "system",
		UserPrompt:   "user",
		JSONSchema:   llm.BuildExtractionJSONSchema(),
	})
	require.NoError(t, err)

	assert.NotContains(t, got, "response_format")
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["content"])
}

func TestClient_CompleteErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		malformed bool
		retryable bool
	}{
		{"unavailable", http.StatusServiceUnavailable, `{"error": "overloaded"}`, false, true},
		{"unauthorized", http.StatusUnauthorized, `{"error": "bad key"}`, false, false},
		{"not json", http.StatusOK, `<html>oops</html>`, true, true},
		{"no choices", http.StatusOK, `{"id": "x", "choices": []}`, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			c := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, discardLogger())
			_, err := c.Complete(context.Background(), llm.VisionRequest{SystemPrompt: "s", UserPrompt: "u"})
			require.Error(t, err)
			assert.Equal(t, tt.malformed, errors.Is(err, llm.ErrMalformedOutput))
			assert.Equal(t, tt.retryable, llm.IsRetryable(err))
		})
	}
}
