package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackProductName(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://example.com/shop/wireless-mouse", "Wireless Mouse"},
		{"https://example.com/shop/wireless-mouse?ref=abc", "Wireless Mouse"},
		{"https://example.com/shop/wireless-mouse/", "Wireless Mouse"},
		{"https://amzn.to/3abc", "3abc"},
		{"https://example.com/item.html", "Product"},
		{"https://example.com/", "Product"},
		{"https://example.com", "Product"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, FallbackProductName(c.url), c.url)
	}
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFences(`{"a":1}`))
	assert.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences("  {\"a\":1}  "))
}

func TestLLMClient_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "user", req.Messages[1].Role)

		writeChatAnswer(w, "youtube")
	}))
	defer server.Close()

	client := &LLMClient{BaseURL: server.URL, APIKey: "secret", Model: "test-model"}
	answer, err := client.Complete(context.Background(), "classify", "URL: x")
	require.NoError(t, err)
	assert.Equal(t, "youtube", answer)
}

func TestLLMClient_CompleteRequiresAPIKey(t *testing.T) {
	client := &LLMClient{BaseURL: "http://localhost:0"}
	_, err := client.Complete(context.Background(), "s", "u")
	assert.Error(t, err)
}

func TestLLMClient_CompleteRejectsBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := &LLMClient{BaseURL: server.URL, APIKey: "secret"}
	_, err := client.Complete(context.Background(), "s", "u")
	assert.Error(t, err)
}

func writeChatAnswer(w http.ResponseWriter, content string) {
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
}
