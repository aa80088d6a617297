package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userRequest(model string) GenerateRequest {
	return GenerateRequest{Model: model, Messages: []Message{{Role: RoleUser, Content: "describe the data"}}, MaxTokens: 32}
}

func TestOpenAIGenerate(t *testing.T) {
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "gpt-4o-mini", body["model"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"chatcmpl-1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"three columns"},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`))
	}))
	defer srv.Close()

	rt, ok := GetRuntime(ProviderOpenAI, RuntimeConfig{APIKey: "sk-test", Host: srv.URL + "/v1", RetryMax: 1})
	require.True(t, ok)
	resp, err := rt.Generate(context.Background(), userRequest("gpt-4o-mini"))
	require.NoError(t, err)
	text, err := resp.Text()
	require.NoError(t, err)
	assert.Equal(t, "three columns", text)
	assert.Equal(t, 7, resp.Usage.TotalTokens)
}

func TestOpenAIAuthErrorIsTyped(t *testing.T) {
	var calls int32
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("sk-bad", srv.URL+"/v1", 2*time.Second, 3, time.Millisecond, 5*time.Millisecond)
	_, err := c.Generate(context.Background(), userRequest("gpt-4o-mini"))
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "invalid_api_key", authErr.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "auth failures are not retried")
}

func TestAnthropicGenerate(t *testing.T) {
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "ak-test", r.Header.Get("X-Api-Key"))
		var body struct {
			Messages []json.RawMessage `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Len(t, body.Messages, 1, "system text is not sent as a message")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-haiku-latest","content":[{"type":"text","text":"mostly numeric"}],"stop_reason":"end_turn","usage":{"input_tokens":9,"output_tokens":3}}`))
	}))
	defer srv.Close()

	rt, ok := GetRuntime(ProviderAnthropic, RuntimeConfig{APIKey: "ak-test", Host: srv.URL + "/v1", RetryMax: 1})
	require.True(t, ok)
	req := userRequest("claude-3-5-haiku-latest")
	req.Messages = append([]Message{{Role: RoleSystem, Content: "be brief"}}, req.Messages...)
	resp, err := rt.Generate(context.Background(), req)
	require.NoError(t, err)
	text, err := resp.Text()
	require.NoError(t, err)
	assert.Equal(t, "mostly numeric", text)
	assert.Equal(t, 12, resp.Usage.TotalTokens)
}

func TestAnthropicAuthErrorIsTyped(t *testing.T) {
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))
	defer srv.Close()

	c := NewAnthropicClient("ak-bad", srv.URL+"/v1", 2*time.Second, 1, 0, 0)
	_, err := c.Generate(context.Background(), userRequest("claude-3-5-haiku-latest"))
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
}

func TestHostedRuntimesRequireKey(t *testing.T) {
	for _, p := range []string{ProviderOpenRouter, ProviderOpenAI, ProviderAnthropic} {
		rt, ok := GetRuntime(p, RuntimeConfig{})
		require.True(t, ok, p)
		_, err := rt.Generate(context.Background(), userRequest("m"))
		assert.True(t, errors.Is(err, ErrMissingAPIKey), p)
	}
}

func TestProvidersRegistered(t *testing.T) {
	assert.Equal(t, []string{ProviderAnthropic, ProviderOllama, ProviderOpenAI, ProviderOpenRouter}, Providers())
	_, ok := GetRuntime("gemini", RuntimeConfig{})
	assert.False(t, ok)
}

func TestClassifyAPIError(t *testing.T) {
	var q *QuotaExceededError
	assert.ErrorAs(t, classifyAPIError(&APIError{StatusCode: 400, Message: "Your credit balance is too low"}, 0), &q)
	var nf *ModelNotFoundError
	assert.ErrorAs(t, classifyAPIError(&APIError{StatusCode: 404, Code: "model_not_found"}, 0), &nf)
	var rl *RateLimitError
	require.ErrorAs(t, classifyAPIError(&APIError{StatusCode: 429}, 2*time.Second), &rl)
	assert.Equal(t, 2*time.Second, rl.RetryAfter)
	var se *ServerError
	assert.ErrorAs(t, classifyAPIError(&APIError{StatusCode: 503}, 0), &se)
}
