package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newIPv4Server starts an httptest server bound to 127.0.0.1, skipping the
// test where the sandbox forbids local listeners.
func newIPv4Server(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) {
			t.Skipf("skipping test: cannot open local listener (%v)", err)
		}
		t.Fatalf("listen tcp4: %v", err)
	}
	srv := httptest.NewUnstartedServer(handler)
	srv.Listener.Close()
	srv.Listener = ln
	srv.Start()
	return srv
}

type reply struct {
	status int
	header http.Header
	body   any
}

// scriptedOpenRouter answers successive chat completions with replies, repeating
// the last one, and counts calls.
func scriptedOpenRouter(t *testing.T, calls *int32, replies ...reply) *httptest.Server {
	t.Helper()
	return newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		i := int(atomic.AddInt32(calls, 1)) - 1
		if i >= len(replies) {
			i = len(replies) - 1
		}
		rep := replies[i]
		for k, vals := range rep.header {
			for _, v := range vals {
				w.Header().Add(k, v)
			}
		}
		w.WriteHeader(rep.status)
		_ = json.NewEncoder(w).Encode(rep.body)
	}))
}

func summaryRequest() GenerateRequest {
	return GenerateRequest{
		Model:     "openai/gpt-4o-mini",
		Messages:  []Message{{Role: RoleUser, Content: "[DATASET SUMMARY]\nRows: 3\n"}},
		MaxTokens: 16,
	}
}

var okReply = reply{status: http.StatusOK, body: GenerateResponse{
	Choices: []Choice{{Message: Message{Role: RoleAssistant, Content: "Three rows, no gaps."}}},
}}

func TestOpenRouterSendsAttributionHeaders(t *testing.T) {
	var got http.Header
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		_ = json.NewEncoder(w).Encode(okReply.body)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("sk-or-test", 2*time.Second, 1, 0, 0, srv.URL+"/")
	resp, err := c.Generate(context.Background(), summaryRequest())
	require.NoError(t, err)
	text, err := resp.Text()
	require.NoError(t, err)
	assert.Equal(t, "Three rows, no gaps.", text)
	assert.Equal(t, "Bearer sk-or-test", got.Get("Authorization"))
	assert.Equal(t, "datalens", got.Get("X-Title"))
	assert.Equal(t, "https://github.com/KaramelBytes/datalens", got.Get("HTTP-Referer"))
}

func TestOpenRouterMissingKey(t *testing.T) {
	_, err := NewOpenRouterClient("").Generate(context.Background(), summaryRequest())
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestGenerateRetriesOn429(t *testing.T) {
	var calls int32
	srv := scriptedOpenRouter(t, &calls,
		reply{status: http.StatusTooManyRequests, header: http.Header{"Retry-After": {"0"}},
			body: map[string]any{"error": map[string]any{"message": "rate limited"}}},
		okReply,
	)
	defer srv.Close()

	c := NewClientWithBaseURL("test", 2*time.Second, 3, 10*time.Millisecond, 100*time.Millisecond, srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := c.Generate(ctx, summaryRequest())
	require.NoError(t, err)
	require.NotEmpty(t, resp.Choices)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestRetryAfterHonored(t *testing.T) {
	var calls int32
	srv := scriptedOpenRouter(t, &calls,
		reply{status: http.StatusTooManyRequests, header: http.Header{"Retry-After": {"1"}},
			body: map[string]any{"error": "slow down"}},
		okReply,
	)
	defer srv.Close()

	c := NewClientWithBaseURL("test", 5*time.Second, 3, 0, 0, srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	_, err := c.Generate(ctx, summaryRequest())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
}

func TestSingleAttemptSurfacesRateLimit(t *testing.T) {
	var calls int32
	srv := scriptedOpenRouter(t, &calls, reply{status: http.StatusTooManyRequests,
		header: http.Header{"Retry-After": {"7"}},
		body:   map[string]any{"error": map[string]any{"message": "rate limited"}}})
	defer srv.Close()

	c := NewClientWithBaseURL("test", 2*time.Second, 1, 0, 0, srv.URL)
	_, err := c.Generate(context.Background(), summaryRequest())
	var rl *RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 7*time.Second, rl.RetryAfter)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestAuthErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := scriptedOpenRouter(t, &calls, reply{status: http.StatusUnauthorized,
		body: map[string]any{"error": map[string]any{"message": "No auth credentials found", "code": "unauthorized"}}})
	defer srv.Close()

	c := NewClientWithBaseURL("bad", 2*time.Second, 3, time.Millisecond, time.Millisecond, srv.URL)
	_, err := c.Generate(context.Background(), summaryRequest())
	var auth *AuthError
	require.ErrorAs(t, err, &auth)
	assert.Equal(t, "unauthorized", auth.Code)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestErrorIncludesRequestID(t *testing.T) {
	var calls int32
	srv := scriptedOpenRouter(t, &calls, reply{status: http.StatusBadRequest,
		header: http.Header{"X-Request-Id": {"req_test_123"}},
		body:   map[string]any{"error": map[string]any{"message": "bad req", "code": "bad_request"}}})
	defer srv.Close()

	c := NewClientWithBaseURL("test", 2*time.Second, 1, 0, 0, srv.URL)
	_, err := c.Generate(context.Background(), summaryRequest())
	var bad *BadRequestError
	require.ErrorAs(t, err, &bad)
	assert.Contains(t, err.Error(), "request_id=req_test_123")
}

func TestOpenRouterStreamParsesDeltas(t *testing.T) {
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Mostly \"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"complete\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("test", 5*time.Second, 1, 0, 0, srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	var out string
	require.NoError(t, c.GenerateStream(ctx, summaryRequest(), func(d string) { out += d }))
	assert.Equal(t, "Mostly complete", out)
}
