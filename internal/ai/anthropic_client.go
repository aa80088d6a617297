package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
)

// DefaultAnthropicMaxTokens is sent when a request leaves MaxTokens unset,
// since the Messages API requires it.
const DefaultAnthropicMaxTokens = 1024

// AnthropicClient calls the Anthropic Messages API through go-anthropic.
type AnthropicClient struct {
	client           *anthropic.Client
	hasKey           bool
	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
}

// NewAnthropicClient builds a client. baseURL may be empty for the public API.
func NewAnthropicClient(apiKey, baseURL string, httpTimeout time.Duration, retryMax int, baseDelay, maxDelay time.Duration) *AnthropicClient {
	if httpTimeout <= 0 {
		httpTimeout = 60 * time.Second
	}
	if retryMax <= 0 {
		retryMax = 3
	}
	opts := []anthropic.ClientOption{anthropic.WithHTTPClient(&http.Client{Timeout: httpTimeout})}
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(strings.TrimRight(baseURL, "/")))
	}
	return &AnthropicClient{
		client:           anthropic.NewClient(apiKey, opts...),
		hasKey:           apiKey != "",
		retryMaxAttempts: retryMax,
		retryBaseDelay:   baseDelay,
		retryMaxDelay:    maxDelay,
	}
}

// Generate sends one Messages request. System messages become the system prompt.
func (c *AnthropicClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if !c.hasKey {
		return nil, fmt.Errorf("anthropic: %w", ErrMissingAPIKey)
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	mreq := anthropic.MessagesRequest{
		Model:     anthropic.Model(req.Model),
		MaxTokens: req.MaxTokens,
	}
	if mreq.MaxTokens <= 0 {
		mreq.MaxTokens = DefaultAnthropicMaxTokens
	}
	if req.Temperature > 0 {
		t := float32(req.Temperature)
		mreq.Temperature = &t
	}
	var system []string
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			text := m.Content
			mreq.Messages = append(mreq.Messages, anthropic.Message{Role: anthropic.RoleAssistant, Content: []anthropic.MessageContent{{Type: "text", Text: &text}}})
		default:
			text := m.Content
			mreq.Messages = append(mreq.Messages, anthropic.Message{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{{Type: "text", Text: &text}}})
		}
	}
	mreq.System = strings.Join(system, "\n\n")
	if len(mreq.Messages) == 0 {
		return nil, ErrEmptyMessages
	}

	bo := newBackoff(c.retryBaseDelay, c.retryMaxDelay)
	var lastErr error
	for attempt := 1; attempt <= c.retryMaxAttempts; attempt++ {
		resp, err := c.client.CreateMessages(ctx, mreq)
		if err == nil {
			var text strings.Builder
			for _, block := range resp.Content {
				if block.Type == "text" && block.Text != nil {
					text.WriteString(*block.Text)
				}
			}
			return &GenerateResponse{
				ID:      resp.ID,
				Choices: []Choice{{Message: Message{Role: RoleAssistant, Content: text.String()}}},
				Usage: Usage{
					PromptTokens:     resp.Usage.InputTokens,
					CompletionTokens: resp.Usage.OutputTokens,
					TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
				},
			}, nil
		}
		var retry bool
		lastErr, retry = mapAnthropicError(err)
		if !retry || attempt == c.retryMaxAttempts || ctx.Err() != nil {
			break
		}
		if werr := bo.wait(ctx, 0); werr != nil {
			return nil, werr
		}
	}
	return nil, lastErr
}

// mapAnthropicError converts go-anthropic errors into this package's typed errors.
func mapAnthropicError(err error) (error, bool) {
	var reqErr *anthropic.RequestError
	var apiErr *anthropic.APIError
	status := 0
	e := &APIError{Message: err.Error()}
	if errors.As(err, &reqErr) {
		status = reqErr.StatusCode
	}
	if errors.As(err, &apiErr) {
		e.Code = string(apiErr.Type)
		e.Message = apiErr.Message
		if status == 0 {
			status = anthropicStatus(string(apiErr.Type))
		}
	}
	if status == 0 {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err, false
		}
		return &UnreachableError{Host: "api.anthropic.com", Err: err}, isRetryableNetErr(err)
	}
	e.StatusCode = status
	return classifyAPIError(e, 0), isRetryableStatus(status) || e.Code == "overloaded_error"
}

// anthropicStatus maps documented error types to their HTTP status.
func anthropicStatus(errType string) int {
	switch errType {
	case "invalid_request_error":
		return http.StatusBadRequest
	case "authentication_error":
		return http.StatusUnauthorized
	case "permission_error":
		return http.StatusForbidden
	case "not_found_error":
		return http.StatusNotFound
	case "rate_limit_error":
		return http.StatusTooManyRequests
	case "overloaded_error":
		return 529
	}
	return http.StatusInternalServerError
}
