// Package narrative asks a language model to describe a dataset summary.
//
// The model is an opaque collaborator: one prompt goes in and its text comes
// back unmodified. Any failure of the call is reported as
// ErrServiceUnavailable and is never retried here.
package narrative

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/KaramelBytes/datalens/internal/ai"
	"github.com/KaramelBytes/datalens/internal/analysis"
	"github.com/KaramelBytes/datalens/internal/utils"
	"go.uber.org/zap"
)

var (
	// ErrServiceUnavailable wraps every failure of the text-generation call.
	ErrServiceUnavailable = errors.New("narrative service unavailable")
	// ErrPromptTooLarge is returned before calling when the prompt cannot fit the model's context window.
	ErrPromptTooLarge = errors.New("prompt exceeds model context window")
)

// DefaultQuestion is used when the caller asks nothing specific.
const DefaultQuestion = "Analyze this dataset. Give a general overview of what it contains, point out data quality issues worth attention and suggest next steps for analysis."

// DefaultTimeout bounds a single call when Options.Timeout is unset.
const DefaultTimeout = 60 * time.Second

const systemPrompt = "You are a careful data analyst. Answer using only the dataset summary provided. Say so when the summary does not contain enough information."

// BuildPrompt renders the summary sections followed by the question verbatim.
func BuildPrompt(s *analysis.Summary, question string) string {
	var b strings.Builder
	b.WriteString(s.Markdown())
	b.WriteString("\n[QUESTION]\n")
	if strings.TrimSpace(question) == "" {
		question = DefaultQuestion
	}
	b.WriteString(question)
	b.WriteString("\n")
	return b.String()
}

// Options configures the model call.
type Options struct {
	Provider    string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Narrator turns summaries into model-written text.
type Narrator struct {
	runtime ai.Runtime
	opts    Options
	logger  *zap.Logger
}

// New returns a Narrator. A nil logger disables logging.
func New(rt ai.Runtime, opts Options, logger *zap.Logger) *Narrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Model == "" {
		opts.Model = ai.DefaultModel(opts.Provider)
	}
	return &Narrator{runtime: rt, opts: opts, logger: logger.Named("narrative")}
}

func (n *Narrator) request(s *analysis.Summary, question string) (ai.GenerateRequest, error) {
	prompt := BuildPrompt(s, question)
	tokens := utils.CountTokens(systemPrompt) + utils.CountTokens(prompt)
	n.logger.Info("prepared narrative prompt",
		zap.String("provider", n.opts.Provider),
		zap.String("model", n.opts.Model),
		zap.Int("prompt_tokens", tokens),
	)
	if mi, ok := ai.LookupModelFor(n.opts.Provider, n.opts.Model); ok && mi.ContextTokens > 0 {
		if tokens+n.opts.MaxTokens > mi.ContextTokens {
			return ai.GenerateRequest{}, fmt.Errorf("%w: ~%d prompt + %d completion tokens > %d for %s",
				ErrPromptTooLarge, tokens, n.opts.MaxTokens, mi.ContextTokens, n.opts.Model)
		}
	}
	return ai.GenerateRequest{
		Model: n.opts.Model,
		Messages: []ai.Message{
			{Role: ai.RoleSystem, Content: systemPrompt},
			{Role: ai.RoleUser, Content: prompt},
		},
		MaxTokens:   n.opts.MaxTokens,
		Temperature: n.opts.Temperature,
	}, nil
}

// Summarize sends one request and returns the first choice text as produced.
func (n *Narrator) Summarize(ctx context.Context, s *analysis.Summary, question string) (string, error) {
	req, err := n.request(s, question)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, n.opts.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := n.runtime.Generate(ctx, req)
	if err != nil {
		n.logger.Warn("narrative request failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return "", fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}
	text, err := resp.Text()
	if err != nil {
		n.logger.Warn("narrative response empty", zap.String("request_id", resp.RequestID))
		return "", fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}
	n.logger.Debug("narrative received",
		zap.String("request_id", resp.RequestID),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)),
	)
	return text, nil
}

// Stream delivers the answer incrementally when the runtime supports it and
// otherwise delivers the whole answer in one call to onDelta.
func (n *Narrator) Stream(ctx context.Context, s *analysis.Summary, question string, onDelta func(string)) error {
	sr, ok := n.runtime.(ai.StreamRuntime)
	if !ok {
		text, err := n.Summarize(ctx, s, question)
		if err != nil {
			return err
		}
		onDelta(text)
		return nil
	}
	req, err := n.request(s, question)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, n.opts.Timeout)
	defer cancel()
	if err := sr.GenerateStream(ctx, req, onDelta); err != nil {
		n.logger.Warn("narrative stream failed", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}
	return nil
}
