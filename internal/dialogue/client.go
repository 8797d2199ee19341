// Package dialogue is the interviewer's link to the language model. It runs
// free-form exchanges (candidate answer in, next interviewer turn out) and the
// end-of-session analysis, with a bounded fixed-backoff retry policy.
//
// The client holds no conversation state: everything it needs arrives as
// call arguments.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/internal/resilience"
	"github.com/MrWong99/parley/pkg/provider/llm"
)

// Defaults for [Config].
const (
	DefaultMaxAttempts = 3
	DefaultBackoff     = time.Second
	DefaultDifficulty  = "Mid-Level"
)

// Config configures a [Client].
type Config struct {
	// Difficulty shapes the interviewer prompt (e.g. "Junior", "Senior").
	Difficulty string

	// MaxAttempts bounds the tries per call. Default 3.
	MaxAttempts int

	// Backoff is the fixed pause between attempts. Default 1s.
	Backoff time.Duration

	// Timeout bounds one attempt. Zero means no per-attempt timeout.
	Timeout time.Duration

	// Temperature is passed to the model. Zero uses the provider default.
	Temperature float64

	// Clock drives the backoff timer. Nil means the wall clock.
	Clock clock.Clock

	// Metrics receives call and attempt counts. Nil means
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Client sends interview turns to an [llm.Provider]. It is safe for
// concurrent use.
type Client struct {
	llm llm.Provider
	cfg Config
}

// New returns a client on provider.
func New(provider llm.Provider, cfg Config) *Client {
	if cfg.Difficulty == "" {
		cfg.Difficulty = DefaultDifficulty
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	return &Client{llm: provider, cfg: cfg}
}

// WithDifficulty returns a copy of c that prompts at difficulty.
func (c *Client) WithDifficulty(difficulty string) *Client {
	cp := *c
	if difficulty != "" {
		cp.cfg.Difficulty = difficulty
	}
	return &cp
}

// Difficulty returns the configured difficulty.
func (c *Client) Difficulty() string { return c.cfg.Difficulty }

// Exchange sends the candidate's answer with the conversation context and
// returns the interviewer's next utterance.
//
// Transport failures and empty replies are retried with a fixed backoff;
// after the last attempt the error wraps [ErrExhausted]. Cancelling ctx
// abandons the call with ctx's error.
func (c *Client) Exchange(ctx context.Context, topic, userText, conversation string) (string, error) {
	req := llm.CompletionRequest{
		SystemPrompt: interviewerPrompt(topic, c.cfg.Difficulty),
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: exchangeMessage(userText, conversation)}},
		Temperature:  c.cfg.Temperature,
	}
	return call(c, ctx, "exchange", topic, req, func(reply string) (string, error) {
		return reply, nil
	})
}

// Analyze asks the model to score the whole interview transcript. A reply
// that is not a well-formed scorecard fails with [ErrMalformedAnalysis]
// without further attempts.
//
// Transcripts longer than the model's context window lose their oldest
// lines first.
func (c *Client) Analyze(ctx context.Context, topic, transcript string) (Scorecard, error) {
	fitted, dropped := fitTranscript(transcript, c.transcriptBudget())
	if dropped > 0 {
		observe.Logger(ctx).Info("dialogue: transcript trimmed for analysis", "dropped_lines", dropped)
	}
	req := llm.CompletionRequest{
		SystemPrompt: analysisPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: analysisMessage(topic, fitted)}},
		JSON:         true,
	}
	return call(c, ctx, "analyze", topic, req, parseScorecard)
}

// promptReserveTokens covers the analysis instructions and message framing.
const promptReserveTokens = 1_024

// transcriptBudget is the token estimate a transcript may use in one
// analysis request. Zero means unknown and disables trimming.
func (c *Client) transcriptBudget() int {
	caps := c.llm.Capabilities()
	if caps.ContextWindow <= 0 {
		return 0
	}
	return max(caps.ContextWindow-caps.MaxOutputTokens-promptReserveTokens, 1)
}

// omittedMarker replaces the lines dropped by fitTranscript.
const omittedMarker = "[earlier conversation omitted]"

// fitTranscript drops whole lines from the start of transcript until its
// estimate is within maxTokens, and reports how many were dropped. The last
// line is always kept.
func fitTranscript(transcript string, maxTokens int) (string, int) {
	if maxTokens <= 0 || estimateTokens(transcript) <= maxTokens {
		return transcript, 0
	}
	lines := strings.Split(transcript, "\n")
	total := estimateTokens(transcript)
	dropped := 0
	for dropped < len(lines)-1 && total > maxTokens {
		total -= estimateTokens(lines[dropped])
		dropped++
	}
	if dropped == 0 {
		return transcript, 0
	}
	return omittedMarker + "\n" + strings.Join(lines[dropped:], "\n"), dropped
}

// estimateTokens approximates a token count at four characters per token.
func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// call runs one dialogue operation under the retry policy. parse turns the
// reply text into the result; its errors are returned as-is and decide
// retryability themselves.
func call[R any](c *Client, ctx context.Context, op, topic string, req llm.CompletionRequest, parse func(string) (R, error)) (R, error) {
	ctx, span := observe.StartSpan(ctx, "dialogue."+op)
	defer span.End()
	span.SetAttributes(attribute.String("topic", topic))

	start := time.Now()
	log := observe.Logger(ctx).With("op", op)

	policy := resilience.RetryPolicy{
		MaxAttempts: c.cfg.MaxAttempts,
		Backoff:     c.cfg.Backoff,
		Clock:       c.cfg.Clock,
		Retryable:   retryable,
		OnRetry: func(attempt int, err error) {
			log.Warn("dialogue: attempt failed, retrying", "attempt", attempt, "backoff", c.cfg.Backoff, "err", err)
		},
	}

	result, attempts, err := resilience.Retry(ctx, policy, func(ctx context.Context, attempt int) (R, error) {
		var zero R
		text, err := c.complete(ctx, req)
		if err != nil {
			c.cfg.Metrics.RecordDialogueAttempt(ctx, op, "error")
			return zero, err
		}
		r, err := parse(text)
		if err != nil {
			c.cfg.Metrics.RecordDialogueAttempt(ctx, op, "invalid")
			return zero, err
		}
		c.cfg.Metrics.RecordDialogueAttempt(ctx, op, "ok")
		return r, nil
	})
	span.SetAttributes(attribute.Int("attempts", attempts))

	if err != nil {
		if errors.Is(err, resilience.ErrRetriesExhausted) {
			err = fmt.Errorf("%w: %w", ErrExhausted, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.cfg.Metrics.RecordDialogue(ctx, op, "error", time.Since(start))
		log.Warn("dialogue: call failed", "attempts", attempts, "err", err)
		var zero R
		return zero, err
	}

	c.cfg.Metrics.RecordDialogue(ctx, op, "ok", time.Since(start))
	log.Debug("dialogue: call succeeded", "attempts", attempts, "duration", time.Since(start))
	return result, nil
}

// complete performs a single attempt and classifies its failure.
func (c *Client) complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	resp, err := c.llm.Complete(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", ErrTransient, err)
	}
	if resp == nil {
		return "", ErrEmptyResponse
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
