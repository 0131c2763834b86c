// Package webhookclient defines the external WebhookClient contract (C9)
// and a Slack-backed implementation, guarded by a circuit breaker and a
// dispatch-wide rate limiter.
package webhookclient

import (
	"context"
	stderrors "errors"

	"github.com/slack-go/slack"
	"golang.org/x/time/rate"

	"github.com/franksunye/fsoa-agent/internal/errs"
)

// Result is the tagged dispatch outcome — never an exception crossing a
// component boundary, per Design Notes.
type Result struct {
	OK         bool
	HTTPStatus int
	Err        error
}

// Client is the consumed WebhookClient contract.
type Client interface {
	Post(ctx context.Context, url, text string, mentions []string) Result
}

// NoopClient is injected for dry runs: it records what would have been
// sent without making any network call, so the evaluation/task-creation
// paths are identical to a real run (Design Notes).
type NoopClient struct {
	Sent []NoopSend
}

type NoopSend struct {
	URL, Text string
	Mentions  []string
}

func (c *NoopClient) Post(ctx context.Context, url, text string, mentions []string) Result {
	c.Sent = append(c.Sent, NoopSend{URL: url, Text: text, Mentions: mentions})
	return Result{OK: true}
}

// SlackClient posts formatted messages via slack.PostWebhookContext,
// pacing calls with a shared token bucket and guarding against sustained
// failure with a CircuitBreaker. The token bucket limits calls per second;
// it does not cap how many calls are in flight at once.
type SlackClient struct {
	limiter *rate.Limiter
	breaker *CircuitBreaker
}

// NewSlackClient builds a client whose limiter admits maxConcurrent calls
// per second with a burst of maxConcurrent (4 when maxConcurrent <= 0).
func NewSlackClient(maxConcurrent int) *SlackClient {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &SlackClient{
		limiter: rate.NewLimiter(rate.Limit(maxConcurrent), maxConcurrent),
		breaker: NewCircuitBreaker(),
	}
}

func (c *SlackClient) Post(ctx context.Context, url, text string, mentions []string) Result {
	if url == "" {
		return Result{OK: false, Err: errs.Wrap(errs.WebhookPermanent, "group has no webhook_url configured", errs.New(errs.NoWebhook, "empty webhook url"))}
	}
	if !c.breaker.Allow() {
		return Result{OK: false, Err: errs.New(errs.WebhookTransient, "circuit open")}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return Result{OK: false, Err: err}
	}

	body := renderWithMentions(text, mentions)
	err := slack.PostWebhookContext(ctx, url, &slack.WebhookMessage{Text: body})
	if err != nil {
		var webhookErr *slack.WebhookError
		if stderrors.As(err, &webhookErr) && webhookErr.Code >= 400 && webhookErr.Code < 500 {
			// 4xx means the request itself was rejected (bad payload, bad
			// URL, revoked webhook) — retrying will not help, so this is
			// classified permanent per §7 and the task is failed outright.
			c.breaker.RecordFailure()
			return Result{OK: false, HTTPStatus: webhookErr.Code, Err: errs.Wrap(errs.WebhookPermanent, "slack webhook rejected", err)}
		}
		c.breaker.RecordFailure()
		return Result{OK: false, Err: errs.Wrap(errs.WebhookTransient, "slack webhook post failed", err)}
	}
	c.breaker.RecordSuccess()
	return Result{OK: true, HTTPStatus: 200}
}

func renderWithMentions(text string, mentions []string) string {
	if len(mentions) == 0 {
		return text
	}
	out := text
	for _, m := range mentions {
		out += " @" + m
	}
	return out
}
