package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"

	"github.com/jordigilh/devctx-mcp/internal/config"
	"github.com/jordigilh/devctx-mcp/internal/errors"
)

// AnthropicCapability is the concrete, non-null Capability implementation
// (SPEC_FULL.md DOMAIN STACK), wrapped with a circuit breaker so a
// flapping model backend opens the breaker instead of hanging every
// dispatch, and bounded retry/backoff around each completion call.
type AnthropicCapability struct {
	client  anthropic.Client
	model   string
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker[string]
	log     *logrus.Entry
}

// NewAnthropic builds a Capability from an AIConfig. Its circuit-breaker
// settings mirror the notification delivery breaker's shape elsewhere in
// this codebase's lineage: trip after three consecutive failures, recover
// after a cooldown window.
func NewAnthropic(cfg config.AIConfig, log *logrus.Logger) *AnthropicCapability {
	entry := log.WithField("component", "ai.anthropic")
	breaker := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "ai-completion",
		MaxRequests: 2,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			entry.WithFields(logrus.Fields{"from": from, "to": to}).Warn("ai circuit breaker state change")
		},
	})

	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &AnthropicCapability{
		client:  anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:   cfg.Model,
		timeout: timeout,
		breaker: breaker,
		log:     entry,
	}
}

// Complete sends prompt to the configured model, retrying transient
// failures with bounded exponential backoff inside the circuit breaker.
func (a *AnthropicCapability) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	op := func() (string, error) {
		return a.breaker.Execute(func() (string, error) {
			resp, apiErr := a.client.Messages.New(ctx, anthropic.MessageNewParams{
				Model:     anthropic.Model(a.model),
				MaxTokens: int64(maxTokens),
				Messages: []anthropic.MessageParam{
					anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
				},
			})
			if apiErr != nil {
				return "", apiErr
			}
			var text string
			for _, block := range resp.Content {
				if block.Type == "text" {
					text += block.Text
				}
			}
			return text, nil
		})
	}

	text, err := backoff.Retry(ctx, op,
		backoff.WithMaxTries(3),
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
	)
	if err != nil {
		a.log.WithError(err).Error("ai completion failed")
		return "", errors.Wrap(err, errors.ErrorTypeUnavailable, fmt.Sprintf("ai completion failed (model=%s)", a.model))
	}
	return text, nil
}
