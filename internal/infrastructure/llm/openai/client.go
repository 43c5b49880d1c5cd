package openai

import (
	"context"
	"errors"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/time/rate"

	"github.com/Whisker2257/casa/internal/core/domain"
)

const (
	DefaultGenModel   = "gpt-4o"
	DefaultEmbedModel = "text-embedding-ada-002"

	// Rate-limit retry policy: doubling backoff, fixed ceiling.
	maxRateLimitRetries = 3
	baseBackoff         = time.Second
)

// Client owns the OpenAI SDK handle plus an optional client-side request
// throttle shared by the embedder and the generator.
type Client struct {
	api        openai.Client
	genModel   string
	embedModel string
	limiter    *rate.Limiter

	// sleep is swapped out in tests to observe backoff intervals.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(apiKey, genModel, embedModel string, requestsPerSecond float64) *Client {
	if genModel == "" {
		genModel = DefaultGenModel
	}
	if embedModel == "" {
		embedModel = DefaultEmbedModel
	}
	var limiter *rate.Limiter
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	return &Client{
		api:        openai.NewClient(option.WithAPIKey(apiKey)),
		genModel:   genModel,
		embedModel: embedModel,
		limiter:    limiter,
		sleep:      sleepContext,
	}
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// withRateLimitRetry runs call, retrying only on HTTP 429 with a doubling
// backoff (2s, 4s, 8s) up to the retry ceiling. Any other error
// propagates immediately; exhaustion surfaces domain.ErrRateLimited.
func (c *Client) withRateLimitRetry(ctx context.Context, operation string, call func(context.Context) error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := c.wait(ctx); err != nil {
			return err
		}

		lastErr = call(ctx)
		if lastErr == nil {
			return nil
		}
		if !isRateLimitError(lastErr) {
			return lastErr
		}
		if attempt >= maxRateLimitRetries {
			return domain.WrapError(domain.ErrRateLimited, operation, lastErr)
		}

		backoff := baseBackoff << uint(attempt+1)
		if err := c.sleep(ctx, backoff); err != nil {
			return err
		}
	}
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
