package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/testcase-agent/internal/util"
	"github.com/OFFIS-RIT/testcase-agent/pkg/ratelimit"
)

const (
	DefaultMaxRetries  = 2
	DefaultBackoffBase = 600 * time.Millisecond
	DefaultCallTimeout = 180 * time.Second
)

// RetryError reports a model call that failed on every attempt.
type RetryError = util.RetryError

// ErrEmptyResponse is returned when the provider answered without content.
var ErrEmptyResponse = errors.New("model returned an empty response")

// Caller invokes a ChatClient through the shared limiter, retrying failed
// attempts with exponential backoff. It knows nothing about batches or jobs.
type Caller struct {
	client      ChatClient
	limiter     *ratelimit.Limiter
	maxRetries  int
	backoffBase time.Duration
	timeout     time.Duration
}

// NewCallerParams configures a Caller.
//
// A nil Limiter gives the caller a private single-slot limiter. MaxRetries is
// the number of retries after the first attempt; a negative value disables
// retrying. Timeout bounds each attempt.
type NewCallerParams struct {
	Client      ChatClient
	Limiter     *ratelimit.Limiter
	MaxRetries  int
	BackoffBase time.Duration
	Timeout     time.Duration
}

func NewCaller(params NewCallerParams) *Caller {
	c := &Caller{
		client:      params.Client,
		limiter:     params.Limiter,
		maxRetries:  params.MaxRetries,
		backoffBase: params.BackoffBase,
		timeout:     params.Timeout,
	}
	if c.limiter == nil {
		c.limiter = ratelimit.NewLimiter(ratelimit.NewLimiterParams{MaxConcurrent: 1})
	}
	if c.maxRetries < 0 {
		c.maxRetries = 0
	}
	if c.backoffBase < 0 {
		c.backoffBase = 0
	} else if c.backoffBase == 0 {
		c.backoffBase = DefaultBackoffBase
	}
	if c.timeout <= 0 {
		c.timeout = DefaultCallTimeout
	}
	return c
}

// Call sends messages, retrying up to the configured budget. The limiter slot
// is held only while an attempt is in flight, never across a backoff wait.
// When every attempt fails the error wraps a *RetryError.
func (c *Caller) Call(ctx context.Context, messages []ChatMessage, opts ...GenerateOption) (string, error) {
	out, err := util.RetryWithBackoff(ctx, c.maxRetries, c.backoffBase, func(ctx context.Context) (string, error) {
		return c.attempt(ctx, messages, opts...)
	})
	if err != nil {
		return "", fmt.Errorf("model call: %w", err)
	}
	return out, nil
}

// CallOnce makes a single attempt through the limiter with no retries.
func (c *Caller) CallOnce(ctx context.Context, messages []ChatMessage, opts ...GenerateOption) (string, error) {
	out, err := c.attempt(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("model call: %w", err)
	}
	return out, nil
}

// Client returns the wrapped client.
func (c *Caller) Client() ChatClient {
	return c.client
}

func (c *Caller) attempt(ctx context.Context, messages []ChatMessage, opts ...GenerateOption) (string, error) {
	release, err := c.limiter.Acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.client.GenerateChat(ctx, messages, opts...)
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}
