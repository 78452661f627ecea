package llm

import (
	"context"
	"math/rand"
	"time"

	"github.com/tracewright/tracewright/pkg/tools"
	"github.com/tracewright/tracewright/pkg/types"
)

// Retry defaults. Exponential backoff with full jitter, capped per attempt.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 500 * time.Millisecond
	DefaultMaxDelay    = 8 * time.Second
)

// retryProvider decorates a Provider with classified retries. Transient and
// malformed-output failures are retried with backoff; fatal failures and
// context cancellation surface immediately.
type retryProvider struct {
	inner       Provider
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

// RetryOption configures the retry decorator.
type RetryOption func(*retryProvider)

// WithMaxAttempts sets the total attempt budget, including the first call.
func WithMaxAttempts(n int) RetryOption {
	return func(r *retryProvider) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// WithBackoff sets the base and cap of the exponential backoff.
func WithBackoff(base, max time.Duration) RetryOption {
	return func(r *retryProvider) {
		r.baseDelay = base
		r.maxDelay = max
	}
}

// WithRetry wraps a provider so transient failures are retried with
// exponential backoff. The wrapped provider reports the inner model.
func WithRetry(inner Provider, opts ...RetryOption) Provider {
	r := &retryProvider{
		inner:       inner,
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		maxDelay:    DefaultMaxDelay,
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *retryProvider) Propose(ctx context.Context, messages []*types.Message, vocabulary []tools.Spec) (*Proposal, error) {
	var proposal *Proposal
	err := r.do(ctx, func() error {
		var err error
		proposal, err = r.inner.Propose(ctx, messages, vocabulary)
		return err
	})
	return proposal, err
}

func (r *retryProvider) Complete(ctx context.Context, messages []*types.Message) (*types.Message, error) {
	var msg *types.Message
	err := r.do(ctx, func() error {
		var err error
		msg, err = r.inner.Complete(ctx, messages)
		return err
	})
	return msg, err
}

func (r *retryProvider) Model() string {
	return r.inner.Model()
}

func (r *retryProvider) do(ctx context.Context, attempt func() error) error {
	var lastErr error
	for i := 0; i < r.maxAttempts; i++ {
		if i > 0 {
			if err := r.sleep(ctx, r.backoff(i)); err != nil {
				return lastErr
			}
		}
		lastErr = attempt()
		if lastErr == nil {
			return nil
		}
		if !Retryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// backoff returns the delay before retry attempt i (1-based), with full
// jitter to avoid thundering herds against rate-limited APIs.
func (r *retryProvider) backoff(i int) time.Duration {
	delay := r.baseDelay << (i - 1)
	if delay > r.maxDelay || delay <= 0 {
		delay = r.maxDelay
	}
	return time.Duration(rand.Int63n(int64(delay)) + 1)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
