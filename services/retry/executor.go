// Package retry runs an operation repeatedly with a fixed or exponentially
// growing delay between attempts.
package retry

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Policy controls how many times an operation is retried and how long to wait in between
type Policy struct {
	// MaxRetries is the number of retries after the first attempt
	MaxRetries int `json:"maxRetries"`

	// BaseDelay is the wait after the first failed attempt
	BaseDelay time.Duration `json:"baseDelay"`

	// ExponentialBackoff doubles the delay after every failed attempt
	ExponentialBackoff bool `json:"exponentialBackoff"`
}

// DefaultPolicy returns 3 retries starting at one second with exponential backoff
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:         3,
		BaseDelay:          time.Second,
		ExponentialBackoff: true,
	}
}

// Attempts returns the total number of invocations the policy allows
func (p Policy) Attempts() int {
	return p.normalized().MaxRetries + 1
}

// Delays returns the sequence of waits between attempts when every attempt fails
func (p Policy) Delays() []time.Duration {
	p = p.normalized()
	delays := make([]time.Duration, 0, p.MaxRetries)
	delay := p.BaseDelay
	for i := 0; i < p.MaxRetries; i++ {
		delays = append(delays, delay)
		if p.ExponentialBackoff {
			delay *= 2
		}
	}
	return delays
}

func (p Policy) normalized() Policy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	return p
}

// Sleeper waits for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// Observer is notified after every attempt; err is nil on success
type Observer func(attempt int, err error)

// Executor applies a Policy to operations. It keeps no per-call state and is
// safe for concurrent use.
type Executor struct {
	policy    Policy
	name      string
	sleep     Sleeper
	retryable func(error) bool
	observer  Observer
	logger    *zap.Logger
}

// Option configures an Executor
type Option func(*Executor)

// WithSleeper replaces the real timer, mostly for tests
func WithSleeper(s Sleeper) Option {
	return func(e *Executor) {
		e.sleep = s
	}
}

// WithRetryable stops retrying as soon as fn reports an error as permanent
func WithRetryable(fn func(error) bool) Option {
	return func(e *Executor) {
		e.retryable = fn
	}
}

// WithObserver registers a per-attempt callback
func WithObserver(fn Observer) Option {
	return func(e *Executor) {
		e.observer = fn
	}
}

// WithLogger sets the logger used for failed attempts
func WithLogger(logger *zap.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithName labels log entries, typically with the provider name
func WithName(name string) Option {
	return func(e *Executor) {
		e.name = name
	}
}

// New creates an executor for policy
func New(policy Policy, opts ...Option) *Executor {
	e := &Executor{
		policy: policy.normalized(),
		sleep:  sleepContext,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the normalized policy
func (e *Executor) Policy() Policy {
	return e.policy
}

// Do invokes op until it succeeds or the policy is exhausted, and returns the
// error of the last attempt. There is no wait before the first attempt nor
// after the last one. If ctx ends while waiting, the last error is returned
// without further attempts.
func (e *Executor) Do(ctx context.Context, op func(ctx context.Context) error) error {
	delay := e.policy.BaseDelay
	maxAttempts := e.policy.MaxRetries + 1

	for attempt := 0; ; attempt++ {
		err := op(ctx)
		if e.observer != nil {
			e.observer(attempt+1, err)
		}
		if err == nil {
			return nil
		}

		if attempt == e.policy.MaxRetries {
			return err
		}
		if e.retryable != nil && !e.retryable(err) {
			e.logger.Debug("attempt failed with permanent error",
				zap.String("operation", e.name),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			return err
		}

		e.logger.Warn("attempt failed, retrying",
			zap.String("operation", e.name),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", maxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err))

		if sleepErr := e.sleep(ctx, delay); sleepErr != nil {
			return err
		}
		if e.policy.ExponentialBackoff {
			delay *= 2
		}
	}
}

// Run is Do for operations producing a value
func Run[T any](ctx context.Context, e *Executor, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := e.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
