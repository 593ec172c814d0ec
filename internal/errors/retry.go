/**
 * Retry Logic with Backoff
 *
 * Retry policies for chunk uploads (bounded attempt count with a fixed or
 * growing delay) and a general exponential backoff with jitter.
 *
 * Author: TradeImport Team
 * Created: 2025-02-11
 */

package errors

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy defines a bounded retry budget.
type RetryPolicy struct {
	// MaxRetries is the number of attempts after the first one
	MaxRetries int

	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration

	// MaxDelay caps the delay between retries
	MaxDelay time.Duration

	// Multiplier grows the delay per retry; 1.0 keeps it fixed
	Multiplier float64

	// Jitter adds up to 25% randomness to each delay
	Jitter bool
}

// DefaultRetryPolicy is three retries one second apart.
var DefaultRetryPolicy = &RetryPolicy{
	MaxRetries:   3,
	InitialDelay: time.Second,
	MaxDelay:     30 * time.Second,
	Multiplier:   1.0,
}

// Attempts returns the total number of attempts the policy allows.
func (p *RetryPolicy) Attempts() int {
	if p == nil || p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// Delay returns the wait before retry number attempt (1-based).
func (p *RetryPolicy) Delay(attempt int) time.Duration {
	if p == nil {
		return 0
	}
	multiplier := p.Multiplier
	if multiplier <= 0 {
		multiplier = 1.0
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = p.InitialDelay
	}
	return calculateBackoff(attempt, p.InitialDelay, maxDelay, multiplier, p.Jitter)
}

// Wait sleeps for the given retry delay unless ctx ends first.
func (p *RetryPolicy) Wait(ctx context.Context, attempt int) error {
	delay := p.Delay(attempt)
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// BackoffConfig configures the exponential backoff behavior.
type BackoffConfig struct {
	// InitialInterval is the initial retry interval
	InitialInterval time.Duration

	// MaxInterval is the maximum retry interval
	MaxInterval time.Duration

	// Multiplier is the factor by which the retry interval increases
	Multiplier float64

	// MaxElapsedTime is the maximum total time for all retries
	MaxElapsedTime time.Duration

	// RandomizationFactor adds jitter to prevent thundering herd
	RandomizationFactor float64
}

// DefaultBackoffConfig provides defaults for exponential backoff.
var DefaultBackoffConfig = &BackoffConfig{
	InitialInterval:     500 * time.Millisecond,
	MaxInterval:         30 * time.Second,
	Multiplier:          2.0,
	MaxElapsedTime:      5 * time.Minute,
	RandomizationFactor: 0.5,
}

// ExponentialBackoff implements exponential backoff with jitter.
type ExponentialBackoff struct {
	startTime       time.Time
	config          *BackoffConfig
	rand            *rand.Rand
	currentInterval time.Duration
}

// NewExponentialBackoff creates a new exponential backoff instance.
func NewExponentialBackoff(config *BackoffConfig) *ExponentialBackoff {
	if config == nil {
		config = DefaultBackoffConfig
	}

	return &ExponentialBackoff{
		config:          config,
		currentInterval: config.InitialInterval,
		startTime:       time.Now(),
		rand:            rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NextBackOff returns the next backoff duration, or -1 once the elapsed
// budget is spent.
func (eb *ExponentialBackoff) NextBackOff() time.Duration {
	if eb.config.MaxElapsedTime > 0 && time.Since(eb.startTime) >= eb.config.MaxElapsedTime {
		return -1
	}

	interval := eb.jittered()

	eb.currentInterval = time.Duration(float64(eb.currentInterval) * eb.config.Multiplier)
	if eb.currentInterval > eb.config.MaxInterval {
		eb.currentInterval = eb.config.MaxInterval
	}
	return interval
}

func (eb *ExponentialBackoff) jittered() time.Duration {
	if eb.config.RandomizationFactor == 0 {
		return eb.currentInterval
	}

	delta := eb.config.RandomizationFactor * float64(eb.currentInterval)
	minInterval := float64(eb.currentInterval) - delta
	maxInterval := float64(eb.currentInterval) + delta

	return time.Duration(minInterval + (eb.rand.Float64() * (maxInterval - minInterval)))
}

// calculateBackoff is a utility function for simple backoff calculation.
func calculateBackoff(
	attempt int,
	initialDelay time.Duration,
	maxDelay time.Duration,
	multiplier float64,
	jitter bool,
) time.Duration {

	if attempt <= 1 {
		return initialDelay
	}

	backoff := float64(initialDelay) * math.Pow(multiplier, float64(attempt-1))
	if backoff > float64(maxDelay) {
		backoff = float64(maxDelay)
	}

	if jitter {
		jitterAmount := backoff * 0.25
		backoff += (rand.Float64()*2 - 1) * jitterAmount
	}

	return time.Duration(backoff)
}

// RetryOperation executes an operation with exponential backoff retry.
func RetryOperation(
	ctx context.Context,
	operation func() error,
	config *BackoffConfig,
	shouldRetry func(error) bool,
) error {

	backoff := NewExponentialBackoff(config)

	for {
		err := operation()
		if err == nil {
			return nil
		}

		if !shouldRetry(err) {
			return err
		}

		interval := backoff.NextBackOff()
		if interval < 0 {
			return err
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// RetryWithBackoff is a simplified retry function with default backoff.
func RetryWithBackoff(
	ctx context.Context,
	maxAttempts int,
	operation func() error,
) error {

	config := &BackoffConfig{
		InitialInterval:     200 * time.Millisecond,
		MaxInterval:         5 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}

	attempts := 0
	shouldRetry := func(err error) bool {
		attempts++
		return attempts < maxAttempts && IsTemporary(err)
	}

	return RetryOperation(ctx, operation, config, shouldRetry)
}
