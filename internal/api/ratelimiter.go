package api

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/vishalSecmark/tradewebx-sub002/internal/errors"
)

/**
 * Token Bucket Pacing for the Import Endpoint
 *
 * Features:
 * - Chunk POSTs and control calls (finalize, catalogue) paced separately
 * - Context-aware blocking
 * - Halving on repeated HTTP 429, stepwise recovery on success
 * - Wait counters for the end-of-run summary
 *
 * Author: TradeImport Team
 * Updated: 2025-02-12
 */

const (
	defaultUploadRate  = 5
	defaultControlRate = 2
)

// RateLimiterConfig holds pacing configuration. A zero RateLimit leaves
// chunk uploads unpaced.
type RateLimiterConfig struct {
	RateLimit        int
	BurstSize        int
	ControlRateLimit int
}

// RateLimiter paces requests to the backend.
type RateLimiter struct {
	uploads  *rate.Limiter
	control  *rate.Limiter
	since    time.Time
	total    atomic.Int64
	throttle atomic.Int64
}

// NewRateLimiter creates a limiter; nil selects five uploads per second.
func NewRateLimiter(config *RateLimiterConfig) *RateLimiter {
	if config == nil {
		config = &RateLimiterConfig{RateLimit: defaultUploadRate, BurstSize: defaultUploadRate}
	}

	limit := rate.Limit(config.RateLimit)
	if config.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := max(config.BurstSize, 1)
	control := config.ControlRateLimit
	if control < 1 {
		control = defaultControlRate
	}

	return &RateLimiter{
		uploads: rate.NewLimiter(limit, burst),
		control: rate.NewLimiter(rate.Limit(control), control),
		since:   time.Now(),
	}
}

// Wait blocks until a chunk upload can proceed.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return rl.wait(ctx, rl.uploads, "upload_wait")
}

// WaitForControl blocks until a finalize or catalogue call can proceed.
func (rl *RateLimiter) WaitForControl(ctx context.Context) error {
	return rl.wait(ctx, rl.control, "control_wait")
}

func (rl *RateLimiter) wait(ctx context.Context, limiter *rate.Limiter, op string) error {
	rl.total.Add(1)

	if err := ctx.Err(); err != nil {
		return errors.New(errors.ErrorTypeContext, op, "", err)
	}
	if limiter.Allow() {
		return nil
	}
	rl.throttle.Add(1)

	if err := limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return errors.New(errors.ErrorTypeContext, op, "", ctx.Err())
		}
		return errors.New(errors.ErrorTypeConfiguration, op, "", err)
	}
	return nil
}

// SetRateLimit updates the chunk upload rate.
func (rl *RateLimiter) SetRateLimit(rateLimit int) {
	rl.uploads.SetLimit(rate.Limit(max(rateLimit, 1)))
}

// RateLimiterMetrics counts how often requests had to wait.
type RateLimiterMetrics struct {
	TotalRequests   int64
	BlockedRequests int64
	Duration        time.Duration
}

// BlockRate is the share of requests that waited, in percent.
func (m RateLimiterMetrics) BlockRate() float64 {
	if m.TotalRequests == 0 {
		return 0
	}
	return float64(m.BlockedRequests) / float64(m.TotalRequests) * 100
}

// GetMetrics returns the counters since the limiter was created.
func (rl *RateLimiter) GetMetrics() RateLimiterMetrics {
	return RateLimiterMetrics{
		TotalRequests:   rl.total.Load(),
		BlockedRequests: rl.throttle.Load(),
		Duration:        time.Since(rl.since),
	}
}

// AdaptiveRateLimiter halves the upload rate after repeated 429 responses
// and creeps back up on sustained success.
type AdaptiveRateLimiter struct {
	*RateLimiter

	mu                sync.Mutex
	baseRateLimit     int
	currentRateLimit  int
	consecutiveErrors int
	lastAdjustment    time.Time
	recoveryInterval  time.Duration
}

// NewAdaptiveRateLimiter creates a rate limiter that adapts to throttling.
func NewAdaptiveRateLimiter(config *RateLimiterConfig) *AdaptiveRateLimiter {
	if config == nil {
		config = &RateLimiterConfig{RateLimit: defaultUploadRate, BurstSize: defaultUploadRate}
	}

	return &AdaptiveRateLimiter{
		RateLimiter:      NewRateLimiter(config),
		baseRateLimit:    config.RateLimit,
		currentRateLimit: config.RateLimit,
		recoveryInterval: 30 * time.Second,
		lastAdjustment:   time.Now(),
	}
}

// RecordSuccess records an accepted request.
func (arl *AdaptiveRateLimiter) RecordSuccess() {
	arl.mu.Lock()
	defer arl.mu.Unlock()

	arl.consecutiveErrors = 0
	if arl.currentRateLimit >= arl.baseRateLimit || time.Since(arl.lastAdjustment) <= arl.recoveryInterval {
		return
	}

	arl.currentRateLimit = min(arl.currentRateLimit+1, arl.baseRateLimit)
	arl.SetRateLimit(arl.currentRateLimit)
	arl.lastAdjustment = time.Now()
}

// RecordRateLimitError records an HTTP 429. Unpaced uploads stay unpaced.
func (arl *AdaptiveRateLimiter) RecordRateLimitError() {
	arl.mu.Lock()
	defer arl.mu.Unlock()

	arl.consecutiveErrors++
	if arl.consecutiveErrors < 2 || arl.currentRateLimit <= 0 {
		return
	}

	arl.currentRateLimit = max(arl.currentRateLimit/2, 1)
	arl.SetRateLimit(arl.currentRateLimit)
	arl.lastAdjustment = time.Now()
	arl.consecutiveErrors = 0
}

// GetCurrentRateLimit returns the current upload rate, 0 when unpaced.
func (arl *AdaptiveRateLimiter) GetCurrentRateLimit() int {
	arl.mu.Lock()
	defer arl.mu.Unlock()
	return arl.currentRateLimit
}
