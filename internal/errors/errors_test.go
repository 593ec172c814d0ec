/**
 * Error Handling System Tests
 *
 * Unit tests for error types and retry logic.
 *
 * Author: TradeImport Team
 * Created: 2025-02-11
 */

package errors

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorTypes(t *testing.T) {
	tests := []struct {
		name      string
		errorType ErrorType
		retryable bool
		stringRep string
	}{
		{"Validation", ErrorTypeValidation, false, "Validation"},
		{"Parse", ErrorTypeParse, false, "Parse"},
		{"Network", ErrorTypeNetwork, true, "Network"},
		{"Server", ErrorTypeServer, true, "Server"},
		{"Storage", ErrorTypeStorage, false, "Storage"},
		{"Configuration", ErrorTypeConfiguration, false, "Configuration"},
		{"Context", ErrorTypeContext, false, "Context"},
		{"ReloadLoss", ErrorTypeReloadLoss, false, "ReloadLoss"},
		{"Unknown", ErrorTypeUnknown, false, "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, tt.errorType.IsRetryable())
			assert.Equal(t, tt.stringRep, tt.errorType.String())
		})
	}
}

func TestError(t *testing.T) {
	baseErr := fmt.Errorf("base error")

	t.Run("NewError", func(t *testing.T) {
		err := New(ErrorTypeNetwork, "upload_chunk", "clients.csv", baseErr)

		assert.Equal(t, ErrorTypeNetwork, err.Type)
		assert.Equal(t, "upload_chunk", err.Op)
		assert.Equal(t, "clients.csv", err.Path)
		assert.Equal(t, baseErr, err.Err)
		assert.NotZero(t, err.Timestamp)
	})

	t.Run("ErrorMethods", func(t *testing.T) {
		err := New(ErrorTypeNetwork, "upload_chunk", "clients.csv", baseErr)

		assert.Equal(t, "Network: upload_chunk [clients.csv] base error", err.Error())
		assert.Equal(t, baseErr, err.Unwrap())
		assert.True(t, err.IsRetryable())
		assert.Equal(t, "base error", Message(err))
	})

	t.Run("WithCode", func(t *testing.T) {
		err := New(ErrorTypeServer, "upload_chunk", "", baseErr).WithCode(503)
		assert.Equal(t, 503, err.Code)
		assert.Equal(t, 503, StatusCode(Wrap(err, "chunk 4")))
		assert.Zero(t, StatusCode(baseErr))
	})

	t.Run("NonRetryable", func(t *testing.T) {
		assert.False(t, New(ErrorTypeParse, "op", "", baseErr).IsRetryable())
		assert.False(t, New(ErrorTypeReloadLoss, "op", "", baseErr).IsRetryable())
		assert.False(t, IsTemporary(New(ErrorTypeConfiguration, "post", "", baseErr).WithCode(400)))
	})
}

func TestGetErrorType(t *testing.T) {
	assert.Equal(t, ErrorTypeUnknown, GetErrorType(nil))
	assert.Equal(t, ErrorTypeContext, GetErrorType(context.Canceled))
	assert.Equal(t, ErrorTypeContext, GetErrorType(Wrap(context.DeadlineExceeded, "waiting")))
	assert.Equal(t, ErrorTypeParse, GetErrorType(Wrap(New(ErrorTypeParse, "parse", "", baseErrFor("bad quote")), "file")))

	var netErr net.Error = &net.DNSError{Err: "no such host", Name: "backend", IsTimeout: true}
	assert.Equal(t, ErrorTypeNetwork, GetErrorType(netErr))
	assert.True(t, IsTemporary(netErr))
	assert.False(t, IsTemporary(fmt.Errorf("plain")))
}

func TestRetryPolicy(t *testing.T) {
	t.Run("Attempts", func(t *testing.T) {
		assert.Equal(t, 4, (&RetryPolicy{MaxRetries: 3}).Attempts())
		assert.Equal(t, 1, (&RetryPolicy{MaxRetries: 0}).Attempts())
		var nilPolicy *RetryPolicy
		assert.Equal(t, 1, nilPolicy.Attempts())
	})

	t.Run("FixedDelay", func(t *testing.T) {
		p := &RetryPolicy{MaxRetries: 3, InitialDelay: 100 * time.Millisecond, Multiplier: 1.0}
		for attempt := 1; attempt <= 3; attempt++ {
			assert.Equal(t, 100*time.Millisecond, p.Delay(attempt))
		}
	})

	t.Run("GrowingDelayCapped", func(t *testing.T) {
		p := &RetryPolicy{
			MaxRetries:   5,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     300 * time.Millisecond,
			Multiplier:   2.0,
		}
		assert.Equal(t, 100*time.Millisecond, p.Delay(1))
		assert.Equal(t, 200*time.Millisecond, p.Delay(2))
		assert.Equal(t, 300*time.Millisecond, p.Delay(3))
		assert.Equal(t, 300*time.Millisecond, p.Delay(4))
	})

	t.Run("WaitHonoursContext", func(t *testing.T) {
		p := &RetryPolicy{MaxRetries: 1, InitialDelay: time.Hour}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, p.Wait(ctx, 1), context.Canceled)
	})
}

func TestExponentialBackoff(t *testing.T) {
	config := &BackoffConfig{
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         1 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0,
	}

	backoff := NewExponentialBackoff(config)
	expected := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		1 * time.Second,
		1 * time.Second,
	}

	for i, want := range expected {
		assert.Equal(t, want, backoff.NextBackOff(), "interval %d", i)
	}

	t.Run("WithJitter", func(t *testing.T) {
		jittered := NewExponentialBackoff(&BackoffConfig{
			InitialInterval:     100 * time.Millisecond,
			MaxInterval:         time.Second,
			Multiplier:          2.0,
			RandomizationFactor: 0.5,
		})
		interval := jittered.NextBackOff()
		assert.GreaterOrEqual(t, interval, 50*time.Millisecond)
		assert.LessOrEqual(t, interval, 150*time.Millisecond)
	})
}

func TestRetryOperation(t *testing.T) {
	ctx := context.Background()
	config := &BackoffConfig{
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2.0,
	}

	t.Run("SucceedsAfterRetries", func(t *testing.T) {
		calls := 0
		err := RetryOperation(ctx, func() error {
			calls++
			if calls < 3 {
				return New(ErrorTypeNetwork, "op", "", fmt.Errorf("reset"))
			}
			return nil
		}, config, IsTemporary)

		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("StopsOnPermanentError", func(t *testing.T) {
		calls := 0
		err := RetryOperation(ctx, func() error {
			calls++
			return New(ErrorTypeValidation, "op", "", fmt.Errorf("bad"))
		}, config, IsTemporary)

		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("ContextCancelled", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		err := RetryOperation(cancelled, func() error {
			return New(ErrorTypeNetwork, "op", "", fmt.Errorf("reset"))
		}, &BackoffConfig{InitialInterval: time.Hour, MaxInterval: time.Hour, Multiplier: 1}, IsTemporary)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("RetryWithBackoffBounded", func(t *testing.T) {
		calls := 0
		err := RetryWithBackoff(ctx, 2, func() error {
			calls++
			return New(ErrorTypeServer, "op", "", fmt.Errorf("503"))
		})
		require.Error(t, err)
		assert.Equal(t, 2, calls)
	})
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "ignored"))
	assert.Nil(t, Wrapf(nil, "ignored %d", 1))

	err := Wrapf(ErrCircuitOpen, "file %s", "clients.csv")
	assert.True(t, Is(err, ErrCircuitOpen))
	assert.Equal(t, "file clients.csv: stopped due to repeated consecutive failures", err.Error())

	typed := WrapTyped(ErrorTypeStorage, "save_queue", fmt.Errorf("disk full"))
	var target *Error
	require.True(t, AsError(Wrap(typed, "persist"), &target))
	assert.Equal(t, ErrorTypeStorage, target.Type)
}

func baseErrFor(msg string) error {
	return fmt.Errorf("%s", msg)
}
