package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"salonindex/internal/app"
	"salonindex/internal/config"
)

func TestRetryWithDelay_Success(t *testing.T) {
	calls := 0
	err := app.RetryWithDelay(context.Background(), "db", 1, time.Millisecond, func(ctx context.Context) error {
		calls++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryWithDelay_Retries(t *testing.T) {
	calls := 0
	err := app.RetryWithDelay(context.Background(), "db", 5, time.Millisecond, func(ctx context.Context) error {
		calls++
		if calls <= 2 {
			return errors.New("not ready")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryWithDelay_Fail(t *testing.T) {
	calls := 0
	err := app.RetryWithDelay(context.Background(), "redis", 3, time.Millisecond, func(ctx context.Context) error {
		calls++
		return errors.New("permanent error")
	})
	assert.EqualError(t, err, "permanent error")
	assert.Equal(t, 3, calls)
}

func TestRetryWithDelay_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := app.RetryWithDelay(ctx, "db", 10, time.Hour, func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("down")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestBootstrap_Resilience_DBDown(t *testing.T) {
	cfg := &config.Config{
		DBHost:                     "localhost",
		DBPort:                     54322, // Random port likely closed
		DBUser:                     "test",
		DBPass:                     "test",
		DBName:                     "test",
		BootstrapRetryAttempts:     1,
		BootstrapRetryDelaySeconds: 0,
	}

	start := time.Now()
	deps, err := app.Bootstrap(context.Background(), cfg)
	duration := time.Since(start)

	assert.Error(t, err)
	assert.Nil(t, deps)
	assert.Contains(t, err.Error(), "failed to ping db")
	assert.Less(t, duration, 2*time.Second)
}
