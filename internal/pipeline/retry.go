package pipeline

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryConfig bounds retries of transient stage failures.
type RetryConfig struct {
	MaxRetries int           // 0 = single attempt
	BaseDelay  time.Duration // first backoff
	MaxDelay   time.Duration // backoff cap
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 2,
		BaseDelay:  2 * time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// retryNotify is called before each backoff sleep.
type retryNotify func(attempt int, err error, delay time.Duration)

// executeWithRetry runs fn until it succeeds, fails with a non-transient
// error, retries run out or ctx ends. It returns the attempts made.
func executeWithRetry(ctx context.Context, cfg RetryConfig, notify retryNotify, fn func(context.Context) (string, error)) (string, int, error) {
	var (
		out string
		err error
	)
	for attempt := 0; ; attempt++ {
		out, err = fn(ctx)
		if err == nil {
			return out, attempt + 1, nil
		}
		if attempt >= cfg.MaxRetries || !IsTransient(err) || ctx.Err() != nil {
			return "", attempt + 1, err
		}

		delay := backoffWithJitter(cfg.BaseDelay, cfg.MaxDelay, attempt)
		if notify != nil {
			notify(attempt+1, err, delay)
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", attempt + 1, err
		case <-timer.C:
		}
	}
}

// backoffWithJitter computes delay = min(base * 2^attempt, max) ± 25%.
func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base << uint(attempt)
	if delay > max || delay <= 0 {
		delay = max
	}
	quarter := delay / 4
	if quarter > 0 {
		delay += time.Duration(rand.Int64N(int64(quarter*2))) - quarter
	}
	return delay
}
