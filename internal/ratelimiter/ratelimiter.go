package ratelimiter

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultInterval = time.Second
	maxResetAfter   = time.Minute

	remainingHeader  = "X-RateLimit-Remaining"
	resetAfterHeader = "X-RateLimit-Reset-After"
)

// RateLimiter paces sequential sends to the same target. It never retries;
// it only delays the next send.
type RateLimiter struct {
	interval     time.Duration
	lastSent     map[string]time.Time
	blockedUntil map[string]time.Time
	mu           sync.Mutex
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration) error
	log          *slog.Logger
}

func New(interval time.Duration, log *slog.Logger) *RateLimiter {
	return newRateLimiter(interval, time.Now, sleepWithContext, log)
}

func newRateLimiter(
	interval time.Duration,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
	log *slog.Logger,
) *RateLimiter {
	if interval < 0 {
		interval = defaultInterval
	}

	return &RateLimiter{
		interval:     interval,
		lastSent:     make(map[string]time.Time),
		blockedUntil: make(map[string]time.Time),
		now:          nowFn,
		sleep:        sleepFn,
		log:          log,
	}
}

// Wait blocks until the next send to target is allowed or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context, target string) error {
	if rl == nil {
		return nil
	}

	rl.mu.Lock()
	now := rl.now()
	delay := getDelay(rl.lastSent[target], rl.interval, now)
	if blocked := rl.blockedUntil[target].Sub(now); blocked > delay {
		delay = blocked
	}
	rl.mu.Unlock()

	if delay <= 0 {
		return ctx.Err()
	}

	rl.log.DebugContext(ctx, "Rate limiting delivery",
		"delay", delay,
		"interval", rl.interval)

	return rl.sleep(ctx, delay)
}

// Observe records a completed send and the channel's rate-limit headers.
func (rl *RateLimiter) Observe(target string, header http.Header) {
	if rl == nil {
		return
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.lastSent[target] = now

	if resetAfter, ok := exhaustedResetAfter(header); ok {
		rl.blockedUntil[target] = now.Add(resetAfter)
	}
}

func getDelay(lastSent time.Time, rate time.Duration, now time.Time) time.Duration {
	if lastSent.IsZero() {
		return 0
	}

	elapsed := now.Sub(lastSent)

	return max(rate-elapsed, 0)
}

// exhaustedResetAfter reports how long to hold off when the channel says the
// current bucket is empty.
func exhaustedResetAfter(header http.Header) (time.Duration, bool) {
	if header == nil {
		return 0, false
	}

	if strings.TrimSpace(header.Get(remainingHeader)) != "0" {
		return 0, false
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(header.Get(resetAfterHeader)), 64)
	if err != nil || seconds <= 0 {
		return 0, false
	}

	return min(time.Duration(seconds*float64(time.Second)), maxResetAfter), true
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
