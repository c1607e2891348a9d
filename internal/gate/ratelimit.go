package gate

import (
	"context"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wallet-back/internal/store"
)

// rateLimitKey is the durable entry holding the epoch-millis of the most
// recent trigger attempt (not just successes).
const rateLimitKey = "lastAutoSyncTrigger"

// DefaultCooldown is the minimum interval between trigger attempts
const DefaultCooldown = 30 * time.Second

// RateLimiter enforces a cooldown window between trigger attempts,
// independent of the daily gate. It protects the bulk-sync endpoint from
// rapid re-entrant calls.
type RateLimiter struct {
	store    store.DurableStore
	cooldown time.Duration
	userID   string
	logger   *logrus.Entry
}

// NewRateLimiter creates a rate limiter backed by the durable store
func NewRateLimiter(st store.DurableStore, cooldown time.Duration, userID string, logger *logrus.Logger) *RateLimiter {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &RateLimiter{
		store:    st,
		cooldown: cooldown,
		userID:   userID,
		logger:   logger.WithField("component", "rate-limiter"),
	}
}

func (rl *RateLimiter) key() string {
	if rl.userID == "" {
		return rateLimitKey
	}
	return rl.userID + ":" + rateLimitKey
}

// ShouldThrottle reports whether a trigger attempt must be skipped because
// the previous attempt was less than the cooldown ago. A missing or corrupt
// record never throttles.
func (rl *RateLimiter) ShouldThrottle(ctx context.Context, now time.Time) bool {
	val, ok, err := rl.store.GetString(ctx, rl.key())
	if err != nil {
		rl.logger.WithError(err).Warn("Failed to read rate limit record, allowing attempt")
		return false
	}
	if !ok {
		return false
	}

	lastMillis, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		rl.logger.WithField("value", val).Warn("Corrupt rate limit record, allowing attempt")
		return false
	}

	// A future-dated record (clock rollback) yields a negative elapsed
	// and throttles until the clock catches up
	elapsed := now.UnixMilli() - lastMillis
	return elapsed < rl.cooldown.Milliseconds()
}

// RecordAttempt writes the attempt timestamp. Callers must invoke this at
// the moment of attempting a trigger, before the outcome is known, so a
// racing duplicate observes the cooldown while the first call is in flight.
func (rl *RateLimiter) RecordAttempt(ctx context.Context, now time.Time) {
	millis := strconv.FormatInt(now.UnixMilli(), 10)
	if err := rl.store.SetString(ctx, rl.key(), millis); err != nil {
		rl.logger.WithError(err).Warn("Failed to record trigger attempt")
	}
}
