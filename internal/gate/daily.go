package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wallet-back/internal/store"
)

// dailyGateKey is the durable entry holding the UTC calendar date of the
// last successful auto-sync trigger.
const dailyGateKey = "lastAutoWalletSync"

// DateFormat is the calendar-date layout used for gate records
const DateFormat = "2006-01-02"

// DailyTriggerGate decides whether the "first login today" auto-sync should
// fire. The gate fails open: a missed daily sync is low-cost, while a false
// negative would block syncing for a whole day.
type DailyTriggerGate struct {
	store  store.DurableStore
	userID string
	logger *logrus.Entry
}

// NewDailyTriggerGate creates a daily gate backed by the durable store
func NewDailyTriggerGate(st store.DurableStore, userID string, logger *logrus.Logger) *DailyTriggerGate {
	return &DailyTriggerGate{
		store:  st,
		userID: userID,
		logger: logger.WithField("component", "daily-gate"),
	}
}

func (dg *DailyTriggerGate) key() string {
	if dg.userID == "" {
		return dailyGateKey
	}
	return dg.userID + ":" + dailyGateKey
}

// Today returns the current UTC calendar date string
func Today(now time.Time) string {
	return now.UTC().Format(DateFormat)
}

// IsFirstTriggerToday reports whether no successful trigger has been
// recorded for today's date
func (dg *DailyTriggerGate) IsFirstTriggerToday(ctx context.Context, today string) bool {
	val, ok, err := dg.store.GetString(ctx, dg.key())
	if err != nil {
		dg.logger.WithError(err).Warn("Failed to read daily gate record, treating as first today")
		return true
	}
	if !ok {
		return true
	}
	return val != today
}

// MarkTriggered records today's date. Called only after the external
// trigger call succeeds; a failed trigger leaves the gate open so a later
// qualifying attempt can retry.
func (dg *DailyTriggerGate) MarkTriggered(ctx context.Context, today string) error {
	if err := dg.store.SetString(ctx, dg.key(), today); err != nil {
		return fmt.Errorf("failed to mark daily gate: %w", err)
	}
	return nil
}
