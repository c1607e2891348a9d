package coordinator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wallet-back/internal/database"
	"github.com/wallet-back/internal/election"
	"github.com/wallet-back/internal/gate"
	"github.com/wallet-back/internal/trigger"
	"github.com/wallet-back/pkg/models"
)

// Auditor records trigger attempts durably. Audit failures are logged, never
// surfaced; the audit trail is best-effort.
type Auditor interface {
	RecordTrigger(ctx context.Context, rec database.TriggerRecord) error
}

// Coordinator orchestrates the auto-sync decision: controller election,
// rate limiter, daily gate, and the external bulk-sync call. Many instances
// may be mounted in one process; only the elected controller causes side
// effects, the rest participate read-only.
type Coordinator struct {
	id       string
	election *election.Election
	limiter  *gate.RateLimiter
	daily    *gate.DailyTriggerGate
	client   trigger.Client
	dock     trigger.Dock
	auditor  Auditor
	logger   *logrus.Entry

	now      func() time.Time
	debounce time.Duration

	// in-progress latch: suppresses overlapping calls from this instance
	inProgress atomic.Bool

	// auth edge detection for OnAuthReady
	authMu    sync.Mutex
	authFired bool
	pending   *time.Timer
}

// Options configures a coordinator instance
type Options struct {
	InstanceID string
	Debounce   time.Duration
	Clock      func() time.Time
	Auditor    Auditor
}

// New creates a coordinator instance. Each mounted instance gets its own id.
func New(
	elect *election.Election,
	limiter *gate.RateLimiter,
	daily *gate.DailyTriggerGate,
	client trigger.Client,
	dock trigger.Dock,
	opts Options,
	logger *logrus.Logger,
) *Coordinator {
	if opts.InstanceID == "" {
		opts.InstanceID = election.NewInstanceID()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 1500 * time.Millisecond
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Coordinator{
		id:       opts.InstanceID,
		election: elect,
		limiter:  limiter,
		daily:    daily,
		client:   client,
		dock:     dock,
		auditor:  opts.Auditor,
		logger:   logger.WithFields(logrus.Fields{"component": "coordinator", "instance_id": opts.InstanceID}),
		now:      opts.Clock,
		debounce: opts.Debounce,
	}
}

// InstanceID returns this instance's opaque id
func (c *Coordinator) InstanceID() string {
	return c.id
}

// Mount attempts to become the controller. Losing is not an error: a
// non-controller instance simply never triggers.
func (c *Coordinator) Mount() bool {
	won := c.election.Acquire(c.id)
	if won {
		c.logger.Info("Mounted as controller")
	} else {
		c.logger.WithField("holder", c.election.Holder()).Debug("Mounted as follower")
	}
	return won
}

// Unmount releases the controller token (holder-only) and cancels any
// pending debounced trigger.
func (c *Coordinator) Unmount() {
	c.authMu.Lock()
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
	c.authMu.Unlock()

	c.election.Release(c.id)
}

// OnAuthReady schedules one auto-sync pass after the debounce delay. It is
// edge-triggered: only the first call after AuthLost (or construction)
// arms the timer, so repeated ready signals don't stack triggers.
func (c *Coordinator) OnAuthReady(ctx context.Context) {
	c.authMu.Lock()
	defer c.authMu.Unlock()

	if c.authFired {
		return
	}
	c.authFired = true

	c.pending = time.AfterFunc(c.debounce, func() {
		c.authMu.Lock()
		c.pending = nil
		c.authMu.Unlock()

		outcome := c.MaybeTriggerAutoSync(ctx, true)
		c.logger.WithFields(logrus.Fields{
			"triggered": outcome.Triggered,
			"reason":    outcome.Reason,
		}).Debug("Auth-ready auto-sync pass finished")
	})
}

// AuthLost re-arms the auth edge so the next OnAuthReady schedules again
func (c *Coordinator) AuthLost() {
	c.authMu.Lock()
	defer c.authMu.Unlock()

	c.authFired = false
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
}

// MaybeTriggerAutoSync runs the guard chain and, when every gate passes,
// calls the external bulk-sync collaborator. Each guard short-circuits to a
// skip; skips are expected steady state, not errors.
func (c *Coordinator) MaybeTriggerAutoSync(ctx context.Context, authReady bool) models.TriggerOutcome {
	// 1. Only the controller causes side effects
	if !c.election.IsHolder(c.id) {
		return models.TriggerOutcome{Reason: models.SkipNotController}
	}

	now := c.now()

	// 2. Cooldown window, independent of the daily gate
	if c.limiter.ShouldThrottle(ctx, now) {
		c.logger.Debug("Skipping auto-sync: rate limited")
		return models.TriggerOutcome{Reason: models.SkipRateLimited}
	}

	// 3. A trigger from this instance is already in flight
	if c.inProgress.Load() {
		return models.TriggerOutcome{Reason: models.SkipInProgress}
	}

	// 4. Wait for auth; caller re-invokes on the next ready transition
	if !authReady {
		return models.TriggerOutcome{Reason: models.SkipAuthNotReady}
	}

	// 5. At most one auto-sync per calendar day
	today := gate.Today(now)
	if !c.daily.IsFirstTriggerToday(ctx, today) {
		return models.TriggerOutcome{Reason: models.SkipDailyGate}
	}

	// 6. Commit to the attempt: record the cooldown before the call so a
	// racing duplicate observes it while this one is still in flight.
	if !c.inProgress.CompareAndSwap(false, true) {
		return models.TriggerOutcome{Reason: models.SkipInProgress}
	}
	defer c.inProgress.Store(false)

	c.limiter.RecordAttempt(ctx, now)

	// Surface progress to the user whatever the outcome
	if c.dock != nil {
		c.dock.Show("auto-sync")
	}

	outcome := models.TriggerOutcome{}
	if _, err := c.client.TriggerBulkSync(ctx); err != nil {
		// Gate stays open; a later qualifying attempt may retry
		c.logger.WithError(err).Warn("Bulk sync trigger failed")
		outcome.Reason = models.ReasonFailed
		outcome.Error = err.Error()
	} else {
		if err := c.daily.MarkTriggered(ctx, today); err != nil {
			c.logger.WithError(err).Warn("Failed to mark daily gate")
		}
		c.logger.WithField("date", today).Info("Auto-sync triggered")
		outcome.Triggered = true
		outcome.Reason = models.ReasonTriggered
	}

	c.audit(ctx, outcome)
	return outcome
}

func (c *Coordinator) audit(ctx context.Context, outcome models.TriggerOutcome) {
	if c.auditor == nil {
		return
	}
	rec := database.TriggerRecord{
		InstanceID: c.id,
		Triggered:  outcome.Triggered,
		Reason:     outcome.Reason,
		Error:      outcome.Error,
	}
	if err := c.auditor.RecordTrigger(ctx, rec); err != nil {
		c.logger.WithError(err).Warn("Failed to audit trigger attempt")
	}
}
