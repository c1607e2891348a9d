package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallet-back/internal/database"
	"github.com/wallet-back/internal/election"
	"github.com/wallet-back/internal/gate"
	"github.com/wallet-back/internal/store"
	"github.com/wallet-back/pkg/models"
)

type fakeTriggerClient struct {
	mu      sync.Mutex
	calls   int
	err     error
	blockCh chan struct{} // when set, TriggerBulkSync blocks until closed
}

func (f *fakeTriggerClient) TriggerBulkSync(_ context.Context) (*models.TriggerResponse, error) {
	f.mu.Lock()
	f.calls++
	block := f.blockCh
	err := f.err
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}
	return &models.TriggerResponse{Success: true}, nil
}

func (f *fakeTriggerClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type spyDock struct {
	mu    sync.Mutex
	shows []string
}

func (d *spyDock) Show(reason string) {
	d.mu.Lock()
	d.shows = append(d.shows, reason)
	d.mu.Unlock()
}

func (d *spyDock) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.shows)
}

type memAuditor struct {
	mu   sync.Mutex
	recs []database.TriggerRecord
}

func (a *memAuditor) RecordTrigger(_ context.Context, rec database.TriggerRecord) error {
	a.mu.Lock()
	a.recs = append(a.recs, rec)
	a.mu.Unlock()
	return nil
}

type fixture struct {
	elect   *election.Election
	st      *store.MemoryStore
	client  *fakeTriggerClient
	dock    *spyDock
	auditor *memAuditor
	clock   time.Time
	clockMu sync.Mutex
}

func (f *fixture) nowFunc() func() time.Time {
	return func() time.Time {
		f.clockMu.Lock()
		defer f.clockMu.Unlock()
		return f.clock
	}
}

func (f *fixture) advance(d time.Duration) {
	f.clockMu.Lock()
	f.clock = f.clock.Add(d)
	f.clockMu.Unlock()
}

func newFixture() *fixture {
	return &fixture{
		elect:   election.New(quietLogger()),
		st:      store.NewMemoryStore(),
		client:  &fakeTriggerClient{},
		dock:    &spyDock{},
		auditor: &memAuditor{},
		clock:   time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (f *fixture) coordinator(id string) *Coordinator {
	logger := quietLogger()
	limiter := gate.NewRateLimiter(f.st, 30*time.Second, "u1", logger)
	daily := gate.NewDailyTriggerGate(f.st, "u1", logger)
	return New(f.elect, limiter, daily, f.client, f.dock, Options{
		InstanceID: id,
		Debounce:   time.Millisecond,
		Clock:      f.nowFunc(),
		Auditor:    f.auditor,
	}, logger)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestEndToEndDailyCycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	a := f.coordinator("instance-a")
	b := f.coordinator("instance-b")

	require.True(t, a.Mount())
	require.False(t, b.Mount())

	// Instance B never triggers, at any point
	outcome := b.MaybeTriggerAutoSync(ctx, true)
	assert.Equal(t, models.SkipNotController, outcome.Reason)

	// Instance A triggers on the first qualifying call
	outcome = a.MaybeTriggerAutoSync(ctx, true)
	require.True(t, outcome.Triggered)
	assert.Equal(t, models.ReasonTriggered, outcome.Reason)
	assert.Equal(t, 1, f.client.callCount())
	assert.Equal(t, 1, f.dock.count(), "dock expands on the attempt")

	// Same day, past the cooldown: daily gate closes the path
	f.advance(time.Hour)
	outcome = a.MaybeTriggerAutoSync(ctx, true)
	assert.False(t, outcome.Triggered)
	assert.Equal(t, models.SkipDailyGate, outcome.Reason)
	assert.Equal(t, 1, f.client.callCount())

	// Next day reopens the gate
	f.advance(24 * time.Hour)
	outcome = a.MaybeTriggerAutoSync(ctx, true)
	assert.True(t, outcome.Triggered)
	assert.Equal(t, 2, f.client.callCount())
}

func TestRateLimiterGuard(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	c := f.coordinator("instance-a")
	require.True(t, c.Mount())

	require.True(t, c.MaybeTriggerAutoSync(ctx, true).Triggered)

	// Within the cooldown the rate limiter fires before the daily gate
	f.advance(10 * time.Second)
	outcome := c.MaybeTriggerAutoSync(ctx, true)
	assert.Equal(t, models.SkipRateLimited, outcome.Reason)
}

func TestAuthNotReady(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	c := f.coordinator("instance-a")
	require.True(t, c.Mount())

	outcome := c.MaybeTriggerAutoSync(ctx, false)
	assert.Equal(t, models.SkipAuthNotReady, outcome.Reason)
	assert.Equal(t, 0, f.client.callCount())

	// No attempt was made, so nothing is rate limited or gated
	outcome = c.MaybeTriggerAutoSync(ctx, true)
	assert.True(t, outcome.Triggered)
}

func TestFailedTriggerLeavesGateOpen(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.client.err = errors.New("backend down")

	c := f.coordinator("instance-a")
	require.True(t, c.Mount())

	outcome := c.MaybeTriggerAutoSync(ctx, true)
	assert.False(t, outcome.Triggered)
	assert.Equal(t, models.ReasonFailed, outcome.Reason)
	assert.Equal(t, 1, f.dock.count(), "dock expands even on failure")

	// Cooldown applies to the failed attempt too
	f.advance(10 * time.Second)
	assert.Equal(t, models.SkipRateLimited, c.MaybeTriggerAutoSync(ctx, true).Reason)

	// After the cooldown the gate is still open and a retry succeeds
	f.client.err = nil
	f.advance(time.Minute)
	outcome = c.MaybeTriggerAutoSync(ctx, true)
	assert.True(t, outcome.Triggered)
	assert.Equal(t, 2, f.client.callCount())
}

func TestInProgressLatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	block := make(chan struct{})
	f.client.blockCh = block

	c := f.coordinator("instance-a")
	require.True(t, c.Mount())

	first := make(chan models.TriggerOutcome, 1)
	go func() {
		first <- c.MaybeTriggerAutoSync(ctx, true)
	}()

	require.Eventually(t, func() bool { return f.client.callCount() == 1 }, time.Second, time.Millisecond)

	// A re-entrant call while the first is in flight is suppressed. The
	// rate limiter already recorded the attempt, so it fires first; both
	// guards protect the same path against different failure modes.
	outcome := c.MaybeTriggerAutoSync(ctx, true)
	assert.Contains(t, []string{models.SkipInProgress, models.SkipRateLimited}, outcome.Reason)
	assert.Equal(t, 1, f.client.callCount())

	close(block)
	res := <-first
	assert.True(t, res.Triggered)
}

func TestLatchClearedAfterFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.client.err = errors.New("boom")

	c := f.coordinator("instance-a")
	require.True(t, c.Mount())

	c.MaybeTriggerAutoSync(ctx, true)

	// The latch must not stay set after a failed attempt
	f.advance(time.Minute)
	f.client.err = nil
	outcome := c.MaybeTriggerAutoSync(ctx, true)
	assert.True(t, outcome.Triggered)
}

func TestUnmountHandsOverControl(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	a := f.coordinator("instance-a")
	b := f.coordinator("instance-b")

	require.True(t, a.Mount())
	require.False(t, b.Mount())

	a.Unmount()
	require.True(t, b.Mount())

	outcome := b.MaybeTriggerAutoSync(ctx, true)
	assert.True(t, outcome.Triggered)

	// The departed instance cannot trigger anymore
	outcome = a.MaybeTriggerAutoSync(ctx, true)
	assert.Equal(t, models.SkipNotController, outcome.Reason)
}

func TestOnAuthReadyDebounceAndEdge(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	c := f.coordinator("instance-a")
	require.True(t, c.Mount())

	c.OnAuthReady(ctx)
	c.OnAuthReady(ctx) // repeated ready signals don't stack

	require.Eventually(t, func() bool { return f.client.callCount() == 1 }, time.Second, time.Millisecond)

	// Still edge-armed: another ready without a loss does nothing
	f.advance(25 * time.Hour)
	c.OnAuthReady(ctx)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, f.client.callCount())

	// Auth drops and rises: a fresh pass runs (new day, gate open)
	c.AuthLost()
	c.OnAuthReady(ctx)
	require.Eventually(t, func() bool { return f.client.callCount() == 2 }, time.Second, time.Millisecond)
}

func TestAuditTrail(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	c := f.coordinator("instance-a")
	require.True(t, c.Mount())

	c.MaybeTriggerAutoSync(ctx, true)

	f.auditor.mu.Lock()
	defer f.auditor.mu.Unlock()
	require.Len(t, f.auditor.recs, 1)
	assert.Equal(t, "instance-a", f.auditor.recs[0].InstanceID)
	assert.True(t, f.auditor.recs[0].Triggered)
	assert.Equal(t, models.ReasonTriggered, f.auditor.recs[0].Reason)
}
