package stream

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallet-back/internal/statestore"
	"github.com/wallet-back/pkg/models"
)

// fakeChannel hands out scripted event channels
type fakeChannel struct {
	mu       sync.Mutex
	connects int
	closes   int
	current  chan models.StreamEvent
}

func (f *fakeChannel) Connect(_ context.Context) (<-chan models.StreamEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	f.current = make(chan models.StreamEvent, 16)
	return f.current, nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeChannel) send(event models.StreamEvent) {
	f.mu.Lock()
	ch := f.current
	f.mu.Unlock()
	ch <- event
}

func (f *fakeChannel) dropConnection() {
	f.mu.Lock()
	ch := f.current
	f.mu.Unlock()
	close(ch)
}

func (f *fakeChannel) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func newTestConsumer(t *testing.T, opts ConsumerOptions) (*Consumer, *fakeChannel, *statestore.Store, context.CancelFunc) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	store := statestore.New(logger)
	channel := &fakeChannel{}
	consumer := NewConsumer(channel, store, opts, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		consumer.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("consumer did not stop")
		}
	})

	require.Eventually(t, func() bool { return channel.connectCount() >= 1 }, time.Second, 5*time.Millisecond)
	return consumer, channel, store, cancel
}

func TestConsumerDispatchesLifecycle(t *testing.T) {
	_, channel, store, _ := newTestConsumer(t, ConsumerOptions{})

	channel.send(models.StreamEvent{Type: models.EventConnectionEstablished, UserID: "u1"})
	channel.send(models.StreamEvent{Type: models.EventWalletSyncProgress, WalletID: "w1", Status: models.SyncStatusQueued, Progress: 0})
	channel.send(models.StreamEvent{Type: models.EventWalletSyncProgress, WalletID: "w1", Status: models.SyncStatusSyncingAssets, Progress: 25})
	channel.send(models.StreamEvent{Type: models.EventWalletSyncProgress, WalletID: "w1", Status: models.SyncStatusSyncingTransactions, Progress: 60})
	channel.send(models.StreamEvent{Type: models.EventWalletSyncCompleted, WalletID: "w1", SyncedData: []string{"assets", "transactions"}})

	require.Eventually(t, func() bool {
		state, ok := store.Get("w1")
		return ok && state.Status == models.SyncStatusCompleted
	}, time.Second, 5*time.Millisecond)

	state, _ := store.Get("w1")
	assert.Equal(t, 100, state.Progress)
	assert.Equal(t, []string{"assets", "transactions"}, state.SyncedData)
	assert.True(t, store.Connection().Connected)
}

func TestConsumerFailedEvent(t *testing.T) {
	_, channel, store, _ := newTestConsumer(t, ConsumerOptions{})

	channel.send(models.StreamEvent{Type: models.EventWalletSyncProgress, WalletID: "w1", Status: models.SyncStatusSyncing, Progress: 40})
	channel.send(models.StreamEvent{Type: models.EventWalletSyncFailed, WalletID: "w1", Message: "rpc unavailable"})

	require.Eventually(t, func() bool {
		state, ok := store.Get("w1")
		return ok && state.Status == models.SyncStatusFailed
	}, time.Second, 5*time.Millisecond)

	state, _ := store.Get("w1")
	assert.Equal(t, 40, state.Progress, "failure preserves last known progress")
}

func TestConsumerIgnoresUnknownEvents(t *testing.T) {
	_, channel, store, _ := newTestConsumer(t, ConsumerOptions{})

	channel.send(models.StreamEvent{Type: models.EventHeartbeat})
	channel.send(models.StreamEvent{Type: "foo", WalletID: "w1"})
	// A recognized event proves the loop survived the unknown one
	channel.send(models.StreamEvent{Type: models.EventWalletSyncProgress, WalletID: "w2", Status: models.SyncStatusQueued})

	require.Eventually(t, func() bool {
		_, ok := store.Get("w2")
		return ok
	}, time.Second, 5*time.Millisecond)

	_, ok := store.Get("w1")
	assert.False(t, ok, "unknown event types must not mutate state")
}

func TestConsumerReconnectsAfterDrop(t *testing.T) {
	_, channel, store, _ := newTestConsumer(t, ConsumerOptions{ReconnectMin: 10 * time.Millisecond, ReconnectMax: 20 * time.Millisecond})

	channel.send(models.StreamEvent{Type: models.EventWalletSyncProgress, WalletID: "w1", Status: models.SyncStatusSyncing, Progress: 50})
	require.Eventually(t, func() bool {
		_, ok := store.Get("w1")
		return ok
	}, time.Second, 5*time.Millisecond)

	channel.dropConnection()

	require.Eventually(t, func() bool { return channel.connectCount() >= 2 }, time.Second, 5*time.Millisecond)

	// Recorded wallet state survives the reconnect
	state, ok := store.Get("w1")
	require.True(t, ok)
	assert.Equal(t, 50, state.Progress)
}

func TestConsumerHeartbeatWatchdog(t *testing.T) {
	_, channel, _, _ := newTestConsumer(t, ConsumerOptions{
		HeartbeatTimeout: 30 * time.Millisecond,
		ReconnectMin:     10 * time.Millisecond,
		ReconnectMax:     20 * time.Millisecond,
	})

	// Total silence: the watchdog must force a reconnect
	require.Eventually(t, func() bool { return channel.connectCount() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestConsumerEventAtHeartbeatDeadline(t *testing.T) {
	_, channel, store, _ := newTestConsumer(t, ConsumerOptions{
		HeartbeatTimeout: 20 * time.Millisecond,
		ReconnectMin:     5 * time.Millisecond,
		ReconnectMax:     10 * time.Millisecond,
	})

	// Let the watchdog expire unreceived, then race an event against it.
	// Whichever side wins, the loop must stay live: the event is
	// dispatched or the watchdog forces a reconnect.
	for i := 1; i <= 3; i++ {
		time.Sleep(40 * time.Millisecond)
		connects := channel.connectCount()
		channel.send(models.StreamEvent{Type: models.EventWalletSyncProgress, WalletID: "w1", Status: models.SyncStatusSyncing, Progress: i * 10})

		progress := i * 10
		require.Eventually(t, func() bool {
			state, ok := store.Get("w1")
			return (ok && state.Progress >= progress) || channel.connectCount() > connects
		}, time.Second, 5*time.Millisecond, "consumer stalled after heartbeat deadline")
	}
	// Cleanup asserts Run still responds to shutdown
}

func TestConsumerShutdown(t *testing.T) {
	_, _, _, cancel := newTestConsumer(t, ConsumerOptions{})
	cancel()
	// Cleanup asserts Run returned
}
