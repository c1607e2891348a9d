package stream

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/wallet-back/internal/statestore"
	"github.com/wallet-back/pkg/models"
)

// Consumer drives the event channel: one per process. It connects, parses
// and dispatches events into the state store in arrival order, watches for
// dead air, and reconnects with exponential backoff. All transport failures
// are absorbed into ConnectionState; nothing propagates.
type Consumer struct {
	channel Channel
	store   *statestore.Store
	logger  *logrus.Entry

	heartbeatTimeout time.Duration
	reconnectMin     time.Duration
	reconnectMax     time.Duration

	visible chan struct{}
}

// ConsumerOptions tunes the consumer's reconnect and liveness behavior
type ConsumerOptions struct {
	HeartbeatTimeout time.Duration
	ReconnectMin     time.Duration
	ReconnectMax     time.Duration
}

// NewConsumer creates the process-wide stream consumer
func NewConsumer(channel Channel, store *statestore.Store, opts ConsumerOptions, logger *logrus.Logger) *Consumer {
	if opts.HeartbeatTimeout <= 0 {
		opts.HeartbeatTimeout = 90 * time.Second
	}
	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = time.Second
	}
	if opts.ReconnectMax <= 0 {
		opts.ReconnectMax = 30 * time.Second
	}
	return &Consumer{
		channel:          channel,
		store:            store,
		logger:           logger.WithField("component", "stream-consumer"),
		heartbeatTimeout: opts.HeartbeatTimeout,
		reconnectMin:     opts.ReconnectMin,
		reconnectMax:     opts.ReconnectMax,
		visible:          make(chan struct{}, 1),
	}
}

// NotifyVisible hints that a presentation surface regained visibility.
// If the consumer is waiting out a reconnect backoff, it retries now.
func (c *Consumer) NotifyVisible() {
	select {
	case c.visible <- struct{}{}:
	default:
	}
}

// Run consumes the stream until ctx is canceled
func (c *Consumer) Run(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.reconnectMin
	bo.MaxInterval = c.reconnectMax
	bo.MaxElapsedTime = 0 // reconnect forever

	for {
		if ctx.Err() != nil {
			return
		}

		events, err := c.channel.Connect(ctx)
		if err != nil {
			c.store.SetConnected(false, err.Error())
			c.logger.WithError(err).Warn("Stream connect failed")

			wait := bo.NextBackOff()
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			case <-c.visible:
				c.logger.Debug("Visibility regained, retrying connect now")
			}
			continue
		}

		bo.Reset()
		c.store.SetConnected(true, "")
		c.logger.Info("Stream connected")

		reason := c.consume(ctx, events)
		if ctx.Err() != nil {
			c.channel.Close()
			return
		}

		c.store.SetConnected(false, reason)
		c.logger.WithField("reason", reason).Warn("Stream disconnected, reconnecting")

		// Exchange the stale connection before retrying; never two live ones
		c.channel.Close()
	}
}

// consume processes events until the channel closes, the watchdog fires, or
// ctx is canceled. It returns the disconnect reason.
func (c *Consumer) consume(ctx context.Context, events <-chan models.StreamEvent) string {
	watchdog := time.NewTimer(c.heartbeatTimeout)
	defer watchdog.Stop()

	for {
		select {
		case <-ctx.Done():
			return "shutdown"

		case <-watchdog.C:
			// No events, not even heartbeats: the connection is dead
			return "heartbeat timeout"

		case event, ok := <-events:
			if !ok {
				return "stream closed"
			}

			// Reset without draining; as of Go 1.23 a stale fire can
			// never be delivered after Reset returns
			watchdog.Reset(c.heartbeatTimeout)

			c.dispatch(event)
		}
	}
}

// dispatch applies one event to the state store. Unknown types are ignored.
func (c *Consumer) dispatch(event models.StreamEvent) {
	switch event.Type {
	case models.EventConnectionEstablished:
		c.store.SetConnected(true, "")

	case models.EventWalletSyncProgress:
		if event.WalletID == "" {
			c.logger.Debug("Progress event without wallet id, skipping")
			return
		}
		c.store.ApplyProgress(event.WalletID, event.Status, event.Progress, event.Message)

	case models.EventWalletSyncCompleted:
		if event.WalletID == "" {
			c.logger.Debug("Completed event without wallet id, skipping")
			return
		}
		c.store.Complete(event.WalletID, event.SyncedData)

	case models.EventWalletSyncFailed:
		if event.WalletID == "" {
			c.logger.Debug("Failed event without wallet id, skipping")
			return
		}
		c.store.Fail(event.WalletID, event.Message)

	case models.EventHeartbeat:
		// Liveness only; the watchdog reset in consume covers it

	default:
		c.logger.WithField("type", event.Type).Debug("Ignoring unknown event type")
	}
}
