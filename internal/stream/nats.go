package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/wallet-back/pkg/config"
	"github.com/wallet-back/pkg/models"
)

// NATSChannel delivers sync events from a NATS subject, for deployments
// where the wallet backend publishes to a broker instead of serving SSE.
// The nats client handles transport-level reconnects itself.
type NATSChannel struct {
	conn    *nats.Conn
	subject string
	logger  *logrus.Entry

	mu        sync.Mutex
	sub       *nats.Subscription
	sink      *eventSink
	closed    chan struct{}
	closeOnce sync.Once
}

// eventSink wraps the delivery channel so that sends and the close are
// serialized. Subscription callbacks run on the nats client's goroutines;
// without the lock a callback could send on a channel teardown just closed.
type eventSink struct {
	mu     sync.Mutex
	ch     chan models.StreamEvent
	closed bool
}

func newEventSink() *eventSink {
	return &eventSink{ch: make(chan models.StreamEvent, eventBuffer)}
}

// deliver offers an event without blocking. It reports false when the sink
// is closed or the buffer is full.
func (s *eventSink) deliver(event models.StreamEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- event:
		return true
	default:
		return false
	}
}

func (s *eventSink) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// NewNATSChannel connects to NATS and prepares a subscription channel.
// userID scopes the subject; empty subscribes to all users.
func NewNATSChannel(cfg *config.NATSConfig, userID string, logger *logrus.Logger) (*NATSChannel, error) {
	nc := &NATSChannel{
		subject: "sync.events.>",
		logger:  logger.WithField("component", "nats-channel"),
		closed:  make(chan struct{}),
	}
	if userID != "" {
		nc.subject = fmt.Sprintf("sync.events.%s", userID)
	}

	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnect),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			nc.logger.WithError(err).Warn("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			nc.logger.Info("NATS reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			nc.logger.Info("NATS connection closed")
			nc.teardown()
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	nc.conn = conn

	return nc, nil
}

// Connect subscribes to the sync subject, replacing any prior subscription
func (nc *NATSChannel) Connect(ctx context.Context) (<-chan models.StreamEvent, error) {
	nc.mu.Lock()
	defer nc.mu.Unlock()

	if nc.sub != nil {
		nc.sub.Unsubscribe()
		nc.sub = nil
	}
	if nc.sink != nil {
		nc.sink.close()
	}
	nc.sink = newEventSink()
	sink := nc.sink

	sub, err := nc.conn.Subscribe(nc.subject, func(msg *nats.Msg) {
		var event models.StreamEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			nc.logger.WithError(err).Debug("Skipping malformed stream event")
			return
		}
		if !sink.deliver(event) {
			nc.logger.Debug("Dropping event, sink closed or buffer full")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", nc.subject, err)
	}
	nc.sub = sub

	go func() {
		select {
		case <-ctx.Done():
			nc.teardown()
		case <-nc.closed:
		}
	}()

	return sink.ch, nil
}

func (nc *NATSChannel) teardown() {
	nc.mu.Lock()
	defer nc.mu.Unlock()
	if nc.sub != nil {
		nc.sub.Unsubscribe()
		nc.sub = nil
	}
	if nc.sink != nil {
		nc.sink.close()
		nc.sink = nil
	}
}

// Close unsubscribes and closes the NATS connection
func (nc *NATSChannel) Close() error {
	nc.closeOnce.Do(func() { close(nc.closed) })
	nc.teardown()
	if nc.conn != nil && !nc.conn.IsClosed() {
		nc.conn.Close()
	}
	return nil
}
