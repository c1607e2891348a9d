package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/wallet-back/pkg/config"
	"github.com/wallet-back/pkg/models"
)

// eventBuffer is the delivery channel depth for parsed events
const eventBuffer = 64

// maxLineSize bounds a single SSE line (1MB)
const maxLineSize = 1 << 20

// SSEChannel consumes a text/event-stream endpoint
type SSEChannel struct {
	url       string
	authToken string
	client    *http.Client
	logger    *logrus.Entry

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewSSEChannel creates an SSE-backed event channel
func NewSSEChannel(cfg *config.StreamConfig, logger *logrus.Logger) *SSEChannel {
	return &SSEChannel{
		url:       cfg.URL,
		authToken: cfg.AuthToken,
		// No client timeout: the stream stays open indefinitely. Liveness
		// is the consumer's heartbeat watchdog.
		client: &http.Client{},
		logger: logger.WithField("component", "sse-channel"),
	}
}

// Connect opens the stream and returns a channel of parsed events. Any
// previous connection is torn down first.
func (sc *SSEChannel) Connect(ctx context.Context) (<-chan models.StreamEvent, error) {
	sc.mu.Lock()
	if sc.cancel != nil {
		sc.cancel()
		sc.cancel = nil
	}
	streamCtx, cancel := context.WithCancel(ctx)
	sc.cancel = cancel
	sc.mu.Unlock()

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, sc.url, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if sc.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+sc.authToken)
	}

	resp, err := sc.client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to connect to stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("stream returned status %d", resp.StatusCode)
	}

	events := make(chan models.StreamEvent, eventBuffer)
	go sc.readLoop(streamCtx, resp, events)

	return events, nil
}

// readLoop parses the event-stream wire format: "data:" lines accumulate
// until a blank line terminates the event.
func (sc *SSEChannel) readLoop(ctx context.Context, resp *http.Response, events chan<- models.StreamEvent) {
	defer close(events)
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)

	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if data.Len() > 0 {
				sc.emit(ctx, data.String(), events)
				data.Reset()
			}
			continue
		}
		// Comment/keepalive lines start with a colon
		if strings.HasPrefix(line, ":") {
			continue
		}
		if payload, ok := strings.CutPrefix(line, "data:"); ok {
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(payload, " "))
		}
		// event:/id:/retry: fields are unused; the envelope carries a type
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		sc.logger.WithError(err).Warn("Stream read error")
	}
}

func (sc *SSEChannel) emit(ctx context.Context, payload string, events chan<- models.StreamEvent) {
	var event models.StreamEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		sc.logger.WithError(err).Debug("Skipping malformed stream event")
		return
	}

	select {
	case events <- event:
	case <-ctx.Done():
	}
}

// Close tears down the current connection
func (sc *SSEChannel) Close() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.cancel != nil {
		sc.cancel()
		sc.cancel = nil
	}
	return nil
}
