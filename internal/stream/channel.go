package stream

import (
	"context"

	"github.com/wallet-back/pkg/models"
)

// Channel is the abstract server-push transport carrying sync events.
// Implementations must never hold two live connections: Connect exchanges
// any stale connection for a fresh one. The returned channel is closed when
// the transport dies; the consumer decides whether to reconnect.
type Channel interface {
	Connect(ctx context.Context) (<-chan models.StreamEvent, error)
	Close() error
}
