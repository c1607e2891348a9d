package election

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Election ensures exactly one of N coordinator instances in this process is
// authoritative for trigger side effects. It is a non-blocking single-attempt
// compare-and-set, not a queue: losers never become controller until the
// holder releases.
type Election struct {
	mu     sync.Mutex
	holder string
	logger *logrus.Entry
}

// New creates a new election service
func New(logger *logrus.Logger) *Election {
	return &Election{
		logger: logger.WithField("component", "election"),
	}
}

// NewInstanceID returns a fresh opaque coordinator instance id
func NewInstanceID() string {
	return uuid.NewString()
}

// Acquire attempts to take the controller token. It succeeds iff no holder
// exists, and is idempotent for the current holder.
func (e *Election) Acquire(instanceID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.holder == instanceID {
		return true
	}
	if e.holder != "" {
		return false
	}

	e.holder = instanceID
	e.logger.WithField("instance_id", instanceID).Debug("Controller token acquired")
	return true
}

// Release clears the holder, but only when called by the holder itself.
// A stale instance can never release another instance's lease.
func (e *Election) Release(instanceID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.holder != instanceID {
		return
	}

	e.holder = ""
	e.logger.WithField("instance_id", instanceID).Debug("Controller token released")
}

// IsHolder reports whether instanceID currently holds the token
func (e *Election) IsHolder(instanceID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.holder == instanceID
}

// Holder returns the current holder's instance id, or empty
func (e *Election) Holder() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.holder
}
