package statestore

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wallet-back/pkg/models"
)

// UpdateKind discriminates store update notifications
type UpdateKind string

const (
	// UpdateState signals a per-wallet state change
	UpdateState UpdateKind = "state"
	// UpdateConnection signals a stream connection change
	UpdateConnection UpdateKind = "connection"
)

// Update is pushed to subscribers on every mutation. Payloads are copies;
// subscribers never share memory with the store.
type Update struct {
	Kind       UpdateKind
	Wallet     *models.WalletSyncState
	Connection *models.ConnectionState
}

// subscriberBuffer is the per-subscriber channel depth; slow subscribers
// drop updates rather than block event dispatch.
const subscriberBuffer = 64

// Store is the process-wide reactive map of wallet id to sync state, plus
// the stream connection singleton. Only the event stream consumer mutates
// wallet and connection state; everything else reads.
type Store struct {
	mu      sync.RWMutex
	wallets map[string]*models.WalletSyncState
	conn    models.ConnectionState

	subsMu  sync.Mutex
	subs    map[int]chan Update
	nextSub int

	now    func() time.Time
	logger *logrus.Entry
}

// New creates an empty sync state store
func New(logger *logrus.Logger) *Store {
	return &Store{
		wallets: make(map[string]*models.WalletSyncState),
		subs:    make(map[int]chan Update),
		now:     time.Now,
		logger:  logger.WithField("component", "statestore"),
	}
}

// SetClock overrides the store clock, for tests
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// ApplyProgress upserts a wallet's state from a progress event. The first
// event for an unknown wallet creates the entry. Progress never decreases
// while a sync is active; an event arriving after a terminal state restarts
// the lifecycle as a fresh cycle.
func (s *Store) ApplyProgress(walletID string, status models.SyncStatus, progress int, message string) {
	if progress < 0 {
		progress = 0
	}
	// Only a completed state carries 100; an active event claiming 100 is
	// held at 99 until the completed event arrives
	limit := 100
	if status != models.SyncStatusCompleted {
		limit = 99
	}
	if progress > limit {
		progress = limit
	}

	s.mu.Lock()
	state, ok := s.wallets[walletID]
	if !ok || state.Status.IsTerminal() {
		state = &models.WalletSyncState{
			WalletID:  walletID,
			StartedAt: s.now(),
		}
		s.wallets[walletID] = state
	}

	if progress < state.Progress {
		progress = state.Progress
	}
	state.Status = status
	state.Progress = progress
	state.Message = message
	state.SyncedData = nil
	state.CompletedAt = nil

	copied := *state
	s.mu.Unlock()

	s.notify(Update{Kind: UpdateState, Wallet: &copied})
}

// Complete marks a wallet's sync as completed
func (s *Store) Complete(walletID string, syncedData []string) {
	now := s.now()

	s.mu.Lock()
	state, ok := s.wallets[walletID]
	if !ok {
		state = &models.WalletSyncState{
			WalletID:  walletID,
			StartedAt: now,
		}
		s.wallets[walletID] = state
	}

	state.Status = models.SyncStatusCompleted
	state.Progress = 100
	state.SyncedData = append([]string(nil), syncedData...)
	state.CompletedAt = &now

	copied := *state
	s.mu.Unlock()

	s.notify(Update{Kind: UpdateState, Wallet: &copied})
}

// Fail marks a wallet's sync as failed, preserving the last known progress
func (s *Store) Fail(walletID string, message string) {
	now := s.now()

	s.mu.Lock()
	state, ok := s.wallets[walletID]
	if !ok {
		state = &models.WalletSyncState{
			WalletID:  walletID,
			StartedAt: now,
		}
		s.wallets[walletID] = state
	}

	state.Status = models.SyncStatusFailed
	state.Message = message
	state.CompletedAt = &now

	copied := *state
	s.mu.Unlock()

	s.notify(Update{Kind: UpdateState, Wallet: &copied})
}

// SetConnected updates the stream connection state
func (s *Store) SetConnected(connected bool, lastError string) {
	s.mu.Lock()
	s.conn.Connected = connected
	s.conn.LastError = lastError
	if connected {
		now := s.now()
		s.conn.ConnectedAt = &now
		s.conn.LastError = ""
	}
	copied := s.conn
	s.mu.Unlock()

	s.notify(Update{Kind: UpdateConnection, Connection: &copied})
}

// Get returns a copy of one wallet's state
func (s *Store) Get(walletID string) (models.WalletSyncState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.wallets[walletID]
	if !ok {
		return models.WalletSyncState{}, false
	}
	return *state, true
}

// Snapshot returns copies of all wallet states, sorted by wallet id
func (s *Store) Snapshot() []models.WalletSyncState {
	s.mu.RLock()
	states := make([]models.WalletSyncState, 0, len(s.wallets))
	for _, state := range s.wallets {
		states = append(states, *state)
	}
	s.mu.RUnlock()

	sort.Slice(states, func(i, j int) bool {
		return states[i].WalletID < states[j].WalletID
	})
	return states
}

// Connection returns the current stream connection state
func (s *Store) Connection() models.ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

// ActiveCount returns the number of wallets currently mid-sync
func (s *Store) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, state := range s.wallets {
		if state.Status.IsActive() {
			count++
		}
	}
	return count
}

// Clear removes one wallet's state (explicit external reset)
func (s *Store) Clear(walletID string) {
	s.mu.Lock()
	delete(s.wallets, walletID)
	s.mu.Unlock()
}

// ClearAll removes all wallet state
func (s *Store) ClearAll() {
	s.mu.Lock()
	s.wallets = make(map[string]*models.WalletSyncState)
	s.mu.Unlock()
}

// Subscribe registers for update notifications. The returned cancel func
// unregisters and closes the channel.
func (s *Store) Subscribe() (<-chan Update, func()) {
	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan Update, subscriberBuffer)
	s.subs[id] = ch
	s.subsMu.Unlock()

	cancel := func() {
		s.subsMu.Lock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
		s.subsMu.Unlock()
	}
	return ch, cancel
}

func (s *Store) notify(update Update) {
	s.subsMu.Lock()
	for id, ch := range s.subs {
		select {
		case ch <- update:
		default:
			s.logger.WithField("subscriber", id).Debug("Subscriber slow, dropping update")
		}
	}
	s.subsMu.Unlock()
}
