package models

import "time"

// Stream event types pushed by the wallet backend
const (
	EventConnectionEstablished = "connection_established"
	EventWalletSyncProgress    = "wallet_sync_progress"
	EventWalletSyncCompleted   = "wallet_sync_completed"
	EventWalletSyncFailed      = "wallet_sync_failed"
	EventHeartbeat             = "heartbeat"
)

// StreamEvent is the JSON envelope carried by the push channel.
// Fields are a union across event types; absent fields stay zero.
type StreamEvent struct {
	Type        string     `json:"type"`
	UserID      string     `json:"userId,omitempty"`
	WalletID    string     `json:"walletId,omitempty"`
	Progress    int        `json:"progress,omitempty"`
	Status      SyncStatus `json:"status,omitempty"`
	Message     string     `json:"message,omitempty"`
	SyncedData  []string   `json:"syncedData,omitempty"`
	Timestamp   time.Time  `json:"timestamp,omitempty"`
	CompletedAt time.Time  `json:"completedAt,omitempty"`
}
