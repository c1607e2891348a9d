package models

import "time"

// SyncStatus represents the lifecycle stage of a wallet sync
type SyncStatus string

const (
	SyncStatusIdle                SyncStatus = "idle"
	SyncStatusQueued              SyncStatus = "queued"
	SyncStatusSyncing             SyncStatus = "syncing"
	SyncStatusSyncingAssets       SyncStatus = "syncing_assets"
	SyncStatusSyncingTransactions SyncStatus = "syncing_transactions"
	SyncStatusSyncingNFTs         SyncStatus = "syncing_nfts"
	SyncStatusSyncingDeFi         SyncStatus = "syncing_defi"
	SyncStatusCompleted           SyncStatus = "completed"
	SyncStatusFailed              SyncStatus = "failed"
)

// IsTerminal reports whether the status ends a sync cycle
func (s SyncStatus) IsTerminal() bool {
	return s == SyncStatusCompleted || s == SyncStatusFailed
}

// IsActive reports whether a sync is currently in flight
func (s SyncStatus) IsActive() bool {
	switch s {
	case SyncStatusQueued, SyncStatusSyncing, SyncStatusSyncingAssets,
		SyncStatusSyncingTransactions, SyncStatusSyncingNFTs, SyncStatusSyncingDeFi:
		return true
	}
	return false
}

// WalletSyncState represents the current synchronization state of a wallet
type WalletSyncState struct {
	WalletID    string     `json:"walletId"`
	Status      SyncStatus `json:"status"`
	Progress    int        `json:"progress"` // 0-100 percentage
	Message     string     `json:"message,omitempty"`
	SyncedData  []string   `json:"syncedData,omitempty"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// ConnectionState represents the health of the inbound event stream
type ConnectionState struct {
	Connected   bool       `json:"connected"`
	LastError   string     `json:"lastError,omitempty"`
	ConnectedAt *time.Time `json:"connectedAt,omitempty"`
}
