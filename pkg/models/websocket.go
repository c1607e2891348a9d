package models

// WebSocket fanout frame types
const (
	WSFrameSyncState  = "sync_state"
	WSFrameConnection = "connection"
	WSFrameSnapshot   = "snapshot"
	WSFrameDock       = "dock"
)

// WSFrame is a single message pushed to presentation clients
type WSFrame struct {
	Type       string            `json:"type"`
	Wallet     *WalletSyncState  `json:"wallet,omitempty"`
	Wallets    []WalletSyncState `json:"wallets,omitempty"`
	Connection *ConnectionState  `json:"connection,omitempty"`
	Reason     string            `json:"reason,omitempty"`
}
