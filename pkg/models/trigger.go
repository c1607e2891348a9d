package models

// TriggerResponse is the wallet backend's reply to a bulk sync request
type TriggerResponse struct {
	Success bool          `json:"success"`
	Data    *TriggerData  `json:"data,omitempty"`
	Error   *TriggerError `json:"error,omitempty"`
}

// TriggerData carries the jobs queued by a successful bulk sync
type TriggerData struct {
	SyncJobs []SyncJob `json:"syncJobs"`
}

// SyncJob identifies one queued per-wallet sync job
type SyncJob struct {
	WalletID string `json:"walletId"`
	JobID    string `json:"jobId"`
	Status   string `json:"status"`
}

// TriggerError is the backend's structured error payload
type TriggerError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Skip reasons reported by the auto-sync guard chain
const (
	SkipNotController = "not-controller"
	SkipRateLimited   = "rate-limited"
	SkipInProgress    = "in-progress"
	SkipAuthNotReady  = "auth-not-ready"
	SkipDailyGate     = "daily-gate-skip"
	ReasonTriggered   = "triggered"
	ReasonFailed      = "trigger-failed"
)

// TriggerOutcome is the result of one pass through the guard chain
type TriggerOutcome struct {
	Triggered bool   `json:"triggered"`
	Reason    string `json:"reason"`
	Error     string `json:"error,omitempty"`
}
