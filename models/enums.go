package models

const (
	SourceZammad = "zammad"
	SourceKimai  = "kimai"
)

const (
	SyncRunStatusRunning   = "running"
	SyncRunStatusCompleted = "completed"
	SyncRunStatusFailed    = "failed"
)

const (
	SyncTriggeredManual    = "manual"
	SyncTriggeredScheduled = "scheduled"
	SyncTriggeredWebhook   = "webhook"
)

const (
	EntrySyncStatusPending  = "pending"
	EntrySyncStatusSynced   = "synced"
	EntrySyncStatusError    = "error"
	EntrySyncStatusConflict = "conflict"
	EntrySyncStatusIgnored  = "ignored"
)

const (
	ConflictTypeDuplicate = "duplicate"
	ConflictTypeMismatch  = "mismatch"
	ConflictTypeMissing   = "missing"
)

const (
	ResolutionStatusPending  = "pending"
	ResolutionStatusResolved = "resolved"
	ResolutionStatusIgnored  = "ignored"
)

const (
	ResolutionActionCreate     = "create"
	ResolutionActionUpdate     = "update"
	ResolutionActionKeepTarget = "keep-target"
	ResolutionActionSkip       = "skip"
)
