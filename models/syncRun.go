package models

import (
	"time"
)

// SyncRun is one orchestrator invocation. Created at pass start, finalized
// exactly once at pass end; a row left "running" forever is a defect.
type SyncRun struct {
	ID uint `gorm:"primary_key" json:"id"`

	TriggerType string     `gorm:"size:50;not null;default:manual" json:"trigger_type"`
	StartTime   time.Time  `gorm:"not null" json:"start_time"`
	EndTime     *time.Time `json:"end_time"`
	Status      string     `gorm:"index;size:50;not null" json:"status"`

	EntriesFetched    int `gorm:"default:0;not null" json:"entries_fetched"`
	EntriesSynced     int `gorm:"default:0;not null" json:"entries_synced"`
	AlreadySynced     int `gorm:"default:0;not null" json:"already_synced"`
	EntriesSkipped    int `gorm:"default:0;not null" json:"entries_skipped"`
	EntriesFailed     int `gorm:"default:0;not null" json:"entries_failed"`
	ConflictsDetected int `gorm:"default:0;not null" json:"conflicts_detected"`

	ErrorMessage string `gorm:"type:text" json:"error_message"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
