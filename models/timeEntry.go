package models

import (
	"time"
)

// TimeEntry is the persisted normalized record from either system, keyed by
// (source, source_id). Rows are written once per fetch and only their sync
// status fields are updated afterwards.
type TimeEntry struct {
	ID uint `gorm:"primary_key" json:"id"`

	Source   string `gorm:"uniqueIndex:idx_time_entries_source_source_id,priority:1;size:50;not null" json:"source"`
	SourceId string `gorm:"uniqueIndex:idx_time_entries_source_source_id,priority:2;size:100;not null" json:"source_id"`

	TicketReference string `gorm:"index;size:50" json:"ticket_reference"`
	TicketId        *int   `json:"ticket_id"`
	Description     string `gorm:"type:text" json:"description"`

	DurationSeconds int        `gorm:"not null" json:"duration_seconds"`
	BeginTime       *time.Time `json:"begin_time"`
	EndTime         *time.Time `json:"end_time"`
	EntryDate       time.Time  `gorm:"index;type:date;not null" json:"entry_date"`

	CustomerId   *int   `json:"customer_id"`
	CustomerName string `gorm:"size:255" json:"customer_name"`

	ActivityTypeId *int   `json:"activity_type_id"`
	ActivityName   string `gorm:"size:100" json:"activity_name"`

	SyncStatus string `gorm:"index;size:50;not null;default:pending" json:"sync_status"`
	SyncError  string `gorm:"type:text" json:"sync_error"`
	TargetId   *int   `json:"target_id"`
	SyncedAt   *time.Time `json:"synced_at"`

	TagsJSON []byte `gorm:"type:json" json:"tags"`

	SourceCreatedAt *time.Time `json:"source_created_at"`
	SourceUpdatedAt *time.Time `json:"source_updated_at"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
