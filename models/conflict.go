package models

import (
	"time"
)

// Conflict is a durable disagreement between the two systems, or a failure
// to safely automate an action. Rows are created by the sync engine and
// mutated only by an explicit human resolution, which is terminal.
//
// The dedup key (ticket_reference, source_created_at, duration_seconds)
// keeps repeated passes over overlapping date windows from flooding the
// queue with copies of the same pending conflict.
type Conflict struct {
	ID uint `gorm:"primary_key" json:"id"`

	TimeEntryId *uint `gorm:"index" json:"time_entry_id"`

	ConflictType string `gorm:"index;size:50;not null" json:"conflict_type"`
	ReasonCode   string `gorm:"size:64;not null" json:"reason_code"`
	ReasonDetail string `gorm:"type:text" json:"reason_detail"`

	TicketReference string     `gorm:"index;size:50" json:"ticket_reference"`
	SourceCreatedAt *time.Time `json:"source_created_at"`
	DurationSeconds int        `gorm:"default:0;not null" json:"duration_seconds"`

	CustomerName string `gorm:"size:255" json:"customer_name"`
	ProjectName  string `gorm:"size:255" json:"project_name"`
	ActivityName string `gorm:"size:100" json:"activity_name"`
	TicketNumber string `gorm:"size:50" json:"ticket_number"`

	SourceDataJSON []byte `gorm:"type:json" json:"source_data"`
	TargetDataJSON []byte `gorm:"type:json" json:"target_data"`

	ResolutionStatus string     `gorm:"index;size:50;not null;default:pending" json:"resolution_status"`
	ResolutionAction string     `gorm:"size:50" json:"resolution_action"`
	ResolvedBy       string     `gorm:"size:100" json:"resolved_by"`
	ResolvedAt       *time.Time `json:"resolved_at"`
	Notes            string     `gorm:"type:text" json:"notes"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
