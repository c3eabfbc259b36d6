package timesync

import (
	"fmt"
	"time"
)

// Conflict reasons are a closed tagged union: each kind carries its own
// typed context and the single Render switch below is the only place a
// reason becomes human text. Adding a kind without extending Render is a
// compile-time hole the tests cover.

type ReasonCode string

const (
	ReasonUnmappedActivity         ReasonCode = "UNMAPPED_ACTIVITY"
	ReasonDuplicate                ReasonCode = "DUPLICATE"
	ReasonTimeMismatch             ReasonCode = "TIME_MISMATCH"
	ReasonProjectOrCustomerMissing ReasonCode = "PROJECT_OR_CUSTOMER_MISSING"
	ReasonLockedOrExported         ReasonCode = "LOCKED_OR_EXPORTED"
	ReasonConflict                 ReasonCode = "CONFLICT"
	ReasonCreationError            ReasonCode = "CREATION_ERROR"
	ReasonOther                    ReasonCode = "OTHER"
)

type Reason interface {
	Code() ReasonCode
	isReason()
}

type UnmappedActivityReason struct {
	ActivityName string
	SourceTypeId int
}

type DuplicateReason struct {
	TicketNumber string
	EntryDate    time.Time
}

type TimeMismatchReason struct {
	TicketNumber  string
	SourceSeconds int
	TargetSeconds int
}

type ProjectOrCustomerMissingReason struct {
	OrgName string
}

type LockedOrExportedReason struct {
	TargetId int
}

type EntryConflictReason struct {
	TicketNumber string
	EntryDate    time.Time
}

type CreationErrorReason struct {
	Detail string
}

type OtherReason struct {
	Detail string
}

func (UnmappedActivityReason) Code() ReasonCode         { return ReasonUnmappedActivity }
func (DuplicateReason) Code() ReasonCode                { return ReasonDuplicate }
func (TimeMismatchReason) Code() ReasonCode             { return ReasonTimeMismatch }
func (ProjectOrCustomerMissingReason) Code() ReasonCode { return ReasonProjectOrCustomerMissing }
func (LockedOrExportedReason) Code() ReasonCode         { return ReasonLockedOrExported }
func (EntryConflictReason) Code() ReasonCode            { return ReasonConflict }
func (CreationErrorReason) Code() ReasonCode            { return ReasonCreationError }
func (OtherReason) Code() ReasonCode                    { return ReasonOther }

func (UnmappedActivityReason) isReason()         {}
func (DuplicateReason) isReason()                {}
func (TimeMismatchReason) isReason()             {}
func (ProjectOrCustomerMissingReason) isReason() {}
func (LockedOrExportedReason) isReason()         {}
func (EntryConflictReason) isReason()            {}
func (CreationErrorReason) isReason()            {}
func (OtherReason) isReason()                    {}

// Render produces the stored human-readable explanation for a reason.
func Render(r Reason) string {
	switch v := r.(type) {
	case UnmappedActivityReason:
		return fmt.Sprintf("Activity %q not mapped to Kimai. Zammad type ID: %d.", v.ActivityName, v.SourceTypeId)
	case DuplicateReason:
		return fmt.Sprintf("Duplicate entry for ticket %s on %s.", v.TicketNumber, v.EntryDate.Format("2006-01-02"))
	case TimeMismatchReason:
		return fmt.Sprintf("Time duration mismatch for ticket %s: Zammad %d min vs Kimai %d min.",
			v.TicketNumber, v.SourceSeconds/60, v.TargetSeconds/60)
	case ProjectOrCustomerMissingReason:
		return fmt.Sprintf("Missing project or customer mapping for organization %q.", v.OrgName)
	case LockedOrExportedReason:
		return fmt.Sprintf("Kimai entry locked or exported, cannot update: ID %d.", v.TargetId)
	case EntryConflictReason:
		return fmt.Sprintf("Conflict between Zammad and Kimai entries for ticket %s on %s.",
			v.TicketNumber, v.EntryDate.Format("2006-01-02"))
	case CreationErrorReason:
		return fmt.Sprintf("Error creating timesheet in Kimai: %s.", v.Detail)
	case OtherReason:
		return fmt.Sprintf("Other conflict - manual review required: %s.", v.Detail)
	default:
		return fmt.Sprintf("Unknown conflict reason %q.", r.Code())
	}
}
