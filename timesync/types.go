package timesync

import "time"

// System identifies which of the two fixed systems a record came from.
// The set is closed: Zammad is the authoritative source, Kimai the target.
type System string

const (
	SystemZammad System = "zammad"
	SystemKimai  System = "kimai"
)

// NormalizedRecord is the common shape for one unit of work from either
// system. Records are built fresh on every fetch and never mutated after
// creation.
//
// Begin/End carry wall-clock local time with no timezone suffix; both
// systems exchange local timestamps.
type NormalizedRecord struct {
	Source   System
	SourceId string

	TicketReference string // e.g. "#2842"
	TicketId        int    // 0 when unknown
	TicketTitle     string

	OrgId        int
	OrgName      string
	CustomerId   int
	CustomerName string
	ProjectName  string // target side only; empty on source records

	Description     string
	DurationSeconds int
	Begin           *time.Time
	End             *time.Time
	EntryDate       time.Time // date component only

	ActivityTypeId int
	ActivityName   string

	UserEmail string
	Tags      []string

	CreatedAt time.Time // creation timestamp in the source system
	UpdatedAt time.Time
}

func (r *NormalizedRecord) Duration() time.Duration {
	return time.Duration(r.DurationSeconds) * time.Second
}

// sameTicket reports whether two records refer to the same ticket, by
// reference string when both carry one, else by numeric id.
func sameTicket(a, b *NormalizedRecord) bool {
	if a.TicketReference != "" && b.TicketReference != "" {
		return a.TicketReference == b.TicketReference
	}
	return a.TicketId != 0 && b.TicketId != 0 && a.TicketId == b.TicketId
}

func sameEntryDate(a, b *NormalizedRecord) bool {
	ay, am, ad := a.EntryDate.Date()
	by, bm, bd := b.EntryDate.Date()
	return ay == by && am == bm && ad == bd
}

func durationDiff(a, b *NormalizedRecord) time.Duration {
	d := a.Duration() - b.Duration()
	if d < 0 {
		return -d
	}
	return d
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
