package timesync

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Wire shapes of the two systems and their translation into
// NormalizedRecord. Both systems exchange wall-clock local timestamps
// without a zone suffix.

const localTimeLayout = "2006-01-02T15:04:05"

// ZammadTimeAccounting is one time accounting row as the ticketing system
// returns it. TimeUnit is decimal minutes serialized as a string.
type ZammadTimeAccounting struct {
	Id           int    `json:"id"`
	TicketId     int    `json:"ticket_id"`
	TicketNumber string `json:"ticket_number"`
	TicketTitle  string `json:"ticket_title"`
	TimeUnit     string `json:"time_unit"`
	TypeId       int    `json:"type_id"`
	TypeName     string `json:"type_name"`
	OrgId        int    `json:"organization_id"`
	OrgName      string `json:"organization_name"`
	CustomerId   int    `json:"customer_id"`
	CustomerName string `json:"customer_name"`
	UserEmail    string `json:"created_by_email"`
	Comment      string `json:"comment"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// KimaiTimesheet is one timesheet row as the time-tracking system returns
// it. Begin/End are local timestamps without zone suffix.
type KimaiTimesheet struct {
	Id           int      `json:"id"`
	Begin        string   `json:"begin"`
	End          string   `json:"end"`
	Duration     int      `json:"duration"`
	Description  string   `json:"description"`
	ProjectId    int      `json:"project"`
	ProjectName  string   `json:"project_name"`
	CustomerId   int      `json:"customer"`
	CustomerName string   `json:"customer_name"`
	ActivityId   int      `json:"activity"`
	ActivityName string   `json:"activity_name"`
	Tags         []string `json:"tags"`
	Exported     bool     `json:"exported"`
}

// NormalizeZammadEntry converts a raw time accounting row. TimeUnit is
// minutes and may carry a fraction; it is converted to whole seconds.
func NormalizeZammadEntry(raw *ZammadTimeAccounting) (*NormalizedRecord, error) {
	minutes, err := decimal.NewFromString(strings.TrimSpace(raw.TimeUnit))
	if err != nil {
		return nil, fmt.Errorf("time accounting %d: bad time_unit %q: %w", raw.Id, raw.TimeUnit, err)
	}
	seconds := minutes.Mul(decimal.NewFromInt(60)).Round(0).IntPart()
	if seconds < 0 {
		return nil, fmt.Errorf("time accounting %d: negative duration %s min", raw.Id, raw.TimeUnit)
	}
	createdAt, err := parseLocalTime(raw.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("time accounting %d: bad created_at: %w", raw.Id, err)
	}
	updatedAt := createdAt
	if raw.UpdatedAt != "" {
		if t, err := parseLocalTime(raw.UpdatedAt); err == nil {
			updatedAt = t
		}
	}

	ref := raw.TicketNumber
	if ref != "" && !strings.HasPrefix(ref, "#") {
		ref = "#" + ref
	}

	return &NormalizedRecord{
		Source:          SystemZammad,
		SourceId:        strconv.Itoa(raw.Id),
		TicketReference: ref,
		TicketId:        raw.TicketId,
		TicketTitle:     raw.TicketTitle,
		OrgId:           raw.OrgId,
		OrgName:         raw.OrgName,
		CustomerId:      raw.CustomerId,
		CustomerName:    raw.CustomerName,
		Description:     strings.TrimSpace(raw.Comment),
		DurationSeconds: int(seconds),
		EntryDate:       dateOf(createdAt),
		ActivityTypeId:  raw.TypeId,
		ActivityName:    raw.TypeName,
		UserEmail:       raw.UserEmail,
		CreatedAt:       createdAt,
		UpdatedAt:       updatedAt,
	}, nil
}

// NormalizeKimaiEntry converts a raw timesheet row. When the description
// starts with a sync marker the ticket fields are recovered from it.
func NormalizeKimaiEntry(raw *KimaiTimesheet) (*NormalizedRecord, error) {
	begin, err := parseLocalTime(raw.Begin)
	if err != nil {
		return nil, fmt.Errorf("timesheet %d: bad begin: %w", raw.Id, err)
	}
	rec := &NormalizedRecord{
		Source:          SystemKimai,
		SourceId:        strconv.Itoa(raw.Id),
		CustomerId:      raw.CustomerId,
		CustomerName:    raw.CustomerName,
		ProjectName:     raw.ProjectName,
		Description:     raw.Description,
		DurationSeconds: raw.Duration,
		Begin:           &begin,
		EntryDate:       dateOf(begin),
		ActivityTypeId:  raw.ActivityId,
		ActivityName:    raw.ActivityName,
		Tags:            raw.Tags,
		CreatedAt:       begin,
		UpdatedAt:       begin,
	}
	if raw.End != "" {
		end, err := parseLocalTime(raw.End)
		if err != nil {
			return nil, fmt.Errorf("timesheet %d: bad end: %w", raw.Id, err)
		}
		if end.Before(begin) {
			return nil, fmt.Errorf("timesheet %d: end %s before begin %s", raw.Id, raw.End, raw.Begin)
		}
		rec.End = &end
		if rec.DurationSeconds == 0 {
			rec.DurationSeconds = int(end.Sub(begin) / time.Second)
		}
	}
	if rec.DurationSeconds < 0 {
		return nil, fmt.Errorf("timesheet %d: negative duration %d", raw.Id, rec.DurationSeconds)
	}
	if ticketId, _, ok := ParseMarker(raw.Description); ok {
		rec.TicketId = ticketId
		rec.TicketReference = ticketReferenceFromProject(raw.ProjectName)
	}
	return rec, nil
}

// parseLocalTime accepts the systems' zone-less local format and, for
// robustness against proxies that add an offset, RFC 3339. The offset is
// dropped: both sides compare wall-clock values.
func parseLocalTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(localTimeLayout, s, time.Local); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.Local), nil
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// ticketReferenceFromProject recovers "#<number>" from a project named
// after its ticket, e.g. "Ticket #2842 - Printer down".
func ticketReferenceFromProject(name string) string {
	i := strings.Index(name, "#")
	if i < 0 {
		return ""
	}
	rest := name[i+1:]
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 {
		return ""
	}
	return "#" + rest[:end]
}
