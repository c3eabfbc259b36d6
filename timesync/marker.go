package timesync

import (
	"fmt"
	"strconv"
	"strings"
)

// Every record this engine creates in the target system starts its
// description with a deterministic marker:
//
//	SRC:T<ticket_id>|TA:<source_record_id>
//
// The marker is what makes re-runs safe: before creating, the pipeline
// searches the target window for a record whose description begins with the
// exact marker of the candidate.

const (
	markerTicketPrefix = "SRC:T"
	markerSourcePrefix = "TA:"
	markerSeparator    = "|"
)

func Marker(ticketId int, sourceId string) string {
	return fmt.Sprintf("%s%d%s%s%s", markerTicketPrefix, ticketId, markerSeparator, markerSourcePrefix, sourceId)
}

// ParseMarker extracts the marker from the start of a description.
// Returns ok=false when the description does not begin with a marker.
func ParseMarker(description string) (ticketId int, sourceId string, ok bool) {
	if !strings.HasPrefix(description, markerTicketPrefix) {
		return 0, "", false
	}
	rest := description[len(markerTicketPrefix):]
	sep := strings.Index(rest, markerSeparator)
	if sep <= 0 {
		return 0, "", false
	}
	ticketId, err := strconv.Atoi(rest[:sep])
	if err != nil {
		return 0, "", false
	}
	rest = rest[sep+len(markerSeparator):]
	if !strings.HasPrefix(rest, markerSourcePrefix) {
		return 0, "", false
	}
	rest = rest[len(markerSourcePrefix):]
	// The source id runs to the first whitespace (descriptions append
	// free text after the marker).
	if i := strings.IndexAny(rest, " \t\n"); i >= 0 {
		rest = rest[:i]
	}
	if rest == "" {
		return 0, "", false
	}
	return ticketId, rest, true
}

// HasMarkerPrefix reports whether a description begins with the exact
// marker for the given record.
func HasMarkerPrefix(description string, rec *NormalizedRecord) bool {
	marker := Marker(rec.TicketId, rec.SourceId)
	if description == marker {
		return true
	}
	return strings.HasPrefix(description, marker+" ")
}

// MarkedDescription renders the description the engine writes to the
// target system: marker first, then the human text.
func MarkedDescription(rec *NormalizedRecord) string {
	marker := Marker(rec.TicketId, rec.SourceId)
	text := strings.TrimSpace(rec.Description)
	if text == "" {
		return marker
	}
	return marker + " " + text
}
