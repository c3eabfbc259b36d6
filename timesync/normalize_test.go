package timesync

import (
	"testing"
	"time"
)

func TestNormalizeZammadEntry(t *testing.T) {
	raw := &ZammadTimeAccounting{
		Id:           917,
		TicketId:     2842,
		TicketNumber: "2842",
		TicketTitle:  "Printer down",
		TimeUnit:     "15.5",
		TypeId:       3,
		TypeName:     "Remote",
		OrgId:        12,
		OrgName:      "ACME GmbH",
		Comment:      " replaced driver ",
		CreatedAt:    "2025-03-10T09:07:00",
	}

	rec, err := NormalizeZammadEntry(raw)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Source != SystemZammad || rec.SourceId != "917" {
		t.Fatalf("bad identity: %+v", rec)
	}
	if rec.DurationSeconds != 930 {
		t.Fatalf("15.5 min should be 930s, got %d", rec.DurationSeconds)
	}
	if rec.TicketReference != "#2842" {
		t.Fatalf("ticket number should gain # prefix, got %q", rec.TicketReference)
	}
	if rec.Description != "replaced driver" {
		t.Fatalf("comment should be trimmed, got %q", rec.Description)
	}
	wantDate := time.Date(2025, 3, 10, 0, 0, 0, 0, time.Local)
	if !rec.EntryDate.Equal(wantDate) {
		t.Fatalf("entry date %s, want %s", rec.EntryDate, wantDate)
	}
}

func TestNormalizeZammadEntryRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		raw  ZammadTimeAccounting
	}{
		{"bad time unit", ZammadTimeAccounting{Id: 1, TimeUnit: "abc", CreatedAt: "2025-03-10T09:00:00"}},
		{"negative duration", ZammadTimeAccounting{Id: 1, TimeUnit: "-5", CreatedAt: "2025-03-10T09:00:00"}},
		{"bad created_at", ZammadTimeAccounting{Id: 1, TimeUnit: "15", CreatedAt: "yesterday"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NormalizeZammadEntry(&tc.raw); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestNormalizeKimaiEntry(t *testing.T) {
	raw := &KimaiTimesheet{
		Id:          55,
		Begin:       "2025-03-10T09:00:00",
		End:         "2025-03-10T09:15:00",
		Description: "SRC:T2842|TA:917 replaced driver",
		ProjectName: "Ticket #2842 - Printer down",
		Duration:    900,
	}

	rec, err := NormalizeKimaiEntry(raw)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Source != SystemKimai || rec.SourceId != "55" {
		t.Fatalf("bad identity: %+v", rec)
	}
	if rec.TicketId != 2842 {
		t.Fatalf("ticket id should come from the marker, got %d", rec.TicketId)
	}
	if rec.TicketReference != "#2842" {
		t.Fatalf("ticket reference should come from the project name, got %q", rec.TicketReference)
	}
	if rec.ProjectName != "Ticket #2842 - Printer down" {
		t.Fatalf("project name should be carried over, got %q", rec.ProjectName)
	}
	if rec.Begin == nil || rec.End == nil {
		t.Fatal("begin/end must be set")
	}
}

func TestNormalizeKimaiEntryDerivesDuration(t *testing.T) {
	raw := &KimaiTimesheet{
		Id:    55,
		Begin: "2025-03-10T09:00:00",
		End:   "2025-03-10T09:30:00",
	}
	rec, err := NormalizeKimaiEntry(raw)
	if err != nil {
		t.Fatal(err)
	}
	if rec.DurationSeconds != 1800 {
		t.Fatalf("duration should be derived from begin/end, got %d", rec.DurationSeconds)
	}
}

func TestNormalizeKimaiEntryRejectsInvertedRange(t *testing.T) {
	raw := &KimaiTimesheet{
		Id:    55,
		Begin: "2025-03-10T09:30:00",
		End:   "2025-03-10T09:00:00",
	}
	if _, err := NormalizeKimaiEntry(raw); err == nil {
		t.Fatal("expected error for end before begin")
	}
}

func TestTicketReferenceFromProject(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Ticket #2842 - Printer down", "#2842"},
		{"#7", "#7"},
		{"No ticket here", ""},
		{"Trailing hash #", ""},
	}
	for _, tc := range cases {
		if got := ticketReferenceFromProject(tc.in); got != tc.want {
			t.Errorf("ticketReferenceFromProject(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
