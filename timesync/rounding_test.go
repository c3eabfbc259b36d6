package timesync

import (
	"testing"
	"time"
)

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.ParseInLocation("2006-01-02T15:04:05", value, time.Local)
	if err != nil {
		t.Fatalf("bad test time %q: %v", value, err)
	}
	return parsed
}

func TestRoundBegin(t *testing.T) {
	cases := []struct {
		name    string
		mode    RoundingMode
		minutes int
		in      string
		want    string
	}{
		{"nearest down", RoundNearest, 15, "2025-03-10T09:07:00", "2025-03-10T09:00:00"},
		{"nearest up", RoundNearest, 15, "2025-03-10T09:08:00", "2025-03-10T09:15:00"},
		{"nearest tie goes up", RoundNearest, 10, "2025-03-10T09:05:00", "2025-03-10T09:10:00"},
		{"floor", RoundFloor, 15, "2025-03-10T09:14:59", "2025-03-10T09:00:00"},
		{"ceiling", RoundCeiling, 15, "2025-03-10T09:00:01", "2025-03-10T09:15:00"},
		{"already aligned", RoundCeiling, 15, "2025-03-10T09:15:00", "2025-03-10T09:15:00"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rule := RoundingRule{Mode: tc.mode, BeginMinutes: tc.minutes}
			got := rule.RoundBegin(mustTime(t, tc.in))
			want := mustTime(t, tc.want)
			if !got.Equal(want) {
				t.Fatalf("got %s, want %s", got, want)
			}
		})
	}
}

func TestRoundDuration(t *testing.T) {
	rule := RoundingRule{Mode: RoundNearest, DurationMinutes: 15}
	if got := rule.RoundDuration(932 * time.Second); got != 15*time.Minute {
		t.Fatalf("932s should round to 15m, got %s", got)
	}
	rule.Mode = RoundCeiling
	if got := rule.RoundDuration(901 * time.Second); got != 30*time.Minute {
		t.Fatalf("901s should round up to 30m, got %s", got)
	}
}

func TestRoundingDisabledFields(t *testing.T) {
	rule := RoundingRule{Mode: RoundNearest}
	in := mustTime(t, "2025-03-10T09:07:33")
	if got := rule.RoundBegin(in); !got.Equal(in) {
		t.Fatal("zero granularity must not change begin")
	}
	if got := rule.RoundDuration(932 * time.Second); got != 932*time.Second {
		t.Fatal("zero granularity must not change duration")
	}
}

func TestAppliesOn(t *testing.T) {
	all := RoundingRule{}
	if !all.AppliesOn(time.Sunday) {
		t.Fatal("empty weekday list should apply every day")
	}
	weekdaysOnly := RoundingRule{Weekdays: []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}}
	if weekdaysOnly.AppliesOn(time.Saturday) {
		t.Fatal("saturday should not apply")
	}
	if !weekdaysOnly.AppliesOn(time.Wednesday) {
		t.Fatal("wednesday should apply")
	}
}
