package utils

import (
	"testing"
	"time"
)

func TestNilIfEmpty(t *testing.T) {
	if NilIfEmpty("") != nil {
		t.Fatal("empty string should map to nil")
	}
	if got := NilIfEmpty("x"); got == nil || *got != "x" {
		t.Fatalf("got %v", got)
	}
	if NilIfEmpty(0) != nil {
		t.Fatal("zero int should map to nil")
	}
}

func TestUniqueSlice(t *testing.T) {
	got := UniqueSlice([]string{"a", "b", "a", "c", "b"})
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestConvertToLocalTime(t *testing.T) {
	utc := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	berlin := ConvertToLocalTime(utc, "Europe/Berlin")
	if !berlin.Equal(utc) {
		t.Fatal("conversion must not change the instant")
	}
	if berlin.Hour() != 13 {
		t.Fatalf("berlin wall clock %d, want 13", berlin.Hour())
	}
	// Unknown zones fall back to the input.
	if got := ConvertToLocalTime(utc, "Nowhere/Invalid"); !got.Equal(utc) {
		t.Fatal("invalid zone should return the input time")
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := SplitAndTrim(" a , b ,, c ")
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Fatalf("got %v", got)
	}
	if SplitAndTrim("  ") != nil {
		t.Fatal("blank input should return nil")
	}
}
