package timesync

import (
	"testing"
	"time"
)

func testMatchConfig() MatchConfig {
	return MatchConfig{
		DurationTolerance: 60 * time.Second,
		CoarseThreshold:   60 * time.Second,
	}
}

func sourceRecord(t *testing.T, id, ticket, begin string, durationSeconds int) NormalizedRecord {
	t.Helper()
	b := mustTime(t, begin)
	return NormalizedRecord{
		Source:          SystemZammad,
		SourceId:        id,
		TicketReference: ticket,
		DurationSeconds: durationSeconds,
		Begin:           &b,
		EntryDate:       time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, b.Location()),
		CreatedAt:       b,
	}
}

func targetRecord(t *testing.T, id, ticket, begin string, durationSeconds int) NormalizedRecord {
	t.Helper()
	rec := sourceRecord(t, id, ticket, begin, durationSeconds)
	rec.Source = SystemKimai
	return rec
}

func singleOutcome(t *testing.T, outcomes []Outcome) Outcome {
	t.Helper()
	if len(outcomes) != 1 {
		t.Fatalf("expected 1 outcome, got %d: %+v", len(outcomes), outcomes)
	}
	return outcomes[0]
}

func TestReconcileIdentityMatchSurvivesEdits(t *testing.T) {
	src := sourceRecord(t, "917", "#1", "2025-03-10T09:00:00", 900)
	// Target was re-timed and re-sized by hand but still carries the marker.
	tgt := targetRecord(t, "55", "#1", "2025-03-10T14:30:00", 3600)
	tgt.Description = "SRC:T1|TA:917 moved to the afternoon"

	out := singleOutcome(t, filterStatus(Reconcile([]NormalizedRecord{src}, []NormalizedRecord{tgt}, testMatchConfig()), StatusMatch))
	if out.MatchedBy != "identity" {
		t.Fatalf("matched by %q, want identity", out.MatchedBy)
	}
}

func TestReconcileRoundingAwareMatch(t *testing.T) {
	cfg := testMatchConfig()
	cfg.Rounding = &RoundingRule{Mode: RoundNearest, BeginMinutes: 15, EndMinutes: 15, DurationMinutes: 15}

	src := sourceRecord(t, "1", "#7", "2025-03-10T09:07:00", 932)
	tgt := targetRecord(t, "2", "#7", "2025-03-10T09:00:00", 900)

	out := singleOutcome(t, filterStatus(Reconcile([]NormalizedRecord{src}, []NormalizedRecord{tgt}, cfg), StatusMatch))
	if out.MatchedBy != "rounding" {
		t.Fatalf("matched by %q, want rounding", out.MatchedBy)
	}
}

func TestReconcileTolerantMatch(t *testing.T) {
	src := sourceRecord(t, "1", "#7", "2025-03-10T09:00:00", 900)
	tgt := targetRecord(t, "2", "#7", "2025-03-10T09:00:00", 930)

	out := singleOutcome(t, filterStatus(Reconcile([]NormalizedRecord{src}, []NormalizedRecord{tgt}, testMatchConfig()), StatusMatch))
	if out.MatchedBy != "tolerant" {
		t.Fatalf("matched by %q, want tolerant", out.MatchedBy)
	}
}

func TestReconcileCoarseDateMatch(t *testing.T) {
	src := sourceRecord(t, "1", "#7", "2025-03-10T09:00:00", 900)
	// Begin was edited by hand; ticket, date and duration still line up.
	tgt := targetRecord(t, "2", "#7", "2025-03-10T16:45:00", 930)

	out := singleOutcome(t, filterStatus(Reconcile([]NormalizedRecord{src}, []NormalizedRecord{tgt}, testMatchConfig()), StatusMatch))
	if out.MatchedBy != "coarse" {
		t.Fatalf("matched by %q, want coarse", out.MatchedBy)
	}
}

func TestReconcileTimeMismatchConflict(t *testing.T) {
	src := sourceRecord(t, "1", "#7", "2025-03-10T09:00:00", 1800)
	tgt := targetRecord(t, "2", "#7", "2025-03-10T09:00:00", 900)

	out := singleOutcome(t, filterStatus(Reconcile([]NormalizedRecord{src}, []NormalizedRecord{tgt}, testMatchConfig()), StatusConflict))
	if out.Reason == nil || out.Reason.Code() != ReasonTimeMismatch {
		t.Fatalf("got reason %+v, want TIME_MISMATCH", out.Reason)
	}
	if out.Target == nil {
		t.Fatal("conflict must carry the target record")
	}
}

func TestReconcileDuplicateConflict(t *testing.T) {
	src := sourceRecord(t, "1", "#7", "2025-03-10T09:00:00", 3600)
	tgt := targetRecord(t, "2", "#7", "2025-03-10T14:00:00", 900)

	out := singleOutcome(t, filterStatus(Reconcile([]NormalizedRecord{src}, []NormalizedRecord{tgt}, testMatchConfig()), StatusConflict))
	if out.Reason == nil || out.Reason.Code() != ReasonDuplicate {
		t.Fatalf("got reason %+v, want DUPLICATE", out.Reason)
	}
}

func TestReconcileMissingAndOrphan(t *testing.T) {
	src := sourceRecord(t, "1", "#7", "2025-03-10T09:00:00", 900)
	tgt := targetRecord(t, "2", "#99", "2025-03-12T10:00:00", 600)

	outcomes := Reconcile([]NormalizedRecord{src}, []NormalizedRecord{tgt}, testMatchConfig())
	if len(filterStatus(outcomes, StatusMissing)) != 1 {
		t.Fatalf("expected one MISSING, got %+v", outcomes)
	}
	orphans := filterStatus(outcomes, StatusOrphan)
	if len(orphans) != 1 || orphans[0].Target.SourceId != "2" {
		t.Fatalf("expected one ORPHAN for target 2, got %+v", orphans)
	}
}

func TestReconcileTargetConsumedOnce(t *testing.T) {
	srcA := sourceRecord(t, "1", "#7", "2025-03-10T09:00:00", 900)
	srcB := sourceRecord(t, "2", "#7", "2025-03-10T09:00:00", 900)
	tgt := targetRecord(t, "10", "#7", "2025-03-10T09:00:00", 900)

	outcomes := Reconcile([]NormalizedRecord{srcA, srcB}, []NormalizedRecord{tgt}, testMatchConfig())
	if got := len(filterStatus(outcomes, StatusMatch)); got != 1 {
		t.Fatalf("expected exactly one MATCH, got %d", got)
	}
	if got := len(filterStatus(outcomes, StatusMissing)); got != 1 {
		t.Fatalf("second source must be MISSING, got %+v", outcomes)
	}
}

func TestReconcileEmptyInputs(t *testing.T) {
	if got := Reconcile(nil, nil, testMatchConfig()); len(got) != 0 {
		t.Fatalf("expected no outcomes, got %+v", got)
	}
}

func filterStatus(outcomes []Outcome, status OutcomeStatus) []Outcome {
	var out []Outcome
	for _, o := range outcomes {
		if o.Status == status {
			out = append(out, o)
		}
	}
	return out
}
