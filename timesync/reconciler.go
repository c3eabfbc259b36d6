package timesync

import "time"

type OutcomeStatus string

const (
	StatusMatch    OutcomeStatus = "MATCH"
	StatusConflict OutcomeStatus = "CONFLICT"
	StatusMissing  OutcomeStatus = "MISSING"
	StatusOrphan   OutcomeStatus = "ORPHAN"
)

// Outcome is the reconciliation verdict for one record. MATCH, CONFLICT
// and MISSING carry the source record; ORPHAN carries only the target.
type Outcome struct {
	Status    OutcomeStatus
	Source    *NormalizedRecord
	Target    *NormalizedRecord
	MatchedBy string
	Reason    Reason
}

// MatchConfig carries the tunables of the matcher chain. Zero values for
// the tolerances disable the corresponding matcher.
type MatchConfig struct {
	DurationTolerance time.Duration
	CoarseThreshold   time.Duration
	Rounding          *RoundingRule
}

type matcher struct {
	name string
	fn   func(cfg MatchConfig, src, tgt *NormalizedRecord) bool
}

// Matchers run strictest first. The first one that accepts a pair wins;
// later matchers never see a target that an earlier matcher consumed.
var matchers = []matcher{
	{"identity", matchByIdentity},
	{"rounding", matchByRounding},
	{"tolerant", matchByTolerance},
	{"coarse", matchByCoarseDate},
}

// Reconcile pairs source records against target records and classifies
// every record on both sides. Pure function: no I/O, deterministic for a
// given input order. Each target is consumed by at most one source.
func Reconcile(source, target []NormalizedRecord, cfg MatchConfig) []Outcome {
	outcomes := make([]Outcome, 0, len(source)+len(target))
	used := make([]bool, len(target))

	for i := range source {
		src := &source[i]
		matched := false

		for _, m := range matchers {
			for j := range target {
				if used[j] {
					continue
				}
				if m.fn(cfg, src, &target[j]) {
					used[j] = true
					outcomes = append(outcomes, Outcome{
						Status:    StatusMatch,
						Source:    src,
						Target:    &target[j],
						MatchedBy: m.name,
					})
					matched = true
					break
				}
			}
			if matched {
				break
			}
		}
		if matched {
			continue
		}

		// No matcher accepted the pair. A near-miss on the same ticket is
		// a conflict; otherwise the record is missing from the target.
		if out, ok := conflictCandidate(cfg, src, target, used); ok {
			outcomes = append(outcomes, out)
			continue
		}
		outcomes = append(outcomes, Outcome{Status: StatusMissing, Source: src})
	}

	for j := range target {
		if !used[j] {
			outcomes = append(outcomes, Outcome{Status: StatusOrphan, Target: &target[j]})
		}
	}
	return outcomes
}

// matchByIdentity recognizes a target whose description carries the exact
// marker of the source record. This is the only matcher that survives
// edits to times or durations on either side.
func matchByIdentity(_ MatchConfig, src, tgt *NormalizedRecord) bool {
	_, sourceId, ok := ParseMarker(tgt.Description)
	return ok && sourceId == src.SourceId
}

// matchByRounding replays the target system's rounding rule on the source
// record before comparing. Without this a rounded target looks like a
// mismatch on every pass.
func matchByRounding(cfg MatchConfig, src, tgt *NormalizedRecord) bool {
	rule := cfg.Rounding
	if rule == nil || src.Begin == nil || tgt.Begin == nil {
		return false
	}
	if !sameTicket(src, tgt) {
		return false
	}
	if !rule.AppliesOn(src.Begin.Weekday()) {
		return false
	}
	roundedBegin := rule.RoundBegin(*src.Begin)
	roundedDuration := rule.RoundDuration(src.Duration())
	if absDuration(roundedBegin.Sub(*tgt.Begin)) > cfg.DurationTolerance {
		return false
	}
	return absDuration(roundedDuration-tgt.Duration()) <= cfg.DurationTolerance
}

// matchByTolerance accepts same ticket, same begin, and a duration gap
// within the configured tolerance.
func matchByTolerance(cfg MatchConfig, src, tgt *NormalizedRecord) bool {
	if src.Begin == nil || tgt.Begin == nil {
		return false
	}
	if !sameTicket(src, tgt) || !src.Begin.Equal(*tgt.Begin) {
		return false
	}
	return durationDiff(src, tgt) <= cfg.DurationTolerance
}

// matchByCoarseDate accepts same ticket and same entry date when the
// durations are close. Catches entries whose begin time was edited by
// hand in the target system.
func matchByCoarseDate(cfg MatchConfig, src, tgt *NormalizedRecord) bool {
	if !sameTicket(src, tgt) || !sameEntryDate(src, tgt) {
		return false
	}
	return durationDiff(src, tgt) < cfg.CoarseThreshold
}

// conflictCandidate looks for an unconsumed target on the same ticket
// that is close enough to be the same work but failed every matcher.
func conflictCandidate(cfg MatchConfig, src *NormalizedRecord, target []NormalizedRecord, used []bool) (Outcome, bool) {
	for j := range target {
		if used[j] || !sameTicket(src, &target[j]) {
			continue
		}
		tgt := &target[j]
		if src.Begin != nil && tgt.Begin != nil && src.Begin.Equal(*tgt.Begin) &&
			durationDiff(src, tgt) > cfg.DurationTolerance {
			used[j] = true
			return Outcome{
				Status: StatusConflict,
				Source: src,
				Target: tgt,
				Reason: TimeMismatchReason{
					TicketNumber:  src.TicketReference,
					SourceSeconds: src.DurationSeconds,
					TargetSeconds: tgt.DurationSeconds,
				},
			}, true
		}
		if sameEntryDate(src, tgt) {
			used[j] = true
			return Outcome{
				Status: StatusConflict,
				Source: src,
				Target: tgt,
				Reason: DuplicateReason{
					TicketNumber: src.TicketReference,
					EntryDate:    src.EntryDate,
				},
			}, true
		}
	}
	return Outcome{}, false
}
