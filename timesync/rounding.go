package timesync

import "time"

// The target system can be configured to round timesheet begin/end/duration
// before persisting. When such a rule is active, a source record can only
// be matched against the target after applying the same rounding, otherwise
// legitimately synced records look like conflicts on every pass.

type RoundingMode string

const (
	RoundNearest RoundingMode = "nearest"
	RoundFloor   RoundingMode = "floor"
	RoundCeiling RoundingMode = "ceiling"
)

// RoundingRule mirrors the target system's timesheet rounding
// configuration. Granularities are minutes; zero disables rounding for
// that field. An empty Weekdays list means the rule applies every day.
type RoundingRule struct {
	Mode            RoundingMode
	BeginMinutes    int
	EndMinutes      int
	DurationMinutes int
	Weekdays        []time.Weekday
}

func (r *RoundingRule) AppliesOn(day time.Weekday) bool {
	if len(r.Weekdays) == 0 {
		return true
	}
	for _, wd := range r.Weekdays {
		if wd == day {
			return true
		}
	}
	return false
}

// RoundBegin rounds a begin timestamp to the configured granularity.
func (r *RoundingRule) RoundBegin(t time.Time) time.Time {
	return roundTime(t, r.BeginMinutes, r.Mode)
}

// RoundEnd rounds an end timestamp to the configured granularity.
func (r *RoundingRule) RoundEnd(t time.Time) time.Time {
	return roundTime(t, r.EndMinutes, r.Mode)
}

// RoundDuration rounds a duration to the configured granularity.
func (r *RoundingRule) RoundDuration(d time.Duration) time.Duration {
	if r.DurationMinutes <= 0 {
		return d
	}
	return roundDuration(d, time.Duration(r.DurationMinutes)*time.Minute, r.Mode)
}

func roundTime(t time.Time, minutes int, mode RoundingMode) time.Time {
	if minutes <= 0 {
		return t
	}
	granularity := time.Duration(minutes) * time.Minute
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	sinceMidnight := t.Sub(midnight)
	return midnight.Add(roundDuration(sinceMidnight, granularity, mode))
}

func roundDuration(d, granularity time.Duration, mode RoundingMode) time.Duration {
	if granularity <= 0 {
		return d
	}
	floor := d - (d % granularity)
	if floor == d {
		return d
	}
	switch mode {
	case RoundFloor:
		return floor
	case RoundCeiling:
		return floor + granularity
	default: // nearest
		if d-floor >= granularity/2 {
			return floor + granularity
		}
		return floor
	}
}
