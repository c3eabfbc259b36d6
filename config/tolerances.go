package config

import (
	"os"
	"strings"
	"time"
)

// Matching tolerances. The defaults are the values the original deployment
// shipped with; they are empirical and flagged for domain review, so every
// one of them can be overridden by env without a rebuild.
//
// - SYNC_DURATION_TOLERANCE_SECONDS: max duration divergence still treated
//   as the same unit of work (default 60).
// - SYNC_COARSE_THRESHOLD_SECONDS: duration divergence allowed by the
//   coarse same-ticket/same-date matcher (default 60).
// - SYNC_MARKER_WINDOW_DAYS: half-width of the idempotency search window
//   around the entry date (default 7).
func DurationTolerance() time.Duration {
	return time.Duration(intFromEnv("SYNC_DURATION_TOLERANCE_SECONDS", 60)) * time.Second
}

func CoarseMatchThreshold() time.Duration {
	return time.Duration(intFromEnv("SYNC_COARSE_THRESHOLD_SECONDS", 60)) * time.Second
}

func MarkerSearchWindowDays() int {
	return intFromEnv("SYNC_MARKER_WINDOW_DAYS", 7)
}

// IgnoreUnmappedActivities silently skips source records whose activity has
// no mapping and no default, instead of raising an UNMAPPED_ACTIVITY
// conflict.
//
// Set via env:
// - SYNC_IGNORE_UNMAPPED=true
func IgnoreUnmappedActivities() bool {
	return envBool("SYNC_IGNORE_UNMAPPED", false)
}

// NotificationConflictThreshold is the pending-conflict count above which a
// completed pass fires the notification hook.
func NotificationConflictThreshold() int {
	return intFromEnv("SYNC_NOTIFY_CONFLICT_THRESHOLD", 10)
}

func envBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}
