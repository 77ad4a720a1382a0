package kds

import "time"

// Pure time-budget helpers. No state of their own; every caller passes its
// own notion of now so the escalation sweep and tests stay deterministic.

// ElapsedMinutes returns whole minutes since the item was received.
func ElapsedMinutes(receivedAt, now time.Time) int {
	if now.Before(receivedAt) {
		return 0
	}
	return int(now.Sub(receivedAt) / time.Minute)
}

// RemainingMinutes returns the unspent part of the item's budget. Negative
// once the estimate is blown.
func RemainingMinutes(receivedAt time.Time, estimatedMinutes int, now time.Time) int {
	return estimatedMinutes - ElapsedMinutes(receivedAt, now)
}

// IsOverdue reports whether the elapsed time has reached the item's budget
// plus the station's alert threshold.
func IsOverdue(receivedAt time.Time, estimatedMinutes, thresholdMinutes int, now time.Time) bool {
	return ElapsedMinutes(receivedAt, now) >= estimatedMinutes+thresholdMinutes
}

// PrepDuration returns completed-started when both timestamps are set.
func PrepDuration(startedAt, completedAt *time.Time) (time.Duration, bool) {
	if startedAt == nil || completedAt == nil {
		return 0, false
	}
	if completedAt.Before(*startedAt) {
		return 0, false
	}
	return completedAt.Sub(*startedAt), true
}
