// Package schedule implements the time-interval conflict detection the
// calendar services run before publishing an event-creation request. It is
// pure logic: route handlers call it in-process, never over the bus.
package schedule

import "time"

// Interval is a half-open time range [Start, End) belonging to one calendar
// owner. Callers enforce Start < End before an interval enters the detector.
type Interval struct {
	Start   time.Time `json:"start_time"`
	End     time.Time `json:"end_time"`
	OwnerID string    `json:"owner_id"`
	Label   string    `json:"label"`
}

// Overlaps reports whether two half-open intervals intersect. Intervals that
// merely touch at a boundary do not overlap: back-to-back events are allowed.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && a.End.After(b.Start)
}

// Conflicts returns every existing interval that overlaps the candidate, in
// input order. An empty result means the candidate is schedulable.
func Conflicts(candidate Interval, existing []Interval) []Interval {
	var conflicting []Interval
	for _, iv := range existing {
		if Overlaps(candidate, iv) {
			conflicting = append(conflicting, iv)
		}
	}
	return conflicting
}
