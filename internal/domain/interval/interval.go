// Package interval models half-open time ranges [Start, End).
package interval

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidInterval = errors.New("invalid time interval: end must be after start")

// TimeInterval is a half-open range [Start, End). The zero value is not valid;
// build one through New.
type TimeInterval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// New returns the interval [start, end) or ErrInvalidInterval when start >= end.
func New(start, end time.Time) (TimeInterval, error) {
	if !start.Before(end) {
		return TimeInterval{}, fmt.Errorf("%w: [%s, %s)", ErrInvalidInterval,
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return TimeInterval{Start: start, End: end}, nil
}

func (i TimeInterval) Valid() bool {
	return i.Start.Before(i.End)
}

func (i TimeInterval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Overlaps reports whether the two ranges share any instant.
// Touching ranges (a.End == b.Start) do not overlap.
func (i TimeInterval) Overlaps(other TimeInterval) bool {
	return i.Start.Before(other.End) && other.Start.Before(i.End)
}

// Contains reports whether inner lies entirely within i.
func (i TimeInterval) Contains(inner TimeInterval) bool {
	return !inner.Start.Before(i.Start) && !i.End.Before(inner.End)
}

// Clip returns the intersection of i and bounds. ok is false when they do not overlap.
func (i TimeInterval) Clip(bounds TimeInterval) (TimeInterval, bool) {
	start, end := i.Start, i.End
	if bounds.Start.After(start) {
		start = bounds.Start
	}
	if bounds.End.Before(end) {
		end = bounds.End
	}
	if !start.Before(end) {
		return TimeInterval{}, false
	}
	return TimeInterval{Start: start, End: end}, true
}

func (i TimeInterval) String() string {
	return fmt.Sprintf("[%s, %s)", i.Start.Format(time.RFC3339), i.End.Format(time.RFC3339))
}

// Day returns the calendar day containing t as [midnight, next midnight) in loc.
func Day(t time.Time, loc *time.Location) TimeInterval {
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return TimeInterval{Start: start, End: start.AddDate(0, 0, 1)}
}
