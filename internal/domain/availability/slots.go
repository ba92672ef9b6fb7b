package availability

import (
	"sort"
	"time"

	"github.com/otikev/health-app/internal/domain/interval"
)

// DefaultSlotStep is the spacing between candidate slot starts. It is
// independent of the slot length so patients can start at any 5-minute mark.
const DefaultSlotStep = 5 * time.Minute

type SlotOptions struct {
	Step        time.Duration
	Deduplicate bool
}

// GenerateSlots enumerates open slots of the given length on day.
//
// Each window is clipped to day, then a cursor slides across it in opts.Step
// increments; a candidate [c, c+length) is kept when it fits in the clipped
// window and overlaps none of booked. Results are grouped by window (ordered by
// window start) and chronological within a window. Identical slots produced by
// overlapping windows are kept unless opts.Deduplicate is set.
func GenerateSlots(
	day interval.TimeInterval,
	windows []*Window,
	booked []interval.TimeInterval,
	length time.Duration,
	opts SlotOptions,
) ([]interval.TimeInterval, error) {
	if length <= 0 {
		return nil, ErrInvalidDuration
	}
	step := opts.Step
	if step <= 0 {
		step = DefaultSlotStep
	}

	ordered := make([]*Window, len(windows))
	copy(ordered, windows)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].StartTime.Equal(ordered[j].StartTime) {
			return ordered[i].StartTime.Before(ordered[j].StartTime)
		}
		if !ordered[i].EndTime.Equal(ordered[j].EndTime) {
			return ordered[i].EndTime.Before(ordered[j].EndTime)
		}
		return ordered[i].ID.String() < ordered[j].ID.String()
	})

	slots := make([]interval.TimeInterval, 0)
	seen := make(map[[2]int64]struct{})

	for _, w := range ordered {
		clipped, ok := w.Interval().Clip(day)
		if !ok {
			continue
		}
		for cursor := clipped.Start; !cursor.Add(length).After(clipped.End); cursor = cursor.Add(step) {
			candidate := interval.TimeInterval{Start: cursor, End: cursor.Add(length)}
			if overlapsAny(candidate, booked) {
				continue
			}
			if opts.Deduplicate {
				key := [2]int64{candidate.Start.UnixNano(), candidate.End.UnixNano()}
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
			}
			slots = append(slots, candidate)
		}
	}

	return slots, nil
}

func overlapsAny(candidate interval.TimeInterval, booked []interval.TimeInterval) bool {
	for _, b := range booked {
		if candidate.Overlaps(b) {
			return true
		}
	}
	return false
}
