package availability

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otikev/health-app/internal/domain/interval"
)

var day = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func hm(h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func window(start, end time.Time) *Window {
	return &Window{ID: uuid.New(), DoctorID: uuid.New(), StartTime: start, EndTime: end}
}

func starts(slots []interval.TimeInterval) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.Start.Format("15:04")
	}
	return out
}

func TestGenerateSlots_MorningWindowNoBookings(t *testing.T) {
	slots, err := GenerateSlots(
		interval.Day(day, time.UTC),
		[]*Window{window(hm(9, 0), hm(13, 0))},
		nil,
		30*time.Minute,
		SlotOptions{},
	)
	require.NoError(t, err)

	// 09:00, 09:05, ..., 12:30
	require.Len(t, slots, 43)
	assert.Equal(t, hm(9, 0), slots[0].Start)
	assert.Equal(t, hm(9, 5), slots[1].Start)
	assert.Equal(t, hm(12, 30), slots[len(slots)-1].Start)
	assert.Equal(t, hm(13, 0), slots[len(slots)-1].End)
	for _, s := range slots {
		assert.Equal(t, 30*time.Minute, s.Duration())
	}
}

func TestGenerateSlots_SkipsBookedRanges(t *testing.T) {
	booked := []interval.TimeInterval{{Start: hm(10, 0), End: hm(10, 30)}}

	slots, err := GenerateSlots(
		interval.Day(day, time.UTC),
		[]*Window{window(hm(9, 0), hm(13, 0))},
		booked,
		30*time.Minute,
		SlotOptions{},
	)
	require.NoError(t, err)

	got := starts(slots)
	assert.Contains(t, got, "09:30")
	assert.Contains(t, got, "10:30")
	assert.NotContains(t, got, "09:45")
	assert.NotContains(t, got, "10:00")
	assert.NotContains(t, got, "10:25")
	assert.Len(t, slots, 43-11)

	for _, s := range slots {
		assert.False(t, s.Overlaps(booked[0]), "slot %s overlaps booking", s)
	}
}

func TestGenerateSlots_InvalidDuration(t *testing.T) {
	for _, d := range []time.Duration{0, -5 * time.Minute} {
		_, err := GenerateSlots(interval.Day(day, time.UTC), nil, nil, d, SlotOptions{})
		assert.ErrorIs(t, err, ErrInvalidDuration)
	}
}

func TestGenerateSlots_NoWindowsIsEmptyNotError(t *testing.T) {
	slots, err := GenerateSlots(interval.Day(day, time.UTC), nil, nil, 30*time.Minute, SlotOptions{})
	require.NoError(t, err)
	assert.Empty(t, slots)
	assert.NotNil(t, slots)
}

func TestGenerateSlots_DurationLongerThanWindow(t *testing.T) {
	slots, err := GenerateSlots(
		interval.Day(day, time.UTC),
		[]*Window{window(hm(9, 0), hm(9, 20))},
		nil,
		30*time.Minute,
		SlotOptions{},
	)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestGenerateSlots_OverlappingWindowsKeepDuplicatesByDefault(t *testing.T) {
	windows := []*Window{
		window(hm(9, 0), hm(10, 0)),
		window(hm(9, 30), hm(10, 30)),
	}

	slots, err := GenerateSlots(interval.Day(day, time.UTC), windows, nil, 30*time.Minute, SlotOptions{})
	require.NoError(t, err)
	// 7 starts in the first window (09:00..09:30) and 7 in the second (09:30..10:00).
	require.Len(t, slots, 14)
	assert.Equal(t, "09:30", starts(slots)[6])
	assert.Equal(t, "09:30", starts(slots)[7])

	deduped, err := GenerateSlots(interval.Day(day, time.UTC), windows, nil, 30*time.Minute, SlotOptions{Deduplicate: true})
	require.NoError(t, err)
	assert.Len(t, deduped, 13)
}

func TestGenerateSlots_WindowOrderIsStable(t *testing.T) {
	afternoon := window(hm(14, 0), hm(15, 0))
	morning := window(hm(9, 0), hm(10, 0))

	a, err := GenerateSlots(interval.Day(day, time.UTC), []*Window{afternoon, morning}, nil, time.Hour, SlotOptions{})
	require.NoError(t, err)
	b, err := GenerateSlots(interval.Day(day, time.UTC), []*Window{morning, afternoon}, nil, time.Hour, SlotOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"09:00", "14:00"}, starts(a))
	assert.Equal(t, a, b)
}

func TestGenerateSlots_ClipsToMidnight(t *testing.T) {
	overnight := window(hm(22, 0), hm(26, 0)) // 22:00 until 02:00 next day

	today, err := GenerateSlots(interval.Day(day, time.UTC), []*Window{overnight}, nil, time.Hour, SlotOptions{Step: time.Hour})
	require.NoError(t, err)
	assert.Equal(t, []string{"22:00", "23:00"}, starts(today))

	tomorrow, err := GenerateSlots(interval.Day(day.AddDate(0, 0, 1), time.UTC), []*Window{overnight}, nil, time.Hour, SlotOptions{Step: time.Hour})
	require.NoError(t, err)
	assert.Equal(t, []string{"00:00", "01:00"}, starts(tomorrow))
}

func TestGenerateSlots_CustomStep(t *testing.T) {
	slots, err := GenerateSlots(
		interval.Day(day, time.UTC),
		[]*Window{window(hm(9, 0), hm(10, 0))},
		nil,
		30*time.Minute,
		SlotOptions{Step: 15 * time.Minute},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "09:15", "09:30"}, starts(slots))
}
