package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otikev/health-app/internal/cache"
	"github.com/otikev/health-app/internal/domain/appointment"
	"github.com/otikev/health-app/internal/domain/availability"
	"github.com/otikev/health-app/internal/domain/doctor"
	"github.com/otikev/health-app/internal/domain/interval"
)

func TestAvailabilityService_AddWindow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	d, doctorCaller := h.addDoctor(t)
	_, patientCaller := h.addPatient(t)

	t.Run("doctor adds own window", func(t *testing.T) {
		w, err := h.availability.AddWindow(ctx, doctorCaller, &availability.AddWindowCommand{DoctorID: d.ID, Start: at(9, 0), End: at(13, 0)})
		require.NoError(t, err)
		assert.Equal(t, d.ID, w.DoctorID)
		assert.Equal(t, doctorCaller.UserID, w.CreatedBy)
	})

	t.Run("overlapping window accepted", func(t *testing.T) {
		_, err := h.availability.AddWindow(ctx, doctorCaller, &availability.AddWindowCommand{DoctorID: d.ID, Start: at(12, 0), End: at(14, 0)})
		require.NoError(t, err)
	})

	t.Run("patient forbidden", func(t *testing.T) {
		_, err := h.availability.AddWindow(ctx, patientCaller, &availability.AddWindowCommand{DoctorID: d.ID, Start: at(9, 0), End: at(10, 0)})
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("other doctor forbidden", func(t *testing.T) {
		_, other := h.addDoctor(t)
		_, err := h.availability.AddWindow(ctx, other, &availability.AddWindowCommand{DoctorID: d.ID, Start: at(9, 0), End: at(10, 0)})
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("inverted interval", func(t *testing.T) {
		_, err := h.availability.AddWindow(ctx, h.admin, &availability.AddWindowCommand{DoctorID: d.ID, Start: at(13, 0), End: at(9, 0)})
		assert.ErrorIs(t, err, interval.ErrInvalidInterval)
	})

	t.Run("unknown doctor", func(t *testing.T) {
		_, err := h.availability.AddWindow(ctx, h.admin, &availability.AddWindowCommand{DoctorID: uuid.New(), Start: at(9, 0), End: at(10, 0)})
		assert.ErrorIs(t, err, doctor.ErrDoctorNotFound)
	})

	windows, err := h.availability.WindowsOnDate(ctx, d.ID, testDay)
	require.NoError(t, err)
	require.Len(t, windows, 2)
	assert.True(t, windows[0].StartTime.Before(windows[1].StartTime))
}

func TestAvailabilityService_OpenSlots_FullMorning(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	d, _ := h.addDoctor(t)
	h.addWindow(t, d.ID, at(9, 0), at(13, 0))

	slots, err := h.availability.OpenSlots(ctx, d.ID, testDay, 30*time.Minute)
	require.NoError(t, err)

	require.Len(t, slots, 43)
	assert.Equal(t, at(9, 0), slots[0].Start)
	assert.Equal(t, at(9, 5), slots[1].Start)
	assert.Equal(t, at(12, 30), slots[42].Start)
	assert.Equal(t, at(13, 0), slots[42].End)
}

func TestAvailabilityService_OpenSlots_SkipsBooked(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	d, _ := h.addDoctor(t)
	p, patientCaller := h.addPatient(t)
	h.addWindow(t, d.ID, at(9, 0), at(13, 0))

	_, err := h.booking.Book(ctx, patientCaller, &appointment.BookAppointmentCommand{DoctorID: d.ID, PatientID: p.ID, Start: at(10, 0), End: at(10, 30)})
	require.NoError(t, err)

	slots, err := h.availability.OpenSlots(ctx, d.ID, testDay, 30*time.Minute)
	require.NoError(t, err)

	starts := make(map[time.Time]bool, len(slots))
	for _, s := range slots {
		assert.False(t, s.Overlaps(interval.TimeInterval{Start: at(10, 0), End: at(10, 30)}), "slot %s overlaps booking", s)
		starts[s.Start] = true
	}
	assert.True(t, starts[at(9, 30)])
	assert.True(t, starts[at(10, 30)])
	assert.False(t, starts[at(9, 45)])
	assert.Len(t, slots, 43-11)
}

func TestAvailabilityService_OpenSlots_NoWindows(t *testing.T) {
	h := newHarness(t, nil)
	d, _ := h.addDoctor(t)

	slots, err := h.availability.OpenSlots(context.Background(), d.ID, testDay, 30*time.Minute)
	require.NoError(t, err)
	assert.NotNil(t, slots)
	assert.Empty(t, slots)
}

func TestAvailabilityService_OpenSlots_InvalidDuration(t *testing.T) {
	h := newHarness(t, nil)
	d, _ := h.addDoctor(t)
	h.addWindow(t, d.ID, at(9, 0), at(13, 0))

	for _, length := range []time.Duration{0, -30 * time.Minute} {
		_, err := h.availability.OpenSlots(context.Background(), d.ID, testDay, length)
		require.ErrorIs(t, err, availability.ErrInvalidDuration)

		var qe *availability.SlotQueryError
		require.ErrorAs(t, err, &qe)
		assert.Equal(t, d.ID, qe.DoctorID)
		assert.Equal(t, length, qe.Duration)
	}
}

func TestAvailabilityService_OpenSlots_Idempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	d, _ := h.addDoctor(t)
	h.addWindow(t, d.ID, at(9, 0), at(11, 0))
	h.addWindow(t, d.ID, at(10, 0), at(12, 0))

	first, err := h.availability.OpenSlots(ctx, d.ID, testDay, 20*time.Minute)
	require.NoError(t, err)
	second, err := h.availability.OpenSlots(ctx, d.ID, testDay, 20*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAvailabilityService_OpenSlots_Deduplicate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.availability.opts.DeduplicateSlots = true
	d, _ := h.addDoctor(t)
	h.addWindow(t, d.ID, at(9, 0), at(10, 0))
	h.addWindow(t, d.ID, at(9, 0), at(10, 0))

	slots, err := h.availability.OpenSlots(ctx, d.ID, testDay, 30*time.Minute)
	require.NoError(t, err)
	assert.Len(t, slots, 7)
}

func TestAvailabilityService_OpenSlots_CacheInvalidatedByWrites(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	h := newHarness(t, cache.NewSlotCache(client, time.Minute))
	d, _ := h.addDoctor(t)
	p, patientCaller := h.addPatient(t)
	h.addWindow(t, d.ID, at(9, 0), at(10, 0))

	before, err := h.availability.OpenSlots(ctx, d.ID, testDay, 30*time.Minute)
	require.NoError(t, err)
	require.Len(t, before, 7)

	cached, err := h.availability.OpenSlots(ctx, d.ID, testDay, 30*time.Minute)
	require.NoError(t, err)
	assert.Len(t, cached, 7)

	booked, err := h.booking.Book(ctx, patientCaller, &appointment.BookAppointmentCommand{DoctorID: d.ID, PatientID: p.ID, Start: at(9, 0), End: at(9, 30)})
	require.NoError(t, err)

	afterBooking, err := h.availability.OpenSlots(ctx, d.ID, testDay, 30*time.Minute)
	require.NoError(t, err)
	require.Len(t, afterBooking, 1)
	assert.Equal(t, at(9, 30), afterBooking[0].Start)

	_, err = h.booking.CancelAppointment(ctx, patientCaller, booked.ID, &appointment.CancelAppointmentCommand{Reason: "travel"})
	require.NoError(t, err)

	afterCancel, err := h.availability.OpenSlots(ctx, d.ID, testDay, 30*time.Minute)
	require.NoError(t, err)
	assert.Len(t, afterCancel, 7)

	h.addWindow(t, d.ID, at(14, 0), at(15, 0))
	afterWindow, err := h.availability.OpenSlots(ctx, d.ID, testDay, 30*time.Minute)
	require.NoError(t, err)
	assert.Len(t, afterWindow, 14)
}

func TestAvailabilityService_OpenSlots_CacheOutageFallsBack(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })

	h := newHarness(t, cache.NewSlotCache(client, time.Minute))
	d, _ := h.addDoctor(t)
	h.addWindow(t, d.ID, at(9, 0), at(10, 0))

	mr.SetError("LOADING redis is loading the dataset")
	slots, err := h.availability.OpenSlots(ctx, d.ID, testDay, 30*time.Minute)
	require.NoError(t, err)
	assert.Len(t, slots, 7)
}

func TestAvailabilityService_OpenSlots_DayInConfiguredZone(t *testing.T) {
	ctx := context.Background()
	nairobi, err := time.LoadLocation("Africa/Nairobi")
	require.NoError(t, err)

	h := newHarness(t, nil)
	h.availability.opts.Location = nairobi
	d, _ := h.addDoctor(t)

	// 22:00-02:00 Nairobi time spans two local calendar days.
	start := time.Date(2025, 3, 10, 22, 0, 0, 0, nairobi)
	_, err = h.availability.AddWindow(ctx, h.admin, &availability.AddWindowCommand{DoctorID: d.ID, Start: start, End: start.Add(4 * time.Hour)})
	require.NoError(t, err)

	date, err := h.availability.ParseDate("2025-03-10")
	require.NoError(t, err)
	slots, err := h.availability.OpenSlots(ctx, d.ID, date, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, slots)
	assert.True(t, slots[len(slots)-1].End.Equal(time.Date(2025, 3, 11, 0, 0, 0, 0, nairobi)))

	next, err := h.availability.OpenSlots(ctx, d.ID, date.AddDate(0, 0, 1), time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, next)
	assert.True(t, next[0].Start.Equal(time.Date(2025, 3, 11, 0, 0, 0, 0, nairobi)))
}
