package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otikev/health-app/internal/domain/appointment"
	"github.com/otikev/health-app/internal/domain/availability"
	"github.com/otikev/health-app/internal/domain/interval"
)

var monday = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return monday.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func newAppt(doctorID uuid.UUID, start, end time.Time) *appointment.Appointment {
	return &appointment.Appointment{DoctorID: doctorID, PatientID: uuid.New(), StartTime: start, EndTime: end}
}

func TestAppointmentRepository_InsertIfNoConflict(t *testing.T) {
	ctx := context.Background()
	repo := NewAppointmentRepository()
	doctorID := uuid.New()

	first := newAppt(doctorID, at(10, 0), at(10, 30))
	require.NoError(t, repo.InsertIfNoConflict(ctx, first))
	assert.NotEqual(t, uuid.Nil, first.ID)
	assert.Equal(t, appointment.StatusScheduled, first.Status)

	err := repo.InsertIfNoConflict(ctx, newAppt(doctorID, at(10, 15), at(10, 45)))
	assert.ErrorIs(t, err, appointment.ErrSlotConflict)

	// Touching ranges and other doctors are fine.
	require.NoError(t, repo.InsertIfNoConflict(ctx, newAppt(doctorID, at(10, 30), at(11, 0))))
	require.NoError(t, repo.InsertIfNoConflict(ctx, newAppt(uuid.New(), at(10, 0), at(10, 30))))
}

func TestAppointmentRepository_CanceledAppointmentFreesInterval(t *testing.T) {
	ctx := context.Background()
	repo := NewAppointmentRepository()
	doctorID := uuid.New()

	a := newAppt(doctorID, at(9, 0), at(9, 30))
	require.NoError(t, repo.InsertIfNoConflict(ctx, a))
	require.NoError(t, a.Cancel("sick", uuid.New()))
	require.NoError(t, repo.UpdateStatus(ctx, a))

	conflict, err := repo.HasConflict(ctx, doctorID, a.Interval(), nil)
	require.NoError(t, err)
	assert.False(t, conflict)

	require.NoError(t, repo.InsertIfNoConflict(ctx, newAppt(doctorID, at(9, 0), at(9, 30))))

	stored, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCanceled, stored.Status)
	assert.Equal(t, "sick", stored.CancellationReason)
}

func TestAppointmentRepository_HasConflictExcludesID(t *testing.T) {
	ctx := context.Background()
	repo := NewAppointmentRepository()
	doctorID := uuid.New()

	a := newAppt(doctorID, at(9, 0), at(9, 30))
	require.NoError(t, repo.InsertIfNoConflict(ctx, a))

	conflict, err := repo.HasConflict(ctx, doctorID, a.Interval(), nil)
	require.NoError(t, err)
	assert.True(t, conflict)

	conflict, err = repo.HasConflict(ctx, doctorID, a.Interval(), &a.ID)
	require.NoError(t, err)
	assert.False(t, conflict)
}

func TestAppointmentRepository_ConcurrentInsertsNeverOverlap(t *testing.T) {
	ctx := context.Background()
	repo := NewAppointmentRepository()
	doctorID := uuid.New()

	const attempts = 50
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.InsertIfNoConflict(ctx, newAppt(doctorID, at(9, 0), at(9, 30)))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case assert.ErrorIs(t, err, appointment.ErrSlotConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, conflicts)
}

func TestAppointmentRepository_ListForDoctorOnDate(t *testing.T) {
	ctx := context.Background()
	repo := NewAppointmentRepository()
	doctorID := uuid.New()

	late := newAppt(doctorID, at(15, 0), at(15, 30))
	early := newAppt(doctorID, at(9, 0), at(9, 30))
	nextDay := newAppt(doctorID, at(33, 0), at(33, 30))
	for _, a := range []*appointment.Appointment{late, early, nextDay} {
		require.NoError(t, repo.InsertIfNoConflict(ctx, a))
	}
	canceled := late
	require.NoError(t, canceled.Cancel("", uuid.New()))
	require.NoError(t, repo.UpdateStatus(ctx, canceled))

	got, err := repo.ListForDoctorOnDate(ctx, doctorID, interval.Day(monday, time.UTC))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, early.ID, got[0].ID)
}

func TestAppointmentRepository_ListPaginates(t *testing.T) {
	ctx := context.Background()
	repo := NewAppointmentRepository()
	doctorID := uuid.New()

	for i := 0; i < 5; i++ {
		start := at(9+i, 0)
		require.NoError(t, repo.InsertIfNoConflict(ctx, newAppt(doctorID, start, start.Add(30*time.Minute))))
	}

	page, err := repo.List(ctx, &appointment.ListAppointmentsQuery{DoctorID: &doctorID, Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.TotalCount)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Appointments, 2)
	assert.Equal(t, at(11, 0), page.Appointments[0].StartTime)
}

func TestAvailabilityRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewAvailabilityRepository()
	doctorID := uuid.New()

	morning, err := availability.NewWindow(doctorID, interval.TimeInterval{Start: at(9, 0), End: at(13, 0)}, doctorID)
	require.NoError(t, err)
	overnight, err := availability.NewWindow(doctorID, interval.TimeInterval{Start: at(22, 0), End: at(26, 0)}, doctorID)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, morning))
	require.NoError(t, repo.Create(ctx, overnight))

	today, err := repo.ListForDoctorOnDate(ctx, doctorID, interval.Day(monday, time.UTC))
	require.NoError(t, err)
	assert.Len(t, today, 2)

	tomorrow, err := repo.ListForDoctorOnDate(ctx, doctorID, interval.Day(monday.AddDate(0, 0, 1), time.UTC))
	require.NoError(t, err)
	require.Len(t, tomorrow, 1)
	assert.Equal(t, overnight.ID, tomorrow[0].ID)

	ok, err := repo.IsWithinAnyWindow(ctx, doctorID, interval.TimeInterval{Start: at(12, 30), End: at(13, 0)})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.IsWithinAnyWindow(ctx, doctorID, interval.TimeInterval{Start: at(14, 0), End: at(14, 30)})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.IsWithinAnyWindow(ctx, uuid.New(), interval.TimeInterval{Start: at(9, 0), End: at(9, 30)})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAppointmentRepository_UpdateStatus_StaleCopyLoses(t *testing.T) {
	ctx := context.Background()
	repo := NewAppointmentRepository()

	a := newAppt(uuid.New(), at(9, 0), at(9, 30))
	require.NoError(t, repo.InsertIfNoConflict(ctx, a))

	toCancel, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	toComplete, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)

	require.NoError(t, toCancel.Cancel("sick", uuid.New()))
	require.NoError(t, repo.UpdateStatus(ctx, toCancel))

	require.NoError(t, toComplete.Complete())
	assert.ErrorIs(t, repo.UpdateStatus(ctx, toComplete), appointment.ErrInvalidStatusTransition)

	stored, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCanceled, stored.Status)
	assert.NotNil(t, stored.CanceledAt)
	assert.Nil(t, stored.CompletedAt)
}

func TestAppointmentRepository_UpdateStatus_UnknownID(t *testing.T) {
	repo := NewAppointmentRepository()
	a := newAppt(uuid.New(), at(9, 0), at(9, 30))
	a.ID = uuid.New()
	a.Status = appointment.StatusCanceled

	assert.ErrorIs(t, repo.UpdateStatus(context.Background(), a), appointment.ErrAppointmentNotFound)
}
