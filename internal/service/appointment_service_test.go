package service

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otikev/health-app/internal/domain"
	"github.com/otikev/health-app/internal/domain/appointment"
	"github.com/otikev/health-app/internal/domain/interval"
)

func TestAppointmentService_Book(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	d, _ := h.addDoctor(t)
	p, patientCaller := h.addPatient(t)
	h.addWindow(t, d.ID, at(9, 0), at(13, 0))

	a, err := h.booking.Book(ctx, patientCaller, &appointment.BookAppointmentCommand{
		DoctorID: d.ID, PatientID: p.ID, Start: at(9, 0), End: at(9, 30), Reason: "checkup",
	})
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusScheduled, a.Status)
	assert.Equal(t, patientCaller.UserID, a.CreatedBy)

	stored, err := h.appointments.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "checkup", stored.Reason)
}

func TestAppointmentService_Book_Rejections(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	d, _ := h.addDoctor(t)
	p, patientCaller := h.addPatient(t)
	_, otherPatient := h.addPatient(t)
	h.addWindow(t, d.ID, at(9, 0), at(13, 0))

	_, err := h.booking.Book(ctx, patientCaller, &appointment.BookAppointmentCommand{DoctorID: d.ID, PatientID: p.ID, Start: at(10, 0), End: at(10, 30)})
	require.NoError(t, err)

	tests := []struct {
		name    string
		caller  domain.Caller
		start   time.Time
		end     time.Time
		wantErr error
	}{
		{"outside every window", patientCaller, at(14, 0), at(14, 30), appointment.ErrNotAvailable},
		{"straddles window end", patientCaller, at(12, 45), at(13, 15), appointment.ErrNotAvailable},
		{"zero length", patientCaller, at(9, 0), at(9, 0), interval.ErrInvalidInterval},
		{"zero length outside window", patientCaller, at(20, 0), at(20, 0), interval.ErrInvalidInterval},
		{"inverted", patientCaller, at(11, 0), at(10, 0), interval.ErrInvalidInterval},
		{"overlaps existing", patientCaller, at(10, 15), at(10, 45), appointment.ErrSlotConflict},
		{"booking for someone else", otherPatient, at(11, 0), at(11, 30), ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.booking.Book(ctx, tt.caller, &appointment.BookAppointmentCommand{
				DoctorID: d.ID, PatientID: p.ID, Start: tt.start, End: tt.end,
			})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	page, err := h.appointments.List(ctx, &appointment.ListAppointmentsQuery{DoctorID: &d.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.TotalCount, "rejected bookings must not touch the ledger")
}

func TestAppointmentService_Book_ErrorCarriesInput(t *testing.T) {
	h := newHarness(t, nil)
	d, _ := h.addDoctor(t)
	p, patientCaller := h.addPatient(t)
	h.addWindow(t, d.ID, at(9, 0), at(13, 0))

	_, err := h.booking.Book(context.Background(), patientCaller, &appointment.BookAppointmentCommand{
		DoctorID: d.ID, PatientID: p.ID, Start: at(14, 0), End: at(14, 30),
	})

	var be *appointment.BookingError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, d.ID, be.DoctorID)
	assert.Equal(t, p.ID, be.PatientID)
	assert.Equal(t, at(14, 0), be.Start)
	assert.Equal(t, at(14, 30), be.End)
}

func TestAppointmentService_Book_ConcurrentIdenticalRequests(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	d, _ := h.addDoctor(t)
	h.addWindow(t, d.ID, at(9, 0), at(13, 0))

	const contenders = 2
	type result struct {
		appt *appointment.Appointment
		err  error
	}
	results := make(chan result, contenders)
	start := make(chan struct{})

	for i := 0; i < contenders; i++ {
		p, caller := h.addPatient(t)
		go func() {
			<-start
			a, err := h.booking.Book(ctx, caller, &appointment.BookAppointmentCommand{DoctorID: d.ID, PatientID: p.ID, Start: at(9, 0), End: at(9, 30)})
			results <- result{a, err}
		}()
	}
	close(start)

	var booked, conflicted int
	for i := 0; i < contenders; i++ {
		r := <-results
		switch {
		case r.err == nil:
			booked++
			assert.Equal(t, appointment.StatusScheduled, r.appt.Status)
		default:
			assert.ErrorIs(t, r.err, appointment.ErrSlotConflict)
			conflicted++
		}
	}
	assert.Equal(t, 1, booked)
	assert.Equal(t, 1, conflicted)
}

func TestAppointmentService_Book_RandomizedConcurrencyNeverOverlaps(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	d, _ := h.addDoctor(t)
	h.addWindow(t, d.ID, at(8, 0), at(18, 0))

	rng := rand.New(rand.NewSource(42))
	type request struct {
		start, end time.Time
	}
	requests := make([]request, 200)
	for i := range requests {
		start := at(8, 0).Add(time.Duration(rng.Intn(108)) * 5 * time.Minute)
		length := time.Duration(1+rng.Intn(12)) * 5 * time.Minute
		requests[i] = request{start, start.Add(length)}
	}

	var wg sync.WaitGroup
	for _, req := range requests {
		p, caller := h.addPatient(t)
		wg.Add(1)
		go func(req request) {
			defer wg.Done()
			_, err := h.booking.Book(ctx, caller, &appointment.BookAppointmentCommand{DoctorID: d.ID, PatientID: p.ID, Start: req.start, End: req.end})
			if err != nil {
				assert.ErrorIs(t, err, appointment.ErrSlotConflict)
			}
		}(req)
	}
	wg.Wait()

	scheduled, err := h.appointments.ListForDoctorOnDate(ctx, d.ID, interval.Day(testDay, time.UTC))
	require.NoError(t, err)
	require.NotEmpty(t, scheduled)
	for i := range scheduled {
		for j := i + 1; j < len(scheduled); j++ {
			assert.False(t, scheduled[i].Interval().Overlaps(scheduled[j].Interval()),
				"%s overlaps %s", scheduled[i].Interval(), scheduled[j].Interval())
		}
	}
}

func TestAppointmentService_CancelFreesInterval(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	d, doctorCaller := h.addDoctor(t)
	p, patientCaller := h.addPatient(t)
	_, stranger := h.addPatient(t)
	h.addWindow(t, d.ID, at(9, 0), at(13, 0))

	a, err := h.booking.Book(ctx, patientCaller, &appointment.BookAppointmentCommand{DoctorID: d.ID, PatientID: p.ID, Start: at(9, 0), End: at(9, 30)})
	require.NoError(t, err)

	_, err = h.booking.CancelAppointment(ctx, stranger, a.ID, &appointment.CancelAppointmentCommand{Reason: "not mine"})
	assert.ErrorIs(t, err, ErrForbidden)

	canceled, err := h.booking.CancelAppointment(ctx, doctorCaller, a.ID, &appointment.CancelAppointmentCommand{Reason: "doctor away"})
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCanceled, canceled.Status)
	require.NotNil(t, canceled.CanceledBy)
	assert.Equal(t, doctorCaller.UserID, *canceled.CanceledBy)

	_, err = h.booking.CancelAppointment(ctx, patientCaller, a.ID, &appointment.CancelAppointmentCommand{})
	assert.ErrorIs(t, err, appointment.ErrInvalidStatusTransition)

	require.NoError(t, h.booking.CheckBookable(ctx, d.ID, at(9, 0), at(9, 30)))
	_, err = h.booking.Book(ctx, patientCaller, &appointment.BookAppointmentCommand{DoctorID: d.ID, PatientID: p.ID, Start: at(9, 0), End: at(9, 30)})
	require.NoError(t, err)
}

func TestAppointmentService_Complete(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	d, doctorCaller := h.addDoctor(t)
	p, patientCaller := h.addPatient(t)
	h.addWindow(t, d.ID, at(9, 0), at(13, 0))

	a, err := h.booking.Book(ctx, patientCaller, &appointment.BookAppointmentCommand{DoctorID: d.ID, PatientID: p.ID, Start: at(9, 0), End: at(9, 30)})
	require.NoError(t, err)

	_, err = h.booking.CompleteAppointment(ctx, patientCaller, a.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	done, err := h.booking.CompleteAppointment(ctx, doctorCaller, a.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCompleted, done.Status)

	_, err = h.booking.CancelAppointment(ctx, h.admin, a.ID, &appointment.CancelAppointmentCommand{})
	assert.ErrorIs(t, err, appointment.ErrInvalidStatusTransition)
}

func TestAppointmentService_CancelAndCompleteRace(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	d, doctorCaller := h.addDoctor(t)
	p, patientCaller := h.addPatient(t)
	h.addWindow(t, d.ID, at(9, 0), at(13, 0))

	for i := 0; i < 20; i++ {
		start := at(9, 0).Add(time.Duration(i) * 10 * time.Minute)
		a, err := h.booking.Book(ctx, patientCaller, &appointment.BookAppointmentCommand{DoctorID: d.ID, PatientID: p.ID, Start: start, End: start.Add(10 * time.Minute)})
		require.NoError(t, err)

		var (
			wg                     sync.WaitGroup
			cancelErr, completeErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, cancelErr = h.booking.CancelAppointment(ctx, patientCaller, a.ID, &appointment.CancelAppointmentCommand{Reason: "conflict"})
		}()
		go func() {
			defer wg.Done()
			_, completeErr = h.booking.CompleteAppointment(ctx, doctorCaller, a.ID)
		}()
		wg.Wait()

		stored, err := h.appointments.GetByID(ctx, a.ID)
		require.NoError(t, err)

		switch {
		case cancelErr == nil:
			assert.ErrorIs(t, completeErr, appointment.ErrInvalidStatusTransition)
			assert.Equal(t, appointment.StatusCanceled, stored.Status)
			assert.Nil(t, stored.CompletedAt)
		case completeErr == nil:
			assert.ErrorIs(t, cancelErr, appointment.ErrInvalidStatusTransition)
			assert.Equal(t, appointment.StatusCompleted, stored.Status)
			assert.Nil(t, stored.CanceledAt)
		default:
			t.Fatalf("both transitions failed: cancel=%v complete=%v", cancelErr, completeErr)
		}
	}
}

func TestAppointmentService_CheckBookable(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	d, _ := h.addDoctor(t)
	p, patientCaller := h.addPatient(t)
	h.addWindow(t, d.ID, at(9, 0), at(13, 0))

	_, err := h.booking.Book(ctx, patientCaller, &appointment.BookAppointmentCommand{DoctorID: d.ID, PatientID: p.ID, Start: at(10, 0), End: at(10, 30)})
	require.NoError(t, err)

	assert.NoError(t, h.booking.CheckBookable(ctx, d.ID, at(10, 30), at(11, 0)))
	assert.ErrorIs(t, h.booking.CheckBookable(ctx, d.ID, at(10, 0), at(10, 15)), appointment.ErrSlotConflict)
	assert.ErrorIs(t, h.booking.CheckBookable(ctx, d.ID, at(14, 0), at(15, 0)), appointment.ErrNotAvailable)
	assert.ErrorIs(t, h.booking.CheckBookable(ctx, d.ID, at(9, 0), at(9, 0)), interval.ErrInvalidInterval)
}

func TestAppointmentService_ListScopesByRole(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	d1, doctor1 := h.addDoctor(t)
	d2, _ := h.addDoctor(t)
	p1, patient1 := h.addPatient(t)
	p2, patient2 := h.addPatient(t)
	h.addWindow(t, d1.ID, at(9, 0), at(13, 0))
	h.addWindow(t, d2.ID, at(9, 0), at(13, 0))

	book := func(caller domain.Caller, doctorID, patientID uuid.UUID, start time.Time) {
		_, err := h.booking.Book(ctx, caller, &appointment.BookAppointmentCommand{DoctorID: doctorID, PatientID: patientID, Start: start, End: start.Add(30 * time.Minute)})
		require.NoError(t, err)
	}
	book(patient1, d1.ID, p1.ID, at(9, 0))
	book(patient1, d2.ID, p1.ID, at(10, 0))
	book(patient2, d1.ID, p2.ID, at(11, 0))

	mine, err := h.booking.ListAppointments(ctx, patient1, &appointment.ListAppointmentsQuery{PatientID: &p2.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), mine.TotalCount)
	for _, a := range mine.Appointments {
		assert.Equal(t, p1.ID, a.PatientID)
	}

	schedule, err := h.booking.ListAppointments(ctx, doctor1, &appointment.ListAppointmentsQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), schedule.TotalCount)
	assert.Equal(t, 20, schedule.PageSize)

	all, err := h.booking.ListAppointments(ctx, h.admin, &appointment.ListAppointmentsQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), all.TotalCount)

	bad := appointment.AppointmentStatus("no_show")
	_, err = h.booking.ListAppointments(ctx, h.admin, &appointment.ListAppointmentsQuery{Status: &bad})
	assert.ErrorIs(t, err, appointment.ErrInvalidStatus)
}

func TestAppointmentService_GetAppointment(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	d, doctorCaller := h.addDoctor(t)
	_, otherDoctor := h.addDoctor(t)
	p, patientCaller := h.addPatient(t)
	h.addWindow(t, d.ID, at(9, 0), at(13, 0))

	a, err := h.booking.Book(ctx, patientCaller, &appointment.BookAppointmentCommand{DoctorID: d.ID, PatientID: p.ID, Start: at(9, 0), End: at(9, 30)})
	require.NoError(t, err)

	for _, c := range []domain.Caller{patientCaller, doctorCaller, h.admin} {
		got, err := h.booking.GetAppointment(ctx, c, a.ID)
		require.NoError(t, err)
		assert.Equal(t, a.ID, got.ID)
	}

	_, err = h.booking.GetAppointment(ctx, otherDoctor, a.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = h.booking.GetAppointment(ctx, h.admin, uuid.New())
	assert.ErrorIs(t, err, appointment.ErrAppointmentNotFound)
}
