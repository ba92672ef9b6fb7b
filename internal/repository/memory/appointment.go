package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/otikev/health-app/internal/domain/appointment"
	"github.com/otikev/health-app/internal/domain/interval"
)

// AppointmentRepository is the in-process ledger. Writers for one doctor are
// serialized by a per-doctor lock held across the conflict check and the
// insert; the RW lock keeps readers from seeing a half-applied write.
type AppointmentRepository struct {
	mu       sync.RWMutex
	byID     map[uuid.UUID]appointment.Appointment
	byDoctor map[uuid.UUID][]uuid.UUID

	doctorLocks *keyedMutex
}

func NewAppointmentRepository() *AppointmentRepository {
	return &AppointmentRepository{
		byID:        make(map[uuid.UUID]appointment.Appointment),
		byDoctor:    make(map[uuid.UUID][]uuid.UUID),
		doctorLocks: newKeyedMutex(),
	}
}

func (r *AppointmentRepository) InsertIfNoConflict(ctx context.Context, a *appointment.Appointment) error {
	unlock := r.doctorLocks.lock(a.DoctorID)
	defer unlock()

	conflict, err := r.HasConflict(ctx, a.DoctorID, a.Interval(), nil)
	if err != nil {
		return err
	}
	if conflict {
		return appointment.ErrSlotConflict
	}

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now()
	a.CreatedAt, a.UpdatedAt = now, now
	a.Status = appointment.StatusScheduled

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[a.ID] = *a
	r.byDoctor[a.DoctorID] = append(r.byDoctor[a.DoctorID], a.ID)
	return nil
}

func (r *AppointmentRepository) GetByID(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.byID[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *AppointmentRepository) UpdateStatus(_ context.Context, a *appointment.Appointment) error {
	unlock := r.doctorLocks.lock(a.DoctorID)
	defer unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[a.ID]
	if !ok {
		return appointment.ErrAppointmentNotFound
	}
	if stored.Status != appointment.StatusScheduled {
		return appointment.ErrInvalidStatusTransition
	}
	stored.Status = a.Status
	stored.CanceledAt = a.CanceledAt
	stored.CancellationReason = a.CancellationReason
	stored.CanceledBy = a.CanceledBy
	stored.CompletedAt = a.CompletedAt
	stored.UpdatedAt = time.Now()
	r.byID[a.ID] = stored
	a.UpdatedAt = stored.UpdatedAt
	return nil
}

func (r *AppointmentRepository) HasConflict(_ context.Context, doctorID uuid.UUID, iv interval.TimeInterval, excludeID *uuid.UUID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.byDoctor[doctorID] {
		if excludeID != nil && id == *excludeID {
			continue
		}
		a := r.byID[id]
		if a.Status == appointment.StatusScheduled && a.Interval().Overlaps(iv) {
			return true, nil
		}
	}
	return false, nil
}

func (r *AppointmentRepository) ListForDoctorOnDate(_ context.Context, doctorID uuid.UUID, day interval.TimeInterval) ([]*appointment.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*appointment.Appointment
	for _, id := range r.byDoctor[doctorID] {
		a := r.byID[id]
		if a.Status == appointment.StatusScheduled && a.Interval().Overlaps(day) {
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (r *AppointmentRepository) List(_ context.Context, q *appointment.ListAppointmentsQuery) (*appointment.PagedAppointments, error) {
	r.mu.RLock()
	matched := make([]*appointment.Appointment, 0)
	for _, stored := range r.byID {
		a := stored
		if q.PatientID != nil && a.PatientID != *q.PatientID {
			continue
		}
		if q.DoctorID != nil && a.DoctorID != *q.DoctorID {
			continue
		}
		if q.Status != nil && a.Status != *q.Status {
			continue
		}
		if q.DateFrom != nil && a.StartTime.Before(*q.DateFrom) {
			continue
		}
		if q.DateTo != nil && !a.StartTime.Before(*q.DateTo) {
			continue
		}
		matched = append(matched, &a)
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].StartTime.Before(matched[j].StartTime) })

	lo, hi := pageBounds(len(matched), q.Page, q.PageSize)
	return &appointment.PagedAppointments{
		Appointments: matched[lo:hi],
		TotalCount:   int64(len(matched)),
		Page:         q.Page,
		PageSize:     q.PageSize,
		TotalPages:   totalPages(int64(len(matched)), q.PageSize),
	}, nil
}

func pageBounds(n, page, pageSize int) (int, int) {
	lo := (page - 1) * pageSize
	if lo < 0 || pageSize <= 0 {
		return 0, n
	}
	if lo > n {
		lo = n
	}
	hi := lo + pageSize
	if hi > n {
		hi = n
	}
	return lo, hi
}

func totalPages(count int64, pageSize int) int {
	if pageSize <= 0 {
		return 1
	}
	return int((count + int64(pageSize) - 1) / int64(pageSize))
}
