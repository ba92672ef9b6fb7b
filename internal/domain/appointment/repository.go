package appointment

import (
	"context"

	"github.com/google/uuid"

	"github.com/otikev/health-app/internal/domain/interval"
)

type Repository interface {
	// InsertIfNoConflict persists a as scheduled unless the doctor already has an
	// overlapping scheduled appointment, in which case it returns ErrSlotConflict.
	// The check and the insert are atomic with respect to other writers for the
	// same doctor.
	InsertIfNoConflict(ctx context.Context, a *Appointment) error

	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	List(ctx context.Context, q *ListAppointmentsQuery) (*PagedAppointments, error)

	// UpdateStatus writes a's lifecycle fields only while the stored appointment
	// is still scheduled. It returns ErrAppointmentNotFound for an unknown id and
	// ErrInvalidStatusTransition when another writer already moved it on.
	UpdateStatus(ctx context.Context, a *Appointment) error

	// HasConflict checks whether a doctor already has a scheduled appointment that overlaps.
	HasConflict(ctx context.Context, doctorID uuid.UUID, iv interval.TimeInterval, excludeID *uuid.UUID) (bool, error)

	// ListForDoctorOnDate returns scheduled appointments intersecting day.
	ListForDoctorOnDate(ctx context.Context, doctorID uuid.UUID, day interval.TimeInterval) ([]*Appointment, error)
}
