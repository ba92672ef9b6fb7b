package availability

import (
	"context"

	"github.com/google/uuid"

	"github.com/otikev/health-app/internal/domain/interval"
)

type Repository interface {
	Create(ctx context.Context, w *Window) error

	// ListForDoctorOnDate returns the doctor's windows intersecting day, in no particular order.
	ListForDoctorOnDate(ctx context.Context, doctorID uuid.UUID, day interval.TimeInterval) ([]*Window, error)

	// IsWithinAnyWindow reports whether at least one window of the doctor contains iv.
	IsWithinAnyWindow(ctx context.Context, doctorID uuid.UUID, iv interval.TimeInterval) (bool, error)
}
