package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/otikev/health-app/internal/domain/availability"
	"github.com/otikev/health-app/internal/domain/interval"
)

type AvailabilityRepository struct {
	mu       sync.RWMutex
	byDoctor map[uuid.UUID][]availability.Window
}

func NewAvailabilityRepository() *AvailabilityRepository {
	return &AvailabilityRepository{byDoctor: make(map[uuid.UUID][]availability.Window)}
}

func (r *AvailabilityRepository) Create(_ context.Context, w *availability.Window) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byDoctor[w.DoctorID] = append(r.byDoctor[w.DoctorID], *w)
	return nil
}

func (r *AvailabilityRepository) ListForDoctorOnDate(_ context.Context, doctorID uuid.UUID, day interval.TimeInterval) ([]*availability.Window, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*availability.Window
	for _, w := range r.byDoctor[doctorID] {
		if w.Interval().Overlaps(day) {
			cp := w
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *AvailabilityRepository) IsWithinAnyWindow(_ context.Context, doctorID uuid.UUID, iv interval.TimeInterval) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, w := range r.byDoctor[doctorID] {
		if w.Interval().Contains(iv) {
			return true, nil
		}
	}
	return false, nil
}
