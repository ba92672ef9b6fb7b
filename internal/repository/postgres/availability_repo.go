package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/otikev/health-app/internal/domain/availability"
	"github.com/otikev/health-app/internal/domain/interval"
)

type AvailabilityRepository struct {
	db *gorm.DB
}

func NewAvailabilityRepository(db *gorm.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

func (r *AvailabilityRepository) Create(ctx context.Context, w *availability.Window) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(w).Error; err != nil {
		return fmt.Errorf("inserting availability window: %w", err)
	}
	return nil
}

func (r *AvailabilityRepository) ListForDoctorOnDate(ctx context.Context, doctorID uuid.UUID, day interval.TimeInterval) ([]*availability.Window, error) {
	var out []*availability.Window
	err := r.db.WithContext(ctx).
		Where("doctor_id = ? AND start_time < ? AND end_time > ?", doctorID, day.End, day.Start).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("listing availability windows: %w", err)
	}
	return out, nil
}

func (r *AvailabilityRepository) IsWithinAnyWindow(ctx context.Context, doctorID uuid.UUID, iv interval.TimeInterval) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&availability.Window{}).
		Where("doctor_id = ? AND start_time <= ? AND end_time >= ?", doctorID, iv.Start, iv.End).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("checking availability containment: %w", err)
	}
	return count > 0, nil
}
