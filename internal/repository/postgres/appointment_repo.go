package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/otikev/health-app/internal/domain/appointment"
	"github.com/otikev/health-app/internal/domain/interval"
)

// pgExclusionViolation is raised by the appointments_no_overlap constraint.
const pgExclusionViolation = "23P01"

type AppointmentRepository struct {
	db *gorm.DB
}

func NewAppointmentRepository(db *gorm.DB) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

// InsertIfNoConflict serializes writers per doctor with a transaction-scoped
// advisory lock, so the overlap check and the insert see the same ledger.
func (r *AppointmentRepository) InsertIfNoConflict(ctx context.Context, a *appointment.Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.Status = appointment.StatusScheduled

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtextextended(?, 0))", a.DoctorID.String()).Error; err != nil {
			return fmt.Errorf("locking doctor schedule: %w", err)
		}

		conflict, err := hasConflict(tx, a.DoctorID, a.Interval(), nil)
		if err != nil {
			return err
		}
		if conflict {
			return appointment.ErrSlotConflict
		}

		if err := tx.Create(a).Error; err != nil {
			if isExclusionViolation(err) {
				return appointment.ErrSlotConflict
			}
			return fmt.Errorf("inserting appointment: %w", err)
		}
		return nil
	})
	return err
}

func (r *AppointmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	var a appointment.Appointment
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, appointment.ErrAppointmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading appointment: %w", err)
	}
	return &a, nil
}

// UpdateStatus is a compare-and-set on status = scheduled, so two racing
// transitions cannot both land.
func (r *AppointmentRepository) UpdateStatus(ctx context.Context, a *appointment.Appointment) error {
	res := r.db.WithContext(ctx).Model(&appointment.Appointment{}).
		Where("id = ? AND status = ?", a.ID, appointment.StatusScheduled).
		Updates(map[string]any{
			"status":              a.Status,
			"canceled_at":         a.CanceledAt,
			"cancellation_reason": a.CancellationReason,
			"canceled_by":         a.CanceledBy,
			"completed_at":        a.CompletedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("updating appointment status: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&appointment.Appointment{}).Where("id = ?", a.ID).Count(&count).Error; err != nil {
		return fmt.Errorf("loading appointment status: %w", err)
	}
	if count == 0 {
		return appointment.ErrAppointmentNotFound
	}
	return appointment.ErrInvalidStatusTransition
}

func (r *AppointmentRepository) HasConflict(ctx context.Context, doctorID uuid.UUID, iv interval.TimeInterval, excludeID *uuid.UUID) (bool, error) {
	return hasConflict(r.db.WithContext(ctx), doctorID, iv, excludeID)
}

func hasConflict(db *gorm.DB, doctorID uuid.UUID, iv interval.TimeInterval, excludeID *uuid.UUID) (bool, error) {
	q := db.Model(&appointment.Appointment{}).
		Where("doctor_id = ? AND status = ? AND start_time < ? AND end_time > ?",
			doctorID, appointment.StatusScheduled, iv.End, iv.Start)
	if excludeID != nil {
		q = q.Where("id <> ?", *excludeID)
	}

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, fmt.Errorf("checking appointment conflicts: %w", err)
	}
	return count > 0, nil
}

func (r *AppointmentRepository) ListForDoctorOnDate(ctx context.Context, doctorID uuid.UUID, day interval.TimeInterval) ([]*appointment.Appointment, error) {
	var out []*appointment.Appointment
	err := r.db.WithContext(ctx).
		Where("doctor_id = ? AND status = ? AND start_time < ? AND end_time > ?",
			doctorID, appointment.StatusScheduled, day.End, day.Start).
		Order("start_time").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("listing appointments for day: %w", err)
	}
	return out, nil
}

func (r *AppointmentRepository) List(ctx context.Context, q *appointment.ListAppointmentsQuery) (*appointment.PagedAppointments, error) {
	base := r.db.WithContext(ctx).Model(&appointment.Appointment{})
	if q.PatientID != nil {
		base = base.Where("patient_id = ?", *q.PatientID)
	}
	if q.DoctorID != nil {
		base = base.Where("doctor_id = ?", *q.DoctorID)
	}
	if q.Status != nil {
		base = base.Where("status = ?", *q.Status)
	}
	if q.DateFrom != nil {
		base = base.Where("start_time >= ?", *q.DateFrom)
	}
	if q.DateTo != nil {
		base = base.Where("start_time < ?", *q.DateTo)
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("counting appointments: %w", err)
	}

	var rows []*appointment.Appointment
	if err := base.Order("start_time").Scopes(paginate(q.Page, q.PageSize)).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing appointments: %w", err)
	}

	return &appointment.PagedAppointments{
		Appointments: rows,
		TotalCount:   total,
		Page:         q.Page,
		PageSize:     q.PageSize,
		TotalPages:   totalPages(total, q.PageSize),
	}, nil
}

func isExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgExclusionViolation
}
