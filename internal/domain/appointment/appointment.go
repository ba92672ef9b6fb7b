package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/otikev/health-app/internal/domain/interval"
)

// State transitions possibilities:
//
//	scheduled → completed
//	scheduled → canceled
//
// Only scheduled appointments take part in conflict detection.
type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusCompleted AppointmentStatus = "completed"
	StatusCanceled  AppointmentStatus = "canceled"
)

func (s AppointmentStatus) IsValid() bool {
	switch s {
	case StatusScheduled, StatusCompleted, StatusCanceled:
		return true
	}
	return false
}

type Appointment struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	PatientID uuid.UUID `gorm:"column:patient_id;type:uuid;not null;index"`
	DoctorID  uuid.UUID `gorm:"column:doctor_id;type:uuid;not null;index"`

	StartTime time.Time         `gorm:"column:start_time;not null;index"`
	EndTime   time.Time         `gorm:"column:end_time;not null"`
	Status    AppointmentStatus `gorm:"column:status;type:varchar(20);not null;default:'scheduled';index"`

	Reason string `gorm:"column:reason;type:text"`

	// Cancellation tracking
	CanceledAt         *time.Time `gorm:"column:canceled_at"`
	CancellationReason string     `gorm:"column:cancellation_reason;type:text"`
	CanceledBy         *uuid.UUID `gorm:"column:canceled_by;type:uuid"`

	CompletedAt *time.Time `gorm:"column:completed_at"`

	CreatedBy uuid.UUID `gorm:"column:created_by;type:uuid;not null"`
}

func (Appointment) TableName() string {
	return "scheduling.appointments"
}

func (a *Appointment) Interval() interval.TimeInterval {
	return interval.TimeInterval{Start: a.StartTime, End: a.EndTime}
}

func (a *Appointment) CanTransitionTo(newStatus AppointmentStatus) bool {
	allowed := map[AppointmentStatus][]AppointmentStatus{
		StatusScheduled: {StatusCompleted, StatusCanceled},
		StatusCompleted: {},
		StatusCanceled:  {},
	}

	for _, s := range allowed[a.Status] {
		if s == newStatus {
			return true
		}
	}
	return false
}

func (a *Appointment) Cancel(reason string, canceledBy uuid.UUID) error {
	if !a.CanTransitionTo(StatusCanceled) {
		return ErrInvalidStatusTransition
	}
	now := time.Now()
	a.Status = StatusCanceled
	a.CanceledAt = &now
	a.CancellationReason = reason
	a.CanceledBy = &canceledBy
	return nil
}

func (a *Appointment) Complete() error {
	if !a.CanTransitionTo(StatusCompleted) {
		return ErrInvalidStatusTransition
	}
	now := time.Now()
	a.Status = StatusCompleted
	a.CompletedAt = &now
	return nil
}

type BookAppointmentCommand struct {
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Start     time.Time
	End       time.Time
	Reason    string
	CreatedBy uuid.UUID
}

type CancelAppointmentCommand struct {
	Reason     string
	CanceledBy uuid.UUID
}

type ListAppointmentsQuery struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Status    *AppointmentStatus
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
}

type PagedAppointments struct {
	Appointments []*Appointment
	TotalCount   int64
	Page         int
	PageSize     int
	TotalPages   int
}
