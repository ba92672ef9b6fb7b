package availability

import (
	"time"

	"github.com/google/uuid"

	"github.com/otikev/health-app/internal/domain/interval"
)

// Window is a doctor's declared willingness to be booked during [StartTime, EndTime).
// Windows are never updated; a changed schedule is expressed by adding new windows.
type Window struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time `gorm:"autoCreateTime"`

	DoctorID  uuid.UUID `gorm:"column:doctor_id;type:uuid;not null;index"`
	StartTime time.Time `gorm:"column:start_time;not null;index"`
	EndTime   time.Time `gorm:"column:end_time;not null"`

	CreatedBy uuid.UUID `gorm:"column:created_by;type:uuid;not null"`
}

func (Window) TableName() string {
	return "scheduling.availability_windows"
}

func (w *Window) Interval() interval.TimeInterval {
	return interval.TimeInterval{Start: w.StartTime, End: w.EndTime}
}

// NewWindow validates the range and builds an unsaved window.
func NewWindow(doctorID uuid.UUID, iv interval.TimeInterval, createdBy uuid.UUID) (*Window, error) {
	if _, err := interval.New(iv.Start, iv.End); err != nil {
		return nil, err
	}
	return &Window{
		ID:        uuid.New(),
		DoctorID:  doctorID,
		StartTime: iv.Start,
		EndTime:   iv.End,
		CreatedBy: createdBy,
	}, nil
}

type AddWindowCommand struct {
	DoctorID  uuid.UUID
	Start     time.Time
	End       time.Time
	CreatedBy uuid.UUID
}
