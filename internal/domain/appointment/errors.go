package appointment

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAppointmentNotFound     = errors.New("appointment not found")
	ErrSlotConflict            = errors.New("appointment time slot is already booked")
	ErrNotAvailable            = errors.New("doctor is not available during the requested time")
	ErrInvalidStatusTransition = errors.New("invalid appointment status transition")
	ErrInvalidStatus           = errors.New("invalid appointment status")
)

// BookingError describes a rejected booking: the reason (ErrSlotConflict,
// ErrNotAvailable or interval.ErrInvalidInterval) and the input that was refused.
type BookingError struct {
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Start     time.Time
	End       time.Time
	Err       error
}

func (e *BookingError) Error() string {
	return fmt.Sprintf("booking doctor %s for patient %s at [%s, %s): %v",
		e.DoctorID, e.PatientID, e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339), e.Err)
}

func (e *BookingError) Unwrap() error { return e.Err }
