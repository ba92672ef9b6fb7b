package availability

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidDuration = errors.New("slot duration must be positive")

// SlotQueryError reports a rejected open-slot query together with its input.
type SlotQueryError struct {
	DoctorID uuid.UUID
	Date     time.Time
	Duration time.Duration
	Err      error
}

func (e *SlotQueryError) Error() string {
	return fmt.Sprintf("open slots for doctor %s on %s (duration %s): %v",
		e.DoctorID, e.Date.Format(time.DateOnly), e.Duration, e.Err)
}

func (e *SlotQueryError) Unwrap() error { return e.Err }
