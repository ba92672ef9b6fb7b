package v1

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/otikev/health-app/internal/domain/availability"
	"github.com/otikev/health-app/internal/domain/interval"
	"github.com/otikev/health-app/internal/service"
)

const (
	// defaultSlotMinutes applies when the duration query parameter is omitted.
	defaultSlotMinutes = 30
	// maxSlotMinutes keeps the requested length within one day.
	maxSlotMinutes = 24 * 60
)

type SchedulingHandler struct {
	availability *service.AvailabilityService
	appointments *service.AppointmentService
}

func NewSchedulingHandler(availabilitySvc *service.AvailabilityService, appointmentSvc *service.AppointmentService) *SchedulingHandler {
	return &SchedulingHandler{availability: availabilitySvc, appointments: appointmentSvc}
}

type addWindowRequest struct {
	Start time.Time `json:"start" binding:"required"`
	End   time.Time `json:"end" binding:"required"`
}

type windowResponse struct {
	ID       uuid.UUID `json:"id"`
	DoctorID uuid.UUID `json:"doctor_id"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

func toWindowResponse(w *availability.Window) windowResponse {
	return windowResponse{ID: w.ID, DoctorID: w.DoctorID, Start: w.StartTime, End: w.EndTime}
}

// slotResponse renders clock times in the scheduling timezone alongside full timestamps.
type slotResponse struct {
	Start    string    `json:"start"`
	End      string    `json:"end"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

type slotsResponse struct {
	DoctorID uuid.UUID      `json:"doctor_id"`
	Date     string         `json:"date"`
	Duration int            `json:"duration_minutes"`
	Slots    []slotResponse `json:"slots"`
}

func (h *SchedulingHandler) AddWindow(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	doctorID, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	var req addWindowRequest
	if !bindJSON(c, &req) {
		return
	}

	w, err := h.availability.AddWindow(c.Request.Context(), caller, &availability.AddWindowCommand{
		DoctorID:  doctorID,
		Start:     req.Start,
		End:       req.End,
		CreatedBy: caller.UserID,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondCreated(c, toWindowResponse(w))
}

func (h *SchedulingHandler) ListWindows(c *gin.Context) {
	doctorID, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	date, ok := h.parseDate(c)
	if !ok {
		return
	}

	windows, err := h.availability.WindowsOnDate(c.Request.Context(), doctorID, date)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	out := make([]windowResponse, 0, len(windows))
	for _, w := range windows {
		out = append(out, toWindowResponse(w))
	}
	respondOK(c, out)
}

// OpenSlots serves GET /doctors/:id/slots?date=YYYY-MM-DD&duration=30.
func (h *SchedulingHandler) OpenSlots(c *gin.Context) {
	doctorID, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	date, ok := h.parseDate(c)
	if !ok {
		return
	}

	minutes := defaultSlotMinutes
	if raw := c.Query("duration"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid duration: must be a whole number of minutes")
			return
		}
		minutes = v
	}
	if minutes > maxSlotMinutes {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: fmt.Sprintf("invalid duration: must not exceed %d minutes", maxSlotMinutes),
			Code:  "INVALID_DURATION",
		})
		return
	}

	slots, err := h.availability.OpenSlots(c.Request.Context(), doctorID, date, time.Duration(minutes)*time.Minute)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, slotsResponse{
		DoctorID: doctorID,
		Date:     date.Format(time.DateOnly),
		Duration: minutes,
		Slots:    h.renderSlots(slots),
	})
}

// Bookable serves GET /doctors/:id/bookable?start=...&end=... without reserving anything.
func (h *SchedulingHandler) Bookable(c *gin.Context) {
	doctorID, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	start, ok := parseQueryTime(c, "start")
	if !ok {
		return
	}
	end, ok := parseQueryTime(c, "end")
	if !ok {
		return
	}

	if err := h.appointments.CheckBookable(c.Request.Context(), doctorID, start, end); err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, gin.H{"bookable": true})
}

func (h *SchedulingHandler) parseDate(c *gin.Context) (time.Time, bool) {
	date, err := h.availability.ParseDate(c.Query("date"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid date: expected YYYY-MM-DD")
		return time.Time{}, false
	}
	return date, true
}

func (h *SchedulingHandler) renderSlots(slots []interval.TimeInterval) []slotResponse {
	loc := h.availability.Location()
	out := make([]slotResponse, 0, len(slots))
	for _, s := range slots {
		start, end := s.Start.In(loc), s.End.In(loc)
		out = append(out, slotResponse{
			Start:    start.Format("15:04"),
			End:      end.Format("15:04"),
			StartsAt: start,
			EndsAt:   end,
		})
	}
	return out
}
