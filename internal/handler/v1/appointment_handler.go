package v1

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/otikev/health-app/internal/domain"
	"github.com/otikev/health-app/internal/domain/appointment"
	"github.com/otikev/health-app/internal/service"
)

type AppointmentHandler struct {
	svc *service.AppointmentService
}

func NewAppointmentHandler(svc *service.AppointmentService) *AppointmentHandler {
	return &AppointmentHandler{svc: svc}
}

type bookAppointmentRequest struct {
	DoctorID uuid.UUID `json:"doctor_id" binding:"required"`
	// PatientID defaults to the caller's own record for patient accounts.
	PatientID *uuid.UUID `json:"patient_id"`
	Start     time.Time  `json:"start" binding:"required"`
	End       time.Time  `json:"end" binding:"required"`
	Reason    string     `json:"reason"`
}

type cancelAppointmentRequest struct {
	Reason string `json:"reason"`
}

type appointmentResponse struct {
	ID                 uuid.UUID                     `json:"id"`
	DoctorID           uuid.UUID                     `json:"doctor_id"`
	PatientID          uuid.UUID                     `json:"patient_id"`
	Start              time.Time                     `json:"start"`
	End                time.Time                     `json:"end"`
	Status             appointment.AppointmentStatus `json:"status"`
	Reason             string                        `json:"reason,omitempty"`
	CancellationReason string                        `json:"cancellation_reason,omitempty"`
	CanceledAt         *time.Time                    `json:"canceled_at,omitempty"`
	CompletedAt        *time.Time                    `json:"completed_at,omitempty"`
	CreatedAt          time.Time                     `json:"created_at"`
}

func toAppointmentResponse(a *appointment.Appointment) appointmentResponse {
	return appointmentResponse{
		ID:                 a.ID,
		DoctorID:           a.DoctorID,
		PatientID:          a.PatientID,
		Start:              a.StartTime,
		End:                a.EndTime,
		Status:             a.Status,
		Reason:             a.Reason,
		CancellationReason: a.CancellationReason,
		CanceledAt:         a.CanceledAt,
		CompletedAt:        a.CompletedAt,
		CreatedAt:          a.CreatedAt,
	}
}

func (h *AppointmentHandler) Book(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	var req bookAppointmentRequest
	if !bindJSON(c, &req) {
		return
	}

	patientID := req.PatientID
	if patientID == nil && caller.Role == domain.RolePatient {
		patientID = caller.PatientID
	}
	if patientID == nil {
		respondError(c, http.StatusBadRequest, "patient_id is required")
		return
	}

	a, err := h.svc.Book(c.Request.Context(), caller, &appointment.BookAppointmentCommand{
		DoctorID:  req.DoctorID,
		PatientID: *patientID,
		Start:     req.Start,
		End:       req.End,
		Reason:    req.Reason,
		CreatedBy: caller.UserID,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondCreated(c, toAppointmentResponse(a))
}

func (h *AppointmentHandler) Get(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	a, err := h.svc.GetAppointment(c.Request.Context(), caller, id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, toAppointmentResponse(a))
}

func (h *AppointmentHandler) Cancel(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	// The body is optional.
	var req cancelAppointmentRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	a, err := h.svc.CancelAppointment(c.Request.Context(), caller, id, &appointment.CancelAppointmentCommand{
		Reason:     req.Reason,
		CanceledBy: caller.UserID,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, toAppointmentResponse(a))
}

func (h *AppointmentHandler) Complete(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	a, err := h.svc.CompleteAppointment(c.Request.Context(), caller, id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, toAppointmentResponse(a))
}

// List accepts status, doctor_id, patient_id, date_from, date_to (RFC 3339), page and page_size.
func (h *AppointmentHandler) List(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	q := &appointment.ListAppointmentsQuery{
		Page:     parseQueryInt(c, "page", 1),
		PageSize: parseQueryInt(c, "page_size", 20),
	}
	if raw := c.Query("status"); raw != "" {
		status := appointment.AppointmentStatus(raw)
		q.Status = &status
	}
	for key, dst := range map[string]**uuid.UUID{"doctor_id": &q.DoctorID, "patient_id": &q.PatientID} {
		if raw := c.Query(key); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				respondError(c, http.StatusBadRequest, "invalid "+key+": must be a valid UUID")
				return
			}
			*dst = &id
		}
	}
	for key, dst := range map[string]**time.Time{"date_from": &q.DateFrom, "date_to": &q.DateTo} {
		if c.Query(key) != "" {
			t, ok := parseQueryTime(c, key)
			if !ok {
				return
			}
			*dst = &t
		}
	}

	page, err := h.svc.ListAppointments(c.Request.Context(), caller, q)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	out := make([]appointmentResponse, 0, len(page.Appointments))
	for _, a := range page.Appointments {
		out = append(out, toAppointmentResponse(a))
	}
	c.JSON(http.StatusOK, PagedResponse[appointmentResponse]{
		Data: out,
		Meta: PageMeta{Page: page.Page, PageSize: page.PageSize, TotalCount: page.TotalCount, TotalPages: page.TotalPages},
	})
}
