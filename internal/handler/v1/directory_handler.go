package v1

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/otikev/health-app/internal/domain/doctor"
	"github.com/otikev/health-app/internal/domain/patient"
	"github.com/otikev/health-app/internal/service"
)

type DirectoryHandler struct {
	doctors  *service.DoctorService
	patients *service.PatientService
}

func NewDirectoryHandler(doctors *service.DoctorService, patients *service.PatientService) *DirectoryHandler {
	return &DirectoryHandler{doctors: doctors, patients: patients}
}

type createDoctorRequest struct {
	FirstName      string `json:"first_name" binding:"required"`
	LastName       string `json:"last_name" binding:"required"`
	Email          string `json:"email" binding:"required"`
	Specialization string `json:"specialization" binding:"required"`
	Password       string `json:"password" binding:"required"`
}

type doctorResponse struct {
	ID             uuid.UUID `json:"id"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	Email          string    `json:"email"`
	Specialization string    `json:"specialization"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}

func toDoctorResponse(d *doctor.Doctor) doctorResponse {
	return doctorResponse{
		ID:             d.ID,
		FirstName:      d.FirstName,
		LastName:       d.LastName,
		Email:          d.Email,
		Specialization: d.Specialization,
		IsActive:       d.IsActive,
		CreatedAt:      d.CreatedAt,
	}
}

type createPatientRequest struct {
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
	Email     string `json:"email" binding:"required"`
	Password  string `json:"password" binding:"required"`
	Phone     string `json:"phone"`
	Insurance string `json:"insurance"`
}

type patientResponse struct {
	ID        uuid.UUID      `json:"id"`
	FirstName string         `json:"first_name"`
	LastName  string         `json:"last_name"`
	Email     string         `json:"email"`
	Phone     string         `json:"phone,omitempty"`
	Insurance string         `json:"insurance,omitempty"`
	Status    patient.Status `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
}

func toPatientResponse(p *patient.Patient) patientResponse {
	return patientResponse{
		ID:        p.ID,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Email:     p.Email,
		Phone:     p.Phone,
		Insurance: p.Insurance,
		Status:    p.Status,
		CreatedAt: p.CreatedAt,
	}
}

func (h *DirectoryHandler) CreateDoctor(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	var req createDoctorRequest
	if !bindJSON(c, &req) {
		return
	}

	d, err := h.doctors.CreateDoctor(c.Request.Context(), caller, &doctor.CreateDoctorCommand{
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Email:          req.Email,
		Specialization: req.Specialization,
		Password:       req.Password,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondCreated(c, toDoctorResponse(d))
}

func (h *DirectoryHandler) GetDoctor(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	d, err := h.doctors.GetDoctor(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, toDoctorResponse(d))
}

func (h *DirectoryHandler) ListDoctors(c *gin.Context) {
	page, err := h.doctors.ListDoctors(c.Request.Context(), &doctor.ListDoctorsQuery{
		Specialization: c.Query("specialization"),
		Page:           parseQueryInt(c, "page", 1),
		PageSize:       parseQueryInt(c, "page_size", 20),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	out := make([]doctorResponse, 0, len(page.Doctors))
	for _, d := range page.Doctors {
		out = append(out, toDoctorResponse(d))
	}
	c.JSON(http.StatusOK, PagedResponse[doctorResponse]{
		Data: out,
		Meta: PageMeta{Page: page.Page, PageSize: page.PageSize, TotalCount: page.TotalCount, TotalPages: page.TotalPages},
	})
}

func (h *DirectoryHandler) CreatePatient(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	var req createPatientRequest
	if !bindJSON(c, &req) {
		return
	}

	p, err := h.patients.CreatePatient(c.Request.Context(), caller, &patient.CreatePatientCommand{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
		Phone:     req.Phone,
		Insurance: req.Insurance,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondCreated(c, toPatientResponse(p))
}

func (h *DirectoryHandler) GetPatient(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	p, err := h.patients.GetPatient(c.Request.Context(), caller, id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, toPatientResponse(p))
}

func (h *DirectoryHandler) ListPatients(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	page, err := h.patients.ListPatients(c.Request.Context(), caller, &patient.ListPatientsQuery{
		Search:   c.Query("search"),
		Page:     parseQueryInt(c, "page", 1),
		PageSize: parseQueryInt(c, "page_size", 20),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	out := make([]patientResponse, 0, len(page.Patients))
	for _, p := range page.Patients {
		out = append(out, toPatientResponse(p))
	}
	c.JSON(http.StatusOK, PagedResponse[patientResponse]{
		Data: out,
		Meta: PageMeta{Page: page.Page, PageSize: page.PageSize, TotalCount: page.TotalCount, TotalPages: page.TotalPages},
	})
}
