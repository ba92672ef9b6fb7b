package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/otikev/health-app/internal/domain"
	"github.com/otikev/health-app/internal/domain/patient"
	"github.com/otikev/health-app/pkg/metrics"
)

type PatientService struct {
	repo     patient.Repository
	users    UserRepository
	auditSvc *AuditService
	metrics  *metrics.Collector
	log      *zap.Logger
}

func NewPatientService(repo patient.Repository, users UserRepository, auditSvc *AuditService, m *metrics.Collector, log *zap.Logger) *PatientService {
	return &PatientService{
		repo:     repo,
		users:    users,
		auditSvc: auditSvc,
		metrics:  m,
		log:      log,
	}
}

// CreatePatient registers a patient on someone else's behalf. Admin only.
func (s *PatientService) CreatePatient(ctx context.Context, caller domain.Caller, cmd *patient.CreatePatientCommand) (*patient.Patient, error) {
	if !caller.IsAdmin() {
		return nil, ErrForbidden
	}
	if err := validatePatientCommand(cmd); err != nil {
		return nil, err
	}

	cmd.CreatedBy = caller.UserID
	p, err := registerPatient(ctx, s.users, s.repo, cmd)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.PatientsCreatedTotal.Inc()
	}

	s.auditSvc.LogAsync(auditEntry(caller, domain.ActionCreate, "patient", p.ID.String()))

	s.log.Info("patient created",
		zap.String("patient_id", p.ID.String()),
		zap.String("created_by", caller.UserID.String()),
	)

	return p, nil
}

func (s *PatientService) GetPatient(ctx context.Context, caller domain.Caller, id uuid.UUID) (*patient.Patient, error) {
	// Patients can only read their own record.
	if caller.Role == domain.RolePatient && !caller.ActsForPatient(id) {
		return nil, ErrForbidden
	}

	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.auditSvc.LogAsync(auditEntry(caller, domain.ActionRead, "patient", id.String()))

	return p, nil
}

func (s *PatientService) ListPatients(ctx context.Context, caller domain.Caller, q *patient.ListPatientsQuery) (*patient.PagedPatients, error) {
	if caller.Role == domain.RolePatient {
		return nil, ErrForbidden
	}
	q.Page, q.PageSize = normalizePage(q.Page, q.PageSize)
	return s.repo.List(ctx, q)
}

// registerPatient creates the profile first, then the account linked to it.
func registerPatient(ctx context.Context, users UserRepository, repo patient.Repository, cmd *patient.CreatePatientCommand) (*patient.Patient, error) {
	if err := ensureEmailFree(ctx, users, cmd.Email); err != nil {
		return nil, err
	}

	p := &patient.Patient{
		ID:        uuid.New(),
		FirstName: strings.TrimSpace(cmd.FirstName),
		LastName:  strings.TrimSpace(cmd.LastName),
		Email:     strings.ToLower(strings.TrimSpace(cmd.Email)),
		Phone:     strings.TrimSpace(cmd.Phone),
		Insurance: strings.TrimSpace(cmd.Insurance),
		Status:    patient.StatusActive,
		CreatedBy: cmd.CreatedBy,
	}
	if p.CreatedBy == uuid.Nil {
		// Self-registration: the account about to be created owns the record.
		p.CreatedBy = p.ID
	}

	if err := repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("creating patient: %w", err)
	}

	u, err := newAccount(p.Email, cmd.Password, domain.RolePatient)
	if err != nil {
		return nil, err
	}
	u.PatientID = &p.ID
	if err := users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("creating patient account: %w", err)
	}

	return p, nil
}

func validatePatientCommand(cmd *patient.CreatePatientCommand) error {
	var errs []string

	if strings.TrimSpace(cmd.FirstName) == "" {
		errs = append(errs, "first_name is required")
	}
	if strings.TrimSpace(cmd.LastName) == "" {
		errs = append(errs, "last_name is required")
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(cmd.Email)); err != nil {
		errs = append(errs, "email is invalid")
	}
	if len(cmd.Password) < minPasswordLength {
		errs = append(errs, fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func normalizePage(page, pageSize int) (int, int) {
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	if page <= 0 {
		page = 1
	}
	return page, pageSize
}
