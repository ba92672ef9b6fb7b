package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/otikev/health-app/internal/domain"
	"github.com/otikev/health-app/internal/domain/doctor"
	"github.com/otikev/health-app/pkg/metrics"
)

type DoctorService struct {
	repo     doctor.Repository
	users    UserRepository
	auditSvc *AuditService
	metrics  *metrics.Collector
	log      *zap.Logger
}

func NewDoctorService(repo doctor.Repository, users UserRepository, auditSvc *AuditService, m *metrics.Collector, log *zap.Logger) *DoctorService {
	return &DoctorService{repo: repo, users: users, auditSvc: auditSvc, metrics: m, log: log}
}

// CreateDoctor adds a doctor profile and the account the doctor signs in with.
func (s *DoctorService) CreateDoctor(ctx context.Context, caller domain.Caller, cmd *doctor.CreateDoctorCommand) (*doctor.Doctor, error) {
	if !caller.IsAdmin() {
		return nil, ErrForbidden
	}
	if err := validateDoctorCommand(cmd); err != nil {
		return nil, err
	}
	if err := ensureEmailFree(ctx, s.users, cmd.Email); err != nil {
		return nil, err
	}

	d := &doctor.Doctor{
		ID:             uuid.New(),
		FirstName:      strings.TrimSpace(cmd.FirstName),
		LastName:       strings.TrimSpace(cmd.LastName),
		Email:          strings.ToLower(strings.TrimSpace(cmd.Email)),
		Specialization: strings.TrimSpace(cmd.Specialization),
		IsActive:       true,
		CreatedBy:      caller.UserID,
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("creating doctor: %w", err)
	}

	u, err := newAccount(d.Email, cmd.Password, domain.RoleDoctor)
	if err != nil {
		return nil, err
	}
	u.DoctorID = &d.ID
	if err := s.users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("creating doctor account: %w", err)
	}

	if s.metrics != nil {
		s.metrics.DoctorsCreatedTotal.Inc()
	}
	s.auditSvc.LogAsync(auditEntry(caller, domain.ActionCreate, "doctor", d.ID.String()))
	s.log.Info("doctor created", zap.String("doctor_id", d.ID.String()))

	return d, nil
}

func (s *DoctorService) GetDoctor(ctx context.Context, id uuid.UUID) (*doctor.Doctor, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *DoctorService) ListDoctors(ctx context.Context, q *doctor.ListDoctorsQuery) (*doctor.PagedDoctors, error) {
	q.Page, q.PageSize = normalizePage(q.Page, q.PageSize)
	return s.repo.List(ctx, q)
}

func validateDoctorCommand(cmd *doctor.CreateDoctorCommand) error {
	var errs []string

	if strings.TrimSpace(cmd.FirstName) == "" {
		errs = append(errs, "first_name is required")
	}
	if strings.TrimSpace(cmd.LastName) == "" {
		errs = append(errs, "last_name is required")
	}
	if strings.TrimSpace(cmd.Specialization) == "" {
		errs = append(errs, "specialization is required")
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
