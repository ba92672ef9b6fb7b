package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/otikev/health-app/internal/domain"
	"github.com/otikev/health-app/internal/domain/appointment"
	"github.com/otikev/health-app/internal/domain/availability"
	"github.com/otikev/health-app/internal/domain/interval"
	"github.com/otikev/health-app/internal/domain/patient"
	"github.com/otikev/health-app/pkg/metrics"
)

var ErrPatientInactive = errors.New("patient is not active")

type AppointmentService struct {
	repo        appointment.Repository
	windows     availability.Repository
	patientRepo patient.Repository
	cache       SlotCache
	auditSvc    *AuditService
	metrics     *metrics.Collector
	log         *zap.Logger
}

// NewAppointmentService wires the booking engine. cache may be nil.
func NewAppointmentService(
	repo appointment.Repository,
	windows availability.Repository,
	patientRepo patient.Repository,
	cache SlotCache,
	auditSvc *AuditService,
	m *metrics.Collector,
	log *zap.Logger,
) *AppointmentService {
	return &AppointmentService{
		repo:        repo,
		windows:     windows,
		patientRepo: patientRepo,
		cache:       cache,
		auditSvc:    auditSvc,
		metrics:     m,
		log:         log,
	}
}

// Book reserves [cmd.Start, cmd.End) with the doctor for the patient.
//
// Checks run in order: interval shape, window containment, then the
// conflict check and insert as one atomic step per doctor. A rejected
// booking leaves the ledger untouched.
func (s *AppointmentService) Book(ctx context.Context, caller domain.Caller, cmd *appointment.BookAppointmentCommand) (a *appointment.Appointment, err error) {
	ctx, span := tracer.Start(ctx, "AppointmentService.Book", trace.WithAttributes(
		attribute.String("doctor.id", cmd.DoctorID.String()),
		attribute.String("patient.id", cmd.PatientID.String()),
	))
	defer func() {
		s.recordBooking(err)
		endSpan(span, err)
	}()

	if !caller.ActsForPatient(cmd.PatientID) {
		return nil, ErrForbidden
	}

	iv, err := s.checkBookable(ctx, cmd.DoctorID, cmd.PatientID, cmd.Start, cmd.End)
	if err != nil {
		return nil, err
	}

	p, err := s.patientRepo.GetByID(ctx, cmd.PatientID)
	if err != nil {
		return nil, err
	}
	if !p.IsActive() {
		return nil, ErrPatientInactive
	}

	a = &appointment.Appointment{
		ID:        uuid.New(),
		PatientID: cmd.PatientID,
		DoctorID:  cmd.DoctorID,
		StartTime: iv.Start,
		EndTime:   iv.End,
		Reason:    cmd.Reason,
		CreatedBy: caller.UserID,
	}

	if err := s.repo.InsertIfNoConflict(ctx, a); err != nil {
		if errors.Is(err, appointment.ErrSlotConflict) {
			return nil, s.bookingError(cmd.DoctorID, cmd.PatientID, iv, appointment.ErrSlotConflict)
		}
		s.log.Error("failed to insert appointment", zap.Error(err))
		return nil, fmt.Errorf("booking appointment: %w", err)
	}

	invalidateSlots(ctx, s.cache, s.log, a.DoctorID)

	entry := auditEntry(caller, domain.ActionCreate, "appointment", a.ID.String())
	entry.Changes = fmt.Sprintf(`{"doctor_id":%q,"start":%q,"end":%q}`,
		a.DoctorID, a.StartTime.Format(time.RFC3339), a.EndTime.Format(time.RFC3339))
	s.auditSvc.LogAsync(entry)

	s.log.Info("appointment booked",
		zap.String("appointment_id", a.ID.String()),
		zap.String("doctor_id", a.DoctorID.String()),
	)

	return a, nil
}

// CheckBookable runs the booking checks without writing. A nil result is a
// snapshot; a concurrent booking may still take the interval first.
func (s *AppointmentService) CheckBookable(ctx context.Context, doctorID uuid.UUID, start, end time.Time) error {
	iv, err := s.checkBookable(ctx, doctorID, uuid.Nil, start, end)
	if err != nil {
		return err
	}

	conflict, err := s.repo.HasConflict(ctx, doctorID, iv, nil)
	if err != nil {
		return fmt.Errorf("checking conflicts: %w", err)
	}
	if conflict {
		return s.bookingError(doctorID, uuid.Nil, iv, appointment.ErrSlotConflict)
	}
	return nil
}

func (s *AppointmentService) checkBookable(ctx context.Context, doctorID, patientID uuid.UUID, start, end time.Time) (interval.TimeInterval, error) {
	iv, err := interval.New(start, end)
	if err != nil {
		return interval.TimeInterval{}, &appointment.BookingError{
			DoctorID: doctorID, PatientID: patientID, Start: start, End: end, Err: err,
		}
	}

	ok, err := s.windows.IsWithinAnyWindow(ctx, doctorID, iv)
	if err != nil {
		return iv, fmt.Errorf("checking availability: %w", err)
	}
	if !ok {
		return iv, s.bookingError(doctorID, patientID, iv, appointment.ErrNotAvailable)
	}
	return iv, nil
}

func (s *AppointmentService) GetAppointment(ctx context.Context, caller domain.Caller, id uuid.UUID) (*appointment.Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(caller, a) {
		return nil, ErrForbidden
	}

	s.auditSvc.LogAsync(auditEntry(caller, domain.ActionRead, "appointment", id.String()))

	return a, nil
}

func (s *AppointmentService) CancelAppointment(ctx context.Context, caller domain.Caller, id uuid.UUID, cmd *appointment.CancelAppointmentCommand) (*appointment.Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(caller, a) {
		return nil, ErrForbidden
	}

	if err := a.Cancel(cmd.Reason, caller.UserID); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, a); err != nil {
		return nil, fmt.Errorf("updating appointment status: %w", err)
	}

	invalidateSlots(ctx, s.cache, s.log, a.DoctorID)
	s.recordTransition(appointment.StatusCanceled)

	entry := auditEntry(caller, domain.ActionUpdate, "appointment", id.String())
	entry.Changes = fmt.Sprintf(`{"status":%q,"reason":%q}`, appointment.StatusCanceled, cmd.Reason)
	s.auditSvc.LogAsync(entry)

	return a, nil
}

// CompleteAppointment is reserved for the treating doctor and admins.
func (s *AppointmentService) CompleteAppointment(ctx context.Context, caller domain.Caller, id uuid.UUID) (*appointment.Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.ActsForDoctor(a.DoctorID) {
		return nil, ErrForbidden
	}

	if err := a.Complete(); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, a); err != nil {
		return nil, fmt.Errorf("updating appointment status: %w", err)
	}

	invalidateSlots(ctx, s.cache, s.log, a.DoctorID)
	s.recordTransition(appointment.StatusCompleted)

	entry := auditEntry(caller, domain.ActionUpdate, "appointment", id.String())
	entry.Changes = fmt.Sprintf(`{"status":%q}`, appointment.StatusCompleted)
	s.auditSvc.LogAsync(entry)

	return a, nil
}

// ListAppointments scopes patients and doctors to their own appointments.
func (s *AppointmentService) ListAppointments(ctx context.Context, caller domain.Caller, q *appointment.ListAppointmentsQuery) (*appointment.PagedAppointments, error) {
	switch caller.Role {
	case domain.RolePatient:
		if caller.PatientID == nil {
			return nil, ErrForbidden
		}
		q.PatientID = caller.PatientID
	case domain.RoleDoctor:
		if caller.DoctorID == nil {
			return nil, ErrForbidden
		}
		q.DoctorID = caller.DoctorID
	}
	if q.Status != nil && !q.Status.IsValid() {
		return nil, appointment.ErrInvalidStatus
	}
	q.Page, q.PageSize = normalizePage(q.Page, q.PageSize)
	return s.repo.List(ctx, q)
}

func canView(caller domain.Caller, a *appointment.Appointment) bool {
	return caller.ActsForPatient(a.PatientID) || caller.ActsForDoctor(a.DoctorID)
}

func (s *AppointmentService) bookingError(doctorID, patientID uuid.UUID, iv interval.TimeInterval, kind error) error {
	return &appointment.BookingError{DoctorID: doctorID, PatientID: patientID, Start: iv.Start, End: iv.End, Err: kind}
}

func (s *AppointmentService) recordBooking(err error) {
	if s.metrics == nil {
		return
	}
	outcome := metrics.OutcomeError
	switch {
	case err == nil:
		outcome = metrics.OutcomeBooked
	case errors.Is(err, appointment.ErrSlotConflict):
		outcome = metrics.OutcomeConflict
	case errors.Is(err, appointment.ErrNotAvailable):
		outcome = metrics.OutcomeNotAvailable
	case errors.Is(err, interval.ErrInvalidInterval), errors.Is(err, ErrForbidden):
		outcome = metrics.OutcomeInvalid
	}
	s.metrics.BookingsTotal.WithLabelValues(outcome).Inc()
}

func (s *AppointmentService) recordTransition(status appointment.AppointmentStatus) {
	if s.metrics != nil {
		s.metrics.AppointmentTransitions.WithLabelValues(string(status)).Inc()
	}
}
