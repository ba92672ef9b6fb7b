package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/otikev/health-app/internal/domain"
	"github.com/otikev/health-app/internal/domain/appointment"
	"github.com/otikev/health-app/internal/domain/availability"
	"github.com/otikev/health-app/internal/domain/doctor"
	"github.com/otikev/health-app/internal/domain/interval"
	"github.com/otikev/health-app/pkg/metrics"
)

type AvailabilityService struct {
	windows      availability.Repository
	appointments appointment.Repository
	doctors      doctor.Repository
	cache        SlotCache
	auditSvc     *AuditService
	metrics      *metrics.Collector
	opts         SchedulingOptions
	log          *zap.Logger
}

// NewAvailabilityService wires the slot generator. cache may be nil.
func NewAvailabilityService(
	windows availability.Repository,
	appointments appointment.Repository,
	doctors doctor.Repository,
	cache SlotCache,
	auditSvc *AuditService,
	m *metrics.Collector,
	opts SchedulingOptions,
	log *zap.Logger,
) *AvailabilityService {
	return &AvailabilityService{
		windows:      windows,
		appointments: appointments,
		doctors:      doctors,
		cache:        cache,
		auditSvc:     auditSvc,
		metrics:      m,
		opts:         opts,
		log:          log,
	}
}

// ParseDate reads a YYYY-MM-DD calendar date in the scheduling timezone.
func (s *AvailabilityService) ParseDate(raw string) (time.Time, error) {
	return time.ParseInLocation(time.DateOnly, raw, s.opts.location())
}

func (s *AvailabilityService) Location() *time.Location {
	return s.opts.location()
}

// AddWindow declares a period during which the doctor can be booked.
// Overlapping windows are accepted as-is.
func (s *AvailabilityService) AddWindow(ctx context.Context, caller domain.Caller, cmd *availability.AddWindowCommand) (w *availability.Window, err error) {
	ctx, span := tracer.Start(ctx, "AvailabilityService.AddWindow", trace.WithAttributes(
		attribute.String("doctor.id", cmd.DoctorID.String()),
	))
	defer func() { endSpan(span, err) }()

	if !caller.ActsForDoctor(cmd.DoctorID) {
		return nil, ErrForbidden
	}

	iv, err := interval.New(cmd.Start, cmd.End)
	if err != nil {
		return nil, err
	}

	if _, err := s.doctors.GetByID(ctx, cmd.DoctorID); err != nil {
		return nil, err
	}

	w, err = availability.NewWindow(cmd.DoctorID, iv, caller.UserID)
	if err != nil {
		return nil, err
	}
	if err := s.windows.Create(ctx, w); err != nil {
		s.log.Error("failed to create availability window", zap.Error(err))
		return nil, fmt.Errorf("creating availability window: %w", err)
	}

	invalidateSlots(ctx, s.cache, s.log, cmd.DoctorID)
	if s.metrics != nil {
		s.metrics.AvailabilityWindowsTotal.Inc()
	}

	entry := auditEntry(caller, domain.ActionCreate, "availability_window", w.ID.String())
	entry.Changes = fmt.Sprintf(`{"doctor_id":%q,"start":%q,"end":%q}`,
		w.DoctorID, w.StartTime.Format(time.RFC3339), w.EndTime.Format(time.RFC3339))
	s.auditSvc.LogAsync(entry)

	return w, nil
}

// WindowsOnDate lists the doctor's windows intersecting the calendar day, earliest first.
func (s *AvailabilityService) WindowsOnDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*availability.Window, error) {
	day := interval.Day(date, s.opts.location())
	windows, err := s.windows.ListForDoctorOnDate(ctx, doctorID, day)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(windows, func(i, j int) bool { return windows[i].StartTime.Before(windows[j].StartTime) })
	return windows, nil
}

// OpenSlots lists every bookable slot of the given length on the calendar day
// containing date. No windows yields an empty list, not an error.
func (s *AvailabilityService) OpenSlots(ctx context.Context, doctorID uuid.UUID, date time.Time, length time.Duration) (slots []interval.TimeInterval, err error) {
	ctx, span := tracer.Start(ctx, "AvailabilityService.OpenSlots", trace.WithAttributes(
		attribute.String("doctor.id", doctorID.String()),
		attribute.String("date", date.Format(time.DateOnly)),
		attribute.Int64("slot.minutes", int64(length/time.Minute)),
	))
	defer func() { endSpan(span, err) }()

	if length <= 0 {
		return nil, &availability.SlotQueryError{DoctorID: doctorID, Date: date, Duration: length, Err: availability.ErrInvalidDuration}
	}

	day := interval.Day(date, s.opts.location())

	cacheKey, cacheResult := s.cacheKey(ctx, doctorID, day, length)
	if cacheKey != "" {
		cached, found, err := s.cache.Get(ctx, cacheKey)
		switch {
		case err != nil:
			s.log.Warn("slot cache read failed", zap.Error(err))
		case found:
			s.recordSlotQuery(metrics.CacheHit, len(cached))
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return cached, nil
		}
	}

	slots, err = s.computeSlots(ctx, doctorID, day, length)
	if err != nil {
		return nil, err
	}

	if cacheKey != "" {
		if err := s.cache.Set(ctx, cacheKey, slots); err != nil {
			s.log.Warn("slot cache write failed", zap.Error(err))
		}
	}
	s.recordSlotQuery(cacheResult, len(slots))
	return slots, nil
}

func (s *AvailabilityService) computeSlots(ctx context.Context, doctorID uuid.UUID, day interval.TimeInterval, length time.Duration) ([]interval.TimeInterval, error) {
	windows, err := s.windows.ListForDoctorOnDate(ctx, doctorID, day)
	if err != nil {
		return nil, fmt.Errorf("loading availability windows: %w", err)
	}
	if len(windows) == 0 {
		return []interval.TimeInterval{}, nil
	}

	appts, err := s.appointments.ListForDoctorOnDate(ctx, doctorID, day)
	if err != nil {
		return nil, fmt.Errorf("loading booked appointments: %w", err)
	}
	booked := make([]interval.TimeInterval, 0, len(appts))
	for _, a := range appts {
		booked = append(booked, a.Interval())
	}

	slots, err := availability.GenerateSlots(day, windows, booked, length, s.opts.slotOptions())
	if err != nil {
		return nil, &availability.SlotQueryError{DoctorID: doctorID, Date: day.Start, Duration: length, Err: err}
	}
	return slots, nil
}

// cacheKey resolves the key before any ledger read. An empty key means the
// cache is off or unreachable and the query goes straight to storage.
func (s *AvailabilityService) cacheKey(ctx context.Context, doctorID uuid.UUID, day interval.TimeInterval, length time.Duration) (string, string) {
	if s.cache == nil {
		return "", metrics.CacheDisabled
	}
	key, err := s.cache.Key(ctx, doctorID, day.Start.Format(time.DateOnly), length)
	if err != nil {
		s.log.Warn("slot cache unavailable", zap.Error(err))
		return "", metrics.CacheDisabled
	}
	return key, metrics.CacheMiss
}

func (s *AvailabilityService) recordSlotQuery(result string, n int) {
	if s.metrics == nil {
		return
	}
	s.metrics.SlotQueriesTotal.WithLabelValues(result).Inc()
	s.metrics.SlotsReturned.Observe(float64(n))
}
