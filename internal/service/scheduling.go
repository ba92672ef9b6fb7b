package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/otikev/health-app/internal/domain/availability"
	"github.com/otikev/health-app/internal/domain/interval"
)

var tracer = otel.Tracer("github.com/otikev/health-app/internal/service")

// SlotCache stores generated slot lists. Implementations must make
// Invalidate orphan every key handed out before it for that doctor.
type SlotCache interface {
	Key(ctx context.Context, doctorID uuid.UUID, date string, length time.Duration) (string, error)
	Get(ctx context.Context, key string) ([]interval.TimeInterval, bool, error)
	Set(ctx context.Context, key string, slots []interval.TimeInterval) error
	Invalidate(ctx context.Context, doctorID uuid.UUID) error
}

type SchedulingOptions struct {
	SlotStep         time.Duration
	DeduplicateSlots bool
	Location         *time.Location
}

func (o SchedulingOptions) location() *time.Location {
	if o.Location == nil {
		return time.UTC
	}
	return o.Location
}

func (o SchedulingOptions) slotOptions() availability.SlotOptions {
	return availability.SlotOptions{Step: o.SlotStep, Deduplicate: o.DeduplicateSlots}
}

// invalidateSlots runs after a committed schedule write. A failure leaves
// stale lists readable until their TTL runs out, so it is logged loudly.
func invalidateSlots(ctx context.Context, cache SlotCache, log *zap.Logger, doctorID uuid.UUID) {
	if cache == nil {
		return
	}
	if err := cache.Invalidate(ctx, doctorID); err != nil {
		log.Error("slot cache invalidation failed",
			zap.String("doctor_id", doctorID.String()),
			zap.Error(err),
		)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
