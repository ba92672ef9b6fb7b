package database

import (
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/otikev/health-app/pkg/metrics"
)

const startedAtKey = "instrumentation:started_at"

// Instrumentation is a gorm plugin that records query latency and logs slow statements.
type Instrumentation struct {
	metrics       *metrics.Collector
	log           *zap.Logger
	slowThreshold time.Duration
}

func NewInstrumentation(m *metrics.Collector, log *zap.Logger, slowThreshold time.Duration) *Instrumentation {
	return &Instrumentation{metrics: m, log: log, slowThreshold: slowThreshold}
}

func (p *Instrumentation) Name() string { return "health-app:instrumentation" }

func (p *Instrumentation) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	hooks := []struct {
		op     string
		before func(string, func(*gorm.DB)) error
		after  func(string, func(*gorm.DB)) error
	}{
		{"create", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register},
		{"query", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register},
		{"update", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register},
		{"delete", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register},
		{"row", cb.Row().Before("gorm:row").Register, cb.Row().After("gorm:row").Register},
		{"raw", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Register},
	}

	for _, h := range hooks {
		if err := h.before("instrumentation:before_"+h.op, p.before); err != nil {
			return err
		}
		if err := h.after("instrumentation:after_"+h.op, p.after(h.op)); err != nil {
			return err
		}
	}
	return nil
}

func (p *Instrumentation) before(db *gorm.DB) {
	db.InstanceSet(startedAtKey, time.Now())
}

func (p *Instrumentation) after(op string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		v, ok := db.InstanceGet(startedAtKey)
		if !ok {
			return
		}
		startedAt, ok := v.(time.Time)
		if !ok {
			return
		}
		elapsed := time.Since(startedAt)

		table := db.Statement.Table
		if table == "" {
			table = "unknown"
		}
		if p.metrics != nil {
			p.metrics.DBQueryDuration.WithLabelValues(op, table).Observe(elapsed.Seconds())
		}

		if p.slowThreshold > 0 && elapsed > p.slowThreshold && p.log != nil {
			p.log.Warn("slow query",
				zap.String("operation", op),
				zap.String("table", table),
				zap.Duration("elapsed", elapsed),
				zap.Int64("rows", db.Statement.RowsAffected),
			)
		}
	}
}
