package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/otikev/health-app/internal/cache"
	"github.com/otikev/health-app/internal/config"
	"github.com/otikev/health-app/internal/domain"
	"github.com/otikev/health-app/internal/domain/appointment"
	"github.com/otikev/health-app/internal/domain/availability"
	"github.com/otikev/health-app/internal/domain/doctor"
	"github.com/otikev/health-app/internal/domain/patient"
	v1 "github.com/otikev/health-app/internal/handler/v1"
	"github.com/otikev/health-app/internal/repository/memory"
	"github.com/otikev/health-app/internal/repository/postgres"
	"github.com/otikev/health-app/internal/service"
	"github.com/otikev/health-app/pkg/auth"
	"github.com/otikev/health-app/pkg/database"
	"github.com/otikev/health-app/pkg/logger"
	"github.com/otikev/health-app/pkg/metrics"
	"github.com/otikev/health-app/pkg/tracer"
)

type repositories struct {
	users        service.UserRepository
	doctors      doctor.Repository
	patients     patient.Repository
	windows      availability.Repository
	appointments appointment.Repository
	audit        service.AuditRepository
}

// app holds everything the commands share. close releases it in reverse order.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	metrics *metrics.Collector
	repos   repositories
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func bootstrap() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	log, err := logger.New(cfg.Log, cfg.App)
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}

	a := &app{cfg: cfg, log: log, metrics: metrics.NewCollector(cfg.App.Name, nil)}
	a.closers = append(a.closers, func() { _ = log.Sync() })

	switch cfg.Storage.Driver {
	case config.StorageDriverMemory:
		log.Warn("using in-memory storage; data is lost on restart")
		a.repos = repositories{
			users:        memory.NewUserRepository(),
			doctors:      memory.NewDoctorRepository(),
			patients:     memory.NewPatientRepository(),
			windows:      memory.NewAvailabilityRepository(),
			appointments: memory.NewAppointmentRepository(),
			audit:        memory.NewAuditRepository(),
		}
	default:
		db, err := openDatabase(cfg, a.metrics, log)
		if err != nil {
			a.close()
			return nil, err
		}
		if sqlDB, err := db.DB(); err == nil {
			a.closers = append(a.closers, func() { _ = sqlDB.Close() })
		}
		a.repos = repositories{
			users:        postgres.NewUserRepository(db),
			doctors:      postgres.NewDoctorRepository(db),
			patients:     postgres.NewPatientRepository(db),
			windows:      postgres.NewAvailabilityRepository(db),
			appointments: postgres.NewAppointmentRepository(db),
			audit:        postgres.NewAuditRepository(db),
		}
	}

	return a, nil
}

func openDatabase(cfg *config.Config, m *metrics.Collector, log *zap.Logger) (*gorm.DB, error) {
	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := db.Use(database.NewInstrumentation(m, log, cfg.Database.SlowQueryThreshold)); err != nil {
		return nil, fmt.Errorf("installing query instrumentation: %w", err)
	}
	log.Info("connected to database",
		zap.String("host", cfg.Database.Host),
		zap.String("name", cfg.Database.Name),
	)
	return db, nil
}

func runServer(ctx context.Context, adminEmail, adminPassword string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.close()
	cfg, log := a.cfg, a.log

	tp, err := tracer.Init(cfg.Tracing, cfg.App)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Scheduling.Location()
	if err != nil {
		return err
	}

	var slotCache service.SlotCache
	if cfg.Redis.Enabled {
		client, err := database.ConnectRedis(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer func(c *redis.Client) { _ = c.Close() }(client)
		slotCache = cache.NewSlotCache(client, cfg.Scheduling.SlotCacheTTL)
		log.Info("slot cache enabled", zap.String("addr", cfg.Redis.Addr()))
	}

	r := a.repos
	jwt := auth.NewJWTManager(cfg.JWT)
	auditSvc := service.NewAuditService(r.audit, a.metrics, log)
	defer auditSvc.Shutdown()

	opts := service.SchedulingOptions{
		SlotStep:         cfg.Scheduling.SlotStep,
		DeduplicateSlots: cfg.Scheduling.DeduplicateSlots,
		Location:         loc,
	}

	authSvc := service.NewAuthService(r.users, r.patients, jwt, a.metrics, log)
	if adminEmail != "" {
		if err := ensureAdmin(ctx, authSvc, adminEmail, adminPassword); err != nil {
			return err
		}
	}

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := v1.NewRouter(v1.RouterDeps{
		Config:       cfg,
		Log:          log,
		Metrics:      a.metrics,
		JWT:          jwt,
		Auth:         authSvc,
		Doctors:      service.NewDoctorService(r.doctors, r.users, auditSvc, a.metrics, log),
		Patients:     service.NewPatientService(r.patients, r.users, auditSvc, a.metrics, log),
		Availability: service.NewAvailabilityService(r.windows, r.appointments, r.doctors, slotCache, auditSvc, a.metrics, opts, log),
		Appointments: service.NewAppointmentService(r.appointments, r.windows, r.patients, slotCache, auditSvc, a.metrics, log),
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.String("storage", cfg.Storage.Driver),
			zap.String("timezone", loc.String()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func runMigrate() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Storage.Driver != config.StorageDriverPostgres {
		return fmt.Errorf("migrate requires STORAGE_DRIVER=%s", config.StorageDriverPostgres)
	}

	log, err := logger.New(cfg.Log, cfg.App)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	return database.Migrate(db, log)
}

func ensureAdmin(ctx context.Context, authSvc *service.AuthService, email, password string) error {
	_, err := authSvc.CreateAdmin(ctx, email, password)
	if errors.Is(err, domain.ErrEmailTaken) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("creating admin: %w", err)
	}
	return nil
}

func runCreateAdmin(ctx context.Context, email, password string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.close()

	jwt := auth.NewJWTManager(a.cfg.JWT)
	authSvc := service.NewAuthService(a.repos.users, a.repos.patients, jwt, a.metrics, a.log)
	u, err := authSvc.CreateAdmin(ctx, email, password)
	if err != nil {
		return fmt.Errorf("creating admin: %w", err)
	}
	a.log.Info("admin account created", zap.String("user_id", u.ID.String()), zap.String("email", u.Email))
	return nil
}
