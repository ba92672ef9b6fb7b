package v1

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/otikev/health-app/internal/config"
	"github.com/otikev/health-app/internal/domain"
	"github.com/otikev/health-app/internal/handler/middleware"
	"github.com/otikev/health-app/internal/service"
	"github.com/otikev/health-app/pkg/auth"
	"github.com/otikev/health-app/pkg/metrics"
)

type RouterDeps struct {
	Config  *config.Config
	Log     *zap.Logger
	Metrics *metrics.Collector
	JWT     *auth.JWTManager

	Auth         *service.AuthService
	Doctors      *service.DoctorService
	Patients     *service.PatientService
	Availability *service.AvailabilityService
	Appointments *service.AppointmentService
}

func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Recovery(d.Log),
		middleware.AccessLog(d.Log),
		middleware.Metrics(d.Metrics),
		cors.New(cors.Config{
			AllowOrigins:     d.Config.CORS.AllowedOrigins,
			AllowMethods:     d.Config.CORS.AllowedMethods,
			AllowHeaders:     d.Config.CORS.AllowedHeaders,
			ExposeHeaders:    []string{middleware.RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           d.Config.CORS.MaxAge,
		}),
	)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": d.Config.App.Name})
	})
	r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))

	rl := d.Config.RateLimit
	global := middleware.NewIPRateLimiter(rate.Limit(rl.RequestsPerSecond), rl.BurstSize)
	authLimiter := middleware.NewIPRateLimiter(rate.Every(time.Minute/time.Duration(max(rl.AuthRequestsPerMinute, 1))), max(rl.AuthRequestsPerMinute, 1))

	api := r.Group("/api/v1", global.Middleware(d.Log))

	authH := NewAuthHandler(d.Auth)
	authGroup := api.Group("/auth", authLimiter.Middleware(d.Log))
	{
		authGroup.POST("/register", authH.Register)
		authGroup.POST("/login", authH.Login)
		authGroup.POST("/refresh", authH.Refresh)
	}

	protected := api.Group("", middleware.Authenticate(d.JWT))
	protected.POST("/auth/password", authH.ChangePassword)

	admin := middleware.RequireRole(domain.RoleAdmin)
	directory := NewDirectoryHandler(d.Doctors, d.Patients)
	scheduling := NewSchedulingHandler(d.Availability, d.Appointments)
	doctors := protected.Group("/doctors")
	{
		doctors.POST("", admin, directory.CreateDoctor)
		doctors.GET("", directory.ListDoctors)
		doctors.GET("/:id", directory.GetDoctor)

		doctors.POST("/:id/availability", middleware.RequireRole(domain.RoleAdmin, domain.RoleDoctor), scheduling.AddWindow)
		doctors.GET("/:id/availability", scheduling.ListWindows)
		doctors.GET("/:id/slots", scheduling.OpenSlots)
		doctors.GET("/:id/bookable", scheduling.Bookable)
	}

	patients := protected.Group("/patients")
	{
		patients.POST("", admin, directory.CreatePatient)
		patients.GET("", middleware.RequireRole(domain.RoleAdmin, domain.RoleDoctor), directory.ListPatients)
		patients.GET("/:id", directory.GetPatient)
	}

	appts := NewAppointmentHandler(d.Appointments)
	appointments := protected.Group("/appointments")
	{
		appointments.POST("", middleware.RequireRole(domain.RoleAdmin, domain.RolePatient), appts.Book)
		appointments.GET("", appts.List)
		appointments.GET("/:id", appts.Get)
		appointments.POST("/:id/cancel", appts.Cancel)
		appointments.POST("/:id/complete", middleware.RequireRole(domain.RoleAdmin, domain.RoleDoctor), appts.Complete)
	}

	return r
}
