package service

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/otikev/health-app/internal/config"
	"github.com/otikev/health-app/internal/domain"
	"github.com/otikev/health-app/internal/domain/patient"
	"github.com/otikev/health-app/internal/repository/memory"
	"github.com/otikev/health-app/pkg/auth"
	"github.com/otikev/health-app/pkg/metrics"
)

const strongPassword = "correct-horse-battery"

func newAuthService(t *testing.T) (*AuthService, *memory.UserRepository, *memory.PatientRepository) {
	t.Helper()
	users := memory.NewUserRepository()
	patients := memory.NewPatientRepository()
	jwt := auth.NewJWTManager(config.JWTConfig{
		Secret:          "unit-test-secret-with-enough-length",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
		Issuer:          "health-app-test",
	})
	svc := NewAuthService(users, patients, jwt, metrics.NewCollector("test", prometheus.NewRegistry()), zap.NewNop())
	return svc, users, patients
}

func registerCmd() *patient.CreatePatientCommand {
	return &patient.CreatePatientCommand{
		FirstName: "Grace",
		LastName:  "Njeri",
		Email:     "Grace.Njeri@Example.com",
		Phone:     "+254700000000",
		Password:  strongPassword,
	}
}

func TestAuthService_RegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	svc, users, patients := newAuthService(t)

	p, err := svc.Register(ctx, registerCmd())
	require.NoError(t, err)
	assert.Equal(t, "grace.njeri@example.com", p.Email)

	stored, err := patients.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsActive())

	u, err := users.GetByEmail(ctx, "grace.njeri@example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.RolePatient, u.Role)
	require.NotNil(t, u.PatientID)
	assert.Equal(t, p.ID, *u.PatientID)

	pair, err := svc.Login(ctx, "GRACE.NJERI@example.com", strongPassword, "127.0.0.1")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)

	refreshed, err := svc.RefreshToken(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)

	_, err = svc.RefreshToken(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthService_RegisterValidation(t *testing.T) {
	svc, _, _ := newAuthService(t)

	_, err := svc.Register(context.Background(), &patient.CreatePatientCommand{Email: "nope", Password: "short"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Fields, 4)
}

func TestAuthService_RegisterDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newAuthService(t)

	_, err := svc.Register(ctx, registerCmd())
	require.NoError(t, err)
	_, err = svc.Register(ctx, registerCmd())
	assert.ErrorIs(t, err, domain.ErrEmailTaken)
}

func TestAuthService_LockoutAfterFailedAttempts(t *testing.T) {
	ctx := context.Background()
	svc, users, _ := newAuthService(t)
	_, err := svc.Register(ctx, registerCmd())
	require.NoError(t, err)

	for i := 0; i < maxFailedAttempts; i++ {
		_, err := svc.Login(ctx, "grace.njeri@example.com", "wrong-password!", "127.0.0.1")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}

	_, err = svc.Login(ctx, "grace.njeri@example.com", strongPassword, "127.0.0.1")
	assert.ErrorIs(t, err, ErrAccountLocked)

	u, err := users.GetByEmail(ctx, "grace.njeri@example.com")
	require.NoError(t, err)
	require.NotNil(t, u.LockedUntil)
	assert.WithinDuration(t, time.Now().Add(lockDuration), *u.LockedUntil, 5*time.Second)
}

func TestAuthService_LoginUnknownEmail(t *testing.T) {
	svc, _, _ := newAuthService(t)
	_, err := svc.Login(context.Background(), "ghost@example.com", strongPassword, "127.0.0.1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthService_CreateAdminAndChangePassword(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newAuthService(t)

	admin, err := svc.CreateAdmin(ctx, "ops@clinic.test", strongPassword)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, admin.Role)

	_, err = svc.CreateAdmin(ctx, "ops@clinic.test", strongPassword)
	assert.ErrorIs(t, err, domain.ErrEmailTaken)

	assert.ErrorIs(t, svc.ChangePassword(ctx, admin.ID, "not-the-password", "another-strong-one"), ErrInvalidCredentials)

	var ve *ValidationError
	assert.ErrorAs(t, svc.ChangePassword(ctx, admin.ID, strongPassword, "short"), &ve)

	require.NoError(t, svc.ChangePassword(ctx, admin.ID, strongPassword, "another-strong-one"))
	_, err = svc.Login(ctx, "ops@clinic.test", "another-strong-one", "127.0.0.1")
	assert.NoError(t, err)
}
