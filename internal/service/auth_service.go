package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/otikev/health-app/internal/domain"
	"github.com/otikev/health-app/internal/domain/patient"
	"github.com/otikev/health-app/pkg/auth"
	"github.com/otikev/health-app/pkg/metrics"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountLocked      = errors.New("account is temporarily locked due to multiple failed login attempts")
	ErrAccountInactive    = errors.New("account is inactive")
)

const maxFailedAttempts = 5

const lockDuration = 15 * time.Minute

const minPasswordLength = 12

// passwordHashCost is lowered by tests.
var passwordHashCost = bcrypt.DefaultCost

type UserRepository interface {
	Create(ctx context.Context, u *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	UpdateLoginState(ctx context.Context, u *domain.User) error
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
}

type AuthService struct {
	userRepo    UserRepository
	patientRepo patient.Repository
	jwtManager  *auth.JWTManager
	metrics     *metrics.Collector
	log         *zap.Logger
}

func NewAuthService(userRepo UserRepository, patientRepo patient.Repository, jwtManager *auth.JWTManager, m *metrics.Collector, log *zap.Logger) *AuthService {
	return &AuthService{userRepo: userRepo, patientRepo: patientRepo, jwtManager: jwtManager, metrics: m, log: log}
}

// Register creates a patient profile together with its login account.
func (s *AuthService) Register(ctx context.Context, cmd *patient.CreatePatientCommand) (*patient.Patient, error) {
	if err := validatePatientCommand(cmd); err != nil {
		return nil, err
	}
	p, err := registerPatient(ctx, s.userRepo, s.patientRepo, cmd)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.PatientsCreatedTotal.Inc()
	}
	s.log.Info("patient registered", zap.String("patient_id", p.ID.String()))
	return p, nil
}

// CreateAdmin bootstraps an administrator account.
func (s *AuthService) CreateAdmin(ctx context.Context, email, password string) (*domain.User, error) {
	var errs []string
	if _, err := mail.ParseAddress(email); err != nil {
		errs = append(errs, "email is invalid")
	}
	if len(password) < minPasswordLength {
		errs = append(errs, fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	if len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}
	if err := ensureEmailFree(ctx, s.userRepo, email); err != nil {
		return nil, err
	}

	u, err := newAccount(email, password, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if err := s.userRepo.Create(ctx, u); err != nil {
		return nil, err
	}
	s.log.Info("admin account created", zap.String("user_id", u.ID.String()))
	return u, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string, ip string) (*domain.TokenPair, error) {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		// Burn comparable time so response latency does not reveal unknown emails.
		_, _ = bcrypt.GenerateFromPassword([]byte(password), passwordHashCost)
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, ErrAccountInactive
	}

	if user.IsLocked() {
		return nil, ErrAccountLocked
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		user.FailedLoginCount++
		if user.FailedLoginCount >= maxFailedAttempts {
			until := time.Now().Add(lockDuration)
			user.LockedUntil = &until
			user.FailedLoginCount = 0
		}
		if err := s.userRepo.UpdateLoginState(ctx, user); err != nil {
			s.log.Error("failed to record login attempt", zap.Error(err))
		}
		s.log.Warn("failed login attempt",
			zap.String("user_id", user.ID.String()),
			zap.String("ip", ip),
		)
		return nil, ErrInvalidCredentials
	}

	now := time.Now()
	user.FailedLoginCount = 0
	user.LockedUntil = nil
	user.LastLoginAt = &now
	if err := s.userRepo.UpdateLoginState(ctx, user); err != nil {
		s.log.Error("failed to record login", zap.Error(err))
	}

	pair, err := s.jwtManager.GenerateTokenPair(claimsFor(user))
	if err != nil {
		s.log.Error("failed to generate token pair", zap.Error(err))
		return nil, fmt.Errorf("generating tokens: %w", err)
	}

	s.log.Info("user logged in",
		zap.String("user_id", user.ID.String()),
		zap.String("ip", ip),
	)

	return pair, nil
}

// RefreshToken issues a new token pair given a valid refresh token.
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	claims, err := s.jwtManager.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	// The account may have been disabled since the token was issued.
	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil || !user.IsActive {
		return nil, ErrInvalidCredentials
	}

	return s.jwtManager.GenerateTokenPair(claimsFor(user))
}

// ChangePassword updates a user's password after verifying the current one.
func (s *AuthService) ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(currentPassword)); err != nil {
		return ErrInvalidCredentials
	}

	if len(newPassword) < minPasswordLength {
		return &ValidationError{Fields: []string{fmt.Sprintf("password must be at least %d characters", minPasswordLength)}}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), passwordHashCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	return s.userRepo.UpdatePassword(ctx, userID, string(hash))
}

func claimsFor(u *domain.User) *domain.Claims {
	return &domain.Claims{
		UserID:    u.ID,
		Email:     u.Email,
		Role:      u.Role,
		DoctorID:  u.DoctorID,
		PatientID: u.PatientID,
	}
}

func newAccount(email, password string, role domain.Role) (*domain.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), passwordHashCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}
	return &domain.User{
		ID:           uuid.New(),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: string(hash),
		Role:         role,
		IsActive:     true,
	}, nil
}

// ensureEmailFree fails with domain.ErrEmailTaken when an account already uses email.
func ensureEmailFree(ctx context.Context, users UserRepository, email string) error {
	_, err := users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return domain.ErrEmailTaken
	case errors.Is(err, domain.ErrUserNotFound):
		return nil
	default:
		return fmt.Errorf("checking email: %w", err)
	}
}
