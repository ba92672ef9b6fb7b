package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/otikev/health-app/internal/config"
	"github.com/otikev/health-app/internal/domain"
)

// clockSkew is tolerated on exp, nbf and iat between scheduler instances.
const clockSkew = 10 * time.Second

type tokenKind string

const (
	kindAccess  tokenKind = "access"
	kindRefresh tokenKind = "refresh"
)

var (
	ErrTokenExpired      = errors.New("token has expired")
	ErrTokenInvalid      = errors.New("token is invalid")
	ErrTokenTypeMismatch = errors.New("wrong token type")
)

// tokenClaims is the wire form of a scheduling session. The doctor and
// patient ids let the booking and availability handlers resolve ownership
// without a user lookup.
type tokenClaims struct {
	jwt.RegisteredClaims
	Email     string      `json:"email"`
	Role      domain.Role `json:"role"`
	DoctorID  *uuid.UUID  `json:"doctor_id,omitempty"`
	PatientID *uuid.UUID  `json:"patient_id,omitempty"`
	Kind      tokenKind   `json:"token_type"`
}

func (m *JWTManager) newTokenClaims(c *domain.Claims, kind tokenKind, now time.Time, ttl time.Duration) tokenClaims {
	return tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.cfg.Issuer,
			Subject:   c.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email:     c.Email,
		Role:      c.Role,
		DoctorID:  c.DoctorID,
		PatientID: c.PatientID,
		Kind:      kind,
	}
}

func (tc *tokenClaims) toDomain() (*domain.Claims, error) {
	userID, err := uuid.Parse(tc.Subject)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	switch tc.Role {
	case domain.RoleAdmin, domain.RoleDoctor, domain.RolePatient:
	default:
		return nil, ErrTokenInvalid
	}
	return &domain.Claims{
		UserID:    userID,
		Email:     tc.Email,
		Role:      tc.Role,
		DoctorID:  tc.DoctorID,
		PatientID: tc.PatientID,
	}, nil
}

// JWTManager issues and verifies HS256 session tokens.
type JWTManager struct {
	cfg    config.JWTConfig
	parser *jwt.Parser
	now    func() time.Time
}

func NewJWTManager(cfg config.JWTConfig) *JWTManager {
	return &JWTManager{
		cfg: cfg,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
			jwt.WithLeeway(clockSkew),
		),
		now: time.Now,
	}
}

func (m *JWTManager) GenerateTokenPair(claims *domain.Claims) (*domain.TokenPair, error) {
	now := m.now()

	access := m.newTokenClaims(claims, kindAccess, now, m.cfg.AccessTokenTTL)
	accessToken, err := m.sign(access)
	if err != nil {
		return nil, fmt.Errorf("signing access token: %w", err)
	}

	refreshToken, err := m.sign(m.newTokenClaims(claims, kindRefresh, now, m.cfg.RefreshTokenTTL))
	if err != nil {
		return nil, fmt.Errorf("signing refresh token: %w", err)
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    access.ExpiresAt.Time,
		TokenType:    "Bearer",
	}, nil
}

func (m *JWTManager) ValidateAccessToken(tokenString string) (*domain.Claims, error) {
	return m.verify(tokenString, kindAccess)
}

func (m *JWTManager) ValidateRefreshToken(tokenString string) (*domain.Claims, error) {
	return m.verify(tokenString, kindRefresh)
}

// CallerFromAccessToken verifies an access token and binds it to the
// request it arrived on.
func (m *JWTManager) CallerFromAccessToken(tokenString, ip, requestID string) (domain.Caller, error) {
	claims, err := m.ValidateAccessToken(tokenString)
	if err != nil {
		return domain.Caller{}, err
	}
	return domain.Caller{Claims: *claims, IP: ip, RequestID: requestID}, nil
}

func (m *JWTManager) sign(tc tokenClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, tc).SignedString([]byte(m.cfg.Secret))
}

func (m *JWTManager) verify(tokenString string, want tokenKind) (*domain.Claims, error) {
	var tc tokenClaims
	_, err := m.parser.ParseWithClaims(tokenString, &tc, func(*jwt.Token) (any, error) {
		return []byte(m.cfg.Secret), nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	case err != nil:
		return nil, ErrTokenInvalid
	}

	if tc.Kind != want {
		return nil, ErrTokenTypeMismatch
	}
	return tc.toDomain()
}
