package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/glossbook/auth-backend/internal/domain"
	"github.com/glossbook/auth-backend/pkg/config"
)

var ErrTokenInvalidOrExpired = errors.New("token invalid or expired")

// TokenService issues and verifies the legacy bearer tokens still used
// by mobile clients that have no cookie jar. Tokens carry the same
// identity snapshot a session does and are not revocable before expiry.
type TokenService struct {
	secret []byte
	expiry time.Duration
	issuer string
	logger *zap.Logger
}

// NewTokenService creates a new TokenService
func NewTokenService(cfg *config.JWTConfig, logger *zap.Logger) *TokenService {
	return &TokenService{
		secret: []byte(cfg.Secret),
		expiry: time.Duration(cfg.ExpiryDays) * 24 * time.Hour,
		issuer: cfg.Issuer,
		logger: logger.Named("token-service"),
	}
}

// Sign issues a bearer token for an authenticated user.
func (s *TokenService) Sign(user *domain.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":            user.ID.String(),
		"role":           string(user.Role),
		"display_name":   user.DisplayName(),
		"phone":          user.Phone,
		"phone_verified": user.PhoneVerified,
		"email_verified": user.EmailVerified,
		"iat":            now.Unix(),
		"exp":            now.Add(s.expiry).Unix(),
		"iss":            s.issuer,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify checks a bearer token and returns the identity it carries.
// All failure modes collapse to ErrTokenInvalidOrExpired.
func (s *TokenService) Verify(tokenString string) (*domain.IdentitySnapshot, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrTokenInvalidOrExpired
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrTokenInvalidOrExpired
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, ErrTokenInvalidOrExpired
	}
	role, _ := claims["role"].(string)
	displayName, _ := claims["display_name"].(string)
	phone, _ := claims["phone"].(string)
	phoneVerified, _ := claims["phone_verified"].(bool)
	emailVerified, _ := claims["email_verified"].(bool)

	return &domain.IdentitySnapshot{
		UserID:        sub,
		Role:          domain.Role(role),
		DisplayName:   displayName,
		Phone:         phone,
		PhoneVerified: phoneVerified,
		EmailVerified: emailVerified,
	}, nil
}
