package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/ukydev/fuel-logistics/internal/cache"
	"github.com/ukydev/fuel-logistics/internal/models"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpiredToken       = errors.New("token expired")
	ErrRevokedToken       = errors.New("token revoked")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserInactive       = errors.New("user is inactive")
)

// ErrRevocationUnavailable means the revoked-token store could not be read.
var ErrRevocationUnavailable = errors.New("token revocation store unavailable")

const revokedPrefix = "revoked:"

// Service handles authentication operations
type Service struct {
	jwtSecret []byte
	tokenExp  time.Duration
	revoked   cache.Cache
	validate  *validator.Validate
}

// NewService creates a new authentication service. Revoked token IDs are kept in revoked.
func NewService(secret string, tokenExp time.Duration, revoked cache.Cache) (*Service, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if tokenExp <= 0 {
		tokenExp = 24 * time.Hour
	}
	if revoked == nil {
		revoked = cache.NewMemoryCache()
	}
	return &Service{
		jwtSecret: []byte(secret),
		tokenExp:  tokenExp,
		revoked:   revoked,
		validate:  validator.New(),
	}, nil
}

// HashPassword hashes a password using bcrypt
func (s *Service) HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(bytes), nil
}

// CheckPassword checks if a password matches a hash
func (s *Service) CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// GenerateToken generates a JWT token for a user
func (s *Service) GenerateToken(user *models.User) (string, error) {
	jti, err := newTokenID()
	if err != nil {
		return "", err
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": user.ID.Hex(),
		"email":   user.Email,
		"role":    string(user.Role),
		"jti":     jti,
		"exp":     now.Add(s.tokenExp).Unix(),
		"iat":     now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func newTokenID() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate token id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

// ValidateToken validates a JWT token and returns the claims
func (s *Service) ValidateToken(ctx context.Context, tokenString string) (*models.Claims, error) {
	// Remove "Bearer " prefix if present
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	userID, ok := claims["user_id"].(string)
	if !ok {
		return nil, ErrInvalidToken
	}
	email, ok := claims["email"].(string)
	if !ok {
		return nil, ErrInvalidToken
	}
	roleStr, ok := claims["role"].(string)
	if !ok {
		return nil, ErrInvalidToken
	}
	jti, ok := claims["jti"].(string)
	if !ok {
		return nil, ErrInvalidToken
	}
	exp, ok := claims["exp"].(float64)
	if !ok {
		return nil, ErrInvalidToken
	}

	revoked, err := s.IsRevoked(ctx, jti)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrRevokedToken
	}

	return &models.Claims{
		UserID:  userID,
		Email:   email,
		Role:    models.Role(roleStr),
		TokenID: jti,
		Exp:     int64(exp),
	}, nil
}

// Revoke invalidates the token described by claims until it would have expired.
func (s *Service) Revoke(ctx context.Context, claims *models.Claims) error {
	ttl := time.Until(time.Unix(claims.Exp, 0))
	if ttl <= 0 {
		return nil
	}
	if err := s.revoked.Set(ctx, revokedPrefix+claims.TokenID, []byte("1"), ttl); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// IsRevoked reports whether the token ID was revoked.
func (s *Service) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	_, err := s.revoked.Get(ctx, revokedPrefix+tokenID)
	if errors.Is(err, cache.ErrMiss) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrRevocationUnavailable, err)
	}
	return true, nil
}

// ExtractTokenFromHeader extracts token from Authorization header
func (s *Service) ExtractTokenFromHeader(authHeader string) (string, error) {
	if authHeader == "" {
		return "", ErrInvalidToken
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", ErrInvalidToken
	}

	return parts[1], nil
}

// ValidatePassword validates password strength
func (s *Service) ValidatePassword(password string) error {
	if len(password) < 8 {
		return errors.New("password must be at least 8 characters long")
	}
	return nil
}

// ValidateEmail validates email format
func (s *Service) ValidateEmail(email string) error {
	if err := s.validate.Var(email, "required,email"); err != nil {
		return errors.New("invalid email format")
	}
	return nil
}

// ValidateDisplayName validates the name shown in the dashboard header
func (s *Service) ValidateDisplayName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("display name is required")
	}
	if len(name) > 60 {
		return errors.New("display name must be less than 60 characters")
	}
	return nil
}
