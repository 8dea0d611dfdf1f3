// Package auth issues and validates the bearer tokens that guard the turns API.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles for role-based access control
const (
	RoleAdmin  = "admin"  // Token issuance and all reads
	RoleViewer = "viewer" // Read-only access to turns and tracks
)

const issuer = "ads-bturns"

var (
	// ErrInvalidToken is returned when token validation fails
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrUnknownRole is returned when a token is requested for an unknown role
	ErrUnknownRole = errors.New("unknown role")
)

// Claims represents the JWT claims of an API client
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Config holds authentication configuration
type Config struct {
	JWTSecret     string        // Secret key for signing JWTs
	TokenDuration time.Duration // How long tokens are valid
}

// Service provides token operations
type Service struct {
	config Config
	now    func() time.Time
}

// NewService creates a new authentication service. A zero TokenDuration
// defaults to 24 hours.
func NewService(cfg Config) *Service {
	if cfg.TokenDuration == 0 {
		cfg.TokenDuration = 24 * time.Hour
	}
	return &Service{
		config: cfg,
		now:    time.Now,
	}
}

// GenerateToken signs a token for subject with the given role.
func (s *Service) GenerateToken(subject, role string) (string, error) {
	if _, ok := roleLevel[role]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}

	now := s.now()
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.TokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ValidateToken validates a JWT token and returns the claims
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(s.config.JWTSecret), nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

var roleLevel = map[string]int{
	RoleAdmin:  1,
	RoleViewer: 0,
}

// HasRole checks if a user has a specific role or higher
// Role hierarchy: Admin > Viewer
func HasRole(userRole, requiredRole string) bool {
	userLevel, ok1 := roleLevel[userRole]
	requiredLevel, ok2 := roleLevel[requiredRole]
	if !ok1 || !ok2 {
		return false
	}
	return userLevel >= requiredLevel
}
