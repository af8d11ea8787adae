// Package auth provides JWT validation for API requests. Identity is
// managed by the surrounding platform; this package only verifies
// tokens and extracts the actor and organization claims.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	appctx "fieldstock/internal/core/context"
	"fieldstock/internal/core/id"
	"fieldstock/internal/core/tenant"
)

// JWTConfig holds JWT configuration.
type JWTConfig struct {
	Secret         string
	Issuer         string
	AccessTokenTTL time.Duration
}

// DefaultJWTConfig returns default JWT configuration.
func DefaultJWTConfig(secret string) JWTConfig {
	return JWTConfig{
		Secret:         secret,
		Issuer:         "fieldstock",
		AccessTokenTTL: 15 * time.Minute,
	}
}

// Claims represents JWT claims. The organization claims scope every
// request to a single tenant.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string   `json:"uid"`
	UserName string   `json:"name,omitempty"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	IsAdmin  bool     `json:"adm,omitempty"`

	OrgID   string `json:"org"`
	OrgSlug string `json:"org_slug,omitempty"`
	OrgName string `json:"org_name,omitempty"`
}

// JWTService handles JWT operations.
type JWTService struct {
	config JWTConfig
}

// NewJWTService creates a new JWT service.
func NewJWTService(config JWTConfig) *JWTService {
	return &JWTService{config: config}
}

// GenerateAccessToken generates a new access token for a user scoped to
// one organization.
func (s *JWTService) GenerateAccessToken(
	user *appctx.UserContext,
	org *tenant.Organization,
) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.config.AccessTokenTTL)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   user.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID:   user.UserID,
		UserName: user.UserName,
		Email:    user.Email,
		Roles:    user.Roles,
		IsAdmin:  user.IsAdmin,
		OrgID:    org.ID.String(),
		OrgSlug:  org.Slug,
		OrgName:  org.Name,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// ValidateToken validates a JWT and returns the actor and the
// organization the token is scoped to.
func (s *JWTService) ValidateToken(tokenString string) (*appctx.UserContext, *tenant.Organization, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	})

	if err != nil {
		return nil, nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, nil, fmt.Errorf("invalid token claims")
	}

	orgID, err := id.Parse(claims.OrgID)
	if err != nil || id.IsNil(orgID) {
		return nil, nil, fmt.Errorf("token has no valid organization claim")
	}

	user := &appctx.UserContext{
		UserID:   claims.UserID,
		UserName: claims.UserName,
		Email:    claims.Email,
		Roles:    claims.Roles,
		IsAdmin:  claims.IsAdmin,
	}
	org := &tenant.Organization{
		ID:   orgID,
		Slug: claims.OrgSlug,
		Name: claims.OrgName,
	}
	return user, org, nil
}
