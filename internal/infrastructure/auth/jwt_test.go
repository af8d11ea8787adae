package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	appctx "fieldstock/internal/core/context"
	"fieldstock/internal/core/id"
	"fieldstock/internal/core/tenant"
	"fieldstock/internal/infrastructure/auth"
)

func newService(secret string) *auth.JWTService {
	return auth.NewJWTService(auth.DefaultJWTConfig(secret))
}

func TestTokenRoundTrip(t *testing.T) {
	svc := newService("test-secret")

	orgID := id.New()
	user := &appctx.UserContext{
		UserID:   "u-1",
		UserName: "Jordan Tech",
		Email:    "jordan@example.com",
		Roles:    []string{"technician"},
	}
	org := &tenant.Organization{ID: orgID, Slug: "acme", Name: "Acme Repairs"}

	token, expiresAt, err := svc.GenerateAccessToken(user, org)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.True(t, expiresAt.After(time.Now()))

	gotUser, gotOrg, err := svc.ValidateToken(token)
	require.NoError(t, err)
	require.Equal(t, "u-1", gotUser.UserID)
	require.Equal(t, "Jordan Tech", gotUser.UserName)
	require.Equal(t, []string{"technician"}, gotUser.Roles)
	require.False(t, gotUser.IsAdmin)
	require.Equal(t, orgID, gotOrg.ID)
	require.Equal(t, "acme", gotOrg.Slug)
}

func TestTokenRejectsWrongSecret(t *testing.T) {
	svc := newService("secret-a")
	other := newService("secret-b")

	token, _, err := svc.GenerateAccessToken(
		&appctx.UserContext{UserID: "u-1"},
		&tenant.Organization{ID: id.New()},
	)
	require.NoError(t, err)

	_, _, err = other.ValidateToken(token)
	require.Error(t, err)
}

func TestTokenRequiresOrganizationClaim(t *testing.T) {
	svc := newService("test-secret")

	token, _, err := svc.GenerateAccessToken(
		&appctx.UserContext{UserID: "u-1"},
		&tenant.Organization{},
	)
	require.NoError(t, err)

	_, _, err = svc.ValidateToken(token)
	require.Error(t, err)
	require.Contains(t, err.Error(), "organization")
}

func TestTokenCarriesAdminFlag(t *testing.T) {
	svc := newService("test-secret")

	token, _, err := svc.GenerateAccessToken(
		&appctx.UserContext{UserID: "u-admin", IsAdmin: true},
		&tenant.Organization{ID: id.New()},
	)
	require.NoError(t, err)

	user, _, err := svc.ValidateToken(token)
	require.NoError(t, err)
	require.True(t, user.IsAdmin)
}
