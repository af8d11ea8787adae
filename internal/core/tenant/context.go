// Package tenant provides organization scoping for the shared-database
// multi-tenant model. Every entity is owned by exactly one organization;
// repositories must filter and write with the organization id taken from
// the request context.
package tenant

import (
	"context"
	"errors"

	"fieldstock/internal/core/id"
)

// Context keys for tenant-related values.
type ctxKey int

const (
	orgKey ctxKey = iota
)

// ErrNoOrgInContext is returned when a request reaches the domain layer
// without a resolved organization.
var ErrNoOrgInContext = errors.New("organization not found in context")

// Organization identifies a tenant. Resolved by the HTTP middleware from
// the JWT claims (or subdomain, which is out of scope here).
type Organization struct {
	ID   id.ID
	Slug string
	Name string
}

// WithOrg stores the organization in context.
func WithOrg(ctx context.Context, org *Organization) context.Context {
	return context.WithValue(ctx, orgKey, org)
}

// GetOrg retrieves the organization from context.
func GetOrg(ctx context.Context) *Organization {
	org, _ := ctx.Value(orgKey).(*Organization)
	return org
}

// OrgID returns the organization id from context, or an error when the
// request is unscoped. Domain services call this at their entry points.
func OrgID(ctx context.Context) (id.ID, error) {
	org := GetOrg(ctx)
	if org == nil || id.IsNil(org.ID) {
		return id.Nil(), ErrNoOrgInContext
	}
	return org.ID, nil
}

// MustOrgID returns the organization id or panics. Use only where a
// missing organization is a programming error (infrastructure code that
// runs strictly behind the tenant middleware).
func MustOrgID(ctx context.Context) id.ID {
	orgID, err := OrgID(ctx)
	if err != nil {
		panic("organization not in context: " + err.Error())
	}
	return orgID
}
