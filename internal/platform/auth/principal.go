package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	RoleAdmin      = "admin"
	RoleStaff      = "staff"
	RolePharmacist = "pharmacist"
	RoleAccountant = "accountant"
	// RoleSystem marks work done by background jobs, never issued in tokens.
	RoleSystem = "system"
)

// Roles lists the roles a user account may hold.
var Roles = []string{RoleAdmin, RoleStaff, RolePharmacist, RoleAccountant}

// ValidRole reports whether r is assignable to a user account.
func ValidRole(r string) bool {
	for _, role := range Roles {
		if role == r {
			return true
		}
	}
	return false
}

// Principal identifies who is performing an operation. Core services take it
// as an explicit argument and copy it into audit entries.
type Principal struct {
	UserID    uuid.UUID
	Email     string
	Role      string
	IPAddress string
}

// System is the principal used by scheduled jobs.
var System = Principal{UserID: uuid.Nil, Role: RoleSystem}

// DevUserID is the principal id injected by DevAuthMiddleware.
var DevUserID = uuid.MustParse("00000000-0000-0000-0000-00000000d0e1")

// HasRole reports whether p holds one of roles. Admin holds every role.
func (p Principal) HasRole(roles ...string) bool {
	if p.Role == RoleAdmin {
		return true
	}
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

const principalKey contextKey = "principal"

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the principal set by the auth middleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// FromEcho returns the authenticated principal for the request, stamped with
// the client IP. The zero Principal is returned for anonymous requests.
func FromEcho(c echo.Context) Principal {
	p, _ := PrincipalFromContext(c.Request().Context())
	p.IPAddress = c.RealIP()
	return p
}
