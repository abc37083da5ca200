package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// RequireRole rejects requests whose principal holds none of roles. Admin
// always passes.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := PrincipalFromContext(c.Request().Context())
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			if !p.HasRole(roles...) {
				return echo.NewHTTPError(http.StatusForbidden,
					fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
			}
			return next(c)
		}
	}
}

// Convenience groups used by route registration.
var (
	AdminOnly      = []string{RoleAdmin}
	PharmacyStaff  = []string{RoleAdmin, RolePharmacist}
	FinanceStaff   = []string{RoleAdmin, RoleAccountant}
	InvoiceReaders = []string{RoleAdmin, RoleAccountant, RoleStaff}
	AllStaff       = []string{RoleAdmin, RoleStaff, RolePharmacist, RoleAccountant}
)
