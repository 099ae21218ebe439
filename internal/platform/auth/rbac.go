package auth

import (
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/inkbook/inkbook/internal/platform/apperr"
)

// RequireRole returns middleware that checks the caller has one of roles.
// Must run after Authenticator.Middleware.
func RequireRole(roles ...Role) echo.MiddlewareFunc {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := IdentityFromContext(c.Request().Context())
			if !ok {
				return apperr.Unauthorized("authentication required")
			}
			for _, r := range roles {
				if id.Role == r {
					return next(c)
				}
			}
			return apperr.Forbidden(fmt.Sprintf("required role: %s", strings.Join(names, " or ")))
		}
	}
}
