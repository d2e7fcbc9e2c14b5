package middleware

import (
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"

	"github.com/civicwatch/civicwatch/internal/httpserver/cookies"
	"github.com/civicwatch/civicwatch/internal/service"
	"github.com/civicwatch/civicwatch/internal/tokens"
)

const (
	ClaimsKey = "auth_claims"
	UserIDKey = "user_id"
	RoleKey   = "role"
)

type Auth struct {
	Manager *service.SessionManager
}

func NewAuth(manager *service.SessionManager) *Auth {
	return &Auth{Manager: manager}
}

// RequireAuth resolves the caller's identity from the access_token
// cookie. Any verification failure is a 401; role checks never run
// before this.
func (m *Auth) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		accessCookie, err := c.Cookie(cookies.AccessTokenName)
		if err != nil || accessCookie.Value == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
		}

		claims, err := m.Manager.ResolveIdentity(accessCookie.Value)
		if err != nil {
			c.SetCookie(cookies.Delete(cookies.AccessTokenName))
			c.SetCookie(cookies.Delete(cookies.RefreshTokenName))
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
		}

		c.Set(ClaimsKey, claims)
		c.Set(UserIDKey, claims.Subject)
		c.Set(RoleKey, claims.Role)

		return next(c)
	}
}

// RequireRole is a capability allow-list over the resolved role. It
// assumes RequireAuth already ran; a missing role is a 401, not 403.
func (m *Auth) RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get(RoleKey).(string)
			if !ok || role == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "identity not resolved")
			}
			if !slices.Contains(roles, role) {
				return echo.NewHTTPError(http.StatusForbidden, "insufficient role")
			}
			return next(c)
		}
	}
}

// ClaimsFromContext pulls the resolved identity out of an
// authenticated request's context.
func ClaimsFromContext(c echo.Context) (*tokens.AccessClaims, bool) {
	claims, ok := c.Get(ClaimsKey).(*tokens.AccessClaims)
	return claims, ok
}
