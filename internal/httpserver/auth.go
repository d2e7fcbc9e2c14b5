package httpserver

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/civicwatch/civicwatch/internal/events"
	"github.com/civicwatch/civicwatch/internal/httpserver/cookies"
	"github.com/civicwatch/civicwatch/internal/logging"
	"github.com/civicwatch/civicwatch/internal/metrics"
	"github.com/civicwatch/civicwatch/internal/middleware"
	"github.com/civicwatch/civicwatch/internal/service"
)

type AuthHTTP struct {
	Svc      *service.SessionManager
	Producer *events.Producer
}

func (h *AuthHTTP) publish(c echo.Context, key string, event map[string]any) {
	ctx := c.Request().Context()
	if err := h.Producer.Publish(ctx, key, event); err != nil {
		logging.FromContext(ctx).Error("event_publish_failed", "error", err)
	}
}

func (h *AuthHTTP) setTokenCookies(c echo.Context, pair *service.TokenPair) {
	c.SetCookie(cookies.New(cookies.AccessTokenName, pair.AccessToken, pair.AccessExp))
	c.SetCookie(cookies.New(cookies.RefreshTokenName, pair.RefreshToken, pair.RefreshExp))
}

func clearTokenCookies(c echo.Context) {
	c.SetCookie(cookies.Delete(cookies.AccessTokenName))
	c.SetCookie(cookies.Delete(cookies.RefreshTokenName))
}

func (h *AuthHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_register")

	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
		City     string `json:"city"`
		State    string `json:"state"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("register_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	user, err := h.Svc.Register(ctx, service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		City:     req.City,
		State:    req.State,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			metrics.Registrations.WithLabelValues("validation").Inc()
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrDuplicateUser):
			metrics.Registrations.WithLabelValues("duplicate").Inc()
			return echo.NewHTTPError(http.StatusBadRequest, "user already exists")
		default:
			metrics.Registrations.WithLabelValues("error").Inc()
			return echo.NewHTTPError(http.StatusInternalServerError, "something went wrong")
		}
	}

	metrics.Registrations.WithLabelValues("ok").Inc()
	h.publish(c, user.ID.String(), map[string]any{
		"type":     events.TypeUserRegistered,
		"user_id":  user.ID,
		"username": user.Username,
	})

	return c.JSON(http.StatusCreated, echo.Map{"message": "registration successful"})
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	pair, user, err := h.Svc.Login(ctx, req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			metrics.Logins.WithLabelValues("validation").Inc()
			return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
		case errors.Is(err, service.ErrNotVerified):
			metrics.Logins.WithLabelValues("not_verified").Inc()
			return echo.NewHTTPError(http.StatusForbidden, "user is not verified")
		case errors.Is(err, service.ErrInvalidCredentials):
			metrics.Logins.WithLabelValues("invalid_credentials").Inc()
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid username or password")
		default:
			metrics.Logins.WithLabelValues("error").Inc()
			return echo.NewHTTPError(http.StatusInternalServerError, "something went wrong")
		}
	}

	h.setTokenCookies(c, pair)
	metrics.Logins.WithLabelValues("ok").Inc()
	h.publish(c, user.ID.String(), map[string]any{
		"type":     events.TypeUserLoggedIn,
		"user_id":  user.ID,
		"username": user.Username,
	})

	return c.JSON(http.StatusOK, echo.Map{"message": "login successful"})
}

// Refresh verifies the refresh cookie at the codec level, then hands
// the extracted subject, secret and session id to the rotation.
func (h *AuthHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()

	refreshCookie, err := c.Cookie(cookies.RefreshTokenName)
	if err != nil || refreshCookie.Value == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "refresh token missing")
	}

	claims, err := h.Svc.Codec.VerifyRefresh(refreshCookie.Value)
	if err != nil {
		clearTokenCookies(c)
		metrics.Refreshes.WithLabelValues("token_invalid").Inc()
		return echo.NewHTTPError(http.StatusForbidden, "access denied")
	}

	userID, uErr := uuid.Parse(claims.Subject)
	sessionID, sErr := uuid.Parse(claims.SessionID)
	if uErr != nil || sErr != nil {
		clearTokenCookies(c)
		metrics.Refreshes.WithLabelValues("token_invalid").Inc()
		return echo.NewHTTPError(http.StatusForbidden, "access denied")
	}

	pair, err := h.Svc.Refresh(ctx, userID, claims.Secret, sessionID)
	if err != nil {
		if errors.Is(err, service.ErrAccessDenied) {
			clearTokenCookies(c)
			metrics.Refreshes.WithLabelValues("denied").Inc()
			return echo.NewHTTPError(http.StatusForbidden, "access denied")
		}
		metrics.Refreshes.WithLabelValues("error").Inc()
		return echo.NewHTTPError(http.StatusInternalServerError, "something went wrong")
	}

	h.setTokenCookies(c, pair)
	metrics.Refreshes.WithLabelValues("ok").Inc()
	return c.JSON(http.StatusOK, echo.Map{"message": "refresh rotation successful"})
}

// Logout clears the cookies no matter what the store says. A stale or
// already-rotated refresh token still names its session for deletion.
func (h *AuthHTTP) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_logout")

	clearTokenCookies(c)
	metrics.Logouts.WithLabelValues("single").Inc()

	refreshCookie, err := c.Cookie(cookies.RefreshTokenName)
	if err == nil && refreshCookie.Value != "" {
		if err := h.Svc.Logout(ctx, refreshCookie.Value); err != nil {
			l.Error("logout_failed", "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "something went wrong")
		}
	}

	if userID, ok := c.Get(middleware.UserIDKey).(string); ok {
		h.publish(c, userID, map[string]any{
			"type":    events.TypeUserLoggedOut,
			"user_id": userID,
		})
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "logged out successfully"})
}

func (h *AuthHTTP) LogoutAll(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_logout_all")

	clearTokenCookies(c)
	metrics.Logouts.WithLabelValues("all").Inc()

	userIDStr, ok := c.Get(middleware.UserIDKey).(string)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "identity not resolved")
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "identity not resolved")
	}

	deleted, err := h.Svc.LogoutAll(ctx, userID)
	if err != nil {
		l.Error("logout_all_failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "something went wrong")
	}

	h.publish(c, userIDStr, map[string]any{
		"type":    events.TypeSessionsRevoked,
		"user_id": userIDStr,
		"count":   deleted,
	})

	return c.JSON(http.StatusOK, echo.Map{"message": "logged out from all devices"})
}

func (h *AuthHTTP) Me(c echo.Context) error {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "identity not resolved")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"user_id":     claims.Subject,
		"username":    claims.Username,
		"email":       claims.Email,
		"role":        claims.Role,
		"is_verified": claims.IsVerified,
	})
}
