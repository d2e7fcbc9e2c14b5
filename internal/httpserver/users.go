package httpserver

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/civicwatch/civicwatch/internal/logging"
	"github.com/civicwatch/civicwatch/internal/models"
	"github.com/civicwatch/civicwatch/internal/repo"
	"github.com/civicwatch/civicwatch/internal/service"
)

// UsersHTTP is the admin read/update surface over the credential
// store. Routes are mounted behind RequireRole(ADMIN).
type UsersHTTP struct {
	Repo repo.GormRepo
	Svc  *service.SessionManager
}

func (h *UsersHTTP) List(c echo.Context) error {
	users, err := h.Repo.ListUsers(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "something went wrong")
	}
	return c.JSON(http.StatusOK, users)
}

func (h *UsersHTTP) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}

	user, err := h.Repo.FindUserByID(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "user not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "something went wrong")
	}
	return c.JSON(http.StatusOK, user)
}

func (h *UsersHTTP) Stats(c echo.Context) error {
	stats, err := h.Repo.UserStats(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "something went wrong")
	}
	return c.JSON(http.StatusOK, stats)
}

// Update changes role, trust score or location. Dropping a user's
// trust score below zero revokes every refresh session they hold.
func (h *UsersHTTP) Update(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "users_update")

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}

	var req struct {
		Role       *string `json:"role"`
		TrustScore *int    `json:"trust_score"`
		City       *string `json:"city"`
		State      *string `json:"state"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	if req.Role != nil {
		switch *req.Role {
		case models.RoleUser, models.RoleResponder, models.RoleAdmin:
		default:
			return echo.NewHTTPError(http.StatusBadRequest, "unknown role")
		}
	}

	user, err := h.Repo.UpdateUser(ctx, id, repo.UserUpdate{
		Role:       req.Role,
		TrustScore: req.TrustScore,
		City:       req.City,
		State:      req.State,
	})
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "user not found")
		}
		l.Error("update_failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "something went wrong")
	}

	if req.TrustScore != nil && *req.TrustScore < 0 {
		if _, err := h.Svc.LogoutAll(ctx, user.ID); err != nil {
			l.Error("suspension_revoke_failed", "user_id", user.ID, "error", err)
		}
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "user updated successfully", "user": user})
}
