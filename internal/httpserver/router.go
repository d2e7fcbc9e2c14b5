package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	custommw "github.com/civicwatch/civicwatch/internal/middleware"
	"github.com/civicwatch/civicwatch/internal/models"
)

type Deps struct {
	AuthHandler  *AuthHTTP
	UsersHandler *UsersHTTP
	AuthMW       *custommw.Auth
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	auth := e.Group("/auth")
	auth.POST("/register", d.AuthHandler.Register)
	auth.POST("/login", d.AuthHandler.Login)
	auth.POST("/refresh", d.AuthHandler.Refresh)

	private := auth.Group("")
	private.Use(d.AuthMW.RequireAuth)
	private.POST("/logout", d.AuthHandler.Logout)
	private.POST("/logoutall", d.AuthHandler.LogoutAll)
	private.GET("/me", d.AuthHandler.Me)

	admin := e.Group("/users")
	admin.Use(d.AuthMW.RequireAuth, d.AuthMW.RequireRole(models.RoleAdmin))
	admin.GET("", d.UsersHandler.List)
	admin.GET("/stats", d.UsersHandler.Stats)
	admin.GET("/:id", d.UsersHandler.Get)
	admin.PATCH("/:id", d.UsersHandler.Update)
}
