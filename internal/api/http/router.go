package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/wellness-service/internal/api/http/handlers"
	"github.com/spec-kit/wellness-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Accounts       *handlers.AccountsHandler
	Verification   *handlers.VerificationHandler
	Reset          *handlers.ResetHandler
	AuthMiddleware *auth.AuthMiddleware
	MailLimiter    *RateLimiter
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/users/register", cfg.MailLimiter.Handle, cfg.Accounts.RegisterUser)
	authGroup.Post("/users/login", cfg.Accounts.LoginUser)
	authGroup.Post("/keepers/login", cfg.Accounts.LoginKeeper)

	authGroup.Get("/users/me", cfg.AuthMiddleware.Handle, auth.RequireUser(), cfg.Accounts.CurrentUser)
	authGroup.Get("/keepers/me", cfg.AuthMiddleware.Handle, auth.RequireKeeper(), cfg.Accounts.CurrentKeeper)

	authGroup.Post("/password/change", cfg.AuthMiddleware.Handle, auth.RequireAnyRole(), cfg.Accounts.ChangePassword)
	authGroup.Post("/password/reset/request", cfg.MailLimiter.Handle, cfg.Reset.Request)
	authGroup.Post("/password/reset/confirm", cfg.Reset.Confirm)

	protected := app.Group("/verification", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	protected.Post("/request", cfg.MailLimiter.Handle, cfg.Verification.Request)
}
