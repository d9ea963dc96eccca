package auth

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/wellness-service/internal/domain"
)

// RequireUser ensures an end-user is authenticated.
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || principal.SubjectType != domain.SubjectTypeUser {
			return fiber.NewError(http.StatusForbidden, "end-user required")
		}
		return c.Next()
	}
}

// RequireKeeper ensures an active keeper is authenticated.
func RequireKeeper() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || principal.SubjectType != domain.SubjectTypeKeeper || principal.Keeper == nil {
			return fiber.NewError(http.StatusForbidden, "keeper required")
		}
		if !principal.Keeper.Active {
			return fiber.NewError(http.StatusForbidden, "keeper inactive")
		}
		return c.Next()
	}
}

// RequireAnyRole ensures caller is authenticated (user or keeper).
func RequireAnyRole() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := PrincipalFromContext(c); !ok {
			return fiber.NewError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		}
		return c.Next()
	}
}
