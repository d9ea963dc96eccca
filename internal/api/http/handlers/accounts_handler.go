package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/wellness-service/internal/api/dto"
	"github.com/spec-kit/wellness-service/internal/auth"
	"github.com/spec-kit/wellness-service/internal/domain"
	"github.com/spec-kit/wellness-service/internal/service"
	"github.com/spec-kit/wellness-service/internal/verification"
)

// AccountsHandler exposes registration and login endpoints.
type AccountsHandler struct {
	accounts    *service.AccountService
	coordinator *verification.Coordinator
	logger      *zap.Logger
}

// NewAccountsHandler constructs handler.
func NewAccountsHandler(accounts *service.AccountService, coordinator *verification.Coordinator, logger *zap.Logger) *AccountsHandler {
	return &AccountsHandler{accounts: accounts, coordinator: coordinator, logger: logger}
}

// RegisterUser handles POST /auth/users/register. A verification link is
// dispatched for the fresh account; a mail or listener failure degrades to
// "check back later" instead of failing the registration.
func (h *AccountsHandler) RegisterUser(c *fiber.Ctx) error {
	var req dto.UserRegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.Email == "" || req.Password == "" || req.Name == "" {
		return fiber.NewError(http.StatusBadRequest, "name, email, password required")
	}

	user, token, exp, err := h.accounts.RegisterUser(c.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	verificationSent := true
	if err := h.coordinator.SendVerificationRequest(c.UserContext(), domain.UserRef(user.ID), user.Email); err != nil {
		verificationSent = false
		h.logger.Warn("verification dispatch after registration failed",
			zap.String("user_id", user.ID), zap.Error(err))
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"data": fiber.Map{
			"user": fiber.Map{
				"id":       user.ID,
				"name":     user.Name,
				"email":    user.Email,
				"verified": user.Verified,
			},
			"auth":                    dto.AuthResponse{Token: token, ExpiresAt: exp},
			"verification_email_sent": verificationSent,
		},
	})
}

// CurrentUser handles GET /auth/users/me.
func (h *AccountsHandler) CurrentUser(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return fiber.NewError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
	}
	user := principal.User
	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"user": fiber.Map{
				"id":       user.ID,
				"name":     user.Name,
				"email":    user.Email,
				"verified": user.Verified,
			},
		},
	})
}

// CurrentKeeper handles GET /auth/keepers/me.
func (h *AccountsHandler) CurrentKeeper(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Keeper == nil {
		return fiber.NewError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
	}
	keeper := principal.Keeper
	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"keeper": fiber.Map{
				"id":       keeper.ID,
				"name":     keeper.Name,
				"email":    keeper.Email,
				"verified": keeper.Verified,
			},
		},
	})
}

// ChangePassword handles POST /auth/password/change for any authenticated
// subject. Unlike the reset flow, the caller proves the current credential.
func (h *AccountsHandler) ChangePassword(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
	}

	var req dto.PasswordChangeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		return fiber.NewError(http.StatusBadRequest, "current and new password required")
	}

	if err := h.accounts.ChangePassword(c.Context(), principal.Ref(), req.CurrentPassword, req.NewPassword); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"changed": true}})
}

// LoginUser handles POST /auth/users/login.
func (h *AccountsHandler) LoginUser(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.Email == "" || req.Password == "" {
		return fiber.NewError(http.StatusBadRequest, "email and password required")
	}

	user, token, exp, err := h.accounts.LoginUser(c.Context(), req.Email, req.Password)
	if err != nil {
		return fiber.NewError(http.StatusUnauthorized, "invalid credentials")
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"user": fiber.Map{
				"id":       user.ID,
				"name":     user.Name,
				"email":    user.Email,
				"verified": user.Verified,
			},
			"auth": dto.AuthResponse{Token: token, ExpiresAt: exp},
		},
	})
}

// LoginKeeper handles POST /auth/keepers/login.
func (h *AccountsHandler) LoginKeeper(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.Email == "" || req.Password == "" {
		return fiber.NewError(http.StatusBadRequest, "email and password required")
	}

	keeper, token, exp, err := h.accounts.LoginKeeper(c.Context(), req.Email, req.Password)
	if err != nil {
		return fiber.NewError(http.StatusUnauthorized, "invalid credentials")
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"keeper": fiber.Map{
				"id":       keeper.ID,
				"name":     keeper.Name,
				"email":    keeper.Email,
				"verified": keeper.Verified,
			},
			"auth": dto.AuthResponse{Token: token, ExpiresAt: exp},
		},
	})
}
