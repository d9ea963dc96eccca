package handlers

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/wellness-service/internal/api/dto"
	"github.com/spec-kit/wellness-service/internal/service"
	apperrors "github.com/spec-kit/wellness-service/pkg/util/errorutil"
)

// ResetHandler exposes the password-reset endpoints the desktop app calls.
type ResetHandler struct {
	resets *service.ResetService
	logger *zap.Logger
}

// NewResetHandler constructs handler.
func NewResetHandler(resets *service.ResetService, logger *zap.Logger) *ResetHandler {
	return &ResetHandler{resets: resets, logger: logger}
}

// Request handles POST /auth/password/reset/request. Unknown emails get the
// same response as known ones so the endpoint cannot be used to probe for
// accounts.
func (h *ResetHandler) Request(c *fiber.Ctx) error {
	var req dto.ResetRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.Email == "" {
		return fiber.NewError(http.StatusBadRequest, "email required")
	}

	err := h.resets.Request(c.Context(), req.Email)
	switch {
	case err == nil, errors.Is(err, pgx.ErrNoRows):
		return c.JSON(fiber.Map{"data": fiber.Map{
			"message": "if the email is registered, a reset link has been sent",
		}})
	case errors.Is(err, service.ErrResetMailDispatch):
		h.logger.Error("reset mail dispatch failed", zap.Error(err))
		return apperrors.NewDomainError("MAIL_DISPATCH_FAILED",
			"could not send the reset email",
			http.StatusBadGateway, nil)
	default:
		return apperrors.MapError(err)
	}
}

// Confirm handles POST /auth/password/reset/confirm.
func (h *ResetHandler) Confirm(c *fiber.Ctx) error {
	var req dto.ResetConfirmRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.Token == "" || req.NewPassword == "" {
		return fiber.NewError(http.StatusBadRequest, "token and new_password required")
	}

	ok, err := h.resets.Confirm(c.Context(), req.Token, req.NewPassword)
	if err != nil {
		return apperrors.MapError(err)
	}
	if !ok {
		return fiber.NewError(http.StatusBadRequest, "reset token invalid, expired, or already used")
	}

	return c.JSON(fiber.Map{"data": fiber.Map{"message": "password updated"}})
}
