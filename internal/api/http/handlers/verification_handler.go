package handlers

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/wellness-service/internal/auth"
	"github.com/spec-kit/wellness-service/internal/domain"
	"github.com/spec-kit/wellness-service/internal/verification"
	apperrors "github.com/spec-kit/wellness-service/pkg/util/errorutil"
)

// VerificationHandler lets an authenticated subject (re)request a
// verification email. Every request issues a fresh token; earlier unredeemed
// tokens for the subject die with the process, never in the store.
type VerificationHandler struct {
	coordinator *verification.Coordinator
	logger      *zap.Logger
}

// NewVerificationHandler constructs handler.
func NewVerificationHandler(coordinator *verification.Coordinator, logger *zap.Logger) *VerificationHandler {
	return &VerificationHandler{coordinator: coordinator, logger: logger}
}

// Request handles POST /verification/request.
func (h *VerificationHandler) Request(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	if (principal.User != nil && principal.User.Verified) ||
		(principal.Keeper != nil && principal.Keeper.Verified) {
		return c.JSON(fiber.Map{"data": fiber.Map{"message": "account already verified"}})
	}

	subject := domain.SubjectRef{Type: principal.SubjectType, ID: principal.SubjectID()}
	err := h.coordinator.SendVerificationRequest(c.UserContext(), subject, principal.Email())
	switch {
	case err == nil:
		return c.JSON(fiber.Map{"data": fiber.Map{"message": "verification email sent"}})
	case errors.Is(err, verification.ErrListenerConflict):
		// Another instance owns the callback port; live verification is
		// degraded but the app keeps working.
		return apperrors.NewDomainError("VERIFICATION_UNAVAILABLE",
			"verification temporarily unavailable, check back later",
			http.StatusServiceUnavailable, nil)
	case errors.Is(err, verification.ErrMailDispatch):
		return apperrors.NewDomainError("MAIL_DISPATCH_FAILED",
			"could not send the verification email",
			http.StatusBadGateway, nil)
	default:
		return apperrors.MapError(err)
	}
}
