package verification

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/wellness-service/internal/domain"
	"github.com/spec-kit/wellness-service/internal/events"
)

// newCallbackApp wires the public callback surface: the two redemption
// routes, the reset landing page, and the live notification socket.
func newCallbackApp(c *Coordinator) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	app.Get("/verify", c.handleVerify(domain.SubjectTypeUser))
	app.Get("/verify-staff", c.handleVerify(domain.SubjectTypeKeeper))
	app.Get("/reset-password", c.handleResetLanding)

	app.Use("/ws", func(ctx *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(ctx) {
			return ctx.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/:kind/:subject_id", websocket.New(c.handleSocket))

	return app
}

// handleVerify builds the redemption handler for one subject kind. The two
// routes differ only in page copy and in which account table the persistence
// callback targets; the redemption algorithm is shared.
func (c *Coordinator) handleVerify(kind domain.SubjectType) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		token := ctx.Query("token")
		subjectID := ctx.Query("subject_id")
		if token == "" || subjectID == "" {
			return renderErrorPage(ctx)
		}

		subject := domain.SubjectRef{Type: kind, ID: subjectID}
		outcome := c.registry.Redeem(token, subject)
		c.metrics.RecordRedemption(outcome.String())

		switch outcome {
		case OutcomeNotFound, OutcomeSubjectMismatch:
			// Same page for both so the response leaks nothing about which
			// subjects have pending tokens.
			c.logger.Info("verification link rejected",
				zap.String("outcome", outcome.String()),
				zap.String("subject_id", subjectID),
			)
			return renderErrorPage(ctx)

		case OutcomeDuplicateWithinWindow:
			// Browser retry or link pre-fetch. Idempotent from the caller's
			// perspective: same success page, no side effects re-run.
			return renderSuccessPage(ctx, kind)
		}

		// First-ever redemption. The durable write happens-before the live
		// push so a client receiving the push can trust the store.
		notified := false
		if err := c.store.MarkVerified(ctx.UserContext(), subject); err != nil {
			// The user experience favors acknowledging the click; this log
			// line is what operators reconcile the account from.
			c.logger.Error("persisting verified flag failed",
				zap.String("subject_type", string(kind)),
				zap.String("subject_id", subjectID),
				zap.Error(err),
			)
		} else {
			notified = c.hub.Notify(subject)
		}

		c.publish(ctx.UserContext(), events.EventSubjectVerified, subject,
			events.SubjectVerifiedPayload{Notified: notified})

		c.logger.Info("subject verified",
			zap.String("subject_type", string(kind)),
			zap.String("subject_id", subjectID),
			zap.Bool("notified", notified),
		)
		return renderSuccessPage(ctx, kind)
	}
}

// handleResetLanding renders the static reset confirmation page. No
// validation happens here; the token is only checked when the new password
// is submitted through the application. The published event is how the
// desktop bridge learns to open its reset-entry screen.
func (c *Coordinator) handleResetLanding(ctx *fiber.Ctx) error {
	token := ctx.Query("token")
	if token == "" {
		return renderErrorPage(ctx)
	}

	c.publish(ctx.UserContext(), events.EventResetLinkOpened, domain.SubjectRef{},
		events.ResetLinkOpenedPayload{Token: token})

	return renderResetLandingPage(ctx)
}

// handleSocket runs one live notification connection. The subject is carried
// in the path; the server pushes at most the single "verified" payload and
// reads only to detect the close.
func (c *Coordinator) handleSocket(conn *websocket.Conn) {
	kind, ok := socketKind(conn.Params("kind"))
	subjectID := conn.Params("subject_id")
	if !ok || subjectID == "" {
		_ = conn.Close()
		return
	}

	subject := domain.SubjectRef{Type: kind, ID: subjectID}
	c.hub.Register(subject, conn)
	defer func() {
		c.hub.Unregister(conn)
		_ = conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func socketKind(param string) (domain.SubjectType, bool) {
	switch param {
	case "users":
		return domain.SubjectTypeUser, true
	case "keepers":
		return domain.SubjectTypeKeeper, true
	default:
		return "", false
	}
}
