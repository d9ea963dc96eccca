package verification

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/wellness-service/internal/config"
	"github.com/spec-kit/wellness-service/internal/domain"
	"github.com/spec-kit/wellness-service/internal/events"
	"github.com/spec-kit/wellness-service/internal/mail"
	"github.com/spec-kit/wellness-service/internal/observability"
)

var (
	// ErrListenerConflict means another process already owns the callback
	// port. Callers may treat it as "verification already running elsewhere"
	// rather than a fatal condition.
	ErrListenerConflict = errors.New("verification listener address already in use")

	// ErrMailDispatch means the link email never left this process. The
	// issued token stays redeemable; a resend issues a fresh one.
	ErrMailDispatch = errors.New("verification mail dispatch failed")
)

// Store is the persistence callback invoked on first-time redemption. The
// durable verified flag, not the registry, is the source of truth.
type Store interface {
	MarkVerified(ctx context.Context, subject domain.SubjectRef) error
}

// Dependencies bundles collaborator requirements for the coordinator.
type Dependencies struct {
	Registry   *Registry
	Hub        *Hub
	Store      Store
	Mailer     mail.Mailer
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Metrics    *observability.Metrics
}

// Coordinator owns the verification subsystem lifecycle: the public callback
// listener, the live notification hub, and token issuance. It is constructed
// once by the composition root and handed to whatever needs to send
// verification emails.
type Coordinator struct {
	cfg        config.VerificationConfig
	registry   *Registry
	hub        *Hub
	store      Store
	mailer     mail.Mailer
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics

	mu      sync.Mutex
	running bool
	app     *fiber.App
}

// NewCoordinator builds the coordinator. Start must be called (directly or
// lazily through SendVerificationRequest) before any link can be redeemed.
func NewCoordinator(cfg config.VerificationConfig, deps Dependencies) *Coordinator {
	return &Coordinator{
		cfg:        cfg,
		registry:   deps.Registry,
		hub:        deps.Hub,
		store:      deps.Store,
		mailer:     deps.Mailer,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
	}
}

// Start binds the callback listener and brings up the websocket surface.
// Idempotent: a second Start while running is a no-op. A bind failure leaves
// the coordinator stopped and returns ErrListenerConflict when the address
// is held by another process.
func (c *Coordinator) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	ln, err := net.Listen("tcp", c.cfg.Addr())
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return fmt.Errorf("%w: %s", ErrListenerConflict, c.cfg.Addr())
		}
		return fmt.Errorf("bind verification listener: %w", err)
	}

	app := newCallbackApp(c)
	go func() {
		if err := app.Listener(ln); err != nil {
			c.logger.Error("verification listener stopped", zap.Error(err))
		}
	}()

	c.app = app
	c.running = true
	c.logger.Info("verification subsystem started", zap.String("addr", ln.Addr().String()))
	return nil
}

// Stop shuts the listener down. Idempotent: stopping a stopped coordinator
// is a no-op.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}

	app := c.app
	c.app = nil
	c.running = false

	if err := app.Shutdown(); err != nil {
		c.logger.Warn("verification listener shutdown", zap.Error(err))
	}
	c.logger.Info("verification subsystem stopped")
	return nil
}

// Running reports whether the listener is up.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// SendVerificationRequest lazily starts the subsystem, issues a single-use
// token for the subject, and dispatches the link email. Startup failure and
// mail failure are distinguishable through ErrListenerConflict and
// ErrMailDispatch.
func (c *Coordinator) SendVerificationRequest(ctx context.Context, subject domain.SubjectRef, address string) error {
	if err := c.Start(); err != nil {
		return fmt.Errorf("verification subsystem unavailable: %w", err)
	}

	token, err := c.registry.Issue(subject)
	if err != nil {
		return err
	}

	if err := c.mailer.SendVerificationLink(ctx, address, subject, token); err != nil {
		return fmt.Errorf("%w: %v", ErrMailDispatch, err)
	}

	c.publish(ctx, events.EventVerificationSent, subject, nil)
	c.logger.Info("verification link dispatched",
		zap.String("subject_type", string(subject.Type)),
		zap.String("subject_id", subject.ID),
	)
	return nil
}

func (c *Coordinator) publish(ctx context.Context, eventType events.EventType, subject domain.SubjectRef, payload interface{}) {
	if c.dispatcher == nil {
		return
	}
	_ = c.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Subject:   subject,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}
