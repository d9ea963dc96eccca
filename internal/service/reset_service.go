package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/wellness-service/internal/auth"
	"github.com/spec-kit/wellness-service/internal/config"
	"github.com/spec-kit/wellness-service/internal/domain"
	"github.com/spec-kit/wellness-service/internal/events"
	"github.com/spec-kit/wellness-service/internal/mail"
	"github.com/spec-kit/wellness-service/internal/repository"
	"github.com/spec-kit/wellness-service/internal/verification"
)

// ErrResetMailDispatch means the reset email never left this process. The
// stored token stays valid until its expiry.
var ErrResetMailDispatch = errors.New("reset mail dispatch failed")

// ResetService runs the password-reset token flow. Unlike verification
// tokens, reset tokens are durable: created with an absolute expiry and a
// used marker so the flow survives a restart of the issuing process.
type ResetService struct {
	resets     repository.PasswordResetRepository
	users      repository.UserRepository
	keepers    repository.KeeperRepository
	mailer     mail.Mailer
	dispatcher events.Dispatcher
	logger     *zap.Logger
	ttl        time.Duration
	bcryptCost int
}

// ResetDependencies encapsulates collaborator requirements.
type ResetDependencies struct {
	ResetRepo  repository.PasswordResetRepository
	UserRepo   repository.UserRepository
	KeeperRepo repository.KeeperRepository
	Mailer     mail.Mailer
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// NewResetService builds the service.
func NewResetService(cfg config.Config, deps ResetDependencies) *ResetService {
	return &ResetService{
		resets:     deps.ResetRepo,
		users:      deps.UserRepo,
		keepers:    deps.KeeperRepo,
		mailer:     deps.Mailer,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		ttl:        cfg.Auth.ResetTokenTTL(),
		bcryptCost: cfg.Auth.BcryptCost,
	}
}

// Request creates a durable reset token for whichever account owns the email
// and dispatches the reset link.
func (s *ResetService) Request(ctx context.Context, email string) error {
	subject, err := s.resolveSubject(ctx, email)
	if err != nil {
		return err
	}

	tokenStr, err := verification.NewToken()
	if err != nil {
		return err
	}

	token := &repository.PasswordResetToken{
		SubjectType: subject.Type,
		SubjectID:   subject.ID,
		Token:       tokenStr,
		ExpiresAt:   time.Now().Add(s.ttl),
	}
	if err := s.resets.Create(ctx, token); err != nil {
		return err
	}

	if err := s.mailer.SendResetLink(ctx, email, subject, tokenStr); err != nil {
		return fmt.Errorf("%w: %v", ErrResetMailDispatch, err)
	}

	s.publish(ctx, events.EventResetRequested, subject)
	s.logger.Info("reset link dispatched",
		zap.String("subject_type", string(subject.Type)),
		zap.String("subject_id", subject.ID),
	)
	return nil
}

// Validate returns the token row only while it is unused and unexpired.
func (s *ResetService) Validate(ctx context.Context, token string) (*repository.PasswordResetToken, error) {
	return s.resets.GetValid(ctx, token)
}

// Confirm re-validates the token and applies the new credential. The update
// and the used mark commit atomically; false means the token was already
// invalid when the update was attempted, including losing a race against a
// concurrent confirmation.
func (s *ResetService) Confirm(ctx context.Context, token, newPassword string) (bool, error) {
	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return false, err
	}
	return s.resets.Consume(ctx, token, hash)
}

func (s *ResetService) resolveSubject(ctx context.Context, email string) (domain.SubjectRef, error) {
	if user, err := s.users.GetByEmail(ctx, email); err == nil {
		return domain.UserRef(user.ID), nil
	} else if err != pgx.ErrNoRows {
		return domain.SubjectRef{}, err
	}

	keeper, err := s.keepers.GetByEmail(ctx, email)
	if err != nil {
		return domain.SubjectRef{}, err
	}
	return domain.KeeperRef(keeper.ID), nil
}

func (s *ResetService) publish(ctx context.Context, eventType events.EventType, subject domain.SubjectRef) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Subject:   subject,
		Timestamp: time.Now(),
	})
}
