package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/wellness-service/internal/auth"
	"github.com/spec-kit/wellness-service/internal/config"
	"github.com/spec-kit/wellness-service/internal/domain"
	"github.com/spec-kit/wellness-service/internal/repository"
)

// AccountService coordinates registration and login, and implements the
// persistence callback the verification listener invokes.
type AccountService struct {
	users      repository.UserRepository
	keepers    repository.KeeperRepository
	tokenMgr   *auth.TokenManager
	bcryptCost int
}

// AccountDependencies encapsulates repo requirements for the account service.
type AccountDependencies struct {
	UserRepo   repository.UserRepository
	KeeperRepo repository.KeeperRepository
}

// NewAccountService builds the service.
func NewAccountService(cfg config.Config, deps AccountDependencies) *AccountService {
	return &AccountService{
		users:      deps.UserRepo,
		keepers:    deps.KeeperRepo,
		tokenMgr:   auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
		bcryptCost: cfg.Auth.BcryptCost,
	}
}

// RegisterUser creates a new end-user account. The account starts
// unverified; the caller dispatches the verification email afterwards.
func (s *AccountService) RegisterUser(ctx context.Context, name, email, password string) (*domain.User, string, time.Time, error) {
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, "", time.Time{}, errors.New("email already registered")
	} else if err != nil && err != pgx.ErrNoRows {
		return nil, "", time.Time{}, err
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, "", time.Time{}, err
	}

	user := &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Status:       domain.UserStatusActive,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, "", time.Time{}, err
	}

	token, exp, err := s.tokenMgr.GenerateToken(user.ID, domain.SubjectTypeUser)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	return user, token, exp, nil
}

// LoginUser authenticates an end-user.
func (s *AccountService) LoginUser(ctx context.Context, email, password string) (*domain.User, string, time.Time, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, "", time.Time{}, errors.New("invalid credentials")
	}
	token, exp, err := s.tokenMgr.GenerateToken(user.ID, domain.SubjectTypeUser)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	return user, token, exp, nil
}

// LoginKeeper authenticates a keeper account.
func (s *AccountService) LoginKeeper(ctx context.Context, email, password string) (*domain.Keeper, string, time.Time, error) {
	keeper, err := s.keepers.GetByEmail(ctx, email)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	if !keeper.Active {
		return nil, "", time.Time{}, errors.New("keeper inactive")
	}
	if err := auth.ComparePassword(keeper.PasswordHash, password); err != nil {
		return nil, "", time.Time{}, errors.New("invalid credentials")
	}
	token, exp, err := s.tokenMgr.GenerateToken(keeper.ID, domain.SubjectTypeKeeper)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	return keeper, token, exp, nil
}

// ChangePassword re-verifies the current credential and stores a new hash
// for the authenticated subject.
func (s *AccountService) ChangePassword(ctx context.Context, subject domain.SubjectRef, current, newPassword string) error {
	var storedHash string
	switch subject.Type {
	case domain.SubjectTypeUser:
		user, err := s.users.GetByID(ctx, subject.ID)
		if err != nil {
			return err
		}
		storedHash = user.PasswordHash
	case domain.SubjectTypeKeeper:
		keeper, err := s.keepers.GetByID(ctx, subject.ID)
		if err != nil {
			return err
		}
		storedHash = keeper.PasswordHash
	default:
		return fmt.Errorf("unknown subject type %q", subject.Type)
	}

	if err := auth.ComparePassword(storedHash, current); err != nil {
		return errors.New("invalid credentials")
	}

	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return err
	}
	if subject.Type == domain.SubjectTypeUser {
		return s.users.UpdatePassword(ctx, subject.ID, hash)
	}
	return s.keepers.UpdatePassword(ctx, subject.ID, hash)
}

// MarkVerified flips the durable verified flag for the subject. This is the
// verification.Store implementation handed to the coordinator.
func (s *AccountService) MarkVerified(ctx context.Context, subject domain.SubjectRef) error {
	switch subject.Type {
	case domain.SubjectTypeUser:
		return s.users.MarkVerified(ctx, subject.ID)
	case domain.SubjectTypeKeeper:
		return s.keepers.MarkVerified(ctx, subject.ID)
	default:
		return fmt.Errorf("unknown subject type %q", subject.Type)
	}
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AccountService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}
