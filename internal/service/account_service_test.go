package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/wellness-service/internal/config"
	"github.com/spec-kit/wellness-service/internal/domain"
)

func newAccountService(users *mockUserRepo, keepers *mockKeeperRepo) *AccountService {
	cfg := config.Config{
		Auth: config.AuthConfig{
			JWTSecret:             "test-secret",
			AccessTokenTTLMinutes: 60,
			BcryptCost:            bcrypt.MinCost,
		},
	}
	return NewAccountService(cfg, AccountDependencies{
		UserRepo:   users,
		KeeperRepo: keepers,
	})
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestChangePasswordForUser(t *testing.T) {
	users := &mockUserRepo{}
	users.On("GetByID", mock.Anything, "u-1").
		Return(&domain.User{ID: "u-1", PasswordHash: mustHash(t, "old-pass")}, nil)
	users.On("UpdatePassword", mock.Anything, "u-1", mock.MatchedBy(func(hash string) bool {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte("new-pass")) == nil
	})).Return(nil)

	svc := newAccountService(users, &mockKeeperRepo{})
	err := svc.ChangePassword(context.Background(), domain.UserRef("u-1"), "old-pass", "new-pass")

	require.NoError(t, err)
	users.AssertExpectations(t)
}

func TestChangePasswordForKeeper(t *testing.T) {
	keepers := &mockKeeperRepo{}
	keepers.On("GetByID", mock.Anything, "k-1").
		Return(&domain.Keeper{ID: "k-1", PasswordHash: mustHash(t, "old-pass"), Active: true}, nil)
	keepers.On("UpdatePassword", mock.Anything, "k-1", mock.Anything).Return(nil)

	svc := newAccountService(&mockUserRepo{}, keepers)
	err := svc.ChangePassword(context.Background(), domain.KeeperRef("k-1"), "old-pass", "new-pass")

	require.NoError(t, err)
	keepers.AssertExpectations(t)
}

func TestChangePasswordRejectsWrongCurrent(t *testing.T) {
	users := &mockUserRepo{}
	users.On("GetByID", mock.Anything, "u-1").
		Return(&domain.User{ID: "u-1", PasswordHash: mustHash(t, "old-pass")}, nil)

	svc := newAccountService(users, &mockKeeperRepo{})
	err := svc.ChangePassword(context.Background(), domain.UserRef("u-1"), "guessed", "new-pass")

	require.Error(t, err)
	users.AssertNotCalled(t, "UpdatePassword", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, "invalid credentials", err.Error())
}
