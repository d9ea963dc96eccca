package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/wellness-service/internal/domain"
)

func withPrincipal(p *Principal) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if p != nil {
			c.Locals(principalKey, p)
		}
		return c.Next()
	}
}

func guardStatus(t *testing.T, guard fiber.Handler, p *Principal) int {
	t.Helper()
	app := fiber.New()
	app.Get("/guarded", withPrincipal(p), guard, func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/guarded", nil), -1)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestRequireUser(t *testing.T) {
	user := &Principal{
		SubjectType: domain.SubjectTypeUser,
		User:        &domain.User{ID: "u-1"},
	}
	keeper := &Principal{
		SubjectType: domain.SubjectTypeKeeper,
		Keeper:      &domain.Keeper{ID: "k-1", Active: true},
	}

	assert.Equal(t, http.StatusOK, guardStatus(t, RequireUser(), user))
	assert.Equal(t, http.StatusForbidden, guardStatus(t, RequireUser(), keeper))
	assert.Equal(t, http.StatusForbidden, guardStatus(t, RequireUser(), nil))
}

func TestRequireKeeper(t *testing.T) {
	active := &Principal{
		SubjectType: domain.SubjectTypeKeeper,
		Keeper:      &domain.Keeper{ID: "k-1", Active: true},
	}
	inactive := &Principal{
		SubjectType: domain.SubjectTypeKeeper,
		Keeper:      &domain.Keeper{ID: "k-2", Active: false},
	}
	user := &Principal{
		SubjectType: domain.SubjectTypeUser,
		User:        &domain.User{ID: "u-1"},
	}

	assert.Equal(t, http.StatusOK, guardStatus(t, RequireKeeper(), active))
	assert.Equal(t, http.StatusForbidden, guardStatus(t, RequireKeeper(), inactive))
	assert.Equal(t, http.StatusForbidden, guardStatus(t, RequireKeeper(), user))
}

func TestRequireAnyRole(t *testing.T) {
	user := &Principal{
		SubjectType: domain.SubjectTypeUser,
		User:        &domain.User{ID: "u-1"},
	}

	assert.Equal(t, http.StatusOK, guardStatus(t, RequireAnyRole(), user))
	assert.Equal(t, http.StatusUnauthorized, guardStatus(t, RequireAnyRole(), nil))
}
