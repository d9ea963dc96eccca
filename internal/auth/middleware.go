package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/wellness-service/internal/domain"
	"github.com/spec-kit/wellness-service/internal/repository"
	apperrors "github.com/spec-kit/wellness-service/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	SubjectType domain.SubjectType
	User        *domain.User
	Keeper      *domain.Keeper
}

// SubjectID returns the account identifier of the caller.
func (p *Principal) SubjectID() string {
	switch {
	case p.User != nil:
		return p.User.ID
	case p.Keeper != nil:
		return p.Keeper.ID
	default:
		return ""
	}
}

// Ref returns the caller as a subject reference.
func (p *Principal) Ref() domain.SubjectRef {
	return domain.SubjectRef{Type: p.SubjectType, ID: p.SubjectID()}
}

// Email returns the account email of the caller.
func (p *Principal) Email() string {
	switch {
	case p.User != nil:
		return p.User.Email
	case p.Keeper != nil:
		return p.Keeper.Email
	default:
		return ""
	}
}

// AuthMiddleware validates bearer tokens and loads principals.
type AuthMiddleware struct {
	tokens  *TokenManager
	users   repository.UserRepository
	keepers repository.KeeperRepository
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, users repository.UserRepository, keepers repository.KeeperRepository) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, users: users, keepers: keepers}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	principal := &Principal{SubjectType: claims.Subject}

	switch claims.Subject {
	case domain.SubjectTypeUser:
		user, err := m.users.GetByID(c.Context(), claims.SubjectID)
		if err != nil {
			if err == pgx.ErrNoRows {
				return apperrors.NewUnauthorized("user not found")
			}
			return apperrors.MapError(err)
		}
		principal.User = user
	case domain.SubjectTypeKeeper:
		keeper, err := m.keepers.GetByID(c.Context(), claims.SubjectID)
		if err != nil {
			if err == pgx.ErrNoRows {
				return apperrors.NewUnauthorized("keeper not found")
			}
			return apperrors.MapError(err)
		}
		principal.Keeper = keeper
	default:
		return apperrors.NewUnauthorized("unknown subject")
	}

	c.Locals(principalKey, principal)
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
