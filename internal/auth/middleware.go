package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/oh-queue/internal/domain"
	"github.com/spec-kit/oh-queue/internal/repository"
	apperrors "github.com/spec-kit/oh-queue/pkg/util/errorutil"
)

const actorKey = "auth_actor"

// tokenQueryParam lets EventSource clients, which cannot set headers,
// authenticate the event stream.
const tokenQueryParam = "access_token"

// AuthMiddleware resolves the bearer token, when present, to a provisioned
// user. Requests without credentials continue anonymously.
type AuthMiddleware struct {
	tokens        *TokenManager
	users         repository.UserRepository
	defaultCredit int
	logger        *zap.Logger
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, users repository.UserRepository, defaultCredit int, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, users: users, defaultCredit: defaultCredit, logger: logger}
}

// Handle attaches the actor to the request, if any.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	raw, err := bearerToken(c)
	if err != nil {
		return err
	}
	if raw == "" {
		return c.Next()
	}

	claims, err := m.tokens.ParseToken(raw)
	if err != nil {
		return invalidCredentials("invalid token")
	}

	user, err := m.provision(c, claims)
	if err != nil {
		return err
	}
	c.Locals(actorKey, user)
	return c.Next()
}

// provision returns the stored user for claims, creating it on first sight
// and refreshing name or role when the identity provider changed them.
func (m *AuthMiddleware) provision(c *fiber.Ctx, claims *Claims) (*domain.User, error) {
	ctx := c.UserContext()
	user, err := m.users.GetByEmail(ctx, claims.Email)
	switch {
	case err == nil:
		if user.Name == claims.Name && user.IsStaff == claims.IsStaff {
			return user, nil
		}
	case errors.Is(err, repository.ErrNotFound):
		m.logger.Info("provisioning user", zap.String("email", claims.Email), zap.Bool("is_staff", claims.IsStaff))
	default:
		return nil, apperrors.NewInternalError(err)
	}

	fresh := claims.User(m.defaultCredit)
	if err := m.users.Upsert(ctx, fresh); err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return fresh, nil
}

func bearerToken(c *fiber.Ctx) (string, error) {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return c.Query(tokenQueryParam), nil
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", invalidCredentials("invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}

func invalidCredentials(msg string) error {
	return apperrors.NewUnauthenticated(msg)
}

// ActorFromContext returns the authenticated user, or nil for anonymous
// requests.
func ActorFromContext(c *fiber.Ctx) *domain.User {
	user, _ := c.Locals(actorKey).(*domain.User)
	return user
}
