package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/oh-queue/internal/api/dto"
	"github.com/spec-kit/oh-queue/internal/auth"
	apperrors "github.com/spec-kit/oh-queue/pkg/util/errorutil"
)

// AuthHandler issues identity tokens for local development, standing in for
// the external identity provider.
type AuthHandler struct {
	tokens *auth.TokenManager
}

// NewAuthHandler constructs handler.
func NewAuthHandler(tokens *auth.TokenManager) *AuthHandler {
	return &AuthHandler{tokens: tokens}
}

// DevToken handles POST /auth/dev/token.
func (h *AuthHandler) DevToken(c *fiber.Ctx) error {
	var req dto.DevTokenRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		return apperrors.NewInvalidInput("email required", nil)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = email
	}
	token, exp, err := h.tokens.GenerateToken(email, name, req.IsStaff)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	return c.JSON(fiber.Map{"data": dto.AuthResponse{Token: token, ExpiresAt: exp}})
}

// Me handles GET /api/me.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": dto.NewUserResponse(auth.ActorFromContext(c))})
}
