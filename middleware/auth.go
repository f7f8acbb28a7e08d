package middleware

import (
	"context"
	"strings"

	"course-statistics-service/app/apperror"
	"course-statistics-service/logger"
	"course-statistics-service/utils"

	"github.com/gofiber/fiber/v2"
)

// IdentityVerifier validates a bearer token against the identity service.
type IdentityVerifier interface {
	Me(ctx context.Context, token string) (int64, error)
}

// AuthRequired resolves the caller through the identity service and stores the id in
// c.Locals("user_id"). Any failure, including an unreachable identity service, is a 401.
func AuthRequired(identity IdentityVerifier, log *logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			return apperror.Auth("Credenciales de autenticación inválidas", nil)
		}

		userID, err := identity.Me(c.UserContext(), strings.TrimSpace(token))
		if err != nil {
			log.Warn("token validation failed", "path", c.Path(), "error", err)
			return apperror.Auth("Credenciales de autenticación inválidas", err)
		}

		c.Locals("user_id", userID)
		return c.Next()
	}
}

// ServiceToken puts the service account token holder into the request context so
// outbound calls can authenticate. A nil holder leaves the context untouched.
func ServiceToken(holder *utils.TokenHolder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if holder != nil {
			c.SetUserContext(utils.WithTokenHolder(c.UserContext(), holder))
		}
		return c.Next()
	}
}
