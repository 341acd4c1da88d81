package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const usernameLocal = "username"

// SessionValidator resolves a bearer token to the username it was issued to.
type SessionValidator interface {
	ValidateSession(token string) (string, error)
}

// RequireSession rejects requests without a valid bearer token and stores the verified
// username for downstream handlers.
func RequireSession(v SessionValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
		if authz == "" {
			return fiber.NewError(http.StatusUnauthorized, "Token não fornecido")
		}
		scheme, token, ok := strings.Cut(authz, " ")
		token = strings.TrimSpace(token)
		if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
			return fiber.NewError(http.StatusUnauthorized, "Formato de token inválido")
		}
		username, err := v.ValidateSession(token)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "Token inválido")
		}
		c.Locals(usernameLocal, username)
		return c.Next()
	}
}

// Username returns the authenticated username, or "" outside RequireSession.
func Username(c *fiber.Ctx) string {
	username, _ := c.Locals(usernameLocal).(string)
	return username
}
