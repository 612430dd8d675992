package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/worksim/api/internal/auth"
	"github.com/worksim/api/pkg/response"
)

const identityKey = "identity"

// AuthMiddleware authenticates bearer tokens, preferring the identity
// provider and falling back to HMAC session tokens when a secret is set
type AuthMiddleware struct {
	verifier      auth.TokenVerifier
	sessionSecret string
}

func NewAuthMiddleware(verifier auth.TokenVerifier, sessionSecret string) *AuthMiddleware {
	return &AuthMiddleware{
		verifier:      verifier,
		sessionSecret: sessionSecret,
	}
}

// Authenticate validates the JWT from the Authorization header
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return response.Unauthorized(c, "Missing authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			return response.Unauthorized(c, "Invalid authorization header format")
		}
		tokenString := parts[1]

		if m.verifier != nil {
			claims, err := m.verifier.Validate(tokenString)
			if err == nil {
				SetIdentity(c, claims.Identity())
				return c.Next()
			}
			if m.sessionSecret == "" {
				return response.Unauthorized(c, "Invalid or expired token")
			}
		}

		if m.sessionSecret != "" {
			claims, err := auth.ValidateSessionToken(tokenString, m.sessionSecret)
			if err != nil {
				return response.Unauthorized(c, "Invalid or expired token")
			}
			SetIdentity(c, claims.Identity())
			return c.Next()
		}

		return response.Unauthorized(c, "Authentication not configured")
	}
}

// SetIdentity stores the authenticated caller on the request
func SetIdentity(c *fiber.Ctx, id auth.Identity) {
	c.Locals(identityKey, id)
}

// GetIdentity returns the authenticated caller, if any
func GetIdentity(c *fiber.Ctx) (auth.Identity, bool) {
	id, ok := c.Locals(identityKey).(auth.Identity)
	return id, ok && id.UserID != ""
}

func GetUserID(c *fiber.Ctx) string {
	id, _ := GetIdentity(c)
	return id.UserID
}

func GetUserEmail(c *fiber.Ctx) string {
	id, _ := GetIdentity(c)
	return id.Email
}

func GetUserName(c *fiber.Ctx) string {
	id, _ := GetIdentity(c)
	return id.Name
}
