package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/worksim/api/internal/auth"
	"github.com/worksim/api/internal/middleware"
)

// AuthHandler answers Traefik ForwardAuth checks
type AuthHandler struct {
	verifier      auth.TokenVerifier
	sessionSecret string
}

func NewAuthHandler(verifier auth.TokenVerifier, sessionSecret string) *AuthHandler {
	return &AuthHandler{
		verifier:      verifier,
		sessionSecret: sessionSecret,
	}
}

// Verify handles GET /auth/verify. It returns 200 with the X-User-*
// headers for a valid bearer token and 401 otherwise.
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	id, ok := h.identify(c.Get(fiber.HeaderAuthorization))
	if !ok {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	c.Set(middleware.HeaderUserID, id.UserID)
	c.Set(middleware.HeaderUserEmail, id.Email)
	c.Set(middleware.HeaderUserName, id.Name)
	return c.SendStatus(fiber.StatusOK)
}

func (h *AuthHandler) identify(header string) (auth.Identity, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return auth.Identity{}, false
	}
	token := parts[1]

	if h.verifier != nil {
		if claims, err := h.verifier.Validate(token); err == nil {
			return claims.Identity(), true
		}
	}
	if h.sessionSecret != "" {
		if claims, err := auth.ValidateSessionToken(token, h.sessionSecret); err == nil {
			return claims.Identity(), true
		}
	}
	return auth.Identity{}, false
}
