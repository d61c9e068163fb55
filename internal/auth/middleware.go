package auth

import (
	"strings"

	"github.com/Kyz7/identity/internal/response"
	"github.com/Kyz7/identity/internal/utils"
	"github.com/gofiber/fiber/v2"
)

// TokenParser verifies access tokens.
type TokenParser interface {
	Parse(token string) (*utils.AccessClaims, error)
}

// JWTProtected stores user_id, username and roles from a valid bearer
// token in the request locals.
func JWTProtected(parser TokenParser) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return response.Error(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "Missing authorization token", nil)
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
			return response.Error(c, fiber.StatusUnauthorized, "INVALID_TOKEN_FORMAT", "Invalid token format", nil)
		}

		claims, err := parser.Parse(tokenParts[1])
		if err != nil {
			return response.Error(c, fiber.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token", nil)
		}
		userID, err := claims.UserID()
		if err != nil {
			return response.Error(c, fiber.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token", nil)
		}

		c.Locals("user_id", userID)
		c.Locals("username", claims.Username)
		c.Locals("roles", claims.Roles)
		return c.Next()
	}
}

// RoleProtected admits requests whose token carries any of allowedRoles.
// It must run after JWTProtected.
func RoleProtected(allowedRoles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		roles, _ := c.Locals("roles").([]string)
		for _, have := range roles {
			for _, want := range allowedRoles {
				if have == want {
					return c.Next()
				}
			}
		}
		return response.Forbidden(c, "You don't have permission to access this resource")
	}
}
