package middleware

import (
	"context"
	"errors"

	"github.com/Kyz7/identity/internal/apperr"
	"github.com/Kyz7/identity/internal/models"
	"github.com/Kyz7/identity/internal/response"
	"github.com/gofiber/fiber/v2"
)

const (
	UsersRead  = "users:read"
	UsersWrite = "users:write"
	RolesRead  = "roles:read"
	RolesWrite = "roles:write"
)

// UserLoader loads a user with roles preloaded.
type UserLoader interface {
	Get(ctx context.Context, id uint) (*models.User, error)
}

// PermissionProtected admits requests whose user holds permission through
// any of its roles. Permissions are read from storage, so revoking one takes
// effect before the access token expires. It must run after JWTProtected.
func PermissionProtected(users UserLoader, permission string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, ok := c.Locals("user_id").(uint)
		if !ok {
			return response.Unauthorized(c, "Unauthorized")
		}

		u, err := users.Get(c.UserContext(), userID)
		if errors.Is(err, apperr.ErrNotFound) {
			return response.Unauthorized(c, "Unauthorized")
		}
		if err != nil {
			return response.FromError(c, err)
		}
		if !u.IsActive {
			return response.Forbidden(c, "Account is disabled")
		}

		if !HasPermission(u, permission) {
			return response.Forbidden(c, "You don't have permission to perform this action")
		}
		return c.Next()
	}
}

func HasPermission(u *models.User, permission string) bool {
	for _, r := range u.Roles {
		for _, p := range r.PermissionList() {
			if p == permission {
				return true
			}
		}
	}
	return false
}
