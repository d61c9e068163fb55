package role

import (
	"context"

	"github.com/Kyz7/identity/internal/models"
)

var defaultRoles = []Input{
	{
		Name:        models.RoleUser,
		Description: "Authenticated end user",
		Permissions: []string{"profile:read"},
	},
	{
		Name:        models.RoleAdmin,
		Description: "Full access to user and role management",
		Permissions: []string{"profile:read", "users:read", "users:write", "roles:read", "roles:write"},
	},
}

// SeedDefaultRoles creates the built-in roles that do not exist yet.
func (s *Service) SeedDefaultRoles(ctx context.Context) error {
	for _, in := range defaultRoles {
		existing, err := s.FindByName(ctx, in.Name)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		if _, err := s.Create(ctx, in); err != nil {
			return err
		}
	}
	return nil
}
