package role

import (
	"context"
	"errors"
	"strings"

	"github.com/Kyz7/identity/internal/apperr"
	"github.com/Kyz7/identity/internal/models"
	"github.com/microcosm-cc/bluemonday"
	"gorm.io/gorm"
)

type Input struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

// PatchInput fields left nil are not changed.
type PatchInput struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Permissions []string `json:"permissions"`
}

// Usage is a role with the number of users holding it.
type Usage struct {
	models.Role
	UserCount int64 `json:"user_count"`
}

type Stats struct {
	Total  int64 `json:"total"`
	Unused int64 `json:"unused"`
}

type Service struct {
	db     *gorm.DB
	policy *bluemonday.Policy
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, policy: bluemonday.StrictPolicy()}
}

func (s *Service) normalize(in Input) (Input, error) {
	in.Name = strings.ToUpper(strings.TrimSpace(in.Name))
	in.Description = strings.TrimSpace(s.policy.Sanitize(in.Description))

	errs := apperr.FieldErrors{}
	switch {
	case in.Name == "":
		errs.Add("name", "role name is required")
	case len(in.Name) > 50:
		errs.Add("name", "role name must be at most 50 characters")
	}
	if len(in.Description) > 255 {
		errs.Add("description", "description must be at most 255 characters")
	}
	return in, errs.OrNil()
}

func (s *Service) Create(ctx context.Context, in Input) (*models.Role, error) {
	in, err := s.normalize(in)
	if err != nil {
		return nil, err
	}

	if taken, err := s.nameTaken(ctx, in.Name, 0); err != nil {
		return nil, err
	} else if taken {
		return nil, apperr.Conflict("role %q already exists", in.Name)
	}

	r := models.Role{Name: in.Name, Description: in.Description}
	if err := r.SetPermissions(in.Permissions); err != nil {
		return nil, apperr.FieldErrors{"permissions": "permissions must be a list of strings"}
	}
	if err := s.db.WithContext(ctx).Create(&r).Error; err != nil {
		return nil, mapWriteErr("roles.create", in.Name, err)
	}
	return &r, nil
}

func (s *Service) Get(ctx context.Context, id uint) (*models.Role, error) {
	var r models.Role
	err := s.db.WithContext(ctx).First(&r, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("role")
	}
	if err != nil {
		return nil, apperr.Storage("roles.get", err)
	}
	return &r, nil
}

// FindByName returns nil when no role has name.
func (s *Service) FindByName(ctx context.Context, name string) (*models.Role, error) {
	var r models.Role
	err := s.db.WithContext(ctx).Where("name = ?", strings.ToUpper(name)).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage("roles.find_by_name", err)
	}
	return &r, nil
}

func (s *Service) List(ctx context.Context) ([]models.Role, error) {
	var roles []models.Role
	if err := s.db.WithContext(ctx).Order("id").Find(&roles).Error; err != nil {
		return nil, apperr.Storage("roles.list", err)
	}
	return roles, nil
}

// Search matches q against name and description, case-insensitively.
func (s *Service) Search(ctx context.Context, q string) ([]models.Role, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(q)) + "%"
	var roles []models.Role
	err := s.db.WithContext(ctx).
		Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", pattern, pattern).
		Order("name").
		Find(&roles).Error
	if err != nil {
		return nil, apperr.Storage("roles.search", err)
	}
	return roles, nil
}

func (s *Service) Update(ctx context.Context, id uint, in Input) (*models.Role, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	in, err = s.normalize(in)
	if err != nil {
		return nil, err
	}

	if in.Name != r.Name {
		if taken, err := s.nameTaken(ctx, in.Name, id); err != nil {
			return nil, err
		} else if taken {
			return nil, apperr.Conflict("role %q already exists", in.Name)
		}
	}

	r.Name = in.Name
	r.Description = in.Description
	if in.Permissions != nil {
		if err := r.SetPermissions(in.Permissions); err != nil {
			return nil, apperr.FieldErrors{"permissions": "permissions must be a list of strings"}
		}
	}
	if err := s.db.WithContext(ctx).Save(r).Error; err != nil {
		return nil, mapWriteErr("roles.update", in.Name, err)
	}
	return r, nil
}

// Patch applies the non-nil fields of in on top of the stored role.
func (s *Service) Patch(ctx context.Context, id uint, in PatchInput) (*models.Role, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	merged := Input{Name: r.Name, Description: r.Description, Permissions: in.Permissions}
	if in.Name != nil {
		merged.Name = *in.Name
	}
	if in.Description != nil {
		merged.Description = *in.Description
	}
	return s.Update(ctx, id, merged)
}

// Users lists the holders of a role ordered by id.
func (s *Service) Users(ctx context.Context, id uint) ([]models.User, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	var users []models.User
	err := s.db.WithContext(ctx).
		Joins("JOIN user_roles ON user_roles.user_id = users.id").
		Where("user_roles.role_id = ?", id).
		Order("users.id").
		Find(&users).Error
	if err != nil {
		return nil, apperr.Storage("roles.users", err)
	}
	return users, nil
}

// ListWithUserCount returns every role by name with its holder count.
func (s *Service) ListWithUserCount(ctx context.Context) ([]Usage, error) {
	db := s.db.WithContext(ctx)

	var roles []models.Role
	if err := db.Order("name").Find(&roles).Error; err != nil {
		return nil, apperr.Storage("roles.list_with_count", err)
	}

	var counts []struct {
		RoleID uint
		N      int64
	}
	err := db.Table("user_roles").
		Select("role_id, COUNT(*) AS n").
		Group("role_id").
		Scan(&counts).Error
	if err != nil {
		return nil, apperr.Storage("roles.list_with_count", err)
	}
	byRole := make(map[uint]int64, len(counts))
	for _, c := range counts {
		byRole[c.RoleID] = c.N
	}

	out := make([]Usage, 0, len(roles))
	for _, r := range roles {
		out = append(out, Usage{Role: r, UserCount: byRole[r.ID]})
	}
	return out, nil
}

// Delete removes the role and its user assignments.
func (s *Service) Delete(ctx context.Context, id uint) error {
	r, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(r).Association("Users").Clear(); err != nil {
			return err
		}
		return tx.Delete(r).Error
	})
	return apperr.Storage("roles.delete", err)
}

// Stats counts all roles and those assigned to no user.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	db := s.db.WithContext(ctx)
	if err := db.Model(&models.Role{}).Count(&st.Total).Error; err != nil {
		return nil, apperr.Storage("roles.stats", err)
	}
	if err := db.Model(&models.Role{}).
		Where("id NOT IN (?)", db.Table("user_roles").Select("role_id")).
		Count(&st.Unused).Error; err != nil {
		return nil, apperr.Storage("roles.stats", err)
	}
	return &st, nil
}

func (s *Service) nameTaken(ctx context.Context, name string, exceptID uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Role{}).
		Where("name = ? AND id <> ?", name, exceptID).
		Count(&count).Error
	if err != nil {
		return false, apperr.Storage("roles.name_taken", err)
	}
	return count > 0, nil
}

func mapWriteErr(op, name string, err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Conflict("role %q already exists", name)
	}
	return apperr.Storage(op, err)
}
