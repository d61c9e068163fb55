package user

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/Kyz7/identity/internal/apperr"
	"github.com/Kyz7/identity/internal/logging"
	"github.com/Kyz7/identity/internal/models"
	"github.com/Kyz7/identity/internal/utils"
	"github.com/microcosm-cc/bluemonday"
	"gorm.io/gorm"
)

const (
	MinPasswordLength = 8
	DefaultPageSize   = 20
	MaxPageSize       = 100
)

// TokenRevoker ends every refresh session of a user.
type TokenRevoker interface {
	RevokeAllForUser(ctx context.Context, userID uint) (int64, error)
}

type CreateInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	IsActive *bool  `json:"is_active"`
	RoleIDs  []uint `json:"role_ids"`
}

// UpdateInput fields left nil are not changed.
type UpdateInput struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
	IsActive *bool   `json:"is_active"`
}

type Stats struct {
	Total  int64 `json:"total"`
	Active int64 `json:"active"`
}

type Page struct {
	Users []models.User
	Total int64
	Page  int
	Limit int
}

type Service struct {
	db      *gorm.DB
	hasher  utils.PasswordHasher
	revoker TokenRevoker
	policy  *bluemonday.Policy
}

func NewService(db *gorm.DB, hasher utils.PasswordHasher, revoker TokenRevoker) *Service {
	return &Service{db: db, hasher: hasher, revoker: revoker, policy: bluemonday.StrictPolicy()}
}

// FindByIdentifier looks identifier up as a username, then as an email.
// It returns nil when neither matches.
func (s *Service) FindByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, nil
	}

	var u models.User
	err := s.db.WithContext(ctx).Preload("Roles").
		Where("username = ? OR LOWER(email) = ?", identifier, strings.ToLower(identifier)).
		Order("id").
		First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage("users.find_by_identifier", err)
	}
	return &u, nil
}

func (s *Service) IsActive(u *models.User) bool {
	return u != nil && u.IsActive
}

func (s *Service) Get(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).Preload("Roles").First(&u, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("user")
	}
	if err != nil {
		return nil, apperr.Storage("users.get", err)
	}
	return &u, nil
}

// List pages through users ordered by id. An empty q lists everyone;
// otherwise username and email are matched case-insensitively.
func (s *Service) List(ctx context.Context, q string, page, limit int) (*Page, error) {
	page, limit = ClampPage(page, limit)

	query := s.db.WithContext(ctx).Model(&models.User{})
	if q = strings.TrimSpace(q); q != "" {
		pattern := "%" + strings.ToLower(q) + "%"
		query = query.Where("LOWER(username) LIKE ? OR LOWER(email) LIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, apperr.Storage("users.count", err)
	}

	var users []models.User
	err := query.Preload("Roles").
		Order("id").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, apperr.Storage("users.list", err)
	}
	return &Page{Users: users, Total: total, Page: page, Limit: limit}, nil
}

// Stats counts all users and the active ones.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	db := s.db.WithContext(ctx)
	if err := db.Model(&models.User{}).Count(&st.Total).Error; err != nil {
		return nil, apperr.Storage("users.stats", err)
	}
	if err := db.Model(&models.User{}).Where("is_active = ?", true).Count(&st.Active).Error; err != nil {
		return nil, apperr.Storage("users.stats", err)
	}
	return &st, nil
}

// Roles returns the roles assigned to a user.
func (s *Service) Roles(ctx context.Context, id uint) ([]models.Role, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Roles == nil {
		return []models.Role{}, nil
	}
	return u.Roles, nil
}

func ClampPage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	switch {
	case limit < 1:
		limit = DefaultPageSize
	case limit > MaxPageSize:
		limit = MaxPageSize
	}
	return page, limit
}

// Create adds a user. Without role ids the user gets ROLE_USER.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.User, error) {
	in.Username = s.cleanUsername(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	errs := apperr.FieldErrors{}
	validateUsername(errs, in.Username)
	validateEmail(errs, in.Email)
	validatePassword(errs, in.Password)
	if err := errs.OrNil(); err != nil {
		return nil, err
	}

	if err := s.ensureUnique(ctx, in.Username, in.Email, 0); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	u := models.User{
		Username: in.Username,
		Email:    in.Email,
		Password: hash,
		IsActive: true,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		roles, err := s.resolveRoles(tx, in.RoleIDs)
		if err != nil {
			return err
		}
		u.Roles = roles
		if err := tx.Omit("Roles.*").Create(&u).Error; err != nil {
			return err
		}
		// is_active has a database default, so false must be written explicitly.
		if in.IsActive != nil && !*in.IsActive {
			u.IsActive = false
			return tx.Model(&models.User{ID: u.ID}).Update("is_active", false).Error
		}
		return nil
	})
	if err != nil {
		return nil, mapWriteErr("users.create", err)
	}
	return &u, nil
}

func (s *Service) Update(ctx context.Context, id uint, in UpdateInput) (*models.User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	errs := apperr.FieldErrors{}
	updates := map[string]any{}
	if in.Username != nil {
		name := s.cleanUsername(*in.Username)
		validateUsername(errs, name)
		updates["username"] = name
	}
	if in.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*in.Email))
		validateEmail(errs, email)
		updates["email"] = email
	}
	if in.Password != nil {
		validatePassword(errs, *in.Password)
	}
	if err := errs.OrNil(); err != nil {
		return nil, err
	}

	username, _ := updates["username"].(string)
	email, _ := updates["email"].(string)
	if err := s.ensureUnique(ctx, username, email, u.ID); err != nil {
		return nil, err
	}

	if in.Password != nil {
		hash, err := s.hasher.Hash(*in.Password)
		if err != nil {
			return nil, err
		}
		updates["password"] = hash
	}
	deactivated := in.IsActive != nil && !*in.IsActive && u.IsActive
	if in.IsActive != nil {
		updates["is_active"] = *in.IsActive
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&models.User{ID: u.ID}).Updates(updates).Error; err != nil {
			return nil, mapWriteErr("users.update", err)
		}
	}

	if deactivated && s.revoker != nil {
		if _, err := s.revoker.RevokeAllForUser(ctx, u.ID); err != nil {
			return nil, err
		}
		logging.FromContext(ctx).Info("user deactivated", "svc", "user.update", "user_id", u.ID)
	}

	return s.Get(ctx, u.ID)
}

// Delete removes the user along with its tokens and role assignments.
func (s *Service) Delete(ctx context.Context, id uint) error {
	u, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", u.ID).Delete(&models.RefreshToken{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", u.ID).Delete(&models.PasswordResetRequest{}).Error; err != nil {
			return err
		}
		if err := tx.Model(u).Association("Roles").Clear(); err != nil {
			return err
		}
		return tx.Delete(u).Error
	})
	return apperr.Storage("users.delete", err)
}

// SetRoles replaces the user's roles with roleIDs.
func (s *Service) SetRoles(ctx context.Context, id uint, roleIDs []uint) (*models.User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		roles, err := s.findRoles(tx, roleIDs)
		if err != nil {
			return err
		}
		return tx.Model(u).Association("Roles").Replace(roles)
	})
	if err != nil {
		return nil, mapWriteErr("users.set_roles", err)
	}
	return s.Get(ctx, id)
}

func (s *Service) AddRole(ctx context.Context, id, roleID uint) (*models.User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.HasRoleID(roleID) {
		return u, nil
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		roles, err := s.findRoles(tx, []uint{roleID})
		if err != nil {
			return err
		}
		return tx.Model(u).Association("Roles").Append(roles)
	})
	if err != nil {
		return nil, mapWriteErr("users.add_role", err)
	}
	return s.Get(ctx, id)
}

func (s *Service) RemoveRole(ctx context.Context, id, roleID uint) (*models.User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !u.HasRoleID(roleID) {
		return nil, apperr.NotFound("role assignment")
	}
	if err := s.db.WithContext(ctx).Model(u).Association("Roles").Delete(&models.Role{ID: roleID}); err != nil {
		return nil, apperr.Storage("users.remove_role", err)
	}
	return s.Get(ctx, id)
}

// SeedAdmin creates the administrator account unless a user with the same
// username or email exists.
func (s *Service) SeedAdmin(ctx context.Context, username, email, password string) (*models.User, bool, error) {
	if existing, err := s.FindByIdentifier(ctx, email); err != nil || existing != nil {
		return existing, false, err
	}
	if existing, err := s.FindByIdentifier(ctx, username); err != nil || existing != nil {
		return existing, false, err
	}

	var admin models.Role
	if err := s.db.WithContext(ctx).Where("name = ?", models.RoleAdmin).First(&admin).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, apperr.NotFound("role " + models.RoleAdmin)
		}
		return nil, false, apperr.Storage("users.seed_admin", err)
	}

	u, err := s.Create(ctx, CreateInput{
		Username: username,
		Email:    email,
		Password: password,
		RoleIDs:  []uint{admin.ID},
	})
	if err != nil {
		return nil, false, err
	}
	return u, true, nil
}

func (s *Service) resolveRoles(tx *gorm.DB, roleIDs []uint) ([]models.Role, error) {
	if len(roleIDs) > 0 {
		return s.findRoles(tx, roleIDs)
	}
	var def models.Role
	err := tx.Where("name = ?", models.RoleUser).First(&def).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("role " + models.RoleUser)
	}
	if err != nil {
		return nil, err
	}
	return []models.Role{def}, nil
}

func (s *Service) findRoles(tx *gorm.DB, roleIDs []uint) ([]models.Role, error) {
	ids := dedupe(roleIDs)
	if len(ids) == 0 {
		return []models.Role{}, nil
	}
	var roles []models.Role
	if err := tx.Where("id IN ?", ids).Find(&roles).Error; err != nil {
		return nil, err
	}
	if len(roles) != len(ids) {
		return nil, apperr.NotFound("role")
	}
	return roles, nil
}

func (s *Service) ensureUnique(ctx context.Context, username, email string, exceptID uint) error {
	db := s.db.WithContext(ctx).Model(&models.User{})
	if username != "" {
		var n int64
		if err := db.Where("username = ? AND id <> ?", username, exceptID).Count(&n).Error; err != nil {
			return apperr.Storage("users.unique_username", err)
		}
		if n > 0 {
			return apperr.Conflict("username %q is already taken", username)
		}
	}
	if email != "" {
		var n int64
		if err := s.db.WithContext(ctx).Model(&models.User{}).
			Where("LOWER(email) = ? AND id <> ?", email, exceptID).
			Count(&n).Error; err != nil {
			return apperr.Storage("users.unique_email", err)
		}
		if n > 0 {
			return apperr.Conflict("email is already registered")
		}
	}
	return nil
}

func (s *Service) cleanUsername(name string) string {
	return strings.TrimSpace(s.policy.Sanitize(name))
}

func validateUsername(errs apperr.FieldErrors, name string) {
	switch {
	case name == "":
		errs.Add("username", "username is required")
	case len(name) < 3 || len(name) > 180:
		errs.Add("username", "username must be between 3 and 180 characters")
	}
}

func validateEmail(errs apperr.FieldErrors, email string) {
	if email == "" {
		errs.Add("email", "email is required")
		return
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		errs.Add("email", "email is invalid")
	}
}

func validatePassword(errs apperr.FieldErrors, pw string) {
	if len(pw) < MinPasswordLength {
		errs.Add("password", "password must be at least 8 characters")
	}
}

func mapWriteErr(op string, err error) error {
	if err == nil || apperr.Known(err) {
		return err
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Conflict("username or email is already taken")
	}
	return apperr.Storage(op, err)
}

func dedupe(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
