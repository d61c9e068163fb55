package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

const (
	RoleUser  = "ROLE_USER"
	RoleAdmin = "ROLE_ADMIN"
)

type Role struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"size:50;uniqueIndex;not null" json:"name"`
	Description string         `gorm:"size:255" json:"description"`
	Permissions datatypes.JSON `json:"permissions,omitempty"` // ["users:read", "roles:write"]
	Users       []User         `gorm:"many2many:user_roles;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (r *Role) PermissionList() []string {
	if len(r.Permissions) == 0 {
		return nil
	}
	var perms []string
	if err := json.Unmarshal(r.Permissions, &perms); err != nil {
		return nil
	}
	return perms
}

func (r *Role) SetPermissions(perms []string) error {
	if perms == nil {
		r.Permissions = nil
		return nil
	}
	raw, err := json.Marshal(perms)
	if err != nil {
		return err
	}
	r.Permissions = raw
	return nil
}
