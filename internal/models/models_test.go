package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefreshTokenState(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		token RefreshToken
		want  TokenState
	}{
		{"active", RefreshToken{ExpiresAt: now.Add(time.Minute)}, TokenActive},
		{"expired", RefreshToken{ExpiresAt: now.Add(-time.Minute)}, TokenExpired},
		{"expires exactly now", RefreshToken{ExpiresAt: now}, TokenExpired},
		{"revoked", RefreshToken{ExpiresAt: now.Add(time.Hour), Revoked: true}, TokenRevoked},
		{"revoked and expired", RefreshToken{ExpiresAt: now.Add(-time.Hour), Revoked: true}, TokenRevoked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.token.State(now))
			assert.Equal(t, tt.want == TokenActive, tt.token.IsValid(now))
		})
	}
}

func TestPasswordResetRequestState(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, ResetPending, (&PasswordResetRequest{ExpiresAt: now.Add(time.Second)}).State(now))
	assert.Equal(t, ResetExpired, (&PasswordResetRequest{ExpiresAt: now.Add(-time.Second)}).State(now))
	assert.Equal(t, ResetConsumed, (&PasswordResetRequest{ExpiresAt: now.Add(time.Hour), Used: true}).State(now))
	assert.False(t, (&PasswordResetRequest{ExpiresAt: now, Used: false}).IsValid(now))
}

func TestRolePermissions(t *testing.T) {
	var r Role
	assert.Nil(t, r.PermissionList())

	require.NoError(t, r.SetPermissions([]string{"users:read", "roles:write"}))
	assert.Equal(t, []string{"users:read", "roles:write"}, r.PermissionList())

	require.NoError(t, r.SetPermissions(nil))
	assert.Nil(t, r.PermissionList())
}

func TestUserRoleNames(t *testing.T) {
	u := User{Roles: []Role{{ID: 1, Name: RoleUser}, {ID: 2, Name: RoleAdmin}}}
	assert.Equal(t, []string{RoleUser, RoleAdmin}, u.RoleNames())
	assert.True(t, u.HasRole(RoleAdmin))
	assert.False(t, u.HasRole("ROLE_EDITOR"))
	assert.True(t, u.HasRoleID(2))
	assert.False(t, u.HasRoleID(3))
}
