package user_test

import (
	"testing"

	"github.com/Kyz7/identity/internal/apperr"
	"github.com/Kyz7/identity/internal/models"
	"github.com/Kyz7/identity/internal/testutils"
	"github.com/Kyz7/identity/internal/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindByIdentifier(t *testing.T) {
	db := testutils.TestDB(t)
	testutils.CreateTestRoles(t, db)
	alice := testutils.CreateTestUser(t, db, "alice", "alice@example.com", "password123", models.RoleUser)
	svc := user.NewService(db, testutils.Hasher(), nil)
	ctx := testutils.Context()

	for _, id := range []string{"alice", "alice@example.com", "  ALICE@example.com "} {
		u, err := svc.FindByIdentifier(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, u, id)
		assert.Equal(t, alice.ID, u.ID)
		assert.Equal(t, []string{models.RoleUser}, u.RoleNames())
	}

	u, err := svc.FindByIdentifier(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, u)

	assert.True(t, svc.IsActive(alice))
	assert.False(t, svc.IsActive(&models.User{IsActive: false}))
	assert.False(t, svc.IsActive(nil))
}

func TestCreate_SanitizesUsername(t *testing.T) {
	db := testutils.TestDB(t)
	testutils.CreateTestRoles(t, db)
	svc := user.NewService(db, testutils.Hasher(), nil)

	u, err := svc.Create(testutils.Context(), user.CreateInput{
		Username: "<b>bob</b>",
		Email:    "bob@example.com",
		Password: "password123",
	})
	require.NoError(t, err)
	assert.Equal(t, "bob", u.Username)
	assert.NotEqual(t, "password123", u.Password)
}

func TestCreate_MissingDefaultRole(t *testing.T) {
	db := testutils.TestDB(t)
	svc := user.NewService(db, testutils.Hasher(), nil)

	_, err := svc.Create(testutils.Context(), user.CreateInput{
		Username: "bob",
		Email:    "bob@example.com",
		Password: "password123",
	})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSeedAdmin(t *testing.T) {
	db := testutils.TestDB(t)
	testutils.CreateTestRoles(t, db)
	svc := user.NewService(db, testutils.Hasher(), nil)
	ctx := testutils.Context()

	admin, created, err := svc.SeedAdmin(ctx, "admin", "admin@example.com", "supersecret")
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, admin.HasRole(models.RoleAdmin))

	again, created, err := svc.SeedAdmin(ctx, "admin", "admin@example.com", "supersecret")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, admin.ID, again.ID)
}

func TestClampPage(t *testing.T) {
	cases := []struct{ page, limit, wantPage, wantLimit int }{
		{0, 0, 1, user.DefaultPageSize},
		{-3, 5, 1, 5},
		{2, 101, 2, user.MaxPageSize},
		{4, 100, 4, 100},
	}
	for _, tc := range cases {
		p, l := user.ClampPage(tc.page, tc.limit)
		assert.Equal(t, tc.wantPage, p)
		assert.Equal(t, tc.wantLimit, l)
	}
}
