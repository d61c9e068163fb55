package passwordreset_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Kyz7/identity/internal/apperr"
	"github.com/Kyz7/identity/internal/models"
	"github.com/Kyz7/identity/internal/passwordreset"
	"github.com/Kyz7/identity/internal/testutils"
	"github.com/Kyz7/identity/internal/user"
	"github.com/Kyz7/identity/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	clock    *testutils.Clock
	hasher   *utils.BcryptHasher
	notifier *testutils.RecordingNotifier
	store    *passwordreset.GormStore
	svc      *passwordreset.Service
	alice    *models.User
	bob      *models.User
}

func newFixture(t *testing.T, opts ...passwordreset.Option) *fixture {
	db := testutils.TestDB(t)
	testutils.CreateTestRoles(t, db)
	alice := testutils.CreateTestUser(t, db, "alice", "alice@example.com", "password123", models.RoleUser)
	bob := testutils.CreateTestUser(t, db, "bob", "bob@example.com", "password123", models.RoleUser)

	clock := testutils.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	hasher := testutils.Hasher()
	notifier := &testutils.RecordingNotifier{}
	store := passwordreset.NewGormStore(db)
	users := user.NewService(db, hasher, nil)

	opts = append([]passwordreset.Option{
		passwordreset.WithClock(clock.Now),
		passwordreset.WithNotifier(notifier),
	}, opts...)

	return &fixture{
		db:       db,
		clock:    clock,
		hasher:   hasher,
		notifier: notifier,
		store:    store,
		svc:      passwordreset.NewService(store, users, hasher, opts...),
		alice:    alice,
		bob:      bob,
	}
}

func (f *fixture) passwordHash(t *testing.T, id uint) string {
	var u models.User
	require.NoError(t, f.db.First(&u, id).Error)
	return u.Password
}

func TestRequest_CreatesPendingRequest(t *testing.T) {
	f := newFixture(t)
	ctx := testutils.Context()

	req, err := f.svc.Request(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, req)

	assert.Equal(t, f.alice.ID, req.UserID)
	assert.Len(t, req.Token, utils.TokenBytes*2)
	assert.Equal(t, f.clock.Now().Add(time.Hour), req.ExpiresAt)
	assert.Equal(t, models.ResetPending, req.State(f.clock.Now()))
	assert.Equal(t, 1, f.notifier.Count())

	got, err := f.svc.Validate(ctx, req.Token)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, req.ID, got.ID)
}

func TestRequest_ByUsername(t *testing.T) {
	f := newFixture(t)

	req, err := f.svc.Request(testutils.Context(), "bob")
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, f.bob.ID, req.UserID)
}

func TestRequest_UnknownOrInactiveUserHasNoSideEffect(t *testing.T) {
	f := newFixture(t)
	ctx := testutils.Context()
	require.NoError(t, f.db.Model(f.bob).Update("is_active", false).Error)

	for _, id := range []string{"nonexistent@example.com", "bob@example.com", ""} {
		req, err := f.svc.Request(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, req, id)
	}

	var count int64
	require.NoError(t, f.db.Model(&models.PasswordResetRequest{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Zero(t, f.notifier.Count())
}

func TestRequest_SingleFlight(t *testing.T) {
	f := newFixture(t)
	ctx := testutils.Context()

	first, err := f.svc.Request(ctx, "alice@example.com")
	require.NoError(t, err)
	other, err := f.svc.Request(ctx, "bob@example.com")
	require.NoError(t, err)
	second, err := f.svc.Request(ctx, "alice@example.com")
	require.NoError(t, err)

	got, err := f.svc.Validate(ctx, first.Token)
	require.NoError(t, err)
	assert.Nil(t, got, "first request is invalidated")

	got, err = f.svc.Validate(ctx, second.Token)
	require.NoError(t, err)
	assert.NotNil(t, got)

	got, err = f.svc.Validate(ctx, other.Token)
	require.NoError(t, err)
	assert.NotNil(t, got, "other users are unaffected")

	var pending int64
	require.NoError(t, f.db.Model(&models.PasswordResetRequest{}).
		Where("user_id = ? AND used = ?", f.alice.ID, false).Count(&pending).Error)
	assert.EqualValues(t, 1, pending)
}

func TestRequest_NotifierFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.notifier.Err = errors.New("broker down")

	req, err := f.svc.Request(testutils.Context(), "alice@example.com")
	require.NoError(t, err)
	assert.NotNil(t, req)
}

func TestConfirm_ReplacesPassword(t *testing.T) {
	f := newFixture(t)
	ctx := testutils.Context()

	req, err := f.svc.Request(ctx, "alice@example.com")
	require.NoError(t, err)

	ok, err := f.svc.Confirm(ctx, req.Token, "newpass123")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.True(t, f.hasher.Verify("newpass123", f.passwordHash(t, f.alice.ID)))

	var stored models.PasswordResetRequest
	require.NoError(t, f.db.First(&stored, req.ID).Error)
	assert.True(t, stored.Used)

	ok, err = f.svc.Confirm(ctx, req.Token, "another123")
	require.NoError(t, err)
	assert.False(t, ok, "a request is single-use")
	assert.True(t, f.hasher.Verify("newpass123", f.passwordHash(t, f.alice.ID)))
}

func TestConfirm_ExpiredLeavesPasswordUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := testutils.Context()
	before := f.passwordHash(t, f.bob.ID)

	req, err := f.svc.Request(ctx, "bob@example.com")
	require.NoError(t, err)

	f.clock.Advance(time.Hour + time.Second)

	ok, err := f.svc.Confirm(ctx, req.Token, "newpass123")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, before, f.passwordHash(t, f.bob.ID))
}

func TestConfirm_UnknownToken(t *testing.T) {
	f := newFixture(t)
	ctx := testutils.Context()

	for _, v := range []string{"", "not-a-token"} {
		ok, err := f.svc.Confirm(ctx, v, "newpass123")
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestConfirm_ConcurrentCallsConsumeOnce(t *testing.T) {
	f := newFixture(t)
	ctx := testutils.Context()

	req, err := f.svc.Request(ctx, "alice@example.com")
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]bool, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := f.svc.Confirm(ctx, req.Token, "newpass123")
			assert.NoError(t, err)
			results[i] = ok
		}(i)
	}
	wg.Wait()

	assert.ElementsMatch(t, []bool{true, false}, results)
}

// hashFailure makes Confirm fail after the request was claimed.
type hashFailure struct{ utils.PasswordHasher }

func (hashFailure) Hash(string) (string, error) { return "", errors.New("hasher unavailable") }

func TestConfirm_FailureRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := testutils.Context()
	before := f.passwordHash(t, f.alice.ID)

	req, err := f.svc.Request(ctx, "alice@example.com")
	require.NoError(t, err)

	broken := passwordreset.NewService(f.store, user.NewService(f.db, f.hasher, nil), hashFailure{f.hasher},
		passwordreset.WithClock(f.clock.Now))
	_, err = broken.Confirm(ctx, req.Token, "newpass123")
	require.Error(t, err)

	assert.Equal(t, before, f.passwordHash(t, f.alice.ID))
	got, err := f.svc.Validate(ctx, req.Token)
	require.NoError(t, err)
	assert.NotNil(t, got, "request stays pending when confirm fails")
}

func TestCleanupExpired(t *testing.T) {
	f := newFixture(t)
	ctx := testutils.Context()

	used, err := f.svc.Request(ctx, "alice@example.com")
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, used.Token, "newpass123")
	require.NoError(t, err)

	_, err = f.svc.Request(ctx, "bob@example.com")
	require.NoError(t, err)
	f.clock.Advance(2 * time.Hour)
	live, err := f.svc.Request(ctx, "alice@example.com")
	require.NoError(t, err)

	n, err := f.svc.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	got, err := f.svc.Validate(ctx, live.Token)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestRequest_RetriesOnCollision(t *testing.T) {
	gen := &sequence{values: []string{"taken", "taken", "fresh"}}
	f := newFixture(t, passwordreset.WithGenerator(gen))
	ctx := testutils.Context()

	first, err := f.svc.Request(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "taken", first.Token)

	second, err := f.svc.Request(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, "fresh", second.Token)
}

func TestStore_SetUserPasswordUnknownUser(t *testing.T) {
	f := newFixture(t)
	err := f.store.SetUserPassword(context.Background(), 9999, "hash")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestStore_ExistsAndMarkUsed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.clock.Now()

	req := &models.PasswordResetRequest{UserID: f.alice.ID, Token: "abc", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, f.store.Save(ctx, req))

	ok, err := f.store.ExistsByValue(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, ok)

	won, err := f.store.MarkUsed(ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, won)
	won, err = f.store.MarkUsed(ctx, req.ID)
	require.NoError(t, err)
	assert.False(t, won)

	ok, err = f.store.ExistsByValue(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, ok, "used values still count as issued")
}

type sequence struct {
	mu     sync.Mutex
	values []string
}

func (s *sequence) Generate() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.values) == 0 {
		return "", errors.New("sequence exhausted")
	}
	v := s.values[0]
	s.values = s.values[1:]
	return v, nil
}

// claimLost reports every MarkUsed as already done by another caller.
type claimLost struct{ passwordreset.Store }

func (claimLost) MarkUsed(context.Context, uint) (bool, error) { return false, nil }

func (s claimLost) Atomic(ctx context.Context, fn func(passwordreset.Store) error) error {
	return s.Store.Atomic(ctx, func(tx passwordreset.Store) error {
		return fn(claimLost{tx})
	})
}

func TestConfirm_LosingClaimLeavesPasswordUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := testutils.Context()

	req, err := f.svc.Request(ctx, "alice@example.com")
	require.NoError(t, err)
	before := f.passwordHash(t, f.alice.ID)

	svc := passwordreset.NewService(claimLost{f.store}, user.NewService(f.db, f.hasher, nil), f.hasher,
		passwordreset.WithClock(f.clock.Now))
	ok, err := svc.Confirm(ctx, req.Token, "newpass123")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, before, f.passwordHash(t, f.alice.ID))
	assert.False(t, f.hasher.Verify("newpass123", f.passwordHash(t, f.alice.ID)))
}
