package testutils

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Kyz7/identity/internal/config"
	"github.com/Kyz7/identity/internal/database"
	"github.com/Kyz7/identity/internal/logging"
	"github.com/Kyz7/identity/internal/models"
	"github.com/Kyz7/identity/internal/server"
	"github.com/Kyz7/identity/internal/utils"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// TestDB opens a private in-memory SQLite database with the full schema.
// A single connection keeps every query on the same database, so code under
// test must use only the transaction handle while a transaction is open.
func TestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), database.GormConfig(Logger()))
	require.NoError(t, err, "Failed to create test database")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db), "Failed to migrate test database")
	return db
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start.UTC()}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Hasher hashes at the minimum bcrypt cost.
func Hasher() *utils.BcryptHasher {
	return &utils.BcryptHasher{Cost: bcrypt.MinCost}
}

func Logger() *slog.Logger {
	return logging.NewWithWriter(io.Discard, "error")
}

func Context() context.Context {
	return logging.IntoContext(context.Background(), Logger())
}

// CreateTestRoles inserts ROLE_USER and ROLE_ADMIN with their default
// permissions.
func CreateTestRoles(t *testing.T, db *gorm.DB) (userRole, adminRole *models.Role) {
	t.Helper()

	userRole = &models.Role{Name: models.RoleUser, Description: "Authenticated end user"}
	require.NoError(t, userRole.SetPermissions([]string{"profile:read"}))
	require.NoError(t, db.Create(userRole).Error)

	adminRole = &models.Role{Name: models.RoleAdmin, Description: "Administrator"}
	require.NoError(t, adminRole.SetPermissions([]string{"profile:read", "users:read", "users:write", "roles:read", "roles:write"}))
	require.NoError(t, db.Create(adminRole).Error)

	return userRole, adminRole
}

// CreateTestUser inserts an active user holding the named roles, which must
// already exist.
func CreateTestUser(t *testing.T, db *gorm.DB, username, email, password string, roleNames ...string) *models.User {
	t.Helper()

	hash, err := Hasher().Hash(password)
	require.NoError(t, err)

	var roles []models.Role
	if len(roleNames) > 0 {
		require.NoError(t, db.Where("name IN ?", roleNames).Find(&roles).Error)
		require.Len(t, roles, len(roleNames), "Make sure CreateTestRoles was called")
	}

	u := &models.User{
		Username: username,
		Email:    email,
		Password: hash,
		IsActive: true,
		Roles:    roles,
	}
	require.NoError(t, db.Omit("Roles.*").Create(u).Error, "Failed to create test user")
	require.NoError(t, db.Preload("Roles").First(u, u.ID).Error)
	return u
}

type TestApp struct {
	App   *fiber.App
	DB    *gorm.DB
	Clock *Clock
	C     *server.Container
}

// SetupTestApp wires the full HTTP stack on a fresh database. The reset
// notifier defaults to a recorder unless opts replace it.
func SetupTestApp(t *testing.T, opts ...server.Option) *TestApp {
	t.Helper()

	db := TestDB(t)
	CreateTestRoles(t, db)

	clock := NewClock(time.Now())
	all := append([]server.Option{
		server.WithClock(clock.Now),
		server.WithHasher(Hasher()),
		server.WithNotifier(&RecordingNotifier{}),
	}, opts...)

	c := server.Wire(db, config.Test(), Logger(), all...)
	return &TestApp{App: server.New(c), DB: db, Clock: clock, C: c}
}

// GetAuthToken mints an access token for u. Roles must be preloaded.
func (a *TestApp) GetAuthToken(t *testing.T, u *models.User) string {
	t.Helper()
	token, err := a.C.Minter.Mint(u)
	require.NoError(t, err, "Failed to generate test token")
	return token
}

// RecordingNotifier keeps every reset it is asked to deliver.
type RecordingNotifier struct {
	mu       sync.Mutex
	Requests []*models.PasswordResetRequest
	Err      error
}

func (n *RecordingNotifier) PasswordResetRequested(_ context.Context, _ *models.User, req *models.PasswordResetRequest) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Requests = append(n.Requests, req)
	return n.Err
}

func (n *RecordingNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Requests)
}

func (n *RecordingNotifier) Close() error { return nil }

func MakeRequest(app *fiber.App, method, url string, body interface{}, token string) (*httptest.ResponseRecorder, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req := httptest.NewRequest(method, url, bodyReader)
	req.Header.Set("Content-Type", "application/json")

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()

	resp, err := app.Test(req, -1)
	if err != nil {
		return rec, err
	}

	rec.Code = resp.StatusCode

	io.Copy(rec.Body, resp.Body)
	resp.Body.Close()

	return rec, nil
}

func ParseResponse(t *testing.T, resp *httptest.ResponseRecorder, v interface{}) {
	if resp.Body.Len() == 0 {
		t.Log("Warning: Response body is empty")
		return
	}

	err := json.NewDecoder(bytes.NewReader(resp.Body.Bytes())).Decode(v)
	if err != nil && err != io.EOF {
		t.Logf("Response body: %s", resp.Body.String())
		assert.NoError(t, err, "Failed to parse response")
	}
}

type StandardResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Data    interface{}  `json:"data"`
	Error   *ErrorDetail `json:"error"`
	Meta    *Meta        `json:"meta"`
}

type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details"`
}

type Meta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"total_pages"`
}

type TokenResponse struct {
	Token            string `json:"token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
}

func AssertSuccess(t *testing.T, resp *httptest.ResponseRecorder) {
	var result StandardResponse
	ParseResponse(t, resp, &result)
	assert.True(t, result.Success, "Expected success response")
	assert.Empty(t, result.Error, "Expected no error")
}

func AssertError(t *testing.T, resp *httptest.ResponseRecorder, expectedCode string) {
	var result StandardResponse
	ParseResponse(t, resp, &result)
	assert.False(t, result.Success, "Expected error response")
	if assert.NotNil(t, result.Error, "Expected error object") {
		assert.Equal(t, expectedCode, result.Error.Code, "Error code mismatch")
	}
}
