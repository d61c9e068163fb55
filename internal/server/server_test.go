package server_test

import (
	"testing"

	"github.com/Kyz7/identity/internal/config"
	"github.com/Kyz7/identity/internal/notify"
	"github.com/Kyz7/identity/internal/server"
	"github.com/Kyz7/identity/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealth(t *testing.T) {
	ta := testutils.SetupTestApp(t)

	resp, err := testutils.MakeRequest(ta.App, "GET", "/health", nil, "")
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Code)
	assert.Contains(t, resp.Body.String(), `"status":"ok"`)
}

func TestUnknownRoute(t *testing.T) {
	ta := testutils.SetupTestApp(t)

	resp, err := testutils.MakeRequest(ta.App, "GET", "/api/nope", nil, "")
	require.NoError(t, err)
	assert.Equal(t, 404, resp.Code)
}

func TestWire_SelectsNotifier(t *testing.T) {
	db := testutils.TestDB(t)

	c := server.Wire(db, config.Test(), testutils.Logger())
	assert.IsType(t, &notify.LogNotifier{}, c.Notifier)

	cfg := config.Test()
	cfg.KafkaBrokers = []string{"localhost:9092"}
	c = server.Wire(db, cfg, testutils.Logger())
	assert.IsType(t, &notify.KafkaNotifier{}, c.Notifier)
	assert.NoError(t, c.Notifier.Close())
}

func TestAuthRateLimit(t *testing.T) {
	db := testutils.TestDB(t)
	cfg := config.Test()
	cfg.AuthRateLimit = 2
	app := server.New(server.Wire(db, cfg, testutils.Logger(), server.WithHasher(testutils.Hasher())))

	var codes []int
	for i := 0; i < 3; i++ {
		resp, err := testutils.MakeRequest(app, "POST", "/api/auth/refresh", map[string]interface{}{}, "")
		require.NoError(t, err)
		codes = append(codes, resp.Code)
	}
	assert.Equal(t, []int{400, 400, 429}, codes)
}
