package response

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/Kyz7/identity/internal/apperr"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"fields", apperr.FieldErrors{"email": "email is required"}, fiber.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"validation", apperr.ErrValidation, fiber.StatusBadRequest, "BAD_REQUEST"},
		{"authentication", apperr.ErrAuthentication, fiber.StatusUnauthorized, "UNAUTHORIZED"},
		{"not found", apperr.NotFound("role"), fiber.StatusNotFound, "NOT_FOUND"},
		{"conflict", apperr.Conflict("role %q already exists", "x"), fiber.StatusConflict, "CONFLICT"},
		{"storage", apperr.Storage("users.find", errors.New("dial tcp: refused")), fiber.StatusInternalServerError, "INTERNAL_ERROR"},
		{"storage wrapping not found", apperr.Storage("auth.register", apperr.NotFound("role ROLE_USER")), fiber.StatusInternalServerError, "INTERNAL_ERROR"},
		{"unknown", errors.New("boom"), fiber.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/", func(c *fiber.Ctx) error { return FromError(c, tc.err) })

			resp, err := app.Test(httptest.NewRequest("GET", "/", nil), -1)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)

			body, _ := io.ReadAll(resp.Body)
			var out StandardResponse
			require.NoError(t, json.Unmarshal(body, &out))
			assert.False(t, out.Success)
			require.NotNil(t, out.Error)
			assert.Equal(t, tc.code, out.Error.Code)
			assert.NotContains(t, string(body), "dial tcp")
		})
	}
}

func TestCalculateMeta(t *testing.T) {
	m := CalculateMeta(2, 10, 25)
	assert.Equal(t, int64(3), m.TotalPages)
	assert.Equal(t, 2, m.Page)
}
