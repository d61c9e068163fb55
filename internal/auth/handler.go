package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/Kyz7/identity/internal/apperr"
	"github.com/Kyz7/identity/internal/models"
	"github.com/Kyz7/identity/internal/refreshtoken"
	"github.com/Kyz7/identity/internal/response"
	"github.com/Kyz7/identity/internal/user"
	"github.com/gofiber/fiber/v2"
)

const resetAck = "If an account with that email exists, a password reset link has been sent"

type Rotator interface {
	Refresh(ctx context.Context, value string) (*refreshtoken.TokenPair, error)
	RevokeValue(ctx context.Context, userID uint, value string) (bool, error)
}

type Resetter interface {
	Request(ctx context.Context, identifier string) (*models.PasswordResetRequest, error)
	Confirm(ctx context.Context, value, newPassword string) (bool, error)
}

type Handler struct {
	svc    *Service
	tokens Rotator
	resets Resetter
	// exposeResetToken adds the raw reset token to the request response.
	exposeResetToken bool
}

func NewHandler(svc *Service, tokens Rotator, resets Resetter, exposeResetToken bool) *Handler {
	return &Handler{svc: svc, tokens: tokens, resets: resets, exposeResetToken: exposeResetToken}
}

type tokenResponse struct {
	Token            string `json:"token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
}

func newTokenResponse(p *refreshtoken.TokenPair) tokenResponse {
	return tokenResponse{
		Token:            p.AccessToken,
		RefreshToken:     p.RefreshToken.Token,
		ExpiresIn:        int64(p.AccessTTL.Seconds()),
		RefreshExpiresIn: int64(models.RefreshTokenTTL.Seconds()),
	}
}

func (h *Handler) Login(c *fiber.Ctx) error {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.BadRequest(c, "Invalid request body", nil)
	}

	errs := apperr.FieldErrors{}
	if strings.TrimSpace(body.Username) == "" {
		errs.Add("username", "username is required")
	}
	if body.Password == "" {
		errs.Add("password", "password is required")
	}
	if err := errs.OrNil(); err != nil {
		return response.FromError(c, err)
	}

	pair, err := h.svc.Login(c.UserContext(), body.Username, body.Password)
	if errors.Is(err, apperr.ErrAuthentication) {
		return response.Unauthorized(c, "Invalid username or password")
	}
	if err != nil {
		return response.FromError(c, err)
	}
	return c.JSON(newTokenResponse(pair))
}

func (h *Handler) Register(c *fiber.Ctx) error {
	var body struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.BadRequest(c, "Invalid request body", nil)
	}

	u, err := h.svc.Register(c.UserContext(), body.Username, body.Email, body.Password)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, u, "User registered successfully")
}

// Refresh answers every unusable token with the same 401.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.BadRequest(c, "Invalid request body", nil)
	}
	if body.RefreshToken == "" {
		return response.BadRequest(c, "Refresh token is required", nil)
	}

	pair, err := h.tokens.Refresh(c.UserContext(), body.RefreshToken)
	if errors.Is(err, apperr.ErrAuthentication) {
		return response.Unauthorized(c, "Invalid or expired refresh token")
	}
	if err != nil {
		return response.FromError(c, err)
	}
	return c.JSON(newTokenResponse(pair))
}

func (h *Handler) Logout(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.BadRequest(c, "Invalid request body", nil)
	}
	if body.RefreshToken == "" {
		return response.BadRequest(c, "Refresh token is required", nil)
	}

	userID, _ := c.Locals("user_id").(uint)
	if _, err := h.tokens.RevokeValue(c.UserContext(), userID, body.RefreshToken); err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, nil, "Logout successful")
}

func (h *Handler) Me(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(uint)
	u, err := h.svc.Me(c.UserContext(), userID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, u, "Current user retrieved successfully")
}

// RequestPasswordReset acknowledges identically whether or not the email
// belongs to an account.
func (h *Handler) RequestPasswordReset(c *fiber.Ctx) error {
	var body struct {
		Email string `json:"email"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.BadRequest(c, "Invalid request body", nil)
	}
	if strings.TrimSpace(body.Email) == "" {
		return response.ValidationError(c, map[string]string{"email": "email is required"})
	}

	req, err := h.resets.Request(c.UserContext(), body.Email)
	if err != nil {
		return response.FromError(c, err)
	}

	if h.exposeResetToken && req != nil {
		return response.Success(c, fiber.Map{"reset_token": req.Token}, resetAck)
	}
	return response.Success(c, nil, resetAck)
}

func (h *Handler) ConfirmPasswordReset(c *fiber.Ctx) error {
	var body struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.BadRequest(c, "Invalid request body", nil)
	}

	errs := apperr.FieldErrors{}
	if body.Token == "" {
		errs.Add("token", "token is required")
	}
	if len(body.Password) < user.MinPasswordLength {
		errs.Add("password", "password must be at least 8 characters")
	}
	if err := errs.OrNil(); err != nil {
		return response.FromError(c, err)
	}

	ok, err := h.resets.Confirm(c.UserContext(), body.Token, body.Password)
	if err != nil {
		return response.FromError(c, err)
	}
	if !ok {
		return response.Unauthorized(c, "Invalid or expired reset token")
	}
	return response.Success(c, nil, "Password has been reset successfully")
}
