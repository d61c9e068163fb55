// Package refreshtoken issues, validates and rotates opaque refresh tokens.
//
// A token is Active until it is revoked (by rotation, logout or an
// account-level event) or its expiry passes; neither terminal state can be
// left. Rotation is one-shot: the conditional revoke inside Refresh lets
// exactly one concurrent caller win for a given token value.
package refreshtoken

import (
	"context"
	"fmt"
	"time"

	"github.com/Kyz7/identity/internal/apperr"
	"github.com/Kyz7/identity/internal/logging"
	"github.com/Kyz7/identity/internal/models"
	"github.com/Kyz7/identity/internal/utils"
)

// AccessTokenMinter signs short-lived access tokens.
type AccessTokenMinter interface {
	Mint(u *models.User) (string, error)
	TTL() time.Duration
}

// TokenPair is what a successful login or refresh hands back to the client.
type TokenPair struct {
	AccessToken  string
	RefreshToken *models.RefreshToken
	AccessTTL    time.Duration
}

type Service struct {
	store  Store
	minter AccessTokenMinter
	gen    utils.TokenGenerator
	now    func() time.Time
}

type Option func(*Service)

// WithClock replaces the wall clock, used for expiry checks and new expiries.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithGenerator(g utils.TokenGenerator) Option {
	return func(s *Service) { s.gen = g }
}

func NewService(store Store, minter AccessTokenMinter, opts ...Option) *Service {
	s := &Service{
		store:  store,
		minter: minter,
		gen:    utils.NewRandomHex(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue persists a new refresh token for u.
func (s *Service) Issue(ctx context.Context, u *models.User) (*models.RefreshToken, error) {
	return s.issue(ctx, s.store, u)
}

func (s *Service) issue(ctx context.Context, store Store, u *models.User) (*models.RefreshToken, error) {
	var token *models.RefreshToken
	err := utils.RetryOnConflict(ctx, func(ctx context.Context) error {
		value, err := s.gen.Generate()
		if err != nil {
			return fmt.Errorf("generate refresh token: %w", err)
		}
		now := s.now()
		candidate := &models.RefreshToken{
			UserID:    u.ID,
			Token:     value,
			CreatedAt: now,
			ExpiresAt: now.Add(models.RefreshTokenTTL),
		}
		if err := store.Save(ctx, candidate); err != nil {
			return err
		}
		token = candidate
		return nil
	})
	if err != nil {
		return nil, err
	}
	token.User = u
	return token, nil
}

// StartSession mints an access token for an authenticated user and pairs it
// with a freshly issued refresh token.
func (s *Service) StartSession(ctx context.Context, u *models.User) (*TokenPair, error) {
	access, err := s.minter.Mint(u)
	if err != nil {
		return nil, fmt.Errorf("mint access token: %w", err)
	}
	refresh, err := s.Issue(ctx, u)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh, AccessTTL: s.minter.TTL()}, nil
}

// Validate returns the Active token for value, or nil. Unknown, expired and
// revoked values are indistinguishable to the caller.
func (s *Service) Validate(ctx context.Context, value string) (*models.RefreshToken, error) {
	if value == "" {
		return nil, nil
	}
	return s.store.FindValidByValue(ctx, value, s.now())
}

// Refresh rotates the token identified by value: the presented token is
// revoked and a successor is issued for the same user in one transaction.
// Every rejection, including losing a concurrent rotation, is
// apperr.ErrAuthentication.
func (s *Service) Refresh(ctx context.Context, value string) (*TokenPair, error) {
	log := logging.FromContext(ctx).With("svc", "refreshtoken.refresh")
	if value == "" {
		return nil, apperr.ErrAuthentication
	}

	var pair *TokenPair
	err := s.store.Atomic(ctx, func(tx Store) error {
		current, err := tx.FindValidByValue(ctx, value, s.now())
		if err != nil {
			return err
		}
		if current == nil {
			return apperr.ErrAuthentication
		}

		owner := current.User
		if owner == nil || !owner.IsActive {
			log.Warn("refresh rejected", "reason", "inactive user", "user_id", current.UserID)
			return apperr.ErrAuthentication
		}

		won, err := tx.Revoke(ctx, current.ID)
		if err != nil {
			return err
		}
		if !won {
			log.Warn("refresh rejected", "reason", "rotation lost to concurrent refresh", "token_id", current.ID)
			return apperr.ErrAuthentication
		}

		access, err := s.minter.Mint(owner)
		if err != nil {
			return fmt.Errorf("mint access token: %w", err)
		}

		next, err := s.issue(ctx, tx, owner)
		if err != nil {
			return err
		}

		pair = &TokenPair{AccessToken: access, RefreshToken: next, AccessTTL: s.minter.TTL()}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info("refresh token rotated", "user_id", pair.RefreshToken.UserID, "token_id", pair.RefreshToken.ID)
	return pair, nil
}

// Revoke moves token to Revoked. Revoking an already revoked token is a no-op.
func (s *Service) Revoke(ctx context.Context, token *models.RefreshToken) error {
	if _, err := s.store.Revoke(ctx, token.ID); err != nil {
		return err
	}
	token.Revoked = true
	return nil
}

// RevokeValue revokes the Active token for value when it belongs to userID.
// It reports whether a token was revoked.
func (s *Service) RevokeValue(ctx context.Context, userID uint, value string) (bool, error) {
	token, err := s.Validate(ctx, value)
	if err != nil || token == nil || token.UserID != userID {
		return false, err
	}
	return s.store.Revoke(ctx, token.ID)
}

func (s *Service) RevokeAllForUser(ctx context.Context, userID uint) (int64, error) {
	n, err := s.store.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logging.FromContext(ctx).Info("refresh tokens revoked for user", "user_id", userID, "count", n)
	}
	return n, nil
}

// CleanupExpired deletes tokens that are expired or revoked. Only terminal
// rows are touched, so it needs no coordination with other operations.
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredOrRevoked(ctx, s.now())
}
