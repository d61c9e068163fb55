// Package passwordreset implements self-service password recovery.
//
// A request is Pending until it is consumed by a confirmation, superseded by
// a newer request for the same user, or expires. At most one request per
// user is Pending at any time.
package passwordreset

import (
	"context"
	"fmt"
	"time"

	"github.com/Kyz7/identity/internal/logging"
	"github.com/Kyz7/identity/internal/models"
	"github.com/Kyz7/identity/internal/utils"
)

// UserDirectory resolves users by username or email.
type UserDirectory interface {
	// FindByIdentifier returns nil when nothing matches.
	FindByIdentifier(ctx context.Context, identifier string) (*models.User, error)
	IsActive(u *models.User) bool
}

// Notifier delivers the reset token to the user out of band.
type Notifier interface {
	PasswordResetRequested(ctx context.Context, u *models.User, req *models.PasswordResetRequest) error
}

type Service struct {
	store    Store
	users    UserDirectory
	hasher   utils.PasswordHasher
	notifier Notifier
	gen      utils.TokenGenerator
	now      func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithGenerator(g utils.TokenGenerator) Option {
	return func(s *Service) { s.gen = g }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func NewService(store Store, users UserDirectory, hasher utils.PasswordHasher, opts ...Option) *Service {
	s := &Service{
		store:  store,
		users:  users,
		hasher: hasher,
		gen:    utils.NewRandomHex(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Request creates a reset request for the active user matching identifier,
// superseding any request still pending for that user. It returns nil, nil
// when no active user matches; callers must answer both cases identically.
func (s *Service) Request(ctx context.Context, identifier string) (*models.PasswordResetRequest, error) {
	log := logging.FromContext(ctx).With("svc", "passwordreset.request")

	u, err := s.users.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if u == nil || !s.users.IsActive(u) {
		return nil, nil
	}

	var req *models.PasswordResetRequest
	err = s.store.Atomic(ctx, func(tx Store) error {
		superseded, err := tx.InvalidateAllForUser(ctx, u.ID)
		if err != nil {
			return err
		}
		if superseded > 0 {
			log.Info("pending reset requests invalidated", "user_id", u.ID, "count", superseded)
		}

		return utils.RetryOnConflict(ctx, func(ctx context.Context) error {
			value, err := s.gen.Generate()
			if err != nil {
				return fmt.Errorf("generate reset token: %w", err)
			}
			now := s.now()
			candidate := &models.PasswordResetRequest{
				UserID:    u.ID,
				Token:     value,
				CreatedAt: now,
				ExpiresAt: now.Add(models.PasswordResetTTL),
			}
			if err := tx.Save(ctx, candidate); err != nil {
				return err
			}
			req = candidate
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	req.User = u

	if s.notifier != nil {
		if err := s.notifier.PasswordResetRequested(ctx, u, req); err != nil {
			log.Warn("reset notification failed", "user_id", u.ID, "error", err)
		}
	}
	return req, nil
}

// Validate returns the Pending request for value, or nil.
func (s *Service) Validate(ctx context.Context, value string) (*models.PasswordResetRequest, error) {
	if value == "" {
		return nil, nil
	}
	return s.store.FindValidByValue(ctx, value, s.now())
}

// Confirm replaces the owner's password and consumes the request in one
// transaction. An unknown, expired or already used token yields false with
// a nil error.
func (s *Service) Confirm(ctx context.Context, value, newPassword string) (bool, error) {
	if value == "" {
		return false, nil
	}

	var confirmed bool
	err := s.store.Atomic(ctx, func(tx Store) error {
		req, err := tx.FindValidByValue(ctx, value, s.now())
		if err != nil || req == nil {
			return err
		}

		claimed, err := tx.MarkUsed(ctx, req.ID)
		if err != nil || !claimed {
			return err
		}

		hash, err := s.hasher.Hash(newPassword)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		if err := tx.SetUserPassword(ctx, req.UserID, hash); err != nil {
			return err
		}

		confirmed = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if confirmed {
		logging.FromContext(ctx).Info("password reset confirmed", "svc", "passwordreset.confirm")
	}
	return confirmed, nil
}

// CleanupExpired deletes requests that are expired or used.
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredOrUsed(ctx, s.now())
}
