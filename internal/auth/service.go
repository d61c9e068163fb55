// Package auth authenticates credentials and exposes the token endpoints.
package auth

import (
	"context"
	"errors"

	"github.com/Kyz7/identity/internal/apperr"
	"github.com/Kyz7/identity/internal/logging"
	"github.com/Kyz7/identity/internal/models"
	"github.com/Kyz7/identity/internal/refreshtoken"
	"github.com/Kyz7/identity/internal/user"
	"github.com/Kyz7/identity/internal/utils"
)

type Users interface {
	FindByIdentifier(ctx context.Context, identifier string) (*models.User, error)
	IsActive(u *models.User) bool
	Get(ctx context.Context, id uint) (*models.User, error)
	Create(ctx context.Context, in user.CreateInput) (*models.User, error)
}

type Sessions interface {
	StartSession(ctx context.Context, u *models.User) (*refreshtoken.TokenPair, error)
}

type Service struct {
	users    Users
	hasher   utils.PasswordHasher
	sessions Sessions
}

func NewService(users Users, hasher utils.PasswordHasher, sessions Sessions) *Service {
	return &Service{users: users, hasher: hasher, sessions: sessions}
}

// Authenticate resolves identifier as a username or email and checks the
// password. Every failure is apperr.ErrAuthentication.
func (s *Service) Authenticate(ctx context.Context, identifier, password string) (*models.User, error) {
	u, err := s.users.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if u == nil || !s.hasher.Verify(password, u.Password) {
		return nil, apperr.ErrAuthentication
	}
	if !s.users.IsActive(u) {
		logging.FromContext(ctx).Warn("login rejected", "reason", "inactive user", "user_id", u.ID)
		return nil, apperr.ErrAuthentication
	}
	return u, nil
}

// Login authenticates and starts a refresh session.
func (s *Service) Login(ctx context.Context, identifier, password string) (*refreshtoken.TokenPair, error) {
	u, err := s.Authenticate(ctx, identifier, password)
	if err != nil {
		return nil, err
	}
	pair, err := s.sessions.StartSession(ctx, u)
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Info("user logged in", "user_id", u.ID)
	return pair, nil
}

// Register creates an active account with the default role.
func (s *Service) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	u, err := s.users.Create(ctx, user.CreateInput{Username: username, Email: email, Password: password})
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			// default role missing: a deployment problem, not a client one
			return nil, apperr.Storage("auth.register", err)
		}
		return nil, err
	}
	return u, nil
}

func (s *Service) Me(ctx context.Context, id uint) (*models.User, error) {
	u, err := s.users.Get(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.ErrAuthentication
	}
	return u, err
}
