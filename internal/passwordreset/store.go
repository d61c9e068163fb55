package passwordreset

import (
	"context"
	"errors"
	"time"

	"github.com/Kyz7/identity/internal/apperr"
	"github.com/Kyz7/identity/internal/models"
	"gorm.io/gorm"
)

// Store persists reset requests together with the one user write a
// confirmation needs, so both can share a transaction.
type Store interface {
	// Save inserts or updates req. A token value that already exists yields
	// an error matching apperr.ErrConflict.
	Save(ctx context.Context, req *models.PasswordResetRequest) error

	// FindValidByValue returns the unused, unexpired request for value, or nil.
	FindValidByValue(ctx context.Context, value string, now time.Time) (*models.PasswordResetRequest, error)

	ExistsByValue(ctx context.Context, value string) (bool, error)

	// MarkUsed flips used on the request with id if it is still unused and
	// reports whether this call did it.
	MarkUsed(ctx context.Context, id uint) (bool, error)

	InvalidateAllForUser(ctx context.Context, userID uint) (int64, error)

	DeleteExpiredOrUsed(ctx context.Context, now time.Time) (int64, error)

	SetUserPassword(ctx context.Context, userID uint, hash string) error

	Atomic(ctx context.Context, fn func(Store) error) error
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Save(ctx context.Context, req *models.PasswordResetRequest) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Omit("User").Save(req).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Conflict("password reset token already issued")
	}
	return apperr.Storage("password_reset_requests.save", err)
}

func (s *GormStore) FindValidByValue(ctx context.Context, value string, now time.Time) (*models.PasswordResetRequest, error) {
	var req models.PasswordResetRequest
	err := s.db.WithContext(ctx).
		Where("token = ? AND used = ? AND expires_at > ?", value, false, now).
		First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage("password_reset_requests.find_valid", err)
	}
	return &req, nil
}

func (s *GormStore) ExistsByValue(ctx context.Context, value string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.PasswordResetRequest{}).Where("token = ?", value).Count(&count).Error; err != nil {
		return false, apperr.Storage("password_reset_requests.exists", err)
	}
	return count > 0, nil
}

func (s *GormStore) MarkUsed(ctx context.Context, id uint) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.PasswordResetRequest{}).
		Where("id = ? AND used = ?", id, false).
		Update("used", true)
	if result.Error != nil {
		return false, apperr.Storage("password_reset_requests.mark_used", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (s *GormStore) InvalidateAllForUser(ctx context.Context, userID uint) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.PasswordResetRequest{}).
		Where("user_id = ? AND used = ?", userID, false).
		Update("used", true)
	if result.Error != nil {
		return 0, apperr.Storage("password_reset_requests.invalidate_all", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *GormStore) DeleteExpiredOrUsed(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at <= ? OR used = ?", now, true).
		Delete(&models.PasswordResetRequest{})
	if result.Error != nil {
		return 0, apperr.Storage("password_reset_requests.sweep", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *GormStore) SetUserPassword(ctx context.Context, userID uint, hash string) error {
	result := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("password", hash)
	if result.Error != nil {
		return apperr.Storage("users.set_password", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("user")
	}
	return nil
}

func (s *GormStore) Atomic(ctx context.Context, fn func(Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}
