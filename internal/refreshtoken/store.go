package refreshtoken

import (
	"context"
	"errors"
	"time"

	"github.com/Kyz7/identity/internal/apperr"
	"github.com/Kyz7/identity/internal/models"
	"gorm.io/gorm"
)

// Store persists refresh-token records.
type Store interface {
	// Save inserts or updates token. A token value that already exists
	// yields an error matching apperr.ErrConflict.
	Save(ctx context.Context, token *models.RefreshToken) error

	// FindValidByValue returns the unrevoked, unexpired record for value with
	// its owner (and the owner's roles) loaded, or nil when there is none.
	FindValidByValue(ctx context.Context, value string, now time.Time) (*models.RefreshToken, error)

	ExistsByValue(ctx context.Context, value string) (bool, error)

	// Revoke flips revoked on the record with id if it is not revoked yet and
	// reports whether this call did it.
	Revoke(ctx context.Context, id uint) (bool, error)

	RevokeAllForUser(ctx context.Context, userID uint) (int64, error)

	DeleteExpiredOrRevoked(ctx context.Context, now time.Time) (int64, error)

	// Atomic runs fn against a Store bound to one transaction.
	Atomic(ctx context.Context, fn func(Store) error) error
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Save(ctx context.Context, token *models.RefreshToken) error {
	// The nested transaction becomes a savepoint inside Atomic, so a
	// duplicate key does not abort the surrounding transaction.
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Omit("User").Save(token).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Conflict("refresh token value already issued")
	}
	return apperr.Storage("refresh_tokens.save", err)
}

func (s *GormStore) FindValidByValue(ctx context.Context, value string, now time.Time) (*models.RefreshToken, error) {
	var token models.RefreshToken
	err := s.db.WithContext(ctx).
		Preload("User.Roles").
		Where("token = ? AND revoked = ? AND expires_at > ?", value, false, now).
		First(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage("refresh_tokens.find_valid", err)
	}
	return &token, nil
}

func (s *GormStore) ExistsByValue(ctx context.Context, value string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.RefreshToken{}).Where("token = ?", value).Count(&count).Error; err != nil {
		return false, apperr.Storage("refresh_tokens.exists", err)
	}
	return count > 0, nil
}

func (s *GormStore) Revoke(ctx context.Context, id uint) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("id = ? AND revoked = ?", id, false).
		Update("revoked", true)
	if result.Error != nil {
		return false, apperr.Storage("refresh_tokens.revoke", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (s *GormStore) RevokeAllForUser(ctx context.Context, userID uint) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked = ?", userID, false).
		Update("revoked", true)
	if result.Error != nil {
		return 0, apperr.Storage("refresh_tokens.revoke_all", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *GormStore) DeleteExpiredOrRevoked(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at <= ? OR revoked = ?", now, true).
		Delete(&models.RefreshToken{})
	if result.Error != nil {
		return 0, apperr.Storage("refresh_tokens.sweep", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *GormStore) Atomic(ctx context.Context, fn func(Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}
