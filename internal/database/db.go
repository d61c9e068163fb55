package database

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Kyz7/identity/internal/config"
	"github.com/Kyz7/identity/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormConfig is shared by production and test connections. Duplicate-key
// errors are translated to gorm.ErrDuplicatedKey so stores can detect token
// collisions regardless of driver.
func GormConfig(log *slog.Logger) *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
		Logger:         NewQueryLogger(log),
	}
}

// NewQueryLogger logs SQL through log at warn level. Duplicate-key failures
// are retried by the stores, so they are traced as successful statements.
func NewQueryLogger(log *slog.Logger) logger.Interface {
	return duplicateTolerant{logger.NewSlogLogger(log.With("component", "gorm"), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})}
}

type duplicateTolerant struct {
	logger.Interface
}

func (d duplicateTolerant) LogMode(level logger.LogLevel) logger.Interface {
	return duplicateTolerant{d.Interface.LogMode(level)}
}

func (d duplicateTolerant) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		err = nil
	}
	d.Interface.Trace(ctx, begin, fc, err)
}

func Connect(cfg *config.Config, log *slog.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), GormConfig(log))
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

// Models lists every table owned by this service, in dependency order.
func Models() []interface{} {
	return []interface{}{
		&models.Role{},
		&models.User{},
		&models.RefreshToken{},
		&models.PasswordResetRequest{},
	}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
