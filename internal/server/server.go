package server

import (
	"log/slog"
	"time"

	"github.com/Kyz7/identity/internal/auth"
	"github.com/Kyz7/identity/internal/config"
	"github.com/Kyz7/identity/internal/notify"
	"github.com/Kyz7/identity/internal/passwordreset"
	"github.com/Kyz7/identity/internal/refreshtoken"
	"github.com/Kyz7/identity/internal/role"
	"github.com/Kyz7/identity/internal/user"
	"github.com/Kyz7/identity/internal/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"
)

// Notifier is a passwordreset.Notifier that owns a connection.
type Notifier interface {
	passwordreset.Notifier
	Close() error
}

// Container holds the services shared by the HTTP layer and background jobs.
type Container struct {
	Config   *config.Config
	Log      *slog.Logger
	Minter   *utils.JWTMinter
	Hasher   utils.PasswordHasher
	Notifier Notifier

	Tokens *refreshtoken.Service
	Resets *passwordreset.Service
	Users  *user.Service
	Roles  *role.Service
	Auth   *auth.Service
}

type options struct {
	now      func() time.Time
	hasher   utils.PasswordHasher
	notifier Notifier
}

type Option func(*options)

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithHasher(h utils.PasswordHasher) Option {
	return func(o *options) { o.hasher = h }
}

func WithNotifier(n Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// Wire builds every service on db. Without WithNotifier, reset events go
// to Kafka when brokers are configured and to the log otherwise.
func Wire(db *gorm.DB, cfg *config.Config, log *slog.Logger, opts ...Option) *Container {
	o := options{
		now:    func() time.Time { return time.Now().UTC() },
		hasher: utils.NewBcryptHasher(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.notifier == nil {
		if len(cfg.KafkaBrokers) > 0 {
			o.notifier = notify.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaResetTopic)
		} else {
			o.notifier = notify.NewLogNotifier(log)
		}
	}

	minter := utils.NewJWTMinter(cfg.JWTSecret, cfg.AccessTokenTTL)

	tokens := refreshtoken.NewService(refreshtoken.NewGormStore(db), minter, refreshtoken.WithClock(o.now))
	users := user.NewService(db, o.hasher, tokens)
	resets := passwordreset.NewService(
		passwordreset.NewGormStore(db), users, o.hasher,
		passwordreset.WithClock(o.now),
		passwordreset.WithNotifier(o.notifier),
	)

	return &Container{
		Config:   cfg,
		Log:      log,
		Minter:   minter,
		Hasher:   o.hasher,
		Notifier: o.notifier,
		Tokens:   tokens,
		Resets:   resets,
		Users:    users,
		Roles:    role.NewService(db),
		Auth:     auth.NewService(users, o.hasher, tokens),
	}
}

func New(c *Container) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit:    1 * 1024 * 1024,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	})
	app.Use(recover.New())

	SetupRoutes(app, c)

	return app
}
