package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Kyz7/identity/internal/config"
	"github.com/Kyz7/identity/internal/database"
	"github.com/Kyz7/identity/internal/jobs"
	"github.com/Kyz7/identity/internal/logging"
	"github.com/Kyz7/identity/internal/server"
)

type options struct {
	migrateDown bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("identity", flag.ContinueOnError)
	fs.BoolVar(&o.migrateDown, "migrate-down", false, "roll back the latest SQL migration and exit")
	err := fs.Parse(args)
	return o, err
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	cfg := config.Load()
	log := logging.New(cfg.LogLevel)

	os.Exit(run(cfg, log, opts))
}

// closeLogged closes c and logs a failure instead of dropping it.
func closeLogged(log *slog.Logger, name string, c io.Closer) {
	if err := c.Close(); err != nil {
		log.Error("close failed", "component", name, "error", err)
	}
}

func run(cfg *config.Config, log *slog.Logger, opts options) int {
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.IntoContext(ctx, log)

	// ========== DATABASE SETUP ==========
	db, err := database.Connect(cfg, log)
	if err != nil {
		log.Error("database connection failed", "error", err)
		return 1
	}

	if opts.migrateDown {
		if err := database.RollbackMigration(ctx, db); err != nil {
			log.Error("migration rollback failed", "error", err)
			return 1
		}
		v, _ := database.MigrationVersion(ctx, db)
		log.Info("migration rolled back", "version", v)
		return 0
	}

	if err := database.Migrate(db); err != nil {
		log.Error("schema migration failed", "error", err)
		return 1
	}
	if err := database.RunMigrations(ctx, db); err != nil {
		log.Error("sql migrations failed", "error", err)
		return 1
	}
	if v, err := database.MigrationVersion(ctx, db); err == nil {
		log.Info("database migrated", "version", v)
	}

	c := server.Wire(db, cfg, log)
	defer closeLogged(log, "reset notifier", c.Notifier)

	// ========== SEED DEFAULT DATA ==========
	if err := c.Roles.SeedDefaultRoles(ctx); err != nil {
		log.Error("seeding roles failed", "error", err)
		return 1
	}
	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		if _, created, err := c.Users.SeedAdmin(ctx, cfg.AdminUsername, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			log.Error("seeding admin failed", "error", err)
		} else if created {
			log.Info("admin user created", "username", cfg.AdminUsername)
		}
	}

	// ========== BACKGROUND JOBS ==========
	sweeper := jobs.NewSweeper(cfg.SweepInterval, log).
		Add("refresh_tokens", c.Tokens).
		Add("password_reset_requests", c.Resets)
	go sweeper.Run(ctx)

	// ========== START SERVER ==========
	app := server.New(c)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	}()

	log.Info("identity server starting", "addr", cfg.ServerAddr, "env", cfg.AppEnv, "kafka", len(cfg.KafkaBrokers) > 0)
	if err := app.Listen(cfg.ServerAddr); err != nil {
		log.Error("server stopped", "error", err)
		return 1
	}
	log.Info("server stopped")
	return 0
}
