package server

import (
	"time"

	"github.com/Kyz7/identity/internal/auth"
	"github.com/Kyz7/identity/internal/logging"
	"github.com/Kyz7/identity/internal/middleware"
	"github.com/Kyz7/identity/internal/models"
	"github.com/Kyz7/identity/internal/role"
	"github.com/Kyz7/identity/internal/user"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

func SetupRoutes(app *fiber.App, c *Container) {
	app.Use(logging.RequestLogger(c.Log))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS, PATCH",
	}))

	app.Get("/health", func(ctx *fiber.Ctx) error {
		return ctx.JSON(fiber.Map{
			"status":  "ok",
			"message": "Identity API is running",
		})
	})

	api := app.Group("/api")
	jwt := auth.JWTProtected(c.Minter)
	admin := auth.RoleProtected(models.RoleAdmin)

	// ==========================================
	// AUTH ROUTES
	// ==========================================
	authGroup := api.Group("/auth")
	if c.Config.AuthRateLimit > 0 {
		authGroup.Use(limiter.New(limiter.Config{
			Max:        c.Config.AuthRateLimit,
			Expiration: 1 * time.Minute,
			KeyGenerator: func(ctx *fiber.Ctx) string {
				return ctx.IP()
			},
		}))
	}
	authHandler := auth.NewHandler(c.Auth, c.Tokens, c.Resets, c.Config.IsDev())
	authGroup.Post("/login", authHandler.Login)
	authGroup.Post("/register", authHandler.Register)
	authGroup.Post("/refresh", authHandler.Refresh)
	authGroup.Post("/password-reset/request", authHandler.RequestPasswordReset)
	authGroup.Post("/password-reset/confirm", authHandler.ConfirmPasswordReset)
	authGroup.Post("/logout", jwt, authHandler.Logout)
	authGroup.Get("/me", jwt, authHandler.Me)

	// ==========================================
	// USER MANAGEMENT (Admin only)
	// ==========================================
	userGroup := api.Group("/users", jwt, admin, middleware.PermissionProtected(c.Users, middleware.UsersRead))
	user.NewHandler(c.Users).Register(userGroup, middleware.PermissionProtected(c.Users, middleware.UsersWrite))

	// ==========================================
	// ROLE MANAGEMENT (Admin only)
	// ==========================================
	roleGroup := api.Group("/roles", jwt, admin, middleware.PermissionProtected(c.Users, middleware.RolesRead))
	role.NewHandler(c.Roles).Register(roleGroup, middleware.PermissionProtected(c.Users, middleware.RolesWrite))
}
