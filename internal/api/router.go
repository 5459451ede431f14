package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	iauth "github.com/atriumhq/atrium/internal/auth"
	"github.com/atriumhq/atrium/internal/handlers"
	"github.com/atriumhq/atrium/internal/middleware"
)

// Options bundles the services the router wires into handlers.
type Options struct {
	DB       *gorm.DB
	Flow     *iauth.FlowService
	Store    *iauth.CredentialStore
	Backup   *iauth.BackupCodeService
	Sessions *iauth.SessionService

	// AuthRateLimit caps requests per client IP and route on the credential
	// endpoints. Zero disables limiting.
	AuthRateLimit  int
	AuthRateWindow time.Duration
}

// NewRouter builds the Gin engine, wires middleware, and registers routes.
func NewRouter(opts Options) (*gin.Engine, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if opts.Flow == nil || opts.Store == nil || opts.Backup == nil || opts.Sessions == nil {
		return nil, fmt.Errorf("auth services must be provided")
	}

	r := gin.New()

	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())

	r.NoRoute(middleware.NotFoundHandler)

	r.GET("/health", handlers.Health(opts.DB))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authHandler := handlers.NewAuthHandler(opts.Flow, opts.Store, opts.Backup)
	sessionHandler := handlers.NewSessionHandler(opts.Flow, opts.Sessions)
	adminHandler := handlers.NewAdminHandler(opts.Flow, opts.Store)

	// Credential endpoints sit behind a per-IP limiter to blunt online
	// guessing of passwords, codes, and tokens.
	limited := middleware.RateLimit(opts.AuthRateLimit, opts.AuthRateWindow)

	auth := r.Group("/api/auth")
	auth.Use(limited)
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/verify-email", authHandler.VerifyEmail)
		auth.POST("/resend-verification", authHandler.ResendVerification)
		auth.POST("/login", authHandler.Login)
		auth.POST("/2fa/setup/complete", authHandler.CompleteSetup)
		auth.POST("/2fa/verify", authHandler.Verify2FA)
	}

	requireAuth := middleware.Auth(opts.Sessions)

	api := r.Group("/api")
	api.Use(requireAuth)

	api.GET("/auth/me", authHandler.Me)
	api.POST("/auth/logout", authHandler.Logout)
	api.GET("/auth/backup-codes/remaining", authHandler.RemainingBackupCodes)
	api.POST("/auth/backup-codes/regenerate", authHandler.RegenerateBackupCodes)

	sessions := api.Group("/sessions")
	{
		sessions.GET("/me", sessionHandler.ListMine)
		sessions.DELETE("/:id", sessionHandler.Revoke)
		sessions.POST("/revoke-all", sessionHandler.RevokeAll)
	}

	admin := api.Group("/admin")
	{
		admin.POST("/users/:id/deactivate", adminHandler.DeactivateUser)
	}

	return r, nil
}
