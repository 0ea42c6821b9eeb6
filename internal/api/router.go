package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/glossbook/auth-backend/internal/service"
	"github.com/glossbook/auth-backend/pkg/config"
	"github.com/glossbook/auth-backend/pkg/middleware"
)

// NewRouter assembles the HTTP surface: public ceremony endpoints under
// rate limiting, everything else behind the dual auth gate and the CSRF
// guard.
func NewRouter(services *service.Services, cfg *config.Config, logger *zap.Logger) *gin.Engine {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))

	if len(cfg.CORS.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", cfg.CSRF.HeaderName},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	var limiter *middleware.AuthRateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewAuthRateLimiter(cfg.RateLimit, logger)
	}

	handlers := NewHandlers(services, cfg, limiter, logger)

	router.GET("/health", handlers.Health)

	// Ceremony endpoints are reachable without authentication and are
	// the brute-force surface, so they sit behind the rate limiter.
	public := router.Group("/api/webauthn")
	if limiter != nil {
		public.Use(middleware.AuthRateLimit(limiter))
	}
	{
		public.POST("/register/options", handlers.RegisterOptions)
		public.POST("/register/verify", handlers.RegisterVerify)
		public.POST("/login/options", handlers.LoginOptions)
		public.POST("/login/verify", handlers.LoginVerify)
	}

	protected := router.Group("/api")
	protected.Use(middleware.Auth(services.Session, services.Token, cfg.SessionStore.CookieName, logger))
	protected.Use(middleware.CSRF(&cfg.CSRF, logger))
	{
		webauthn := protected.Group("/webauthn")
		{
			webauthn.POST("/add/options", handlers.AddCredentialOptions)
			webauthn.POST("/add/verify", handlers.AddCredentialVerify)
			webauthn.GET("/credentials", handlers.ListCredentials)
			webauthn.PUT("/credentials/:id", handlers.RenameCredential)
			webauthn.DELETE("/credentials/:id", handlers.DeleteCredential)
		}

		sessions := protected.Group("/sessions")
		{
			sessions.GET("/csrf", handlers.CSRFToken)
			sessions.GET("/current", handlers.CurrentSession)
			sessions.GET("", handlers.ListSessions)
			sessions.GET("/history", handlers.LoginHistory)
			sessions.DELETE("/:id", handlers.RevokeSession)
			sessions.POST("/revoke-all", handlers.RevokeAllSessions)
			sessions.POST("/logout", handlers.Logout)
		}
	}

	return router
}
