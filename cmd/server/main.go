package main

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"

	"github.com/ftcn86/dynamic-wallet-view-sub000/internal/config"
	"github.com/ftcn86/dynamic-wallet-view-sub000/internal/handlers"
	appMiddleware "github.com/ftcn86/dynamic-wallet-view-sub000/internal/middleware"
	"github.com/ftcn86/dynamic-wallet-view-sub000/internal/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}
	db, err := services.InitDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := services.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	// Redis backs the rate limiter and the dashboard cache. Without it the
	// limiter falls back to per-process counters.
	var cache *services.RedisCache
	var limiter services.RateLimiter
	if cfg.RedisURL != "" {
		cache, err = services.NewRedisCache(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer cache.Close()
		limiter = services.NewRedisRateLimiter(cache)
	} else {
		log.Println("Warning: REDIS_URL not set, using in-process rate limiting")
		limiter = services.NewMemoryRateLimiter()
	}

	platform := services.NewPiClient(cfg)
	sessions := services.NewSessionService(services.NewGormSessionStore(db), cfg.SessionTTL)
	notifier := services.NewNotificationService(db)
	payments := services.NewPaymentService(
		services.NewGormOrderStore(db),
		services.NewGormLedgerStore(db),
		platform,
		notifier,
		cfg.BlockExplorerURL,
		cfg.StrictMemoCheck,
	)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = appMiddleware.CustomErrorHandler

	// Middleware
	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(db, platform, sessions, cfg.SessionTTL, cfg.CookieSecure)
	paymentHandler := handlers.NewPaymentHandler(payments)
	walletHandler := handlers.NewWalletHandler(db, cache)

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// Public routes
	e.POST("/api/auth/signin", authHandler.SignIn,
		appMiddleware.RateLimit(limiter, "auth_signin", cfg.RateLimits["auth_signin"]))
	e.POST("/api/auth/logout", authHandler.Logout)

	// Platform-relayed recovery carries no session cookie; limited by IP.
	e.POST("/api/payments/incomplete", paymentHandler.Incomplete,
		appMiddleware.RateLimit(limiter, "payment_incomplete", cfg.RateLimits["payment_incomplete"]))

	// Protected routes
	protected := e.Group("/api")
	protected.Use(appMiddleware.RequireSession(sessions))

	protected.POST("/payments/approve", paymentHandler.Approve,
		appMiddleware.RateLimit(limiter, "payment_approve", cfg.RateLimits["payment_approve"]))
	protected.POST("/payments/complete", paymentHandler.Complete,
		appMiddleware.RateLimit(limiter, "payment_complete", cfg.RateLimits["payment_complete"]))
	protected.POST("/payments/cancel", paymentHandler.Cancel,
		appMiddleware.RateLimit(limiter, "payment_cancel", cfg.RateLimits["payment_cancel"]))

	protected.GET("/me", authHandler.Me)
	protected.GET("/transactions", walletHandler.Transactions)
	protected.GET("/dashboard", walletHandler.Dashboard)

	log.Printf("Server starting on port %s", cfg.Port)
	e.Logger.Fatal(e.Start(":" + cfg.Port))
}
