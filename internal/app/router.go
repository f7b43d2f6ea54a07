package app

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/ngenohkevin/circulation/internal/handlers"
	"github.com/ngenohkevin/circulation/internal/middleware"
	"github.com/ngenohkevin/circulation/internal/services"
)

// NewAuthService builds staff authentication from the jwt and staff settings
func (a *App) NewAuthService() (*services.AuthService, error) {
	return services.NewAuthService(
		a.Config.JWT.PrivateKey,
		time.Duration(a.Config.JWT.ExpiryHours)*time.Hour,
		a.Config.Staff,
		a.Logger,
		a.redisClient(),
	)
}

func (a *App) redisClient() *redis.Client {
	if a.Redis == nil {
		return nil
	}
	return a.Redis.Client
}

// Router mounts the HTTP API under /api/v1
func (a *App) Router(authService *services.AuthService, version string) *gin.Engine {
	// Initialize Gin router
	r := gin.New()

	// Add global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.SecureJSON())

	// Initialize rate limiter
	rateLimiter := middleware.NewRateLimiter(a.redisClient())

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(authService)
	auditLogger := middleware.NewAuditLogger(a.Logger)

	// Only connected dependencies are reported by /health
	checks := map[string]handlers.Pinger{
		"store": handlers.PingerFunc(a.Store.Ping),
	}
	if a.Redis != nil {
		checks["redis"] = handlers.PingerFunc(a.Redis.Health)
	}

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(version, checks)
	authHandler := handlers.NewAuthHandler(authService)
	catalogHandler := handlers.NewCatalogHandler(a.Catalog)
	patronHandler := handlers.NewPatronHandler(a.Patrons, a.Fines)
	circulationHandler := handlers.NewCirculationHandler(a.Circulation)
	reservationHandler := handlers.NewReservationHandler(a.Reservations)
	auditHandler := handlers.NewAuditHandler(a.Auditor)

	// Public routes (no authentication required)
	public := r.Group("/api/v1")
	{
		public.GET("/ping", healthHandler.Ping)
		public.GET("/health", healthHandler.Health)

		// Authentication routes with rate limiting
		auth := public.Group("/auth")
		auth.Use(rateLimiter.AuthLimit())
		{
			auth.POST("/login", authHandler.Login)
		}
	}

	// Protected routes (authentication required)
	protected := r.Group("/api/v1")
	protected.Use(authMiddleware.RequireAuth())
	protected.Use(authMiddleware.RequireStaff())
	protected.Use(rateLimiter.APILimit())
	protected.Use(auditLogger.Middleware())
	{
		protected.GET("/profile", authHandler.GetProfile)
		protected.POST("/auth/logout", authHandler.Logout)

		branches := protected.Group("/branches")
		{
			branches.GET("", catalogHandler.ListBranches)
			branches.GET("/:id", catalogHandler.GetBranch)

			managed := branches.Group("")
			managed.Use(authMiddleware.RequireAdmin())
			managed.POST("", catalogHandler.CreateBranch)
			managed.POST("/:id/main", catalogHandler.SetMainBranch)
			managed.DELETE("/:id", catalogHandler.DeleteBranch)
		}

		items := protected.Group("/items")
		{
			items.GET("", catalogHandler.ListItems)
			items.GET("/:id", catalogHandler.GetItem)
			items.GET("/:id/copies", catalogHandler.ListItemCopies)
			items.GET("/:id/queue", reservationHandler.GetItemQueue)

			managed := items.Group("")
			managed.Use(authMiddleware.RequireLibrarianOrAdmin())
			managed.POST("", catalogHandler.CreateItem)
			managed.PUT("/:id", catalogHandler.UpdateItem)
		}

		copies := protected.Group("/copies")
		{
			copies.GET("/:id", catalogHandler.GetCopy)

			managed := copies.Group("")
			managed.Use(authMiddleware.RequireLibrarianOrAdmin())
			managed.POST("", catalogHandler.CreateCopy)
			managed.DELETE("/:id", catalogHandler.DeleteCopy)
		}

		patrons := protected.Group("/patrons")
		{
			patrons.POST("", patronHandler.CreatePatron)
			patrons.GET("", patronHandler.ListPatrons)
			patrons.GET("/:id", patronHandler.GetPatron)
			patrons.PUT("/:id", patronHandler.UpdatePatron)
			patrons.GET("/:id/eligibility", patronHandler.GetEligibility)
			patrons.GET("/:id/transactions", patronHandler.GetTransactions)
			patrons.GET("/:id/reservations", reservationHandler.GetPatronReservations)
			patrons.GET("/:id/fines", patronHandler.GetFines)
			patrons.POST("/:id/fines/settle", patronHandler.SettleBalance)

			managed := patrons.Group("")
			managed.Use(authMiddleware.RequireLibrarianOrAdmin())
			managed.POST("/:id/deactivate", patronHandler.DeactivatePatron)
		}

		fines := protected.Group("/fines")
		{
			fines.POST("/:id/pay", patronHandler.PayFine)

			managed := fines.Group("")
			managed.Use(authMiddleware.RequireLibrarianOrAdmin())
			managed.POST("/:id/waive", patronHandler.WaiveFine)
		}

		circulation := protected.Group("/circulation")
		{
			circulation.POST("/checkout", circulationHandler.Checkout)
			circulation.POST("/checkin", circulationHandler.Checkin)
			circulation.POST("/transactions/:id/renew", circulationHandler.Renew)
			circulation.GET("/transactions/:id", circulationHandler.GetTransaction)
			circulation.POST("/copies/:id/reshelve", circulationHandler.Reshelve)
			circulation.GET("/overdue", circulationHandler.ListOverdue)

			managed := circulation.Group("")
			managed.Use(authMiddleware.RequireLibrarianOrAdmin())
			managed.POST("/copies/:id/lost", circulationHandler.MarkLost)
		}

		reservations := protected.Group("/reservations")
		{
			reservations.POST("", reservationHandler.Reserve)
			reservations.GET("/:id", reservationHandler.GetReservation)
			reservations.POST("/:id/fulfill", reservationHandler.FulfillReservation)
			reservations.POST("/:id/cancel", reservationHandler.CancelReservation)

			managed := reservations.Group("")
			managed.Use(authMiddleware.RequireLibrarianOrAdmin())
			managed.POST("/expire", reservationHandler.ExpireReservations)
		}

		admin := protected.Group("/admin")
		admin.Use(authMiddleware.RequireAdmin())
		{
			admin.GET("/audit", auditHandler.RunAudit)
		}
	}

	// Root health check
	r.GET("/health", healthHandler.Health)

	return r
}
