package routes

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gocomet/carpool/internal/api/handlers"
	"github.com/gocomet/carpool/internal/api/middleware"
	"github.com/gocomet/carpool/internal/domain/user"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
)

// CORSConfig lists what browsers may send
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// SetupRoutes configures all API routes
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, tokens middleware.TokenValidator, corsCfg CORSConfig, nrApp *newrelic.Application) {
	// Add New Relic middleware if enabled
	if nrApp != nil {
		r.Use(nrgin.Middleware(nrApp))
	}
	r.Use(middleware.RequestID(), middleware.Logger(h.Logger), newCORS(corsCfg))

	r.GET("/health", h.Health)

	driver := string(user.RoleDriver)
	admin := string(user.RoleAdmin)

	v1 := r.Group("/v1")
	{
		// WebSocket authenticates with ?token= instead of a header
		v1.GET("/ws", h.HandleWebSocket)

		authRoutes := v1.Group("/auth")
		{
			authRoutes.POST("/register", h.Register)
			authRoutes.POST("/login", h.Login)
			authRoutes.GET("/me", middleware.Auth(tokens), h.Me)
		}

		authed := v1.Group("", middleware.Auth(tokens))

		vehicles := authed.Group("/vehicles", middleware.RequireRoles(driver))
		{
			vehicles.POST("", h.CreateVehicle)
			vehicles.GET("/mine", h.ListMyVehicles)
		}

		rides := authed.Group("/rides")
		{
			rides.POST("", middleware.RequireRoles(driver), h.CreateRide)
			rides.GET("", h.SearchRides)
			rides.GET("/mine", middleware.RequireRoles(driver), h.ListMyRides)
			rides.GET("/:id", h.GetRide)
			rides.GET("/:id/bookings", middleware.RequireRoles(driver), h.ListRideBookings)
			rides.POST("/:id/bookings", h.ReserveSeats)
		}

		bookings := authed.Group("/bookings")
		{
			bookings.GET("", h.ListMyBookings)
			bookings.POST("/:id/cancel", h.CancelBooking)
		}

		authed.GET("/admin/metrics", middleware.RequireRoles(admin), h.AdminMetrics)
	}
}

func newCORS(cfg CORSConfig) gin.HandlerFunc {
	c := cors.Config{
		AllowMethods:  cfg.AllowedMethods,
		AllowHeaders:  cfg.AllowedHeaders,
		ExposeHeaders: []string{"X-Request-ID", "Idempotent-Replayed"},
		MaxAge:        12 * time.Hour,
	}
	c.AllowAllOrigins = len(cfg.AllowedOrigins) == 0
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			c.AllowAllOrigins = true
			break
		}
	}
	if !c.AllowAllOrigins {
		c.AllowOrigins = cfg.AllowedOrigins
	}
	if len(c.AllowMethods) == 0 {
		c.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(c.AllowHeaders) == 0 {
		c.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "Idempotency-Key"}
	}
	return cors.New(c)
}
