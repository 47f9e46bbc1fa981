package api

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/noticeboardhq/noticeboard/internal/app"
	"github.com/noticeboardhq/noticeboard/internal/app/maintenance"
	iauth "github.com/noticeboardhq/noticeboard/internal/auth"
	"github.com/noticeboardhq/noticeboard/internal/cache"
	"github.com/noticeboardhq/noticeboard/internal/handlers"
	"github.com/noticeboardhq/noticeboard/internal/middleware"
	"github.com/noticeboardhq/noticeboard/internal/services"
)

// Services bundles the constructed domain services handed to the router. The
// dispatch entry point owns their lifecycle; the router only wires routes.
type Services struct {
	Users    *services.UserService
	Posts    *services.PostService
	Tickets  *services.TicketService
	Products *services.ProductService
	Stats    *services.StatsService
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(db *gorm.DB, jwt *iauth.JWTService, cfg *app.Config, svcs Services, store cache.Store, inv *cache.Invalidator, job *maintenance.Job) (*gin.Engine, error) {
	if db == nil {
		return nil, errors.New("database handle must be provided")
	}
	if jwt == nil {
		return nil, errors.New("jwt service must be provided")
	}
	if cfg == nil {
		return nil, errors.New("config must be provided")
	}
	if store == nil {
		return nil, errors.New("cache store must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	r.GET("/health", handlers.Health(db))

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	authHandler := handlers.NewAuthHandler(svcs.Users, jwt)
	userHandler := handlers.NewUserHandler(svcs.Users)
	postHandler := handlers.NewPostHandler(svcs.Posts)
	ticketHandler := handlers.NewTicketHandler(svcs.Tickets)
	productHandler := handlers.NewProductHandler(svcs.Products)
	statsHandler := handlers.NewStatsHandler(svcs.Stats)
	cacheHandler := handlers.NewCacheHandler(store, inv, job)

	// Public routes
	r.POST("/api/auth/login", authHandler.Login)
	r.POST("/api/auth/register", authHandler.Register)
	r.GET("/api/stats", statsHandler.Community)
	r.GET("/api/posts", postHandler.List)
	r.GET("/api/posts/categories", postHandler.CategoryCounts)
	r.GET("/api/posts/:id", postHandler.Get)
	r.GET("/api/products", productHandler.Catalog)
	r.GET("/api/products/:id", productHandler.Get)
	r.GET("/api/users/:id", userHandler.Get)

	// Authenticated routes
	requireAuth := middleware.Auth(jwt)
	api := r.Group("/api", requireAuth)
	{
		api.GET("/auth/me", authHandler.Me)

		api.POST("/posts", postHandler.Create)
		api.PATCH("/posts/:id", postHandler.Update)
		api.DELETE("/posts/:id", postHandler.Delete)
		api.POST("/posts/:id/comments", postHandler.AddComment)

		api.GET("/tickets", ticketHandler.List)
		api.GET("/tickets/:id", ticketHandler.Get)
		api.POST("/tickets", ticketHandler.Create)
		api.POST("/tickets/:id/replies", ticketHandler.Reply)
		api.POST("/tickets/:id/close", ticketHandler.Close)

		api.POST("/orders", productHandler.PlaceOrder)
	}

	// Admin surface: admin role plus anti-forgery token for mutations.
	admin := r.Group("/api/admin", requireAuth, middleware.RequireAdmin())
	if cfg.Server.CSRF.Enabled {
		admin.Use(middleware.CSRF())
	}
	{
		admin.GET("/cache/stats", cacheHandler.Stats)
		admin.POST("/cache", cacheHandler.Action)

		admin.POST("/products", productHandler.Create)
		admin.PATCH("/products/:id", productHandler.Update)
		admin.DELETE("/products/:id", productHandler.Delete)
	}

	return r, nil
}
