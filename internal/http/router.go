package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MunnymanCommunications/gemdesign/internal/config"
	"github.com/MunnymanCommunications/gemdesign/internal/models"
	"github.com/MunnymanCommunications/gemdesign/internal/service"
)

// RateLimiter is a simple in-memory sliding-window limiter.
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow checks whether a request under the given key is within the limit.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.window)

	var valid []time.Time
	for _, t := range rl.requests[key] {
		if t.After(windowStart) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= rl.limit {
		rl.requests[key] = valid
		return false
	}

	rl.requests[key] = append(valid, now)
	return true
}

// RateLimitMiddleware applies a limiter keyed by user ID, falling back to
// client IP for unauthenticated requests.
func RateLimitMiddleware(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetString("userID")
		if key == "" {
			key = c.ClientIP()
		}

		if !rl.Allow(key) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded, please try again later",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

type Server struct {
	router  *gin.Engine
	srv     *http.Server
	handler *Handler
	cfg     *config.Config
	db      *pgxpool.Pool
	gate    AccessChecker
}

// Per-user API limit: 60 requests a minute is plenty for a client that
// polls entitlement once a minute.
var userRateLimiter = NewRateLimiter(60, time.Minute)

// Explicit refresh hits the billing collaborator; keep it tight.
var refreshRateLimiter = NewRateLimiter(10, time.Minute)

func NewServer(cfg *config.Config, db *pgxpool.Pool, entitlements *service.EntitlementService, admin *service.AdminService) *Server {
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	handler := NewHandler(entitlements, admin)

	s := &Server{
		router:  router,
		handler: handler,
		cfg:     cfg,
		db:      db,
		gate:    entitlements,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "entitlement-service",
		})
	})

	// Public API - no authentication required
	public := s.router.Group("/api/v1/public")
	{
		public.GET("/plans", s.handler.GetPlans)
	}

	// User API - requires JWT authentication
	user := s.router.Group("/api/v1")
	user.Use(JWTAuthMiddleware(s.cfg.JWT.SecretKey))
	user.Use(RateLimitMiddleware(userRateLimiter))
	{
		user.GET("/my/entitlement", s.handler.GetMyEntitlement)
		user.POST("/my/entitlement/refresh", RateLimitMiddleware(refreshRateLimiter), s.handler.RefreshMyEntitlement)
		user.GET("/my/notices", s.handler.GetMyNotices)
		user.GET("/my/usage", RequireActiveEntitlement(s.gate), s.handler.GetMyUsage)

		// Pro features: satellite security assessment reports
		pro := user.Group("/pro")
		pro.Use(RequireTier(s.gate, models.TierPro))
		{
			pro.GET("/security-reports", s.handler.ListMySecurityReports)
		}

		// Admin console - requires the admin role
		admin := user.Group("/admin")
		admin.Use(RequireRole(s.gate, models.RoleAdmin))
		{
			admin.PUT("/users/:user_id/grant", s.handler.SetGrant)
			admin.DELETE("/users/:user_id/grant", s.handler.RemoveGrant)
			admin.GET("/grants", s.handler.ListGrants)
			admin.GET("/settings", s.handler.GetSettings)
			admin.PUT("/settings", s.handler.UpdateSettings)
			admin.GET("/settings/processor-status", s.handler.GetProcessorStatus)
		}
	}

	// Internal API - called by billing-service and user-portal
	internal := s.router.Group("/api/internal")
	internal.Use(InternalAuthMiddleware(s.cfg.InternalSecret))
	{
		internal.POST("/subscriptions", s.handler.UpsertSubscription)
		internal.GET("/users/:user_id/entitlement", s.handler.GetUserEntitlement)
		internal.GET("/users/:user_id/access", s.handler.CheckUserAccess)

		// DB browser backing the admin console data views
		dbAdminHandler := NewDBAdminHandler(s.db, s.cfg.Database.Schema)
		dbAdmin := internal.Group("/admin/db")
		{
			dbAdmin.GET("/tables", dbAdminHandler.ListTables)
			dbAdmin.GET("/tables/:table/rows", dbAdminHandler.QueryRows)
		}
	}
}

// Run starts the HTTP server, blocking until it exits.
func (s *Server) Run(addr string) error {
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
