// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"softspot/internal/bootstrap"
	"softspot/internal/config"
	"softspot/internal/featureflags"
	"softspot/internal/localstore"
	"softspot/internal/middleware"
	"softspot/internal/models"
	"softspot/internal/notifications"
	"softspot/internal/outbox"
	"softspot/internal/repository"
	"softspot/internal/search"
	"softspot/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// deviceNamespace prefixes the shared slots of this instance.
const deviceNamespace = "device"

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	runtime        *bootstrap.Runtime
	localDB        *gorm.DB
	remoteDB       *gorm.DB
	redis          *redis.Client
	promMiddleware *fiberprometheus.FiberPrometheus
	auth           *middleware.Authenticator
	featureFlags   *featureflags.Manager
	admins         map[string]bool

	box      *outbox.Store
	worker   *outbox.Worker
	notifier *notifications.Notifier
	hub      *notifications.Hub
	searcher *search.Searcher

	postService         *service.PostService
	commentService      *service.CommentService
	wishlistService     *service.WishlistService
	userService         *service.UserService
	badgeService        *service.BadgeService
	notificationService *service.NotificationService
	tradeService        *service.TradeService

	mu         sync.Mutex
	shutdownFn context.CancelFunc
	workers    sync.WaitGroup
}

// NewServer connects every store named by cfg and wires the services.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{})
	if err != nil {
		return nil, err
	}
	return NewServerWithDeps(cfg, rt)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes the stores and
// optionally performs explicit seeding.
func NewServerWithDeps(cfg *config.Config, rt *bootstrap.Runtime) (*Server, error) {
	auth, err := middleware.NewAuthenticator(cfg)
	if err != nil {
		return nil, fmt.Errorf("token verification setup failed: %w", err)
	}
	slots := rt.Slots
	if slots == nil {
		slots = localstore.NewGormBackend(rt.LocalDB)
	}

	s := &Server{
		config:         cfg,
		runtime:        rt,
		localDB:        rt.LocalDB,
		remoteDB:       rt.RemoteDB,
		redis:          rt.Redis,
		promMiddleware: middleware.InitMetrics("softspot-api"),
		auth:           auth,
		featureFlags:   featureflags.NewManager(cfg.FeatureFlags),
		admins:         cfg.Admins(),
		box:            outbox.NewStore(rt.LocalDB),
		notifier:       notifications.NewNotifier(rt.Redis),
		hub:            notifications.NewHub(),
	}

	// Without Redis the hub on this instance is the only delivery path.
	var publisher service.Publisher = s.notifier
	if rt.Redis == nil {
		publisher = hubPublisher{hub: s.hub}
	}

	local := service.NewLocal(s.box, localstore.New(slots, deviceNamespace))
	s.notificationService = service.NewNotificationService(repository.NewNotificationRepository(rt.Remote), publisher, s.featureFlags)
	s.postService = service.NewPostService(repository.NewPostRepository(rt.Remote), local, s.featureFlags, s.notificationService)
	s.commentService = service.NewCommentService(repository.NewCommentRepository(rt.Remote), s.postService, local, s.featureFlags, s.notificationService)
	s.wishlistService = service.NewWishlistService(repository.NewWishlistRepository(rt.Remote), local, s.featureFlags)
	s.userService = service.NewUserService(repository.NewUserRepository(rt.Remote), local, cfg.UserSyncAttempts, cfg.UserSyncDelay)
	s.tradeService = service.NewTradeService(repository.NewTradeRepository(rt.Remote), s.postService, s.notificationService)
	if s.badgeService, err = service.NewBadgeService(repository.NewBadgeRepository(rt.Remote), s.notificationService, nil); err != nil {
		return nil, err
	}

	// Sinks run on the worker without a caller token, so they read and
	// write through the sync client.
	syncNotes := service.NewNotificationService(repository.NewNotificationRepository(rt.Sync), publisher, s.featureFlags)
	syncBadges, err := service.NewBadgeService(repository.NewBadgeRepository(rt.Sync), syncNotes, nil)
	if err != nil {
		return nil, err
	}
	sinks := []outbox.Sink{repository.CacheInvalidator{}, service.NewBadgeSink(syncBadges, s.featureFlags)}
	if rt.Elastic != nil {
		s.searcher = search.NewSearcher(rt.Elastic)
		sinks = append(sinks, search.NewSink(rt.Elastic))
	}
	s.worker = outbox.NewWorker(s.box, rt.Sync, outbox.Config{
		PollInterval: cfg.OutboxPollInterval,
		BatchSize:    cfg.OutboxBatchSize,
		MaxAttempts:  cfg.OutboxMaxAttempts,
		BaseBackoff:  cfg.OutboxBaseBackoff,
		MaxBackoff:   cfg.OutboxMaxBackoff,
		DLQInterval:  cfg.OutboxDLQInterval,
	}, sinks...)

	return s, nil
}

// hubPublisher delivers live notifications straight to local sockets.
type hubPublisher struct {
	hub *notifications.Hub
}

func (p hubPublisher) PublishUser(_ context.Context, userID, payload string) error {
	p.hub.Broadcast(userID, payload)
	return nil
}

// Start launches the outbox worker, the DLQ retrier and the notification
// wiring. They stop on Shutdown or when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdownFn != nil {
		return fmt.Errorf("server already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.shutdownFn = cancel

	if err := s.hub.StartWiring(ctx, s.notifier); err != nil {
		cancel()
		s.shutdownFn = nil
		return fmt.Errorf("notification wiring failed: %w", err)
	}

	s.workers.Add(2)
	go func() {
		defer s.workers.Done()
		s.worker.Run(ctx)
	}()
	go func() {
		defer s.workers.Done()
		s.worker.RunDLQ(ctx)
	}()
	return nil
}

// Shutdown stops the background workers and closes every socket.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.shutdownFn
	s.shutdownFn = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := s.hub.Shutdown(ctx); err != nil {
		return fmt.Errorf("%s shutdown: %w", s.hub.Name(), err)
	}
	if s.runtime != nil {
		s.runtime.Close()
	}
	return nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	// Context Middleware to propagate Request ID and User ID
	app.Use(middleware.ContextMiddleware())

	if s.config.TracingEnabled {
		app.Use(middleware.TracingMiddleware())
	}

	// Prometheus Metrics
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Security headers
	app.Use(helmet.New())

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS middleware should run before middlewares that can short-circuit (e.g. limiter)
	// so browser clients still receive CORS headers on error responses.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		// Never rate-limit preflight requests; they should be handled by CORS.
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "SoftSpot Backend Metrics Dashboard",
	}))

	required := s.auth.Required()
	optional := s.auth.Optional()

	// Session routes
	session := api.Group("/session", required)
	session.Post("/", middleware.RateLimit(s.redis, 10, 5*time.Minute, "sign_in"), s.SignIn)
	session.Get("/", s.GetSession)
	session.Delete("/", s.SignOut)

	// Post routes. Reads are public; liked state needs a session.
	posts := api.Group("/posts")
	posts.Get("/", optional, s.GetPosts)
	posts.Post("/", required, middleware.RateLimit(s.redis, 10, 5*time.Minute, "create_post"), s.CreatePost)
	// Define specific /:id/:resource routes BEFORE generic /:id route
	posts.Post("/:id/like", required, s.ToggleLike)
	posts.Post("/:id/sold", required, s.MarkSold)
	posts.Get("/:id/comments", optional, s.GetComments)
	posts.Post("/:id/comments", required, middleware.RateLimit(
		s.redis, 20, time.Minute, "create_comment"), s.CreateComment)
	posts.Get("/:id", optional, s.GetPost)
	posts.Put("/:id", required, s.UpdatePost)
	posts.Delete("/:id", required, s.DeletePost)

	comments := api.Group("/comments", required)
	comments.Post("/:id/like", s.ToggleCommentLike)
	comments.Delete("/:id", s.DeleteComment)

	// Marketplace routes
	market := api.Group("/marketplace")
	market.Get("/listings", optional, s.GetListings)
	market.Post("/listings", required, middleware.RateLimit(s.redis, 10, 5*time.Minute, "create_listing"), s.CreateListing)
	market.Get("/search", middleware.RateLimit(s.redis, 30, time.Minute, "search"), s.SearchListings)
	market.Post("/listings/:id/bids", required, middleware.RateLimit(s.redis, 10, time.Minute, "bid"), s.PlaceBid)

	// Wishlist routes
	wishlist := api.Group("/wishlist", required)
	wishlist.Get("/", s.GetWishlist)
	wishlist.Post("/", s.AddWishlistItem)
	wishlist.Patch("/:id", s.UpdateWishlistItem)
	wishlist.Delete("/:id", s.RemoveWishlistItem)

	// Profile routes
	api.Get("/profile", required, s.GetProfile)
	api.Put("/profile", required, s.UpdateProfile)
	api.Post("/onboarding", required, s.CompleteOnboarding)

	// Badge routes
	api.Get("/badges", optional, s.GetBadges)
	api.Post("/badges/evaluate", required, middleware.RateLimit(s.redis, 5, time.Minute, "badges"), s.EvaluateBadges)

	// Notification routes
	notes := api.Group("/notifications", required)
	notes.Get("/", s.GetNotifications)
	notes.Post("/read-all", s.MarkAllNotificationsRead)
	notes.Post("/:id/read", s.MarkNotificationRead)

	// Websocket endpoint, token passed as a query parameter
	api.Get("/ws/notifications", s.auth.WebSocketRequired(), s.WebsocketHandler())

	// Trade routes
	trades := api.Group("/trades", required)
	trades.Get("/", s.GetTrades)
	trades.Post("/", middleware.RateLimit(s.redis, 10, 5*time.Minute, "trade"), s.CreateTrade)
	trades.Post("/:id/respond", s.RespondTrade)
	trades.Post("/:id/cancel", s.CancelTrade)

	// Admin routes
	admin := api.Group("/admin", required, s.AdminRequired())
	admin.Get("/outbox", s.GetOutbox)
	admin.Get("/dlq", s.GetDLQ)
	admin.Post("/dlq/:id/retry", s.RetryDLQ)
	admin.Get("/feature-flags", s.GetFeatureFlags)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

func pingDB(ctx context.Context, db *gorm.DB) string {
	if db == nil {
		return "unavailable"
	}
	sqlDB, err := db.DB()
	if err != nil {
		return "unhealthy"
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return "unhealthy"
	}
	return "healthy"
}

// ReadinessCheck handles readiness probe requests. The local store must be
// reachable; the remote store and Redis only degrade the instance.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	localStatus := pingDB(ctx, s.localDB)

	remoteStatus := "rest"
	if s.config.RemoteMode == config.RemoteModeSQL {
		remoteStatus = pingDB(ctx, s.remoteDB)
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		redisStatus = "unavailable"
	}

	var backlog outbox.Stats
	if st, err := s.box.Stats(ctx); err == nil {
		backlog = st
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	switch {
	case localStatus != "healthy":
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	case remoteStatus == "unhealthy" || redisStatus == "unhealthy":
		overallStatus = "degraded"
	}

	return c.Status(status).JSON(fiber.Map{
		"message": "SoftSpot",
		"version": "1.0.0",
		"status":  overallStatus,
		"checks": fiber.Map{
			"local":  localStatus,
			"remote": remoteStatus,
			"redis":  redisStatus,
		},
		"outbox": backlog,
		"time":   time.Now(),
	})
}

// AdminRequired returns middleware that rejects non-admin users with 403.
// Must be placed after the authenticator so that userID is available in locals.
func (s *Server) AdminRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, _ := c.Locals("userID").(string)
		if userID == "" {
			return models.RespondWithAppError(c, models.NewAuthRequiredError())
		}
		if !s.admins[userID] {
			return models.RespondWithAppError(c, models.NewUnauthorizedError("Admin access required"))
		}
		return c.Next()
	}
}
