// Package httpapi is the HTTP surface: a thin fiber layer that authenticates
// requests, parses DTOs and maps operation-layer errors to statuses. All
// business rules live below it in the service package.
package httpapi

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/rs/zerolog"

	"github.com/keepsakehq/keepsake/internal/logger"
	"github.com/keepsakehq/keepsake/internal/service"
)

// Pinger reports backend health, satisfied by postgres.Stores. Nil disables
// the dependency check on /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds HTTP server configuration.
type Config struct {
	// Listen is the address to bind, e.g. ":8080".
	Listen string

	// PublicKeyPEM verifies bearer credentials.
	PublicKeyPEM string

	// CORSOrigins lists allowed origins. Empty disables CORS headers.
	CORSOrigins []string

	// RateLimitMax is requests per minute per IP. 0 disables limiting.
	RateLimitMax int
}

// Server wires the fiber app, middleware stack and routes.
type Server struct {
	app *fiber.App
	svc *service.Service
	cfg Config
}

// NewServer builds the HTTP server over the operation layer.
func NewServer(svc *service.Service, pinger Pinger, log zerolog.Logger, cfg Config) *Server {
	app := fiber.New(fiber.Config{
		AppName:      "keepsake",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorHandler: errorHandler,
	})

	s := &Server{
		app: app,
		svc: svc,
		cfg: cfg,
	}

	app.Use(requestid.New())
	app.Use(logger.RequestLogger(log))
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))

	if len(cfg.CORSOrigins) > 0 {
		app.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CORSOrigins,
			AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
			AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		}))
	}

	if cfg.RateLimitMax > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:        cfg.RateLimitMax,
			Expiration: time.Minute,
			KeyGenerator: func(c fiber.Ctx) string {
				return c.IP()
			},
			Next: func(c fiber.Ctx) bool {
				return c.Path() == "/health" || c.Method() == fiber.MethodOptions
			},
		}))
	}

	s.routes(pinger)

	return s
}

func (s *Server) routes(pinger Pinger) {
	s.app.Get("/health", s.handleHealth(pinger))

	v1 := s.app.Group("/api/v1")

	// Unauthenticated public read path.
	v1.Get("/public/memories", s.handleListPublicMemories)

	authed := v1.Group("", s.requireprincipal())

	authed.Get("/roles", s.handleListRoles)
	authed.Post("/roles", s.handleCreateRole)
	authed.Put("/roles/:id", s.handleUpdateRole)
	authed.Post("/roles/suggest", s.handleSuggestRoleMatrix)

	authed.Post("/memories", s.handleSubmitMemory)
	authed.Get("/memories", s.handleListMemories)
	authed.Get("/memories/:id", s.handleGetMemory)
	authed.Patch("/memories/:id", s.handleUpdateMemory)
	authed.Post("/memories/:id/transition", s.handleTransitionMemory)

	authed.Get("/audit", s.handleListAuditLog)
	authed.Post("/impersonate", s.handleImpersonate)

	authed.Post("/orgs", s.handleRegisterOrganization)
	authed.Post("/orgs/:id/active", s.handleSetOrganizationActive)
	authed.Delete("/orgs/:id", s.handleDeleteOrganization)
}

// Listen blocks serving requests until Shutdown is called.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Listen, fiber.ListenConfig{
		DisableStartupMessage: true,
	})
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}
