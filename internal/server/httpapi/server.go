// Package httpapi is the HTTP transport layer: it parses request bodies and
// headers, dispatches to the credential flows, and maps domain errors to
// status codes. It holds no business logic of its own.
package httpapi

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/avolkov/authgate/internal/logging"
	"github.com/avolkov/authgate/internal/server/auth"
	"github.com/avolkov/authgate/internal/server/config"
	"github.com/avolkov/authgate/internal/server/users"
)

const shutdownTimeout = 5 * time.Second

// Server wires the fiber app, the credential flows, and the token codec.
type Server struct {
	config *config.Config
	logger logging.Logger
	users  *users.Service
	app    *fiber.App
}

func NewServer(cfg *config.Config, logger logging.Logger, svc *users.Service, codec *auth.Codec) *Server {
	s := &Server{
		config: cfg,
		logger: logger,
		users:  svc,
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          errorHandler,
		DisableStartupMessage: true,
	})
	app.Use(requestLogger(logger))

	app.Post("/signup", s.handleSignup)
	app.Post("/login", s.handleLogin)
	app.Post("/refresh", s.handleRefresh)
	app.Get("/user", requireRole(codec, auth.RoleUser), s.handleUserGreeting)
	app.Get("/admin", requireRole(codec, auth.RoleAdmin), s.handleAdminGreeting)
	app.Get("/healthz", s.handleHealthz)

	s.app = app
	return s
}

// App exposes the underlying fiber app, primarily for in-process testing.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run serves until ctx is cancelled, then shuts down gracefully, letting
// in-flight requests finish within shutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info(ctx, "starting http server", "addr", s.config.EndpointAddr)
		errCh <- s.app.Listen(s.config.EndpointAddr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info(ctx, "shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.app.ShutdownWithContext(shutdownCtx)
	}
}
