// Package server initializes and runs the authentication server.
// It loads configuration and the signing secret, wires the credential store
// and the token codec, and starts the HTTP server with graceful shutdown.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/avolkov/authgate/internal/cryptox"
	"github.com/avolkov/authgate/internal/logging"
	"github.com/avolkov/authgate/internal/server/auth"
	"github.com/avolkov/authgate/internal/server/config"
	"github.com/avolkov/authgate/internal/server/httpapi"
	"github.com/avolkov/authgate/internal/server/secret"
	"github.com/avolkov/authgate/internal/server/shared/db"
	"github.com/avolkov/authgate/internal/server/users"
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	repoManager db.RepositoryManager
	httpServer  *httpapi.Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	// A missing signing secret is fatal: the process must not begin serving
	// without it.
	provider, err := secret.FromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("secret init error: %w", err)
	}
	signingKey, err := provider.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("secret load error: %w", err)
	}

	rm, err := db.NewPostgresRepositoryManager(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	codec := auth.NewCodec(signingKey)
	hasher := cryptox.NewBcryptHasher(cfg.BcryptCost)
	svc := users.NewService(rm.Users(), hasher, codec, cfg)

	return &App{
		config:      cfg,
		logger:      logger,
		repoManager: rm,
		httpServer:  httpapi.NewServer(cfg, logger, svc, codec),
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting app")

	app.initSignalHandler(cancelFunc)

	if err := app.httpServer.Run(ctx); err != nil {
		app.logger.Error(ctx, "http server stopped", "error", err)
	}

	if err := app.repoManager.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
}
