package httpapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"vidhub/internal/config"
	"vidhub/internal/http/handlers"
	"vidhub/internal/http/middleware"
	"vidhub/internal/lib/api/response"
	"vidhub/internal/lib/sl"
)

type App struct {
	logger     *slog.Logger
	httpServer *http.Server
	port       int
}

func New(
	logger *slog.Logger,
	handler *handlers.Handler,
	verifier middleware.TokenVerifier,
	cfg config.HTTPConfig,
	limits config.RateLimitConfig,
) *App {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.Logger(logger))
	router.NoRoute(func(c *gin.Context) {
		response.Error(c, http.StatusNotFound, "route not found")
	})

	handler.Register(router.Group("/api/v1"), handlers.Middlewares{
		RequireAuth:  middleware.RequireAuth(logger, verifier),
		OptionalAuth: middleware.OptionalAuth(verifier),
		RateLimit: middleware.RateLimit(logger,
			middleware.NewRateLimiter(limits.Requests, limits.Window, limits.Burst)),
	})

	return &App{
		logger: logger,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		port: cfg.Port,
	}
}

func (a *App) MustRun() {
	if err := a.Run(); err != nil {
		panic(err)
	}
}

func (a *App) Run() error {
	const op = "httpapp.Run"

	log := a.logger.With(
		slog.String("op", op),
		slog.Int("port", a.port),
	)

	listener, err := net.Listen("tcp", a.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("HTTP server is running", slog.String("address", listener.Addr().String()))

	if err := a.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Stop drains in-flight requests for up to timeout.
func (a *App) Stop(timeout time.Duration) {
	const op = "httpapp.Stop"
	log := a.logger.With(slog.String("op", op))
	log.Info("stopping HTTP server", slog.Int("port", a.port))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := a.httpServer.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", sl.Err(err))
	}
}

// Handler exposes the router, for in-process tests.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}
