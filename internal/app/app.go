package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	grpcapp "vidhub/internal/app/grpc"
	httpapp "vidhub/internal/app/http"
	"vidhub/internal/config"
	"vidhub/internal/http/handlers"
	"vidhub/internal/lib/sl"
	"vidhub/internal/media/s3"
	"vidhub/internal/services/auth"
	"vidhub/internal/services/channels"
	"vidhub/internal/services/tokens"
	"vidhub/internal/storage/mongodb"
	"vidhub/internal/storage/sqlite"
)

const shutdownTimeout = 10 * time.Second

// Storage is everything the services need from a backend. Both the MongoDB and
// the SQLite stores implement it.
type Storage interface {
	auth.UserSaver
	auth.UserProvider
	auth.UserUpdater
	tokens.RefreshTokenSwapper
	channels.Aggregator
	channels.SubscriptionStore
	channels.ViewRecorder
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

type App struct {
	HTTPSrv *httpapp.App
	GRPCSrv *grpcapp.App

	logger  *slog.Logger
	storage Storage
}

func New(ctx context.Context, logger *slog.Logger, cfg *config.Config) *App {
	storage, err := openStorage(ctx, cfg)
	if err != nil {
		panic(err)
	}
	// checked once at boot; nothing re-checks it while serving
	if err := storage.Ping(ctx); err != nil {
		panic(fmt.Errorf("storage is unreachable: %w", err))
	}

	media, err := s3.New(ctx, logger, cfg.Media)
	if err != nil {
		panic(err)
	}

	tokenService := tokens.New(logger, storage, storage, tokens.Config{
		AccessSecret:  cfg.Tokens.AccessSecret,
		AccessTTL:     cfg.Tokens.AccessTTL,
		RefreshSecret: cfg.Tokens.RefreshSecret,
		RefreshTTL:    cfg.Tokens.RefreshTTL,
	})
	authService := auth.New(logger, storage, storage, storage, tokenService, media)
	channelService := channels.New(logger, storage, storage, storage, storage)

	handler := handlers.New(logger, authService, channelService, handlers.Cookies{
		Insecure:   cfg.HTTP.InsecureCookies,
		Domain:     cfg.HTTP.CookieDomain,
		AccessTTL:  cfg.Tokens.AccessTTL,
		RefreshTTL: cfg.Tokens.RefreshTTL,
	}, cfg.HTTP.UploadDir)

	return &App{
		HTTPSrv: httpapp.New(logger, handler, tokenService, cfg.HTTP, cfg.RateLimit),
		GRPCSrv: grpcapp.New(logger, cfg.Grpc.Port),
		logger:  logger,
		storage: storage,
	}
}

// Stop shuts the servers down and then closes storage.
func (a *App) Stop() {
	a.HTTPSrv.Stop(shutdownTimeout)
	a.GRPCSrv.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.storage.Close(ctx); err != nil {
		a.logger.Error("failed to close storage", sl.Err(err))
	}
}

func openStorage(ctx context.Context, cfg *config.Config) (Storage, error) {
	switch cfg.Storage.Driver {
	case config.StorageMongo:
		return mongodb.New(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	case config.StorageSQLite:
		return sqlite.New(cfg.Storage.Path)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
