// Package handlers is the HTTP presentation of the auth and channels services.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"vidhub/internal/domain/apperr"
	"vidhub/internal/domain/models"
	"vidhub/internal/lib/api/response"
	"vidhub/internal/lib/sl"
	"vidhub/internal/services/auth"
)

type Auth interface {
	Register(ctx context.Context, in auth.RegisterInput) (models.PublicUser, error)
	Login(ctx context.Context, username, email, password string) (models.PublicUser, models.TokenPair, error)
	Logout(ctx context.Context, userID string) error
	Refresh(ctx context.Context, refreshToken string) (models.TokenPair, error)
	ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error
	CurrentUser(ctx context.Context, userID string) (models.PublicUser, error)
}

type Channels interface {
	ChannelProfile(ctx context.Context, viewerID, username string) (*models.ChannelProfile, error)
	WatchHistory(ctx context.Context, userID string) ([]models.WatchedVideo, error)
	Subscribe(ctx context.Context, subscriberID, channelID string) error
	Unsubscribe(ctx context.Context, subscriberID, channelID string) error
	RecordView(ctx context.Context, userID, videoID string) error
}

// Cookies configures the session cookies set on login and refresh.
type Cookies struct {
	Insecure   bool
	Domain     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type Handler struct {
	log       *slog.Logger
	auth      Auth
	channels  Channels
	cookies   Cookies
	uploadDir string
}

func New(log *slog.Logger, auth Auth, channels Channels, cookies Cookies, uploadDir string) *Handler {
	return &Handler{
		log:       log,
		auth:      auth,
		channels:  channels,
		cookies:   cookies,
		uploadDir: uploadDir,
	}
}

// Middlewares are the request guards the routes are mounted behind.
type Middlewares struct {
	RequireAuth  gin.HandlerFunc
	OptionalAuth gin.HandlerFunc
	RateLimit    gin.HandlerFunc
}

// Register mounts the user routes under r.
func (h *Handler) Register(r gin.IRouter, mw Middlewares) {
	users := r.Group("/users")

	public := users.Group("", mw.RateLimit)
	public.POST("/register", h.RegisterUser)
	public.POST("/login", h.Login)
	public.POST("/refresh-token", h.RefreshToken)

	users.GET("/c/:username", mw.OptionalAuth, h.ChannelProfile)

	private := users.Group("", mw.RequireAuth)
	private.POST("/logout", h.Logout)
	private.POST("/change-password", h.ChangePassword)
	private.GET("/current-user", h.CurrentUser)
	private.GET("/history", h.WatchHistory)
	private.POST("/history/:videoId", h.RecordView)
	private.POST("/subscriptions/:channelId", h.Subscribe)
	private.DELETE("/subscriptions/:channelId", h.Unsubscribe)
}

// writeError maps a service failure onto a status code. Only messages built
// for callers are echoed back; internal causes are logged and hidden.
func (h *Handler) writeError(c *gin.Context, op string, err error) {
	var status int
	switch {
	case errors.Is(err, apperr.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, apperr.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, apperr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperr.ErrUnauthorized):
		status = http.StatusUnauthorized
	default:
		h.log.Error("request failed",
			slog.String("op", op),
			slog.String("path", c.Request.URL.Path),
			sl.Err(err),
		)
		response.Error(c, http.StatusInternalServerError, "internal server error")
		return
	}

	message := http.StatusText(status)
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		message = appErr.Message()
	}

	response.Error(c, status, message)
}
