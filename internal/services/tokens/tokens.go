// Package tokens issues, verifies and rotates access/refresh token pairs.
//
// The service holds no session state of its own. The only server-side record of
// a session is the refresh token slot on the user, and rotation moves that slot
// forward with a conditional swap so a superseded token can never be redeemed.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"vidhub/internal/domain/apperr"
	"vidhub/internal/domain/models"
	"vidhub/internal/lib/jwt"
	"vidhub/internal/lib/sl"
	"vidhub/internal/storage"
)

type UserProvider interface {
	UserByID(ctx context.Context, userID string) (*models.User, error)
}

type RefreshTokenSwapper interface {
	SwapRefreshToken(ctx context.Context, userID, current, next string) error
}

type Config struct {
	AccessSecret  string
	AccessTTL     time.Duration
	RefreshSecret string
	RefreshTTL    time.Duration
}

type Service struct {
	logger       *slog.Logger
	userProvider UserProvider
	swapper      RefreshTokenSwapper
	cfg          Config
	now          func() time.Time
}

// New returns a new instance of the token Service.
func New(
	logger *slog.Logger,
	userProvider UserProvider,
	swapper RefreshTokenSwapper,
	cfg Config,
) *Service {
	return &Service{
		logger:       logger,
		userProvider: userProvider,
		swapper:      swapper,
		cfg:          cfg,
		now:          time.Now,
	}
}

// IssuePair signs a new access and refresh token for user. Persisting the
// refresh token into the user's slot is the caller's job.
func (s *Service) IssuePair(user *models.User) (models.TokenPair, error) {
	const op = "tokens.IssuePair"

	now := s.now()

	access, err := jwt.NewAccessToken(user, s.cfg.AccessSecret, s.cfg.AccessTTL, now)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("%s: access: %w: %w", op, apperr.ErrInternal, err)
	}

	refresh, err := jwt.NewRefreshToken(user, s.cfg.RefreshSecret, s.cfg.RefreshTTL, now)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("%s: refresh: %w: %w", op, apperr.ErrInternal, err)
	}

	return models.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// VerifyAccess checks an access token and returns its claims.
func (s *Service) VerifyAccess(token string) (*jwt.AccessClaims, error) {
	const op = "tokens.VerifyAccess"

	claims, err := jwt.ParseAccessToken(token, s.cfg.AccessSecret)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, verifyError(err))
	}

	return claims, nil
}

// VerifyRefresh checks a refresh token signature and expiry and returns its claims.
// It does not consult the user's slot; Rotate does.
func (s *Service) VerifyRefresh(token string) (*jwt.RefreshClaims, error) {
	const op = "tokens.VerifyRefresh"

	claims, err := jwt.ParseRefreshToken(token, s.cfg.RefreshSecret)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, verifyError(err))
	}

	return claims, nil
}

// Rotate exchanges a live refresh token for a new pair. The presented token must
// be exactly the one in the user's slot; the slot is replaced by a conditional
// swap so two concurrent rotations of the same token cannot both succeed.
func (s *Service) Rotate(ctx context.Context, refreshToken string) (models.TokenPair, error) {
	const op = "tokens.Rotate"
	log := s.logger.With(slog.String("op", op))

	claims, err := s.VerifyRefresh(refreshToken)
	if err != nil {
		log.Warn("refresh token rejected", sl.Err(err))
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	log = log.With(slog.String("userID", claims.UserID))

	user, err := s.userProvider.UserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("refresh token owner not found")
			return models.TokenPair{}, fmt.Errorf("%s: %w", op, apperr.ErrTokenInvalid)
		}
		log.Error("failed to get user", sl.Err(err))
		return models.TokenPair{}, fmt.Errorf("%s: %w: %w", op, apperr.ErrInternal, err)
	}

	if user.RefreshToken != refreshToken {
		log.Warn("refresh token does not match live session")
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, apperr.ErrTokenReused)
	}

	pair, err := s.IssuePair(user)
	if err != nil {
		log.Error("failed to issue tokens", sl.Err(err))
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.swapper.SwapRefreshToken(ctx, user.ID, refreshToken, pair.RefreshToken); err != nil {
		if errors.Is(err, storage.ErrRefreshTokenMismatch) {
			log.Warn("refresh token superseded concurrently")
			return models.TokenPair{}, fmt.Errorf("%s: %w", op, apperr.ErrTokenReused)
		}
		log.Error("failed to swap refresh token", sl.Err(err))
		return models.TokenPair{}, fmt.Errorf("%s: %w: %w", op, apperr.ErrInternal, err)
	}

	log.Info("tokens rotated")

	return pair, nil
}

func verifyError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return fmt.Errorf("%w: %w", apperr.ErrTokenExpired, err)
	}
	return fmt.Errorf("%w: %w", apperr.ErrTokenInvalid, err)
}
