package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"vidhub/internal/domain/apperr"
	"vidhub/internal/domain/models"
	"vidhub/internal/lib/sl"
	"vidhub/internal/storage"
)

type Auth struct {
	logger       *slog.Logger
	userSaver    UserSaver
	userProvider UserProvider
	userUpdater  UserUpdater
	tokens       TokenIssuer
	media        MediaUploader
	passwordCost int
}

type UserSaver interface {
	SaveUser(ctx context.Context, u models.NewUser) (*models.User, error)
}

type UserProvider interface {
	UserByID(ctx context.Context, userID string) (*models.User, error)
	UserByLogin(ctx context.Context, username, email string) (*models.User, error)
}

type UserUpdater interface {
	SetRefreshToken(ctx context.Context, userID, token string) error
	UpdatePassword(ctx context.Context, userID string, passHash []byte) error
}

type TokenIssuer interface {
	IssuePair(user *models.User) (models.TokenPair, error)
	Rotate(ctx context.Context, refreshToken string) (models.TokenPair, error)
}

// MediaUploader moves a local file to the media host and returns its public URL.
// The local file is gone after the call whatever the outcome.
type MediaUploader interface {
	Upload(ctx context.Context, localPath string) (string, error)
}

// RegisterInput is a registration request. AvatarPath and CoverImagePath point
// at uploaded files in local temporary storage.
type RegisterInput struct {
	FullName       string
	Email          string
	Username       string
	Password       string
	AvatarPath     string
	CoverImagePath string
}

// New returns a new instance of the Auth service.
func New(
	logger *slog.Logger,
	userSaver UserSaver,
	userProvider UserProvider,
	userUpdater UserUpdater,
	tokens TokenIssuer,
	media MediaUploader,
) *Auth {
	return &Auth{
		logger:       logger,
		userSaver:    userSaver,
		userProvider: userProvider,
		userUpdater:  userUpdater,
		tokens:       tokens,
		media:        media,
		passwordCost: bcrypt.DefaultCost,
	}
}

// Register creates a user. Username and email are stored case-folded and must
// both be unused. The avatar is mandatory; a cover image that fails to upload
// is left out.
func (a *Auth) Register(ctx context.Context, in RegisterInput) (models.PublicUser, error) {
	const op = "auth.Register"

	fullName := strings.TrimSpace(in.FullName)
	email := normalize(in.Email)
	username := normalize(in.Username)

	log := a.logger.With(
		slog.String("op", op),
		slog.String("email", email),
		slog.String("username", username),
	)
	log.Info("register request")

	for _, field := range []struct{ name, value string }{
		{"fullName", fullName},
		{"email", email},
		{"username", username},
		{"password", strings.TrimSpace(in.Password)},
	} {
		if field.value == "" {
			return models.PublicUser{}, fmt.Errorf("%s: %w", op, apperr.Validation(field.name+" is required"))
		}
	}

	_, err := a.userProvider.UserByLogin(ctx, username, email)
	switch {
	case err == nil:
		log.Warn("user already exists")
		return models.PublicUser{}, fmt.Errorf("%s: %w", op, apperr.Conflict("user with email or username already exists"))
	case !errors.Is(err, storage.ErrUserNotFound):
		log.Error("failed to check existing user", sl.Err(err))
		return models.PublicUser{}, fmt.Errorf("%s: %w: %w", op, apperr.ErrInternal, err)
	}

	if in.AvatarPath == "" {
		return models.PublicUser{}, fmt.Errorf("%s: %w", op, apperr.Validation("avatar file is required"))
	}

	avatarURL, err := a.media.Upload(ctx, in.AvatarPath)
	if err != nil || avatarURL == "" {
		if err != nil {
			log.Warn("avatar upload failed", sl.Err(err))
		}
		return models.PublicUser{}, fmt.Errorf("%s: %w", op, apperr.Validation("avatar file is required"))
	}

	var coverImageURL string
	if in.CoverImagePath != "" {
		coverImageURL, err = a.media.Upload(ctx, in.CoverImagePath)
		if err != nil {
			log.Warn("cover image upload failed, continuing without it", sl.Err(err))
			coverImageURL = ""
		}
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(in.Password), a.passwordCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return models.PublicUser{}, fmt.Errorf("%s: %w", op, apperr.Validation("password is too long"))
		}
		log.Error("failed to generate password hash", sl.Err(err))
		return models.PublicUser{}, fmt.Errorf("%s: %w: %w", op, apperr.ErrInternal, err)
	}

	user, err := a.userSaver.SaveUser(ctx, models.NewUser{
		Username:      username,
		Email:         email,
		FullName:      fullName,
		AvatarURL:     avatarURL,
		CoverImageURL: coverImageURL,
		PassHash:      passHash,
	})
	if err != nil {
		// lost a race with a concurrent registration
		if errors.Is(err, storage.ErrUserExists) {
			log.Warn("user already exists", sl.Err(err))
			return models.PublicUser{}, fmt.Errorf("%s: %w", op, apperr.Conflict("user with email or username already exists"))
		}
		log.Error("failed to save user", sl.Err(err))
		return models.PublicUser{}, fmt.Errorf("%s: %w: %w", op, apperr.ErrInternal, err)
	}

	log.Info("user registered", slog.String("userID", user.ID))

	return user.Public(), nil
}

// Login authenticates by username or email and opens a session, replacing any
// previous one for the same user.
func (a *Auth) Login(
	ctx context.Context,
	username string,
	email string,
	password string,
) (models.PublicUser, models.TokenPair, error) {
	const op = "auth.Login"

	username = normalize(username)
	email = normalize(email)

	log := a.logger.With(slog.String("op", op))
	log.Info("login request", slog.String("username", username), slog.String("email", email))

	if username == "" && email == "" {
		return models.PublicUser{}, models.TokenPair{}, fmt.Errorf("%s: %w", op, apperr.Validation("username or email is required"))
	}

	user, err := a.userProvider.UserByLogin(ctx, username, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found", sl.Err(err))
			return models.PublicUser{}, models.TokenPair{}, fmt.Errorf("%s: %w", op, apperr.NotFound("user does not exist"))
		}
		log.Error("failed to get user", sl.Err(err))
		return models.PublicUser{}, models.TokenPair{}, fmt.Errorf("%s: %w: %w", op, apperr.ErrInternal, err)
	}

	if err := bcrypt.CompareHashAndPassword(user.PassHash, []byte(password)); err != nil {
		log.Warn("invalid password", sl.Err(err))
		return models.PublicUser{}, models.TokenPair{}, fmt.Errorf("%s: %w", op, apperr.Unauthorized("invalid user credentials"))
	}

	pair, err := a.tokens.IssuePair(user)
	if err != nil {
		log.Error("failed to issue tokens", sl.Err(err))
		return models.PublicUser{}, models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := a.userUpdater.SetRefreshToken(ctx, user.ID, pair.RefreshToken); err != nil {
		log.Error("failed to store refresh token", sl.Err(err))
		return models.PublicUser{}, models.TokenPair{}, fmt.Errorf("%s: %w: %w", op, apperr.ErrInternal, err)
	}

	log.Info("user logged in", slog.String("userID", user.ID))

	return user.Public(), pair, nil
}

// Logout clears the user's refresh token slot. Logging out twice, or logging out
// a user that no longer exists, is not an error.
func (a *Auth) Logout(ctx context.Context, userID string) error {
	const op = "auth.Logout"
	log := a.logger.With(slog.String("op", op), slog.String("userID", userID))

	err := a.userUpdater.SetRefreshToken(ctx, userID, "")
	if err != nil && !errors.Is(err, storage.ErrUserNotFound) {
		log.Error("failed to clear refresh token", sl.Err(err))
		return fmt.Errorf("%s: %w: %w", op, apperr.ErrInternal, err)
	}

	log.Info("user logged out")

	return nil
}

// Refresh rotates the session behind refreshToken. Every failure is Unauthorized;
// the wrapped cause tells why.
func (a *Auth) Refresh(ctx context.Context, refreshToken string) (models.TokenPair, error) {
	const op = "auth.Refresh"
	log := a.logger.With(slog.String("op", op))

	if strings.TrimSpace(refreshToken) == "" {
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, apperr.Unauthorized("unauthorized request"))
	}

	pair, err := a.tokens.Rotate(ctx, refreshToken)
	if err != nil {
		log.Warn("refresh failed", sl.Err(err))
		if errors.Is(err, apperr.ErrUnauthorized) {
			return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
		}
		return models.TokenPair{}, fmt.Errorf("%s: %w: %w", op, apperr.ErrUnauthorized, err)
	}

	return pair, nil
}

// ChangePassword replaces the password hash after checking the old password.
// The live session is left as is.
func (a *Auth) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	const op = "auth.ChangePassword"
	log := a.logger.With(slog.String("op", op), slog.String("userID", userID))

	if strings.TrimSpace(newPassword) == "" {
		return fmt.Errorf("%s: %w", op, apperr.Validation("new password is required"))
	}

	user, err := a.userProvider.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found", sl.Err(err))
			return fmt.Errorf("%s: %w", op, apperr.NotFound("user does not exist"))
		}
		log.Error("failed to get user", sl.Err(err))
		return fmt.Errorf("%s: %w: %w", op, apperr.ErrInternal, err)
	}

	if err := bcrypt.CompareHashAndPassword(user.PassHash, []byte(oldPassword)); err != nil {
		log.Warn("invalid old password")
		return fmt.Errorf("%s: %w", op, apperr.Unauthorized("invalid old password"))
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), a.passwordCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return fmt.Errorf("%s: %w", op, apperr.Validation("password is too long"))
		}
		log.Error("failed to generate password hash", sl.Err(err))
		return fmt.Errorf("%s: %w: %w", op, apperr.ErrInternal, err)
	}

	if err := a.userUpdater.UpdatePassword(ctx, userID, passHash); err != nil {
		log.Error("failed to update password", sl.Err(err))
		return fmt.Errorf("%s: %w: %w", op, apperr.ErrInternal, err)
	}

	log.Info("password changed")

	return nil
}

// CurrentUser returns the public view of the user behind an access token.
func (a *Auth) CurrentUser(ctx context.Context, userID string) (models.PublicUser, error) {
	const op = "auth.CurrentUser"

	user, err := a.userProvider.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return models.PublicUser{}, fmt.Errorf("%s: %w", op, apperr.NotFound("user does not exist"))
		}
		a.logger.Error("failed to get user", slog.String("op", op), sl.Err(err))
		return models.PublicUser{}, fmt.Errorf("%s: %w: %w", op, apperr.ErrInternal, err)
	}

	return user.Public(), nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
