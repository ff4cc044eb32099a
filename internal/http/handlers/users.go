package handlers

import (
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"vidhub/internal/domain/models"
	"vidhub/internal/http/middleware"
	"vidhub/internal/lib/api/response"
	"vidhub/internal/lib/sl"
	"vidhub/internal/services/auth"
)

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
}

type sessionResponse struct {
	User         *models.PublicUser `json:"user,omitempty"`
	AccessToken  string             `json:"accessToken"`
	RefreshToken string             `json:"refreshToken"`
}

func (h *Handler) RegisterUser(c *gin.Context) {
	const op = "handlers.RegisterUser"

	avatarPath, err := h.saveUpload(c, "avatar")
	if err != nil {
		h.log.Error("failed to store avatar", slog.String("op", op), sl.Err(err))
		response.Error(c, http.StatusInternalServerError, "internal server error")
		return
	}
	defer removeUpload(avatarPath)

	coverPath, err := h.saveUpload(c, "coverImage")
	if err != nil {
		h.log.Error("failed to store cover image", slog.String("op", op), sl.Err(err))
		response.Error(c, http.StatusInternalServerError, "internal server error")
		return
	}
	defer removeUpload(coverPath)

	user, err := h.auth.Register(c.Request.Context(), auth.RegisterInput{
		FullName:       c.PostForm("fullName"),
		Email:          c.PostForm("email"),
		Username:       c.PostForm("username"),
		Password:       c.PostForm("password"),
		AvatarPath:     avatarPath,
		CoverImagePath: coverPath,
	})
	if err != nil {
		h.writeError(c, op, err)
		return
	}

	response.OK(c, http.StatusCreated, "user registered successfully", user)
}

func (h *Handler) Login(c *gin.Context) {
	const op = "handlers.Login"

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request body")
		return
	}

	user, pair, err := h.auth.Login(c.Request.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		h.writeError(c, op, err)
		return
	}

	h.setSessionCookies(c, pair)
	response.OK(c, http.StatusOK, "user logged in successfully", sessionResponse{
		User:         &user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

func (h *Handler) Logout(c *gin.Context) {
	const op = "handlers.Logout"

	if err := h.auth.Logout(c.Request.Context(), middleware.UserID(c)); err != nil {
		h.writeError(c, op, err)
		return
	}

	h.clearSessionCookies(c)
	response.OK(c, http.StatusOK, "user logged out", struct{}{})
}

// RefreshToken reads the refresh token from its cookie, falling back to the
// JSON body. Every failure gets the same answer.
func (h *Handler) RefreshToken(c *gin.Context) {
	token, err := c.Cookie(middleware.RefreshTokenCookie)
	if err != nil || token == "" {
		var req refreshRequest
		_ = c.ShouldBindJSON(&req)
		token = req.RefreshToken
	}

	pair, err := h.auth.Refresh(c.Request.Context(), token)
	if err != nil {
		response.Error(c, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	h.setSessionCookies(c, pair)
	response.OK(c, http.StatusOK, "access token refreshed", sessionResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

func (h *Handler) ChangePassword(c *gin.Context) {
	const op = "handlers.ChangePassword"

	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "oldPassword and newPassword are required")
		return
	}

	if err := h.auth.ChangePassword(c.Request.Context(), middleware.UserID(c), req.OldPassword, req.NewPassword); err != nil {
		h.writeError(c, op, err)
		return
	}

	response.OK(c, http.StatusOK, "password changed successfully", struct{}{})
}

func (h *Handler) CurrentUser(c *gin.Context) {
	const op = "handlers.CurrentUser"

	user, err := h.auth.CurrentUser(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.writeError(c, op, err)
		return
	}

	response.OK(c, http.StatusOK, "current user fetched successfully", user)
}

// saveUpload stores the multipart file under field in the upload directory and
// returns its path, or "" when the field is absent.
func (h *Handler) saveUpload(c *gin.Context, field string) (string, error) {
	file, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return "", nil
		}
		return "", err
	}

	return h.storeFile(c, file)
}

func (h *Handler) storeFile(c *gin.Context, file *multipart.FileHeader) (string, error) {
	dir := h.uploadDir
	if dir == "" {
		dir = os.TempDir()
	}

	path := filepath.Join(dir, uuid.NewString()+filepath.Ext(file.Filename))
	if err := c.SaveUploadedFile(file, path); err != nil {
		return "", err
	}

	return path, nil
}

// removeUpload drops a temp upload the media store did not consume.
func removeUpload(path string) {
	if path != "" {
		_ = os.Remove(path)
	}
}
