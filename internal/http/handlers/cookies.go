package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"vidhub/internal/domain/models"
	"vidhub/internal/http/middleware"
)

func (h *Handler) setSessionCookies(c *gin.Context, pair models.TokenPair) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AccessTokenCookie, pair.AccessToken,
		int(h.cookies.AccessTTL.Seconds()), "/", h.cookies.Domain, !h.cookies.Insecure, true)
	c.SetCookie(middleware.RefreshTokenCookie, pair.RefreshToken,
		int(h.cookies.RefreshTTL.Seconds()), "/", h.cookies.Domain, !h.cookies.Insecure, true)
}

func (h *Handler) clearSessionCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AccessTokenCookie, "", -1, "/", h.cookies.Domain, !h.cookies.Insecure, true)
	c.SetCookie(middleware.RefreshTokenCookie, "", -1, "/", h.cookies.Domain, !h.cookies.Insecure, true)
}
