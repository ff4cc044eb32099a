package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"vidhub/internal/lib/api/response"
	"vidhub/internal/lib/jwt"
	"vidhub/internal/lib/sl"
)

const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"

	claimsKey = "claims"
)

type TokenVerifier interface {
	VerifyAccess(token string) (*jwt.AccessClaims, error)
}

// RequireAuth rejects requests without a valid access token, taken from the
// accessToken cookie or an Authorization: Bearer header.
func RequireAuth(log *slog.Logger, verifier TokenVerifier) gin.HandlerFunc {
	log = log.With(slog.String("component", "middleware/auth"))

	return func(c *gin.Context) {
		token := accessToken(c)
		if token == "" {
			response.Error(c, http.StatusUnauthorized, "unauthorized request")
			return
		}

		claims, err := verifier.VerifyAccess(token)
		if err != nil {
			log.Warn("access token rejected",
				slog.String("path", c.Request.URL.Path),
				slog.String("request_id", RequestID(c)),
				sl.Err(err),
			)
			response.Error(c, http.StatusUnauthorized, "invalid access token")
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// OptionalAuth attaches the caller's claims when a valid access token is
// present and lets anonymous requests through otherwise.
func OptionalAuth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := accessToken(c); token != "" {
			if claims, err := verifier.VerifyAccess(token); err == nil {
				c.Set(claimsKey, claims)
			}
		}
		c.Next()
	}
}

// Claims returns the access token claims set by RequireAuth or OptionalAuth.
func Claims(c *gin.Context) (*jwt.AccessClaims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*jwt.AccessClaims)
	return claims, ok
}

// UserID returns the authenticated user's id, or "" for anonymous requests.
func UserID(c *gin.Context) string {
	if claims, ok := Claims(c); ok {
		return claims.UserID
	}
	return ""
}

func accessToken(c *gin.Context) string {
	if cookie, err := c.Cookie(AccessTokenCookie); err == nil && cookie != "" {
		return cookie
	}

	header := c.GetHeader("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
