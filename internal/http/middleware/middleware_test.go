package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidhub/internal/domain/models"
	"vidhub/internal/lib/jwt"
	"vidhub/internal/lib/logger/handlers/slogdiscard"
)

const testSecret = "access-secret"

type verifier struct{}

func (verifier) VerifyAccess(token string) (*jwt.AccessClaims, error) {
	return jwt.ParseAccessToken(token, testSecret)
}

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Logger(slogdiscard.NewDiscardLogger()))
	r.GET("/", append(mw, func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c))
	})...)

	return r
}

func signedToken(t *testing.T, ttl time.Duration) string {
	t.Helper()

	token, err := jwt.NewAccessToken(&models.User{ID: "user-1", Username: "alice"}, testSecret, ttl, time.Now())
	require.NoError(t, err)

	return token
}

func TestRequireAuth(t *testing.T) {
	valid := signedToken(t, time.Minute)
	expired := signedToken(t, -time.Minute)

	tests := []struct {
		name       string
		prepare    func(r *http.Request)
		wantStatus int
		wantBody   string
	}{
		{
			name:       "Cookie",
			prepare:    func(r *http.Request) { r.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: valid}) },
			wantStatus: http.StatusOK,
			wantBody:   "user-1",
		},
		{
			name:       "Bearer header",
			prepare:    func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+valid) },
			wantStatus: http.StatusOK,
			wantBody:   "user-1",
		},
		{
			name:       "No token",
			prepare:    func(r *http.Request) {},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "Wrong scheme",
			prepare:    func(r *http.Request) { r.Header.Set("Authorization", "Basic "+valid) },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "Expired token",
			prepare:    func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+expired) },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "Garbage token",
			prepare:    func(r *http.Request) { r.Header.Set("Authorization", "Bearer not-a-jwt") },
			wantStatus: http.StatusUnauthorized,
		},
	}

	r := newRouter(RequireAuth(slogdiscard.NewDiscardLogger(), verifier{}))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.prepare(req)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			require.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, w.Body.String())
			}
			assert.NotEmpty(t, w.Header().Get(requestIDHeader))
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	r := newRouter(OptionalAuth(verifier{}))

	anonymous := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, anonymous)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())

	invalid := httptest.NewRequest(http.MethodGet, "/", nil)
	invalid.Header.Set("Authorization", "Bearer not-a-jwt")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, invalid)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())

	authed := httptest.NewRequest(http.MethodGet, "/", nil)
	authed.Header.Set("Authorization", "Bearer "+signedToken(t, time.Minute))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, authed)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-1", w.Body.String())
}

func TestRateLimiter(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := NewRateLimiter(1, time.Minute, 2)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))

	now = now.Add(time.Minute)
	assert.True(t, l.Allow("a"))
}

func TestRateLimiter_Sweep(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	now := start
	l := NewRateLimiter(1, time.Minute, 1)
	l.now = func() time.Time { return now }

	l.Allow("a")
	now = start.Add(time.Minute)
	l.Allow("b")

	now = start.Add(5*time.Minute + 30*time.Second)
	l.Allow("c")
	assert.Len(t, l.visitors, 2)
	assert.NotContains(t, l.visitors, "a")

	// b is idle past the TTL but the next sweep is not due yet
	now = start.Add(7 * time.Minute)
	l.Allow("c")
	assert.Len(t, l.visitors, 2)
	assert.Contains(t, l.visitors, "b")

	now = start.Add(11 * time.Minute)
	l.Allow("c")
	assert.Len(t, l.visitors, 1)
	assert.Contains(t, l.visitors, "c")
}

func TestRateLimit(t *testing.T) {
	r := newRouter(RateLimit(slogdiscard.NewDiscardLogger(), NewRateLimiter(1, time.Hour, 1)))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
}
