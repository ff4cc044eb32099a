package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidhub/internal/domain/models"
	"vidhub/internal/http/middleware"
	"vidhub/internal/lib/logger/handlers/slogdiscard"
	"vidhub/internal/services/auth"
	"vidhub/internal/services/channels"
	"vidhub/internal/services/tokens"
	"vidhub/internal/storage/sqlite"
)

type envelope struct {
	StatusCode int             `json:"statusCode"`
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
}

// localMedia stands in for the object store: it consumes the file and hands
// back a fake URL.
type localMedia struct{}

func (localMedia) Upload(_ context.Context, localPath string) (string, error) {
	defer os.Remove(localPath)
	if _, err := os.Stat(localPath); err != nil {
		return "", err
	}
	return "https://media.example.com/" + filepath.Base(localPath), nil
}

type testServer struct {
	t       *testing.T
	router  *gin.Engine
	storage *sqlite.Storage
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := sqlite.New(filepath.Join(t.TempDir(), "handlers.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close(context.Background()) })

	log := slogdiscard.NewDiscardLogger()
	tokenService := tokens.New(log, st, st, tokens.Config{
		AccessSecret:  "access-secret",
		AccessTTL:     time.Minute,
		RefreshSecret: "refresh-secret",
		RefreshTTL:    time.Hour,
	})
	authService := auth.New(log, st, st, st, tokenService, localMedia{})
	channelService := channels.New(log, st, st, st, st)

	h := New(log, authService, channelService, Cookies{
		Insecure:   true,
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	}, t.TempDir())

	r := gin.New()
	h.Register(r.Group("/api/v1"), Middlewares{
		RequireAuth:  middleware.RequireAuth(log, tokenService),
		OptionalAuth: middleware.OptionalAuth(tokenService),
		RateLimit:    middleware.RateLimit(log, middleware.NewRateLimiter(1000, time.Second, 1000)),
	})

	return &testServer{t: t, router: r, storage: st}
}

func (s *testServer) do(req *http.Request) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	require.Equal(s.t, w.Code, env.StatusCode)

	return w, env
}

func (s *testServer) register(fields map[string]string, withAvatar bool) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(s.t, mw.WriteField(k, v))
	}
	if withAvatar {
		part, err := mw.CreateFormFile("avatar", "me.png")
		require.NoError(s.t, err)
		_, err = io.WriteString(part, "png-bytes")
		require.NoError(s.t, err)
	}
	require.NoError(s.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/register", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return s.do(req)
}

func jsonRequest(method, path string, body any, cookies ...*http.Cookie) *http.Request {
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}

	return req
}

func sessionCookies(w *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := map[string]*http.Cookie{}
	for _, c := range w.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

func aliceFields() map[string]string {
	return map[string]string{
		"fullName": "Alice Example",
		"email":    "alice@x.com",
		"username": "Alice",
		"password": "correct horse",
	}
}

func TestRegister(t *testing.T) {
	s := newTestServer(t)

	w, env := s.register(aliceFields(), true)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, env.Success)

	var user models.PublicUser
	require.NoError(t, json.Unmarshal(env.Data, &user))
	assert.Equal(t, "alice", user.Username)
	assert.True(t, strings.HasPrefix(user.AvatarURL, "https://media.example.com/"))
	assert.NotContains(t, string(env.Data), "refreshToken")

	w, env = s.register(aliceFields(), true)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "null", string(env.Data))

	bob := aliceFields()
	bob["username"], bob["email"] = "bob", "bob@x.com"
	w, env = s.register(bob, false)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "avatar file is required", env.Message)

	bob["fullName"] = " "
	w, _ = s.register(bob, true)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionFlow(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.register(aliceFields(), true)
	require.Equal(t, http.StatusCreated, w.Code)

	w, env := s.do(jsonRequest(http.MethodPost, "/api/v1/users/login", map[string]string{
		"username": "alice",
		"password": "correct horse",
	}))
	require.Equal(t, http.StatusOK, w.Code)

	var session sessionResponse
	require.NoError(t, json.Unmarshal(env.Data, &session))
	require.NotNil(t, session.User)
	assert.Equal(t, "alice", session.User.Username)

	cookies := sessionCookies(w)
	require.Contains(t, cookies, middleware.AccessTokenCookie)
	require.Contains(t, cookies, middleware.RefreshTokenCookie)
	assert.True(t, cookies[middleware.RefreshTokenCookie].HttpOnly)
	assert.Equal(t, session.RefreshToken, cookies[middleware.RefreshTokenCookie].Value)

	w, env = s.do(jsonRequest(http.MethodGet, "/api/v1/users/current-user", nil, cookies[middleware.AccessTokenCookie]))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"username":"alice"`)

	w, env = s.do(jsonRequest(http.MethodPost, "/api/v1/users/refresh-token", nil, cookies[middleware.RefreshTokenCookie]))
	require.Equal(t, http.StatusOK, w.Code)
	var rotated sessionResponse
	require.NoError(t, json.Unmarshal(env.Data, &rotated))
	assert.NotEqual(t, session.RefreshToken, rotated.RefreshToken)

	// the superseded token, presented in the body this time
	w, env = s.do(jsonRequest(http.MethodPost, "/api/v1/users/refresh-token", map[string]string{
		"refreshToken": session.RefreshToken,
	}))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid refresh token", env.Message)

	w, _ = s.do(jsonRequest(http.MethodPost, "/api/v1/users/logout", nil, cookies[middleware.AccessTokenCookie]))
	require.Equal(t, http.StatusOK, w.Code)
	cleared := sessionCookies(w)
	require.Contains(t, cleared, middleware.RefreshTokenCookie)
	assert.Empty(t, cleared[middleware.RefreshTokenCookie].Value)
	assert.Negative(t, cleared[middleware.RefreshTokenCookie].MaxAge)

	w, env = s.do(jsonRequest(http.MethodPost, "/api/v1/users/refresh-token", map[string]string{
		"refreshToken": rotated.RefreshToken,
	}))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid refresh token", env.Message)

	w, _ = s.do(jsonRequest(http.MethodPost, "/api/v1/users/refresh-token", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogin_FailCases(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.register(aliceFields(), true)
	require.Equal(t, http.StatusCreated, w.Code)

	tests := []struct {
		name       string
		body       any
		wantStatus int
	}{
		{name: "Missing password", body: map[string]string{"username": "alice"}, wantStatus: http.StatusBadRequest},
		{name: "No identifier", body: map[string]string{"password": "x"}, wantStatus: http.StatusBadRequest},
		{name: "Unknown user", body: map[string]string{"username": "carol", "password": "x"}, wantStatus: http.StatusNotFound},
		{name: "Wrong password", body: map[string]string{"email": "ALICE@x.com", "password": "x"}, wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := s.do(jsonRequest(http.MethodPost, "/api/v1/users/login", tt.body))
			require.Equal(t, tt.wantStatus, w.Code)
			assert.False(t, env.Success)
		})
	}
}

func TestChangePassword(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.register(aliceFields(), true)
	require.Equal(t, http.StatusCreated, w.Code)

	w, _ = s.do(jsonRequest(http.MethodPost, "/api/v1/users/login", map[string]string{
		"username": "alice",
		"password": "correct horse",
	}))
	access := sessionCookies(w)[middleware.AccessTokenCookie]

	w, _ = s.do(jsonRequest(http.MethodPost, "/api/v1/users/change-password", map[string]string{
		"oldPassword": "wrong",
		"newPassword": "battery staple",
	}, access))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.do(jsonRequest(http.MethodPost, "/api/v1/users/change-password", map[string]string{
		"oldPassword": "correct horse",
		"newPassword": "battery staple",
	}, access))
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(jsonRequest(http.MethodPost, "/api/v1/users/change-password", map[string]string{
		"oldPassword": "battery staple",
		"newPassword": "x",
	}))
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestChannelAndHistory(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)

	w, _ := s.register(aliceFields(), true)
	require.Equal(t, http.StatusCreated, w.Code)

	bob := map[string]string{"fullName": "Bob", "email": "bob@x.com", "username": "bob", "password": "pw"}
	w, env := s.register(bob, true)
	require.Equal(t, http.StatusCreated, w.Code)
	var bobUser models.PublicUser
	require.NoError(t, json.Unmarshal(env.Data, &bobUser))

	w, _ = s.do(jsonRequest(http.MethodPost, "/api/v1/users/login", map[string]string{
		"username": "alice",
		"password": "correct horse",
	}))
	access := sessionCookies(w)[middleware.AccessTokenCookie]

	w, _ = s.do(jsonRequest(http.MethodPost, "/api/v1/users/subscriptions/"+bobUser.ID, nil, access))
	require.Equal(t, http.StatusCreated, w.Code)
	w, _ = s.do(jsonRequest(http.MethodPost, "/api/v1/users/subscriptions/"+bobUser.ID, nil, access))
	require.Equal(t, http.StatusConflict, w.Code)
	w, _ = s.do(jsonRequest(http.MethodPost, "/api/v1/users/subscriptions/"+bobUser.ID, nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w, env = s.do(jsonRequest(http.MethodGet, "/api/v1/users/c/BOB", nil, access))
	require.Equal(t, http.StatusOK, w.Code)
	var profile models.ChannelProfile
	require.NoError(t, json.Unmarshal(env.Data, &profile))
	assert.EqualValues(t, 1, profile.SubscriberCount)
	assert.True(t, profile.IsSubscribed)

	w, env = s.do(jsonRequest(http.MethodGet, "/api/v1/users/c/bob", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &profile))
	assert.False(t, profile.IsSubscribed)
	assert.NotContains(t, string(env.Data), "bob@x.com")
	assert.NotContains(t, string(env.Data), "email")

	w, _ = s.do(jsonRequest(http.MethodGet, "/api/v1/users/c/nobody", nil))
	require.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(jsonRequest(http.MethodDelete, "/api/v1/users/subscriptions/"+bobUser.ID, nil, access))
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(jsonRequest(http.MethodDelete, "/api/v1/users/subscriptions/"+bobUser.ID, nil, access))
	require.Equal(t, http.StatusNotFound, w.Code)

	w, env = s.do(jsonRequest(http.MethodGet, "/api/v1/users/history", nil, access))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", string(env.Data))

	video, err := s.storage.SaveVideo(ctx, models.Video{Title: "intro", OwnerID: bobUser.ID, IsPublished: true})
	require.NoError(t, err)

	w, _ = s.do(jsonRequest(http.MethodPost, "/api/v1/users/history/"+video.ID, nil, access))
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(jsonRequest(http.MethodPost, "/api/v1/users/history/missing", nil, access))
	require.Equal(t, http.StatusNotFound, w.Code)

	w, env = s.do(jsonRequest(http.MethodGet, "/api/v1/users/history", nil, access))
	require.Equal(t, http.StatusOK, w.Code)
	var history []models.WatchedVideo
	require.NoError(t, json.Unmarshal(env.Data, &history))
	require.Len(t, history, 1)
	require.NotNil(t, history[0].Owner)
	assert.Equal(t, "bob", history[0].Owner.Username)
}
