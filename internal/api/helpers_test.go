package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"asset-tracker/internal/app"
	"asset-tracker/internal/config"
	"asset-tracker/internal/db"
	"asset-tracker/internal/logging"
)

type testServer struct {
	app    *app.App
	router *gin.Engine
	redis  *miniredis.Miniredis
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Server.SessionSecret = "test-session-secret"
	cfg.Database.DSN = "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	cfg.Auth.HashIterations = 1000
	cfg.Auth.LoginMaxAttempts = 3
	cfg.Auth.LoginWindow.Duration = time.Minute
	cfg.Session.IdleTimeout.Duration = 30 * time.Minute
	cfg.Metrics.Enabled = true

	gdb, err := db.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(gdb) })
	require.NoError(t, db.Migrate(gdb, cfg.CaseSensitiveUsernames()))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	a, err := app.New(cfg, logging.Discard(), gdb, rdb)
	require.NoError(t, err)
	return &testServer{app: a, router: NewRouter(a), redis: mr}
}

// do sends body as JSON, attaching the session cookie when non-empty.
func (s *testServer) do(method, path, session string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if session != "" {
		req.AddCookie(&http.Cookie{Name: s.app.Config.Session.CookieName, Value: session})
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// login returns the session cookie value set by POST /auth/login.
func (s *testServer) login(t *testing.T, username, password string) string {
	t.Helper()
	w := s.do(http.MethodPost, "/auth/login", "", LoginRequest{Username: username, Password: password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	for _, c := range w.Result().Cookies() {
		if c.Name == s.app.Config.Session.CookieName {
			return c.Value
		}
	}
	t.Fatalf("login did not set the session cookie")
	return ""
}

func (s *testServer) createAdmin(t *testing.T, username, password string) {
	t.Helper()
	_, err := db.CreateAdmin(context.Background(), s.app.Users, s.app.Hasher, s.app.Policy, username, password)
	require.NoError(t, err)
}

func (s *testServer) register(t *testing.T, username, password string) {
	t.Helper()
	w := s.do(http.MethodPost, "/auth/register", "", RegisterRequest{
		Username: username, Password: password, ConfirmPassword: password,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

type errorBody struct {
	Error struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}
