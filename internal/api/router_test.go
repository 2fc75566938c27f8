package api

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orrn/taskprinter/internal/api/middleware"
	"github.com/orrn/taskprinter/internal/config"
	"github.com/orrn/taskprinter/internal/core"
	"github.com/orrn/taskprinter/internal/db"
	"github.com/orrn/taskprinter/internal/webhook"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T, authEnabled bool) (*gin.Engine, *middleware.AuthMiddleware) {
	t.Helper()
	conn, err := db.Open(db.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	cfg := config.Default()
	cfg.Auth.Enabled = authEnabled
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	auth, err := middleware.NewAuthMiddleware(db.NewSettingsOperations(conn), cfg.Auth)
	require.NoError(t, err)

	r := NewRouter(Dependencies{
		Queue:      core.NewQueue(core.QueueOptions{Logger: logger}),
		Config:     func() (*config.Config, error) { return cfg, nil },
		Limits:     cfg.Limits,
		Templates:  db.NewTemplateOperations(conn, cfg.Limits),
		Auth:       auth,
		Webhooks:   webhook.NewSender(cfg.Webhooks, logger),
		MCPEnabled: true,
		Logger:     logger,
	})
	return r, auth
}

func get(r http.Handler, path, token string) int {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestPublicRoutes(t *testing.T) {
	r, _ := newTestRouter(t, true)

	assert.Equal(t, http.StatusOK, get(r, "/healthz", ""))
	assert.Equal(t, http.StatusOK, get(r, "/api/v1/healthz", ""))
	assert.Equal(t, http.StatusOK, get(r, "/api/v1/auth/status", ""))
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	r, auth := newTestRouter(t, true)

	for _, path := range []string{"/api/v1/jobs", "/api/v1/templates", "/api/v1/settings", "/api/v1/webhooks"} {
		assert.Equal(t, http.StatusUnauthorized, get(r, path, ""), path)
	}

	token, err := auth.GenerateToken()
	require.NoError(t, err)
	for _, path := range []string{"/api/v1/jobs", "/api/v1/templates", "/api/v1/settings", "/api/v1/webhooks"} {
		assert.Equal(t, http.StatusOK, get(r, path, token), path)
	}
}

func TestAuthDisabled(t *testing.T) {
	r, _ := newTestRouter(t, false)
	assert.Equal(t, http.StatusOK, get(r, "/api/v1/jobs", ""))
}

func postMCP(r http.Handler, token string) *httptest.ResponseRecorder {
	body := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"test","version":"1"}}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMCPEndpoint(t *testing.T) {
	r, auth := newTestRouter(t, true)

	assert.Equal(t, http.StatusUnauthorized, postMCP(r, "").Code)

	token, err := auth.GenerateToken()
	require.NoError(t, err)
	w := postMCP(r, token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"taskprinter"`)
}
