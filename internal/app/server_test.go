package app

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/markdave123-py/documind/internal/api/handlers"
	"github.com/markdave123-py/documind/internal/config"
)

func testRouter() http.Handler {
	log := zap.NewNop()
	cfg := &config.Config{
		JWTSecret:      "secret",
		RequestTimeout: 5 * time.Second,
		CORSOrigins:    []string{"http://localhost:5173"},
	}
	return NewRouter(cfg, Handlers{
		Chat:      handlers.NewChatHandler(nil, nil, log),
		Documents: handlers.NewDocumentHandler(nil, nil, 1024, log),
		Projects:  handlers.NewProjectHandler(nil, log),
	}, log)
}

func TestHealthzIsPublic(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAPIRequiresToken(t *testing.T) {
	router := testRouter()
	routes := []struct{ method, path string }{
		{http.MethodPost, "/api/chat"},
		{http.MethodPost, "/api/suggest"},
		{http.MethodGet, "/api/documents"},
		{http.MethodDelete, "/api/documents/abc"},
		{http.MethodGet, "/api/documents/abc/messages"},
		{http.MethodGet, "/api/projects"},
		{http.MethodGet, "/api/storage"},
	}
	for _, rt := range routes {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(rt.method, rt.path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", rt.method, rt.path)
	}
}

func TestCORSPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	testRouter().ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}
