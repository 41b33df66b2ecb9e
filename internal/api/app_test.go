package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/npezzotti/go-mediashare/internal/config"
	"github.com/npezzotti/go-mediashare/internal/database"
	"github.com/npezzotti/go-mediashare/internal/engagement"
	"github.com/npezzotti/go-mediashare/internal/feed"
	"github.com/npezzotti/go-mediashare/internal/kv"
	"github.com/npezzotti/go-mediashare/internal/media"
	"github.com/npezzotti/go-mediashare/internal/messagelog"
	"github.com/npezzotti/go-mediashare/internal/objectstore"
	"github.com/npezzotti/go-mediashare/internal/stats"
	"github.com/npezzotti/go-mediashare/internal/testutil"
	"github.com/npezzotti/go-mediashare/internal/verification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPublicURL = "http://files.example.test"

func testConfig() *config.Config {
	return &config.Config{
		ServerAddr:     "localhost:8000",
		SigningKey:     []byte("test-signing-key"),
		AllowedOrigins: []string{"http://localhost:3000"},
		Dev:            true,
	}
}

// newTestServices wires the real services over an in-memory store and a
// temporary directory.
func newTestServices(t *testing.T, repo database.Repository) Services {
	logger := testutil.TestLogger(t)
	sp := stats.NewPermissiveMock()
	store := kv.NewMemoryStore()

	disk, err := objectstore.NewDiskStore(t.TempDir(), testPublicURL)
	require.NoError(t, err)

	hub := feed.NewHub(logger, sp)
	go hub.Run()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		hub.Shutdown(ctx)
	})

	ledger := engagement.NewLedger(store, logger, sp, engagement.Options{})

	return Services{
		DB:       repo,
		Hub:      hub,
		Messages: messagelog.NewLog(store, logger, sp, hub),
		Ledger:   ledger,
		Catalog:  media.NewCatalog(store, disk, ledger, logger, sp),
		Verifier: verification.NewCache(store, verification.DefaultTTL, logger),
		Objects:  disk,
		Files:    disk.Handler(),
	}
}

func newTestApp(t *testing.T, repo database.Repository) *MediaShareApp {
	if repo == nil {
		repo = &database.MockRepository{}
	}
	return NewMediaShareApp(http.NewServeMux(), testutil.TestLogger(t), newTestServices(t, repo), testConfig())
}

// do sends a request through the full handler chain. Non-reader bodies are
// encoded as JSON.
func do(t *testing.T, app *MediaShareApp, method, target string, body any) *httptest.ResponseRecorder {
	var r io.Reader
	switch v := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(v)
	case io.Reader:
		r = v
	default:
		b, err := json.Marshal(v)
		require.NoError(t, err)
		r = bytes.NewBuffer(b)
	}

	req := httptest.NewRequest(method, target, r)
	if _, ok := body.(io.Reader); !ok && body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	app.Handler().ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	var v T
	require.NoErrorf(t, json.NewDecoder(rr.Body).Decode(&v), "failed to decode %q", rr.Body.String())
	return v
}

// findCookie returns the named cookie set on the response, or nil.
func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func TestNewMediaShareApp(t *testing.T) {
	logger := testutil.TestLogger(t)
	db := &database.MockRepository{}
	cfg := testConfig()
	svc := newTestServices(t, db)

	app := NewMediaShareApp(http.NewServeMux(), logger, svc, cfg)

	assert.NotNil(t, app, "expected app to be initialized")
	assert.NotNil(t, app.srv, "expected http server to be initialized")
	assert.Equal(t, logger, app.log, "expected logger to be set")
	assert.Equal(t, db, app.db, "expected db to be set")
	assert.Equal(t, svc.Hub, app.hub, "expected feed hub to be set")
	assert.Equal(t, svc.Messages, app.messages, "expected message log to be set")
	assert.Equal(t, svc.Catalog, app.catalog, "expected catalog to be set")
	assert.Equal(t, cfg.SigningKey, app.signingKey, "expected signing key to be set")
	assert.Equal(t, cfg.ServerAddr, app.srv.Addr, "expected server address to match config")
	assert.True(t, app.dev)
}

func TestRoutes(t *testing.T) {
	app := newTestApp(t, nil)

	tcases := []struct {
		method string
		target string
		status int
	}{
		{http.MethodGet, "/chat/public", http.StatusOK},
		{http.MethodGet, "/chat/private", http.StatusBadRequest},
		{http.MethodGet, "/media", http.StatusOK},
		{http.MethodGet, "/media/comments", http.StatusBadRequest},
		{http.MethodGet, "/media/likes", http.StatusBadRequest},
		{http.MethodDelete, "/media", http.StatusBadRequest},
		{http.MethodGet, "/auth/session", http.StatusUnauthorized},
		{http.MethodGet, "/auth/logout", http.StatusUnauthorized},
		{http.MethodGet, "/files/missing.png", http.StatusNotFound},
		{http.MethodPatch, "/media", http.StatusMethodNotAllowed},
		{http.MethodGet, "/unknown", http.StatusNotFound},
	}

	for _, tc := range tcases {
		t.Run(tc.method+" "+tc.target, func(t *testing.T) {
			rr := do(t, app, tc.method, tc.target, nil)
			assert.Equal(t, tc.status, rr.Code, rr.Body.String())
		})
	}
}

func TestCORS(t *testing.T) {
	app := newTestApp(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/chat/public", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	app.Handler().ServeHTTP(rr, req)

	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
}
