package api

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/npezzotti/go-mediashare/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoverPanics(t *testing.T) {
	buf := &bytes.Buffer{}
	app := &MediaShareApp{
		log: testutil.TestLogger(t),
	}

	app.log.SetOutput(buf)

	// handler that panics
	panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(errors.New("test panic"))
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	handler := app.recoverPanics(panicHandler)
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "close", rr.Header().Get("Connection"))
	assert.Contains(t, buf.String(), "panic serving GET /: test panic")
}

func TestRecoverPanics_NoPanic(t *testing.T) {
	app := &MediaShareApp{}

	called := false
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	handler := app.recoverPanics(okHandler)
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
	assert.True(t, called, "expected handler to be called")
}

func TestRecoverPanics_AbortHandler(t *testing.T) {
	app := &MediaShareApp{log: testutil.TestLogger(t)}

	handler := app.recoverPanics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestRequireSession(t *testing.T) {
	app := newTestApp(t, nil)

	buf := &bytes.Buffer{}
	app.log.SetOutput(buf)

	var gotUserId string
	tokenHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userId, ok := UserId(r.Context())
		if !ok {
			return
		}
		gotUserId = userId
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	signed := func(method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
		token, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return token
	}

	t.Run("valid token", func(t *testing.T) {
		token, err := app.createJwtForSession("user-1", defaultJwtExpiration)
		require.NoError(t, err, "failed to create jwt token")

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(createJwtCookie(token, defaultJwtExpiration))
		app.requireSession(tokenHandler).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "ok", rr.Body.String())
		assert.Equal(t, "user-1", gotUserId)
		assert.Equal(t, "no-store, no-cache, must-revalidate, private", rr.Header().Get("Cache-Control"))
	})

	t.Run("missing token", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		app.requireSession(tokenHandler).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	tcases := []struct {
		name  string
		token string
	}{
		{
			name:  "malformed token",
			token: "invalid-token",
		},
		{
			name: "expired token",
			token: signed(jwt.SigningMethodHS256, app.signingKey, jwt.MapClaims{
				userIdClaim: "user-1",
				"exp":       jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			}),
		},
		{
			name: "token without expiry",
			token: signed(jwt.SigningMethodHS256, app.signingKey, jwt.MapClaims{
				userIdClaim: "user-1",
			}),
		},
		{
			name: "wrong signing key",
			token: signed(jwt.SigningMethodHS256, []byte("other-key"), jwt.MapClaims{
				userIdClaim: "user-1",
				"exp":       jwt.NewNumericDate(time.Now().Add(time.Hour)),
			}),
		},
		{
			name: "unexpected algorithm",
			token: signed(jwt.SigningMethodHS512, app.signingKey, jwt.MapClaims{
				userIdClaim: "user-1",
				"exp":       jwt.NewNumericDate(time.Now().Add(time.Hour)),
			}),
		},
		{
			name: "missing user id",
			token: signed(jwt.SigningMethodHS256, app.signingKey, jwt.MapClaims{
				"exp": jwt.NewNumericDate(time.Now().Add(time.Hour)),
			}),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			buf.Reset()
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.AddCookie(&http.Cookie{
				Name:  tokenCookieKey,
				Value: tc.token,
			})
			app.requireSession(tokenHandler).ServeHTTP(rr, req)

			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.Contains(t, buf.String(), "failed to extract user id from token")
		})
	}
}
