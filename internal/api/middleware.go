package api

import (
	"fmt"
	"net/http"
)

const noStore = "no-store, no-cache, must-revalidate, private"

// recoverPanics answers a panicking handler with a 500 and closes the
// connection. http.ErrAbortHandler is left for the server to handle.
func (s *MediaShareApp) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			err, ok := rec.(error)
			if !ok {
				err = fmt.Errorf("%v", rec)
			}
			s.log.Printf("panic serving %s %s: %v", r.Method, r.URL.Path, err)

			errResp := NewInternalServerError(err)
			w.Header().Set("Connection", "close")
			s.writeJson(w, errResp.StatusCode, errResp)
		}()

		next.ServeHTTP(w, r)
	})
}

// requireSession rejects requests without a valid session cookie. The
// session's user id is available to next through UserId.
func (s *MediaShareApp) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userId, err := s.sessionUserId(r)
		if err != nil {
			s.log.Printf("rejecting session for %s %s: %v", r.Method, r.URL.Path, err)
			s.writeError(w, NewUnauthorizedError())
			return
		}

		w.Header().Set("Cache-Control", noStore)
		next(w, r.WithContext(WithUserId(r.Context(), userId)))
	}
}

func (s *MediaShareApp) sessionUserId(r *http.Request) (string, error) {
	cookie, err := r.Cookie(tokenCookieKey)
	if err != nil {
		return "", err
	}
	return s.extractUserIdFromToken(cookie.Value)
}
