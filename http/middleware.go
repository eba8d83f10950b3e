package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/csrf"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"microblog/auth"
	"microblog/errs"
)

// statusRecorder remembers the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

// logRequests tags every request with an id and logs it once it has been served.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		entry := s.log.WithFields(logrus.Fields{
			"request_id": id,
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     rec.status,
			"duration":   time.Since(start).String(),
		})
		if user := auth.GetUser(r.Context()); user != nil {
			entry = entry.WithField("user", user.Username)
		}
		entry.Info("request")
	})
}

// recoverPanics turns a panicking handler into a 500 response.
func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				errs.ReturnError(w, r, errors.Errorf("panic: %v", v))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// exposeCSRFToken hands the CSRF token to api clients in a response header.
func exposeCSRFToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-CSRF-Token", csrf.Token(r))
		next.ServeHTTP(w, r)
	})
}

// requireAuth sends anonymous users to the login page if action needs a signed-in user.
func (s *Server) requireAuth(action auth.Action, next http.HandlerFunc) http.HandlerFunc {
	if !auth.RequiresAuth(action) {
		return next
	}
	mw := &auth.RequireUserMw{LoginURL: loginURL}
	return mw.ApplyFn(next)
}

// handleError redirects to the login page when a user is required and
// otherwise writes the error response.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	if errs.ErrorCode(err) == errs.EUNAUTHORIZED {
		http.Redirect(w, r, auth.LoginRedirect(loginURL, r), http.StatusFound)
		return
	}
	errs.ReturnError(w, r, err)
}

// writeJSON encodes v as the response body.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		errs.LogError(r, err)
	}
}

func postURL(username string, id int) string {
	return fmt.Sprintf("/%s/%d/", username, id)
}

func profileURL(username string) string {
	return fmt.Sprintf("/%s/", username)
}
