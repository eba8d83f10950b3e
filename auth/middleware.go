package auth

import (
	"net/http"
	"net/url"
	"strings"

	"microblog/domain"
)

// RememberCookie is the name of the cookie holding a user's remember token.
const RememberCookie = "remember_token"

// UserFinder looks up the user owning a remember token.
type UserFinder interface {
	ByRemember(token string) (*domain.User, error)
}

// UserMw identifies the user of a request by its remember token cookie and
// stores them in the request context. Anonymous requests pass through unchanged.
type UserMw struct {
	Users UserFinder
	// SkipPrefixes are path prefixes that never need a user, like static media.
	SkipPrefixes []string
}

func (mw *UserMw) Apply(next http.Handler) http.Handler {
	return mw.ApplyFn(next.ServeHTTP)
}

func (mw *UserMw) ApplyFn(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range mw.SkipPrefixes {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next(w, r)
				return
			}
		}
		cookie, err := r.Cookie(RememberCookie)
		if err != nil || cookie.Value == "" {
			next(w, r)
			return
		}
		user, err := mw.Users.ByRemember(cookie.Value)
		if err != nil {
			next(w, r)
			return
		}
		next(w, r.WithContext(SetUser(r.Context(), user)))
	}
}

// RequireUserMw redirects anonymous requests to the login page, remembering
// where they wanted to go. It assumes UserMw has already run.
type RequireUserMw struct {
	LoginURL string
}

func (mw *RequireUserMw) ApplyFn(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if GetUser(r.Context()) == nil {
			http.Redirect(w, r, LoginRedirect(mw.LoginURL, r), http.StatusFound)
			return
		}
		next(w, r)
	}
}

// LoginRedirect builds the login url carrying the request uri as the next parameter.
func LoginRedirect(loginURL string, r *http.Request) string {
	return loginURL + "?" + url.Values{"next": {r.URL.RequestURI()}}.Encode()
}

// SafeNext returns next if it is a local path, otherwise fallback.
func SafeNext(next, fallback string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return fallback
	}
	return next
}
