package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/csrf"
	"github.com/gorilla/mux"

	"microblog/auth"
	"microblog/domain"
	"microblog/errs"
)

func (s *Server) registerAuthRoutes(r *mux.Router) {
	r.HandleFunc("/auth/login/", s.requireAuth(auth.ActionLogin, s.handleLoginForm)).Methods("GET")
	r.HandleFunc("/auth/login/", s.requireAuth(auth.ActionLogin, s.handleLogin)).Methods("POST")
	r.HandleFunc("/auth/signup/", s.requireAuth(auth.ActionSignup, s.handleSignupForm)).Methods("GET")
	r.HandleFunc("/auth/signup/", s.requireAuth(auth.ActionSignup, s.handleSignup)).Methods("POST")
	r.HandleFunc("/auth/logout/", s.requireAuth(auth.ActionLogout, s.handleLogout)).Methods("POST")
}

// loginForm is what the login page shows and what it posts back.
type loginForm struct {
	Username string `json:"username"`
	Next     string `json:"next,omitempty"`
}

type signupForm struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

type formPage struct {
	Form      interface{} `json:"form"`
	CSRFToken string      `json:"csrf_token,omitempty"`
}

// handleLoginForm handles "GET /auth/login/". The next parameter is passed on
// so that the login form can send the user back where they came from.
func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, formPage{
		Form:      loginForm{Next: r.URL.Query().Get("next")},
		CSRFToken: csrf.Token(r),
	})
}

// handleLogin handles "POST /auth/login/". On success it sets the remember cookie
// and redirects to next, or the index.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		errs.ReturnError(w, r, errs.Errorf(errs.EINVALID, "Malformed form."))
		return
	}
	form := loginForm{
		Username: r.PostForm.Get("username"),
		Next:     r.Form.Get("next"),
	}
	user, err := s.us.Authenticate(r.Context(), form.Username, r.PostForm.Get("password"))
	if err != nil {
		errs.ReturnFormError(w, r, err, form)
		return
	}
	if err := s.signIn(r.Context(), w, user); err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	http.Redirect(w, r, auth.SafeNext(form.Next, "/"), http.StatusFound)
}

func (s *Server) handleSignupForm(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, formPage{Form: signupForm{}, CSRFToken: csrf.Token(r)})
}

// handleSignup handles "POST /auth/signup/". The new user is signed in right away.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		errs.ReturnError(w, r, errs.Errorf(errs.EINVALID, "Malformed form."))
		return
	}
	form := signupForm{
		Username: r.PostForm.Get("username"),
		Email:    r.PostForm.Get("email"),
	}
	password := r.PostForm.Get("password")
	if confirm, ok := r.PostForm["password2"]; ok && confirm[0] != password {
		errs.ReturnFormError(w, r, errs.FieldError("password2", "The two password fields didn't match."), form)
		return
	}
	user := &domain.User{
		Username: form.Username,
		Email:    form.Email,
		Password: password,
	}
	if err := s.us.Create(r.Context(), user); err != nil {
		errs.ReturnFormError(w, r, err, form)
		return
	}
	s.setRememberCookie(w, user.Remember)
	http.Redirect(w, r, "/", http.StatusFound)
}

// handleLogout handles "POST /auth/logout/". Rotating the remember token signs
// the user out on every device.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.RememberCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
	})
	user := auth.GetUser(r.Context())
	token, err := s.us.MakeRememberToken()
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	user.Remember = token
	if err := s.us.Update(r.Context(), user); err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"message": "You have been logged out."})
}

// signIn gives user a fresh remember token and sets it as a cookie.
func (s *Server) signIn(ctx context.Context, w http.ResponseWriter, user *domain.User) error {
	if user.Remember == "" {
		token, err := s.us.MakeRememberToken()
		if err != nil {
			return err
		}
		user.Remember = token
		if err := s.us.Update(ctx, user); err != nil {
			return err
		}
	}
	s.setRememberCookie(w, user.Remember)
	return nil
}

func (s *Server) setRememberCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.RememberCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
