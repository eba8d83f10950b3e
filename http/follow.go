package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"microblog/auth"
	"microblog/domain"
)

func (s *Server) registerFollowRoutes(r *mux.Router) {
	r.HandleFunc("/{username}/follow/", s.requireAuth(auth.ActionFollow, s.handleFollow)).Methods("GET")
	r.HandleFunc("/{username}/unfollow/", s.requireAuth(auth.ActionUnfollow, s.handleUnfollow)).Methods("GET")
}

// handleFollow handles "GET /{username}/follow/". A new subscription leads to the
// follow feed, anything else back to the profile.
func (s *Server) handleFollow(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]
	outcome, err := s.fs.Follow(r.Context(), auth.GetUser(r.Context()), username)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	http.Redirect(w, r, followRedirect(outcome, username), http.StatusFound)
}

// handleUnfollow handles "GET /{username}/unfollow/".
func (s *Server) handleUnfollow(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]
	outcome, err := s.fs.Unfollow(r.Context(), auth.GetUser(r.Context()), username)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	http.Redirect(w, r, followRedirect(outcome, username), http.StatusFound)
}

func followRedirect(outcome domain.FollowOutcome, username string) string {
	if outcome.Changed() {
		return "/follow/"
	}
	return profileURL(username)
}
