package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"microblog/auth"
	"microblog/domain"
)

func (s *Server) registerUserRoutes(r *mux.Router) {
	r.HandleFunc("/{username}/", s.requireAuth(auth.ActionViewProfile, s.handleProfile)).Methods("GET")
}

// handleProfile handles "GET /{username}/": the author's posts, follow counts and
// whether the viewer follows them.
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	username := mux.Vars(r)["username"]
	page, err := s.feeds.Compose(ctx, domain.AuthorPosts(username), r.URL.Query().Get("page"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	author, err := s.us.ByUsername(ctx, username)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	profile := domain.Profile{Author: author, Page: page}
	if profile.FollowerCount, err = s.fs.CountFollowers(ctx, author.ID); err != nil {
		s.handleError(w, r, err)
		return
	}
	if profile.FollowingCount, err = s.fs.CountFollowing(ctx, author.ID); err != nil {
		s.handleError(w, r, err)
		return
	}
	if profile.Following, err = s.fs.IsFollowing(ctx, auth.GetUser(ctx), author); err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, profile)
}
