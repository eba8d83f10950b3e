package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"microblog/auth"
	"microblog/cache"
	"microblog/domain"
	"microblog/errs"
)

func (s *Server) registerFeedRoutes(r *mux.Router) {
	r.HandleFunc("/", s.requireAuth(auth.ActionViewFeed, s.handleIndex)).Methods("GET")
	r.HandleFunc("/group/{slug}/", s.requireAuth(auth.ActionViewGroup, s.handleGroup)).Methods("GET")
	r.HandleFunc("/follow/", s.requireAuth(auth.ActionViewFollowFeed, s.handleFollowIndex)).Methods("GET")
}

// handleIndex handles "GET /", the global feed. Pages are served from the cache
// while fresh, the body doesn't depend on the viewer. Entries are keyed by the
// feed generation and the page number, never by the raw query string.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	raw := r.URL.Query().Get("page")
	gen, err := s.cache.Generation(ctx, feedCachePrefix)
	cacheable := err == nil
	if err != nil {
		s.log.WithError(err).Warn("feed cache generation read failed")
	}
	if cacheable {
		body, ok, err := s.cache.Get(ctx, feedPageKey(gen, domain.ParsePageNumber(raw)))
		if err != nil {
			s.log.WithError(err).Warn("feed cache read failed")
		}
		if ok {
			writeCached(w, body)
			return
		}
	}

	page, err := s.feeds.Compose(ctx, domain.AllPosts(), raw)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	body, err := json.Marshal(page)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	body = append(body, '\n')
	if cacheable {
		// Stored under the generation read before Compose: if a post was created
		// meanwhile, this entry is never read.
		if err := s.cache.Set(ctx, feedPageKey(gen, page.Number), body); err != nil {
			s.log.WithError(err).Warn("feed cache write failed")
		}
	}
	writeCached(w, body)
}

func feedPageKey(gen uint64, number int) string {
	return feedCachePrefix + strconv.FormatUint(gen, 10) + ":" + strconv.Itoa(number)
}

func writeCached(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// invalidateFeed drops the cached global feed, so the next request sees the change.
func (s *Server) invalidateFeed(r *http.Request) {
	if err := InvalidateFeed(r.Context(), s.cache); err != nil {
		s.log.WithError(err).Warn("feed cache invalidation failed")
	}
}

// InvalidateFeed drops the global feed pages cached in store. Commands that change
// what the feed shows outside of a request call it too.
func InvalidateFeed(ctx context.Context, store cache.Store) error {
	return store.Invalidate(ctx, feedCachePrefix)
}

// handleGroup handles "GET /group/{slug}/".
func (s *Server) handleGroup(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]
	group, err := s.gs.BySlug(r.Context(), slug)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	page, err := s.feeds.Compose(r.Context(), domain.GroupPosts(slug), r.URL.Query().Get("page"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, domain.GroupFeed{Group: group, Page: page})
}

// handleFollowIndex handles "GET /follow/", the posts of everyone the user follows.
func (s *Server) handleFollowIndex(w http.ResponseWriter, r *http.Request) {
	viewer := auth.GetUser(r.Context())
	page, err := s.feeds.Compose(r.Context(), domain.FollowedPosts(viewer), r.URL.Query().Get("page"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, page)
}
