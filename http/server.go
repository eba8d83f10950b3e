package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/csrf"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"microblog/auth"
	"microblog/cache"
	"microblog/crud"
	"microblog/domain"
	"microblog/errs"
)

const (
	loginURL = "/auth/login/"
	// feedCachePrefix namespaces cached pages of the global feed.
	feedCachePrefix = "feed:"
)

// Server provides the http functionality of this app, namely routing,
// request handling, and middleware. It identifies the user of each request
// and checks their permissions before handing things over to the crud services.
type Server struct {
	server  *http.Server
	router  *mux.Router
	handler http.Handler
	log     *logrus.Entry

	cache       cache.Store
	csrfKey     []byte
	secure      bool
	mediaRoot   string
	mediaPrefix string

	us    domain.UserService
	gs    domain.GroupService
	ps    domain.PostService
	cs    domain.CommentService
	fs    domain.FollowService
	feeds domain.FeedService
}

// An Option configures optional parts of the Server.
type Option func(*Server)

// WithLogger sets the logger for requests and errors.
func WithLogger(log *logrus.Entry) Option {
	return func(s *Server) {
		s.log = log
	}
}

// WithCache enables caching of the global feed.
func WithCache(store cache.Store) Option {
	return func(s *Server) {
		s.cache = store
	}
}

// WithCSRF protects every unsafe request with a CSRF token signed by key.
// secure restricts the CSRF and remember cookies to https.
func WithCSRF(key []byte, secure bool) Option {
	return func(s *Server) {
		s.csrfKey = key
		s.secure = secure
	}
}

// WithMedia serves the files of a local asset store found at root under prefix.
func WithMedia(root, prefix string) Option {
	return func(s *Server) {
		s.mediaRoot = root
		s.mediaPrefix = "/" + strings.Trim(prefix, "/") + "/"
	}
}

// NewServer returns a new instance of the server, registers all routes and gives
// their handlers access to the crud services passed in.
func NewServer(services *crud.Services, opts ...Option) *Server {
	s := &Server{
		router: mux.NewRouter().StrictSlash(true),
		log:    logrus.NewEntry(logrus.StandardLogger()),
		cache:  cache.Nop{},
		us:     services.User,
		gs:     services.Group,
		ps:     services.Post,
		cs:     services.Comment,
		fs:     services.Follow,
		feeds:  services.Feed,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		errs.ReturnError(w, r, errs.Errorf(errs.ENOTFOUND, "Page not found."))
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		w.Write([]byte(`{"error":"Method not allowed."}` + "\n"))
	})

	// Static prefixes go first, everything else below the root is a username.
	if s.mediaRoot != "" {
		s.router.PathPrefix(s.mediaPrefix).Handler(
			http.StripPrefix(s.mediaPrefix, http.FileServer(mediaFS{http.Dir(s.mediaRoot)}))).Methods("GET", "HEAD")
	}
	s.registerAuthRoutes(s.router)
	s.registerFeedRoutes(s.router)
	s.registerPostRoutes(s.router)
	s.registerFollowRoutes(s.router)
	s.registerUserRoutes(s.router)

	// Middleware wraps the router rather than going through router.Use, so that
	// it also runs for unmatched routes.
	var h http.Handler = s.router
	if len(s.csrfKey) > 0 {
		h = exposeCSRFToken(h)
		h = csrf.Protect(s.csrfKey,
			csrf.Secure(s.secure),
			csrf.Path("/"),
			csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				errs.ReturnError(w, r, errs.Errorf(errs.EFORBIDDEN, "CSRF verification failed: %s.", csrf.FailureReason(r)))
			})))(h)
	}
	skip := []string{}
	if s.mediaRoot != "" {
		skip = append(skip, s.mediaPrefix)
	}
	userMw := &auth.UserMw{Users: s.us, SkipPrefixes: skip}
	h = userMw.Apply(h)
	h = s.recoverPanics(h)
	h = s.logRequests(h)
	s.handler = h
	return s
}

// ServeHTTP makes the Server usable as an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe listens on addr until Shutdown is called.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.WithField("addr", addr).Info("listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully, waiting for in-flight requests until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
