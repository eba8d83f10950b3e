package http

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"microblog/auth"
	"microblog/cache"
	"microblog/crud"
	"microblog/database"
	"microblog/domain"
	"microblog/storage"
)

type testServer struct {
	*Server
	services *crud.Services
}

func newTestServer(t *testing.T, opts ...Option) *testServer {
	t.Helper()
	db, err := database.Open(database.Config{Dialect: "sqlite"}, true)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.AutoMigrate())

	logger, _ := test.NewNullLogger()
	log := logrus.NewEntry(logger)
	mediaRoot := t.TempDir()
	store, err := storage.NewLocalStore(mediaRoot, "/media/")
	require.NoError(t, err)

	services, err := crud.NewServices(db.Gorm,
		crud.WithLogger(log),
		crud.WithUser("pepper", "hmac-key"),
		crud.WithGroup(),
		crud.WithImage(store),
		crud.WithPost(),
		crud.WithComment(),
		crud.WithFollow(),
		crud.WithFeed(),
	)
	require.NoError(t, err)

	opts = append([]Option{WithLogger(log), WithMedia(mediaRoot, "/media/")}, opts...)
	return &testServer{Server: NewServer(services, opts...), services: services}
}

func (ts *testServer) user(t *testing.T, username string) *domain.User {
	t.Helper()
	u := &domain.User{Username: username, Password: "long-enough-password"}
	require.NoError(t, ts.services.User.Create(context.Background(), u))
	return u
}

func (ts *testServer) do(t *testing.T, r *http.Request, user *domain.User) *httptest.ResponseRecorder {
	t.Helper()
	if user != nil {
		r.AddCookie(&http.Cookie{Name: auth.RememberCookie, Value: user.Remember})
	}
	w := httptest.NewRecorder()
	ts.ServeHTTP(w, r)
	return w
}

func (ts *testServer) get(t *testing.T, target string, user *domain.User) *httptest.ResponseRecorder {
	return ts.do(t, httptest.NewRequest(http.MethodGet, target, nil), user)
}

func (ts *testServer) postForm(t *testing.T, target string, values url.Values, user *domain.User) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return ts.do(t, r, user)
}

type pageBody struct {
	Posts []struct {
		ID           int    `json:"id"`
		Text         string `json:"text"`
		Image        string `json:"image"`
		CommentCount int    `json:"comment_count"`
	} `json:"posts"`
	Number   int `json:"number"`
	NumPages int `json:"num_pages"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(w.Body).Decode(v), w.Body.String())
}

func assertRedirect(t *testing.T, w *httptest.ResponseRecorder, location string) {
	t.Helper()
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())
	assert.Equal(t, location, w.Header().Get("Location"))
}

func TestAnonymousIsSentToLogin(t *testing.T) {
	ts := newTestServer(t)
	for _, target := range []string{"/new/", "/follow/", "/leo/follow/", "/leo/unfollow/", "/leo/1/edit/"} {
		w := ts.get(t, target, nil)
		require.Equal(t, http.StatusFound, w.Code, target)
		loc, err := url.Parse(w.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "/auth/login/", loc.Path)
		assert.Equal(t, target, loc.Query().Get("next"))
	}
	w := ts.postForm(t, "/leo/1/comment/", url.Values{"text": {"hi"}}, nil)
	assert.Equal(t, http.StatusFound, w.Code)
}

func TestCreatePostAndFeed(t *testing.T) {
	ts := newTestServer(t)
	leo := ts.user(t, "leo")

	w := ts.get(t, "/new/", leo)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.postForm(t, "/new/", url.Values{"text": {"first post"}}, leo)
	assertRedirect(t, w, "/")

	w = ts.get(t, "/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page pageBody
	decode(t, w, &page)
	require.Len(t, page.Posts, 1)
	assert.Equal(t, "first post", page.Posts[0].Text)

	w = ts.get(t, "/leo/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var profile struct {
		Author    struct{ Username string } `json:"author"`
		Page      pageBody                  `json:"page"`
		Following bool                      `json:"following"`
	}
	decode(t, w, &profile)
	assert.Equal(t, "leo", profile.Author.Username)
	assert.Len(t, profile.Page.Posts, 1)
}

func TestCreatePostInvalid(t *testing.T) {
	ts := newTestServer(t)
	leo := ts.user(t, "leo")

	w := ts.postForm(t, "/new/", url.Values{"text": {"  "}, "group": {"12"}}, leo)
	require.Equal(t, http.StatusBadRequest, w.Code)
	var resp struct {
		Fields map[string]string `json:"fields"`
		Form   map[string]string `json:"form"`
	}
	decode(t, w, &resp)
	assert.Contains(t, resp.Fields, "text")
	assert.Contains(t, resp.Fields, "group")
	assert.Equal(t, "12", resp.Form["group"])
}

func TestFeedCacheIsInvalidatedByNewPosts(t *testing.T) {
	ts := newTestServer(t, WithCache(cache.NewMemory(cache.DefaultTTL)))
	leo := ts.user(t, "leo")
	assertRedirect(t, ts.postForm(t, "/new/", url.Values{"text": {"one"}}, leo), "/")

	var page pageBody
	decode(t, ts.get(t, "/", nil), &page)
	require.Len(t, page.Posts, 1)

	assertRedirect(t, ts.postForm(t, "/new/", url.Values{"text": {"two"}}, leo), "/")
	page = pageBody{}
	decode(t, ts.get(t, "/", nil), &page)
	require.Len(t, page.Posts, 2)
	assert.Equal(t, "two", page.Posts[0].Text)
}

// gatedStore holds the first Set until release is closed.
type gatedStore struct {
	*cache.Memory
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) Set(ctx context.Context, key string, value []byte) error {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.Memory.Set(ctx, key, value)
}

func TestFeedCacheIgnoresPagesRenderedBeforeNewPost(t *testing.T) {
	store := &gatedStore{
		Memory:  cache.NewMemory(cache.DefaultTTL),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	ts := newTestServer(t, WithCache(store))
	leo := ts.user(t, "leo")

	done := make(chan *httptest.ResponseRecorder)
	go func() {
		w := httptest.NewRecorder()
		ts.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		done <- w
	}()
	<-store.entered
	assertRedirect(t, ts.postForm(t, "/new/", url.Values{"text": {"fresh"}}, leo), "/")
	close(store.release)

	var page pageBody
	decode(t, <-done, &page)
	assert.Empty(t, page.Posts)

	page = pageBody{}
	decode(t, ts.get(t, "/", nil), &page)
	require.Len(t, page.Posts, 1)
	assert.Equal(t, "fresh", page.Posts[0].Text)
}

func TestFeedCacheKeysOnPageNumber(t *testing.T) {
	mem := cache.NewMemory(cache.DefaultTTL)
	ts := newTestServer(t, WithCache(mem))
	leo := ts.user(t, "leo")
	assertRedirect(t, ts.postForm(t, "/new/", url.Values{"text": {"one"}}, leo), "/")

	for i := 0; i < 50; i++ {
		n := strconv.Itoa(i)
		for _, target := range []string{"/?page=1&junk=" + n, "/?page=abc" + n, "/?page=9" + n} {
			w := ts.get(t, target, nil)
			require.Equal(t, http.StatusOK, w.Code, target)
		}
	}
	assert.Equal(t, 1, mem.Len())
}

func TestFeedCacheIsInvalidatedByComments(t *testing.T) {
	ts := newTestServer(t, WithCache(cache.NewMemory(cache.DefaultTTL)))
	leo := ts.user(t, "leo")
	post, err := ts.services.Post.Create(context.Background(), leo, domain.PostForm{Text: "hello"})
	require.NoError(t, err)

	var page pageBody
	decode(t, ts.get(t, "/", nil), &page)
	require.Len(t, page.Posts, 1)
	assert.Zero(t, page.Posts[0].CommentCount)

	view := postURL("leo", post.ID)
	assertRedirect(t, ts.postForm(t, view+"comment/", url.Values{"text": {"nice"}}, leo), view)
	page = pageBody{}
	decode(t, ts.get(t, "/", nil), &page)
	require.Len(t, page.Posts, 1)
	assert.Equal(t, 1, page.Posts[0].CommentCount)
}

func TestFeedPagination(t *testing.T) {
	ts := newTestServer(t)
	leo := ts.user(t, "leo")
	for i := 0; i < 12; i++ {
		assertRedirect(t, ts.postForm(t, "/new/", url.Values{"text": {"post"}}, leo), "/")
	}
	for target, want := range map[string]int{"/": 1, "/?page=abc": 1, "/?page=2": 2, "/?page=99": 2, "/?page=0": 2} {
		var page pageBody
		decode(t, ts.get(t, target, nil), &page)
		assert.Equal(t, want, page.Number, target)
		assert.Equal(t, 2, page.NumPages, target)
	}
}

func TestGroupPage(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.services.Group.Create(context.Background(), &domain.Group{Title: "Cats", Slug: "cats"}))

	w := ts.get(t, "/group/cats/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Group struct{ Slug string } `json:"group"`
		Page  pageBody              `json:"page"`
	}
	decode(t, w, &body)
	assert.Equal(t, "cats", body.Group.Slug)
	assert.Empty(t, body.Page.Posts)

	assert.Equal(t, http.StatusNotFound, ts.get(t, "/group/dogs/", nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.get(t, "/nobody/", nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.get(t, "/a/b/c/d/", nil).Code)
}

func TestEditPost(t *testing.T) {
	ts := newTestServer(t)
	leo := ts.user(t, "leo")
	other := ts.user(t, "other")
	post, err := ts.services.Post.Create(context.Background(), leo, domain.PostForm{Text: "original"})
	require.NoError(t, err)
	view := postURL("leo", post.ID)
	edit := view + "edit/"

	assertRedirect(t, ts.get(t, edit, other), view)
	assertRedirect(t, ts.postForm(t, edit, url.Values{"text": {"hijacked"}}, other), view)

	w := ts.get(t, edit, leo)
	require.Equal(t, http.StatusOK, w.Code)
	var form struct {
		IsEdit bool              `json:"is_edit"`
		Form   map[string]string `json:"form"`
	}
	decode(t, w, &form)
	assert.True(t, form.IsEdit)
	assert.Equal(t, "original", form.Form["text"])

	assertRedirect(t, ts.postForm(t, edit, url.Values{"text": {"edited"}}, leo), view)
	assert.Equal(t, http.StatusBadRequest, ts.postForm(t, edit, url.Values{"text": {""}}, leo).Code)

	w = ts.get(t, view, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var pv struct {
		Post struct{ Text string } `json:"post"`
	}
	decode(t, w, &pv)
	assert.Equal(t, "edited", pv.Post.Text)

	assert.Equal(t, http.StatusNotFound, ts.get(t, postURL("other", post.ID), nil).Code)
}

func TestComment(t *testing.T) {
	ts := newTestServer(t)
	leo := ts.user(t, "leo")
	reader := ts.user(t, "reader")
	post, err := ts.services.Post.Create(context.Background(), leo, domain.PostForm{Text: "hello"})
	require.NoError(t, err)
	view := postURL("leo", post.ID)

	assertRedirect(t, ts.postForm(t, view+"comment/", url.Values{"text": {"nice"}}, reader), view)
	assert.Equal(t, http.StatusBadRequest, ts.postForm(t, view+"comment/", url.Values{"text": {strings.Repeat("a", 201)}}, reader).Code)

	var pv struct {
		Comments []struct {
			Text   string
			Author struct{ Username string }
		} `json:"comments"`
	}
	decode(t, ts.get(t, view, nil), &pv)
	require.Len(t, pv.Comments, 1)
	assert.Equal(t, "reader", pv.Comments[0].Author.Username)
}

func TestFollowFlow(t *testing.T) {
	ts := newTestServer(t)
	leo := ts.user(t, "leo")
	author := ts.user(t, "author")
	_, err := ts.services.Post.Create(context.Background(), author, domain.PostForm{Text: "followed post"})
	require.NoError(t, err)

	assertRedirect(t, ts.get(t, "/author/follow/", leo), "/follow/")
	assertRedirect(t, ts.get(t, "/author/follow/", leo), "/author/")
	assertRedirect(t, ts.get(t, "/leo/follow/", leo), "/leo/")
	assert.Equal(t, http.StatusNotFound, ts.get(t, "/nobody/follow/", leo).Code)

	var page pageBody
	decode(t, ts.get(t, "/follow/", leo), &page)
	require.Len(t, page.Posts, 1)
	assert.Equal(t, "followed post", page.Posts[0].Text)

	var profile struct {
		FollowerCount int  `json:"follower_count"`
		Following     bool `json:"following"`
	}
	decode(t, ts.get(t, "/author/", leo), &profile)
	assert.Equal(t, 1, profile.FollowerCount)
	assert.True(t, profile.Following)

	assertRedirect(t, ts.get(t, "/author/unfollow/", leo), "/follow/")
	assertRedirect(t, ts.get(t, "/author/unfollow/", leo), "/author/")
	assertRedirect(t, ts.get(t, "/nobody/unfollow/", leo), "/nobody/")
}

func TestLoginSignupLogout(t *testing.T) {
	ts := newTestServer(t)

	w := ts.postForm(t, "/auth/signup/", url.Values{"username": {"leo"}, "password": {"war-and-peace"}, "password2": {"war-and-peace"}}, nil)
	assertRedirect(t, w, "/")
	require.NotEmpty(t, w.Result().Cookies())

	w = ts.postForm(t, "/auth/signup/", url.Values{"username": {"leo"}, "password": {"war-and-peace"}}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.postForm(t, "/auth/login/", url.Values{"username": {"leo"}, "password": {"wrong-password"}}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.postForm(t, "/auth/login/", url.Values{"username": {"leo"}, "password": {"war-and-peace"}, "next": {"https://evil.example/"}}, nil)
	assertRedirect(t, w, "/")

	// Every login rotates the remember token, so only the latest cookie is valid.
	w = ts.postForm(t, "/auth/login/?next=%2Fnew%2F", url.Values{"username": {"leo"}, "password": {"war-and-peace"}}, nil)
	assertRedirect(t, w, "/new/")
	var token string
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.RememberCookie {
			token = c.Value
		}
	}
	require.NotEmpty(t, token)
	leo := &domain.User{Remember: token}
	assert.Equal(t, http.StatusOK, ts.get(t, "/new/", leo).Code)

	w = ts.postForm(t, "/auth/logout/", nil, leo)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusFound, ts.get(t, "/new/", leo).Code)
}

func TestCreatePostWithImage(t *testing.T) {
	ts := newTestServer(t)
	leo := ts.user(t, "leo")

	var img bytes.Buffer
	require.NoError(t, png.Encode(&img, image.NewRGBA(image.Rect(0, 0, 1, 1))))
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("text", "with a picture"))
	part, err := mw.CreateFormFile("image", "pic.png")
	require.NoError(t, err)
	_, err = io.Copy(part, &img)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, "/new/", &body)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	assertRedirect(t, ts.do(t, r, leo), "/")

	var page pageBody
	decode(t, ts.get(t, "/", nil), &page)
	require.Len(t, page.Posts, 1)
	require.True(t, strings.HasPrefix(page.Posts[0].Image, "/media/posts/"), page.Posts[0].Image)

	w := ts.get(t, page.Posts[0].Image, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
}

func TestCSRFProtection(t *testing.T) {
	ts := newTestServer(t, WithCSRF([]byte("01234567890123456789012345678901"), false))
	leo := ts.user(t, "leo")

	w := ts.postForm(t, "/new/", url.Values{"text": {"forged"}}, leo)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.get(t, "/new/", leo)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-CSRF-Token"))
}

func TestRecoverPanics(t *testing.T) {
	ts := newTestServer(t)
	h := ts.recoverPanics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestRequestIDHeader(t *testing.T) {
	ts := newTestServer(t)
	w := ts.get(t, "/", nil)
	assert.Len(t, w.Header().Get("X-Request-ID"), 36)
}

func TestMediaDirectoriesAreNotListed(t *testing.T) {
	ts := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, ts.get(t, "/media/", nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.get(t, "/media/posts/", nil).Code)
}

func TestSignupRejectsRouteNames(t *testing.T) {
	ts := newTestServer(t)
	for _, name := range []string{"new", "follow", "group", "auth", "media"} {
		w := ts.postForm(t, "/auth/signup/", url.Values{"username": {name}, "password": {"war-and-peace"}, "password2": {"war-and-peace"}}, nil)
		require.Equal(t, http.StatusBadRequest, w.Code, name)
		var resp struct {
			Fields map[string]string `json:"fields"`
		}
		decode(t, w, &resp)
		assert.Contains(t, resp.Fields, "username", name)
	}
}
