package crud

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"microblog/database"
	"microblog/domain"
)

// memStore is an in-memory domain.AssetStore.
type memStore struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{files: map[string][]byte{}}
}

func (m *memStore) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[key] = b
	return nil
}

func (m *memStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, key)
	return nil
}

func (m *memStore) URL(key string) string {
	return "/media/" + key
}

func (m *memStore) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[key]
	return ok
}

type fixture struct {
	*Services
	db    *database.DB
	store *memStore
	logs  *test.Hook
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(database.Config{Dialect: "sqlite"}, true)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.AutoMigrate())

	logger, hook := test.NewNullLogger()
	store := newMemStore()
	services, err := NewServices(db.Gorm,
		WithLogger(logrus.NewEntry(logger)),
		WithUser("pepper", "hmac-key"),
		WithGroup(),
		WithImage(store),
		WithPost(),
		WithComment(),
		WithFollow(),
		WithFeed(),
	)
	require.NoError(t, err)
	return &fixture{Services: services, db: db, store: store, logs: hook}
}

// user stores a user directly, skipping the slow password hashing.
func (f *fixture) user(t *testing.T, username string) *domain.User {
	t.Helper()
	u := &domain.User{Username: username, PasswordHash: "-", RememberHash: "remember-" + username}
	require.NoError(t, f.db.Gorm.Create(u).Error)
	return u
}

func (f *fixture) group(t *testing.T, slug string) *domain.Group {
	t.Helper()
	g := &domain.Group{Title: "Group " + slug, Slug: slug}
	require.NoError(t, f.Group.Create(context.Background(), g))
	return g
}

func (f *fixture) post(t *testing.T, author *domain.User, text string, group *domain.Group) *domain.Post {
	t.Helper()
	form := domain.PostForm{Text: text}
	if group != nil {
		form.GroupID = &group.ID
	}
	p, err := f.Post.Create(context.Background(), author, form)
	require.NoError(t, err)
	return p
}

func pngUpload(t *testing.T, name string) *domain.Upload {
	t.Helper()
	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.White)
	require.NoError(t, png.Encode(&buf, img))
	return &domain.Upload{File: bytes.NewReader(buf.Bytes()), Filename: name}
}

func gifUpload(t *testing.T, name string) *domain.Upload {
	t.Helper()
	var buf bytes.Buffer
	img := image.NewPaletted(image.Rect(0, 0, 2, 2), color.Palette{color.Black, color.White})
	require.NoError(t, gif.Encode(&buf, img, nil))
	return &domain.Upload{File: bytes.NewReader(buf.Bytes()), Filename: name}
}

func intPtr(i int) *int {
	return &i
}
