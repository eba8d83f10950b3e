package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"microblog/domain"
)

// LocalStore keeps assets in a directory on disk. The web server exposes the
// directory under URLPrefix.
type LocalStore struct {
	Root      string
	URLPrefix string
}

// NewLocalStore returns a LocalStore rooted at root, creating the directory if needed.
func NewLocalStore(root, urlPrefix string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, errors.Wrapf(err, "create media root %s", root)
	}
	return &LocalStore{Root: root, URLPrefix: strings.TrimSuffix(urlPrefix, "/") + "/"}, nil
}

var _ domain.AssetStore = &LocalStore{}

// Put creates the file for key, and any missing parent directories, and copies r into it.
func (ls *LocalStore) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	path, err := ls.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "create asset dir")
	}
	dst, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create asset")
	}
	if _, err := io.Copy(dst, r); err != nil {
		dst.Close()
		os.Remove(path)
		return errors.Wrap(err, "write asset")
	}
	return errors.Wrap(dst.Close(), "close asset")
}

// Delete removes the file for key. Missing files are not an error.
func (ls *LocalStore) Delete(ctx context.Context, key string) error {
	path, err := ls.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove asset")
	}
	return nil
}

// URL returns the url the web server serves key at.
func (ls *LocalStore) URL(key string) string {
	return ls.URLPrefix + key
}

// path maps a key to a file below Root, refusing keys that would escape it.
func (ls *LocalStore) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" || clean != "/"+key {
		return "", errors.Errorf("invalid asset key %q", key)
	}
	return filepath.Join(ls.Root, filepath.FromSlash(clean)), nil
}
