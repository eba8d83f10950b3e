package domain

import (
	"context"
	"io"
)

const (
	// ImagesDir is the key prefix under which post images are stored.
	ImagesDir = "posts"
	// MaxUploadSize determines the maximum filesize of an image to be uploaded.
	MaxUploadSize int64 = 5 << 20 // 5 Megabyte
)

// Upload is an image file submitted with a post form. File must support seeking
// so that its content type and size can be checked before it is stored.
// Extension and ContentType are filled in by validation.
type Upload struct {
	File        io.ReadSeeker
	Filename    string
	Extension   string
	ContentType string
}

// AssetStore persists uploaded binary content under a key and resolves the
// public URL of a stored key.
type AssetStore interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// ImageService validates and stores post images.
type ImageService interface {
	Validate(upload *Upload) error
	Store(ctx context.Context, upload *Upload) (string, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}
