package crud

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"microblog/domain"
	"microblog/errs"
)

func TestImageValidate(t *testing.T) {
	images := NewImageService(newMemStore())

	up := pngUpload(t, "photo.png")
	require.NoError(t, images.Validate(up))
	assert.Equal(t, ".png", up.Extension)
	assert.Equal(t, "image/png", up.ContentType)

	up = gifUpload(t, "anim.GIF")
	require.NoError(t, images.Validate(up))
	assert.Equal(t, ".gif", up.Extension)

	cases := map[string]*domain.Upload{
		"bad extension":      pngUpload(t, "photo.bmp"),
		"mismatched content": pngUpload(t, "photo.jpg"),
		"not an image":       {File: bytes.NewReader([]byte("hello world")), Filename: "notes.png"},
		"empty file":         {File: bytes.NewReader(nil), Filename: "empty.png"},
	}
	for name, up := range cases {
		err := images.Validate(up)
		assert.Equal(t, errs.EINVALID, errs.ErrorCode(err), name)
		assert.Contains(t, errs.ErrorFields(err), "image", name)
	}
}

func TestImageValidateMaxSize(t *testing.T) {
	images := NewImageService(newMemStore())
	data := append([]byte("\x89PNG\x0D\x0A\x1A\x0A"), make([]byte, domain.MaxUploadSize)...)
	err := images.Validate(&domain.Upload{File: bytes.NewReader(data), Filename: "huge.png"})
	assert.Contains(t, errs.ErrorFields(err), "image")
}

func TestImageStore(t *testing.T) {
	store := newMemStore()
	images := NewImageService(store)
	ctx := context.Background()

	key, err := images.Store(ctx, pngUpload(t, "photo.png"))
	require.NoError(t, err)
	assert.True(t, store.has(key))
	assert.Equal(t, "/media/"+key, images.URL(key))
	assert.Equal(t, "", images.URL(""))

	// The whole file is stored, not what was left after sniffing.
	assert.Equal(t, []byte("\x89PNG"), store.files[key][:4])

	require.NoError(t, images.Delete(ctx, key))
	assert.False(t, store.has(key))
}
