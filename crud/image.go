package crud

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"microblog/domain"
	"microblog/errs"
)

// ImageService validates uploaded post images and writes them to an asset store.
// It implements the domain.ImageService interface.
type ImageService struct {
	imageValidator
}

// imageValidator runs validations on incoming uploads.
// On success, it passes the data on to imageStore.
type imageValidator struct {
	imageStore
}

// imageStore writes validated images to the underlying asset store.
type imageStore struct {
	store domain.AssetStore
}

// NewImageService returns an instance of ImageService.
func NewImageService(store domain.AssetStore) *ImageService {
	return &ImageService{
		imageValidator{
			imageStore{
				store: store,
			},
		},
	}
}

// Ensure the ImageService struct properly implements the domain.ImageService interface.
var _ domain.ImageService = &ImageService{}

// allowed maps accepted file extensions to the content type their data must have.
var allowed = map[string]string{
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
}

// Validate runs the image validations without storing anything.
func (iv *imageValidator) Validate(upload *domain.Upload) error {
	return runImageValFns(upload,
		iv.extensionValid,
		iv.contentTypeValid,
		iv.contentTypeExtensionMatch,
		iv.belowMaxSize,
	)
}

// Store validates an upload and stores it under a unique key, which it returns.
func (iv *imageValidator) Store(ctx context.Context, upload *domain.Upload) (string, error) {
	if err := iv.Validate(upload); err != nil {
		return "", err
	}
	return iv.imageStore.Put(ctx, upload)
}

func runImageValFns(upload *domain.Upload, fns ...imageValFn) error {
	for _, fn := range fns {
		if err := fn(upload); err != nil {
			return err
		}
	}
	return nil
}

// A imageValFn is any function that takes in a pointer to a domain.Upload object and returns an error.
type imageValFn func(upload *domain.Upload) error

// belowMaxSize makes sure that the image to be uploaded does not exceed MaxUploadSize.
func (iv *imageValidator) belowMaxSize(upload *domain.Upload) error {
	size, err := upload.File.Seek(0, io.SeekEnd)
	if err != nil {
		return errors.Wrap(err, "seek upload")
	}
	if err = resetFilePointer(upload); err != nil {
		return err
	}
	if size > domain.MaxUploadSize {
		return errs.FieldError("image", fmt.Sprintf("Image %s exceeds the upload size limit of %dMB.", upload.Filename, domain.MaxUploadSize>>20))
	}
	return nil
}

// contentTypeValid sniffs the first 512 bytes of the upload for a jpeg, png or gif signature.
func (iv *imageValidator) contentTypeValid(upload *domain.Upload) error {
	buffer := make([]byte, 512)
	n, err := io.ReadFull(upload.File, buffer)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return errors.Wrap(err, "read upload")
	}
	if err = resetFilePointer(upload); err != nil {
		return err
	}
	contentType := http.DetectContentType(buffer[:n])
	for _, ct := range allowed {
		if ct == contentType {
			upload.ContentType = contentType
			return nil
		}
	}
	return errs.FieldError("image", "Upload a valid image. The file you uploaded was either not an image or a corrupted image.")
}

// contentTypeExtensionMatch makes sure that the image's filename extension and content type match.
func (iv *imageValidator) contentTypeExtensionMatch(upload *domain.Upload) error {
	if allowed[upload.Extension] != upload.ContentType {
		return errs.FieldError("image", fmt.Sprintf("Image %s has content type %s, which does not match its extension %s.", upload.Filename, upload.ContentType, upload.Extension))
	}
	return nil
}

// extensionValid makes sure that the image has the extension .jpeg, .jpg, .png or .gif.
// .jpg is renamed to .jpeg for consistency.
func (iv *imageValidator) extensionValid(upload *domain.Upload) error {
	ext := strings.ToLower(filepath.Ext(upload.Filename))
	if ext == ".jpg" {
		ext = ".jpeg"
	}
	if _, ok := allowed[ext]; !ok {
		return errs.FieldError("image", fmt.Sprintf("Image %s has an invalid extension, allowed are .jpeg, .jpg, .png and .gif.", upload.Filename))
	}
	upload.Extension = ext
	return nil
}

// resetFilePointer sets the file pointer back to beginning of the file,
// so that subsequent reads can properly read from the beginning again.
func resetFilePointer(upload *domain.Upload) error {
	_, err := upload.File.Seek(0, io.SeekStart)
	return errors.Wrap(err, "rewind upload")
}

// Put writes the upload to the asset store under a fresh key in domain.ImagesDir.
func (is *imageStore) Put(ctx context.Context, upload *domain.Upload) (string, error) {
	if is.store == nil {
		return "", errs.Errorf(errs.EINTERNAL, "No asset store configured.")
	}
	key := fmt.Sprintf("%s/%s%s", domain.ImagesDir, uuid.NewString(), upload.Extension)
	if err := is.store.Put(ctx, key, upload.File, upload.ContentType); err != nil {
		return "", errors.Wrapf(err, "store image %s", key)
	}
	return key, nil
}

// Delete removes a stored image.
func (is *imageStore) Delete(ctx context.Context, key string) error {
	if is.store == nil || key == "" {
		return nil
	}
	return errors.Wrapf(is.store.Delete(ctx, key), "delete image %s", key)
}

// URL returns the public url of a stored image.
func (is *imageStore) URL(key string) string {
	if is.store == nil || key == "" {
		return ""
	}
	return is.store.URL(key)
}
