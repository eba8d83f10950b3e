package http

import (
	"mime/multipart"
	"net/http"
	"os"
	"strings"

	"microblog/domain"
	"microblog/errs"
)

// maxFormSize bounds the body of post forms: one image plus the text fields.
const maxFormSize = domain.MaxUploadSize + 1<<20

// parseForm reads url-encoded and multipart bodies alike.
func parseForm(w http.ResponseWriter, r *http.Request) error {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
		if err := r.ParseMultipartForm(domain.MaxUploadSize); err != nil {
			return errs.FieldError("image", "The submitted data was too large or malformed.")
		}
		return nil
	}
	if err := r.ParseForm(); err != nil {
		return errs.Errorf(errs.EINVALID, "Malformed form.")
	}
	return nil
}

// formUpload opens the uploaded image of field, if there is one. The returned file
// must be closed by the caller once the image has been stored.
func formUpload(r *http.Request, field string) (*domain.Upload, multipart.File, error) {
	if r.MultipartForm == nil || len(r.MultipartForm.File[field]) == 0 {
		return nil, nil, nil
	}
	header := r.MultipartForm.File[field][0]
	file, err := header.Open()
	if err != nil {
		return nil, nil, err
	}
	return &domain.Upload{File: file, Filename: header.Filename}, file, nil
}

// mediaFS serves the files of a local asset store and hides its directories, so the
// file server answers 404 instead of listing them.
type mediaFS struct {
	fs http.FileSystem
}

func (m mediaFS) Open(name string) (http.File, error) {
	f, err := m.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, os.ErrNotExist
	}
	return f, nil
}
