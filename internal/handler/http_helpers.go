package handler

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/quillpost/internal/service"
)

var errNotAnImage = errors.New("only image files can be uploaded")

// formImage opens the optional featured image of a multipart form. The
// returned closer must be called once the submission finished.
func formImage(c *gin.Context, field string) (*service.Upload, func(), error) {
	header, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, func() {}, nil
		}
		return nil, func() {}, err
	}
	if header.Size == 0 {
		return nil, func() {}, nil
	}

	contentType := header.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		return nil, func() {}, errNotAnImage
	}

	file, err := header.Open()
	if err != nil {
		return nil, func() {}, err
	}
	return &service.Upload{Name: header.Filename, ContentType: contentType, Reader: file}, closer(file), nil
}

func closer(file multipart.File) func() {
	return func() { _ = file.Close() }
}
