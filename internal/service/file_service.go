package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/quillpost/internal/db"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
	"gorm.io/gorm"
)

var (
	ErrFileNotFound     = errors.New("file not found")
	ErrFileTooLarge     = errors.New("file exceeds the upload size limit")
	ErrUnsupportedImage = errors.New("only png, jpeg, gif, webp or bmp images are allowed")
	ErrEmptyUpload      = errors.New("uploaded file is empty")
)

const defaultMaxUploadBytes = int64(10 << 20)

var imageExtensionByFormat = map[string]string{
	"png":  ".png",
	"jpeg": ".jpg",
	"gif":  ".gif",
	"webp": ".webp",
	"bmp":  ".bmp",
}

// Upload is a file handed to the storage backend.
type Upload struct {
	Name        string
	ContentType string
	Reader      io.Reader
}

// FileService stores uploaded images on disk and their metadata in the database.
type FileService struct {
	db       *gorm.DB
	dir      string
	urlPath  string
	maxBytes int64
}

// NewFileService creates a FileService writing into uploadDir. Preview URLs are
// built under urlPath.
func NewFileService(gdb *gorm.DB, uploadDir, urlPath string, maxBytes int64) *FileService {
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}
	urlPath = strings.TrimRight(strings.TrimSpace(urlPath), "/")
	if urlPath == "" {
		urlPath = "/files"
	}
	return &FileService{db: gdb, dir: uploadDir, urlPath: urlPath, maxBytes: maxBytes}
}

// UploadFile validates the upload as an image, writes it to disk and returns its id.
func (s *FileService) UploadFile(ctx context.Context, upload Upload) (string, error) {
	if upload.Reader == nil {
		return "", ErrEmptyUpload
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := io.ReadAll(io.LimitReader(upload.Reader, s.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return "", ErrEmptyUpload
	}
	if int64(len(data)) > s.maxBytes {
		return "", ErrFileTooLarge
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", ErrUnsupportedImage
	}
	ext, ok := imageExtensionByFormat[format]
	if !ok {
		return "", ErrUnsupportedImage
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	id := uuid.NewString()
	path := filepath.Join(s.dir, id+ext)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}

	record := db.StoredFile{
		ID:           id,
		OriginalName: filepath.Base(strings.TrimSpace(upload.Name)),
		ContentType:  "image/" + format,
		Size:         int64(len(data)),
		Width:        cfg.Width,
		Height:       cfg.Height,
		Path:         path,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("save file record: %w", err)
	}
	return id, nil
}

// DeleteFile removes the file content and its record.
func (s *FileService) DeleteFile(ctx context.Context, id string) error {
	record, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Delete(&db.StoredFile{}, "id = ?", record.ID).Error; err != nil {
		return err
	}
	if err := os.Remove(record.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

// Get returns the metadata of a stored file.
func (s *FileService) Get(ctx context.Context, id string) (*db.StoredFile, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrFileNotFound
	}
	var record db.StoredFile
	if err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}
	return &record, nil
}

// PreviewURL builds the URL serving the file. It performs no lookup.
func (s *FileService) PreviewURL(id string) string {
	if strings.TrimSpace(id) == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s/preview", s.urlPath, id)
}
