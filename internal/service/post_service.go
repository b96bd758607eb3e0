package service

import (
	"context"
	"errors"
	"strings"

	"github.com/quillpost/internal/db"
	"gorm.io/gorm"
)

var (
	ErrPostNotFound  = errors.New("post not found")
	ErrSlugTaken     = errors.New("a post with this slug already exists")
	ErrInvalidStatus = errors.New("post status is invalid")
)

// PostService wraps post related database operations.
type PostService struct {
	db *gorm.DB
}

// PostInput represents fields accepted when creating a post.
type PostInput struct {
	Slug            string
	Title           string
	Content         string
	ContentFormat   string
	FeaturedImageID string
	Status          string
	UserID          uint
}

// PostPatch represents fields accepted when updating a post.
// A nil FeaturedImageID keeps the stored image reference.
type PostPatch struct {
	Title           string
	Content         string
	ContentFormat   string
	Status          string
	FeaturedImageID *string
}

// PostFilter describes filters for listing posts.
type PostFilter struct {
	Status string
	UserID uint
	Limit  int
}

// NewPostService creates a PostService instance.
func NewPostService(gdb *gorm.DB) *PostService {
	return &PostService{db: gdb}
}

// Create persists a new post. The slug must not be in use.
func (s *PostService) Create(ctx context.Context, input PostInput) (*db.Post, error) {
	status := strings.TrimSpace(input.Status)
	if !db.ValidStatus(status) {
		return nil, ErrInvalidStatus
	}

	post := db.Post{
		Slug:            strings.TrimSpace(input.Slug),
		Title:           strings.TrimSpace(input.Title),
		Content:         input.Content,
		ContentFormat:   normalizeContentFormat(input.ContentFormat),
		FeaturedImageID: strings.TrimSpace(input.FeaturedImageID),
		Status:          status,
		UserID:          input.UserID,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&db.Post{}).Where("slug = ?", post.Slug).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrSlugTaken
		}
		return tx.Create(&post).Error
	})
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// Update applies a patch to the post with the given slug. The author is never changed.
func (s *PostService) Update(ctx context.Context, slug string, patch PostPatch) (*db.Post, error) {
	status := strings.TrimSpace(patch.Status)
	if !db.ValidStatus(status) {
		return nil, ErrInvalidStatus
	}

	var post db.Post
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("slug = ?", slug).First(&post).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPostNotFound
			}
			return err
		}

		updates := map[string]interface{}{
			"title":          strings.TrimSpace(patch.Title),
			"content":        patch.Content,
			"content_format": normalizeContentFormat(patch.ContentFormat),
			"status":         status,
		}
		if patch.FeaturedImageID != nil {
			updates["featured_image_id"] = strings.TrimSpace(*patch.FeaturedImageID)
		}

		if err := tx.Model(&post).Updates(updates).Error; err != nil {
			return err
		}
		return tx.First(&post, post.ID).Error
	})
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// Delete removes the post with the given slug.
func (s *PostService) Delete(ctx context.Context, slug string) error {
	result := s.db.WithContext(ctx).Where("slug = ?", slug).Delete(&db.Post{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPostNotFound
	}
	return nil
}

// Get fetches a post by slug with its author preloaded.
func (s *PostService) Get(ctx context.Context, slug string) (*db.Post, error) {
	var post db.Post
	if err := s.db.WithContext(ctx).Preload("User").Where("slug = ?", slug).First(&post).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, err
	}
	return &post, nil
}

// List returns posts newest first.
func (s *PostService) List(ctx context.Context, filter PostFilter) ([]db.Post, error) {
	query := s.db.WithContext(ctx).Model(&db.Post{}).Preload("User")
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("status = ?", status)
	}
	if filter.UserID != 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var posts []db.Post
	if err := query.Order("created_at desc").Order("id desc").Find(&posts).Error; err != nil {
		return nil, err
	}
	return posts, nil
}

// CreatePost adapts Create to the form controller's document contract.
func (s *PostService) CreatePost(ctx context.Context, input PostInput) (*db.Post, error) {
	return s.Create(ctx, input)
}

// UpdatePost adapts Update to the form controller's document contract.
func (s *PostService) UpdatePost(ctx context.Context, slug string, patch PostPatch) (*db.Post, error) {
	return s.Update(ctx, slug, patch)
}

// DeletePost adapts Delete to the form controller's document contract.
func (s *PostService) DeletePost(ctx context.Context, slug string) error {
	return s.Delete(ctx, slug)
}

// GetPost adapts Get to the document contract.
func (s *PostService) GetPost(ctx context.Context, slug string) (*db.Post, error) {
	return s.Get(ctx, slug)
}

// ListPosts adapts List to the document contract.
func (s *PostService) ListPosts(ctx context.Context, filter PostFilter) ([]db.Post, error) {
	return s.List(ctx, filter)
}

func normalizeContentFormat(format string) string {
	if strings.EqualFold(strings.TrimSpace(format), db.ContentFormatMarkdown) {
		return db.ContentFormatMarkdown
	}
	return db.ContentFormatHTML
}
