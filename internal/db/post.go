package db

import "time"

// Post statuses.
const (
	PostStatusDraft  = "draft"
	PostStatusActive = "active"
)

// Content formats accepted for a post body.
const (
	ContentFormatHTML     = "html"
	ContentFormatMarkdown = "markdown"
)

// Post 定义了文章模型，Slug 是文章对外的唯一标识。
type Post struct {
	ID              uint   `gorm:"primarykey"`
	Slug            string `gorm:"uniqueIndex;size:64;not null"`
	Title           string `gorm:"not null"`
	Content         string `gorm:"type:text"`
	ContentFormat   string `gorm:"size:16;default:html"`
	FeaturedImageID string `gorm:"size:36"`
	Status          string `gorm:"index;size:16;not null"`
	UserID          uint   `gorm:"index;not null"`
	User            User
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsActive reports whether the post is publicly listed.
func (p Post) IsActive() bool {
	return p.Status == PostStatusActive
}

// ValidStatus reports whether status is one of the known post statuses.
func ValidStatus(status string) bool {
	return status == PostStatusDraft || status == PostStatusActive
}
