package db

import "time"

// StoredFile 记录上传文件的元数据，文件内容保存在上传目录中。
type StoredFile struct {
	ID           string `gorm:"primaryKey;size:36"`
	OriginalName string
	ContentType  string
	Size         int64
	Width        int
	Height       int
	Path         string `gorm:"not null"`
	CreatedAt    time.Time
}
