package db

import (
	"time"

	"gorm.io/gorm"
)

// User 定义了账号模型
type User struct {
	gorm.Model
	Name     string `gorm:"not null"`
	Email    string `gorm:"uniqueIndex;not null"`
	Password string `gorm:"not null"`
}

// AuthSession 记录服务端登录会话，浏览器 cookie 中只保存 Token。
type AuthSession struct {
	Token     string `gorm:"primaryKey;size:36"`
	UserID    uint   `gorm:"index;not null"`
	User      User
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
}

// Expired reports whether the session is no longer valid at now.
func (s AuthSession) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
