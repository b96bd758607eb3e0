package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quillpost/internal/db"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("an account with this email already exists")
	ErrSessionNotFound    = errors.New("session not found")
)

// UserRecord is the public snapshot of an account.
type UserRecord struct {
	ID    uint
	Name  string
	Email string
}

// AccountService implements the identity side of the backend: accounts and
// server-side login sessions.
type AccountService struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

// NewAccountService creates an AccountService whose sessions live for ttl.
func NewAccountService(gdb *gorm.DB, ttl time.Duration) *AccountService {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &AccountService{db: gdb, ttl: ttl, now: time.Now}
}

// Register creates an account with a bcrypt hashed password.
func (s *AccountService) Register(ctx context.Context, name, email, password string) error {
	email = normalizeEmail(email)

	var count int64
	if err := s.db.WithContext(ctx).Model(&db.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrEmailTaken
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	user := db.User{Name: strings.TrimSpace(name), Email: email, Password: string(hashed)}
	return s.db.WithContext(ctx).Create(&user).Error
}

// EnsureUser 存在性检查：若邮箱对应账号不存在，则创建一个 bcrypt 哈希的用户。
func (s *AccountService) EnsureUser(ctx context.Context, name, email, password string) (bool, error) {
	err := s.Register(ctx, name, email, password)
	if errors.Is(err, ErrEmailTaken) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Login verifies the credentials and opens a session, returning its token.
func (s *AccountService) Login(ctx context.Context, email, password string) (string, error) {
	var user db.User
	if err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	session := db.AuthSession{
		Token:     uuid.NewString(),
		UserID:    user.ID,
		ExpiresAt: s.now().Add(s.ttl),
	}
	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return session.Token, nil
}

// Logout destroys the session identified by token.
func (s *AccountService) Logout(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return ErrSessionNotFound
	}

	result := s.db.WithContext(ctx).Where("token = ?", token).Delete(&db.AuthSession{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// CurrentUser returns the account owning a live session.
// Expired sessions are removed and reported as ErrSessionNotFound.
func (s *AccountService) CurrentUser(ctx context.Context, token string) (UserRecord, error) {
	if strings.TrimSpace(token) == "" {
		return UserRecord{}, ErrSessionNotFound
	}

	var session db.AuthSession
	if err := s.db.WithContext(ctx).Preload("User").Where("token = ?", token).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return UserRecord{}, ErrSessionNotFound
		}
		return UserRecord{}, err
	}

	if session.Expired(s.now()) {
		s.db.WithContext(ctx).Where("token = ?", token).Delete(&db.AuthSession{})
		return UserRecord{}, ErrSessionNotFound
	}

	return UserRecord{
		ID:    session.User.ID,
		Name:  session.User.Name,
		Email: session.User.Email,
	}, nil
}

// PurgeExpiredSessions deletes sessions past their expiry.
func (s *AccountService) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Where("expires_at <= ?", s.now()).Delete(&db.AuthSession{})
	return result.RowsAffected, result.Error
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
