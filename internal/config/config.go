package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AppConfig 汇总运行服务所需的基础配置。
type AppConfig struct {
	ListenAddr        string        `yaml:"listen_addr"`
	Port              string        `yaml:"port"`
	DatabasePath      string        `yaml:"database_path"`
	SessionSecret     string        `yaml:"session_secret"`
	GinMode           string        `yaml:"gin_mode"`
	UploadDir         string        `yaml:"upload_dir"`
	FileURLPath       string        `yaml:"file_url_path"`
	LogLevel          string        `yaml:"log_level"`
	SessionTTL        time.Duration `yaml:"session_ttl"`
	FormSubmitTimeout time.Duration `yaml:"form_submit_timeout"`
	MaxUploadBytes    int64         `yaml:"max_upload_bytes"`
	SecureCookies     bool          `yaml:"secure_cookies"`
}

const (
	defaultSessionTTL        = 7 * 24 * time.Hour
	defaultFormSubmitTimeout = 30 * time.Second
	defaultMaxUploadBytes    = 10 << 20
)

// Load 从 .env、可选的 YAML 文件和环境变量读取应用配置，并为缺失项提供安全的默认值。
// 环境变量优先级最高，其次是 CONFIG_FILE 指向的 YAML 文件。
func Load() (AppConfig, error) {
	// .env 不存在时忽略
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return AppConfig{}, fmt.Errorf("load .env: %w", err)
	}

	var cfg AppConfig
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		fileCfg, err := loadFile(path)
		if err != nil {
			return AppConfig{}, err
		}
		cfg = fileCfg
	}

	cfg.Port = envOr("PORT", cfg.Port, "8080")
	cfg.ListenAddr = envOr("LISTEN_ADDR", cfg.ListenAddr, fmt.Sprintf(":%s", cfg.Port))
	cfg.DatabasePath = envOr("DATABASE_PATH", cfg.DatabasePath, "quillpost.db")
	cfg.SessionSecret = envOr("SESSION_SECRET", cfg.SessionSecret, "quillpost-dev-secret")
	cfg.GinMode = envOr("GIN_MODE", cfg.GinMode, "release")
	cfg.UploadDir = envOr("UPLOAD_DIR", cfg.UploadDir, "data/uploads")
	cfg.FileURLPath = strings.TrimRight(envOr("FILE_URL_PATH", cfg.FileURLPath, "/files"), "/")
	cfg.LogLevel = envOr("LOG_LEVEL", cfg.LogLevel, "info")

	var err error
	if cfg.SessionTTL, err = durationEnv("SESSION_TTL", cfg.SessionTTL, defaultSessionTTL); err != nil {
		return AppConfig{}, err
	}
	if cfg.FormSubmitTimeout, err = durationEnv("FORM_SUBMIT_TIMEOUT", cfg.FormSubmitTimeout, defaultFormSubmitTimeout); err != nil {
		return AppConfig{}, err
	}

	if raw := strings.TrimSpace(os.Getenv("MAX_UPLOAD_BYTES")); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			return AppConfig{}, fmt.Errorf("invalid MAX_UPLOAD_BYTES %q", raw)
		}
		cfg.MaxUploadBytes = n
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}

	if raw := strings.TrimSpace(os.Getenv("SECURE_COOKIES")); raw != "" {
		cfg.SecureCookies = raw == "true" || raw == "1"
	}

	return cfg, nil
}

func loadFile(path string) (AppConfig, error) {
	var cfg AppConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

func envOr(key, current, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	if strings.TrimSpace(current) != "" {
		return strings.TrimSpace(current)
	}
	return fallback
}

func durationEnv(key string, current, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		if current > 0 {
			return current, nil
		}
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return d, nil
}
