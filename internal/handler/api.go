package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quillpost/internal/service"
	"github.com/quillpost/internal/session"
	"github.com/quillpost/internal/validation"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// API bundles shared dependencies for HTTP handlers.
type API struct {
	db             *gorm.DB
	accounts       *service.AccountService
	posts          *service.PostService
	files          *service.FileService
	logger         *zap.Logger
	submitTimeout  time.Duration
	maxUploadBytes int64
}

// Options configure the handler set.
type Options struct {
	UploadDir      string
	FileURLPath    string
	SessionTTL     time.Duration
	SubmitTimeout  time.Duration
	MaxUploadBytes int64
	Logger         *zap.Logger
}

// NewAPI constructs a handler set with shared services.
func NewAPI(gdb *gorm.DB, opts Options) *API {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &API{
		db:             gdb,
		accounts:       service.NewAccountService(gdb, opts.SessionTTL),
		posts:          service.NewPostService(gdb),
		files:          service.NewFileService(gdb, opts.UploadDir, opts.FileURLPath, opts.MaxUploadBytes),
		logger:         logger,
		submitTimeout:  opts.SubmitTimeout,
		maxUploadBytes: opts.MaxUploadBytes,
	}
}

// DB exposes the underlying gorm instance.
func (a *API) DB() *gorm.DB {
	return a.db
}

// Accounts exposes the identity service, used by the CLI.
func (a *API) Accounts() *service.AccountService {
	return a.accounts
}

// renderHTML adds the session state every page header needs.
func (a *API) renderHTML(c *gin.Context, status int, template string, data gin.H) {
	payload := gin.H{}
	for key, value := range data {
		payload[key] = value
	}

	var user *service.UserRecord
	if store := session.FromContext(c); store != nil {
		if record, ok := store.CurrentUser(); ok {
			user = &record
		}
	}
	if _, exists := payload["authenticated"]; !exists {
		payload["authenticated"] = user != nil
	}
	if _, exists := payload["user"]; !exists {
		payload["user"] = user
	}
	if _, exists := payload["fieldErrors"]; !exists {
		payload["fieldErrors"] = validation.Errors{}
	}
	if _, exists := payload["error"]; !exists {
		payload["error"] = ""
	}

	c.HTML(status, template, payload)
}

func (a *API) renderError(c *gin.Context, status int, message string) {
	a.renderHTML(c, status, "error.html", gin.H{
		"title": "Something went wrong",
		"error": message,
	})
}
