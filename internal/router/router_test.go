package router

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quillpost/internal/db"
	"github.com/quillpost/internal/handler"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupEngine(t *testing.T, opts Options) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:router-%d?mode=memory&cache=shared", time.Now().UnixNano())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})

	api := handler.NewAPI(gdb, handler.Options{UploadDir: t.TempDir(), FileURLPath: opts.FileURLPath})
	if opts.SessionSecret == "" {
		opts.SessionSecret = "test-secret"
	}
	r, err := SetupRouter(api, opts)
	if err != nil {
		t.Fatalf("failed to set up router: %v", err)
	}
	return r
}

func TestPing(t *testing.T) {
	r := setupEngine(t, Options{})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ping", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "pong") {
		t.Fatalf("unexpected body, got %q", rr.Body.String())
	}
}

func TestRouteGates(t *testing.T) {
	r := setupEngine(t, Options{})

	tests := []struct {
		name     string
		method   string
		path     string
		status   int
		location string
	}{
		{name: "home is public", method: http.MethodGet, path: "/", status: http.StatusOK},
		{name: "login form for guests", method: http.MethodGet, path: "/login", status: http.StatusOK},
		{name: "signup form for guests", method: http.MethodGet, path: "/signup", status: http.StatusOK},
		{name: "editor needs login", method: http.MethodGet, path: "/add-post", status: http.StatusFound, location: "/login"},
		{name: "edit needs login", method: http.MethodGet, path: "/edit-post/some-post", status: http.StatusFound, location: "/login"},
		{name: "detail needs login", method: http.MethodGet, path: "/post/some-post", status: http.StatusFound, location: "/login"},
		{name: "logout needs login", method: http.MethodPost, path: "/logout", status: http.StatusFound, location: "/login"},
		{name: "unknown preview", method: http.MethodGet, path: "/files/missing/preview", status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(tt.method, tt.path, nil))

			if rr.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, rr.Code)
			}
			if tt.location != "" && rr.Header().Get("Location") != tt.location {
				t.Fatalf("expected redirect to %q, got %q", tt.location, rr.Header().Get("Location"))
			}
		})
	}
}

func TestSetupRouterUsesCustomFilePrefix(t *testing.T) {
	r := setupEngine(t, Options{FileURLPath: "/media/"})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/media/missing/preview", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected preview handler to answer 404, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/files/missing/preview", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected default prefix to be unrouted, got %d", rr.Code)
	}
}
