package router

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/quillpost/internal/gate"
	"github.com/quillpost/internal/handler"
	"github.com/quillpost/internal/logging"
	"github.com/quillpost/web"
	"go.uber.org/zap"
)

const sessionCookieName = "quillpost_session"

// Options configure the HTTP engine.
type Options struct {
	SessionSecret string
	SecureCookies bool
	// SessionMaxAge is the cookie lifetime in seconds.
	SessionMaxAge int
	// FileURLPath prefixes preview URLs, "/files" when empty.
	FileURLPath string
	Logger      *zap.Logger
}

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(api *handler.API, opts Options) (*gin.Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(logging.GinMiddleware(logger), gin.Recovery())

	// 配置会话中间件
	store := cookie.NewStore([]byte(opts.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   opts.SessionMaxAge,
		HttpOnly: true,
		Secure:   opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(sessionCookieName, store))

	tmpl, err := web.Templates()
	if err != nil {
		return nil, err
	}
	r.SetHTMLTemplate(tmpl)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	filePrefix := strings.TrimRight(opts.FileURLPath, "/")
	if filePrefix == "" {
		filePrefix = "/files"
	}
	r.GET(filePrefix+"/:id/preview", api.PreviewFile)

	site := r.Group("")
	site.Use(api.SessionMiddleware())
	{
		site.GET("/", api.ShowHome)

		guest := site.Group("")
		guest.Use(gate.Guest().Middleware())
		{
			guest.GET("/login", api.ShowLoginPage)
			guest.POST("/login", api.Login)
			guest.GET("/signup", api.ShowSignupPage)
			guest.POST("/signup", api.Signup)
		}

		// 需要认证的路由
		auth := site.Group("")
		auth.Use(gate.Authenticated().Middleware())
		{
			auth.POST("/logout", api.Logout)
			auth.GET("/all-posts", api.ShowAllPosts)
			auth.GET("/add-post", api.ShowCreateForm)
			auth.POST("/add-post", api.CreatePost)
			auth.GET("/edit-post/:slug", api.ShowEditForm)
			auth.POST("/edit-post/:slug", api.UpdatePost)
			auth.GET("/post/:slug", api.ShowPost)
			auth.POST("/post/:slug/delete", api.DeletePost)
		}
	}

	return r, nil
}
