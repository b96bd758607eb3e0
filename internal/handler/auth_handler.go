package handler

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/quillpost/internal/service"
	"github.com/quillpost/internal/session"
	"github.com/quillpost/internal/validation"
	"go.uber.org/zap"
)

const sessionTokenKey = "auth_token"

// SessionMiddleware restores the browser's identity token, probes the
// identity backend and attaches the resulting store to the request.
func (a *API) SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cookie := sessions.Default(c)
		token, _ := cookie.Get(sessionTokenKey).(string)

		store := session.NewStore(a.accounts, token, a.logger)
		store.Initialize(c.Request.Context())

		// 会话已失效时清理 cookie
		if token != "" && store.Token() == "" {
			cookie.Delete(sessionTokenKey)
			if err := cookie.Save(); err != nil {
				a.logger.Warn("failed to clear stale session cookie", zap.Error(err))
			}
		}

		session.Attach(c, store)
		c.Next()
	}
}

// ShowLoginPage 渲染登录页面
func (a *API) ShowLoginPage(c *gin.Context) {
	a.renderHTML(c, http.StatusOK, "login.html", gin.H{
		"title": "Login",
		"email": "",
	})
}

// Login 处理用户登录请求
func (a *API) Login(c *gin.Context) {
	var creds session.Credentials
	if err := c.ShouldBind(&creds); err != nil {
		a.renderHTML(c, http.StatusBadRequest, "login.html", gin.H{"title": "Login", "email": "", "error": "Invalid form submission"})
		return
	}

	store := session.FromContext(c)
	if _, err := store.Login(c.Request.Context(), creds); err != nil {
		status, data := authFailure(err)
		data["title"] = "Login"
		data["email"] = creds.Email
		a.renderHTML(c, status, "login.html", data)
		return
	}

	if err := persistToken(c, store.Token()); err != nil {
		a.logger.Error("failed to save session cookie", zap.Error(err))
		a.renderHTML(c, http.StatusInternalServerError, "login.html", gin.H{"title": "Login", "email": creds.Email, "error": "Could not save the session"})
		return
	}

	c.Redirect(http.StatusSeeOther, "/")
}

// ShowSignupPage 渲染注册页面
func (a *API) ShowSignupPage(c *gin.Context) {
	a.renderHTML(c, http.StatusOK, "signup.html", gin.H{
		"title": "Signup",
		"name":  "",
		"email": "",
	})
}

// Signup creates an account and logs it in.
func (a *API) Signup(c *gin.Context) {
	var reg session.Registration
	if err := c.ShouldBind(&reg); err != nil {
		a.renderHTML(c, http.StatusBadRequest, "signup.html", gin.H{"title": "Signup", "name": "", "email": "", "error": "Invalid form submission"})
		return
	}

	store := session.FromContext(c)
	if _, err := store.Signup(c.Request.Context(), reg); err != nil {
		status, data := authFailure(err)
		data["title"] = "Signup"
		data["name"] = reg.Name
		data["email"] = reg.Email
		a.renderHTML(c, status, "signup.html", data)
		return
	}

	if err := persistToken(c, store.Token()); err != nil {
		a.logger.Error("failed to save session cookie", zap.Error(err))
		a.renderError(c, http.StatusInternalServerError, "Could not save the session")
		return
	}

	c.Redirect(http.StatusSeeOther, "/")
}

// Logout 处理用户登出；后端确认销毁会话后才清除 cookie。
func (a *API) Logout(c *gin.Context) {
	store := session.FromContext(c)
	if err := store.Logout(c.Request.Context()); err != nil {
		a.logger.Error("logout failed", zap.Error(err))
		a.renderError(c, http.StatusBadGateway, "Logout failed, please try again")
		return
	}

	if err := persistToken(c, ""); err != nil {
		a.logger.Warn("failed to clear session cookie", zap.Error(err))
	}
	c.Redirect(http.StatusSeeOther, "/login")
}

func persistToken(c *gin.Context, token string) error {
	cookie := sessions.Default(c)
	if token == "" {
		cookie.Delete(sessionTokenKey)
	} else {
		cookie.Set(sessionTokenKey, token)
	}
	return cookie.Save()
}

func authFailure(err error) (int, gin.H) {
	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		return http.StatusUnprocessableEntity, gin.H{"fieldErrors": fieldErrs}
	}

	if errors.Is(err, service.ErrEmailTaken) {
		return http.StatusConflict, gin.H{"error": err.Error()}
	}

	var authErr *session.AuthError
	if errors.As(err, &authErr) {
		return http.StatusUnauthorized, gin.H{"error": authErr.Error()}
	}
	return http.StatusInternalServerError, gin.H{"error": "Something went wrong"}
}
