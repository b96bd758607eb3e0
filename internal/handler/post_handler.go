package handler

import (
	"errors"
	"html/template"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/quillpost/internal/db"
	"github.com/quillpost/internal/postform"
	"github.com/quillpost/internal/service"
	"github.com/quillpost/internal/session"
	"github.com/quillpost/internal/validation"
	"go.uber.org/zap"
)

var errMissingSession = errors.New("session middleware is not installed")

const (
	homePostLimit  = 6
	cardTitleRunes = 50
)

// postCard is the list representation of a post.
type postCard struct {
	Slug      string
	Title     string
	Excerpt   string
	ImageURL  string
	Author    string
	CreatedAt time.Time
}

// postView is the detail page representation of a post.
type postView struct {
	Slug      string
	Title     string
	ImageURL  string
	Author    string
	Status    string
	CreatedAt time.Time
	Body      template.HTML
}

// ShowHome 渲染首页，展示最新的文章
func (a *API) ShowHome(c *gin.Context) {
	a.renderPostList(c, "home.html", "Home", homePostLimit)
}

// ShowAllPosts 渲染全部文章列表
func (a *API) ShowAllPosts(c *gin.Context) {
	a.renderPostList(c, "posts.html", "All Posts", 0)
}

func (a *API) renderPostList(c *gin.Context, tmpl, title string, limit int) {
	posts, err := a.posts.ListPosts(c.Request.Context(), service.PostFilter{Status: db.PostStatusActive, Limit: limit})
	if err != nil {
		a.logger.Error("failed to list posts", zap.Error(err))
		a.renderError(c, http.StatusInternalServerError, "Failed to load posts")
		return
	}

	cards := make([]postCard, 0, len(posts))
	for _, post := range posts {
		cards = append(cards, a.toCard(post))
	}
	a.renderHTML(c, http.StatusOK, tmpl, gin.H{"title": title, "posts": cards})
}

func (a *API) toCard(post db.Post) postCard {
	title := post.Title
	if utf8.RuneCountInString(title) > cardTitleRunes {
		title = string([]rune(title)[:cardTitleRunes]) + "…"
	}
	return postCard{
		Slug:      post.Slug,
		Title:     title,
		Excerpt:   excerpt(post.Content, post.ContentFormat),
		ImageURL:  a.files.PreviewURL(post.FeaturedImageID),
		Author:    post.User.Name,
		CreatedAt: post.CreatedAt,
	}
}

// ShowPost 渲染文章详情；草稿只对作者可见
func (a *API) ShowPost(c *gin.Context) {
	post, ok := a.loadPost(c)
	if !ok {
		return
	}

	isAuthor := a.isAuthor(c, post)
	if !post.IsActive() && !isAuthor {
		a.renderError(c, http.StatusNotFound, "Post not found")
		return
	}

	body, err := renderContent(post.Content, post.ContentFormat)
	if err != nil {
		a.logger.Error("failed to render post content", zap.String("slug", post.Slug), zap.Error(err))
		a.renderError(c, http.StatusInternalServerError, "Failed to render post")
		return
	}

	a.renderHTML(c, http.StatusOK, "post.html", gin.H{
		"title":    post.Title,
		"isAuthor": isAuthor,
		"post": postView{
			Slug:      post.Slug,
			Title:     post.Title,
			ImageURL:  a.files.PreviewURL(post.FeaturedImageID),
			Author:    post.User.Name,
			Status:    post.Status,
			CreatedAt: post.CreatedAt,
			Body:      body,
		},
	})
}

// DeletePost removes a post and its featured image.
func (a *API) DeletePost(c *gin.Context) {
	post, ok := a.loadPost(c)
	if !ok {
		return
	}

	store := session.FromContext(c)
	if store == nil {
		c.Redirect(http.StatusFound, "/login")
		return
	}

	err := postform.Delete(c.Request.Context(), store, a.posts, a.files, post, a.logger)
	switch {
	case err == nil:
		c.Redirect(http.StatusSeeOther, "/")
	case errors.Is(err, postform.ErrUnauthenticated):
		c.Redirect(http.StatusFound, "/login")
	case errors.Is(err, postform.ErrNotAuthor):
		a.renderError(c, http.StatusForbidden, err.Error())
	default:
		a.logger.Error("failed to delete post", zap.String("slug", post.Slug), zap.Error(err))
		a.renderError(c, http.StatusInternalServerError, "Failed to delete post")
	}
}

// ShowCreateForm 渲染新建文章表单
func (a *API) ShowCreateForm(c *gin.Context) {
	form, err := a.newPostForm(c, nil)
	if err != nil {
		a.renderError(c, http.StatusInternalServerError, "Failed to open the editor")
		return
	}
	a.renderPostForm(c, http.StatusOK, form, nil, nil)
}

// CreatePost 处理新建文章提交
func (a *API) CreatePost(c *gin.Context) {
	form, err := a.newPostForm(c, nil)
	if err != nil {
		a.renderError(c, http.StatusInternalServerError, "Failed to open the editor")
		return
	}
	a.submitPostForm(c, form, nil)
}

// ShowEditForm 渲染编辑表单，仅作者可用
func (a *API) ShowEditForm(c *gin.Context) {
	post, ok := a.loadPost(c)
	if !ok {
		return
	}
	if !a.isAuthor(c, post) {
		a.renderError(c, http.StatusForbidden, postform.ErrNotAuthor.Error())
		return
	}

	form, err := a.newPostForm(c, post)
	if err != nil {
		a.renderError(c, http.StatusInternalServerError, "Failed to open the editor")
		return
	}
	a.renderPostForm(c, http.StatusOK, form, post, nil)
}

// UpdatePost 处理编辑提交
func (a *API) UpdatePost(c *gin.Context) {
	post, ok := a.loadPost(c)
	if !ok {
		return
	}

	form, err := a.newPostForm(c, post)
	if err != nil {
		a.renderError(c, http.StatusInternalServerError, "Failed to open the editor")
		return
	}
	a.submitPostForm(c, form, post)
}

func (a *API) newPostForm(c *gin.Context, existing *db.Post) (*postform.Controller, error) {
	store := session.FromContext(c)
	if store == nil {
		return nil, errMissingSession
	}

	mode := postform.ModeCreate
	if existing != nil {
		mode = postform.ModeEdit
	}
	form, err := postform.New(postform.Options{
		Mode:      mode,
		Existing:  existing,
		Documents: a.posts,
		Files:     a.files,
		Session:   store,
		Logger:    a.logger,
		Timeout:   a.submitTimeout,
	})
	if err != nil {
		a.logger.Error("failed to build post form", zap.Error(err))
	}
	return form, err
}

func (a *API) submitPostForm(c *gin.Context, form *postform.Controller, existing *db.Post) {
	var fields postform.Fields
	if err := c.ShouldBind(&fields); err != nil {
		a.renderPostForm(c, http.StatusBadRequest, form, existing, errors.New("Invalid form submission"))
		return
	}

	form.SetTitle(fields.Title)
	if fields.Slug != "" && fields.Slug != postform.DeriveSlug(fields.Title) {
		form.SetSlug(fields.Slug)
	}
	form.SetContent(fields.Content, fields.ContentFormat)
	form.SetStatus(fields.Status)

	image, release, err := formImage(c, "image")
	defer release()
	if err != nil {
		a.renderPostForm(c, http.StatusUnprocessableEntity, form, existing, &postform.ValidationError{
			Fields: validation.Errors{"image": err.Error()},
		})
		return
	}
	if image != nil {
		form.SetImage(image)
	}

	result, err := form.Submit(c.Request.Context())
	if err != nil {
		a.handleSubmitError(c, form, existing, err)
		return
	}
	c.Redirect(http.StatusSeeOther, result.RedirectPath)
}

func (a *API) handleSubmitError(c *gin.Context, form *postform.Controller, existing *db.Post, err error) {
	var validationErr *postform.ValidationError
	switch {
	case errors.As(err, &validationErr):
		a.renderPostForm(c, http.StatusUnprocessableEntity, form, existing, err)
	case errors.Is(err, postform.ErrMissingImage):
		a.renderPostForm(c, http.StatusUnprocessableEntity, form, existing, &postform.ValidationError{
			Fields: validation.Errors{"image": "Featured image is required"},
		})
	case errors.Is(err, postform.ErrUnauthenticated):
		c.Redirect(http.StatusFound, "/login")
	case errors.Is(err, postform.ErrNotAuthor):
		a.renderError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, postform.ErrSubmissionInProgress):
		a.renderPostForm(c, http.StatusConflict, form, existing, err)
	case errors.Is(err, service.ErrSlugTaken),
		errors.Is(err, service.ErrUnsupportedImage),
		errors.Is(err, service.ErrFileTooLarge),
		errors.Is(err, service.ErrEmptyUpload):
		a.renderPostForm(c, http.StatusUnprocessableEntity, form, existing, err)
	default:
		a.logger.Error("post submission failed", zap.Error(err))
		a.renderPostForm(c, http.StatusInternalServerError, form, existing, errors.New("Something went wrong, please try again"))
	}
}

// renderPostForm shows the editor with the controller's current values.
// A ValidationError is shown next to the fields, other errors at the top.
func (a *API) renderPostForm(c *gin.Context, status int, form *postform.Controller, existing *db.Post, err error) {
	data := gin.H{
		"title":    "Add Post",
		"editing":  false,
		"action":   "/add-post",
		"fields":   form.Fields(),
		"imageURL": "",
	}
	if existing != nil {
		data["title"] = "Edit Post"
		data["editing"] = true
		data["action"] = "/edit-post/" + existing.Slug
		data["imageURL"] = a.files.PreviewURL(existing.FeaturedImageID)
	}

	var validationErr *postform.ValidationError
	switch {
	case errors.As(err, &validationErr):
		data["fieldErrors"] = validationErr.Fields
	case err != nil:
		data["error"] = err.Error()
	}
	a.renderHTML(c, status, "post_form.html", data)
}

func (a *API) loadPost(c *gin.Context) (*db.Post, bool) {
	post, err := a.posts.GetPost(c.Request.Context(), c.Param("slug"))
	if err != nil {
		if errors.Is(err, service.ErrPostNotFound) {
			a.renderError(c, http.StatusNotFound, "Post not found")
		} else {
			a.logger.Error("failed to load post", zap.String("slug", c.Param("slug")), zap.Error(err))
			a.renderError(c, http.StatusInternalServerError, "Failed to load post")
		}
		return nil, false
	}
	return post, true
}

func (a *API) isAuthor(c *gin.Context, post *db.Post) bool {
	store := session.FromContext(c)
	if store == nil {
		return false
	}
	user, ok := store.CurrentUser()
	return ok && user.ID == post.UserID
}
