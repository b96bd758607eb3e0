// Package postform drives the create/edit workflow of a single post: field
// state, slug derivation, validation and submission to the document and file
// backends.
package postform

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/quillpost/internal/db"
	"github.com/quillpost/internal/service"
	"github.com/quillpost/internal/validation"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Documents is the post storage backend.
type Documents interface {
	CreatePost(ctx context.Context, input service.PostInput) (*db.Post, error)
	UpdatePost(ctx context.Context, slug string, patch service.PostPatch) (*db.Post, error)
	DeletePost(ctx context.Context, slug string) error
}

// Files is the image storage backend.
type Files interface {
	UploadFile(ctx context.Context, upload service.Upload) (string, error)
	DeleteFile(ctx context.Context, id string) error
}

// UserSource reports the logged in user; *session.Store satisfies it.
type UserSource interface {
	CurrentUser() (service.UserRecord, bool)
}

// Mode selects between creating a post and editing an existing one.
type Mode int

const (
	ModeCreate Mode = iota
	ModeEdit
)

// State of the form.
type State int

const (
	StateComposing State = iota
	StateSubmitting
	StateNavigatedAway
)

func (s State) String() string {
	switch s {
	case StateComposing:
		return "composing"
	case StateSubmitting:
		return "submitting"
	case StateNavigatedAway:
		return "navigated-away"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Fields are the editable values of the form.
type Fields struct {
	Title         string `form:"title" validate:"required,max=255"`
	Slug          string `form:"slug" validate:"required,max=64"`
	Content       string `form:"content"`
	ContentFormat string `form:"content_format" validate:"required,oneof=html markdown"`
	Status        string `form:"status" validate:"required,oneof=draft active"`
}

// Result is produced by a successful submission.
type Result struct {
	Post         *db.Post
	RedirectPath string
}

// Options configure a Controller.
type Options struct {
	Mode      Mode
	Existing  *db.Post
	Documents Documents
	Files     Files
	Session   UserSource
	Logger    *zap.Logger
	// Timeout bounds a whole submission; zero means no limit.
	Timeout time.Duration
}

// Controller manages one form instance. At most one submission runs at a time.
type Controller struct {
	mode     Mode
	docs     Documents
	files    Files
	session  UserSource
	logger   *zap.Logger
	timeout  time.Duration
	inflight *semaphore.Weighted

	mu             sync.Mutex
	existing       *db.Post
	initial        Fields
	fields         Fields
	image          *service.Upload
	slugOverridden bool
	titleObservers []func(title string)
	state          State
	err            error
	result         *Result
}

// New creates a controller in the Composing state.
func New(opts Options) (*Controller, error) {
	if opts.Documents == nil || opts.Files == nil || opts.Session == nil {
		return nil, errors.New("postform: documents, files and session are required")
	}
	if opts.Mode == ModeEdit && opts.Existing == nil {
		return nil, errors.New("postform: edit mode needs an existing post")
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Controller{
		mode:     opts.Mode,
		docs:     opts.Documents,
		files:    opts.Files,
		session:  opts.Session,
		logger:   logger,
		timeout:  opts.Timeout,
		inflight: semaphore.NewWeighted(1),
		existing: opts.Existing,
	}

	c.initial = Fields{ContentFormat: db.ContentFormatHTML, Status: db.PostStatusActive}
	if opts.Existing != nil {
		c.initial = Fields{
			Title:         opts.Existing.Title,
			Slug:          opts.Existing.Slug,
			Content:       opts.Existing.Content,
			ContentFormat: opts.Existing.ContentFormat,
			Status:        opts.Existing.Status,
		}
		if c.initial.ContentFormat == "" {
			c.initial.ContentFormat = db.ContentFormatHTML
		}
	}
	c.fields = c.initial

	// The slug is the document identifier once a post exists.
	if c.mode == ModeCreate {
		c.titleObservers = append(c.titleObservers, c.deriveSlugFromTitle)
	}
	return c, nil
}

// Mode reports whether the controller creates or edits.
func (c *Controller) Mode() Mode {
	return c.mode
}

// Fields returns the current field values.
func (c *Controller) Fields() Fields {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fields
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the form-level error of the last failed submission.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// SlugOverridden reports whether the slug was edited by hand since the last reset.
func (c *Controller) SlugOverridden() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slugOverridden
}

// OnTitleChange registers fn to run after each title change.
func (c *Controller) OnTitleChange(fn func(title string)) {
	c.mu.Lock()
	c.titleObservers = append(c.titleObservers, fn)
	c.mu.Unlock()
}

// SetTitle updates the title and notifies the title observers, one of which
// re-derives the slug until it has been overridden.
func (c *Controller) SetTitle(title string) {
	c.mu.Lock()
	if !c.editableLocked() {
		c.mu.Unlock()
		return
	}
	c.fields.Title = title
	observers := append([]func(string){}, c.titleObservers...)
	c.mu.Unlock()

	for _, fn := range observers {
		fn(title)
	}
}

// SetSlug records a manual slug edit. The value is normalized like a derived
// slug and suppresses auto-derivation until Reset. Ignored in edit mode.
func (c *Controller) SetSlug(slug string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == ModeEdit || !c.editableLocked() {
		return
	}
	c.fields.Slug = DeriveSlug(slug)
	c.slugOverridden = true
}

// SetContent updates the body and its format.
func (c *Controller) SetContent(content, format string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.editableLocked() {
		return
	}
	c.fields.Content = content
	if f := strings.ToLower(strings.TrimSpace(format)); f != "" {
		c.fields.ContentFormat = f
	}
}

// SetStatus updates the status field.
func (c *Controller) SetStatus(status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.editableLocked() {
		return
	}
	c.fields.Status = strings.ToLower(strings.TrimSpace(status))
}

// SetImage selects the featured image to upload; nil clears the selection.
func (c *Controller) SetImage(upload *service.Upload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.editableLocked() {
		return
	}
	c.image = upload
}

// Reset restores the initial values and re-enables slug derivation.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateComposing {
		return
	}
	c.fields = c.initial
	c.image = nil
	c.slugOverridden = false
	c.err = nil
}

// Validate checks the fields. It never calls a backend.
func (c *Controller) Validate() error {
	return validateFields(normalized(c.Fields()))
}

// Submit runs the create or edit workflow. A second call while one is in
// flight returns ErrSubmissionInProgress without touching any backend.
func (c *Controller) Submit(ctx context.Context) (*Result, error) {
	if !c.inflight.TryAcquire(1) {
		return nil, ErrSubmissionInProgress
	}
	defer c.inflight.Release(1)

	c.mu.Lock()
	if c.state == StateNavigatedAway {
		c.mu.Unlock()
		return nil, ErrFormClosed
	}
	fields := normalized(c.fields)
	image := c.image
	existing := c.existing
	c.mu.Unlock()

	user, err := c.precheck(fields, image, existing)
	if err != nil {
		c.fail(err)
		return nil, err
	}

	c.setState(StateSubmitting)

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var post *db.Post
	if c.mode == ModeCreate {
		post, err = c.create(ctx, user, fields, image)
	} else {
		post, err = c.update(ctx, fields, image, existing)
	}
	if err != nil {
		c.fail(err)
		return nil, err
	}

	result := &Result{Post: post, RedirectPath: "/post/" + post.Slug}
	c.mu.Lock()
	c.state = StateNavigatedAway
	c.err = nil
	c.result = result
	c.existing = post
	c.mu.Unlock()
	return result, nil
}

func (c *Controller) precheck(fields Fields, image *service.Upload, existing *db.Post) (service.UserRecord, error) {
	user, ok := c.session.CurrentUser()
	if !ok {
		return service.UserRecord{}, ErrUnauthenticated
	}
	if err := validateFields(fields); err != nil {
		return service.UserRecord{}, err
	}
	if c.mode == ModeCreate && image == nil {
		return service.UserRecord{}, ErrMissingImage
	}
	if c.mode == ModeEdit && existing.UserID != user.ID {
		return service.UserRecord{}, ErrNotAuthor
	}
	return user, nil
}

func (c *Controller) create(ctx context.Context, user service.UserRecord, fields Fields, image *service.Upload) (*db.Post, error) {
	fileID, err := c.files.UploadFile(ctx, *image)
	if err != nil {
		return nil, &CollaboratorError{Op: "upload image", Err: err}
	}

	post, err := c.docs.CreatePost(ctx, service.PostInput{
		Slug:            fields.Slug,
		Title:           fields.Title,
		Content:         fields.Content,
		ContentFormat:   fields.ContentFormat,
		FeaturedImageID: fileID,
		Status:          fields.Status,
		UserID:          user.ID,
	})
	if err != nil {
		// The uploaded file is not retracted.
		c.logger.Warn("post creation failed after image upload, stored file is orphaned",
			zap.String("file_id", fileID),
			zap.String("slug", fields.Slug),
			zap.Error(err))
		return nil, &CollaboratorError{Op: "create post", Err: err}
	}

	c.logger.Info("post created", zap.String("slug", post.Slug), zap.Uint("user_id", user.ID))
	return post, nil
}

func (c *Controller) update(ctx context.Context, fields Fields, image *service.Upload, existing *db.Post) (*db.Post, error) {
	patch := service.PostPatch{
		Title:         fields.Title,
		Content:       fields.Content,
		ContentFormat: fields.ContentFormat,
		Status:        fields.Status,
	}

	var newFileID string
	if image != nil {
		id, err := c.files.UploadFile(ctx, *image)
		if err != nil {
			return nil, &CollaboratorError{Op: "upload image", Err: err}
		}
		newFileID = id
		patch.FeaturedImageID = &newFileID
	}

	post, err := c.docs.UpdatePost(ctx, existing.Slug, patch)
	if err != nil {
		if newFileID != "" {
			c.logger.Warn("post update failed after image upload, stored file is orphaned",
				zap.String("file_id", newFileID),
				zap.String("slug", existing.Slug),
				zap.Error(err))
		}
		return nil, &CollaboratorError{Op: "update post", Err: err}
	}

	// The previous image goes only once its replacement is referenced.
	if newFileID != "" && existing.FeaturedImageID != "" && existing.FeaturedImageID != newFileID {
		if err := c.files.DeleteFile(ctx, existing.FeaturedImageID); err != nil {
			c.logger.Warn("failed to delete replaced featured image",
				zap.String("file_id", existing.FeaturedImageID),
				zap.Error(err))
		}
	}

	c.logger.Info("post updated", zap.String("slug", post.Slug))
	return post, nil
}

func (c *Controller) fail(err error) {
	c.mu.Lock()
	c.state = StateComposing
	c.err = err
	c.mu.Unlock()
}

func (c *Controller) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

// editableLocked reports whether fields may change; c.mu must be held.
func (c *Controller) editableLocked() bool {
	return c.state == StateComposing
}

func (c *Controller) deriveSlugFromTitle(title string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.slugOverridden {
		return
	}
	c.fields.Slug = DeriveSlug(title)
}

func normalized(f Fields) Fields {
	f.Title = strings.TrimSpace(f.Title)
	f.Slug = strings.TrimSpace(f.Slug)
	f.ContentFormat = strings.ToLower(strings.TrimSpace(f.ContentFormat))
	f.Status = strings.ToLower(strings.TrimSpace(f.Status))
	return f
}

func validateFields(f Fields) error {
	if err := validation.Struct(f); err != nil {
		var fieldErrs validation.Errors
		if errors.As(err, &fieldErrs) {
			return &ValidationError{Fields: fieldErrs}
		}
		return err
	}
	return nil
}
