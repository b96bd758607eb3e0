package postform

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/quillpost/internal/db"
	"github.com/quillpost/internal/service"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	l.calls = append(l.calls, call)
	l.mu.Unlock()
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeDocs struct {
	log       *callLog
	createErr error
	updateErr error
	deleteErr error
	// block, when set, holds create/update until it is closed or ctx ends.
	block   chan struct{}
	entered chan struct{}

	mu        sync.Mutex
	lastInput service.PostInput
	lastPatch service.PostPatch
}

func (f *fakeDocs) wait(ctx context.Context) error {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block == nil {
		return nil
	}
	select {
	case <-f.block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeDocs) CreatePost(ctx context.Context, input service.PostInput) (*db.Post, error) {
	f.log.add("create:" + input.Slug)
	f.mu.Lock()
	f.lastInput = input
	f.mu.Unlock()
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &db.Post{
		ID:              1,
		Slug:            input.Slug,
		Title:           input.Title,
		Content:         input.Content,
		ContentFormat:   input.ContentFormat,
		FeaturedImageID: input.FeaturedImageID,
		Status:          input.Status,
		UserID:          input.UserID,
	}, nil
}

func (f *fakeDocs) UpdatePost(ctx context.Context, slug string, patch service.PostPatch) (*db.Post, error) {
	f.log.add("update:" + slug)
	f.mu.Lock()
	f.lastPatch = patch
	f.mu.Unlock()
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	post := &db.Post{ID: 1, Slug: slug, Title: patch.Title, Status: patch.Status, UserID: 7, FeaturedImageID: "old-image"}
	if patch.FeaturedImageID != nil {
		post.FeaturedImageID = *patch.FeaturedImageID
	}
	return post, nil
}

func (f *fakeDocs) DeletePost(ctx context.Context, slug string) error {
	f.log.add("delete-post:" + slug)
	return f.deleteErr
}

type fakeFiles struct {
	log       *callLog
	uploadErr error
	deleteErr error
	nextID    string
}

func (f *fakeFiles) UploadFile(ctx context.Context, upload service.Upload) (string, error) {
	f.log.add("upload:" + upload.Name)
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	if f.nextID == "" {
		return "new-image", nil
	}
	return f.nextID, nil
}

func (f *fakeFiles) DeleteFile(ctx context.Context, id string) error {
	f.log.add("delete-file:" + id)
	return f.deleteErr
}

type fakeUsers struct {
	user *service.UserRecord
}

func (f fakeUsers) CurrentUser() (service.UserRecord, bool) {
	if f.user == nil {
		return service.UserRecord{}, false
	}
	return *f.user, true
}

var author = &service.UserRecord{ID: 7, Name: "Ada", Email: "ada@example.com"}

func existingPost() *db.Post {
	return &db.Post{
		ID:              1,
		Slug:            "modern-web-dev",
		Title:           "Modern Web Dev",
		Content:         "<p>old</p>",
		ContentFormat:   db.ContentFormatHTML,
		FeaturedImageID: "old-image",
		Status:          db.PostStatusDraft,
		UserID:          author.ID,
	}
}

func cover() *service.Upload {
	return &service.Upload{Name: "cover.png", Reader: strings.NewReader("png")}
}

type harness struct {
	log   *callLog
	docs  *fakeDocs
	files *fakeFiles
}

func newHarness() *harness {
	log := &callLog{}
	return &harness{log: log, docs: &fakeDocs{log: log}, files: &fakeFiles{log: log}}
}

func (h *harness) controller(t *testing.T, mode Mode, existing *db.Post, user *service.UserRecord) *Controller {
	t.Helper()
	c, err := New(Options{
		Mode:      mode,
		Existing:  existing,
		Documents: h.docs,
		Files:     h.files,
		Session:   fakeUsers{user: user},
	})
	require.NoError(t, err)
	return c
}

func TestNewRequiresExistingPostInEditMode(t *testing.T) {
	h := newHarness()
	_, err := New(Options{Mode: ModeEdit, Documents: h.docs, Files: h.files, Session: fakeUsers{}})
	require.Error(t, err)
}

func TestTitleDerivesSlugUntilManualEdit(t *testing.T) {
	c := newHarness().controller(t, ModeCreate, nil, author)

	c.SetTitle("Modern Web Dev!")
	require.Equal(t, "modern-web-dev", c.Fields().Slug)

	c.SetSlug("My Custom Slug")
	require.Equal(t, "my-custom-slug", c.Fields().Slug)
	require.True(t, c.SlugOverridden())

	c.SetTitle("Something else entirely")
	require.Equal(t, "my-custom-slug", c.Fields().Slug)

	c.Reset()
	require.False(t, c.SlugOverridden())
	require.Empty(t, c.Fields().Slug)

	c.SetTitle("After reset")
	require.Equal(t, "after-reset", c.Fields().Slug)
}

func TestTitleObserversAreNotified(t *testing.T) {
	c := newHarness().controller(t, ModeCreate, nil, author)

	var titles []string
	c.OnTitleChange(func(title string) { titles = append(titles, title) })
	c.SetTitle("One")
	c.SetTitle("Two")

	require.Equal(t, []string{"One", "Two"}, titles)
}

func TestEditModeKeepsSlug(t *testing.T) {
	c := newHarness().controller(t, ModeEdit, existingPost(), author)

	c.SetTitle("A brand new title")
	c.SetSlug("other")

	fields := c.Fields()
	require.Equal(t, "modern-web-dev", fields.Slug)
	require.Equal(t, "A brand new title", fields.Title)
	require.Equal(t, db.PostStatusDraft, fields.Status)
}

func TestCreateDefaults(t *testing.T) {
	c := newHarness().controller(t, ModeCreate, nil, author)
	want := Fields{ContentFormat: db.ContentFormatHTML, Status: db.PostStatusActive}
	if diff := cmp.Diff(want, c.Fields()); diff != "" {
		t.Fatalf("unexpected defaults (-want +got):\n%s", diff)
	}
	require.Equal(t, StateComposing, c.State())
}

func TestValidateReportsFieldsWithoutBackendCalls(t *testing.T) {
	h := newHarness()
	c := h.controller(t, ModeCreate, nil, author)
	c.SetTitle("   ")
	c.SetStatus("archived")
	c.SetImage(cover())

	_, err := c.Submit(context.Background())

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "Title is required", verr.Fields["title"])
	require.Equal(t, "Slug is required", verr.Fields["slug"])
	require.Contains(t, verr.Fields["status"], "Status must be one of")
	require.Empty(t, h.log.all())
	require.Equal(t, StateComposing, c.State())
	require.Equal(t, err, c.Err())
}

func TestSubmitRequiresUser(t *testing.T) {
	h := newHarness()
	c := h.controller(t, ModeCreate, nil, nil)
	c.SetTitle("Hello")
	c.SetImage(cover())

	_, err := c.Submit(context.Background())
	require.ErrorIs(t, err, ErrUnauthenticated)
	require.Empty(t, h.log.all())
}

func TestCreateWithoutImageFails(t *testing.T) {
	h := newHarness()
	c := h.controller(t, ModeCreate, nil, author)
	c.SetTitle("Hello")

	_, err := c.Submit(context.Background())
	require.ErrorIs(t, err, ErrMissingImage)
	require.Empty(t, h.log.all())
	require.Equal(t, StateComposing, c.State())
}

func TestCreateUploadsThenCreates(t *testing.T) {
	h := newHarness()
	c := h.controller(t, ModeCreate, nil, author)
	c.SetTitle("Modern Web Dev!")
	c.SetContent("# Hi", "markdown")
	c.SetImage(cover())

	res, err := c.Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, "/post/modern-web-dev", res.RedirectPath)
	require.Equal(t, []string{"upload:cover.png", "create:modern-web-dev"}, h.log.all())

	input := h.docs.lastInput
	require.Equal(t, "new-image", input.FeaturedImageID)
	require.Equal(t, author.ID, input.UserID)
	require.Equal(t, db.ContentFormatMarkdown, input.ContentFormat)
	require.Equal(t, db.PostStatusActive, input.Status)
	require.Equal(t, StateNavigatedAway, c.State())

	_, err = c.Submit(context.Background())
	require.ErrorIs(t, err, ErrFormClosed)
}

func TestCreateFailureLeavesUploadedFile(t *testing.T) {
	h := newHarness()
	h.docs.createErr = service.ErrSlugTaken
	c := h.controller(t, ModeCreate, nil, author)
	c.SetTitle("Taken")
	c.SetImage(cover())

	_, err := c.Submit(context.Background())

	var collabErr *CollaboratorError
	require.ErrorAs(t, err, &collabErr)
	require.Equal(t, "create post", collabErr.Op)
	require.ErrorIs(t, err, service.ErrSlugTaken)
	require.Equal(t, []string{"upload:cover.png", "create:taken"}, h.log.all())
	require.Equal(t, StateComposing, c.State())
	require.EqualError(t, c.Err(), service.ErrSlugTaken.Error())
}

func TestEditReplacesImageAfterUpdate(t *testing.T) {
	h := newHarness()
	c := h.controller(t, ModeEdit, existingPost(), author)
	c.SetTitle("Modern Web Dev, revised")
	c.SetImage(cover())

	res, err := c.Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, "/post/modern-web-dev", res.RedirectPath)
	require.Equal(t, []string{"upload:cover.png", "update:modern-web-dev", "delete-file:old-image"}, h.log.all())
	require.NotNil(t, h.docs.lastPatch.FeaturedImageID)
	require.Equal(t, "new-image", *h.docs.lastPatch.FeaturedImageID)
}

func TestEditUpdateFailureKeepsPreviousImage(t *testing.T) {
	h := newHarness()
	h.docs.updateErr = errors.New("document write rejected")
	c := h.controller(t, ModeEdit, existingPost(), author)
	c.SetImage(cover())

	_, err := c.Submit(context.Background())
	require.Error(t, err)
	require.Equal(t, []string{"upload:cover.png", "update:modern-web-dev"}, h.log.all())
	require.Equal(t, StateComposing, c.State())
}

func TestEditUploadFailureTouchesNothing(t *testing.T) {
	h := newHarness()
	h.files.uploadErr = errors.New("storage quota exceeded")
	c := h.controller(t, ModeEdit, existingPost(), author)
	c.SetImage(cover())

	_, err := c.Submit(context.Background())
	require.ErrorContains(t, err, "storage quota exceeded")
	require.Equal(t, []string{"upload:cover.png"}, h.log.all())
}

func TestEditWithoutImageOmitsField(t *testing.T) {
	h := newHarness()
	c := h.controller(t, ModeEdit, existingPost(), author)
	c.SetStatus("active")

	_, err := c.Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"update:modern-web-dev"}, h.log.all())
	require.Nil(t, h.docs.lastPatch.FeaturedImageID)
	require.Equal(t, db.PostStatusActive, h.docs.lastPatch.Status)
}

func TestEditByOtherUserIsRejected(t *testing.T) {
	h := newHarness()
	intruder := &service.UserRecord{ID: 99, Name: "Mallory"}
	c := h.controller(t, ModeEdit, existingPost(), intruder)

	_, err := c.Submit(context.Background())
	require.ErrorIs(t, err, ErrNotAuthor)
	require.Empty(t, h.log.all())
}

func TestSecondSubmitWhileInFlightIsNoop(t *testing.T) {
	h := newHarness()
	h.docs.block = make(chan struct{})
	h.docs.entered = make(chan struct{}, 1)
	c := h.controller(t, ModeCreate, nil, author)
	c.SetTitle("Once only")
	c.SetImage(cover())

	first := c.SubmitAsync(context.Background())
	<-h.docs.entered
	require.Equal(t, StateSubmitting, c.State())

	_, err := c.Submit(context.Background())
	require.ErrorIs(t, err, ErrSubmissionInProgress)

	// Fields are locked while submitting.
	c.SetTitle("changed")
	require.Equal(t, "Once only", c.Fields().Title)

	close(h.docs.block)
	_, err = first.Wait()
	require.NoError(t, err)

	creates := 0
	for _, call := range h.log.all() {
		if strings.HasPrefix(call, "create:") {
			creates++
		}
	}
	require.Equal(t, 1, creates)
}

func TestSubmitTimesOut(t *testing.T) {
	h := newHarness()
	h.docs.block = make(chan struct{})
	c, err := New(Options{
		Mode:      ModeCreate,
		Documents: h.docs,
		Files:     h.files,
		Session:   fakeUsers{user: author},
		Timeout:   20 * time.Millisecond,
	})
	require.NoError(t, err)
	c.SetTitle("Slow backend")
	c.SetImage(cover())

	_, err = c.Submit(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, StateComposing, c.State())
}

func TestSubmitAsyncCancel(t *testing.T) {
	h := newHarness()
	h.docs.block = make(chan struct{})
	h.docs.entered = make(chan struct{}, 1)
	c := h.controller(t, ModeCreate, nil, author)
	c.SetTitle("Cancelled")
	c.SetImage(cover())

	sub := c.SubmitAsync(context.Background())
	<-h.docs.entered
	sub.Cancel()

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("submission did not finish after cancel")
	}
	_, err := sub.Wait()
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, StateComposing, c.State())
}

func TestDeleteRemovesPostThenImage(t *testing.T) {
	h := newHarness()
	post := existingPost()

	require.NoError(t, Delete(context.Background(), fakeUsers{user: author}, h.docs, h.files, post, nil))
	require.Equal(t, []string{"delete-post:modern-web-dev", "delete-file:old-image"}, h.log.all())
}

func TestDeleteGuards(t *testing.T) {
	h := newHarness()
	post := existingPost()

	require.ErrorIs(t, Delete(context.Background(), fakeUsers{}, h.docs, h.files, post, nil), ErrUnauthenticated)
	require.ErrorIs(t, Delete(context.Background(), fakeUsers{user: &service.UserRecord{ID: 2}}, h.docs, h.files, post, nil), ErrNotAuthor)

	h.docs.deleteErr = service.ErrPostNotFound
	err := Delete(context.Background(), fakeUsers{user: author}, h.docs, h.files, post, nil)
	require.ErrorIs(t, err, service.ErrPostNotFound)
	require.Equal(t, []string{"delete-post:modern-web-dev"}, h.log.all())
}
