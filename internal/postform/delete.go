package postform

import (
	"context"

	"github.com/quillpost/internal/db"
	"go.uber.org/zap"
)

// Delete removes a post and then its featured image. Only the author may
// delete. A failure removing the image is logged; the post is already gone.
func Delete(ctx context.Context, users UserSource, docs Documents, files Files, post *db.Post, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	user, ok := users.CurrentUser()
	if !ok {
		return ErrUnauthenticated
	}
	if post.UserID != user.ID {
		return ErrNotAuthor
	}

	if err := docs.DeletePost(ctx, post.Slug); err != nil {
		return &CollaboratorError{Op: "delete post", Err: err}
	}

	if post.FeaturedImageID != "" {
		if err := files.DeleteFile(ctx, post.FeaturedImageID); err != nil {
			logger.Warn("failed to delete featured image of removed post",
				zap.String("slug", post.Slug),
				zap.String("file_id", post.FeaturedImageID),
				zap.Error(err))
		}
	}

	logger.Info("post deleted", zap.String("slug", post.Slug), zap.Uint("user_id", user.ID))
	return nil
}
