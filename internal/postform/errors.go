package postform

import (
	"errors"

	"github.com/quillpost/internal/validation"
)

var (
	ErrUnauthenticated      = errors.New("you must be logged in to create or edit posts")
	ErrMissingImage         = errors.New("featured image is required")
	ErrSubmissionInProgress = errors.New("a submission is already in progress")
	ErrNotAuthor            = errors.New("only the author can change this post")
	ErrFormClosed           = errors.New("the form has already been submitted")
)

// ValidationError carries per-field messages; no backend call was made.
type ValidationError struct {
	Fields validation.Errors
}

func (e *ValidationError) Error() string {
	return e.Fields.Error()
}

// CollaboratorError wraps a failure from the identity, document or file backend.
type CollaboratorError struct {
	Op  string
	Err error
}

func (e *CollaboratorError) Error() string {
	if e.Err == nil {
		return "something went wrong"
	}
	return e.Err.Error()
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}
