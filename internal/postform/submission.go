package postform

import "context"

// Submission is a submission running in the background.
type Submission struct {
	done   chan struct{}
	cancel context.CancelFunc
	result *Result
	err    error
}

// SubmitAsync starts Submit on its own goroutine. Cancel aborts the in-flight
// backend calls; the form then returns to Composing.
func (c *Controller) SubmitAsync(ctx context.Context) *Submission {
	ctx, cancel := context.WithCancel(ctx)
	s := &Submission{done: make(chan struct{}), cancel: cancel}
	go func() {
		defer close(s.done)
		defer cancel()
		s.result, s.err = c.Submit(ctx)
	}()
	return s
}

// Done is closed once the submission finished.
func (s *Submission) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the submission finished and returns its outcome.
func (s *Submission) Wait() (*Result, error) {
	<-s.done
	return s.result, s.err
}

// Cancel aborts the submission.
func (s *Submission) Cancel() {
	s.cancel()
}
