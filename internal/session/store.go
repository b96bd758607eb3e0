// Package session holds the authentication state of one browser session and
// keeps it in sync with the identity backend.
package session

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/quillpost/internal/service"
	"github.com/quillpost/internal/validation"
	"go.uber.org/zap"
)

// Identity is the account backend the store delegates to.
type Identity interface {
	Login(ctx context.Context, email, password string) (string, error)
	Logout(ctx context.Context, token string) error
	CurrentUser(ctx context.Context, token string) (service.UserRecord, error)
	Register(ctx context.Context, name, email, password string) error
}

// Session is a snapshot of the authentication state.
type Session struct {
	IsAuthenticated bool
	User            *service.UserRecord
}

// Credentials are submitted by the login form.
type Credentials struct {
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"required,min=6"`
}

// Registration is submitted by the signup form.
type Registration struct {
	Name     string `form:"name" validate:"required,min=3"`
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"required,min=6"`
}

// AuthError reports a failed login, signup or logout.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return e.Err.Error()
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Store owns the session state. All writes go through Initialize, Login, Signup
// and Logout; every write is delivered to the subscribers.
type Store struct {
	identity Identity
	logger   *zap.Logger

	mu     sync.RWMutex
	token  string
	state  Session
	subs   map[int]func(Session)
	nextID int
}

// NewStore creates an unauthenticated store. token is the identity session
// token restored from the browser, possibly empty.
func NewStore(identity Identity, token string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		identity: identity,
		logger:   logger,
		token:    token,
		subs:     make(map[int]func(Session)),
	}
}

// Initialize probes the identity backend for the current session. A missing
// or invalid session leaves the store unauthenticated; it is not an error.
func (s *Store) Initialize(ctx context.Context) {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()

	if token == "" {
		s.set("", Session{})
		return
	}

	user, err := s.identity.CurrentUser(ctx, token)
	if err != nil {
		if !errors.Is(err, service.ErrSessionNotFound) {
			s.logger.Warn("session probe failed", zap.Error(err))
		}
		s.set("", Session{})
		return
	}
	s.set(token, Session{IsAuthenticated: true, User: &user})
}

// Login verifies credentials with the identity backend and stores the new
// session. On failure the stored state is left untouched.
func (s *Store) Login(ctx context.Context, creds Credentials) (service.UserRecord, error) {
	if err := validation.Struct(creds); err != nil {
		return service.UserRecord{}, err
	}

	token, err := s.identity.Login(ctx, creds.Email, creds.Password)
	if err != nil {
		return service.UserRecord{}, &AuthError{Op: "login", Err: err}
	}

	user, err := s.identity.CurrentUser(ctx, token)
	if err != nil {
		return service.UserRecord{}, &AuthError{Op: "login", Err: err}
	}

	s.set(token, Session{IsAuthenticated: true, User: &user})
	s.logger.Info("user logged in", zap.Uint("user_id", user.ID))
	return user, nil
}

// Signup creates an account and logs it in.
func (s *Store) Signup(ctx context.Context, reg Registration) (service.UserRecord, error) {
	if err := validation.Struct(reg); err != nil {
		return service.UserRecord{}, err
	}

	if err := s.identity.Register(ctx, reg.Name, reg.Email, reg.Password); err != nil {
		return service.UserRecord{}, &AuthError{Op: "signup", Err: err}
	}
	return s.Login(ctx, Credentials{Email: reg.Email, Password: reg.Password})
}

// Logout destroys the session at the identity backend. Local state is only
// cleared once the backend confirmed, so a failed logout keeps the user
// logged in.
func (s *Store) Logout(ctx context.Context) error {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()

	if err := s.identity.Logout(ctx, token); err != nil {
		return &AuthError{Op: "logout", Err: err}
	}
	s.set("", Session{})
	return nil
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Token returns the identity session token, empty when logged out.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// CurrentUser returns the logged in user, if any.
func (s *Store) CurrentUser() (service.UserRecord, bool) {
	state := s.Snapshot()
	if !state.IsAuthenticated || state.User == nil {
		return service.UserRecord{}, false
	}
	return *state.User, true
}

// Subscribe registers fn to be called after every state change, in
// subscription order. The returned func cancels the subscription.
func (s *Store) Subscribe(fn func(Session)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) set(token string, state Session) {
	s.mu.Lock()
	s.token = token
	s.state = state

	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	subs := make([]func(Session), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, s.subs[id])
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(state)
	}
}
