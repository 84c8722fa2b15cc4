// ABOUTME: Session tracks the signed-in principal for one process. It has a
// ABOUTME: single owner and is passed to everything that needs the principal.
package dashboard

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// SessionState is the auth lifecycle position.
type SessionState int

const (
	StateInitializing SessionState = iota
	StateAuthenticated
	StateAnonymous
)

func (s SessionState) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	}
	return "unknown"
}

// Identity is the signed-in user.
type Identity struct {
	Principal Principal
	Email     string
}

// AuthEventKind distinguishes sign-in from sign-out notifications.
type AuthEventKind int

const (
	AuthSignedIn AuthEventKind = iota + 1
	AuthSignedOut
)

// AuthEvent is emitted by an AuthBackend when its session changes.
type AuthEvent struct {
	Kind     AuthEventKind
	Identity Identity
}

// AuthBackend is the email/password auth service with session persistence.
type AuthBackend interface {
	// Restore loads the persisted session. A missing or expired session is
	// reported as an AuthError.
	Restore(ctx context.Context) (Identity, error)
	SignIn(ctx context.Context, email, password string) (Identity, error)
	SignUp(ctx context.Context, email, password string) (Identity, error)
	SignOut(ctx context.Context) error
	Watch(fn func(AuthEvent)) (Subscription, error)
}

// SessionSnapshot is what Session watchers receive.
type SessionSnapshot struct {
	State    SessionState
	Identity Identity
}

// Session is the auth state machine: Initializing, then Authenticated or
// Anonymous, following backend events until Close.
type Session struct {
	backend AuthBackend
	log     *zap.Logger

	mu        sync.Mutex
	state     SessionState
	identity  Identity
	ready     chan struct{}
	sub       Subscription
	closed    bool
	watchers  map[int]func(SessionSnapshot)
	nextWatch int
}

// NewSession returns a session in the Initializing state.
func NewSession(backend AuthBackend, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		backend:  backend,
		log:      log,
		ready:    make(chan struct{}),
		watchers: make(map[int]func(SessionSnapshot)),
	}
}

// Start subscribes to backend events and restores the persisted session.
// An absent or expired session leaves the state Anonymous and is not an
// error; other restore failures are returned after the transition.
func (s *Session) Start(ctx context.Context) error {
	sub, err := s.backend.Watch(s.handle)
	if err != nil {
		s.transition(StateAnonymous, Identity{})
		return err
	}
	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()

	id, err := s.backend.Restore(ctx)
	if err != nil {
		s.transition(StateAnonymous, Identity{})
		var ae *AuthError
		if errors.As(err, &ae) {
			s.log.Warn("no usable session", zap.String("reason", ae.Reason))
			return nil
		}
		return err
	}
	s.transition(StateAuthenticated, id)
	return nil
}

// SignIn authenticates with email and password.
func (s *Session) SignIn(ctx context.Context, email, password string) (Identity, error) {
	id, err := s.backend.SignIn(ctx, email, password)
	if err != nil {
		return Identity{}, err
	}
	s.transition(StateAuthenticated, id)
	return id, nil
}

// SignUp creates an account and signs it in.
func (s *Session) SignUp(ctx context.Context, email, password string) (Identity, error) {
	id, err := s.backend.SignUp(ctx, email, password)
	if err != nil {
		return Identity{}, err
	}
	s.transition(StateAuthenticated, id)
	return id, nil
}

// SignOut clears the session.
func (s *Session) SignOut(ctx context.Context) error {
	if err := s.backend.SignOut(ctx); err != nil {
		return err
	}
	s.transition(StateAnonymous, Identity{})
	return nil
}

// Require blocks while Initializing and returns the principal, or an
// AuthError when nobody is signed in.
func (s *Session) Require(ctx context.Context) (Principal, error) {
	select {
	case <-s.ready:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	snap := s.Snapshot()
	if snap.State != StateAuthenticated {
		return "", &AuthError{Reason: "sign in required"}
	}
	return snap.Identity.Principal, nil
}

// Snapshot returns the current state.
func (s *Session) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionSnapshot{State: s.state, Identity: s.identity}
}

// Principal returns the signed-in principal or "".
func (s *Session) Principal() Principal {
	return s.Snapshot().Identity.Principal
}

// Watch registers fn for state changes. The returned func removes it.
func (s *Session) Watch(fn func(SessionSnapshot)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextWatch++
	id := s.nextWatch
	s.watchers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers, id)
	}
}

// Close releases the backend subscription. The session ignores further
// events.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()
	if sub != nil {
		return sub.Unsubscribe()
	}
	return nil
}

func (s *Session) handle(ev AuthEvent) {
	switch ev.Kind {
	case AuthSignedIn:
		s.transition(StateAuthenticated, ev.Identity)
	case AuthSignedOut:
		s.transition(StateAnonymous, Identity{})
	}
}

func (s *Session) transition(state SessionState, id Identity) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.state == state && s.identity == id {
		s.mu.Unlock()
		return
	}
	prev := s.state
	s.state = state
	s.identity = id
	if prev == StateInitializing {
		close(s.ready)
	}
	snap := SessionSnapshot{State: state, Identity: id}
	ids := make([]int, 0, len(s.watchers))
	for k := range s.watchers {
		ids = append(ids, k)
	}
	sort.Ints(ids)
	fns := make([]func(SessionSnapshot), 0, len(ids))
	for _, k := range ids {
		fns = append(fns, s.watchers[k])
	}
	s.mu.Unlock()

	s.log.Info("session state", zap.Stringer("state", state), zap.String("principal", string(id.Principal)))
	for _, fn := range fns {
		fn(snap)
	}
}
