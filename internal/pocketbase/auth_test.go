package pocketbase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/design2deploy2025/inventory-management-sub000/dashboard"
)

type memSessions struct {
	mu      sync.Mutex
	sess    *dashboard.StoredSession
	cleared int
}

func (m *memSessions) SaveSession(_ context.Context, s dashboard.StoredSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sess = &s
	return nil
}

func (m *memSessions) LoadSession(context.Context) (dashboard.StoredSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return dashboard.StoredSession{}, &dashboard.AuthError{Reason: "no stored session"}
	}
	return *m.sess, nil
}

func (m *memSessions) ClearSession(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sess = nil
	m.cleared++
	return nil
}

func (m *memSessions) stored() *dashboard.StoredSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess
}

func TestSignInPersistsAndNotifies(t *testing.T) {
	f := newFakePB(t)
	u := f.addUser("alice@example.com", "hunter22")
	c := f.client(t)
	store := &memSessions{}
	auth := NewAuth(c, store)

	var events []dashboard.AuthEvent
	sub, _ := auth.Watch(func(ev dashboard.AuthEvent) { events = append(events, ev) })
	defer func() { _ = sub.Unsubscribe() }()

	id, err := auth.SignIn(context.Background(), "alice@example.com", "hunter22")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if id.Principal != dashboard.Principal(u.id) || id.Email != "alice@example.com" {
		t.Fatalf("identity = %+v", id)
	}
	if c.Token() == "" {
		t.Fatal("token not installed")
	}
	if s := store.stored(); s == nil || s.Token != c.Token() || s.Principal != id.Principal {
		t.Fatalf("stored = %+v", s)
	}
	if len(events) != 1 || events[0].Kind != dashboard.AuthSignedIn {
		t.Fatalf("events = %+v", events)
	}

	if err := auth.SignOut(context.Background()); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if c.Token() != "" || store.stored() != nil {
		t.Fatal("sign out left session behind")
	}
	if len(events) != 2 || events[1].Kind != dashboard.AuthSignedOut {
		t.Fatalf("events = %+v", events)
	}
}

func TestSignInBadPassword(t *testing.T) {
	f := newFakePB(t)
	f.addUser("alice@example.com", "hunter22")
	auth := NewAuth(f.client(t), nil)
	_, err := auth.SignIn(context.Background(), "alice@example.com", "nope")
	if !errors.Is(err, dashboard.ErrAuth) {
		t.Fatalf("err = %v", err)
	}
}

func TestSignUpThenDuplicate(t *testing.T) {
	f := newFakePB(t)
	auth := NewAuth(f.client(t), &memSessions{})
	id, err := auth.SignUp(context.Background(), "new@example.com", "password1")
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if id.Principal == "" || id.Email != "new@example.com" {
		t.Fatalf("identity = %+v", id)
	}
	_, err = auth.SignUp(context.Background(), "new@example.com", "password1")
	if !errors.Is(err, dashboard.ErrAuth) {
		t.Fatalf("duplicate err = %v", err)
	}
}

func storeToken(t *testing.T, f *fakePB, u fakeUser, ttl time.Duration) *memSessions {
	t.Helper()
	f.mu.Lock()
	tok := f.issueToken(u.id, ttl)
	f.mu.Unlock()
	return &memSessions{sess: &dashboard.StoredSession{Token: tok, Principal: dashboard.Principal(u.id), Email: u.email}}
}

func TestRestoreFreshSessionSkipsRefresh(t *testing.T) {
	f := newFakePB(t)
	u := f.addUser("alice@example.com", "pw")
	store := storeToken(t, f, u, 72*time.Hour)
	c := f.client(t)
	auth := NewAuth(c, store)

	id, err := auth.Restore(context.Background())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if id.Principal != dashboard.Principal(u.id) || c.Token() != store.stored().Token {
		t.Fatalf("identity = %+v", id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refreshes != 0 {
		t.Fatalf("refreshes = %d", f.refreshes)
	}
}

func TestRestoreRefreshesNearExpiry(t *testing.T) {
	f := newFakePB(t)
	u := f.addUser("alice@example.com", "pw")
	store := storeToken(t, f, u, time.Hour)
	old := store.stored().Token
	c := f.client(t)
	auth := NewAuth(c, store)

	id, err := auth.Restore(context.Background())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if id.Principal != dashboard.Principal(u.id) {
		t.Fatalf("identity = %+v", id)
	}
	if store.stored().Token == old || c.Token() != store.stored().Token {
		t.Fatal("token was not rotated")
	}
	exp, err := TokenExpiry(c.Token())
	if err != nil || time.Until(exp) < 24*time.Hour {
		t.Fatalf("new expiry = %v err = %v", exp, err)
	}
}

func TestRestoreExpiredSessionIsCleared(t *testing.T) {
	f := newFakePB(t)
	u := f.addUser("alice@example.com", "pw")
	store := storeToken(t, f, u, -time.Minute)
	c := f.client(t)
	auth := NewAuth(c, store)

	_, err := auth.Restore(context.Background())
	if !errors.Is(err, dashboard.ErrAuth) {
		t.Fatalf("err = %v", err)
	}
	if store.stored() != nil || c.Token() != "" {
		t.Fatal("expired session kept")
	}
}

func TestRestoreRejectedRefreshIsCleared(t *testing.T) {
	f := newFakePB(t)
	u := f.addUser("alice@example.com", "pw")
	store := storeToken(t, f, u, time.Hour)
	// Revoke the token server side.
	f.mu.Lock()
	delete(f.tokens, store.sess.Token)
	f.mu.Unlock()

	auth := NewAuth(f.client(t), store)
	_, err := auth.Restore(context.Background())
	if !errors.Is(err, dashboard.ErrAuth) {
		t.Fatalf("err = %v", err)
	}
	if store.stored() != nil {
		t.Fatal("rejected session kept")
	}
}

func TestKeepFreshRotatesBeforeExpiry(t *testing.T) {
	f := newFakePB(t)
	u := f.addUser("alice@example.com", "pw")
	store := storeToken(t, f, u, time.Hour)
	old := store.stored().Token
	c := f.client(t)
	c.SetToken(old)
	auth := NewAuth(c, store)
	auth.RefreshWindow = time.Hour - time.Second

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		auth.KeepFresh(ctx)
	}()
	waitFor(t, "token refresh", func() bool {
		s := store.stored()
		return s != nil && s.Token != old
	})
	if c.Token() != store.stored().Token {
		t.Fatal("client still on the old token")
	}
	cancel()
	<-done

	f.mu.Lock()
	refreshes := f.refreshes
	f.mu.Unlock()
	if refreshes != 1 {
		t.Fatalf("refreshes = %d", refreshes)
	}
}

func TestKeepFreshRejectedEndsSession(t *testing.T) {
	f := newFakePB(t)
	u := f.addUser("alice@example.com", "pw")
	store := storeToken(t, f, u, time.Hour)
	c := f.client(t)
	c.SetToken(store.stored().Token)
	f.mu.Lock()
	delete(f.tokens, store.sess.Token)
	f.mu.Unlock()

	auth := NewAuth(c, store)
	var mu sync.Mutex
	var events []dashboard.AuthEvent
	if _, err := auth.Watch(func(ev dashboard.AuthEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}); err != nil {
		t.Fatalf("watch: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		auth.KeepFresh(ctx)
	}()
	waitFor(t, "sign-out event", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 1 && events[0].Kind == dashboard.AuthSignedOut
	})
	cancel()
	<-done

	if store.stored() != nil || c.Token() != "" {
		t.Fatal("rejected session kept")
	}
}

func TestRestoreWithoutStore(t *testing.T) {
	f := newFakePB(t)
	_, err := NewAuth(f.client(t), nil).Restore(context.Background())
	if !errors.Is(err, dashboard.ErrAuth) {
		t.Fatalf("err = %v", err)
	}
}

func TestTokenExpiryRejectsGarbage(t *testing.T) {
	if _, err := TokenExpiry("not-a-jwt"); err == nil {
		t.Fatal("expected parse error")
	}
}

// The Session state machine runs on top of the HTTP backend.
func TestSessionOverHTTPBackend(t *testing.T) {
	f := newFakePB(t)
	u := f.addUser("alice@example.com", "pw")
	store := storeToken(t, f, u, 72*time.Hour)
	sess := dashboard.NewSession(NewAuth(f.client(t), store), nil)
	defer func() { _ = sess.Close() }()

	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	p, err := sess.Require(context.Background())
	if err != nil || p != dashboard.Principal(u.id) {
		t.Fatalf("principal = %q err = %v", p, err)
	}
	if err := sess.SignOut(context.Background()); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if sess.Snapshot().State != dashboard.StateAnonymous {
		t.Fatalf("state = %v", sess.Snapshot().State)
	}
}
