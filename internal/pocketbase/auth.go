// ABOUTME: Email/password auth against the users collection, with the
// ABOUTME: session persisted locally and refreshed before it expires.
package pocketbase

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/design2deploy2025/inventory-management-sub000/dashboard"
)

// UsersCollection is the PocketBase auth collection.
const UsersCollection = "users"

// DefaultRefreshWindow is how close to expiry a restored token is refreshed.
const DefaultRefreshWindow = 24 * time.Hour

// SessionStore persists the auth session between runs.
type SessionStore interface {
	SaveSession(ctx context.Context, sess dashboard.StoredSession) error
	LoadSession(ctx context.Context) (dashboard.StoredSession, error)
	ClearSession(ctx context.Context) error
}

// Auth implements dashboard.AuthBackend.
type Auth struct {
	c     *Client
	store SessionStore

	// RefreshWindow defaults to DefaultRefreshWindow.
	RefreshWindow time.Duration
	// Now defaults to time.Now.
	Now func() time.Time

	mu        sync.Mutex
	listeners map[int]func(dashboard.AuthEvent)
	nextID    int
}

var _ dashboard.AuthBackend = (*Auth)(nil)

// NewAuth builds the auth backend. store may be nil for a session that
// lives only as long as the process.
func NewAuth(c *Client, store SessionStore) *Auth {
	return &Auth{
		c:             c,
		store:         store,
		RefreshWindow: DefaultRefreshWindow,
		Now:           time.Now,
		listeners:     make(map[int]func(dashboard.AuthEvent)),
	}
}

type authResponse struct {
	Token  string `json:"token"`
	Record struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"record"`
}

func (r authResponse) identity() dashboard.Identity {
	return dashboard.Identity{Principal: dashboard.Principal(r.Record.ID), Email: r.Record.Email}
}

// TokenExpiry reads the exp claim without verifying the signature; the
// server verifies tokens, the client only needs to know when to refresh.
func TokenExpiry(token string) (time.Time, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, errors.New("token has no exp claim")
	}
	return claims.ExpiresAt.Time, nil
}

// Restore loads the stored session, refreshing it when it is about to
// expire. Missing, expired and rejected sessions are AuthErrors and are
// cleared from the store.
func (a *Auth) Restore(ctx context.Context) (dashboard.Identity, error) {
	if a.store == nil {
		return dashboard.Identity{}, &dashboard.AuthError{Reason: "no session store"}
	}
	sess, err := a.store.LoadSession(ctx)
	if err != nil {
		return dashboard.Identity{}, err
	}
	exp, err := TokenExpiry(sess.Token)
	if err != nil {
		a.forget(ctx)
		return dashboard.Identity{}, &dashboard.AuthError{Reason: "stored token unreadable", Err: err}
	}
	now := a.Now()
	if !exp.After(now) {
		a.forget(ctx)
		return dashboard.Identity{}, &dashboard.AuthError{Reason: "session expired"}
	}

	a.c.SetToken(sess.Token)
	id := dashboard.Identity{Principal: sess.Principal, Email: sess.Email}
	if exp.Sub(now) > a.RefreshWindow {
		return id, nil
	}

	refreshed, err := a.refresh(ctx)
	if errors.Is(err, dashboard.ErrAuth) {
		return dashboard.Identity{}, err
	}
	if err != nil {
		// Token still valid; keep it and try again later.
		a.c.log.Warn("refresh session", zap.Error(err))
		return id, nil
	}
	return refreshed, nil
}

// refresh exchanges the current token for a fresh one. A token the server
// rejects is cleared and reported as an AuthError.
func (a *Auth) refresh(ctx context.Context) (dashboard.Identity, error) {
	var resp authResponse
	err := a.c.doJSON(ctx, http.MethodPost, "/api/collections/"+UsersCollection+"/auth-refresh", nil, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status < 500 {
			a.forget(ctx)
			return dashboard.Identity{}, &dashboard.AuthError{Reason: "session rejected", Err: err}
		}
		return dashboard.Identity{}, err
	}
	if err := a.persist(ctx, resp); err != nil {
		return dashboard.Identity{}, err
	}
	return resp.identity(), nil
}

// KeepFresh refreshes the token RefreshWindow before it expires, for as
// long as ctx lives. Long-running processes call it once after Restore or
// SignIn. A rejected refresh ends the session with AuthSignedOut; transient
// failures are retried with backoff.
func (a *Auth) KeepFresh(ctx context.Context) {
	b := newBackoff(a.c.retry)
	for {
		wait := time.Minute
		if exp, err := TokenExpiry(a.c.Token()); err == nil {
			wait = max(exp.Add(-a.RefreshWindow).Sub(a.Now()), 0)
		}
		if !sleep(ctx, wait) {
			return
		}
		if a.c.Token() == "" {
			continue
		}
		if exp, err := TokenExpiry(a.c.Token()); err != nil || exp.Sub(a.Now()) > a.RefreshWindow {
			// Signed in again meanwhile with a fresh token.
			continue
		}
		_, err := a.refresh(ctx)
		switch {
		case err == nil:
			b.reset()
			a.c.log.Debug("session refreshed")
		case errors.Is(err, dashboard.ErrAuth):
			a.c.log.Warn("session ended", zap.Error(err))
			a.emit(dashboard.AuthEvent{Kind: dashboard.AuthSignedOut})
		case ctx.Err() != nil:
			return
		default:
			retry := b.next()
			a.c.log.Warn("refresh session", zap.Error(err), zap.Duration("retry_in", retry))
			if !sleep(ctx, retry) {
				return
			}
		}
	}
}

// SignIn authenticates with email and password.
func (a *Auth) SignIn(ctx context.Context, email, password string) (dashboard.Identity, error) {
	var resp authResponse
	body := map[string]string{"identity": email, "password": password}
	if err := a.c.doJSON(ctx, http.MethodPost, "/api/collections/"+UsersCollection+"/auth-with-password", body, &resp); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status < 500 {
			return dashboard.Identity{}, &dashboard.AuthError{Reason: "invalid credentials", Err: err}
		}
		return dashboard.Identity{}, err
	}
	if err := a.persist(ctx, resp); err != nil {
		return dashboard.Identity{}, err
	}
	id := resp.identity()
	a.emit(dashboard.AuthEvent{Kind: dashboard.AuthSignedIn, Identity: id})
	return id, nil
}

// SignUp creates a user and signs it in.
func (a *Auth) SignUp(ctx context.Context, email, password string) (dashboard.Identity, error) {
	body := map[string]string{
		"email":           email,
		"password":        password,
		"passwordConfirm": password,
	}
	if err := a.c.doJSON(ctx, http.MethodPost, recordsPath(UsersCollection), body, nil); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusBadRequest {
			return dashboard.Identity{}, &dashboard.AuthError{Reason: "sign up rejected: " + apiErr.Message, Err: err}
		}
		return dashboard.Identity{}, err
	}
	return a.SignIn(ctx, email, password)
}

// SignOut drops the token locally. PocketBase tokens are stateless, so
// there is no server call.
func (a *Auth) SignOut(ctx context.Context) error {
	a.c.SetToken("")
	if a.store != nil {
		if err := a.store.ClearSession(ctx); err != nil {
			return err
		}
	}
	a.emit(dashboard.AuthEvent{Kind: dashboard.AuthSignedOut})
	return nil
}

// Watch registers fn for sign-in and sign-out events.
func (a *Auth) Watch(fn func(dashboard.AuthEvent)) (dashboard.Subscription, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	id := a.nextID
	a.listeners[id] = fn
	return dashboard.SubscriptionFunc(func() error {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.listeners, id)
		return nil
	}), nil
}

func (a *Auth) persist(ctx context.Context, resp authResponse) error {
	a.c.SetToken(resp.Token)
	if a.store == nil {
		return nil
	}
	return a.store.SaveSession(ctx, dashboard.StoredSession{
		Token:     resp.Token,
		Principal: dashboard.Principal(resp.Record.ID),
		Email:     resp.Record.Email,
		SavedAt:   a.Now().UTC(),
	})
}

func (a *Auth) forget(ctx context.Context) {
	a.c.SetToken("")
	if a.store == nil {
		return
	}
	if err := a.store.ClearSession(ctx); err != nil {
		a.c.log.Warn("clear session", zap.Error(err))
	}
}

func (a *Auth) emit(ev dashboard.AuthEvent) {
	a.mu.Lock()
	ids := make([]int, 0, len(a.listeners))
	for id := range a.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(dashboard.AuthEvent), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, a.listeners[id])
	}
	a.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}
