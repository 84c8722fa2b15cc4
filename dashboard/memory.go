// ABOUTME: In-process Gateway with the same scoping and change-feed semantics
// ABOUTME: as the hosted backend. Used for offline demos and tests.
package dashboard

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// MemoryGateway stores rows in memory, keyed by collection.
type MemoryGateway struct {
	mu        sync.Mutex
	rows      map[string][]Record
	listeners map[string]map[int]memoryListener
	nextSub   int
	failNext  map[string]error

	// Now stamps created/updated. Defaults to time.Now.
	Now func() time.Time
}

type memoryListener struct {
	scope    Principal
	onChange func(ChangeEvent)
}

// NewMemoryGateway returns an empty gateway.
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		rows:      make(map[string][]Record),
		listeners: make(map[string]map[int]memoryListener),
		failNext:  make(map[string]error),
		Now:       time.Now,
	}
}

// FailNext makes the next write against collection fail with err.
func (g *MemoryGateway) FailNext(collection string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failNext[collection] = err
}

func (g *MemoryGateway) takeFailure(collection string) error {
	err, ok := g.failNext[collection]
	if ok {
		delete(g.failNext, collection)
	}
	return err
}

// List returns the rows owned by scope, ordered by orderBy ("-field" for
// descending, "" for insertion order).
func (g *MemoryGateway) List(ctx context.Context, collection string, scope Principal, orderBy string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, &FetchError{Collection: collection, Err: err}
	}
	if scope == "" {
		return nil, &FetchError{Collection: collection, Err: &AuthError{Reason: "no principal"}}
	}
	g.mu.Lock()
	var out []Record
	for _, r := range g.rows[collection] {
		if r.Owner() == scope {
			out = append(out, r.Clone())
		}
	}
	g.mu.Unlock()
	sortRecords(out, orderBy)
	return out, nil
}

// Insert stores rec with a generated id.
func (g *MemoryGateway) Insert(ctx context.Context, collection string, scope Principal, rec Record) (Record, error) {
	fail := func(err error) (Record, error) {
		return nil, &WriteError{Op: "insert", Collection: collection, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	if scope == "" {
		return fail(&AuthError{Reason: "no principal"})
	}
	if rec.Owner() != scope {
		return fail(ErrScopeMismatch)
	}

	g.mu.Lock()
	if err := g.takeFailure(collection); err != nil {
		g.mu.Unlock()
		return fail(err)
	}
	stored := rec.Clone()
	stored["id"] = strings.ToLower(ulid.Make().String())
	now := FormatTime(g.Now())
	stored["created"] = now
	stored["updated"] = now
	g.rows[collection] = append(g.rows[collection], stored)
	listeners := g.listenersFor(collection, scope)
	g.mu.Unlock()

	g.emit(listeners, ChangeEvent{Collection: collection, Action: ActionCreate, RecordID: stored.ID(), Record: stored.Clone()})
	return stored.Clone(), nil
}

// Update merges patch into the row with id.
func (g *MemoryGateway) Update(ctx context.Context, collection, id string, patch Record, scope Principal) (Record, error) {
	fail := func(err error) (Record, error) {
		return nil, &WriteError{Op: "update", Collection: collection, ID: id, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	if scope == "" {
		return fail(&AuthError{Reason: "no principal"})
	}
	if _, ok := patch[OwnerField]; ok && patch.Owner() != scope {
		return fail(ErrScopeMismatch)
	}

	g.mu.Lock()
	idx, err := g.locate(collection, id, scope)
	if err == nil {
		err = g.takeFailure(collection)
	}
	if err != nil {
		g.mu.Unlock()
		return fail(err)
	}
	row := g.rows[collection][idx].Clone()
	for k, v := range patch {
		if k == "id" || k == "created" {
			continue
		}
		row[k] = v
	}
	row["updated"] = FormatTime(g.Now())
	g.rows[collection][idx] = row
	listeners := g.listenersFor(collection, scope)
	g.mu.Unlock()

	g.emit(listeners, ChangeEvent{Collection: collection, Action: ActionUpdate, RecordID: id, Record: row.Clone()})
	return row.Clone(), nil
}

// Delete removes the row with id.
func (g *MemoryGateway) Delete(ctx context.Context, collection, id string, scope Principal) error {
	fail := func(err error) error {
		return &WriteError{Op: "delete", Collection: collection, ID: id, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	if scope == "" {
		return fail(&AuthError{Reason: "no principal"})
	}

	g.mu.Lock()
	idx, err := g.locate(collection, id, scope)
	if err == nil {
		err = g.takeFailure(collection)
	}
	if err != nil {
		g.mu.Unlock()
		return fail(err)
	}
	row := g.rows[collection][idx]
	g.rows[collection] = append(g.rows[collection][:idx:idx], g.rows[collection][idx+1:]...)
	listeners := g.listenersFor(collection, scope)
	g.mu.Unlock()

	g.emit(listeners, ChangeEvent{Collection: collection, Action: ActionDelete, RecordID: id, Record: row.Clone()})
	return nil
}

// Subscribe registers onChange for rows of collection owned by scope.
// Events are delivered synchronously on the writer's goroutine.
func (g *MemoryGateway) Subscribe(ctx context.Context, collection string, scope Principal, onChange func(ChangeEvent)) (Subscription, error) {
	if scope == "" {
		return nil, &AuthError{Reason: "no principal"}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextSub++
	id := g.nextSub
	if g.listeners[collection] == nil {
		g.listeners[collection] = make(map[int]memoryListener)
	}
	g.listeners[collection][id] = memoryListener{scope: scope, onChange: onChange}
	return SubscriptionFunc(func() error {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.listeners[collection], id)
		return nil
	}), nil
}

// Disconnect ends every live subscription with an ActionClosed event
// carrying err, as a hosted feed does when it loses the session.
func (g *MemoryGateway) Disconnect(err error) {
	g.mu.Lock()
	type closed struct {
		collection string
		fn         func(ChangeEvent)
	}
	var out []closed
	colls := make([]string, 0, len(g.listeners))
	for c := range g.listeners {
		colls = append(colls, c)
	}
	sort.Strings(colls)
	for _, c := range colls {
		ids := make([]int, 0, len(g.listeners[c]))
		for id := range g.listeners[c] {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		for _, id := range ids {
			out = append(out, closed{collection: c, fn: g.listeners[c][id].onChange})
		}
		delete(g.listeners, c)
	}
	g.mu.Unlock()
	for _, cl := range out {
		cl.fn(ChangeEvent{Collection: cl.collection, Action: ActionClosed, Err: err})
	}
}

// Subscribers reports how many live subscriptions collection has.
func (g *MemoryGateway) Subscribers(collection string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.listeners[collection])
}

func (g *MemoryGateway) locate(collection, id string, scope Principal) (int, error) {
	for i, r := range g.rows[collection] {
		if r.ID() != id {
			continue
		}
		if r.Owner() != scope {
			return -1, ErrScopeMismatch
		}
		return i, nil
	}
	return -1, ErrNotFound
}

func (g *MemoryGateway) listenersFor(collection string, scope Principal) []func(ChangeEvent) {
	ids := make([]int, 0, len(g.listeners[collection]))
	for id, l := range g.listeners[collection] {
		if l.scope == scope {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	out := make([]func(ChangeEvent), 0, len(ids))
	for _, id := range ids {
		out = append(out, g.listeners[collection][id].onChange)
	}
	return out
}

func (g *MemoryGateway) emit(listeners []func(ChangeEvent), ev ChangeEvent) {
	for _, fn := range listeners {
		fn(ev)
	}
}

func sortRecords(rows []Record, orderBy string) {
	key := strings.TrimSpace(orderBy)
	if key == "" {
		return
	}
	desc := strings.HasPrefix(key, "-")
	key = strings.TrimPrefix(strings.TrimPrefix(key, "-"), "+")
	sort.SliceStable(rows, func(i, j int) bool {
		c := compareValues(rows[i], rows[j], key)
		if desc {
			return c > 0
		}
		return c < 0
	})
}

func compareValues(a, b Record, key string) int {
	switch a[key].(type) {
	case float64, int, int64:
		return a.Decimal(key).Cmp(b.Decimal(key))
	}
	if ta, tb := a.Time(key), b.Time(key); !ta.IsZero() || !tb.IsZero() {
		return ta.Compare(tb)
	}
	return strings.Compare(a.String(key), b.String(key))
}

// UploadFile stores filename as the field value; the bytes are discarded.
func (g *MemoryGateway) UploadFile(ctx context.Context, collection, id, field, filename string, data []byte, scope Principal) (Record, error) {
	if _, err := CheckLogo(filename, data); err != nil {
		return nil, err
	}
	return g.Update(ctx, collection, id, Record{field: LogoKey(scope, filename)}, scope)
}
