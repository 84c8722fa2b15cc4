// ABOUTME: List keeps an in-memory collection in step with the backend:
// ABOUTME: fetch on mount, reconcile on change events, optimistic local writes.
package dashboard

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// ListState is an immutable snapshot of a List.
type ListState[T Entity] struct {
	Items   []T
	Loading bool
	Err     error
	Seq     uint64 // sequence number of the last applied fetch
}

// SnapshotCache persists the last reconciled rows of a collection.
type SnapshotCache interface {
	SaveSnapshot(ctx context.Context, collection string, owner Principal, rows []Record) error
}

// ListOptions binds a List to one collection and view model.
type ListOptions[T Entity] struct {
	Collection string
	OrderBy    string
	Decode     func(Record) (T, error)
	Encode     func(T) Record
	WithID     func(T, string) T
	Cache      SnapshotCache
	Logger     *zap.Logger
}

// List synchronizes one entity collection for one principal.
//
// Every fetch is tagged with a sequence number; a result older than the last
// applied one is dropped, so the latest issued fetch wins. Results arriving
// after Unmount are dropped too.
type List[T Entity] struct {
	gw   Gateway
	opts ListOptions[T]
	log  *zap.Logger

	mu        sync.Mutex
	items     []T
	loading   bool
	err       error
	principal Principal
	mounted   bool
	gen       uint64 // bumped on every mount and unmount
	issued    uint64 // last issued fetch sequence
	applied   uint64 // last applied fetch sequence
	version   uint64 // bumped whenever a fetch replaces items
	sub       Subscription
	mctx      context.Context
	cancel    context.CancelFunc

	watchers  map[int]func(ListState[T])
	nextWatch int
	pending   []ListState[T]
	flushing  bool
	inflight  int // reconciles started by change events, guarded by mu
	idle      *sync.Cond
}

// NewList builds an unmounted list.
func NewList[T Entity](gw Gateway, opts ListOptions[T]) *List[T] {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	l := &List[T]{
		gw:       gw,
		opts:     opts,
		log:      log.With(zap.String("collection", opts.Collection)),
		watchers: make(map[int]func(ListState[T])),
	}
	l.idle = sync.NewCond(&l.mu)
	return l
}

// Collection returns the bound collection name.
func (l *List[T]) Collection() string { return l.opts.Collection }

// Mount loads the collection for p and opens a change subscription. Calling
// Mount again (for example after the principal changed) unmounts first.
// The returned error mirrors State().Err; a FetchError is not retried.
func (l *List[T]) Mount(ctx context.Context, p Principal) error {
	if p == "" {
		return &AuthError{Reason: "no principal"}
	}
	if err := l.Unmount(); err != nil {
		l.log.Warn("release previous subscription", zap.Error(err))
	}

	l.mu.Lock()
	l.gen++
	gen := l.gen
	l.principal = p
	l.mounted = true
	l.items = nil
	l.err = nil
	l.mctx, l.cancel = context.WithCancel(context.WithoutCancel(ctx))
	mctx := l.mctx
	l.mu.Unlock()

	sub, err := l.gw.Subscribe(mctx, l.opts.Collection, p, func(ev ChangeEvent) {
		l.onChange(gen, ev)
	})
	if err != nil {
		l.log.Warn("subscribe failed", zap.Error(err))
		l.setErr(gen, &FetchError{Collection: l.opts.Collection, Err: err})
		return l.State().Err
	}

	l.mu.Lock()
	if l.gen != gen {
		l.mu.Unlock()
		_ = sub.Unsubscribe()
		return ErrUnmounted
	}
	l.sub = sub
	l.mu.Unlock()

	return l.reconcile(ctx, gen)
}

// Unmount releases the subscription and drops the loaded rows. In-flight
// fetches are discarded when they resolve.
func (l *List[T]) Unmount() error {
	l.mu.Lock()
	if !l.mounted {
		l.mu.Unlock()
		return nil
	}
	l.mounted = false
	l.gen++
	l.loading = false
	l.items = nil
	l.err = nil
	sub, cancel := l.sub, l.cancel
	l.sub, l.cancel = nil, nil
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sub != nil {
		return sub.Unsubscribe()
	}
	return nil
}

// Refresh re-runs the fetch-and-reconcile step. It is the user-initiated
// recovery path after a FetchError. A change feed that was closed is
// reopened first.
func (l *List[T]) Refresh(ctx context.Context) error {
	l.mu.Lock()
	if !l.mounted {
		l.mu.Unlock()
		return ErrNotMounted
	}
	gen, p, closed := l.gen, l.principal, l.sub == nil
	l.mu.Unlock()
	if closed {
		return l.Mount(ctx, p)
	}
	return l.reconcile(ctx, gen)
}

// Wait blocks until every reconciliation fetch triggered by a change event
// delivered before or during the call has finished.
func (l *List[T]) Wait() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for l.inflight > 0 {
		l.idle.Wait()
	}
}

// State returns the current snapshot.
func (l *List[T]) State() ListState[T] {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stateLocked()
}

// Items returns a copy of the loaded collection.
func (l *List[T]) Items() []T { return l.State().Items }

// Principal returns the principal the list is mounted for.
func (l *List[T]) Principal() Principal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.principal
}

// Mounted reports whether the list is live.
func (l *List[T]) Mounted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mounted
}

// Watch registers fn for every state change. The returned func removes it.
func (l *List[T]) Watch(fn func(ListState[T])) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextWatch++
	id := l.nextWatch
	l.watchers[id] = fn
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.watchers, id)
	}
}

// Create inserts item optimistically, then writes it. On failure the
// optimistic row is removed again and the WriteError returned.
func (l *List[T]) Create(ctx context.Context, item T) (T, error) {
	var zero T
	l.mu.Lock()
	if !l.mounted {
		l.mu.Unlock()
		return zero, ErrNotMounted
	}
	gen, p, version := l.gen, l.principal, l.version
	tempID := "tmp_" + strings.ToLower(ulid.Make().String())
	optimistic := l.opts.WithID(item, tempID)
	if strings.HasPrefix(l.opts.OrderBy, "-") {
		l.items = append([]T{optimistic}, l.items...)
	} else {
		l.items = append(l.items, optimistic)
	}
	l.notifyLocked()
	l.mu.Unlock()
	l.flush()

	rec := l.opts.Encode(item)
	rec[OwnerField] = string(p)
	stored, err := l.gw.Insert(ctx, l.opts.Collection, p, rec)
	if err != nil {
		l.mutate(gen, version, func() {
			if idx := l.indexLocked(tempID); idx >= 0 {
				l.items = removeAt(l.items, idx)
			}
		})
		return zero, asWriteError(err, "insert", l.opts.Collection, "")
	}

	created, derr := l.opts.Decode(stored)
	if derr != nil {
		l.log.Warn("decode stored row", zap.String("id", stored.ID()), zap.Error(derr))
		created = l.opts.WithID(item, stored.ID())
	}
	l.confirm(gen, tempID, created, true)
	return created, nil
}

// Update replaces the row with item's id optimistically, then writes the
// patch. On failure the previous row is restored.
func (l *List[T]) Update(ctx context.Context, item T) (T, error) {
	var zero T
	id := item.RecordID()
	l.mu.Lock()
	if !l.mounted {
		l.mu.Unlock()
		return zero, ErrNotMounted
	}
	gen, p, version := l.gen, l.principal, l.version
	var prev T
	idx := l.indexLocked(id)
	if idx >= 0 {
		prev = l.items[idx]
		l.items[idx] = item
		l.notifyLocked()
	}
	l.mu.Unlock()
	l.flush()

	stored, err := l.gw.Update(ctx, l.opts.Collection, id, l.opts.Encode(item), p)
	if err != nil {
		if idx >= 0 {
			l.mutate(gen, version, func() {
				if i := l.indexLocked(id); i >= 0 {
					l.items[i] = prev
				}
			})
		}
		return zero, asWriteError(err, "update", l.opts.Collection, id)
	}

	updated, derr := l.opts.Decode(stored)
	if derr != nil {
		l.log.Warn("decode stored row", zap.String("id", id), zap.Error(derr))
		updated = item
	}
	l.confirm(gen, id, updated, false)
	return updated, nil
}

// Delete removes the row optimistically, then deletes it remotely. On
// failure the row is put back at its previous position.
func (l *List[T]) Delete(ctx context.Context, id string) error {
	l.mu.Lock()
	if !l.mounted {
		l.mu.Unlock()
		return ErrNotMounted
	}
	gen, p, version := l.gen, l.principal, l.version
	var prev T
	idx := l.indexLocked(id)
	if idx >= 0 {
		prev = l.items[idx]
		l.items = removeAt(l.items, idx)
		l.notifyLocked()
	}
	l.mu.Unlock()
	l.flush()

	if err := l.gw.Delete(ctx, l.opts.Collection, id, p); err != nil {
		if idx >= 0 {
			l.mutate(gen, version, func() {
				if l.indexLocked(id) >= 0 {
					return
				}
				at := min(idx, len(l.items))
				l.items = append(l.items[:at], append([]T{prev}, l.items[at:]...)...)
			})
		}
		return asWriteError(err, "delete", l.opts.Collection, id)
	}
	return nil
}

func (l *List[T]) onChange(gen uint64, ev ChangeEvent) {
	if ev.Action == ActionClosed {
		l.feedClosed(gen, ev.Err)
		return
	}
	l.mu.Lock()
	if !l.mounted || l.gen != gen {
		l.mu.Unlock()
		return
	}
	ctx := l.mctx
	l.inflight++
	l.mu.Unlock()

	l.log.Debug("change event", zap.String("action", string(ev.Action)), zap.String("id", ev.RecordID))
	go func() {
		defer func() {
			l.mu.Lock()
			l.inflight--
			if l.inflight == 0 {
				l.idle.Broadcast()
			}
			l.mu.Unlock()
		}()
		if err := l.reconcile(ctx, gen); err != nil && !errors.Is(err, ErrUnmounted) {
			l.log.Warn("reconcile failed", zap.Error(err))
		}
	}()
}

// feedClosed records that the change feed ended. The rows stay, but the
// list can no longer converge, so the cause is surfaced as the list error:
// an AuthError when the session was rejected, a FetchError otherwise.
func (l *List[T]) feedClosed(gen uint64, cause error) {
	if cause == nil {
		cause = errors.New("change feed closed")
	}
	var err error = &FetchError{Collection: l.opts.Collection, Err: cause}
	if errors.Is(cause, ErrAuth) {
		err = cause
	}

	l.mu.Lock()
	if !l.mounted || l.gen != gen {
		l.mu.Unlock()
		return
	}
	l.sub = nil
	l.mu.Unlock()
	l.log.Warn("change feed closed", zap.Error(cause))
	l.setErr(gen, err)
}

// reconcile replaces the collection with the server's current rows.
func (l *List[T]) reconcile(ctx context.Context, gen uint64) error {
	l.mu.Lock()
	if !l.mounted || l.gen != gen {
		l.mu.Unlock()
		return ErrUnmounted
	}
	l.issued++
	seq := l.issued
	p := l.principal
	l.loading = true
	l.notifyLocked()
	l.mu.Unlock()
	l.flush()

	rows, err := l.gw.List(ctx, l.opts.Collection, p, l.opts.OrderBy)
	var items []T
	if err == nil {
		items, err = l.decodeAll(rows)
	}

	l.mu.Lock()
	if !l.mounted || l.gen != gen {
		l.mu.Unlock()
		l.log.Debug("discard fetch after unmount", zap.Uint64("seq", seq))
		return ErrUnmounted
	}
	if seq < l.applied {
		l.mu.Unlock()
		l.log.Debug("discard stale fetch", zap.Uint64("seq", seq))
		return nil
	}
	l.applied = seq
	if seq == l.issued {
		l.loading = false
	}
	if err != nil {
		var fe *FetchError
		if !errors.As(err, &fe) {
			fe = &FetchError{Collection: l.opts.Collection, Err: err}
		}
		l.err = fe
		l.notifyLocked()
		l.mu.Unlock()
		l.flush()
		l.log.Warn("fetch failed", zap.Error(fe))
		return fe
	}
	l.items = items
	l.err = nil
	l.version++
	l.notifyLocked()
	l.mu.Unlock()
	l.flush()

	l.log.Debug("reconciled", zap.Int("rows", len(items)), zap.Uint64("seq", seq))
	if l.opts.Cache != nil {
		if err := l.opts.Cache.SaveSnapshot(ctx, l.opts.Collection, p, rows); err != nil {
			l.log.Warn("cache snapshot", zap.Error(err))
		}
	}
	return nil
}

func (l *List[T]) decodeAll(rows []Record) ([]T, error) {
	items := make([]T, 0, len(rows))
	for _, r := range rows {
		it, err := l.opts.Decode(r)
		if err != nil {
			return nil, &FetchError{Collection: l.opts.Collection, Err: err}
		}
		items = append(items, it)
	}
	return items, nil
}

// mutate applies a rollback unless the list was remounted or a fetch has
// replaced the items since version, in which case server truth already
// stands.
func (l *List[T]) mutate(gen, version uint64, fn func()) {
	defer l.flush()
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.mounted || l.gen != gen || l.version != version {
		return
	}
	fn()
	l.notifyLocked()
}

// confirm swaps the optimistic row for the stored one, keyed by id. A row
// that a fetch has dropped in the meantime is only re-added for inserts.
func (l *List[T]) confirm(gen uint64, optimisticID string, stored T, insert bool) {
	defer l.flush()
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.mounted || l.gen != gen {
		return
	}
	if idx := l.indexLocked(optimisticID); idx >= 0 {
		l.items[idx] = stored
		if dup := l.indexAfter(stored.RecordID(), idx); dup >= 0 {
			l.items = removeAt(l.items, dup)
		}
	} else if idx := l.indexLocked(stored.RecordID()); idx >= 0 {
		l.items[idx] = stored
	} else if !insert {
		return
	} else if strings.HasPrefix(l.opts.OrderBy, "-") {
		l.items = append([]T{stored}, l.items...)
	} else {
		l.items = append(l.items, stored)
	}
	l.notifyLocked()
}

func (l *List[T]) setErr(gen uint64, err error) {
	defer l.flush()
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.gen != gen {
		return
	}
	l.err = err
	l.loading = false
	l.notifyLocked()
}

func (l *List[T]) indexLocked(id string) int {
	for i, it := range l.items {
		if it.RecordID() == id {
			return i
		}
	}
	return -1
}

func (l *List[T]) indexAfter(id string, skip int) int {
	for i, it := range l.items {
		if i != skip && it.RecordID() == id {
			return i
		}
	}
	return -1
}

func (l *List[T]) stateLocked() ListState[T] {
	return ListState[T]{
		Items:   append([]T(nil), l.items...),
		Loading: l.loading,
		Err:     l.err,
		Seq:     l.applied,
	}
}

// notifyLocked queues the current snapshot for watchers. Callers run flush
// after releasing mu.
func (l *List[T]) notifyLocked() {
	if len(l.watchers) == 0 {
		return
	}
	l.pending = append(l.pending, l.stateLocked())
}

// flush delivers queued snapshots in order. Only one goroutine drains at a
// time; a watcher that mutates the list has its snapshots picked up by the
// outer loop.
func (l *List[T]) flush() {
	l.mu.Lock()
	if l.flushing {
		l.mu.Unlock()
		return
	}
	l.flushing = true
	for len(l.pending) > 0 {
		pending := l.pending
		l.pending = nil
		ids := make([]int, 0, len(l.watchers))
		for id := range l.watchers {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		fns := make([]func(ListState[T]), 0, len(ids))
		for _, id := range ids {
			fns = append(fns, l.watchers[id])
		}
		l.mu.Unlock()
		for _, st := range pending {
			for _, fn := range fns {
				fn(st)
			}
		}
		l.mu.Lock()
	}
	l.flushing = false
	l.mu.Unlock()
}

func removeAt[T any](items []T, idx int) []T {
	return append(items[:idx:idx], items[idx+1:]...)
}

func asWriteError(err error, op, collection, id string) error {
	var we *WriteError
	if errors.As(err, &we) {
		return err
	}
	return &WriteError{Op: op, Collection: collection, ID: id, Err: err}
}
