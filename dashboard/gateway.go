package dashboard

import "context"

// Action describes a change-feed event kind.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	// ActionResync is sent after a change feed reconnects. Events may have
	// been missed, so listeners should reconcile.
	ActionResync Action = "resync"
	// ActionClosed is the last event of a feed that stopped for good, for
	// example after the backend rejected the session. Err says why.
	ActionClosed Action = "closed"
)

// ChangeEvent is delivered by a subscription for every insert, update or
// delete of a row matching its scope.
type ChangeEvent struct {
	Collection string
	Action     Action
	RecordID   string
	Record     Record
	Err        error // set on ActionClosed
}

// Subscription is a live change channel. It must be released by the view
// that opened it.
type Subscription interface {
	Unsubscribe() error
}

// Gateway is the remote store contract. Every call is scoped by a
// principal; writes that do not match the scope fail with a WriteError
// wrapping ErrScopeMismatch rather than silently doing nothing.
type Gateway interface {
	List(ctx context.Context, collection string, scope Principal, orderBy string) ([]Record, error)
	Insert(ctx context.Context, collection string, scope Principal, rec Record) (Record, error)
	Update(ctx context.Context, collection, id string, patch Record, scope Principal) (Record, error)
	Delete(ctx context.Context, collection, id string, scope Principal) error
	Subscribe(ctx context.Context, collection string, scope Principal, onChange func(ChangeEvent)) (Subscription, error)
}

// SubscriptionFunc adapts a func to Subscription.
type SubscriptionFunc func() error

func (f SubscriptionFunc) Unsubscribe() error { return f() }
