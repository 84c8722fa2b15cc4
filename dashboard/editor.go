// ABOUTME: Editors hold a draft for one entity, gate submission on required
// ABOUTME: fields and write through the owning list's optimistic path.
package dashboard

import (
	"context"
	"strings"
	"sync"
)

// Editor is a create/edit form for one entity type.
type Editor[T Entity] struct {
	list     *List[T]
	defaults func() T
	required func(T) []string
	prepare  func(T) T

	mu      sync.Mutex
	draft   T
	editing bool
}

func newEditor[T Entity](list *List[T], defaults func() T, required func(T) []string, prepare func(T) T) *Editor[T] {
	e := &Editor[T]{list: list, defaults: defaults, required: required, prepare: prepare}
	e.Reset()
	return e
}

// NewOrderEditor edits orders. New drafts get a fresh order number.
func NewOrderEditor(list *List[Order]) *Editor[Order] {
	return newEditor(list,
		func() Order {
			return Order{
				Number:  NewOrderNumber(),
				Status:  OrderPending,
				Payment: PaymentUnpaid,
			}
		},
		func(o Order) []string {
			var missing []string
			if strings.TrimSpace(o.CustomerName) == "" {
				missing = append(missing, "customer_name")
			}
			named, priced := false, true
			for _, l := range o.Lines {
				if strings.TrimSpace(l.Name) == "" {
					continue
				}
				named = true
				if !ValidPrice(l.Price) {
					priced = false
				}
			}
			if !named || !priced {
				missing = append(missing, "lines")
			}
			return missing
		},
		func(o Order) Order {
			lines := make([]LineItem, 0, len(o.Lines))
			for _, l := range o.Lines {
				if strings.TrimSpace(l.Name) == "" {
					continue
				}
				lines = append(lines, l)
			}
			o.Lines = lines
			o.Total = OrderTotal(lines)
			return o
		},
	)
}

// NewCustomerEditor edits customers.
func NewCustomerEditor(list *List[Customer]) *Editor[Customer] {
	return newEditor(list,
		func() Customer { return Customer{} },
		func(c Customer) []string {
			if strings.TrimSpace(c.Name) == "" {
				return []string{"name"}
			}
			return nil
		},
		nil,
	)
}

// NewProductEditor edits products.
func NewProductEditor(list *List[Product]) *Editor[Product] {
	return newEditor(list,
		func() Product { return Product{Status: ProductActive} },
		func(p Product) []string {
			var missing []string
			if strings.TrimSpace(p.Name) == "" {
				missing = append(missing, "name")
			}
			if p.Price.IsZero() || !ValidPrice(p.Price) {
				missing = append(missing, "price")
			}
			return missing
		},
		nil,
	)
}

// Edit loads an existing entity into the draft.
func (e *Editor[T]) Edit(item T) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.draft = item
	e.editing = true
}

// Reset discards the draft and starts a new one.
func (e *Editor[T]) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.draft = e.defaults()
	e.editing = false
}

// Draft returns the current draft.
func (e *Editor[T]) Draft() T {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.draft
}

// Editing reports whether the draft targets an existing row.
func (e *Editor[T]) Editing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.editing
}

// Set mutates the draft in place.
func (e *Editor[T]) Set(fn func(*T)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.draft)
}

// Missing lists required fields that are still empty.
func (e *Editor[T]) Missing() []string {
	return e.required(e.Draft())
}

// CanSubmit is false while any required field is empty.
func (e *Editor[T]) CanSubmit() bool {
	return len(e.Missing()) == 0
}

// Submit writes the draft through the list. A blocked draft returns a
// ValidationError without contacting the backend. On a WriteError the draft
// is kept so the user can try again.
func (e *Editor[T]) Submit(ctx context.Context) (T, error) {
	var zero T
	e.mu.Lock()
	draft, editing := e.draft, e.editing
	e.mu.Unlock()

	if missing := e.required(draft); len(missing) > 0 {
		return zero, &ValidationError{Fields: missing}
	}
	if e.prepare != nil {
		draft = e.prepare(draft)
	}

	var (
		saved T
		err   error
	)
	if editing {
		saved, err = e.list.Update(ctx, draft)
	} else {
		saved, err = e.list.Create(ctx, draft)
	}
	if err != nil {
		return zero, err
	}
	e.Reset()
	return saved, nil
}

// ConfirmDelete deletes id from list only when confirm repeats the id.
func ConfirmDelete[T Entity](ctx context.Context, list *List[T], id, confirm string) error {
	if id == "" || confirm != id {
		return ErrConfirmationRequired
	}
	return list.Delete(ctx, id)
}
