package dashboard

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// ListConfig is the shared wiring for the entity lists.
type ListConfig struct {
	Cache  SnapshotCache
	Logger *zap.Logger
}

// NewOrderList lists orders newest first.
func NewOrderList(gw Gateway, cfg ListConfig) *List[Order] {
	return NewList(gw, ListOptions[Order]{
		Collection: CollectionOrders,
		OrderBy:    "-created",
		Decode:     DecodeOrder,
		Encode:     OrderRecord,
		WithID:     func(o Order, id string) Order { o.ID = id; return o },
		Cache:      cfg.Cache,
		Logger:     cfg.Logger,
	})
}

// NewCustomerList lists customers newest first.
func NewCustomerList(gw Gateway, cfg ListConfig) *List[Customer] {
	return NewList(gw, ListOptions[Customer]{
		Collection: CollectionCustomers,
		OrderBy:    "-created",
		Decode:     DecodeCustomer,
		Encode:     CustomerRecord,
		WithID:     func(c Customer, id string) Customer { c.ID = id; return c },
		Cache:      cfg.Cache,
		Logger:     cfg.Logger,
	})
}

// NewProductList lists products newest first.
func NewProductList(gw Gateway, cfg ListConfig) *List[Product] {
	return NewList(gw, ListOptions[Product]{
		Collection: CollectionProducts,
		OrderBy:    "-created",
		Decode:     DecodeProduct,
		Encode:     ProductRecord,
		WithID:     func(p Product, id string) Product { p.ID = id; return p },
		Cache:      cfg.Cache,
		Logger:     cfg.Logger,
	})
}

// StatsView is a read-only order list feeding the analytics composers.
type StatsView struct {
	*List[Order]
}

// NewStatsView builds an order list for the analytics screen.
func NewStatsView(gw Gateway, cfg ListConfig) *StatsView {
	return &StatsView{List: NewOrderList(gw, cfg)}
}

// Summaries computes one Summary per bucket over the current snapshot.
func (s *StatsView) Summaries(now time.Time) []Summary {
	orders := s.Items()
	buckets := Buckets(now)
	out := make([]Summary, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, Summarize(orders, b))
	}
	return out
}

// BestSellers ranks products over the current snapshot.
func (s *StatsView) BestSellers(limit int) []BestSeller {
	return BestSellers(s.Items(), limit)
}

// NewOrderNumber returns a human-readable order number derived from a ULID.
func NewOrderNumber() string {
	id := ulid.Make().String()
	return "ORD-" + strings.ToUpper(id[len(id)-6:])
}
