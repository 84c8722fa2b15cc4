// ABOUTME: Record hooks that keep derived fields in step with orders:
// ABOUTME: order totals, customer aggregates and product units sold.

package main

import (
	"encoding/json"
	"sort"

	"github.com/pocketbase/pocketbase/core"
	"go.uber.org/zap"

	"github.com/design2deploy2025/inventory-management-sub000/cmd/sellerdeskd/migrations"
	"github.com/design2deploy2025/inventory-management-sub000/dashboard"
)

// Fields clients may not write; the hooks own them.
var (
	customerAggregateFields = []string{"lifetime_value", "order_count", "repeat_orders", "last_order_number", "last_order_at"}
	productAggregateFields  = []string{"total_sold"}
)

func (s *Server) bindHooks() {
	s.app.OnRecordCreate(migrations.Orders).BindFunc(func(e *core.RecordEvent) error {
		if err := normalizeOrder(e.Record); err != nil {
			return err
		}
		if err := e.Next(); err != nil {
			return err
		}
		s.refreshDerived(e.App, e.Record.GetString("owner"), orderRefs(e.Record))
		return nil
	})

	s.app.OnRecordUpdate(migrations.Orders).BindFunc(func(e *core.RecordEvent) error {
		if err := normalizeOrder(e.Record); err != nil {
			return err
		}
		before := orderRefs(e.Record.Original())
		if err := e.Next(); err != nil {
			return err
		}
		s.refreshDerived(e.App, e.Record.GetString("owner"), before.union(orderRefs(e.Record)))
		return nil
	})

	s.app.OnRecordDelete(migrations.Orders).BindFunc(func(e *core.RecordEvent) error {
		refs := orderRefs(e.Record)
		if err := e.Next(); err != nil {
			return err
		}
		s.refreshDerived(e.App, e.Record.GetString("owner"), refs)
		return nil
	})

	s.app.OnRecordCreateRequest(migrations.Customers).BindFunc(protectFields(customerAggregateFields))
	s.app.OnRecordUpdateRequest(migrations.Customers).BindFunc(protectFields(customerAggregateFields))
	s.app.OnRecordCreateRequest(migrations.Products).BindFunc(protectFields(productAggregateFields))
	s.app.OnRecordUpdateRequest(migrations.Products).BindFunc(protectFields(productAggregateFields))
}

// protectFields discards client-supplied values for fields the hooks own.
// New records start empty; updates keep the stored value.
func protectFields(fields []string) func(e *core.RecordRequestEvent) error {
	return func(e *core.RecordRequestEvent) error {
		for _, f := range fields {
			if e.Record.IsNew() {
				e.Record.Set(f, nil)
			} else {
				e.Record.Set(f, e.Record.Original().Get(f))
			}
		}
		return e.Next()
	}
}

// toDashboard converts a stored record to the wire shape the dashboard
// package decodes.
func toDashboard(rec *core.Record) (dashboard.Record, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	var out dashboard.Record
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// normalizeOrder recomputes total from the line items.
func normalizeOrder(rec *core.Record) error {
	wire, err := toDashboard(rec)
	if err != nil {
		return err
	}
	o, err := dashboard.DecodeOrder(wire)
	if err != nil {
		return err
	}
	rec.Set("total", dashboard.OrderTotal(o.Lines).Round(2).InexactFloat64())
	return nil
}

// refs names the customer and products an order contributes to.
type refs struct {
	customers map[string]bool
	products  map[string]bool
}

func orderRefs(rec *core.Record) refs {
	r := refs{customers: map[string]bool{}, products: map[string]bool{}}
	if rec == nil {
		return r
	}
	if c := rec.GetString("customer"); c != "" {
		r.customers[c] = true
	}
	wire, err := toDashboard(rec)
	if err != nil {
		return r
	}
	o, err := dashboard.DecodeOrder(wire)
	if err != nil {
		return r
	}
	for _, l := range o.Lines {
		if l.ProductID != "" {
			r.products[l.ProductID] = true
		}
	}
	return r
}

func (r refs) union(o refs) refs {
	for k := range o.customers {
		r.customers[k] = true
	}
	for k := range o.products {
		r.products[k] = true
	}
	return r
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ownerOrders loads every order of owner.
func ownerOrders(app core.App, owner string) ([]dashboard.Order, error) {
	recs, err := app.FindRecordsByFilter(migrations.Orders, "owner = {:owner}", "created", 0, 0, map[string]any{"owner": owner})
	if err != nil {
		return nil, err
	}
	out := make([]dashboard.Order, 0, len(recs))
	for _, rec := range recs {
		wire, err := toDashboard(rec)
		if err != nil {
			return nil, err
		}
		o, err := dashboard.DecodeOrder(wire)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// refreshDerived recomputes aggregates for the referenced rows. Failures
// are logged; the order write itself has already succeeded.
func (s *Server) refreshDerived(app core.App, owner string, r refs) {
	if owner == "" || (len(r.customers) == 0 && len(r.products) == 0) {
		return
	}
	orders, err := ownerOrders(app, owner)
	if err != nil {
		s.log.Warn("load orders for aggregates", zap.String("owner", owner), zap.Error(err))
		return
	}

	for _, id := range keys(r.customers) {
		rec, err := app.FindRecordById(migrations.Customers, id)
		if err != nil || rec.GetString("owner") != owner {
			continue
		}
		for k, v := range dashboard.CustomerAggregate(orders, id).Fields() {
			rec.Set(k, v)
		}
		if err := app.Save(rec); err != nil {
			s.log.Warn("save customer aggregates", zap.String("customer", id), zap.Error(err))
		}
	}

	for _, id := range keys(r.products) {
		rec, err := app.FindRecordById(migrations.Products, id)
		if err != nil || rec.GetString("owner") != owner {
			continue
		}
		rec.Set("total_sold", dashboard.ProductSold(orders, id))
		if err := app.Save(rec); err != nil {
			s.log.Warn("save product total_sold", zap.String("product", id), zap.Error(err))
		}
	}
}
