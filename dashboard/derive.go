// ABOUTME: Derived fields computed from stored data: order totals, customer
// ABOUTME: aggregates and units sold. Shared by clients and the backend hooks.
package dashboard

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderTotal is the sum of price × quantity over the lines.
func OrderTotal(lines []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// Counts reports whether an order contributes to revenue and aggregates.
func (o Order) Counts() bool {
	return o.Status != OrderCancelled
}

// CustomerStats are the read-only aggregate fields of a customer.
type CustomerStats struct {
	LifetimeValue   decimal.Decimal
	OrderCount      int
	RepeatOrders    int
	LastOrderNumber string
	LastOrderAt     time.Time
}

// CustomerAggregate folds the orders that reference customerID by id.
// Cancelled orders are ignored. Orders without a customer reference never
// match, contact strings are not compared.
func CustomerAggregate(orders []Order, customerID string) CustomerStats {
	var stats CustomerStats
	if customerID == "" {
		return stats
	}
	stats.LifetimeValue = decimal.Zero
	for _, o := range orders {
		if o.CustomerID != customerID || !o.Counts() {
			continue
		}
		stats.OrderCount++
		stats.LifetimeValue = stats.LifetimeValue.Add(OrderTotal(o.Lines))
		if stats.LastOrderAt.IsZero() || o.Created.After(stats.LastOrderAt) {
			stats.LastOrderAt = o.Created
			stats.LastOrderNumber = o.Number
		}
	}
	if stats.OrderCount > 1 {
		stats.RepeatOrders = stats.OrderCount - 1
	}
	return stats
}

// ProductSold sums the quantity of productID across non-cancelled orders.
func ProductSold(orders []Order, productID string) int {
	if productID == "" {
		return 0
	}
	sold := 0
	for _, o := range orders {
		if !o.Counts() {
			continue
		}
		for _, l := range o.Lines {
			if l.ProductID == productID {
				sold += l.Quantity
			}
		}
	}
	return sold
}

// Fields is the patch that stores s on a customer row, in the columns
// DecodeCustomer reads back.
func (s CustomerStats) Fields() Record {
	return Record{
		"lifetime_value":    money(s.LifetimeValue),
		"order_count":       s.OrderCount,
		"repeat_orders":     s.RepeatOrders,
		"last_order_number": s.LastOrderNumber,
		"last_order_at":     FormatTime(s.LastOrderAt),
	}
}
