// ABOUTME: Pure filter, sort and aggregate functions over loaded collections.
// ABOUTME: Same inputs always give the same output order.
package dashboard

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Sort keys.
const (
	SortNewest = "newest"
	SortOldest = "oldest"
	SortTotal  = "total"
	SortName   = "name"
	SortValue  = "value"
	SortRecent = "recent"
	SortPrice  = "price"
	SortStock  = "stock"
	SortSold   = "sold"
)

// OrderFilter is the orders screen filter state.
type OrderFilter struct {
	Search  string
	Status  string
	Payment string
	Source  string
	Sort    string
}

// CustomerFilter is the customers screen filter state.
type CustomerFilter struct {
	Search string
	Source string
	Sort   string
}

// ProductFilter is the products screen filter state.
type ProductFilter struct {
	Search   string
	Category string
	Status   string
	Sort     string
}

func matchesAll(want, got string) bool {
	return want == "" || want == FilterAll || want == got
}

func contains(needle string, fields ...string) bool {
	needle = strings.ToLower(strings.TrimSpace(needle))
	if needle == "" {
		return true
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}

// FilterOrders applies search, categorical filters and sort. Without a sort
// key the input order is kept.
func FilterOrders(orders []Order, f OrderFilter) []Order {
	out := make([]Order, 0, len(orders))
	for _, o := range orders {
		if !matchesAll(f.Status, string(o.Status)) ||
			!matchesAll(f.Payment, string(o.Payment)) ||
			!matchesAll(f.Source, o.Source) {
			continue
		}
		if !contains(f.Search, o.Number, o.CustomerName, o.CustomerPhone, o.CustomerHandle) {
			continue
		}
		out = append(out, o)
	}
	switch f.Sort {
	case SortNewest:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Created.After(out[j].Created) })
	case SortOldest:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	case SortTotal:
		sort.SliceStable(out, func(i, j int) bool {
			return OrderTotal(out[i].Lines).GreaterThan(OrderTotal(out[j].Lines))
		})
	}
	return out
}

// FilterCustomers applies search, source filter and sort.
func FilterCustomers(customers []Customer, f CustomerFilter) []Customer {
	out := make([]Customer, 0, len(customers))
	for _, c := range customers {
		if !matchesAll(f.Source, c.Source) {
			continue
		}
		if !contains(f.Search, c.Name, c.Phone, c.Handle) {
			continue
		}
		out = append(out, c)
	}
	switch f.Sort {
	case SortName:
		sort.SliceStable(out, func(i, j int) bool {
			return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
		})
	case SortValue:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].LifetimeValue.GreaterThan(out[j].LifetimeValue)
		})
	case SortRecent:
		sort.SliceStable(out, func(i, j int) bool { return out[i].LastOrderAt.After(out[j].LastOrderAt) })
	}
	return out
}

// FilterProducts applies search, category and status filters and sort.
func FilterProducts(products []Product, f ProductFilter) []Product {
	out := make([]Product, 0, len(products))
	for _, p := range products {
		if !matchesAll(f.Category, p.Category) || !matchesAll(f.Status, string(p.Status)) {
			continue
		}
		if !contains(f.Search, append([]string{p.Name, p.SKU, p.Category}, p.Tags...)...) {
			continue
		}
		out = append(out, p)
	}
	switch f.Sort {
	case SortName:
		sort.SliceStable(out, func(i, j int) bool {
			return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
		})
	case SortPrice:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Price.GreaterThan(out[j].Price) })
	case SortStock:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Quantity > out[j].Quantity })
	case SortValue:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].StockValue().GreaterThan(out[j].StockValue())
		})
	case SortSold:
		sort.SliceStable(out, func(i, j int) bool { return out[i].TotalSold > out[j].TotalSold })
	}
	return out
}

// Categories returns the distinct non-empty product categories, sorted.
func Categories(products []Product) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range products {
		if p.Category == "" || seen[p.Category] {
			continue
		}
		seen[p.Category] = true
		out = append(out, p.Category)
	}
	sort.Strings(out)
	return out
}

// Bucket is a reporting window starting at Start. A zero Start covers all
// time.
type Bucket struct {
	Name  string
	Start time.Time
}

// Contains reports whether t falls in the bucket.
func (b Bucket) Contains(t time.Time) bool {
	return b.Start.IsZero() || !t.Before(b.Start)
}

// Buckets returns the standard reporting windows relative to now, in now's
// location.
func Buckets(now time.Time) []Bucket {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return []Bucket{
		{Name: "Today", Start: day},
		{Name: "Last 7 days", Start: day.AddDate(0, 0, -6)},
		{Name: "This month", Start: time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())},
		{Name: "This year", Start: time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())},
		{Name: "All time"},
	}
}

// Summary aggregates the orders created in one bucket.
type Summary struct {
	Bucket      Bucket
	Orders      int
	Revenue     decimal.Decimal
	PaidRevenue decimal.Decimal
	Average     decimal.Decimal
	ByStatus    map[OrderStatus]int
}

// Summarize folds orders in b. Cancelled orders are counted but carry no
// revenue.
func Summarize(orders []Order, b Bucket) Summary {
	s := Summary{
		Bucket:      b,
		Revenue:     decimal.Zero,
		PaidRevenue: decimal.Zero,
		Average:     decimal.Zero,
		ByStatus:    make(map[OrderStatus]int),
	}
	counted := 0
	for _, o := range orders {
		if !b.Contains(o.Created) {
			continue
		}
		s.Orders++
		s.ByStatus[o.Status]++
		if !o.Counts() {
			continue
		}
		total := OrderTotal(o.Lines)
		counted++
		s.Revenue = s.Revenue.Add(total)
		if o.Payment == PaymentPaid {
			s.PaidRevenue = s.PaidRevenue.Add(total)
		}
	}
	if counted > 0 {
		s.Average = s.Revenue.Div(decimal.NewFromInt(int64(counted))).Round(2)
	}
	return s
}

// BestSeller is one row of the product ranking.
type BestSeller struct {
	ProductID string
	Name      string
	Quantity  int
	Revenue   decimal.Decimal
}

// BestSellers ranks line items by quantity, then revenue, then name.
// Lines are grouped by product id, or by name when the line has none.
// A limit of zero or less returns every row.
func BestSellers(orders []Order, limit int) []BestSeller {
	index := make(map[string]int)
	var rows []BestSeller
	for _, o := range orders {
		if !o.Counts() {
			continue
		}
		for _, l := range o.Lines {
			key := "id:" + l.ProductID
			if l.ProductID == "" {
				key = "name:" + strings.ToLower(strings.TrimSpace(l.Name))
			}
			i, ok := index[key]
			if !ok {
				i = len(rows)
				index[key] = i
				rows = append(rows, BestSeller{ProductID: l.ProductID, Name: l.Name, Revenue: decimal.Zero})
			}
			rows[i].Quantity += l.Quantity
			rows[i].Revenue = rows[i].Revenue.Add(l.Subtotal())
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Quantity != b.Quantity {
			return a.Quantity > b.Quantity
		}
		if c := a.Revenue.Cmp(b.Revenue); c != 0 {
			return c > 0
		}
		return a.Name < b.Name
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}
