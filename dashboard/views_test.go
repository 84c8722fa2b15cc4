package dashboard

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sampleCustomers() []Customer {
	return []Customer{
		{ID: "c1", Name: "Ana", Source: "Instagram", Handle: "@ana", LifetimeValue: dec("40")},
		{ID: "c2", Name: "ben", Source: "WhatsApp", Phone: "0100", LifetimeValue: dec("90")},
		{ID: "c3", Name: "Cleo", Source: "Instagram", Handle: "@cleo", LifetimeValue: dec("15")},
		{ID: "c4", Name: "Dara", Source: "WhatsApp", Phone: "0200", LifetimeValue: dec("60")},
		{ID: "c5", Name: "Eli", Source: "Instagram", Handle: "@eli", LifetimeValue: dec("75")},
	}
}

func ids[T Entity](items []T) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.RecordID())
	}
	return out
}

func TestFilterCustomersBySource(t *testing.T) {
	got := FilterCustomers(sampleCustomers(), CustomerFilter{Source: "Instagram"})
	assert.Equal(t, []string{"c1", "c3", "c5"}, ids(got))
}

func TestFilterCustomersAllSentinel(t *testing.T) {
	for _, source := range []string{"", FilterAll} {
		got := FilterCustomers(sampleCustomers(), CustomerFilter{Source: source})
		assert.Len(t, got, 5, "source %q", source)
	}
}

func TestFilterCustomersSearchAndSort(t *testing.T) {
	tests := []struct {
		name   string
		filter CustomerFilter
		want   []string
	}{
		{"search is case insensitive", CustomerFilter{Search: "BEN"}, []string{"c2"}},
		{"search matches handle", CustomerFilter{Search: "@cl"}, []string{"c3"}},
		{"search matches phone", CustomerFilter{Search: "0200"}, []string{"c4"}},
		{"sort by name ignores case", CustomerFilter{Sort: SortName}, []string{"c1", "c2", "c3", "c4", "c5"}},
		{"sort by value descending", CustomerFilter{Sort: SortValue}, []string{"c2", "c5", "c4", "c1", "c3"}},
		{"filter then sort", CustomerFilter{Source: "WhatsApp", Sort: SortValue}, []string{"c2", "c4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(FilterCustomers(sampleCustomers(), tt.filter)))
		})
	}
}

func TestFilterIsDeterministic(t *testing.T) {
	customers := sampleCustomers()
	customers = append(customers, Customer{ID: "c6", Name: "Ana", Source: "Instagram", LifetimeValue: dec("40")})
	f := CustomerFilter{Source: "Instagram", Sort: SortValue}
	first := FilterCustomers(customers, f)
	second := FilterCustomers(customers, f)
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"c5", "c1", "c6", "c3"}, ids(first))
}

func sampleOrders(now time.Time) []Order {
	line := func(id, name, price string, qty int) LineItem {
		return LineItem{ProductID: id, Name: name, Price: dec(price), Quantity: qty}
	}
	return []Order{
		{ID: "o1", Number: "ORD-000001", CustomerName: "Ana", Status: OrderCompleted, Payment: PaymentPaid, Source: "Instagram",
			Created: now.Add(-2 * time.Hour), Lines: []LineItem{line("p1", "Widget", "10", 2), line("p2", "Gadget", "5", 1)}},
		{ID: "o2", Number: "ORD-000002", CustomerName: "Ben", Status: OrderPending, Payment: PaymentUnpaid, Source: "WhatsApp",
			Created: now.AddDate(0, 0, -3), Lines: []LineItem{line("p2", "Gadget", "5", 4)}},
		{ID: "o3", Number: "ORD-000003", CustomerName: "Cleo", Status: OrderCancelled, Payment: PaymentRefunded, Source: "Instagram",
			Created: now.AddDate(0, 0, -1), Lines: []LineItem{line("p1", "Widget", "10", 50)}},
		{ID: "o4", Number: "ORD-000004", CustomerName: "Dara", CustomerPhone: "0200", Status: OrderProcessing, Payment: PaymentPaid, Source: "TikTok",
			Created: now.AddDate(-1, 0, 0), Lines: []LineItem{line("", "Sticker", "2", 2)}},
	}
}

func TestFilterOrders(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	orders := sampleOrders(now)

	tests := []struct {
		name   string
		filter OrderFilter
		want   []string
	}{
		{"no filter keeps order", OrderFilter{}, []string{"o1", "o2", "o3", "o4"}},
		{"status", OrderFilter{Status: string(OrderPending)}, []string{"o2"}},
		{"payment", OrderFilter{Payment: string(PaymentPaid)}, []string{"o1", "o4"}},
		{"source", OrderFilter{Source: "Instagram"}, []string{"o1", "o3"}},
		{"search number", OrderFilter{Search: "ord-000003"}, []string{"o3"}},
		{"search phone", OrderFilter{Search: "0200"}, []string{"o4"}},
		{"newest", OrderFilter{Sort: SortNewest}, []string{"o1", "o3", "o2", "o4"}},
		{"oldest", OrderFilter{Sort: SortOldest}, []string{"o4", "o2", "o3", "o1"}},
		{"total", OrderFilter{Sort: SortTotal}, []string{"o3", "o1", "o2", "o4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(FilterOrders(orders, tt.filter)))
		})
	}
}

func sampleProducts() []Product {
	return []Product{
		{ID: "p1", Name: "Widget", Price: dec("10"), Quantity: 3, Category: "Tools", SKU: "W-1", Status: ProductActive, TotalSold: 7},
		{ID: "p2", Name: "gadget", Price: dec("5"), Quantity: 10, Category: "Toys", SKU: "G-1", Status: ProductActive, Tags: []string{"summer"}, TotalSold: 2},
		{ID: "p3", Name: "Anvil", Price: dec("80"), Quantity: 1, Category: "Tools", SKU: "A-9", Status: ProductDiscontinued},
	}
}

func TestFilterProducts(t *testing.T) {
	tests := []struct {
		name   string
		filter ProductFilter
		want   []string
	}{
		{"category", ProductFilter{Category: "Tools"}, []string{"p1", "p3"}},
		{"status", ProductFilter{Status: string(ProductDiscontinued)}, []string{"p3"}},
		{"search sku", ProductFilter{Search: "g-1"}, []string{"p2"}},
		{"search tag", ProductFilter{Search: "SUMMER"}, []string{"p2"}},
		{"name", ProductFilter{Sort: SortName}, []string{"p3", "p2", "p1"}},
		{"price", ProductFilter{Sort: SortPrice}, []string{"p3", "p1", "p2"}},
		{"stock", ProductFilter{Sort: SortStock}, []string{"p2", "p1", "p3"}},
		{"value", ProductFilter{Sort: SortValue}, []string{"p3", "p2", "p1"}},
		{"sold", ProductFilter{Sort: SortSold}, []string{"p1", "p2", "p3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(FilterProducts(sampleProducts(), tt.filter)))
		})
	}
}

func TestCategories(t *testing.T) {
	assert.Equal(t, []string{"Tools", "Toys"}, Categories(sampleProducts()))
}

func TestBuckets(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 30, 0, 0, time.UTC)
	b := Buckets(now)
	require.Len(t, b, 5)
	assert.Equal(t, "Today", b[0].Name)
	assert.Equal(t, time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), b[0].Start)
	assert.Equal(t, time.Date(2024, 6, 9, 0, 0, 0, 0, time.UTC), b[1].Start)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), b[2].Start)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), b[3].Start)
	assert.True(t, b[4].Start.IsZero())
	assert.True(t, b[4].Contains(time.Unix(0, 0)))
}

func TestSummarize(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	orders := sampleOrders(now)
	b := Buckets(now)

	today := Summarize(orders, b[0])
	assert.Equal(t, 1, today.Orders)
	assert.True(t, today.Revenue.Equal(dec("25")), today.Revenue.String())

	week := Summarize(orders, b[1])
	assert.Equal(t, 3, week.Orders)
	assert.Equal(t, 1, week.ByStatus[OrderCancelled])
	assert.True(t, week.Revenue.Equal(dec("45")), week.Revenue.String())
	assert.True(t, week.PaidRevenue.Equal(dec("25")), week.PaidRevenue.String())
	assert.True(t, week.Average.Equal(dec("22.5")), week.Average.String())

	all := Summarize(orders, b[4])
	assert.Equal(t, 4, all.Orders)
	assert.True(t, all.Revenue.Equal(dec("49")), all.Revenue.String())

	empty := Summarize(nil, b[0])
	assert.True(t, empty.Average.IsZero())
}

func TestBestSellers(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	ranked := BestSellers(sampleOrders(now), 0)
	require.Len(t, ranked, 3)

	assert.Equal(t, "Gadget", ranked[0].Name)
	assert.Equal(t, 5, ranked[0].Quantity)
	assert.True(t, ranked[0].Revenue.Equal(dec("25")))
	// Widget and Sticker tie on quantity; Widget wins on revenue.
	assert.Equal(t, "Widget", ranked[1].Name)
	assert.Equal(t, 2, ranked[1].Quantity)
	assert.Equal(t, "Sticker", ranked[2].Name)

	assert.Len(t, BestSellers(sampleOrders(now), 1), 1)
}

func TestBestSellersTieBreaksOnName(t *testing.T) {
	orders := []Order{{Status: OrderCompleted, Lines: []LineItem{
		{Name: "Beta", Price: dec("3"), Quantity: 1},
		{Name: "Alpha", Price: dec("3"), Quantity: 1},
	}}}
	ranked := BestSellers(orders, 0)
	require.Len(t, ranked, 2)
	assert.Equal(t, "Alpha", ranked[0].Name)
}
