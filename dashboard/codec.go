package dashboard

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Record is a persistence-shaped row as exchanged with the gateway. Values
// are JSON compatible.
type Record map[string]any

// ID returns the record id or "".
func (r Record) ID() string { return r.String("id") }

// Owner returns the owner column.
func (r Record) Owner() Principal { return Principal(r.String(OwnerField)) }

// String reads a text column.
func (r Record) String(key string) string {
	switch v := r[key].(type) {
	case string:
		return v
	case nil:
		return ""
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Int reads a numeric column, truncating fractions.
func (r Record) Int(key string) int {
	return int(r.Decimal(key).IntPart())
}

// Decimal reads a numeric column as a decimal.
func (r Record) Decimal(key string) decimal.Decimal {
	return toDecimal(r[key])
}

// Time reads a date column in PocketBase or RFC 3339 format.
func (r Record) Time(key string) time.Time {
	switch v := r[key].(type) {
	case time.Time:
		return v
	case string:
		return parseTime(v)
	}
	return time.Time{}
}

// Strings reads a JSON array of strings.
func (r Record) Strings(key string) []string {
	switch v := r[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, it := range v {
			if s, ok := it.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Clone returns a shallow copy.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func toDecimal(v any) decimal.Decimal {
	switch n := v.(type) {
	case decimal.Decimal:
		return n
	case float64:
		return decimal.NewFromFloat(n)
	case float32:
		return decimal.NewFromFloat32(n)
	case int:
		return decimal.NewFromInt(int64(n))
	case int64:
		return decimal.NewFromInt(n)
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		if err == nil {
			return d
		}
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		if err == nil {
			return d
		}
	}
	return decimal.Zero
}

var timeLayouts = []string{
	"2006-01-02 15:04:05.000Z",
	"2006-01-02 15:04:05Z",
	time.RFC3339Nano,
	time.RFC3339,
}

func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC()
	}
	return time.Time{}
}

// FormatTime renders t in the backend's date format.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04:05.000Z")
}

// ValidPrice reports whether d is a non-negative amount in whole cents,
// the only amounts that survive the number fields they are stored in.
func ValidPrice(d decimal.Decimal) bool {
	return !d.IsNegative() && d.Equal(d.Round(2))
}

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

type lineRecord struct {
	Product  string          `json:"product"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

func decodeLines(v any) ([]LineItem, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok {
		if s == "" {
			return nil, nil
		}
		v = json.RawMessage(s)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var wire []lineRecord
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("decode lines: %w", err)
	}
	lines := make([]LineItem, 0, len(wire))
	for _, w := range wire {
		lines = append(lines, LineItem{
			ProductID: w.Product,
			Name:      w.Name,
			Price:     w.Price,
			Quantity:  w.Quantity,
		})
	}
	return lines, nil
}

func encodeLines(lines []LineItem) []any {
	out := make([]any, 0, len(lines))
	for _, l := range lines {
		out = append(out, map[string]any{
			"product":  l.ProductID,
			"name":     l.Name,
			"price":    money(l.Price),
			"quantity": l.Quantity,
		})
	}
	return out
}

// DecodeOrder maps a backend row to the order view model. Total is
// recomputed from the lines rather than trusted from the row.
func DecodeOrder(r Record) (Order, error) {
	lines, err := decodeLines(r["lines"])
	if err != nil {
		return Order{}, err
	}
	return Order{
		ID:             r.ID(),
		Number:         r.String("number"),
		Lines:          lines,
		Total:          OrderTotal(lines),
		Status:         OrderStatus(r.String("status")),
		Payment:        PaymentStatus(r.String("payment_status")),
		PaymentType:    r.String("payment_type"),
		CustomerID:     r.String("customer"),
		CustomerName:   r.String("customer_name"),
		CustomerPhone:  r.String("customer_phone"),
		CustomerHandle: r.String("customer_handle"),
		Notes:          r.String("notes"),
		Source:         r.String("source"),
		Created:        r.Time("created"),
		Updated:        r.Time("updated"),
	}, nil
}

// OrderRecord builds the persistence shape of an order's editable fields.
func OrderRecord(o Order) Record {
	return Record{
		"number":          o.Number,
		"lines":           encodeLines(o.Lines),
		"total":           money(OrderTotal(o.Lines)),
		"status":          string(o.Status),
		"payment_status":  string(o.Payment),
		"payment_type":    o.PaymentType,
		"customer":        o.CustomerID,
		"customer_name":   o.CustomerName,
		"customer_phone":  o.CustomerPhone,
		"customer_handle": o.CustomerHandle,
		"notes":           o.Notes,
		"source":          o.Source,
	}
}

// DecodeCustomer maps a backend row to the customer view model.
func DecodeCustomer(r Record) (Customer, error) {
	return Customer{
		ID:              r.ID(),
		Name:            r.String("name"),
		Phone:           r.String("phone"),
		Handle:          r.String("handle"),
		Source:          r.String("source"),
		Notes:           r.String("notes"),
		LifetimeValue:   r.Decimal("lifetime_value"),
		OrderCount:      r.Int("order_count"),
		RepeatOrders:    r.Int("repeat_orders"),
		LastOrderNumber: r.String("last_order_number"),
		LastOrderAt:     r.Time("last_order_at"),
		Created:         r.Time("created"),
		Updated:         r.Time("updated"),
	}, nil
}

// CustomerRecord builds the persistence shape of a customer's editable
// fields. Aggregates are never written by clients.
func CustomerRecord(c Customer) Record {
	return Record{
		"name":   c.Name,
		"phone":  c.Phone,
		"handle": c.Handle,
		"source": c.Source,
		"notes":  c.Notes,
	}
}

// DecodeProduct maps a backend row to the product view model.
func DecodeProduct(r Record) (Product, error) {
	return Product{
		ID:          r.ID(),
		Name:        r.String("name"),
		Price:       r.Decimal("price"),
		Quantity:    r.Int("quantity"),
		Category:    r.String("category"),
		SKU:         r.String("sku"),
		Status:      ProductStatus(r.String("status")),
		Description: r.String("description"),
		Tags:        r.Strings("tags"),
		TotalSold:   r.Int("total_sold"),
		Created:     r.Time("created"),
		Updated:     r.Time("updated"),
	}, nil
}

// ProductRecord builds the persistence shape of a product's editable fields.
func ProductRecord(p Product) Record {
	tags := make([]any, 0, len(p.Tags))
	for _, t := range p.Tags {
		tags = append(tags, t)
	}
	return Record{
		"name":        p.Name,
		"price":       money(p.Price),
		"quantity":    p.Quantity,
		"category":    p.Category,
		"sku":         p.SKU,
		"status":      string(p.Status),
		"description": p.Description,
		"tags":        tags,
	}
}

// DecodeProfile maps a backend row to the profile view model.
func DecodeProfile(r Record) (Profile, error) {
	return Profile{
		ID:           r.ID(),
		BusinessName: r.String("business_name"),
		OwnerName:    r.String("owner_name"),
		Email:        r.String("email"),
		Phone:        r.String("phone"),
		Instagram:    r.String("instagram"),
		WhatsApp:     r.String("whatsapp"),
		Address:      r.String("address"),
		Logo:         r.String("logo"),
		Created:      r.Time("created"),
		Updated:      r.Time("updated"),
	}, nil
}

// ProfileRecord builds the persistence shape of a profile's editable fields.
func ProfileRecord(p Profile) Record {
	return Record{
		"business_name": p.BusinessName,
		"owner_name":    p.OwnerName,
		"email":         p.Email,
		"phone":         p.Phone,
		"instagram":     p.Instagram,
		"whatsapp":      p.WhatsApp,
		"address":       p.Address,
	}
}
