package dashboard

import (
	"time"

	"github.com/shopspring/decimal"
)

// Principal is the authenticated identity that scopes all data access.
type Principal string

// Collection names on the backend.
const (
	CollectionOrders    = "orders"
	CollectionCustomers = "customers"
	CollectionProducts  = "products"
	CollectionProfiles  = "profiles"
)

// OwnerField is the column every row is scoped by.
const OwnerField = "owner"

// FilterAll disables a categorical filter.
const FilterAll = "All"

// OrderStatus is the fulfilment axis of an order.
type OrderStatus string

const (
	OrderPending    OrderStatus = "Pending"
	OrderProcessing OrderStatus = "Processing"
	OrderCompleted  OrderStatus = "Completed"
	OrderCancelled  OrderStatus = "Cancelled"
)

// OrderStatuses lists fulfilment states in display order.
var OrderStatuses = []OrderStatus{OrderPending, OrderProcessing, OrderCompleted, OrderCancelled}

// PaymentStatus is the payment axis of an order. It is independent of
// OrderStatus; no transition between the two is implied.
type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "Unpaid"
	PaymentPaid     PaymentStatus = "Paid"
	PaymentFailed   PaymentStatus = "Failed"
	PaymentRefunded PaymentStatus = "Refunded"
)

// PaymentStatuses lists payment states in display order.
var PaymentStatuses = []PaymentStatus{PaymentUnpaid, PaymentPaid, PaymentFailed, PaymentRefunded}

// ProductStatus tracks catalog availability.
type ProductStatus string

const (
	ProductActive       ProductStatus = "Active"
	ProductInactive     ProductStatus = "Inactive"
	ProductDiscontinued ProductStatus = "Discontinued"
)

// ProductStatuses lists catalog states in display order.
var ProductStatuses = []ProductStatus{ProductActive, ProductInactive, ProductDiscontinued}

// Sources are the channel tags sellers take orders from.
var Sources = []string{"Instagram", "WhatsApp", "Facebook", "TikTok", "Website", "Other"}

// LineItem is a product snapshot on an order. Price is captured at order
// time and never follows later catalog changes.
type LineItem struct {
	ProductID string
	Name      string
	Price     decimal.Decimal
	Quantity  int
}

// Subtotal is price × quantity.
func (l LineItem) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Order is a customer order.
type Order struct {
	ID             string
	Number         string
	Lines          []LineItem
	Total          decimal.Decimal
	Status         OrderStatus
	Payment        PaymentStatus
	PaymentType    string
	CustomerID     string
	CustomerName   string
	CustomerPhone  string
	CustomerHandle string
	Notes          string
	Source         string
	Created        time.Time
	Updated        time.Time
}

func (o Order) RecordID() string { return o.ID }

// Customer is a buyer record. The aggregate fields are owned by the backend
// and derived from orders referencing the customer id.
type Customer struct {
	ID     string
	Name   string
	Phone  string
	Handle string
	Source string
	Notes  string

	LifetimeValue   decimal.Decimal
	OrderCount      int
	RepeatOrders    int
	LastOrderNumber string
	LastOrderAt     time.Time

	Created time.Time
	Updated time.Time
}

func (c Customer) RecordID() string { return c.ID }

// Product is a catalog entry.
type Product struct {
	ID          string
	Name        string
	Price       decimal.Decimal
	Quantity    int
	Category    string
	SKU         string
	Status      ProductStatus
	Description string
	Tags        []string
	TotalSold   int

	Created time.Time
	Updated time.Time
}

func (p Product) RecordID() string { return p.ID }

// StockValue is price × quantity on hand. It is computed on read and never
// stored.
func (p Product) StockValue() decimal.Decimal {
	return p.Price.Mul(decimal.NewFromInt(int64(p.Quantity)))
}

// Profile holds business metadata, one per principal.
type Profile struct {
	ID           string
	BusinessName string
	OwnerName    string
	Email        string
	Phone        string
	Instagram    string
	WhatsApp     string
	Address      string
	Logo         string

	Created time.Time
	Updated time.Time
}

func (p Profile) RecordID() string { return p.ID }

// Entity is any view-model row held by a List.
type Entity interface {
	RecordID() string
}
