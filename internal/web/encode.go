package web

import (
	"github.com/gin-gonic/gin"

	"github.com/design2deploy2025/inventory-management-sub000/dashboard"
)

// The JSON views are the persistence shape plus id, timestamps and the
// derived read-only fields. Money is rendered with two decimals.

func withMeta(rec dashboard.Record, id string, created, updated string) dashboard.Record {
	rec["id"] = id
	rec["created"] = created
	rec["updated"] = updated
	return rec
}

func orderJSON(o dashboard.Order) dashboard.Record {
	rec := withMeta(dashboard.OrderRecord(o), o.ID, dashboard.FormatTime(o.Created), dashboard.FormatTime(o.Updated))
	rec["total"] = dashboard.OrderTotal(o.Lines).StringFixed(2)
	return rec
}

func customerJSON(cu dashboard.Customer) dashboard.Record {
	rec := withMeta(dashboard.CustomerRecord(cu), cu.ID, dashboard.FormatTime(cu.Created), dashboard.FormatTime(cu.Updated))
	rec["lifetime_value"] = cu.LifetimeValue.StringFixed(2)
	rec["order_count"] = cu.OrderCount
	rec["repeat_orders"] = cu.RepeatOrders
	rec["last_order_number"] = cu.LastOrderNumber
	rec["last_order_at"] = dashboard.FormatTime(cu.LastOrderAt)
	return rec
}

func productJSON(p dashboard.Product) dashboard.Record {
	rec := withMeta(dashboard.ProductRecord(p), p.ID, dashboard.FormatTime(p.Created), dashboard.FormatTime(p.Updated))
	rec["price"] = p.Price.StringFixed(2)
	rec["stock_value"] = p.StockValue().StringFixed(2)
	rec["total_sold"] = p.TotalSold
	return rec
}

func profileJSON(p dashboard.Profile) dashboard.Record {
	rec := withMeta(dashboard.ProfileRecord(p), p.ID, dashboard.FormatTime(p.Created), dashboard.FormatTime(p.Updated))
	rec["logo"] = p.Logo
	return rec
}

func summaryJSON(s dashboard.Summary) gin.H {
	byStatus := make(gin.H, len(s.ByStatus))
	for st, n := range s.ByStatus {
		byStatus[string(st)] = n
	}
	return gin.H{
		"bucket":       s.Bucket.Name,
		"orders":       s.Orders,
		"revenue":      s.Revenue.StringFixed(2),
		"paid_revenue": s.PaidRevenue.StringFixed(2),
		"average":      s.Average.StringFixed(2),
		"by_status":    byStatus,
	}
}
