package web

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/design2deploy2025/inventory-management-sub000/dashboard"
)

// resource exposes one synchronized list with its editor over REST.
type resource[T dashboard.Entity] struct {
	list   *dashboard.List[T]
	editor func(*dashboard.List[T]) *dashboard.Editor[T]
	decode func(dashboard.Record) (T, error)
	encode func(T) dashboard.Record
	view   func(T) dashboard.Record
	filter func([]T, url.Values) []T
}

func orderResource(l *dashboard.List[dashboard.Order]) resource[dashboard.Order] {
	return resource[dashboard.Order]{
		list:   l,
		editor: dashboard.NewOrderEditor,
		decode: dashboard.DecodeOrder,
		encode: dashboard.OrderRecord,
		view:   orderJSON,
		filter: func(items []dashboard.Order, q url.Values) []dashboard.Order {
			return dashboard.FilterOrders(items, dashboard.OrderFilter{
				Search:  q.Get("q"),
				Status:  q.Get("status"),
				Payment: q.Get("payment"),
				Source:  q.Get("source"),
				Sort:    q.Get("sort"),
			})
		},
	}
}

func customerResource(l *dashboard.List[dashboard.Customer]) resource[dashboard.Customer] {
	return resource[dashboard.Customer]{
		list:   l,
		editor: dashboard.NewCustomerEditor,
		decode: dashboard.DecodeCustomer,
		encode: dashboard.CustomerRecord,
		view:   customerJSON,
		filter: func(items []dashboard.Customer, q url.Values) []dashboard.Customer {
			return dashboard.FilterCustomers(items, dashboard.CustomerFilter{
				Search: q.Get("q"),
				Source: q.Get("source"),
				Sort:   q.Get("sort"),
			})
		},
	}
}

func productResource(l *dashboard.List[dashboard.Product]) resource[dashboard.Product] {
	return resource[dashboard.Product]{
		list:   l,
		editor: dashboard.NewProductEditor,
		decode: dashboard.DecodeProduct,
		encode: dashboard.ProductRecord,
		view:   productJSON,
		filter: func(items []dashboard.Product, q url.Values) []dashboard.Product {
			return dashboard.FilterProducts(items, dashboard.ProductFilter{
				Search:   q.Get("q"),
				Category: q.Get("category"),
				Status:   q.Get("status"),
				Sort:     q.Get("sort"),
			})
		},
	}
}

func (r resource[T]) register(g *gin.RouterGroup, s *Server) {
	g.GET("", r.index)
	g.GET("/:id", r.show)
	g.POST("", func(c *gin.Context) { r.create(c, s) })
	g.PATCH("/:id", func(c *gin.Context) { r.update(c, s) })
	g.DELETE("/:id", func(c *gin.Context) { r.remove(c, s) })
}

func (r resource[T]) index(c *gin.Context) {
	st := r.list.State()
	items := r.filter(st.Items, c.Request.URL.Query())
	rows := make([]dashboard.Record, 0, len(items))
	for _, it := range items {
		rows = append(rows, r.view(it))
	}
	c.JSON(http.StatusOK, gin.H{
		"items":   rows,
		"total":   len(st.Items),
		"loading": st.Loading,
		"error":   errString(st.Err),
	})
}

func (r resource[T]) find(id string) (T, bool) {
	for _, it := range r.list.Items() {
		if it.RecordID() == id {
			return it, true
		}
	}
	var zero T
	return zero, false
}

func (r resource[T]) show(c *gin.Context) {
	it, ok := r.find(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": dashboard.ErrNotFound.Error()})
		return
	}
	c.JSON(http.StatusOK, r.view(it))
}

// overlay applies the request body onto base. Keys the body does not name
// keep their current value.
func overlay(base, patch dashboard.Record) dashboard.Record {
	out := base.Clone()
	for k, v := range patch {
		switch k {
		case "id", dashboard.OwnerField, "created", "updated":
			continue
		}
		out[k] = v
	}
	return out
}

func (r resource[T]) create(c *gin.Context, s *Server) {
	var body dashboard.Record
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ed := r.editor(r.list)
	draft, err := r.decode(overlay(r.encode(ed.Draft()), body))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ed.Set(func(d *T) { *d = draft })
	saved, err := ed.Submit(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, r.view(saved))
}

func (r resource[T]) update(c *gin.Context, s *Server) {
	current, ok := r.find(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": dashboard.ErrNotFound.Error()})
		return
	}
	var body dashboard.Record
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	draft, err := r.decode(overlay(r.view(current), body))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ed := r.editor(r.list)
	ed.Edit(draft)
	saved, err := ed.Submit(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r.view(saved))
}

// remove needs ?confirm=<id> echoing the row being deleted.
func (r resource[T]) remove(c *gin.Context, s *Server) {
	id := c.Param("id")
	if err := dashboard.ConfirmDelete(c.Request.Context(), r.list, id, c.Query("confirm")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
