// ABOUTME: orders, customers and products commands: list with filters, and
// ABOUTME: add/edit/delete through the dashboard editors.
package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/design2deploy2025/inventory-management-sub000/cmd/internal/appcli"
	"github.com/design2deploy2025/inventory-management-sub000/dashboard"
)

func cmdOrders(args []string) error {
	sub, rest := subcommand(args, "list")
	switch sub {
	case "list":
		return ordersList(rest)
	case "add":
		return ordersAdd(rest)
	case "set":
		return ordersSet(rest)
	case "delete":
		return recordDelete("orders", rest, func(app *appcli.App) *dashboard.List[dashboard.Order] { return app.Dash.Orders })
	default:
		return fmt.Errorf("unknown orders subcommand: %s (list | add | set | delete)", sub)
	}
}

func cmdCustomers(args []string) error {
	sub, rest := subcommand(args, "list")
	switch sub {
	case "list":
		return customersList(rest)
	case "add":
		return customersAdd(rest)
	case "delete":
		return recordDelete("customers", rest, func(app *appcli.App) *dashboard.List[dashboard.Customer] { return app.Dash.Customers })
	default:
		return fmt.Errorf("unknown customers subcommand: %s (list | add | delete)", sub)
	}
}

func cmdProducts(args []string) error {
	sub, rest := subcommand(args, "list")
	switch sub {
	case "list":
		return productsList(rest)
	case "add":
		return productsAdd(rest)
	case "set":
		return productsSet(rest)
	case "delete":
		return recordDelete("products", rest, func(app *appcli.App) *dashboard.List[dashboard.Product] { return app.Dash.Products })
	default:
		return fmt.Errorf("unknown products subcommand: %s (list | add | set | delete)", sub)
	}
}

// orders

func ordersList(args []string) error {
	c := newCommand("orders list")
	var f dashboard.OrderFilter
	c.fs.StringVar(&f.Search, "q", "", "search number, customer, phone, handle")
	c.fs.StringVar(&f.Status, "status", "", "order status")
	c.fs.StringVar(&f.Payment, "payment", "", "payment status")
	c.fs.StringVar(&f.Source, "source", "", "order source")
	c.fs.StringVar(&f.Sort, "sort", "", "newest | oldest | total")
	if err := c.parse(args); err != nil {
		return err
	}
	app, err := c.open()
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	snap, err := app.Orders(context.Background())
	if err != nil {
		return err
	}
	printOrders(dashboard.FilterOrders(snap.Items, f))
	cachedNote(snap.Cached, stamp(snap.SavedAt))
	return nil
}

func printOrders(orders []dashboard.Order) {
	if len(orders) == 0 {
		fmt.Fprintln(stdout, "no orders")
		return
	}
	w := table()
	fmt.Fprintln(w, "ID\tNUMBER\tCUSTOMER\tSTATUS\tPAYMENT\tSOURCE\tTOTAL\tCREATED")
	for _, o := range orders {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			o.ID, o.Number, o.CustomerName, o.Status, o.Payment, o.Source,
			dashboard.OrderTotal(o.Lines).StringFixed(2), stamp(o.Created))
	}
	_ = w.Flush()
}

// parseLine reads "name:price:qty" with an optional ":productID" suffix.
func parseLine(s string) (dashboard.LineItem, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 3 || len(parts) > 4 {
		return dashboard.LineItem{}, fmt.Errorf("item %q: want name:price:qty[:product-id]", s)
	}
	price, err := decimal.NewFromString(strings.TrimSpace(parts[1]))
	if err != nil || !dashboard.ValidPrice(price) {
		return dashboard.LineItem{}, fmt.Errorf("item %q: bad price", s)
	}
	qty, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil || qty <= 0 {
		return dashboard.LineItem{}, fmt.Errorf("item %q: bad quantity", s)
	}
	line := dashboard.LineItem{Name: strings.TrimSpace(parts[0]), Price: price, Quantity: qty}
	if len(parts) == 4 {
		line.ProductID = strings.TrimSpace(parts[3])
	}
	return line, nil
}

func parseLines(items []string) ([]dashboard.LineItem, error) {
	lines := make([]dashboard.LineItem, 0, len(items))
	for _, it := range items {
		l, err := parseLine(it)
		if err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, nil
}

func ordersAdd(args []string) error {
	c := newCommand("orders add")
	var items stringList
	c.fs.Var(&items, "item", "line item name:price:qty[:product-id], repeatable")
	customer := c.fs.String("customer", "", "customer name")
	customerID := c.fs.String("customer-id", "", "customer record id")
	phone := c.fs.String("phone", "", "customer phone")
	handle := c.fs.String("handle", "", "customer social handle")
	source := c.fs.String("source", "", "order source, e.g. Instagram")
	status := c.fs.String("status", "", "order status (default Pending)")
	payment := c.fs.String("payment", "", "payment status (default Unpaid)")
	paymentType := c.fs.String("payment-type", "", "payment method")
	notes := c.fs.String("notes", "", "notes")
	if err := c.parse(args); err != nil {
		return err
	}
	lines, err := parseLines(items)
	if err != nil {
		return err
	}

	return withOnline(c, func(ctx context.Context, app *appcli.App) error {
		ed := dashboard.NewOrderEditor(app.Dash.Orders)
		ed.Set(func(o *dashboard.Order) {
			o.Lines = lines
			o.CustomerName = *customer
			o.CustomerID = *customerID
			o.CustomerPhone = *phone
			o.CustomerHandle = *handle
			o.Source = *source
			o.PaymentType = *paymentType
			o.Notes = *notes
			if *status != "" {
				o.Status = dashboard.OrderStatus(*status)
			}
			if *payment != "" {
				o.Payment = dashboard.PaymentStatus(*payment)
			}
		})
		saved, err := ed.Submit(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Created order %s (%s) total %s\n", saved.Number, saved.ID, dashboard.OrderTotal(saved.Lines).StringFixed(2))
		return nil
	})
}

func ordersSet(args []string) error {
	id, rest := subcommand(args, "")
	c := newCommand("orders set")
	status := c.fs.String("status", "", "new order status")
	payment := c.fs.String("payment", "", "new payment status")
	notes := c.fs.String("notes", "", "replace notes")
	if err := c.parse(rest); err != nil {
		return err
	}
	if id == "" {
		return errors.New("usage: sellerdesk orders set ID [--status S] [--payment P] [--notes N]")
	}

	return withOnline(c, func(ctx context.Context, app *appcli.App) error {
		current, err := find(app.Dash.Orders, id)
		if err != nil {
			return err
		}
		ed := dashboard.NewOrderEditor(app.Dash.Orders)
		ed.Edit(current)
		ed.Set(func(o *dashboard.Order) {
			if *status != "" {
				o.Status = dashboard.OrderStatus(*status)
			}
			if *payment != "" {
				o.Payment = dashboard.PaymentStatus(*payment)
			}
			if *notes != "" {
				o.Notes = *notes
			}
		})
		saved, err := ed.Submit(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Order %s: %s / %s\n", saved.Number, saved.Status, saved.Payment)
		return nil
	})
}

// customers

func customersList(args []string) error {
	c := newCommand("customers list")
	var f dashboard.CustomerFilter
	c.fs.StringVar(&f.Search, "q", "", "search name, phone, handle")
	c.fs.StringVar(&f.Source, "source", "", "customer source")
	c.fs.StringVar(&f.Sort, "sort", "", "newest | name | value | recent")
	if err := c.parse(args); err != nil {
		return err
	}
	app, err := c.open()
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	snap, err := app.Customers(context.Background())
	if err != nil {
		return err
	}
	customers := dashboard.FilterCustomers(snap.Items, f)
	if len(customers) == 0 {
		fmt.Fprintln(stdout, "no customers")
	} else {
		w := table()
		fmt.Fprintln(w, "ID\tNAME\tPHONE\tHANDLE\tSOURCE\tORDERS\tLIFETIME\tLAST ORDER")
		for _, cu := range customers {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
				cu.ID, cu.Name, cu.Phone, cu.Handle, cu.Source, cu.OrderCount,
				cu.LifetimeValue.StringFixed(2), cu.LastOrderNumber)
		}
		_ = w.Flush()
	}
	cachedNote(snap.Cached, stamp(snap.SavedAt))
	return nil
}

func customersAdd(args []string) error {
	c := newCommand("customers add")
	name := c.fs.String("name", "", "customer name")
	phone := c.fs.String("phone", "", "phone")
	handle := c.fs.String("handle", "", "social handle")
	source := c.fs.String("source", "", "where they found the shop")
	notes := c.fs.String("notes", "", "notes")
	if err := c.parse(args); err != nil {
		return err
	}
	return withOnline(c, func(ctx context.Context, app *appcli.App) error {
		ed := dashboard.NewCustomerEditor(app.Dash.Customers)
		ed.Set(func(cu *dashboard.Customer) {
			cu.Name = strings.TrimSpace(*name)
			cu.Phone = *phone
			cu.Handle = *handle
			cu.Source = *source
			cu.Notes = *notes
		})
		saved, err := ed.Submit(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Created customer %s (%s)\n", saved.Name, saved.ID)
		return nil
	})
}

// products

func productsList(args []string) error {
	c := newCommand("products list")
	var f dashboard.ProductFilter
	c.fs.StringVar(&f.Search, "q", "", "search name, sku, category")
	c.fs.StringVar(&f.Category, "category", "", "category")
	c.fs.StringVar(&f.Status, "status", "", "product status")
	c.fs.StringVar(&f.Sort, "sort", "", "newest | name | price | stock | sold")
	if err := c.parse(args); err != nil {
		return err
	}
	app, err := c.open()
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	snap, err := app.Products(context.Background())
	if err != nil {
		return err
	}
	products := dashboard.FilterProducts(snap.Items, f)
	if len(products) == 0 {
		fmt.Fprintln(stdout, "no products")
	} else {
		w := table()
		fmt.Fprintln(w, "ID\tNAME\tSKU\tCATEGORY\tSTATUS\tPRICE\tQTY\tSTOCK VALUE\tSOLD")
		for _, p := range products {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\t%d\n",
				p.ID, p.Name, p.SKU, p.Category, p.Status, p.Price.StringFixed(2),
				p.Quantity, p.StockValue().StringFixed(2), p.TotalSold)
		}
		_ = w.Flush()
	}
	if cats := dashboard.Categories(snap.Items); len(cats) > 0 {
		fmt.Fprintf(stdout, "categories: %s\n", strings.Join(cats, ", "))
	}
	cachedNote(snap.Cached, stamp(snap.SavedAt))
	return nil
}

// productFlags binds the editable product fields. Unset flags leave the
// draft untouched.
type productFlags struct {
	name, price, category, sku, status, description, tags string
	qty                                                   int
}

func bindProductFlags(c *command) *productFlags {
	pf := &productFlags{qty: -1}
	c.fs.StringVar(&pf.name, "name", "", "product name")
	c.fs.StringVar(&pf.price, "price", "", "unit price")
	c.fs.IntVar(&pf.qty, "qty", -1, "quantity on hand")
	c.fs.StringVar(&pf.category, "category", "", "category")
	c.fs.StringVar(&pf.sku, "sku", "", "stock keeping unit")
	c.fs.StringVar(&pf.status, "status", "", "Active | Inactive | Discontinued")
	c.fs.StringVar(&pf.description, "description", "", "description")
	c.fs.StringVar(&pf.tags, "tags", "", "comma separated tags")
	return pf
}

func (pf *productFlags) apply(p *dashboard.Product) error {
	if pf.price != "" {
		price, err := decimal.NewFromString(pf.price)
		if err != nil || !dashboard.ValidPrice(price) {
			return fmt.Errorf("bad price %q", pf.price)
		}
		p.Price = price
	}
	if pf.name != "" {
		p.Name = strings.TrimSpace(pf.name)
	}
	if pf.qty >= 0 {
		p.Quantity = pf.qty
	}
	if pf.category != "" {
		p.Category = pf.category
	}
	if pf.sku != "" {
		p.SKU = pf.sku
	}
	if pf.status != "" {
		p.Status = dashboard.ProductStatus(pf.status)
	}
	if pf.description != "" {
		p.Description = pf.description
	}
	if pf.tags != "" {
		p.Tags = nil
		for _, t := range strings.Split(pf.tags, ",") {
			if t = strings.TrimSpace(t); t != "" {
				p.Tags = append(p.Tags, t)
			}
		}
	}
	return nil
}

func productsAdd(args []string) error {
	c := newCommand("products add")
	pf := bindProductFlags(c)
	if err := c.parse(args); err != nil {
		return err
	}
	return withOnline(c, func(ctx context.Context, app *appcli.App) error {
		ed := dashboard.NewProductEditor(app.Dash.Products)
		var applyErr error
		ed.Set(func(p *dashboard.Product) { applyErr = pf.apply(p) })
		if applyErr != nil {
			return applyErr
		}
		saved, err := ed.Submit(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Created product %s (%s) stock value %s\n", saved.Name, saved.ID, saved.StockValue().StringFixed(2))
		return nil
	})
}

func productsSet(args []string) error {
	id, rest := subcommand(args, "")
	c := newCommand("products set")
	pf := bindProductFlags(c)
	if err := c.parse(rest); err != nil {
		return err
	}
	if id == "" {
		return errors.New("usage: sellerdesk products set ID [--price P] [--qty N] ...")
	}
	return withOnline(c, func(ctx context.Context, app *appcli.App) error {
		current, err := find(app.Dash.Products, id)
		if err != nil {
			return err
		}
		ed := dashboard.NewProductEditor(app.Dash.Products)
		ed.Edit(current)
		var applyErr error
		ed.Set(func(p *dashboard.Product) { applyErr = pf.apply(p) })
		if applyErr != nil {
			return applyErr
		}
		saved, err := ed.Submit(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Updated product %s: %s x %d\n", saved.Name, saved.Price.StringFixed(2), saved.Quantity)
		return nil
	})
}

// shared

// withOnline opens the app, requires a signed-in session and runs fn.
func withOnline(c *command, fn func(context.Context, *appcli.App) error) error {
	if c.rt.Offline {
		return errors.New("changes need the network; drop --offline")
	}
	app, err := c.open()
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	ctx, cancel := signalContext()
	defer cancel()
	if _, err := app.Principal(ctx); err != nil {
		return err
	}
	return fn(ctx, app)
}

func find[T dashboard.Entity](l *dashboard.List[T], id string) (T, error) {
	l.Wait()
	for _, it := range l.Items() {
		if it.RecordID() == id {
			return it, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("%s %s: %w", l.Collection(), id, dashboard.ErrNotFound)
}

func recordDelete[T dashboard.Entity](name string, args []string, list func(*appcli.App) *dashboard.List[T]) error {
	id, rest := subcommand(args, "")
	c := newCommand(name + " delete")
	confirm := c.fs.String("confirm", "", "repeat the id to confirm")
	if err := c.parse(rest); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("usage: sellerdesk %s delete ID --confirm ID", name)
	}
	return withOnline(c, func(ctx context.Context, app *appcli.App) error {
		if err := dashboard.ConfirmDelete(ctx, list(app), id, *confirm); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Deleted %s %s\n", name, id)
		return nil
	})
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
