package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/design2deploy2025/inventory-management-sub000/cmd/internal/appcli"
	"github.com/design2deploy2025/inventory-management-sub000/dashboard"
	"github.com/design2deploy2025/inventory-management-sub000/report"
)

func cmdStats(args []string) error {
	c := newCommand("stats")
	limit := c.fs.Int("top", 0, "best sellers to show (default from config)")
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
	printStats(snap.Items, time.Now(), topN(app, *limit))
	cachedNote(snap.Cached, stamp(snap.SavedAt))
	return nil
}

func topN(app *appcli.App, flagged int) int {
	if flagged > 0 {
		return flagged
	}
	if app.Config.Report.BestSellers > 0 {
		return app.Config.Report.BestSellers
	}
	return 10
}

func printStats(orders []dashboard.Order, now time.Time, limit int) {
	w := table()
	fmt.Fprintln(w, "PERIOD\tORDERS\tREVENUE\tPAID\tAVERAGE")
	for _, b := range dashboard.Buckets(now) {
		s := dashboard.Summarize(orders, b)
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", b.Name, s.Orders,
			s.Revenue.StringFixed(2), s.PaidRevenue.StringFixed(2), s.Average.StringFixed(2))
	}
	_ = w.Flush()

	best := dashboard.BestSellers(orders, limit)
	if len(best) == 0 {
		return
	}
	fmt.Fprintln(stdout)
	w = table()
	fmt.Fprintln(w, "#\tPRODUCT\tQTY\tREVENUE")
	for i, b := range best {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", i+1, b.Name, b.Quantity, b.Revenue.StringFixed(2))
	}
	_ = w.Flush()
}

func cmdReport(args []string) error {
	c := newCommand("report")
	out := c.fs.String("out", "", "output PDF path (default sales-report-YYYY-MM-DD.pdf)")
	limit := c.fs.Int("top", 0, "best sellers to include (default from config)")
	if err := c.parse(args); err != nil {
		return err
	}
	app, err := c.open()
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	ctx := context.Background()
	orders, err := app.Orders(ctx)
	if err != nil {
		return err
	}
	products, err := app.Products(ctx)
	if err != nil {
		return err
	}
	profile, err := app.Profile(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	path := *out
	if path == "" {
		path = "sales-report-" + now.Format("2006-01-02") + ".pdf"
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	data := report.Collect(orders.Items, products.Items, profile, now, topN(app, *limit))
	if err := report.WritePDF(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Report written to %s (%d orders, %d products)\n", path, len(orders.Items), len(products.Items))
	cachedNote(orders.Cached, stamp(orders.SavedAt))
	return nil
}
