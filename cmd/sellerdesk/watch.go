package main

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/design2deploy2025/inventory-management-sub000/dashboard"
	"github.com/design2deploy2025/inventory-management-sub000/internal/web"
)

// cmdWatch follows the live lists and prints a line whenever one changes.
func cmdWatch(args []string) error {
	c := newCommand("watch")
	if err := c.parse(args); err != nil {
		return err
	}
	if c.rt.Offline {
		return errors.New("watch needs the network; drop --offline")
	}
	app, err := c.open()
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	ctx, cancel := signalContext()
	defer cancel()
	p, err := app.Principal(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Watching %s; Ctrl-C to stop\n", p)

	var mu sync.Mutex
	printer := func(name string) func(int, bool, error) {
		last := -1
		return func(n int, loading bool, err error) {
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				fmt.Fprintf(stdout, "%s %-9s error: %v\n", time.Now().Format("15:04:05"), name, err)
			case !loading && n != last:
				fmt.Fprintf(stdout, "%s %-9s %d rows\n", time.Now().Format("15:04:05"), name, n)
				last = n
			}
		}
	}

	stops := []func(){
		watchList(app.Dash.Orders, printer(dashboard.CollectionOrders)),
		watchList(app.Dash.Customers, printer(dashboard.CollectionCustomers)),
		watchList(app.Dash.Products, printer(dashboard.CollectionProducts)),
	}
	defer func() {
		for _, stop := range stops {
			stop()
		}
	}()

	<-ctx.Done()
	fmt.Fprintln(stdout, "Stopped")
	return nil
}

// watchList reports the current state of l to fn and then every change.
func watchList[T dashboard.Entity](l *dashboard.List[T], fn func(n int, loading bool, err error)) func() {
	stop := l.Watch(func(st dashboard.ListState[T]) { fn(len(st.Items), st.Loading, st.Err) })
	st := l.State()
	fn(len(st.Items), st.Loading, st.Err)
	return stop
}

// cmdServe runs the JSON dashboard API over the live lists.
func cmdServe(args []string) error {
	c := newCommand("serve")
	addr := c.fs.String("addr", "", "listen address (default from config)")
	if err := c.parse(args); err != nil {
		return err
	}
	if c.rt.Offline {
		return errors.New("serve needs the network; drop --offline")
	}
	app, err := c.open()
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	ctx, cancel := signalContext()
	defer cancel()
	// A missing session is fine here; clients sign in over the API.
	if err := app.Start(ctx); err != nil && !errors.Is(err, dashboard.ErrAuth) {
		app.Log.Warn("initial load", zap.Error(err))
	}

	listen := *addr
	if listen == "" {
		listen = app.Config.Web.Addr
	}
	srv := web.New(app.Dash, web.Options{
		Logger:      app.Log.Named("web"),
		BestSellers: app.Config.Report.BestSellers,
	})
	fmt.Fprintf(stdout, "Serving dashboard API on %s\n", listen)
	return srv.ListenAndServe(ctx, listen)
}
