// ABOUTME: Dashboard owns the session and every list view, mounting them
// ABOUTME: when a principal signs in and unmounting them on sign-out.
package dashboard

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Dashboard is the gated area: all lists share one principal.
type Dashboard struct {
	Session   *Session
	Orders    *List[Order]
	Customers *List[Customer]
	Products  *List[Product]
	Stats     *StatsView
	Profiles  *Profiles

	log *zap.Logger

	mu      sync.Mutex
	mounted Principal
	stop    func()
	lastErr error
}

// New wires the lists against gw. files may be nil.
func New(gw Gateway, files FileUploader, session *Session, cfg ListConfig) *Dashboard {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Dashboard{
		Session:   session,
		Orders:    NewOrderList(gw, cfg),
		Customers: NewCustomerList(gw, cfg),
		Products:  NewProductList(gw, cfg),
		Stats:     NewStatsView(gw, cfg),
		Profiles:  NewProfiles(gw, files, log),
		log:       log,
	}
}

// Run follows the session: every transition to Authenticated (re)mounts
// the lists for the new principal, Anonymous unmounts them. It returns the
// fetch errors of the initial mount, if any.
func (d *Dashboard) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.stop != nil {
		d.mu.Unlock()
		return errors.New("dashboard already running")
	}
	d.stop = d.Session.Watch(func(s SessionSnapshot) { d.follow(ctx, s) })
	d.mu.Unlock()
	d.follow(ctx, d.Session.Snapshot())

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr
}

// Principal is the principal the lists are mounted for.
func (d *Dashboard) Principal() Principal {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mounted
}

// Wait blocks until every list has settled its reconciliation fetches.
func (d *Dashboard) Wait() {
	d.Orders.Wait()
	d.Customers.Wait()
	d.Products.Wait()
	d.Stats.Wait()
}

// Close unmounts every list and releases the session.
func (d *Dashboard) Close() error {
	d.mu.Lock()
	stop := d.stop
	d.stop = nil
	d.mounted = ""
	d.mu.Unlock()
	if stop != nil {
		stop()
	}
	return errors.Join(d.unmountAll(), d.Session.Close())
}

func (d *Dashboard) follow(ctx context.Context, s SessionSnapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch s.State {
	case StateAuthenticated:
		if s.Identity.Principal == d.mounted {
			return
		}
		d.mounted = s.Identity.Principal
		d.lastErr = d.mountAll(ctx, d.mounted)
	case StateAnonymous:
		if d.mounted == "" {
			return
		}
		d.mounted = ""
		d.lastErr = d.unmountAll()
	}
}

// mountAll mounts each list independently; one failed fetch leaves its
// siblings loaded.
func (d *Dashboard) mountAll(ctx context.Context, p Principal) error {
	var errs []error
	for _, mount := range []func(context.Context, Principal) error{
		d.Orders.Mount, d.Customers.Mount, d.Products.Mount, d.Stats.Mount,
	} {
		if err := mount(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		d.log.Warn("mount", zap.Error(err))
		return err
	}
	d.log.Debug("mounted", zap.String("principal", string(p)))
	return nil
}

func (d *Dashboard) unmountAll() error {
	return errors.Join(d.Orders.Unmount(), d.Customers.Unmount(), d.Products.Unmount(), d.Stats.Unmount())
}
