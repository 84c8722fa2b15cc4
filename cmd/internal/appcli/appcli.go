// ABOUTME: Shared runtime for the sellerdesk CLI: config, logger, local store,
// ABOUTME: PocketBase client, session and dashboard, or cached snapshots offline.
package appcli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/design2deploy2025/inventory-management-sub000/dashboard"
	"github.com/design2deploy2025/inventory-management-sub000/internal/config"
	"github.com/design2deploy2025/inventory-management-sub000/internal/logging"
	pbclient "github.com/design2deploy2025/inventory-management-sub000/internal/pocketbase"
)

// Options wires shared CLI runtime bits.
type Options struct {
	ConfigPath string
	ServerURL  string
	Offline    bool
	LogLevel   string
}

// App glues a CLI command to the dashboard library.
type App struct {
	Config  *config.Config
	Log     *zap.Logger
	Store   *dashboard.Store
	Client  *pbclient.Client
	Session *dashboard.Session
	Dash    *dashboard.Dashboard

	opts    Options
	started bool
	auth    *pbclient.Auth
	stop    context.CancelFunc
}

// NewApp loads config and opens the local store. Unless opts.Offline is
// set it also builds the PocketBase client and the dashboard; nothing
// touches the network until Start.
func NewApp(opts Options) (*App, error) {
	if opts.ConfigPath == "" {
		opts.ConfigPath = config.DefaultPath()
	}
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.ServerURL != "" {
		cfg.Server.URL = opts.ServerURL
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	log := logging.Must(cfg.Log.Level, cfg.Log.Encoding)

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Log: log, Store: store, opts: opts}
	if opts.Offline {
		return a, nil
	}

	if err := cfg.RequireServer(); err != nil {
		_ = store.Close()
		return nil, err
	}
	if err := bindServer(context.Background(), store, cfg.Server.URL, log); err != nil {
		_ = store.Close()
		return nil, err
	}
	client, err := pbclient.New(pbclient.Config{BaseURL: cfg.Server.URL, Timeout: cfg.Server.Timeout, Logger: log})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	a.Client = client
	a.auth = pbclient.NewAuth(client, store)
	a.wire(client, client, a.auth)
	return a, nil
}

// wire builds the session and dashboard over the given backends.
func (a *App) wire(gw dashboard.Gateway, files dashboard.FileUploader, auth dashboard.AuthBackend) {
	a.Session = dashboard.NewSession(auth, a.Log)
	a.Dash = dashboard.New(gw, files, a.Session, dashboard.ListConfig{Cache: a.Store, Logger: a.Log})
}

// serverStateKey holds the server the stored session and cache came from.
const serverStateKey = "server_url"

// bindServer records url as the store's server. A session and cache left
// by a different server are dropped so its token is never sent elsewhere.
func bindServer(ctx context.Context, store *dashboard.Store, url string, log *zap.Logger) error {
	url = strings.TrimRight(url, "/")
	prev, err := store.GetState(ctx, serverStateKey, "")
	if err != nil {
		return fmt.Errorf("read bound server: %w", err)
	}
	if prev != "" && prev != url {
		if sess, err := store.LoadSession(ctx); err == nil {
			log.Info("server changed; dropping stored session",
				zap.String("from", prev), zap.String("to", url), zap.String("principal", string(sess.Principal)))
			if err := store.ClearSnapshots(ctx, sess.Principal); err != nil {
				return err
			}
			if err := store.ClearSession(ctx); err != nil {
				return err
			}
		}
	}
	return store.SetState(ctx, serverStateKey, url)
}

func openStore(cfg *config.Config) (*dashboard.Store, error) {
	key, err := dashboard.DeriveStoreKey(cfg.DeviceKey)
	if err != nil {
		return nil, fmt.Errorf("%w\nRun 'sellerdesk init' first", err)
	}
	if err := ensureDir(cfg.Store.Path); err != nil {
		return nil, err
	}
	return dashboard.OpenStore(cfg.Store.Path, key)
}

// Offline reports whether the app reads cached snapshots only.
func (a *App) Offline() bool { return a.Dash == nil }

// Start restores the persisted session and mounts the lists for it. The
// session token is kept fresh in the background until Close.
func (a *App) Start(ctx context.Context) error {
	if a.Offline() {
		return errors.New("not available offline")
	}
	if a.started {
		return nil
	}
	a.started = true
	if a.auth != nil {
		fresh, stop := context.WithCancel(context.Background())
		a.stop = stop
		go a.auth.KeepFresh(fresh)
	}
	if err := a.Session.Start(ctx); err != nil {
		return err
	}
	return a.Dash.Run(ctx)
}

// Principal returns the signed-in principal. Offline it is the principal
// of the persisted session.
func (a *App) Principal(ctx context.Context) (dashboard.Principal, error) {
	if a.Offline() {
		sess, err := a.Store.LoadSession(ctx)
		if err != nil {
			return "", err
		}
		return sess.Principal, nil
	}
	if err := a.Start(ctx); err != nil {
		return "", err
	}
	return a.Session.Require(ctx)
}

// Close releases resources.
func (a *App) Close() error {
	var errs []error
	if a.stop != nil {
		a.stop()
	}
	if a.Dash != nil {
		errs = append(errs, a.Dash.Close())
	}
	if a.Client != nil {
		errs = append(errs, a.Client.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	_ = a.Log.Sync()
	return errors.Join(errs...)
}

// Snapshot is the rows of one collection and when they were fetched.
type Snapshot[T any] struct {
	Items   []T
	SavedAt time.Time
	Cached  bool
}

// Orders returns the principal's orders, live or from the local cache.
func (a *App) Orders(ctx context.Context) (Snapshot[dashboard.Order], error) {
	if a.Offline() {
		return cached(ctx, a, dashboard.CollectionOrders, dashboard.DecodeOrder)
	}
	return live(ctx, a, a.Dash.Orders)
}

// Customers returns the principal's customers.
func (a *App) Customers(ctx context.Context) (Snapshot[dashboard.Customer], error) {
	if a.Offline() {
		return cached(ctx, a, dashboard.CollectionCustomers, dashboard.DecodeCustomer)
	}
	return live(ctx, a, a.Dash.Customers)
}

// Products returns the principal's products.
func (a *App) Products(ctx context.Context) (Snapshot[dashboard.Product], error) {
	if a.Offline() {
		return cached(ctx, a, dashboard.CollectionProducts, dashboard.DecodeProduct)
	}
	return live(ctx, a, a.Dash.Products)
}

// Profile returns the business profile. Offline it is read from the
// cached profile rows and may be empty.
func (a *App) Profile(ctx context.Context) (dashboard.Profile, error) {
	p, err := a.Principal(ctx)
	if err != nil {
		return dashboard.Profile{}, err
	}
	if a.Offline() {
		snap, err := cached(ctx, a, dashboard.CollectionProfiles, dashboard.DecodeProfile)
		if err != nil || len(snap.Items) == 0 {
			return dashboard.Profile{}, nil
		}
		return snap.Items[0], nil
	}
	prof, err := a.Dash.Profiles.Ensure(ctx, p)
	if err != nil {
		return dashboard.Profile{}, err
	}
	row := dashboard.ProfileRecord(prof)
	row["id"] = prof.ID
	row["logo"] = prof.Logo
	rows := []dashboard.Record{row}
	if err := a.Store.SaveSnapshot(ctx, dashboard.CollectionProfiles, p, rows); err != nil {
		a.Log.Warn("cache profile", zap.Error(err))
	}
	return prof, nil
}

func live[T dashboard.Entity](ctx context.Context, a *App, l *dashboard.List[T]) (Snapshot[T], error) {
	if _, err := a.Principal(ctx); err != nil {
		return Snapshot[T]{}, err
	}
	l.Wait()
	st := l.State()
	if st.Err != nil {
		return Snapshot[T]{}, st.Err
	}
	return Snapshot[T]{Items: st.Items, SavedAt: time.Now()}, nil
}

func cached[T any](ctx context.Context, a *App, collection string, decode func(dashboard.Record) (T, error)) (Snapshot[T], error) {
	p, err := a.Principal(ctx)
	if err != nil {
		return Snapshot[T]{}, err
	}
	rows, savedAt, err := a.Store.LoadSnapshot(ctx, collection, p)
	if errors.Is(err, dashboard.ErrNotFound) {
		return Snapshot[T]{Cached: true}, nil
	}
	if err != nil {
		return Snapshot[T]{}, err
	}
	items := make([]T, 0, len(rows))
	for _, r := range rows {
		it, err := decode(r)
		if err != nil {
			return Snapshot[T]{}, fmt.Errorf("decode cached %s: %w", collection, err)
		}
		items = append(items, it)
	}
	return Snapshot[T]{Items: items, SavedAt: savedAt, Cached: true}, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o750)
}
