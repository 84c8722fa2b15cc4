// ABOUTME: sellerdeskd is the hosted backend for sellerdesk: PocketBase with
// ABOUTME: owner-scoped collections, derived-field hooks and the contact relay.

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/router"
	"go.uber.org/zap"

	"github.com/design2deploy2025/inventory-management-sub000/internal/config"
	"github.com/design2deploy2025/inventory-management-sub000/internal/logging"
	pbclient "github.com/design2deploy2025/inventory-management-sub000/internal/pocketbase"

	_ "github.com/design2deploy2025/inventory-management-sub000/cmd/sellerdeskd/migrations"
)

// contactRetention is how long relayed contact messages are kept.
const contactRetention = 90 * 24 * time.Hour

// Server bundles state for sellerdeskd handlers and hooks.
type Server struct {
	app             core.App
	log             *zap.Logger
	contactLimiters *rateLimiterStore // Per-IP limits for the public contact route
	mailTo          string
	now             func() time.Time
}

func newServer(app core.App, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		app:             app,
		log:             log,
		contactLimiters: newRateLimiterStore(ContactRateLimitConfig()),
		mailTo:          os.Getenv("SELLERDESK_CONTACT_TO"),
		now:             time.Now,
	}
}

func main() {
	_ = config.LoadDotEnv()
	log := logging.Must(envOr("SELLERDESK_LOG_LEVEL", "info"), envOr("SELLERDESK_LOG_ENCODING", "json"))
	defer func() { _ = log.Sync() }()

	app := pocketbase.New()
	srv := newServer(app, log)
	srv.bindHooks()

	app.OnServe().BindFunc(func(se *core.ServeEvent) error {
		srv.registerRoutes(se.Router)
		return se.Next()
	})

	app.OnServe().BindFunc(func(se *core.ServeEvent) error {
		srv.startCleanupRoutine(context.Background())
		return se.Next()
	})

	if err := app.Start(); err != nil {
		log.Fatal("sellerdeskd exited", zap.Error(err))
	}
}

func (s *Server) registerRoutes(r *router.Router[*core.RequestEvent]) {
	r.GET("/healthz", func(e *core.RequestEvent) error {
		return e.NoContent(http.StatusOK)
	})

	r.POST(pbclient.ContactPath, s.wrapHandler(s.withIPRateLimit(s.handleContact)))
}

// wrapHandler converts http.HandlerFunc to PocketBase RequestHandler.
func (s *Server) wrapHandler(h http.HandlerFunc) func(*core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		h(e.Response, e.Request)
		return nil
	}
}

// withIPRateLimit applies per-IP rate limiting to unauthenticated routes.
func (s *Server) withIPRateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.contactLimiters != nil {
			if !s.contactLimiters.get(getClientIP(r)).Allow() {
				fail(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
		}
		next(w, r)
	}
}

// helpers

func ok(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func fail(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": msg})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
