// ABOUTME: Local HTTP API over the dashboard: session, gated entity lists,
// ABOUTME: editors, analytics, profile and the PDF report.
package web

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/design2deploy2025/inventory-management-sub000/dashboard"
	"github.com/design2deploy2025/inventory-management-sub000/report"
)

const principalKey = "principal"

// Options configures a Server.
type Options struct {
	Logger *zap.Logger
	// BestSellers caps the best seller tables. Zero means 10.
	BestSellers int
	// SessionWait bounds how long a request waits for session restore.
	SessionWait time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Server serves the dashboard over HTTP.
type Server struct {
	dash   *dashboard.Dashboard
	log    *zap.Logger
	opts   Options
	engine *gin.Engine
}

// New builds the router. The dashboard must already be running so that
// session transitions mount its lists.
func New(d *dashboard.Dashboard, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.BestSellers == 0 {
		opts.BestSellers = 10
	}
	if opts.SessionWait == 0 {
		opts.SessionWait = 10 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	gin.SetMode(gin.ReleaseMode)
	s := &Server{dash: d, log: opts.Logger, opts: opts, engine: gin.New()}
	s.engine.Use(gin.Recovery(), loggerMiddleware(s.log))
	s.routes()
	return s
}

// Handler returns the http.Handler for the API.
func (s *Server) Handler() http.Handler { return s.engine }

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info("dashboard listening", zap.String("addr", addr))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdown); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) routes() {
	r := s.engine
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	sess := r.Group("/api/session")
	sess.GET("", s.getSession)
	sess.POST("/signin", s.signIn)
	sess.POST("/signup", s.signUp)
	sess.POST("/signout", s.signOut)

	api := r.Group("/api", s.requireSession)
	orderResource(s.dash.Orders).register(api.Group("/orders"), s)
	customerResource(s.dash.Customers).register(api.Group("/customers"), s)
	productResource(s.dash.Products).register(api.Group("/products"), s)
	api.GET("/categories", s.categories)
	api.GET("/stats", s.stats)
	api.GET("/profile", s.getProfile)
	api.PUT("/profile", s.putProfile)
	api.POST("/profile/logo", s.uploadLogo)
	api.GET("/report.pdf", s.reportPDF)
}

func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// requireSession blocks while the session is initializing and rejects
// anonymous requests.
func (s *Server) requireSession(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.opts.SessionWait)
	defer cancel()
	p, err := s.dash.Session.Require(ctx)
	if err != nil {
		s.fail(c, err)
		c.Abort()
		return
	}
	c.Set(principalKey, p)
	c.Next()
}

func principal(c *gin.Context) dashboard.Principal {
	p, _ := c.Get(principalKey)
	v, _ := p.(dashboard.Principal)
	return v
}

// fail maps dashboard errors onto HTTP statuses.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	body := gin.H{"error": err.Error()}
	var ve *dashboard.ValidationError
	switch {
	case errors.As(err, &ve):
		status = http.StatusUnprocessableEntity
		body["fields"] = ve.Fields
	case errors.Is(err, dashboard.ErrAuth):
		status = http.StatusUnauthorized
	case errors.Is(err, dashboard.ErrScopeMismatch):
		status = http.StatusForbidden
	case errors.Is(err, dashboard.ErrConfirmationRequired):
		status = http.StatusConflict
	case errors.Is(err, dashboard.ErrUpload):
		status = http.StatusBadRequest
	case errors.Is(err, dashboard.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, dashboard.ErrNotMounted), errors.Is(err, dashboard.ErrUnmounted):
		status = http.StatusServiceUnavailable
	case errors.Is(err, dashboard.ErrWrite), errors.Is(err, dashboard.ErrFetch):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status >= 500 {
		s.log.Warn("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	c.JSON(status, body)
}

type credentials struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func sessionJSON(snap dashboard.SessionSnapshot) gin.H {
	return gin.H{
		"state":     snap.State.String(),
		"principal": string(snap.Identity.Principal),
		"email":     snap.Identity.Email,
	}
}

func (s *Server) getSession(c *gin.Context) {
	c.JSON(http.StatusOK, sessionJSON(s.dash.Session.Snapshot()))
}

func (s *Server) signIn(c *gin.Context) {
	s.authenticate(c, s.dash.Session.SignIn)
}

func (s *Server) signUp(c *gin.Context) {
	s.authenticate(c, s.dash.Session.SignUp)
}

func (s *Server) authenticate(c *gin.Context, fn func(context.Context, string, string) (dashboard.Identity, error)) {
	var in credentials
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := fn(c.Request.Context(), in.Email, in.Password); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionJSON(s.dash.Session.Snapshot()))
}

func (s *Server) signOut(c *gin.Context) {
	if err := s.dash.Session.SignOut(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionJSON(s.dash.Session.Snapshot()))
}

func (s *Server) categories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"categories": dashboard.Categories(s.dash.Products.Items())})
}

func (s *Server) stats(c *gin.Context) {
	st := s.dash.Stats.State()
	summaries := make([]gin.H, 0, 5)
	for _, sum := range s.dash.Stats.Summaries(s.opts.Now()) {
		summaries = append(summaries, summaryJSON(sum))
	}
	sellers := make([]gin.H, 0)
	for _, b := range s.dash.Stats.BestSellers(s.opts.BestSellers) {
		sellers = append(sellers, gin.H{
			"product":  b.ProductID,
			"name":     b.Name,
			"quantity": b.Quantity,
			"revenue":  b.Revenue.StringFixed(2),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"summaries":    summaries,
		"best_sellers": sellers,
		"loading":      st.Loading,
		"error":        errString(st.Err),
	})
}

func (s *Server) getProfile(c *gin.Context) {
	prof, err := s.dash.Profiles.Ensure(c.Request.Context(), principal(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, profileJSON(prof))
}

func (s *Server) putProfile(c *gin.Context) {
	var patch dashboard.Record
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	current, err := s.dash.Profiles.Ensure(ctx, principal(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	rec := dashboard.ProfileRecord(current)
	for k, v := range patch {
		if _, editable := rec[k]; editable {
			rec[k] = v
		}
	}
	next, _ := dashboard.DecodeProfile(rec)
	next.ID = current.ID
	saved, err := s.dash.Profiles.Save(ctx, principal(c), next)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, profileJSON(saved))
}

func (s *Server) uploadLogo(c *gin.Context) {
	fh, err := c.FormFile("logo")
	if err != nil {
		s.fail(c, &dashboard.UploadError{Reason: "logo file missing"})
		return
	}
	if fh.Size > dashboard.MaxLogoSize {
		s.fail(c, &dashboard.UploadError{Reason: "file is larger than 2 MiB"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		s.fail(c, err)
		return
	}
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(io.LimitReader(f, dashboard.MaxLogoSize+1))
	if err != nil {
		s.fail(c, err)
		return
	}
	prof, err := s.dash.Profiles.UploadLogo(c.Request.Context(), principal(c), fh.Filename, data)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, profileJSON(prof))
}

func (s *Server) reportPDF(c *gin.Context) {
	prof, err := s.dash.Profiles.Ensure(c.Request.Context(), principal(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	data := report.Collect(s.dash.Stats.Items(), s.dash.Products.Items(), prof, s.opts.Now(), s.opts.BestSellers)
	pdf := report.Build(data)
	if err := pdf.Error(); err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Content-Type", "application/pdf")
	c.Header("Content-Disposition", `attachment; filename="sales-report-`+s.opts.Now().Format("2006-01-02")+`.pdf"`)
	c.Status(http.StatusOK)
	if err := pdf.Output(c.Writer); err != nil {
		s.log.Warn("write report", zap.Error(err))
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
