package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	applog "recargas/internal/log"
	"recargas/internal/middleware/ratelimit"
	"recargas/internal/middleware/security"
	"recargas/internal/middleware/trace"
	"recargas/internal/services"
	"recargas/internal/store"
	appweb "recargas/web"
)

// HistoryPageSize is the number of recharges per history page.
const HistoryPageSize = 20

// Pinger is checked by /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the handlers use.
type Deps struct {
	Recharges *services.RechargeService
	Accounts  *services.AccountService
	Contacts  store.ContactStore
	Health    Pinger
	Logger    *applog.Logger
}

// Options tune the HTTP surface.
type Options struct {
	SecureCookies  bool
	MaxUploadBytes int64
	TrustedProxies []string
	// RateLimit is the number of unsafe requests per minute per client.
	RateLimit int
}

type appMetrics struct {
	rechargesCreated  atomic.Int64
	rechargesImported atomic.Int64
	logins            atomic.Int64
	failedLogins      atomic.Int64
}

type Server struct {
	http.Server
	pages     map[string]*template.Template
	recharges *services.RechargeService
	accounts  *services.AccountService
	contacts  store.ContactStore
	health    Pinger
	logger    *applog.Logger
	opts      Options

	detector *security.Detector
	limiter  *ratelimit.Limiter
	tracer   *trace.Middleware

	started      time.Time
	metrics      appMetrics
	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(addr string, deps Deps, opts Options) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = applog.FromContext(context.Background())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 5 << 20
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = ratelimit.DefaultConfig().RequestsPerMinute
	}

	s := &Server{
		recharges: deps.Recharges,
		accounts:  deps.Accounts,
		contacts:  deps.Contacts,
		health:    deps.Health,
		logger:    logger,
		opts:      opts,
		detector:  security.NewDetector(),
		started:   time.Now(),
	}
	for _, cidr := range opts.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", applog.FieldError, err)
		}
	}
	rlConfig := ratelimit.DefaultConfig()
	rlConfig.RequestsPerMinute = opts.RateLimit
	s.limiter = ratelimit.NewLimiter(rlConfig)
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP, logger)

	pages, err := parseTemplates(appweb.TemplatesFS)
	if err != nil {
		logger.Warn("Failed parsing templates", applog.FieldError, err)
	}
	s.pages = pages

	mux := http.NewServeMux()
	s.routes(mux)

	var handler http.Handler = mux
	handler = s.authenticate(handler)
	handler = s.limiter.Middleware(s.detector.ExtractClientIP, s.onRateLimited)(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig(security.ScriptCDNs...)).Middleware(handler)
	handler = s.detector.Middleware(handler)
	handler = applog.Middleware(logger)(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", applog.FieldError, err)
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	// accounts
	mux.HandleFunc("/{$}", s.handleLogin)
	mux.HandleFunc("/login/{$}", s.handleLogin)
	mux.HandleFunc("/register/{$}", s.handleRegister)
	mux.HandleFunc("GET /logout/{$}", s.handleLogout)
	mux.HandleFunc("/contact-us/{$}", s.handleContact)
	mux.HandleFunc("GET /lang/{code}/{$}", s.handleSetLanguage)

	// recharges
	mux.HandleFunc("/recharge/{$}", s.requireLogin(s.handleNewRecharge))
	mux.HandleFunc("/bulk-recharge/{$}", s.requireLogin(s.handleBulkRecharge))
	mux.HandleFunc("GET /history/{$}", s.requireLogin(s.handleHistory))
	mux.HandleFunc("/edit-recharge/{id}/{$}", s.requireLogin(s.handleEditRecharge))
	mux.HandleFunc("POST /delete-recharge/{id}/{$}", s.requireLogin(s.handleDeleteRecharge))
	mux.HandleFunc("POST /delete-all-recharges/{$}", s.requireLogin(s.handleDeleteAllRecharges))
	mux.HandleFunc("GET /dashboard/{$}", s.requireLogin(s.handleDashboard))
	mux.HandleFunc("GET /api/recharges/monthly/{$}", s.requireLogin(s.handleMonthlyReport))
	mux.HandleFunc("/settings/{$}", s.requireLogin(s.handleSettings))
	mux.HandleFunc("GET /admin/users/{$}", s.requireStaff(s.handleAdminUsers))

	// JSON API
	mux.HandleFunc("/api/login/{$}", s.cors(s.handleAPILogin))
	mux.HandleFunc("/api/logout/{$}", s.cors(s.handleAPILogout))
	mux.HandleFunc("/api/recharges/{$}", s.cors(s.requireAPIUser(s.handleAPIRecharges)))
	mux.HandleFunc("/api/recharges/{id}/{$}", s.cors(s.requireAPIUser(s.handleAPIRecharge)))
	mux.HandleFunc("/api/settings/{$}", s.cors(s.requireAPIUser(s.handleAPISettings)))
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.detector.ExtractClientIP(r),
		applog.FieldMethod, r.Method,
		applog.FieldPath, r.URL.Path)
	if isAPI(r) {
		jsonError(w, http.StatusTooManyRequests, "Too many requests")
		return
	}
	http.Error(w, "Muitas requisições. Tente novamente em instantes.", http.StatusTooManyRequests)
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
