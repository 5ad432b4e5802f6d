package http

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"txadmin/internal/api"
	"txadmin/internal/cache"
	"txadmin/internal/log"
	"txadmin/internal/metrics"
	"txadmin/internal/middleware/ratelimit"
	"txadmin/internal/middleware/security"
	"txadmin/internal/middleware/trace"
	"txadmin/internal/services"
	"txadmin/internal/session"
	appweb "txadmin/web"
)

// Deps are the collaborators the server is built from. API and Sessions
// are required.
type Deps struct {
	API          *api.Client
	Sessions     *session.Manager
	Transactions *services.TransactionService
	Metrics      *metrics.Metrics
	Caches       *cache.Manager
	Logger       *log.Logger
	// Ping reports whether the session backend is usable. Optional.
	Ping func(ctx context.Context) error
}

type Options struct {
	ViewStateMaxEntries int
	ViewStateTTL        time.Duration
	LoginRatePerMinute  int
}

// Server is the admin web server.
type Server struct {
	http.Server

	api          *api.Client
	sessions     *session.Manager
	tx           *services.TransactionService
	metrics      *metrics.Metrics
	logger       *log.Logger
	ping         func(ctx context.Context) error
	templates    *template.Template
	views        *viewStates
	detector     *security.Detector
	loginLimiter *ratelimit.Limiter
	started      time.Time
}

// NewServer parses the templates and wires the routes.
func NewServer(addr string, deps Deps, opts Options) (*Server, error) {
	if deps.API == nil || deps.Sessions == nil {
		return nil, errors.New("http: API client and session manager are required")
	}
	if deps.Logger == nil {
		deps.Logger = log.Discard()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.Transactions == nil {
		deps.Transactions = services.NewTransactionService(nil, deps.Metrics, deps.Logger)
	}
	if opts.ViewStateMaxEntries <= 0 {
		opts.ViewStateMaxEntries = 5000
	}
	if opts.ViewStateTTL <= 0 {
		opts.ViewStateTTL = 2 * time.Hour
	}

	t, err := template.New("").Funcs(templateFuncs()).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		api:          deps.API,
		sessions:     deps.Sessions,
		tx:           deps.Transactions,
		metrics:      deps.Metrics,
		logger:       deps.Logger.WithComponent(log.ComponentHTTP),
		ping:         deps.Ping,
		templates:    t,
		views:        newViewStates(opts.ViewStateMaxEntries, opts.ViewStateTTL),
		detector:     security.NewDetector(),
		loginLimiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.LoginRatePerMinute}),
		started:      time.Now(),
	}
	s.detector.OnSuspicious(func(*http.Request) { s.metrics.SuspiciousRequest() })

	if deps.Caches != nil {
		for _, c := range s.views.cleaners() {
			deps.Caches.Register(c)
		}
	}
	s.metrics.GaugeFunc("view_states", "Drafts and tables held in memory", func() float64 {
		return float64(s.views.size())
	})
	s.metrics.GaugeFunc("login_rate_limit_clients", "Clients tracked by the login rate limiter", func() float64 {
		return float64(s.loginLimiter.ActiveClients())
	})

	handler, err := s.routes()
	if err != nil {
		return nil, err
	}
	s.Handler = handler
	return s, nil
}

func (s *Server) routes() (http.Handler, error) {
	r := chi.NewRouter()

	tm := trace.NewMiddleware(s.logger, s.detector.ExtractClientIP, s.metrics)
	r.Use(tm.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.CleanPath)
	r.Use(security.Headers(security.DefaultHeadersConfig()))
	r.Use(s.detector.Middleware(s.logger))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	sub, err := fs.Sub(appweb.StaticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("mount static assets: %w", err)
	}
	static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
	r.Handle("/static/*", security.StaticAssetMiddleware(3600)(static))

	r.Group(func(r chi.Router) {
		r.Use(security.NoStore)
		r.Use(s.withSession)

		r.Get("/login", s.handleLoginPage)
		r.With(s.loginLimiter.Middleware(s.detector.ExtractClientIP, s.onLoginLimited)).
			Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				http.Redirect(w, r, "/dashboard", http.StatusFound)
			})
			r.Get("/dashboard", s.handleDashboard)

			r.Get("/transaction/add", s.handleDraftNew)
			r.Get("/transaction/edit/{id}", s.handleDraftEdit)
			r.Route("/drafts/{draft}", func(r chi.Router) {
				r.Post("/groups", s.draftOp(opAddGroup))
				r.Post("/groups/{group}/remove", s.draftOp(opRemoveGroup))
				r.Post("/groups/{group}/kind", s.draftOp(opSetKind))
				r.Post("/groups/{group}/items", s.draftOp(opAddItem))
				r.Post("/groups/{group}/items/{index}/remove", s.draftOp(opRemoveItem))
				r.Post("/save", s.handleDraftSave)
			})

			list := s.listTable()
			r.Get("/transaction/list", mountTable(s, list))
			r.Post("/transaction/list/delete/{id}", s.handleListDelete)
			r.Post("/transaction/list/{action}", tableAction(s, list))

			recap := s.recapTable()
			r.Get("/transaction/recap", mountTable(s, recap))
			r.Get("/transaction/recap/export.csv", s.handleRecapExport)
			r.Post("/transaction/recap/{action}", tableAction(s, recap))
		})
	})

	return r, nil
}

// Shutdown stops the background work of the server and drains
// connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.loginLimiter.Stop()
	return s.Server.Shutdown(ctx)
}
