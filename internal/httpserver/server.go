package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"finitefield.org/templates-listing/internal/handlers"
	"finitefield.org/templates-listing/internal/listing"
	"finitefield.org/templates-listing/internal/media"
	custommw "finitefield.org/templates-listing/internal/middleware"
	"finitefield.org/templates-listing/internal/observability"
	"finitefield.org/templates-listing/internal/page"
	"finitefield.org/templates-listing/internal/view"
	"finitefield.org/templates-listing/public"
)

// Config holds runtime options for the HTTP server.
type Config struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	Logger  *zap.Logger
	Content handlers.ContentSource
	Pages   *page.Store
	Sheet   listing.Loader
	// Media serves optimized images. Nil leaves the route unmounted.
	Media http.Handler

	ListingOptions []listing.Option
	InitialWait    time.Duration
	PollInterval   time.Duration

	SessionSigningKey string
	SessionSecure     bool
	CSRFHeaderName    string
}

// New constructs the HTTP server with middleware stack and embedded assets.
func New(cfg Config) *http.Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(observability.TraceMiddleware(nil))
	router.Use(observability.InjectLoggerMiddleware(logger))
	router.Use(custommw.HTMX())
	router.Use(observability.RequestLoggerMiddleware())
	router.Use(observability.RecoveryMiddleware(logger))
	router.Use(chimw.Timeout(60 * time.Second))

	staticContent, err := public.StaticFS()
	if err != nil {
		logger.Fatal("embed static", zap.Error(err))
	}
	router.Handle("/public/static/*", http.StripPrefix("/public/static/", http.FileServer(http.FS(staticContent))))

	if cfg.Media != nil {
		router.Handle(media.DefaultPath, cfg.Media)
	}

	renderer, err := view.New()
	if err != nil {
		logger.Fatal("parse templates", zap.Error(err))
	}

	h := handlers.NewHandlers(handlers.Dependencies{
		Content:        cfg.Content,
		Pages:          cfg.Pages,
		Sheet:          cfg.Sheet,
		Renderer:       renderer,
		ListingOptions: cfg.ListingOptions,
		InitialWait:    cfg.InitialWait,
		PollInterval:   cfg.PollInterval,
		Logger:         logger,
	})

	router.Get("/healthz", h.Healthz)

	sessions := custommw.NewSessions(cfg.SessionSigningKey, cfg.SessionSecure, logger)
	csrfCfg := custommw.CSRFConfig{
		HeaderName: cfg.CSRFHeaderName,
		Sessions:   sessions,
	}

	router.Group(func(r chi.Router) {
		r.Use(sessions.Middleware)
		r.Use(custommw.NoStore())
		r.Use(custommw.CSRF(csrfCfg))

		r.Get("/", h.Index)
		r.Get("/pages/{slug}", h.Page)

		r.Route(handlers.PagePrefix+"/{pageID}", func(r chi.Router) {
			RegisterFragment(r, "/blocks/{blockID}", h.Block)
			RegisterAction(r, "/blocks/{blockID}/filters", h.Filters)
			RegisterAction(r, "/blocks/{blockID}/page", h.Paginate)
			RegisterAction(r, "/blocks/{blockID}/flip", h.Flip)
			RegisterAction(r, "/blocks/{blockID}/chip", h.Chip)
			RegisterFragment(r, "/preview", h.Preview)
			RegisterAction(r, "/preview/close", h.PreviewClose)
		})
	})

	return &http.Server{
		Addr:         cfg.Address,
		Handler:      router,
		ReadTimeout:  orDefault(cfg.ReadTimeout, 10*time.Second),
		WriteTimeout: orDefault(cfg.WriteTimeout, 30*time.Second),
		IdleTimeout:  orDefault(cfg.IdleTimeout, 60*time.Second),
	}
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

// RegisterFragment registers a GET handler intended for htmx fragment rendering.
func RegisterFragment(r chi.Router, pattern string, handler http.HandlerFunc) {
	r.With(custommw.RequireHTMX()).Get(pattern, handler)
}

// RegisterAction registers a POST handler for an htmx-triggered event.
func RegisterAction(r chi.Router, pattern string, handler http.HandlerFunc) {
	r.With(custommw.RequireHTMX()).Post(pattern, handler)
}
