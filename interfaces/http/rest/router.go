package rest

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	queryhandlers "atelier/application/queries/handlers"
	"atelier/application/services"
	"atelier/interfaces/http/rest/handlers"
	"atelier/interfaces/http/rest/middleware"
	"atelier/pkg/auth"
	"atelier/pkg/common"
	pkgerrors "atelier/pkg/errors"
	"atelier/pkg/observability"
)

// Dependencies are everything the HTTP surface calls into.
type Dependencies struct {
	Paintings    *services.PaintingService
	Retries      *services.RetryCoordinator
	StatusQuery  *queryhandlers.GetPaintingStatusHandler
	Titles       *services.TitleService
	References   *services.ReferenceService
	Validator    *auth.JWTValidator
	ErrorHandler *pkgerrors.ErrorHandler
	Metrics      *observability.Collector // nil disables /metrics

	// UploadDir is served under UploadPath.
	UploadDir  string
	UploadPath string

	CORSAllowedOrigins []string // empty disables CORS

	// BatchWriteTimeout is the response deadline for POST /api/paintings/generate,
	// which generates every idea before replying. Zero keeps the server's.
	BatchWriteTimeout time.Duration

	// Ready reports whether background workers are accepting work.
	Ready func() bool
}

// Router creates and configures the HTTP router
type Router struct {
	deps   Dependencies
	logger *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(deps Dependencies, logger *zap.Logger) *Router {
	if deps.UploadPath == "" {
		deps.UploadPath = "/uploads"
	}
	return &Router{deps: deps, logger: logger}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(rt.deps.ErrorHandler.Middleware)
	router.Use(middleware.Logger(rt.logger))
	if rt.deps.Metrics != nil {
		router.Use(middleware.Metrics(rt.deps.Metrics))
	}

	if len(rt.deps.CORSAllowedOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   rt.deps.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		rt.deps.ErrorHandler.HandleStatus(w, r, http.StatusNotFound, "route not found")
	})

	// Health check
	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)
	if rt.deps.Metrics != nil {
		router.Handle("/metrics", rt.deps.Metrics.Handler())
	}

	if rt.deps.UploadDir != "" {
		files := http.StripPrefix(rt.deps.UploadPath, http.FileServer(http.Dir(rt.deps.UploadDir)))
		router.Handle(rt.deps.UploadPath+"/*", files)
	}

	router.Route("/api", func(r chi.Router) {
		r.Use(middleware.Authenticate(rt.deps.Validator, rt.deps.ErrorHandler, rt.logger))

		r.Route("/paintings", func(r chi.Router) {
			h := handlers.NewPaintingHandler(rt.deps.Paintings, rt.deps.Retries, rt.deps.StatusQuery, rt.deps.ErrorHandler, rt.logger)
			r.With(middleware.WriteDeadline(rt.deps.BatchWriteTimeout, rt.logger)).Post("/generate", h.Generate)
			r.Get("/{titleID}", h.Status)
			r.Post("/{paintingID}/retry", h.Retry)
			r.Post("/{paintingID}/regenerate-prompt", h.RegeneratePrompt)
		})

		r.Route("/titles", func(r chi.Router) {
			h := handlers.NewTitleHandler(rt.deps.Titles, rt.deps.ErrorHandler, rt.logger)
			r.Post("/", h.Create)
			r.Get("/", h.List)
			r.Get("/{titleID}", h.Get)
		})

		r.Route("/references", func(r chi.Router) {
			h := handlers.NewReferenceHandler(rt.deps.References, rt.deps.ErrorHandler, rt.logger)
			r.Post("/", h.Upload)
			r.Get("/{titleID}", h.List)
		})
	})

	return router
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	common.RespondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// readinessCheck reports 503 until the image workers are running.
func (rt *Router) readinessCheck(w http.ResponseWriter, req *http.Request) {
	if rt.deps.Ready != nil && !rt.deps.Ready() {
		rt.deps.ErrorHandler.Handle(w, req, pkgerrors.NewUnavailableError("image scheduler"))
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
