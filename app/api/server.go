package api

import (
	"context"
	"net/http"
	"time"

	"SmartIMS/app/config"
	"SmartIMS/app/llm"
	"SmartIMS/app/mcp"
	"SmartIMS/app/metrics"
	"SmartIMS/app/models"
	"SmartIMS/app/services"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Version is reported by the banner endpoint
const Version = "1.0.0"

// ProductLookup loads single products for label rendering
type ProductLookup interface {
	Product(ctx context.Context, productID uint) (*models.Product, error)
}

// ToolCatalog describes the MCP tools and server state
type ToolCatalog interface {
	GetAvailableTools() []services.ToolInfo
	GetStatus() map[string]interface{}
	UpdateDisabledTools(ctx context.Context, disabled string) error
}

// StatusReporter describes the background components of the process
type StatusReporter interface {
	GetStatus() map[string]interface{}
}

// Dependencies are the collaborators of the API server. Only Tools is
// required.
type Dependencies struct {
	Tools      mcp.Client
	Translator llm.Translator
	Products   ProductLookup
	Catalog    ToolCatalog
	Status     StatusReporter
	Ping       func(ctx context.Context) error

	// Events receives inventory changes when PublishEvents is set, which is
	// the case when tools run out of process and cannot publish themselves
	Events        mcp.EventPublisher
	PublishEvents bool
	// Stream serves /ws when set
	Stream http.Handler
}

// Server is the REST API
type Server struct {
	router   *mux.Router
	deps     Dependencies
	cfg      config.QueryConfig
	adminKey string
	origins  []string
	limiter  *rate.Limiter
	log      *logrus.Logger
}

// NewServer builds the router with every route and middleware
func NewServer(cfg *config.AppConfig, deps Dependencies, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}

	limit := rate.Inf
	if cfg.Query.RateLimit > 0 {
		limit = rate.Limit(cfg.Query.RateLimit)
	}
	burst := cfg.Query.Burst
	if burst < 1 {
		burst = 1
	}

	s := &Server{
		router:   mux.NewRouter(),
		deps:     deps,
		cfg:      cfg.Query,
		adminKey: cfg.Server.AdminKey,
		origins:  cfg.Server.Origins(),
		limiter:  rate.NewLimiter(limit, burst),
		log:      log,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(s.recoverMiddleware, s.requestIDMiddleware, s.loggingMiddleware, s.metricsMiddleware, s.corsMiddleware)

	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/query", s.handleQuery).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/sql", s.handleSQL).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/inventory/low-stock", s.handleLowStock).Methods(http.MethodGet)
	api.HandleFunc("/inventory/summary", s.handleSummary).Methods(http.MethodGet)
	api.HandleFunc("/inventory/add", s.handleAddInventory).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/schema", s.handleSchema).Methods(http.MethodGet)
	api.HandleFunc("/tools", s.handleTools).Methods(http.MethodGet)
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(s.adminMiddleware)
	admin.HandleFunc("/tools/disabled", s.handleDisabledTools).Methods(http.MethodPut)
	api.HandleFunc("/products/{id:[0-9]+}/label.png", s.handleProductLabel).Methods(http.MethodGet)

	if s.deps.Stream != nil {
		r.Handle("/ws", s.deps.Stream)
	}
	r.Handle("/metrics", metrics.MetricsHandler()).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			s.corsMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).ServeHTTP(w, r)
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// NewHTTPServer wraps the API in an http.Server listening on addr
func (s *Server) NewHTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
