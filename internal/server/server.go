package server

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"qr-gate/internal/result"
	"qr-gate/internal/store"
	"qr-gate/pkg/cache"
	"qr-gate/pkg/mq"
)

// DefaultDedupeWindow mirrors the scanner page's own resend guard.
const DefaultDedupeWindow = 1600 * time.Millisecond

const shutdownTimeout = 5 * time.Second

type Server struct {
	store      *store.Store
	exporter   *result.Exporter
	log        *zap.Logger
	bus        mq.Bus
	dedupe     *cache.MemoryCache
	metrics    *metrics
	pages      *template.Template
	door2Limit time.Duration
	router     *mux.Router
}

type Option func(*Server)

func WithLogger(l *zap.Logger) Option { return func(s *Server) { s.log = l } }

// WithDedupeWindow sets how long an identical scan from the same source is
// acknowledged without being stored. Zero disables it.
func WithDedupeWindow(d time.Duration) Option {
	return func(s *Server) { s.dedupe = cache.NewMemory(d) }
}

// WithDoor2Timeout sets the limit shown on the action page; it should match
// the store's.
func WithDoor2Timeout(d time.Duration) Option { return func(s *Server) { s.door2Limit = d } }

// WithBus shares an event bus with other components. Scans and completed
// actions are published to it and /api/events subscribes to it.
func WithBus(b mq.Bus) Option { return func(s *Server) { s.bus = b } }

func New(st *store.Store, opts ...Option) *Server {
	s := &Server{
		store:      st,
		exporter:   result.NewExporter(st),
		log:        zap.NewNop(),
		bus:        mq.NewMemory(),
		dedupe:     cache.NewMemory(DefaultDedupeWindow),
		metrics:    newMetrics(),
		pages:      parsePages(),
		door2Limit: store.DefaultDoor2Timeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.metrics.trackDedupe(s.dedupe.Len)
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.middleware()...)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.handler()).Methods(http.MethodGet)

	r.HandleFunc("/", s.page("scanner.html", "Gate Scanner")).Methods(http.MethodGet)
	r.HandleFunc("/office", s.page("office.html", "Office Dashboard")).Methods(http.MethodGet)
	r.HandleFunc("/office/gates", s.page("gates.html", "Gate Setup")).Methods(http.MethodGet)
	r.HandleFunc("/action", s.page("action.html", "Action Page")).Methods(http.MethodGet)
	r.PathPrefix("/static/").Handler(staticHandler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/scan", s.handleScan).Methods(http.MethodPost)
	api.HandleFunc("/scans", s.handleListScans).Methods(http.MethodGet)
	api.HandleFunc("/gate-summary", s.handleGateSummary).Methods(http.MethodGet)
	api.HandleFunc("/actions", s.handleListActions).Methods(http.MethodGet)
	api.HandleFunc("/actions/{id:[0-9]+}/close", s.handleCloseAction).Methods(http.MethodPost)
	api.HandleFunc("/gates", s.handleListGates).Methods(http.MethodGet)
	api.HandleFunc("/gates", s.handleCreateGate).Methods(http.MethodPost)
	api.HandleFunc("/gates/{id:[0-9]+}/doors", s.handleSetGateDoors).Methods(http.MethodPost)
	api.HandleFunc("/export.{format:"+strings.Join(result.Formats, "|")+"}", s.handleExport).Methods(http.MethodGet)
	api.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	return r
}

// middleware runs outermost first. recoverer sits innermost so a panic's 500
// is still logged and counted.
func (s *Server) middleware() []mux.MiddlewareFunc {
	return []mux.MiddlewareFunc{s.requestID, s.logRequests, s.instrument, s.recoverer}
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
// Request contexts derive from ctx so event streams end with it.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(sctx)
	}()

	s.log.Info("http server listening", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("database unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// writeStoreErr maps store errors to HTTP statuses.
func (s *Server) writeStoreErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case store.IsValidation(err):
		writeErr(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrGateNotFound):
		writeErr(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrGateExists), errors.Is(err, store.ErrDoorConflict):
		writeErr(w, http.StatusConflict, err.Error())
	default:
		s.log.Error("database error", zap.String("path", r.URL.Path), zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "database error: "+err.Error())
	}
}
