package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"yanode/internal/history"
	"yanode/internal/job"
	"yanode/internal/logging"
	"yanode/internal/metrics"
	"yanode/internal/node"
	"yanode/internal/notify"
)

// Backend is the node surface served over HTTP.
type Backend interface {
	Status(ctx context.Context) NodeStatus
	CurrentJob() *job.Job
	ListJobs(ctx context.Context, since time.Time) ([]history.Record, error)
	Payment(ctx context.Context) (PaymentStatus, error)
	SubscribeStatus(buffer int) (<-chan notify.Update[node.Status], func())
	SubscribeJob(buffer int) (<-chan notify.Update[*job.Job], func())
}

// Options configures the router.
type Options struct {
	// Token, when set, is required as a bearer token on /api routes.
	Token string
	// AllowedOrigins lists CORS origins; "*" wildcards are allowed.
	AllowedOrigins []string
	// Metrics, when set, records requests and serves /metrics.
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Server routes the local HTTP API.
type Server struct {
	backend  Backend
	opts     Options
	logger   *slog.Logger
	router   *chi.Mux
	upgrader websocket.Upgrader

	closing   chan struct{}
	closeOnce sync.Once
}

// NewServer builds the router for backend.
func NewServer(backend Backend, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		backend: backend,
		opts:    opts,
		logger:  logging.NewComponentLogger(logger, "api-server"),
		router:  chi.NewRouter(),
		closing: make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return originAllowed(r.Header.Get("Origin"), opts.AllowedOrigins) },
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(middleware.Recoverer)
	if s.opts.Metrics != nil {
		s.router.Use(s.opts.Metrics.Middleware)
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	s.router.Get("/healthz", s.handleHealth)
	if s.opts.Metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.opts.Metrics.Handler())
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware(s.opts.Token))
		r.Get("/status", s.handleStatus)
		r.Get("/job", s.handleJob)
		r.Get("/jobs", s.handleJobs)
		r.Get("/payment", s.handlePayment)
		r.Get("/events", s.handleEvents)
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close ends every open event stream.
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.closing) })
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.backend.Status(r.Context()))
}

func (s *Server) handleJob(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, JobResponse{Job: FromJob(s.backend.CurrentJob())})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	since, err := ParseSince(r.URL.Query().Get("since"), time.Now())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	records, err := s.backend.ListJobs(r.Context(), since)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, node.ErrNoHistory) {
			status = http.StatusServiceUnavailable
		}
		s.writeError(w, status, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, JobListResponse{Jobs: FromRecords(records)})
}

func (s *Server) handlePayment(w http.ResponseWriter, r *http.Request) {
	status, err := s.backend.Payment(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

// ParseSince accepts an RFC3339 timestamp or a duration counted back from
// now. An empty value means the beginning of time.
func ParseSince(value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return time.Time{}, fmt.Errorf("invalid since %q: want RFC3339 time or duration", value)
	}
	return now.Add(-d), nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
