package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"

	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/ports"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes an Orchestrator over HTTP.
type Server struct {
	Orchestrator ports.Orchestrator
	Streams      *StreamManager
	logger       *slog.Logger
	gatherer     prometheus.Gatherer
}

// Option configures the handler.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics serves the gatherer on GET /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithStreams shares a stream manager, e.g. one already registered as a listener.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.Streams = sm
	}
}

// NewServer creates the server. Its stream manager is registered as a
// status and exception listener of orch.
func NewServer(orch ports.Orchestrator, opts ...Option) *Server {
	s := &Server{
		Orchestrator: orch,
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Streams == nil {
		s.Streams = NewStreamManager(s.logger)
		orch.AddStatusListener(s.Streams)
		orch.AddExceptionListener(s.Streams)
	}
	return s
}

// NewHandler creates a new HTTP handler for the orchestrator.
func NewHandler(orch ports.Orchestrator, opts ...Option) http.Handler {
	return NewServer(orch, opts...).Routes()
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.GetHealth)
	r.Get("/status", s.GetStatus)
	r.Get("/states", s.GetStates)
	r.Get("/exceptions", s.GetExceptions)
	r.Get("/chart", s.GetChart)
	r.Post("/start", s.Start)
	r.Post("/stop", s.Stop)
	r.Post("/pause", s.Pause)
	r.Post("/resume", s.Resume)
	r.Post("/reload", s.Reload)
	r.Post("/events/{name}", s.FireEvent)
	r.Get("/ws", s.Streams.ServeWS)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Status domain.MachineStatus `json:"status"`
	Active []string             `json:"active"`
}

// StatesResponse is the body of GET /states.
type StatesResponse struct {
	Active   []string `json:"active"`
	Possible []string `json:"possible"`
}

// EventResponse is the body of POST /events/{name}.
type EventResponse struct {
	Event string `json:"event"`
	Final bool   `json:"final"`
}

// ReloadResponse is the body of POST /reload.
type ReloadResponse struct {
	Success  bool             `json:"success"`
	Errors   []string         `json:"errors,omitempty"`
	Findings []domain.Finding `json:"findings,omitempty"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) GetStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, StatusResponse{
		Status: s.Orchestrator.Status(),
		Active: nonNil(s.Orchestrator.ActiveStates()),
	})
}

func (s *Server) GetStates(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, StatesResponse{
		Active:   nonNil(s.Orchestrator.ActiveStates()),
		Possible: nonNil(s.Orchestrator.PossibleEvents()),
	})
}

func (s *Server) GetExceptions(w http.ResponseWriter, r *http.Request) {
	exc := s.Orchestrator.Exceptions()
	if exc == nil {
		exc = []domain.ExceptionEvent{}
	}
	s.writeJSON(w, http.StatusOK, exc)
}

func (s *Server) GetChart(w http.ResponseWriter, r *http.Request) {
	composed := s.Orchestrator.Composed()
	if composed == nil {
		s.writeError(w, domain.ErrNotLoaded)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(composed)
}

func (s *Server) Start(w http.ResponseWriter, r *http.Request) {
	if err := s.Orchestrator.Start(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.GetStatus(w, r)
}

func (s *Server) Stop(w http.ResponseWriter, r *http.Request) {
	s.Orchestrator.Stop()
	s.GetStatus(w, r)
}

func (s *Server) Pause(w http.ResponseWriter, r *http.Request) {
	s.Orchestrator.Pause()
	s.GetStatus(w, r)
}

func (s *Server) Resume(w http.ResponseWriter, r *http.Request) {
	s.Orchestrator.Resume()
	s.GetStatus(w, r)
}

func (s *Server) Reload(w http.ResponseWriter, r *http.Request) {
	res := s.Orchestrator.Reload(r.Context())
	resp := ReloadResponse{Success: res.Success(), Findings: res.Validation.Findings}
	for _, err := range slices.Concat(res.LoadErrors, res.ConfigErrors) {
		resp.Errors = append(resp.Errors, err.Error())
	}
	status := http.StatusOK
	if !resp.Success {
		status = http.StatusUnprocessableEntity
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) FireEvent(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	final, err := s.Orchestrator.FireEvent(r.Context(), name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, EventResponse{Event: name, Final: final})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, domain.ErrNotLoaded) || errors.Is(err, domain.ErrNotRunning) {
		status = http.StatusConflict
	}
	s.logger.Warn("request failed", "status", status, "err", err)
	s.writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
