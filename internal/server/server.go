package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"

	"github.com/hunterwarburton/taxassist/internal/config"
	"github.com/hunterwarburton/taxassist/internal/core"
	"github.com/hunterwarburton/taxassist/internal/history"
	"github.com/hunterwarburton/taxassist/internal/logger"
	"github.com/hunterwarburton/taxassist/internal/metrics"
)

// Version is reported by the root endpoint.
const Version = "1.0.0"

const channel = "http"

// Answerer answers a validated query.
type Answerer interface {
	Answer(ctx context.Context, q core.Query) core.Answer
}

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// LLMHealth reports the answer backend's state, e.g. "ollama:connected".
type LLMHealth interface {
	Health(ctx context.Context) string
}

// Deps are the collaborators the HTTP API needs. History, Metrics and
// Gatherer may be nil.
type Deps struct {
	Answerer Answerer
	Store    Pinger
	LLM      LLMHealth
	History  *history.Log
	Metrics  *metrics.Recorder
	Gatherer prometheus.Gatherer
}

// Server is the HTTP front end used by the USSD gateway.
type Server struct {
	cfg  config.APIConfig
	deps Deps
}

// New creates a server. Nothing listens until Run.
func New(cfg config.APIConfig, deps Deps) *Server {
	return &Server{cfg: cfg, deps: deps}
}

type queryRequest struct {
	Question  string `json:"question"`
	MaxLength *int   `json:"max_length"`
}

// query validates the request. An absent max_length means the default; an
// explicit 0 is out of range like any other value below the minimum.
func (r queryRequest) query() (core.Query, error) {
	q := core.Query{Question: r.Question}
	if r.MaxLength != nil {
		if *r.MaxLength == 0 {
			return q, &core.ValidationError{Field: "max_length", Reason: "must be between 50 and 500"}
		}
		q.MaxLength = *r.MaxLength
	}
	return q, q.Validate()
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	LLM      string `json:"llm"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// Handler returns the routed handler with CORS and request logging applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	mux.HandleFunc("POST /api/v1/query", s.handleQuery)
	if s.deps.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}
	return logMiddleware(s.corsMiddleware(mux))
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.APIInfo("Listening on %s", addr)
		errs <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.APIInfo("Shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "Nigerian Tax Assistant RAG API",
		"version": Version,
		"status":  "running",
		"health":  "/api/v1/health",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := healthResponse{Status: "healthy", Database: "connected", LLM: "unknown"}
	if err := s.deps.Store.Ping(ctx); err != nil {
		logger.APIWarn("Database health check failed: %v", err)
		resp.Status = "degraded"
		resp.Database = "disconnected"
	}
	if s.deps.LLM != nil {
		resp.LLM = s.deps.LLM.Health(ctx)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req queryRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, 64<<10))
	if err := dec.Decode(&req); err != nil {
		s.deps.Metrics.Invalid(channel)
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "invalid JSON body: " + err.Error()})
		return
	}

	q, err := req.query()
	if err != nil {
		s.deps.Metrics.Invalid(channel)
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: err.Error()})
		return
	}

	ctx := r.Context()
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	logger.APIInfo("Query from %s: %q", clientIP(r), q.Question)
	ans := s.deps.Answerer.Answer(ctx, q)

	s.deps.Metrics.Observe(channel, ans, time.Since(start))
	s.deps.History.Record(context.WithoutCancel(ctx), channel, clientIP(r), q.Question, ans)
	writeJSON(w, http.StatusOK, ans)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && lo.Contains(s.cfg.AllowedOrigins, origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.APIDebug("%s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.APIError("Failed to write response: %v", err)
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// String describes the listen address.
func (s *Server) String() string {
	return fmt.Sprintf("http://%s", net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)))
}
