// Package api exposes the due-diligence service over HTTP.
//
// Routes live under /api/v1: report generation, stored report lookup and
// history, provider listing, health, key status and a WebSocket stream of
// per-provider progress events.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/phuslu/log"

	"github.com/seenimoa/diligence/internal/config"
	"github.com/seenimoa/diligence/internal/diligence"
	"github.com/seenimoa/diligence/internal/report"
)

// maxBodyBytes caps inbound request bodies.
const maxBodyBytes = 1 << 20

// Server is the HTTP API server.
type Server struct {
	router  chi.Router
	svc     *diligence.Service
	hub     *WSHub
	cfg     config.APIConfig
	keys    func() []config.KeyStatus
	limiter *clientLimiter
	logger  *log.Logger
	version string
	started time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithKeyStatus enables GET /api/v1/config/keys.
func WithKeyStatus(fn func() []config.KeyStatus) Option {
	return func(s *Server) { s.keys = fn }
}

// NewServer builds the router. The hub must be running (see WSHub.Run)
// for progress messages to reach clients.
func NewServer(svc *diligence.Service, hub *WSHub, cfg config.APIConfig, opts ...Option) *Server {
	if hub == nil {
		hub = NewWSHub()
	}
	s := &Server{
		svc:     svc,
		hub:     hub,
		cfg:     cfg,
		limiter: newClientLimiter(cfg.RateLimit, cfg.RateWindow()),
		logger:  &log.DefaultLogger,
		version: "dev",
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.buildRouter()
	return s
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	return s.router
}

// Hub returns the progress hub.
func (s *Server) Hub() *WSHub {
	return s.hub
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
// It also runs the progress hub for the lifetime of the server.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      s.requestTimeout() + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go s.hub.Run(hubCtx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("api server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info().Msg("shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func (s *Server) requestTimeout() time.Duration {
	if d := s.cfg.RequestTimeout(); d > 0 {
		return d
	}
	return 3 * time.Minute
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	origins := []string{"*"}
	if len(s.cfg.CORSOrigins) > 0 {
		origins = s.cfg.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(s.limiter.middleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.requestTimeout()))

			r.Post("/due-diligence", s.handleDueDiligence)
			r.Get("/reports/{company}", s.handleGetReport)
			r.Get("/reports/{company}/history", s.handleHistory)
			r.Get("/providers", s.handleProviders)
			r.Get("/config/keys", s.handleConfigKeys)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found", r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", r.Method+" "+r.URL.Path)
	})
	return r
}

// requestLogger logs one line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Str("remote", r.RemoteAddr).
			Str("request_id", middleware.GetReqID(r.Context())).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// ============================================================
// Response envelopes
// ============================================================

// DataResponse wraps a successful payload.
type DataResponse struct {
	Data any `json:"data"`
}

// ErrorResponse describes a failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// HealthStatus is the payload of GET /api/v1/health.
type HealthStatus struct {
	Status     string   `json:"status"`
	Version    string   `json:"version"`
	Uptime     string   `json:"uptime"`
	Providers  []string `json:"providers"`
	WSClients  int      `json:"websocketClients"`
	Details    string   `json:"details,omitempty"`
	ServerTime string   `json:"serverTime"`
}

// ============================================================
// Handlers
// ============================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := HealthStatus{
		Status:     "ok",
		Version:    s.version,
		Uptime:     report.FormatDuration(time.Since(s.started)),
		WSClients:  s.hub.ClientCount(),
		ServerTime: time.Now().UTC().Format(time.RFC3339),
	}
	for _, info := range s.svc.Providers() {
		h.Providers = append(h.Providers, info.Name)
	}
	if err := s.svc.Check(); err != nil {
		h.Status = "degraded"
		h.Details = err.Error()
	}
	writeJSON(w, http.StatusOK, DataResponse{Data: h})
}

func (s *Server) handleDueDiligence(w http.ResponseWriter, r *http.Request) {
	var req diligence.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request", "request body must be a JSON object with companyName")
		return
	}

	rep, err := s.svc.Generate(r.Context(), req, s.hub.Observe)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.hub.Broadcast(WSMessage{
		Type:    MsgReportCompleted,
		Company: rep.Company,
		Data:    rep.Summarize(),
	})
	writeJSON(w, http.StatusOK, DataResponse{Data: rep})
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	company := chi.URLParam(r, "company")
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format != "" && format != "json" && format != "markdown" {
		writeError(w, http.StatusBadRequest, "invalid request", "format must be json or markdown")
		return
	}

	rep, err := s.svc.Get(r.Context(), company, r.URL.Query().Get("date"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	if format == "markdown" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(report.RenderMarkdown(rep)))
		return
	}
	writeJSON(w, http.StatusOK, DataResponse{Data: rep})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	rows, err := s.svc.History(r.Context(), chi.URLParam(r, "company"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if rows == nil {
		rows = []report.Summary{}
	}
	writeJSON(w, http.StatusOK, DataResponse{Data: rows})
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, DataResponse{Data: s.svc.Providers()})
}

// writeServiceError maps service errors onto status codes.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, diligence.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "invalid request", details(err, diligence.ErrInvalidRequest))
	case errors.Is(err, diligence.ErrMisconfigured):
		writeError(w, http.StatusServiceUnavailable, "service misconfigured", details(err, diligence.ErrMisconfigured))
	case errors.Is(err, report.ErrNotFound):
		writeError(w, http.StatusNotFound, "report not found", "")
	default:
		s.logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error", "")
	}
}

// details strips the sentinel prefix from a wrapped error message.
func details(err, sentinel error) string {
	return strings.TrimPrefix(err.Error(), sentinel.Error()+": ")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Details: details})
}
