// Package api exposes the HTTP interface for the fetch service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vastio/vastfetch/internal/config"
	"github.com/vastio/vastfetch/internal/filter"
	"github.com/vastio/vastfetch/internal/metrics"
	"github.com/vastio/vastfetch/internal/pipeline"
	"github.com/vastio/vastfetch/internal/vast"
)

// Server wires HTTP handlers to the fetch pipeline.
type Server struct {
	router   chi.Router
	pipeline *pipeline.Pipeline
	cfg      config.Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(p *pipeline.Pipeline, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		pipeline: p,
		cfg:      cfg,
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/fetch", s.fetch)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) fetch(w http.ResponseWriter, r *http.Request) {
	var req fetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	cfg, opts, err := s.toFetchConfig(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.pipeline.Execute(r.Context(), cfg, opts...)
	if err != nil {
		status := http.StatusInternalServerError
		if vast.IsConfigError(err) {
			status = http.StatusBadRequest
		} else if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusRequestTimeout
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toFetchResponse(result))
}

// toFetchConfig maps the wire request onto a FetchConfig, layering request
// overrides on top of the configured strategy defaults. A request that omits
// sources or fallbacks falls back to the statically configured ones.
func (s *Server) toFetchConfig(req fetchRequest) (vast.FetchConfig, []pipeline.ExecOption, error) {
	sources := sourcesOf(req.Sources)
	if len(sources) == 0 {
		sources = recordSources(s.cfg.Fetch.Sources)
	}
	if len(sources) == 0 {
		return vast.FetchConfig{}, nil, errors.New("sources required")
	}
	fallbacks := sourcesOf(req.Fallbacks)
	if len(fallbacks) == 0 {
		fallbacks = recordSources(s.cfg.Fetch.Fallbacks)
	}

	strategy := s.cfg.Strategy()
	if req.Mode != "" {
		mode := vast.FetchMode(req.Mode)
		if !mode.Valid() {
			return vast.FetchConfig{}, nil, fmt.Errorf("unknown fetch mode %q", req.Mode)
		}
		strategy.Mode = mode
	}
	if req.TimeoutMs != nil {
		strategy.Timeout = time.Duration(*req.TimeoutMs) * time.Millisecond
	}
	if req.PerSourceTimeoutMs != nil {
		strategy.PerSourceTimeout = time.Duration(*req.PerSourceTimeoutMs) * time.Millisecond
	}
	if req.MaxRetries != nil {
		strategy.MaxRetries = *req.MaxRetries
	}
	if req.RetryDelayMs != nil {
		strategy.RetryDelay = time.Duration(*req.RetryDelayMs) * time.Millisecond
	}

	cfg := vast.FetchConfig{
		Sources:   sources,
		Fallbacks: fallbacks,
		Strategy:  strategy,
		Params:    req.Params,
		Headers:   req.Headers,
		AutoTrack: s.cfg.Fetch.AutoTrackDefault,
	}
	if s.cfg.Fetch.MinDurationFilter > 0 {
		cfg.Filter = filter.MinDuration(s.cfg.Fetch.MinDurationFilter)
	}

	var opts []pipeline.ExecOption
	if req.AutoTrack != nil {
		opts = append(opts, pipeline.WithAutoTrack(*req.AutoTrack))
	}
	if f := buildFilter(req); f != nil {
		opts = append(opts, pipeline.WithFilter(f))
	}
	return cfg, opts, nil
}

func buildFilter(req fetchRequest) vast.ParseFilter {
	var funcs []filter.Func
	if req.MinDurationSeconds != nil {
		funcs = append(funcs, filter.MinDuration(*req.MinDurationSeconds))
	}
	if req.MaxDurationSeconds != nil {
		funcs = append(funcs, filter.MaxDuration(*req.MaxDurationSeconds))
	}
	if req.RequireMediaType != "" {
		funcs = append(funcs, filter.RequireMediaType(req.RequireMediaType))
	}
	if req.RejectWrappers {
		funcs = append(funcs, filter.RejectWrappers())
	}
	if len(funcs) == 0 {
		return nil
	}
	return filter.All(funcs...)
}

func recordSources(configs []vast.SourceConfig) []vast.Source {
	if len(configs) == 0 {
		return nil
	}
	out := make([]vast.Source, len(configs))
	for i, c := range configs {
		out[i] = vast.SourceRecord(c)
	}
	return out
}

func sourcesOf(values []sourceValue) []vast.Source {
	if len(values) == 0 {
		return nil
	}
	out := make([]vast.Source, len(values))
	for i, v := range values {
		out[i] = v.source
	}
	return out
}

type fetchRequest struct {
	Sources            []sourceValue     `json:"sources"`
	Fallbacks          []sourceValue     `json:"fallbacks"`
	Mode               string            `json:"mode"`
	TimeoutMs          *int              `json:"timeout_ms"`
	PerSourceTimeoutMs *int              `json:"per_source_timeout_ms"`
	MaxRetries         *int              `json:"max_retries"`
	RetryDelayMs       *int              `json:"retry_delay_ms"`
	Params             map[string]string `json:"params"`
	Headers            map[string]string `json:"headers"`
	AutoTrack          *bool             `json:"auto_track"`
	MinDurationSeconds *int              `json:"min_duration_seconds"`
	MaxDurationSeconds *int              `json:"max_duration_seconds"`
	RequireMediaType   string            `json:"require_media_type"`
	RejectWrappers     bool              `json:"reject_wrappers"`
}

// sourceValue accepts either a bare URL string or a source object.
type sourceValue struct {
	source vast.Source
}

type sourceConfigJSON struct {
	URL       string            `json:"url"`
	Params    map[string]string `json:"params"`
	Headers   map[string]string `json:"headers"`
	Encoding  map[string]bool   `json:"encoding"`
	TimeoutMs int               `json:"timeout_ms"`
}

// UnmarshalJSON keeps the wire-level union: a JSON string is treated as a
// URL, a JSON object as a full source record.
func (v *sourceValue) UnmarshalJSON(data []byte) error {
	var url string
	if err := json.Unmarshal(data, &url); err == nil {
		v.source = vast.SourceURL(url)
		return nil
	}
	var cfg sourceConfigJSON
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("source must be a URL string or an object: %w", err)
	}
	v.source = vast.SourceRecord(vast.SourceConfig{
		URL:      cfg.URL,
		Params:   cfg.Params,
		Headers:  cfg.Headers,
		Encoding: cfg.Encoding,
		Timeout:  time.Duration(cfg.TimeoutMs) * time.Millisecond,
	})
	return nil
}

type fetchResponse struct {
	Success     bool            `json:"success"`
	SourceURL   string          `json:"source_url,omitempty"`
	RawResponse string          `json:"raw_response,omitempty"`
	ParsedData  map[string]any  `json:"parsed_data,omitempty"`
	Errors      []errorResponse `json:"errors,omitempty"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
}

type errorResponse struct {
	Source  string `json:"source"`
	Phase   string `json:"phase"`
	Message string `json:"message"`
}

func toFetchResponse(result vast.FetchResult) fetchResponse {
	resp := fetchResponse{
		Success:     result.Success,
		SourceURL:   result.SourceURL,
		RawResponse: result.RawResponse,
		ParsedData:  result.ParsedData,
		Metadata:    result.Metadata,
	}
	for _, e := range result.Errors {
		resp.Errors = append(resp.Errors, errorResponse{
			Source:  e.Source,
			Phase:   string(e.Phase),
			Message: e.Message(),
		})
	}
	return resp
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
