// Package api serves the rate board and the retailer config over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"goldboard/internal/board"
	"goldboard/internal/metrics"
	"goldboard/internal/retailer"
)

const maxBodyBytes = 1 << 20

// Options tune the HTTP server.
type Options struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// StreamInterval is the push period of the rate stream.
	StreamInterval time.Duration
	CORSOrigins    []string
}

// Server exposes the board and config endpoints.
type Server struct {
	opts     Options
	board    *board.Board
	config   *retailer.Service
	logger   zerolog.Logger
	router   chi.Router
	upgrader websocket.Upgrader
	now      func() time.Time
}

// Response is the JSON envelope of every API reply.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Warning string `json:"warning,omitempty"`
}

// NewServer builds the router.
func NewServer(opts Options, b *board.Board, cfg *retailer.Service, logger zerolog.Logger) *Server {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	if opts.StreamInterval <= 0 {
		opts.StreamInterval = time.Second
	}
	s := &Server{
		opts:   opts,
		board:  b,
		config: cfg,
		logger: logger.With().Str("component", "api").Logger(),
		now:    time.Now,
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	s.router = s.buildRouter()
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.opts.Addr).Msg("http api listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http server: %w", err)
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	origins := []string{"*"}
	if len(s.opts.CORSOrigins) > 0 {
		origins = s.opts.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/rates", s.handleRates)
		r.Get("/rates/stream", s.handleRateStream)

		r.Get("/config", s.handleGetConfig)
		r.Patch("/config", s.handlePatchConfig)
		r.Get("/config/fields/{section}", s.handleSectionFields)
		r.Post("/config/reset/{section}", s.handleResetSection)
		r.Post("/config/freeze", s.handleFreeze)
		r.Post("/config/unfreeze", s.handleUnfreeze)
	})

	return r
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordHTTPRequest(r.Method, route, strconv.Itoa(status))
		s.logger.Debug().
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Dur("elapsed", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap := s.board.Snapshot()
	writeJSON(w, http.StatusOK, Response{Success: true, Data: map[string]any{
		"status":    "ok",
		"time":      s.now().UTC(),
		"frozen":    snap.Frozen,
		"feedError": snap.FeedError,
	}})
}

func (s *Server) handleRates(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: s.board.Snapshot()})
}

func (s *Server) handleRateStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	// drain client frames so close and ping are processed
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.opts.StreamInterval)
	defer ticker.Stop()
	for {
		if err := conn.WriteJSON(s.board.Snapshot()); err != nil {
			return
		}
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: s.config.Current()})
}

func (s *Server) handlePatchConfig(w http.ResponseWriter, r *http.Request) {
	var partial retailer.Partial
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&partial); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return
	}
	if len(partial) == 0 {
		writeError(w, http.StatusBadRequest, "empty update")
		return
	}
	cfg, err := s.config.Update(r.Context(), partial)
	s.writeConfigResult(w, cfg, err)
}

func (s *Server) handleSectionFields(w http.ResponseWriter, r *http.Request) {
	section, err := retailer.ParseSection(chi.URLParam(r, "section"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: retailer.FieldNames(section)})
}

func (s *Server) handleResetSection(w http.ResponseWriter, r *http.Request) {
	section, err := retailer.ParseSection(chi.URLParam(r, "section"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	cfg, err := s.config.ResetSection(r.Context(), section)
	s.writeConfigResult(w, cfg, err)
}

func (s *Server) handleFreeze(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.config.Freeze(r.Context(), s.now())
	s.writeConfigResult(w, cfg, err)
}

func (s *Server) handleUnfreeze(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.config.Unfreeze(r.Context())
	s.writeConfigResult(w, cfg, err)
}

// writeConfigResult reports a persistence failure as a warning because the
// change is already live.
func (s *Server) writeConfigResult(w http.ResponseWriter, cfg retailer.Config, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, Response{Success: true, Data: cfg})
	case errors.Is(err, retailer.ErrPersist):
		writeJSON(w, http.StatusOK, Response{Success: true, Data: cfg, Warning: err.Error()})
	case errors.Is(err, retailer.ErrUnknownSection):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, Response{Success: false, Error: msg})
}
