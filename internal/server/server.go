// Package server provides the HTTP server and routing for the synthetic
// venue: the portfolio/trade-status API initiators poll, the admin surface
// that introspects the stub registry and the reconciliation ledger, the
// scenario translation endpoint, and the websocket order-entry endpoint.
package server

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/tradelab/internal/calendar"
	"github.com/aristath/tradelab/internal/clock"
	"github.com/aristath/tradelab/internal/ledger"
	"github.com/aristath/tradelab/internal/order"
	"github.com/aristath/tradelab/internal/stub"
	"github.com/aristath/tradelab/internal/venue"
	"github.com/aristath/tradelab/pkg/embedded"
)

// Translator turns free-form scenario text into an order request. The
// translate agent satisfies this; tests may plug anything.
type Translator interface {
	Translate(ctx context.Context, text string) (order.Request, error)
}

// Config holds server configuration. Registry, Ledger, Book, Calendar and
// Clock are required; Translator and Websocket are optional features whose
// endpoints answer 503 / are not mounted when absent.
type Config struct {
	Log     zerolog.Logger
	Port    int
	DevMode bool

	Registry   *stub.Registry
	Ledger     *ledger.Ledger
	Book       *venue.Book
	Calendar   *calendar.Calendar
	Cycle      calendar.SettlementCycle
	Clock      clock.Clock
	Translator Translator
	Websocket  http.Handler
}

// Server represents the venue HTTP server.
type Server struct {
	router      *chi.Mux
	server      *http.Server
	log         zerolog.Logger
	devMode     bool
	startupTime time.Time

	registry   *stub.Registry
	ledger     *ledger.Ledger
	book       *venue.Book
	cal        *calendar.Calendar
	cycle      calendar.SettlementCycle
	clk        clock.Clock
	translator Translator
	websocket  http.Handler
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.System{}
	}

	s := &Server{
		router:      chi.NewRouter(),
		log:         cfg.Log.With().Str("component", "server").Logger(),
		devMode:     cfg.DevMode,
		startupTime: time.Now(),
		registry:    cfg.Registry,
		ledger:      cfg.Ledger,
		book:        cfg.Book,
		cal:         cfg.Calendar,
		cycle:       cfg.Cycle,
		clk:         clk,
		translator:  cfg.Translator,
		websocket:   cfg.Websocket,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware() {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

// setupRoutes configures all routes. The websocket endpoint is mounted
// outside the /api timeout group: its handler blocks for the lifetime of
// the connection.
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/", s.handleIndex)

	if s.websocket != nil {
		s.router.Handle("/ws", s.websocket)
	}

	// Compression and the request timeout stay off the websocket path: the
	// upgrade needs the raw connection and the session outlives any timeout.
	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		if !s.devMode {
			r.Use(middleware.Compress(5))
		}

		r.Get("/system/status", s.handleSystemStatus)
		r.Get("/portfolios/{account}/positions", s.handlePositions)
		r.Get("/trades/{key}/status", s.handleTradeStatus)
		r.Post("/translate", s.handleTranslate)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/rules", s.handleRules)
			r.Post("/rules/reset", s.handleRulesReset)
			r.Get("/reconciliation", s.handleReconciliation)
		})
	})
}

// Handler exposes the assembled router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving. It blocks until Shutdown is called or the listener
// fails.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// handleIndex serves the venue index page from the embedded filesystem.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	staticFS, err := fs.Sub(embedded.Files, "static")
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to create static filesystem from embedded files")
		http.Error(w, "Index not available", http.StatusInternalServerError)
		return
	}

	indexFile, err := staticFS.Open("index.html")
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to open embedded index.html")
		http.Error(w, "Index not available", http.StatusInternalServerError)
		return
	}
	defer indexFile.Close()

	data, err := io.ReadAll(indexFile)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to read embedded index.html")
		http.Error(w, "Index not available", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to write index.html response")
	}
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
