package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blackmichael/profile-sync/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxScrapeHandles bounds the number of handles accepted by one on-demand
// scrape request.
const maxScrapeHandles = 20

// CycleRunner runs one scrape cycle over the given handles.
type CycleRunner interface {
	RunCycle(ctx context.Context, handles []string) []domain.Report
}

// Server exposes pipeline outcomes, metrics and on-demand scraping over
// HTTP.
type Server struct {
	runner     CycleRunner
	hub        *Hub
	state      *domain.ChangeState
	logger     *slog.Logger
	httpServer *http.Server
	upgrader   websocket.Upgrader

	// On-demand scrapes outlive their request. jobCtx is cancelled on
	// Shutdown; at most one job runs at a time.
	jobCtx     context.Context
	cancelJobs context.CancelFunc
	jobs       sync.WaitGroup
	scraping   atomic.Bool
}

// NewServer creates a new HTTP server listening on port.
func NewServer(port int, runner CycleRunner, hub *Hub, state *domain.ChangeState, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	s := &Server{
		jobCtx:     jobCtx,
		cancelJobs: cancelJobs,
		runner:     runner,
		hub:        hub,
		state:      state,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /outcomes", s.handleOutcomes)
	mux.HandleFunc("GET /outcomes/stream", s.handleStream)
	mux.HandleFunc("GET /state", s.handleState)
	mux.HandleFunc("POST /scrape", s.handleScrape)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      withLogging(logger, mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server, cancels any running
// on-demand scrape and waits for it to return.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancelJobs()
	err := s.httpServer.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.jobs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleOutcomes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"outcomes": s.hub.Latest(),
	})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"lastPostIds": s.state.Snapshot(),
	})
}

type scrapeRequest struct {
	Handles []string `json:"handles"`
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		s.logger.Warn("invalid scrape request body", "error", err)
		writeError(w, http.StatusBadRequest, "InvalidRequest", "body must be {\"handles\": [...]}")
		return
	}
	if len(req.Handles) == 0 {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "at least one handle is required")
		return
	}
	if len(req.Handles) > maxScrapeHandles {
		writeError(w, http.StatusBadRequest, "InvalidRequest",
			fmt.Sprintf("at most %d handles per request", maxScrapeHandles))
		return
	}

	if !s.scraping.CompareAndSwap(false, true) {
		writeError(w, http.StatusConflict, "ScrapeInProgress", "an on-demand scrape is already running")
		return
	}

	s.logger.Info("on-demand scrape requested", "handles", req.Handles)
	s.jobs.Add(1)
	go func(handles []string) {
		defer s.jobs.Done()
		defer s.scraping.Store(false)

		reports := s.runner.RunCycle(s.jobCtx, handles)
		s.logger.Info("on-demand scrape finished", "handles", len(handles), "reports", len(reports))
	}(req.Handles)

	// Reports reach clients through the outcome hub.
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":  "accepted",
		"handles": req.Handles,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errType,
		"message": message,
	})
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrader take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
