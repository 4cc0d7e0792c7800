// Package server provides the HTTP server for the crabwatch service.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/crabwatch/internal/app"
	"github.com/ayusman/crabwatch/internal/metrics"
	"github.com/ayusman/crabwatch/internal/pipeline"
	"github.com/ayusman/crabwatch/internal/server/api"
	"github.com/ayusman/crabwatch/internal/store"
)

// ShutdownTimeout bounds how long in-flight requests may take once the
// server is asked to stop.
const ShutdownTimeout = 5 * time.Second

// Controller is everything the server needs from the pipeline.
// *app.App implements it.
type Controller interface {
	api.Controller
	Display(n int) (*pipeline.Mailbox, bool)
	Annotated() *pipeline.Mailbox
	Subscribe() (string, <-chan app.Event)
	Unsubscribe(id string)
}

// Config holds the server configuration.
type Config struct {
	StaticDir  string
	Store      *store.Store
	Controller Controller
	Metrics    *metrics.Metrics
	Logger     logrus.FieldLogger
}

// Server represents the HTTP server for the crabwatch service.
type Server struct {
	config Config
	mux    *http.ServeMux
	log    logrus.FieldLogger
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}

	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		log:    config.Logger.WithField("component", "server"),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Store != nil {
		artifacts := api.NewArtifactHandler(s.config.Store)
		s.mux.Handle("/api/artifacts", artifacts)
		s.mux.Handle("/api/artifacts/", artifacts)
	}

	if ctl := s.config.Controller; ctl != nil {
		camera := api.NewCameraHandler(ctl)
		s.mux.Handle("/api/camera", camera)
		s.mux.Handle("/api/camera/", camera)
		s.mux.Handle("/api/detection", api.NewDetectionHandler(ctl))

		s.mux.Handle("/api/stream", NewStreamHandler(displaySlot(ctl), s.log))
		s.mux.Handle("/api/detection/stream", NewStreamHandler(annotated(ctl), s.log))
		s.mux.Handle("/api/events", NewEventsHandler(ctl, s.log))
	}

	if s.config.Metrics != nil {
		s.mux.HandleFunc("/api/fps", s.handleFPS)
		s.mux.Handle("/metrics", s.config.Metrics.Handler())
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	if s.config.Controller != nil {
		response["pipeline"] = s.config.Controller.Status()
	}

	s.writeJSON(w, response)
}

// handleFPS handles GET requests to /api/fps with the per-second frame
// counts of the recent past, oldest first.
func (s *Server) handleFPS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	fps := s.config.Metrics.FPS()
	if fps == nil {
		fps = []int{}
	}
	s.writeJSON(w, map[string]interface{}{"fps": fps})
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.WithField("addr", addr).Info("Server listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
