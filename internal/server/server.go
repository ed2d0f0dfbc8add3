// Package server provides the HTTP server for the FaceWatch expression tracker.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/facewatch/facewatch/internal/capture"
	"github.com/facewatch/facewatch/internal/logging"
	"github.com/facewatch/facewatch/internal/server/api"
	"github.com/facewatch/facewatch/internal/session"
	"github.com/facewatch/facewatch/internal/store"
)

// Config holds the server configuration.
type Config struct {
	WebDir     string
	Store      *store.Store
	Controller *session.Controller
	Plugins    api.PluginCatalog
	// Camera backs the MJPEG preview. Optional.
	Camera capture.Camera
	Logger *logrus.Logger
}

// Server represents the HTTP server for the FaceWatch application.
type Server struct {
	config Config
	router *mux.Router
	log    *logrus.Entry
	start  time.Time

	mu   sync.Mutex
	http *http.Server
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.Logger == nil {
		config.Logger = logging.Discard()
	}
	s := &Server{
		config: config,
		router: mux.NewRouter(),
		log:    config.Logger.WithField("component", "server"),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.router.Use(s.logRequests)
	s.router.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)

	api.NewTrackingHandler(s.config.Controller).Register(s.router)

	if s.config.Store != nil {
		api.NewBindingHandler(s.config.Store, s.config.Plugins).Register(s.router)
		api.NewHistoryHandler(s.config.Store).Register(s.router)
	}

	if s.config.Controller != nil {
		s.router.Handle("/api/expressions", NewExpressionsHandler(s.config.Controller, s.config.Logger))
		s.router.Handle("/api/ingest", NewIngestHandler(s.config.Controller, s.config.Logger))
	}

	if s.config.Camera != nil {
		s.router.Handle("/api/stream", NewStreamHandler(s.config.Camera, s.config.Controller)).Methods(http.MethodGet)
	}

	if s.config.WebDir != "" {
		s.router.PathPrefix("/").Handler(http.FileServer(http.Dir(s.config.WebDir))).Methods(http.MethodGet)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).Round(time.Second).String(),
	}
	if s.config.Controller != nil {
		response["tracking"] = s.config.Controller.State()
	}

	status := http.StatusOK
	if s.config.Store != nil {
		if err := s.config.Store.DB().PingContext(r.Context()); err != nil {
			s.log.WithError(err).Warn("database ping failed")
			response["status"] = "degraded"
			response["database"] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			response["database"] = "ok"
		}
	}

	writeJSON(w, status, response)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start),
		}).Debug("request")
	})
}

// ListenAndServe starts the HTTP server on the given address. It returns
// http.ErrServerClosed after Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()

	s.log.WithField("addr", addr).Info("listening")
	return srv.ListenAndServe()
}

// Shutdown gracefully stops a server started with ListenAndServe.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
