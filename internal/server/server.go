// Package server serves compiled bundles during development, exposes
// prometheus metrics and pushes rebuilt URL sets to browsers over a
// websocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/conneroisu/assetkit/internal/build"
	"github.com/conneroisu/assetkit/internal/logging"
	"github.com/conneroisu/assetkit/internal/version"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WebSocketPath is where browsers subscribe to rebuild notifications.
const WebSocketPath = "/_assetkit/ws"

// BuildStatus reports build metrics for the health endpoint.
type BuildStatus interface {
	GetMetrics() build.BuildStats
}

// Options configures a Server.
type Options struct {
	Host      string
	Port      int
	PublicDir string
	// PublicURL is the prefix bundles are served under. Only its path is
	// used when it is an absolute URL.
	PublicURL string
	// Gatherer backs /metrics. Defaults to the prometheus default gatherer.
	Gatherer prometheus.Gatherer
	// Builds is optional and adds build metrics to /health.
	Builds BuildStatus
	// AllowedOrigins are host patterns accepted for cross-origin websocket
	// connections. Same-origin connections are always accepted.
	AllowedOrigins []string
	Logger         logging.Logger
}

// Server is the development server.
type Server struct {
	opts         Options
	logger       logging.Logger
	hub          *hub
	httpServer   *http.Server
	serverMutex  sync.RWMutex
	shutdownOnce sync.Once
}

// UpdateMessage represents a message sent to the browser
type UpdateMessage struct {
	Type      string    `json:"type"`
	CSS       []string  `json:"css,omitempty"`
	JS        []string  `json:"js,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// New creates a server. Call Start to listen.
func New(opts Options) *Server {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}

	logger := opts.Logger.WithComponent("server")

	return &Server{
		opts:   opts,
		logger: logger,
		hub:    newHub(logger),
	}
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	prefix := mountPath(s.opts.PublicURL)
	mux.Handle(prefix, http.StripPrefix(prefix, bundleHandler(s.opts.PublicDir)))
	mux.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc(WebSocketPath, s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	return mux
}

// mountPath turns a public URL into a mux pattern ending in '/'.
func mountPath(publicURL string) string {
	p := publicURL
	if u, err := url.Parse(publicURL); err == nil && u.Host != "" {
		p = u.Path
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}

	return p
}

// bundleHandler serves the public directory. Dotfiles, which include the
// index directory and in-flight temporary files, are never served.
func bundleHandler(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		for _, segment := range strings.Split(r.URL.Path, "/") {
			if strings.HasPrefix(segment, ".") {
				http.NotFound(w, r)
				return
			}
		}
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}

		// Bundle names change with their content.
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		files.ServeHTTP(w, r)
	})
}

// Start listens until ctx is cancelled or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn(shutdownCtx, err, "Server shutdown failed")
		}
	}()

	s.logger.Info(ctx, "Server listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving on %s: %w", server.Addr, err)
	}

	return nil
}

// Shutdown closes websocket clients and gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "Shutting down server")
		s.hub.closeAll()

		s.serverMutex.RLock()
		server := s.httpServer
		s.serverMutex.RUnlock()

		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		}
	})

	return shutdownErr
}

// Broadcast sends msg to every connected client and keeps it for clients
// that connect later.
func (s *Server) Broadcast(msg UpdateMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error(context.Background(), err, "Failed to encode update message")
		return
	}

	s.hub.broadcast(data)
}

// NotifyBuild broadcasts the outcome of a build. It is a build.BuildCallback.
func (s *Server) NotifyBuild(result build.BuildResult) {
	if result.Error != nil {
		s.Broadcast(UpdateMessage{Type: "error", Error: result.Error.Error()})
		return
	}

	s.Broadcast(UpdateMessage{Type: "rebuild", CSS: result.CSS, JS: result.JS})
}

// Clients returns the number of connected websocket clients.
func (s *Server) Clients() int {
	return s.hub.count()
}

// handleHealth returns the server health status for health checks
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   version.GetShortVersion(),
		"clients":   s.hub.count(),
	}
	if s.opts.Builds != nil {
		m := s.opts.Builds.GetMetrics()
		health["builds"] = map[string]interface{}{
			"total":        m.TotalBuilds,
			"successful":   m.SuccessfulBuilds,
			"failed":       m.FailedBuilds,
			"success_rate": m.SuccessRate(),
			"average_ms":   m.AverageDuration.Milliseconds(),
			"last_build":   m.LastBuild,
			"last_error":   m.LastError,
			"bundles":      m.Bundles,
		}
		if m.LastError != "" {
			health["status"] = "degraded"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(health); err != nil {
		s.logger.Warn(r.Context(), err, "Failed to encode health response")
	}
}
