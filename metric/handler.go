package metric

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360/aethalometer/errors"
	"github.com/c360/aethalometer/health"
)

// Server represents the metrics HTTP server
type Server struct {
	port     int
	path     string
	server   *http.Server
	registry *MetricsRegistry
	monitor  *health.Monitor
	system   string
	logger   *slog.Logger
	mu       sync.Mutex // protects server and stopped
	stopped  bool
}

// NewServer creates a new metrics server with the provided registry.
// A nil monitor makes /health always answer healthy.
func NewServer(port int, path string, registry *MetricsRegistry, monitor *health.Monitor, logger *slog.Logger) *Server {
	if path == "" {
		path = "/metrics"
	}
	if port == 0 {
		port = 9090
	}
	if logger == nil {
		logger = slog.Default().With("component", "metrics-server")
	}

	return &Server{
		port:     port,
		path:     path,
		registry: registry,
		monitor:  monitor,
		system:   "aethalometer",
		logger:   logger,
	}
}

// Handler returns the HTTP handler serving metrics and health
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle(s.path, promhttp.HandlerFor(
		s.registry.PrometheusRegistry(),
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		},
	))

	mux.HandleFunc("/health", s.handleHealth)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := health.NewHealthy(s.system, "No health monitor configured")
	if s.monitor != nil {
		status = s.monitor.AggregateHealth(s.system)
	}

	code := http.StatusOK
	if status.IsUnhealthy() {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Warn("Failed to encode health status", "error", err)
	}
}

// Start starts the metrics HTTP server and blocks until it is stopped
func (s *Server) Start() error {
	s.mu.Lock()

	if s.stopped {
		s.mu.Unlock()
		return nil
	}

	if s.server != nil {
		s.mu.Unlock()
		return errors.Wrap(fmt.Errorf("server already running"), "Server", "Start", "check running state")
	}

	if s.registry == nil {
		s.mu.Unlock()
		return errors.Wrap(errors.ErrMissingConfig, "Server", "Start", "metrics registry not provided")
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.server = server
	s.mu.Unlock()

	s.logger.Info("Metrics server listening", "url", s.Address())

	if err := server.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "Server", "Start", fmt.Sprintf("listen on port %d", s.port))
	}

	return nil
}

// Stop stops the metrics server. A server stopped before Start never starts.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	if s.server != nil {
		err := s.server.Close()
		s.server = nil
		if err != nil {
			return errors.Wrap(err, "Server", "Stop", "close HTTP server")
		}
	}
	return nil
}

// Address returns the local URL metrics are served on
func (s *Server) Address() string {
	return fmt.Sprintf("http://localhost:%d%s", s.port, s.path)
}
