package obsv

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes /metrics for Prometheus scraping and, if an OpsFeed is
// attached, /ws for the live transition-event websocket feed.
type Server struct {
	server *http.Server
	port   int
}

// NewServer creates a metrics server bound to port (defaults to 2112). feed
// may be nil to leave /ws unmounted.
func NewServer(port int, feed *OpsFeed) *Server {
	if port == 0 {
		port = 2112
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if feed != nil {
		mux.HandleFunc("/ws", feed.ServeWS)
	}

	return &Server{
		server: &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux},
		port:   port,
	}
}

// Start starts the metrics server in the background.
func (s *Server) Start() error {
	go func() {
		_ = s.server.ListenAndServe()
	}()
	return nil
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// IsHealthy reports whether the metrics endpoint is currently responding.
func (s *Server) IsHealthy() bool {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://localhost:%d/metrics", s.port))
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
