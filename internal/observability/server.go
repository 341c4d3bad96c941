package observability

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pilot/internal/shared/logging"
)

// Server exposes /metrics on a local port. It can be toggled at runtime via
// the /monitor command; Enable and Disable are idempotent.
type Server struct {
	port   int
	logger logging.Logger

	mu  sync.Mutex
	srv *http.Server
}

// NewServer prepares a metrics endpoint on the given port without starting it.
func NewServer(port int, logger logging.Logger) *Server {
	return &Server{port: port, logger: logging.OrNop(logger)}
}

// Enable starts the HTTP listener. Already-running servers are left alone.
func (s *Server) Enable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", s.port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.srv = srv

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("metrics server: %v", err)
			s.mu.Lock()
			if s.srv == srv {
				s.srv = nil
			}
			s.mu.Unlock()
		}
	}()
	s.logger.Info("metrics listening on %s/metrics", srv.Addr)
	return nil
}

// Disable stops the listener if it is running.
func (s *Server) Disable() {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.mu.Unlock()
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

// Enabled reports whether the listener is up.
func (s *Server) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.srv != nil
}
