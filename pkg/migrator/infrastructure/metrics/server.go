package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	logger "github.com/tigerroll/dbmigrator/pkg/migrator/support/util/logger"
)

// Server exposes a PrometheusRecorder on /metrics.
type Server struct {
	srv *http.Server
}

// NewServer creates a metrics server listening on addr.
func NewServer(addr string, recorder *PrometheusRecorder) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", recorder.Handler())
	return &Server{srv: &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}}
}

// Start binds the listener and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	logger.Infof("Metrics endpoint listening on %s/metrics", ln.Addr())
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Metrics endpoint stopped: %v", err)
		}
	}()
	return nil
}

// Stop shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
