package system

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/aisaas/backend/internal/logging"
)

var _ Service = (*HTTPServer)(nil)

// HTTPServer serves a handler as a lifecycle-managed service.
type HTTPServer struct {
	srv *http.Server
	log *logging.Logger

	mu   sync.Mutex
	addr net.Addr
	errc chan error
}

// NewHTTPServer configures a server on addr.
func NewHTTPServer(addr string, handler http.Handler, readTimeout, writeTimeout time.Duration, log *logging.Logger) *HTTPServer {
	if log == nil {
		log = logging.NewDefault("http")
	}
	return &HTTPServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       readTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       2 * time.Minute,
		},
		log:  log,
		errc: make(chan error, 1),
	}
}

func (s *HTTPServer) Name() string { return "http-server" }

// Start binds the listener and serves in the background.
func (s *HTTPServer) Start(ctx context.Context) error {
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errc <- err
		}
		close(s.errc)
	}()
	s.log.WithField("addr", ln.Addr().String()).Info("HTTP server listening")
	return nil
}

// Stop drains in-flight requests until ctx expires.
func (s *HTTPServer) Stop(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return err
	}
	s.log.Info("HTTP server stopped")
	return nil
}

// Addr returns the bound address once started.
func (s *HTTPServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Err yields a serve failure and is closed when serving ends.
func (s *HTTPServer) Err() <-chan error {
	return s.errc
}
