package runtime

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

const limiterCleanupInterval = time.Minute

// Start binds the listener synchronously so address errors surface here,
// then serves in the background.
func (s *httpServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	cleanupCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	if s.limiter != nil {
		s.limiter.StartCleanup(cleanupCtx, limiterCleanupInterval)
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("http server failed")
			s.errCh <- err
		}
	}()
	return nil
}

func (s *httpServer) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	return s.srv.Shutdown(ctx)
}

// Addr is the bound address after Start, the configured one before.
func (s *httpServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Errors reports a serve failure.
func (s *httpServer) Errors() <-chan error {
	return s.errCh
}
