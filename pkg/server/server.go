// Package server provides the HTTP listener driven by the lifecycle
// coordinator, together with the router and handlers it serves.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"

	"github.com/marmos91/miniserver/internal/logger"
	"github.com/marmos91/miniserver/pkg/lifecycle"
)

// ErrAlreadyListening is returned by Start when the server is bound.
var ErrAlreadyListening = errors.New("server is already listening")

// Server is an HTTP server that binds on demand.
//
// Start binds synchronously so bind failures are reported to the caller,
// then serves on a background goroutine. Stop performs a graceful shutdown
// bounded by its context and falls back to closing open connections.
//
// Server implements lifecycle.Listener.
type Server struct {
	config Config

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	network  string
	address  string
	served   chan struct{}

	stopOnce sync.Once
	stopErr  error
}

var _ lifecycle.Listener = (*Server)(nil)

// New creates a stopped server. SetHandler must be called before Start.
func New(config Config) *Server {
	config.ApplyDefaults()
	return &Server{
		config: config,
		server: &http.Server{
			Handler:      http.NotFoundHandler(),
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
			ErrorLog:     logger.StdLogger("http"),
		},
	}
}

// SetHandler installs the root handler. It has no effect once started.
func (s *Server) SetHandler(h http.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		s.server.Handler = h
	}
}

// Start binds network/address and begins serving in the background.
func (s *Server) Start(ctx context.Context, network, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return ErrAlreadyListening
	}

	ln, err := listen(network, address, os.FileMode(s.config.SocketMode))
	if err != nil {
		return err
	}

	s.listener = ln
	s.network = network
	s.address = address
	s.served = make(chan struct{})
	s.server.BaseContext = func(net.Listener) context.Context {
		return context.WithoutCancel(ctx)
	}

	go s.serve(ln, s.served)

	logger.DebugCtx(ctx, "HTTP server listening",
		logger.Network(network),
		logger.Address(ln.Addr().String()),
	)
	return nil
}

func (s *Server) serve(ln net.Listener, done chan struct{}) {
	defer close(done)
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("HTTP server stopped serving", logger.Err(err))
	}
}

// Stop gracefully shuts the server down. Stop is safe to call multiple
// times and before Start; later calls return the first result.
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		ln, network, address, served := s.listener, s.network, s.address, s.served
		s.mu.Unlock()

		if ln == nil {
			return
		}

		logger.DebugCtx(ctx, "HTTP server shutdown initiated")
		if err := s.server.Shutdown(ctx); err != nil {
			s.stopErr = fmt.Errorf("HTTP server shutdown: %w", err)
			_ = s.server.Close()
		}
		<-served

		if network == "unix" {
			if err := os.Remove(address); err != nil && !errors.Is(err, os.ErrNotExist) {
				logger.DebugCtx(ctx, "Error removing socket file", logger.Address(address), logger.Err(err))
			}
		}

		if s.stopErr == nil {
			logger.InfoCtx(ctx, "HTTP server stopped gracefully")
		}
	})
	return s.stopErr
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}
