// Package server implements the TCP listener and accept loop: one
// goroutine per accepted connection, each driven by an
// internal/session.Session against a shared internal/directory.Directory.
//
// Grounded on the net.Listen/Accept/Stop shape of cuemby/warren/pkg/api's
// Server.Start/Stop, generalized from gRPC's own accept loop (grpc.Server
// owns it internally) to an explicit loop since this protocol is raw
// framed TCP, not gRPC.
package server

import (
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dirbookd/server/internal/audit"
	"github.com/dirbookd/server/internal/directory"
	"github.com/dirbookd/server/internal/log"
	"github.com/dirbookd/server/internal/metrics"
	"github.com/dirbookd/server/internal/session"
)

// Server accepts directory-protocol connections and serves each on its own
// goroutine.
type Server struct {
	dir      *directory.Directory
	auditLog *audit.Log
	sessCfg  session.Config

	listener   net.Listener
	metricsSrv *http.Server

	wg       sync.WaitGroup
	stopOnce sync.Once
	closed   chan struct{}
}

// New creates a Server bound to dir. It does not start listening yet; call
// Start.
func New(dir *directory.Directory, auditLog *audit.Log, sessCfg session.Config) *Server {
	return &Server{
		dir:      dir,
		auditLog: auditLog,
		sessCfg:  sessCfg,
		closed:   make(chan struct{}),
	}
}

// Start binds the listener at addr and begins accepting connections in the
// background. If metricsAddr is non-empty, a separate HTTP server exposing
// /metrics, /health and /ready is also started there.
func (s *Server) Start(addr, metricsAddr string) error {
	logger := log.WithComponent("server")

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", addr, err)
	}
	s.listener = lis
	logger.Info().Str("addr", addr).Msg("listening for directory connections")

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/health", healthHandler)
		mux.HandleFunc("/ready", readyHandler(s.dir))
		s.metricsSrv = &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			logger.Info().Str("addr", metricsAddr).Msg("serving /metrics")
			if err := s.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	s.wg.Add(1)
	go s.acceptLoop(logger)
	return nil
}

// acceptLoop runs until the listener is closed by Stop, spawning one
// goroutine per accepted connection.
func (s *Server) acceptLoop(logger zerolog.Logger) {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
			}
			logger.Error().Err(err).Msg("accept failed")
			return
		}

		sess := session.New(conn, s.dir, s.auditLog, s.sessCfg)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			sess.Serve()
		}()
	}
}

// Stop closes the listener so acceptLoop stops admitting new connections.
// It deliberately does not wait for in-flight session goroutines: those are
// drained by internal/shutdown acquiring each coordinator's writer
// exclusivity, bounded by its own deadline, rather than by blocking here.
// Wait can be called afterward if the caller wants a best-effort join.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.closed)
		if s.listener != nil {
			s.listener.Close()
		}
		if s.metricsSrv != nil {
			s.metricsSrv.Close()
		}
	})
}

// Wait blocks until every connection goroutine started by this Server has
// returned. Used by cmd/dirbookd only after a clean shutdown, as a final
// join before process exit.
func (s *Server) Wait() {
	s.wg.Wait()
}
