// Package server accepts client connections on the local endpoint and runs
// each one's request loop against a shared Engine.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/ASHISH26940/pipekv/internal/config"
	"github.com/ASHISH26940/pipekv/internal/metrics"
	"github.com/ASHISH26940/pipekv/internal/protocol"
)

// Accept failures back off from minAcceptDelay, doubling up to maxAcceptDelay.
const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = 1 * time.Second
)

// Server binds the endpoint and owns the Engine for the process lifetime.
type Server struct {
	cfg     *config.Config
	engine  *Engine
	logger  hclog.Logger
	metrics *metrics.Recorder

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closing  bool
	wg       sync.WaitGroup
}

// New creates a Server from a validated configuration. rec may be nil.
func New(cfg *config.Config, logger hclog.Logger, rec *metrics.Recorder) *Server {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Server{
		cfg: cfg,
		engine: NewEngine(EngineOptions{
			Strategies:  cfg.StrategyOptions(),
			MaxRecords:  cfg.MaxRecords,
			SnapshotDir: cfg.SnapshotDir,
			Logger:      logger.Named("engine"),
			Metrics:     rec,
		}),
		logger:  logger,
		metrics: rec,
		conns:   make(map[net.Conn]struct{}),
	}
}

// Engine returns the shared engine.
func (s *Server) Engine() *Engine {
	return s.engine
}

// Listen binds the configured endpoint. A stale unix socket file left by a
// previous run is removed first.
func (s *Server) Listen(ctx context.Context) error {
	if s.cfg.Network == "unix" {
		if err := os.MkdirAll(filepath.Dir(s.cfg.Address), 0o755); err != nil {
			return fmt.Errorf("failed to create socket directory: %w", err)
		}
		if err := os.Remove(s.cfg.Address); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove stale socket: %w", err)
		}
	}

	lc := net.ListenConfig{}
	l, err := lc.Listen(ctx, s.cfg.Network, s.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Address, err)
	}
	if s.cfg.Network == "unix" {
		if err := os.Chmod(s.cfg.Address, 0o600); err != nil {
			l.Close()
			return fmt.Errorf("failed to restrict socket: %w", err)
		}
	}

	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()
	s.logger.Info("listening", "network", s.cfg.Network, "address", l.Addr().String(), "serial", s.cfg.Serial)
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until ctx is cancelled or Close is called.
// In serial mode each connection is drained before the next is accepted;
// otherwise every connection gets its own goroutine.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()
	if l == nil {
		return errors.New("server: Serve called before Listen")
	}

	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	var delay time.Duration
	for {
		conn, err := l.Accept()
		if err != nil {
			if s.isClosing() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			if delay == 0 {
				delay = minAcceptDelay
			} else {
				delay = min(2*delay, maxAcceptDelay)
			}
			s.logger.Error("failed to accept connection", "error", err, "retry_in", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
			}
			continue
		}
		delay = 0

		if !s.track(conn) {
			conn.Close()
			return nil
		}
		if s.cfg.Serial {
			s.handleConn(conn)
			continue
		}
		go s.handleConn(conn)
	}
}

// ListenAndServe binds the endpoint and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(ctx); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Close stops accepting, tears down open connections and waits for their
// handlers to return. A request already past the lock still completes.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		s.wg.Wait()
		return nil
	}
	s.closing = true
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	if s.metrics != nil {
		s.metrics.Connections(len(s.conns))
	}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	if s.metrics != nil {
		s.metrics.Connections(len(s.conns))
	}
	s.mu.Unlock()
	s.wg.Done()
}

// handleConn runs the request loop of one connection until the peer
// disconnects or sends a frame that cannot be decoded.
func (s *Server) handleConn(conn net.Conn) {
	logger := s.logger.With("conn", uuid.NewString())
	defer s.untrack(conn)
	defer func() {
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			logger.Warn("error closing connection", "error", err)
		}
	}()
	logger.Debug("client connected")

	for {
		req, err := protocol.ReadRequest(conn, s.cfg.MaxFrameBytes)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				logger.Debug("client disconnected")
			case errors.Is(err, protocol.ErrProtocol):
				logger.Warn("closing connection on malformed request", "error", err)
				if s.metrics != nil {
					s.metrics.ProtocolError()
				}
			case errors.Is(err, net.ErrClosed):
				logger.Debug("connection closed by server")
			default:
				logger.Debug("failed to read request", "error", err)
			}
			return
		}

		resp := s.engine.Handle(req)

		if err := protocol.WriteResponse(conn, resp); err != nil {
			logger.Debug("failed to write response", "error", err)
			return
		}
	}
}
