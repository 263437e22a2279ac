// Package server implements the listener and supervisor: bind, accept,
// enforce the local-only policy, and dispatch each accepted connection to
// an isolated worker goroutine. Isolation across connections is one
// goroutine per connection plus a single mutex serializing access to the
// shared evaluator.
package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/rserved/internal/archive"
	"github.com/marmos91/rserved/internal/eval"
	"github.com/marmos91/rserved/internal/logger"
	"github.com/marmos91/rserved/internal/session"
	"github.com/marmos91/rserved/internal/transport"
)

// DefaultPort is the QAP1 listening port.
const DefaultPort = 6311

// DefaultBacklog matches the reference supervisor's accept backlog. Go's
// net.Listen does not expose backlog directly, so this constant is
// descriptive rather than load-bearing on this platform.
const DefaultBacklog = 16

// Config configures the listener and supervisor.
type Config struct {
	BindAddress     string
	Port            int
	Workdir         string
	MaxConnections  int
	ShutdownTimeout time.Duration
	LocalOnly       bool
	InputCeiling    int32
	Transport       transport.Config
}

// MetricsRecorder allows the caller to observe connection lifecycle
// events; the Prometheus wiring lives behind this interface so this
// package stays independent of the metrics registry.
type MetricsRecorder interface {
	RecordConnectionAccepted()
	RecordConnectionClosed()
	RecordConnectionForceClosed()
	SetActiveConnections(count int32)
}

// Server owns the TCP listener and the lifecycle of every accepted
// connection.
type Server struct {
	cfg       Config
	gateway   *eval.Gateway
	evalMu    sync.Mutex
	recorder  session.Recorder
	metrics   MetricsRecorder
	archiver  archive.Backend
	transport *transport.Adapter

	listener   net.Listener
	listenerMu sync.RWMutex

	ucix          atomic.Int64
	connCount     atomic.Int32
	connSemaphore chan struct{}
	activeConns   sync.WaitGroup
	connections   sync.Map // remote addr -> net.Conn

	shutdownOnce sync.Once
	shutdown     chan struct{}
	shutdownCtx  context.Context
	cancel       context.CancelFunc

	listenerReady chan struct{}
}

// New returns a Server ready to Serve. gateway is the single shared
// evaluator instance every connection's session will serialize access to
// via the server's own mutex. archiver may be nil, which leaves every
// connection's workdir on disk for post-mortem inspection. New
// fails only if cfg.Transport enables TLS and the configured key pair
// cannot be loaded.
func New(cfg Config, gateway *eval.Gateway, recorder session.Recorder, metrics MetricsRecorder, archiver archive.Backend) (*Server, error) {
	adapter, err := transport.New(cfg.Transport)
	if err != nil {
		return nil, err
	}

	var sem chan struct{}
	if cfg.MaxConnections > 0 {
		sem = make(chan struct{}, cfg.MaxConnections)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:           cfg,
		gateway:       gateway,
		recorder:      recorder,
		metrics:       metrics,
		archiver:      archiver,
		transport:     adapter,
		connSemaphore: sem,
		shutdown:      make(chan struct{}),
		shutdownCtx:   ctx,
		cancel:        cancel,
		listenerReady: make(chan struct{}),
	}, nil
}

// Serve runs the accept loop until ctx is cancelled or Stop is called. It
// returns nil on graceful shutdown, or an error if the listener could not
// be created or the shutdown timeout was exceeded.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.BindAddress, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", addr, err)
	}

	s.listenerMu.Lock()
	s.listener = ln
	s.listenerMu.Unlock()
	close(s.listenerReady)

	logger.Info("rserved listening", "addr", addr)

	go func() {
		<-ctx.Done()
		s.initiateShutdown()
	}()

	for {
		if s.connSemaphore != nil {
			select {
			case s.connSemaphore <- struct{}{}:
			case <-s.shutdown:
				return s.gracefulShutdown()
			}
		}

		conn, err := ln.Accept()
		if err != nil {
			if s.connSemaphore != nil {
				<-s.connSemaphore
			}
			select {
			case <-s.shutdown:
				return s.gracefulShutdown()
			default:
				logger.Debug("accept error", "error", err)
				continue
			}
		}

		if s.cfg.LocalOnly && !isLoopback(conn) {
			logger.Warn("rejecting non-loopback connection under local-only policy", "addr", conn.RemoteAddr())
			_ = conn.Close()
			if s.connSemaphore != nil {
				<-s.connSemaphore
			}
			continue
		}

		if tcp, ok := conn.(*net.TCPConn); ok {
			_ = tcp.SetNoDelay(true)
		}
		conn = s.transport.Wrap(conn)

		s.activeConns.Add(1)
		s.connCount.Add(1)
		addr := conn.RemoteAddr().String()
		s.connections.Store(addr, conn)
		if s.metrics != nil {
			s.metrics.RecordConnectionAccepted()
			s.metrics.SetActiveConnections(s.connCount.Load())
		}

		ucix := s.ucix.Add(1)
		var cmdMetrics session.CommandMetrics
		if cm, ok := s.metrics.(session.CommandMetrics); ok {
			cmdMetrics = cm
		}
		sess := session.New(conn, ucix, s.cfg.Workdir, s.gateway, &s.evalMu, s.recorder, s.initiateShutdown, s.archiver, cmdMetrics, s.cfg.InputCeiling)

		go func(remoteAddr string, c net.Conn) {
			defer func() {
				s.connections.Delete(remoteAddr)
				s.activeConns.Done()
				s.connCount.Add(-1)
				if s.connSemaphore != nil {
					<-s.connSemaphore
				}
				if s.metrics != nil {
					s.metrics.RecordConnectionClosed()
					s.metrics.SetActiveConnections(s.connCount.Load())
				}
			}()
			sess.Serve(s.shutdownCtx)
		}(addr, conn)
	}
}

func isLoopback(conn net.Conn) bool {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return false
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// initiateShutdown begins graceful shutdown: stop accepting, interrupt
// blocking reads on active connections, and cancel the shared context.
func (s *Server) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		close(s.shutdown)

		s.listenerMu.Lock()
		if s.listener != nil {
			_ = s.listener.Close()
		}
		s.listenerMu.Unlock()

		deadline := time.Now().Add(100 * time.Millisecond)
		s.connections.Range(func(_, v any) bool {
			if c, ok := v.(net.Conn); ok {
				_ = c.SetReadDeadline(deadline)
			}
			return true
		})

		s.cancel()
	})
}

// gracefulShutdown waits for active connections to finish or force-closes
// them once ShutdownTimeout elapses.
func (s *Server) gracefulShutdown() error {
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("rserved graceful shutdown complete")
		return nil
	case <-time.After(timeout):
		remaining := s.connCount.Load()
		logger.Warn("rserved shutdown timeout exceeded, forcing closure", "remaining", remaining)
		s.connections.Range(func(k, v any) bool {
			if c, ok := v.(net.Conn); ok {
				_ = c.Close()
				if s.metrics != nil {
					s.metrics.RecordConnectionForceClosed()
				}
			}
			return true
		})
		return fmt.Errorf("server: shutdown timeout, %d connections force-closed", remaining)
	}
}

// Stop initiates shutdown and waits (bounded by ctx) for it to complete.
func (s *Server) Stop(ctx context.Context) error {
	s.initiateShutdown()
	if ctx == nil {
		return s.gracefulShutdown()
	}

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Addr blocks until the listener is ready and returns its address.
func (s *Server) Addr() string {
	<-s.listenerReady
	s.listenerMu.RLock()
	defer s.listenerMu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// ActiveConnections returns the current connection count.
func (s *Server) ActiveConnections() int32 { return s.connCount.Load() }
