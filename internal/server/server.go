package server

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/minidb/minidb/internal/metrics"
	"github.com/minidb/minidb/internal/pipeline"
)

// Server is the TCP command server: an acceptor, a fixed-size worker
// pool, the active-connection set, and the idle-reap monitor, all
// bound to one Engine.
type Server struct {
	engine *pipeline.Engine
	log    zerolog.Logger

	maxConnections  int
	idleTimeout     time.Duration
	monitorInterval time.Duration

	listener net.Listener
	pool     *pool

	mu       sync.Mutex
	active   map[*Connection]struct{}
	stopping bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// Config is the subset of config.Config the server needs, kept
// separate so callers don't have to depend on the whole config type.
type Config struct {
	Listen                   string
	WorkerPoolSize           int
	MaxConnections           int
	ConnectionTimeoutSeconds int
}

// New constructs a Server bound to engine; it does not listen until
// Serve is called.
func New(cfg Config, engine *pipeline.Engine, log zerolog.Logger) *Server {
	return &Server{
		engine:          engine,
		log:             log,
		maxConnections:  cfg.MaxConnections,
		idleTimeout:     time.Duration(cfg.ConnectionTimeoutSeconds) * time.Second,
		monitorInterval: 5 * time.Second,
		active:          make(map[*Connection]struct{}),
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
	}
}

// Serve binds addr, starts the worker pool and monitor task, and runs
// the acceptor loop until Shutdown is called or Accept fails.
func (s *Server) Serve(addr string, workerPoolSize int) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}
	s.listener = lis
	s.pool = newPool(workerPoolSize, workerPoolSize*4, func(c *Connection) { c.serve() })

	go s.monitor()

	s.log.Info().Str("addr", addr).Int("workers", workerPoolSize).Msg("server listening")
	for {
		conn, err := lis.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				close(s.doneCh)
				return nil
			default:
				return fmt.Errorf("server: accept: %w", err)
			}
		}
		s.acceptOne(conn)
	}
}

func (s *Server) acceptOne(netConn net.Conn) {
	metrics.ConnectionsAccepted.Inc()

	s.mu.Lock()
	if len(s.active) >= s.maxConnections {
		s.mu.Unlock()
		metrics.ConnectionsRejected.Inc()
		resp := pipeline.Err(fmt.Errorf("server at capacity"))
		if out, err := pipeline.Encode(resp, "json"); err == nil {
			_, _ = netConn.Write(out)
		}
		_ = netConn.Close()
		return
	}
	c := newConnection(s, netConn)
	s.active[c] = struct{}{}
	s.mu.Unlock()

	s.pool.submit(c)
}

func (s *Server) unregister(c *Connection) {
	s.mu.Lock()
	delete(s.active, c)
	s.mu.Unlock()
}

// monitor wakes on a fixed cadence and closes any connection whose
// idle interval exceeds idleTimeout, rolling back its transaction
// first via Connection.close.
func (s *Server) monitor() {
	ticker := time.NewTicker(s.monitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.reapIdle()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Server) reapIdle() {
	if s.idleTimeout <= 0 {
		return
	}
	s.mu.Lock()
	var stale []*Connection
	for c := range s.active {
		if c.idleSince() > s.idleTimeout {
			stale = append(stale, c)
		}
	}
	s.mu.Unlock()

	for _, c := range stale {
		metrics.ConnectionsReaped.Inc()
		c.log.Info().Msg("reaping idle connection")
		c.close()
	}
}

// Shutdown stops the acceptor and waits for in-flight workers to
// drain.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return nil
	}
	s.stopping = true
	s.mu.Unlock()

	close(s.stopCh)
	if s.listener != nil {
		_ = s.listener.Close()
		<-s.doneCh
	}
	if s.pool != nil {
		s.pool.shutdown()
	}
	return nil
}
