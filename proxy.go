// Package cachingproxy implements a concurrent forwarding HTTP proxy.
// GET requests are forwarded to the origin with rewritten headers and the
// responses are relayed back to the client; small response bodies are
// kept in a bounded in-memory LRU cache shared by all connections.
package cachingproxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/caching-proxy/caching-proxy/accesslog"
	"github.com/caching-proxy/caching-proxy/cache"

	"github.com/rs/zerolog"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"
)

const (
	defaultMaxConns    = 512
	defaultDialTimeout = 10 * time.Second
)

type Config struct {
	// Addr to listen on, e.g. ":8080".
	Addr string
	// MaxConns caps concurrently served connections. Defaults to 512.
	MaxConns int
	// DialTimeout bounds origin connection attempts. Defaults to 10s.
	DialTimeout time.Duration
	// UserAgent overrides the fixed outbound User-Agent when non-empty.
	UserAgent string
	// AccessLog records handled requests when non-nil.
	AccessLog *accesslog.Log
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
}

// Server accepts client connections and dispatches each one to its own
// worker goroutine. Exactly one cache store exists per server; it is
// created in New, before the accept loop starts, and shared by every
// worker for the lifetime of the process.
type Server struct {
	store       *cache.Store
	alog        *accesslog.Log
	log         zerolog.Logger
	addr        string
	maxConns    int
	dialTimeout time.Duration
	userAgent   string

	listener net.Listener
	workers  errgroup.Group
}

// New creates the proxy server and its single shared cache store.
func New(cfg Config) *Server {
	// use console logger if not specified in config
	var logger zerolog.Logger
	if cfg.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *cfg.Logger
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = defaultMaxConns
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	return &Server{
		store:       cache.New(),
		alog:        cfg.AccessLog,
		log:         logger,
		addr:        cfg.Addr,
		maxConns:    cfg.MaxConns,
		dialTimeout: cfg.DialTimeout,
		userAgent:   cfg.UserAgent,
	}
}

// Listen binds the listening socket. Serve calls it implicitly; it is
// split out so callers can learn the bound address before serving when
// listening on ":0".
func (s *Server) Listen() error {
	l, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.listener = netutil.LimitListener(l, s.maxConns)
	return nil
}

// Addr returns the bound listener address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until the listener is closed. Each accepted
// connection runs in its own worker; the acceptor returns to Accept
// immediately after dispatch and never observes worker errors.
func (s *Server) Serve() error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	s.log.Info().Str("addr", s.listener.Addr().String()).Msg("Proxy listening")
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Error().Err(err).Msg("Accept failed")
			continue
		}
		s.workers.Go(func() error {
			s.handleConn(conn)
			return nil
		})
	}
}

// Shutdown closes the listener and waits for in-flight workers to finish
// or for the context to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.listener != nil {
		s.listener.Close()
	}
	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CacheStats returns a snapshot of the shared cache counters.
func (s *Server) CacheStats() cache.Stats {
	return s.store.Stats()
}
