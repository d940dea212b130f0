package meanstoend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harveysanders/meanstoend/log"
)

const (
	logKeyConnID  = "conn"
	logKeySession = "session"
	logKeyRemote  = "remote"
	logKeyState   = "state"
	logKeyRecord  = "record"
	logKeyError   = "error"
)

var ErrServerClosed = errors.New("meanstoend: server closed")

// Bounds of the pause after a failed Accept.
const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

type ServerConfig struct {
	// IdleTimeout closes a connection that does not send a complete record within the duration. Zero waits forever.
	IdleTimeout time.Duration
}

type Server struct {
	logger   *slog.Logger
	config   ServerConfig
	newStore StoreFunc

	// mu protects the fields below.
	mu       sync.Mutex
	listener net.Listener
	conns    map[*conn]struct{}
	closed   bool
	done     chan struct{} // Closed by Close.
	wg       sync.WaitGroup // Running connection handlers.
}

// NewServer returns a server that opens a new Store with newStore for every accepted connection.
// A nil logger logs to stderr.
func NewServer(logger *slog.Logger, config ServerConfig, newStore StoreFunc) *Server {
	if logger == nil {
		logger = log.New(os.Stderr, slog.LevelInfo).With("name", "MeansToEndServer")
	}
	return &Server{
		logger:   logger,
		config:   config,
		newStore: newStore,
		conns:    make(map[*conn]struct{}),
		done:     make(chan struct{}),
	}
}

// ListenAndServe listens on the TCP network address addr and then calls Serve to handle incoming connections.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on l and handles each one in its own goroutine.
// Failed Accepts are logged and retried with a growing delay, so a temporary
// shortage such as running out of file descriptors does not stop the server.
// Serve returns when l is closed. After Close, the returned error is ErrServerClosed.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = l.Close()
		return ErrServerClosed
	}
	s.listener = l
	s.mu.Unlock()
	defer l.Close()

	s.logger.Info("server listening", "addr", l.Addr().String())

	ctx := context.Background()
	var connID uint64
	var acceptDelay time.Duration
	for {
		rwc, err := l.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("l.Accept: %w", err)
			}

			acceptDelay = max(minAcceptDelay, min(2*acceptDelay, maxAcceptDelay))
			s.logger.Error("accept failed", logKeyError, err, "retry_in", acceptDelay)
			select {
			case <-time.After(acceptDelay):
			case <-s.done:
			}
			continue
		}
		acceptDelay = 0

		connID++
		c := &conn{
			rwc:     rwc,
			id:      connID,
			session: uuid.New(),
			server:  s,
		}
		if !s.trackConn(c, true) {
			_ = rwc.Close()
			return ErrServerClosed
		}
		go c.serve(ctx)
	}
}

// Addr returns the listener's network address, or nil if the server is not serving.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close stops the listener, closes all active connections and waits for their handlers to return.
func (s *Server) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	errs := make([]error, 0, len(s.conns)+1)
	if s.listener != nil {
		errs = append(errs, s.listener.Close())
	}
	for c := range s.conns {
		errs = append(errs, c.rwc.Close())
	}
	s.mu.Unlock()

	s.wg.Wait()

	// Handlers and Serve may have closed their own sockets first.
	for i, err := range errs {
		if errors.Is(err, net.ErrClosed) {
			errs[i] = nil
		}
	}
	return errors.Join(errs...)
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// trackConn adds or removes c from the set of active connections. It reports false if c can not be added because the server is closed.
func (s *Server) trackConn(c *conn, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		if s.closed {
			return false
		}
		s.conns[c] = struct{}{}
		s.wg.Add(1)
		return true
	}
	delete(s.conns, c)
	s.wg.Done()
	return true
}
