package ipc

import (
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/pion/logging"
)

// Handler answers one decoded Request. It is called synchronously from
// the connection's read loop, matching the rest of this tree's
// single-threaded-per-connection style; callers that need to reach the
// control engine do so through whatever channel they already use to
// serialize access to it.
type Handler func(req *Request) *Response

// ServerConfig configures a Server.
type ServerConfig struct {
	// SocketPath is the Unix socket path to listen on. Required.
	SocketPath string
	// Handler answers incoming requests. Required.
	Handler Handler

	LoggerFactory logging.LoggerFactory
}

// Server accepts IPC client connections on a Unix socket, decodes
// Envelope frames, dispatches Requests to Handler, and lets callers
// broadcast Events to every connected client (spec §6 IPC surface).
//
// Follows the TCP listener pattern used elsewhere in this tree: a
// listener goroutine, a mutex-guarded connection set, and explicit
// started/closed flags rather than relying on closing channels to
// signal shutdown.
type Server struct {
	cfg ServerConfig
	log logging.LeveledLogger

	listener net.Listener

	mu      sync.Mutex
	conns   map[*serverConn]struct{}
	started bool
	closed  bool

	wg sync.WaitGroup
}

type serverConn struct {
	conn   net.Conn
	mu     sync.Mutex // protects writes (replies and broadcast events interleave)
	nextSeq uint64
}

// NewServer creates a Server listening on cfg.SocketPath. Any stale socket
// file left behind by a previous, uncleanly-terminated daemon is removed
// first.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.SocketPath == "" {
		return nil, fmt.Errorf("ipc: SocketPath is required")
	}
	if cfg.Handler == nil {
		return nil, fmt.Errorf("ipc: Handler is required")
	}
	factory := cfg.LoggerFactory
	if factory == nil {
		factory = logging.NewDefaultLoggerFactory()
	}

	if err := removeStaleSocket(cfg.SocketPath); err != nil {
		return nil, fmt.Errorf("ipc: clearing stale socket: %w", err)
	}
	listener, err := net.Listen("unix", cfg.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("ipc: listening on %s: %w", cfg.SocketPath, err)
	}

	return &Server{
		cfg:      cfg,
		log:      factory.NewLogger("ipc"),
		listener: listener,
		conns:    make(map[*serverConn]struct{}),
	}, nil
}

// removeStaleSocket deletes path if it exists and nothing is listening on
// it, so a crashed daemon's leftover socket file does not block restart.
func removeStaleSocket(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil // nothing there
	}
	if conn, err := net.Dial("unix", path); err == nil {
		conn.Close()
		return fmt.Errorf("a daemon is already listening on %s", path)
	}
	return os.Remove(path)
}

// Start begins accepting connections.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("ipc: server closed")
	}
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("ipc: server already started")
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		sc := &serverConn{conn: conn}
		s.mu.Lock()
		s.conns[sc] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serve(sc)
	}
}

func (s *Server) serve(sc *serverConn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, sc)
		s.mu.Unlock()
		sc.conn.Close()
	}()

	for {
		env, err := ReadEnvelope(sc.conn)
		if err != nil {
			return
		}
		if env.Request == nil {
			s.log.Warnf("ipc: envelope %s has no request, ignoring", env.Kind())
			continue
		}
		resp := s.cfg.Handler(env.Request)
		reply := &Envelope{Seq: env.Seq, RequestID: env.RequestID, Response: resp}
		if err := sc.write(reply); err != nil {
			s.log.Debugf("ipc: writing reply: %v", err)
			return
		}
	}
}

func (sc *serverConn) write(env *Envelope) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return WriteEnvelope(sc.conn, env)
}

// Broadcast sends ev to every currently connected client.
func (s *Server) Broadcast(ev *Event) {
	s.mu.Lock()
	targets := make([]*serverConn, 0, len(s.conns))
	for sc := range s.conns {
		targets = append(targets, sc)
	}
	s.mu.Unlock()

	for _, sc := range targets {
		sc.mu.Lock()
		sc.nextSeq++
		env := &Envelope{Seq: sc.nextSeq, Event: ev}
		sc.mu.Unlock()
		if err := sc.write(env); err != nil {
			s.log.Debugf("ipc: broadcasting event: %v", err)
		}
	}
}

// Close closes every connection and the listener.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conns := make([]*serverConn, 0, len(s.conns))
	for sc := range s.conns {
		conns = append(conns, sc)
	}
	s.conns = make(map[*serverConn]struct{})
	s.mu.Unlock()

	s.listener.Close()
	for _, sc := range conns {
		sc.conn.Close()
	}
	s.wg.Wait()
	return os.Remove(s.cfg.SocketPath)
}

// Client is a thin synchronous IPC client used by cmd/aetherlink-daemonctl
// (spec §9 supplemented features: "a minimal framer that encodes
// ipc.Envelope requests and decodes responses over a Unix socket").
type Client struct {
	conn net.Conn
	mu   sync.Mutex
	seq  uint64
}

// Dial connects to a running daemon's IPC socket.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("ipc: dialing %s: %w", socketPath, err)
	}
	return &Client{conn: conn}, nil
}

// Call sends req and blocks for the matching Response.
func (c *Client) Call(req *Request) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	env := &Envelope{Seq: c.seq, Request: req}
	if err := WriteEnvelope(c.conn, env); err != nil {
		return nil, fmt.Errorf("ipc: sending request: %w", err)
	}
	reply, err := ReadEnvelope(c.conn)
	if err != nil {
		return nil, fmt.Errorf("ipc: reading response: %w", err)
	}
	if reply.Response == nil {
		return nil, fmt.Errorf("ipc: reply carried no response (got %s)", reply.Kind())
	}
	return reply.Response, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
