package simserver

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/danmuck/simview/internal/logging"
	"github.com/danmuck/simview/internal/protocol"
	"github.com/danmuck/simview/internal/protocol/frame"
)

// Config defines server behavior.
type Config struct {
	Limits frame.Limits
}

func DefaultConfig() Config {
	return Config{Limits: frame.DefaultLimits()}
}

// Server answers mirror requests from any number of clients. All clients see
// the same Scene and status.
type Server struct {
	cfg Config

	mu       sync.Mutex
	scene    Scene
	status   protocol.ServerStatus
	injected map[protocol.Request][][]byte

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}
	wg      sync.WaitGroup
	clients atomic.Int64
	served  atomic.Int64
}

func New(cfg Config, sc Scene) *Server {
	cfg.Limits = cfg.Limits.WithDefaults()
	return &Server{
		cfg:      cfg,
		scene:    sc.Clone(),
		status:   protocol.StatusRendering,
		injected: make(map[protocol.Request][][]byte),
		conns:    make(map[net.Conn]struct{}),
	}
}

// Scene returns a copy of the current scene.
func (s *Server) Scene() Scene {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scene.Clone()
}

// Update mutates the scene under the server lock.
func (s *Server) Update(fn func(*Scene)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.scene)
}

func (s *Server) SetStatus(status protocol.ServerStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

func (s *Server) Status() protocol.ServerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Inject queues a raw payload returned instead of the next scene reply to req.
func (s *Server) Inject(req protocol.Request, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.injected[req] = append(s.injected[req], append([]byte(nil), payload...))
}

// Served returns the number of requests answered.
func (s *Server) Served() int64 {
	return s.served.Load()
}

// Reply builds the payload for one request.
func (s *Server) Reply(req protocol.Request) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q := s.injected[req]; len(q) > 0 {
		s.injected[req] = q[1:]
		return q[0]
	}
	return s.scene.Encode(s.status, req)
}

// Serve runs the accept loop on ln until ctx ends. It closes ln and every
// client connection, and waits for their handlers before returning.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer s.wg.Wait()
	defer ln.Close()
	logging.Infof("simserver.Server listening addr=%s", ln.Addr())

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		s.closeAllConns()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.trackConn(conn)
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer s.untrackConn(conn)
	defer conn.Close()
	remote := conn.RemoteAddr().String()
	active := s.clients.Add(1)
	logging.Infof("simserver.Server client connected remote=%q active_clients=%d", remote, active)
	defer func() {
		remaining := s.clients.Add(-1)
		logging.Infof("simserver.Server client disconnected remote=%q active_clients=%d", remote, remaining)
	}()

	var op [4]byte
	for {
		if _, err := io.ReadFull(conn, op[:]); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logging.Warnf("simserver.Server read remote=%q err=%v", remote, err)
			}
			return
		}
		req, err := protocol.DecodeRequest(op[:])
		if err != nil {
			logging.Warnf("simserver.Server decode remote=%q err=%v", remote, err)
			return
		}
		if err := frame.WriteReply(conn, s.Reply(req), s.cfg.Limits); err != nil {
			logging.Warnf("simserver.Server write remote=%q req=%s err=%v", remote, req, err)
			return
		}
		s.served.Add(1)
		if s.Status() == protocol.StatusTerminating {
			return
		}
	}
}

func (s *Server) trackConn(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	s.conns[conn] = struct{}{}
}

func (s *Server) untrackConn(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	delete(s.conns, conn)
}

func (s *Server) closeAllConns() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
		delete(s.conns, conn)
	}
}
