// Package engine implements the sync-engine side of the Finder extension
// protocol. A Server accepts extension connections on a unix socket and
// answers their requests with a Handler.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/panjf2000/ants/v2"

	"github.com/srediag/fsplugin/api"
	"github.com/srediag/fsplugin/internal/logging"
	"github.com/srediag/fsplugin/pkg/protocol"
	"github.com/srediag/fsplugin/pkg/transport"
)

var (
	// ErrNotFound is returned by handlers for paths outside every repo.
	ErrNotFound = errors.New("engine: path is not inside a synced repo")
	// ErrServerClosed is returned by Serve after Close.
	ErrServerClosed = errors.New("engine: server closed")
)

// Handler answers extension requests.
type Handler interface {
	WatchSet(ctx context.Context) ([]api.LocalRepo, error)
	SharedLink(ctx context.Context, path string) (string, error)
}

// Config configures a Server.
type Config struct {
	SocketPath string
	// Name is sent to clients in HelloAck.
	Name string
	// Workers bounds concurrently handled requests.
	Workers int
	// HandshakeTimeout bounds the wait for Hello on a new connection.
	HandshakeTimeout time.Duration
	// RequestTimeout bounds a single handler call.
	RequestTimeout time.Duration
	Transport      transport.Options
	LogOutput      io.Writer
}

// DefaultConfig returns a config listening on socketPath.
func DefaultConfig(socketPath string) Config {
	return Config{
		SocketPath:       socketPath,
		Name:             "fsplugin-engine",
		Workers:          16,
		HandshakeTimeout: 5 * time.Second,
		RequestTimeout:   10 * time.Second,
		Transport:        transport.Options{PeerUID: -1},
	}
}

// Server serves the extension protocol.
type Server struct {
	cfg     Config
	handler Handler
	logger  *logging.Logger

	mu     sync.Mutex
	ln     *transport.Listener
	pool   *ants.Pool
	conns  cmap.ConcurrentMap[string, *transport.Conn]
	nextID atomic.Uint64
	wg     sync.WaitGroup
	closed atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates a server. It does not listen until Listen or ListenAndServe.
func NewServer(cfg Config, h Handler) (*Server, error) {
	if h == nil {
		return nil, errors.New("engine: nil handler")
	}
	if cfg.SocketPath == "" {
		return nil, errors.New("engine: socket path is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 16
	}
	logger := logging.New("engine", cfg.LogOutput)
	pool, err := ants.NewPool(cfg.Workers,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p interface{}) {
			logger.Errorf("request handler panic: %v", p)
		}),
	)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:     cfg,
		handler: h,
		logger:  logger,
		pool:    pool,
		conns:   cmap.New[*transport.Conn](),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Listen takes ownership of the socket path.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return ErrServerClosed
	}
	if s.ln != nil {
		return nil
	}
	ln, err := transport.Listen(s.cfg.SocketPath, s.cfg.Transport)
	if err != nil {
		return err
	}
	s.ln = ln
	s.logger.Infof("listening on %s", s.cfg.SocketPath)
	return nil
}

// Serve accepts connections until Close. It returns ErrServerClosed after Close.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return errors.New("engine: Serve called before Listen")
	}
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closed.Load() {
				return ErrServerClosed
			}
			return fmt.Errorf("accept: %w", err)
		}
		id := strconv.FormatUint(s.nextID.Add(1), 10)
		s.mu.Lock()
		if s.closed.Load() {
			s.mu.Unlock()
			_ = conn.Close()
			return ErrServerClosed
		}
		s.conns.Set(id, conn)
		s.wg.Add(1)
		s.mu.Unlock()
		go s.serveConn(id, conn)
	}
}

// ListenAndServe combines Listen and Serve.
func (s *Server) ListenAndServe() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Addr returns the socket path.
func (s *Server) Addr() string {
	return s.cfg.SocketPath
}

// ConnectionCount returns the number of open extension connections.
func (s *Server) ConnectionCount() int {
	return s.conns.Count()
}

// CloseConnections drops every open connection while keeping the listener.
func (s *Server) CloseConnections() {
	for item := range s.conns.IterBuffered() {
		_ = item.Val.Close()
	}
}

// Close stops the listener, drops all connections and waits for their goroutines.
func (s *Server) Close() error {
	s.mu.Lock()
	if !s.closed.CompareAndSwap(false, true) {
		s.mu.Unlock()
		return nil
	}
	ln := s.ln
	s.mu.Unlock()
	s.cancel()
	var err error
	if ln != nil {
		err = ln.Close()
	}
	s.CloseConnections()
	s.wg.Wait()
	if rerr := s.pool.ReleaseTimeout(time.Second); rerr != nil {
		s.logger.Warnf("release worker pool: %v", rerr)
	}
	return err
}

func (s *Server) serveConn(id string, conn *transport.Conn) {
	defer s.wg.Done()
	defer s.conns.Remove(id)
	defer func() { _ = conn.Close() }()

	if err := s.handshake(conn); err != nil {
		s.logger.Warnf("conn %s handshake failed: %v", id, err)
		return
	}
	for {
		f, err := conn.ReadFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, transport.ErrClosed) {
				s.logger.Warnf("conn %s read: %v", id, err)
			}
			return
		}
		s.logger.Tracef("conn %s recv %s id=%d len=%d", id, f.Command, f.ID, len(f.Body))
		req := f
		if err := s.pool.Submit(func() { s.handle(conn, req) }); err != nil {
			s.reply(conn, errorFrame(req.ID, &protocol.RemoteError{Code: protocol.CodeUnavailable, Message: err.Error()}))
		}
	}
}

func (s *Server) handshake(conn *transport.Conn) error {
	if s.cfg.HandshakeTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.HandshakeTimeout))
		defer func() { _ = conn.SetReadDeadline(time.Time{}) }()
	}
	f, err := conn.ReadFrame()
	if err != nil {
		return err
	}
	if f.Command != protocol.CmdHello {
		s.reply(conn, errorFrame(f.ID, &protocol.RemoteError{Code: protocol.CodeBadRequest, Message: "expected Hello"}))
		return fmt.Errorf("expected Hello, got %s", f.Command)
	}
	hello, err := protocol.DecodeHello(f.Body)
	if err != nil {
		s.reply(conn, errorFrame(f.ID, &protocol.RemoteError{Code: protocol.CodeBadRequest, Message: err.Error()}))
		return err
	}
	s.logger.Infof("client %s (%s) connected", hello.ClientName, hello.ClientID)
	return conn.WriteFrame(protocol.Frame{
		Command: protocol.CmdHelloAck,
		ID:      f.ID,
		Body:    protocol.EncodeHelloAck(protocol.HelloAck{ServerName: s.cfg.Name}),
	})
}

func (s *Server) handle(conn *transport.Conn, req protocol.Frame) {
	ctx := s.ctx
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}
	s.reply(conn, s.dispatch(ctx, req))
}

func (s *Server) dispatch(ctx context.Context, req protocol.Frame) protocol.Frame {
	switch req.Command {
	case protocol.CmdPing:
		return protocol.Frame{Command: protocol.CmdPong, ID: req.ID}
	case protocol.CmdGetWatchSet:
		repos, err := s.handler.WatchSet(ctx)
		if err != nil {
			return errorFrame(req.ID, toRemoteError(err))
		}
		return protocol.Frame{Command: protocol.CmdWatchSet, ID: req.ID, Body: protocol.EncodeWatchSet(repos)}
	case protocol.CmdGetShareLink:
		path, err := protocol.DecodeString(req.Body)
		if err != nil || path == "" {
			return errorFrame(req.ID, &protocol.RemoteError{Code: protocol.CodeBadRequest, Message: "missing path"})
		}
		link, err := s.handler.SharedLink(ctx, path)
		if err != nil {
			return errorFrame(req.ID, toRemoteError(err))
		}
		return protocol.Frame{
			Command: protocol.CmdShareLink,
			ID:      req.ID,
			Body:    protocol.EncodeShareLink(protocol.ShareLink{Path: path, Link: link}),
		}
	default:
		return errorFrame(req.ID, &protocol.RemoteError{
			Code:    protocol.CodeUnknownCommand,
			Message: "unknown command " + req.Command.String(),
		})
	}
}

func (s *Server) reply(conn *transport.Conn, f protocol.Frame) {
	limit := s.cfg.Transport.MaxFrameSize
	if limit == 0 {
		limit = protocol.DefaultMaxFrameSize
	}
	if uint64(len(f.Body)) > uint64(limit) {
		s.logger.Warnf("%s id=%d reply of %d bytes exceeds %d", f.Command, f.ID, len(f.Body), limit)
		f = errorFrame(f.ID, &protocol.RemoteError{
			Code:    protocol.CodeInternal,
			Message: fmt.Sprintf("reply too large: %d bytes, max %d", len(f.Body), limit),
		})
	}
	if err := conn.WriteFrame(f); err != nil && !errors.Is(err, transport.ErrClosed) {
		s.logger.Warnf("write %s id=%d: %v", f.Command, f.ID, err)
	}
}

func errorFrame(id uint32, e *protocol.RemoteError) protocol.Frame {
	return protocol.Frame{Command: protocol.CmdError, ID: id, Body: protocol.EncodeError(e)}
}

func toRemoteError(err error) *protocol.RemoteError {
	var re *protocol.RemoteError
	switch {
	case errors.As(err, &re):
		return re
	case errors.Is(err, ErrNotFound):
		return &protocol.RemoteError{Code: protocol.CodeNotFound, Message: err.Error()}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return &protocol.RemoteError{Code: protocol.CodeUnavailable, Message: err.Error()}
	default:
		return &protocol.RemoteError{Code: protocol.CodeInternal, Message: err.Error()}
	}
}
