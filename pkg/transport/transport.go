// Package transport provides the unix-domain socket channel between the Finder
// extension and the sync engine.
//
// A Conn carries protocol frames in both directions. Send and Receive move
// whole encoded frames; WriteFrame and ReadFrame are typed helpers on top.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/srediag/fsplugin/adapter"
	"github.com/srediag/fsplugin/api"
	internalsecurity "github.com/srediag/fsplugin/internal/security"
	internaltransport "github.com/srediag/fsplugin/internal/transport"
	"github.com/srediag/fsplugin/pkg/protocol"
)

var (
	ErrClosed       = errors.New("transport: connection closed")
	ErrAddressInUse = errors.New("transport: socket is owned by another process")
)

// Transport is a closable api.Transport.
type Transport interface {
	api.Transport
	Close() error
}

// Options configure dialed and accepted connections.
type Options struct {
	// MaxFrameSize bounds frame bodies, 0 means protocol.DefaultMaxFrameSize.
	MaxFrameSize uint32
	// WriteTimeout bounds a single write, 0 disables it.
	WriteTimeout time.Duration
	// Socket sets kernel buffer sizes.
	Socket internaltransport.SocketOptions
	// VerifyPeer rejects peers not running as PeerUID.
	VerifyPeer bool
	// PeerUID is the uid required by VerifyPeer, a negative value means the
	// current user.
	PeerUID int
	// OTel records transferred bytes, may be nil.
	OTel *adapter.OTel
}

// Conn is a framed connection over a unix socket.
type Conn struct {
	conn   *net.UnixConn
	opts   Options
	wmu    sync.Mutex
	rmu    sync.Mutex
	closed atomic.Bool
}

var _ Transport = (*Conn)(nil)

func newConn(c *net.UnixConn, opts Options) (*Conn, error) {
	if err := internaltransport.Apply(c, opts.Socket); err != nil {
		return nil, fmt.Errorf("socket options: %w", err)
	}
	if opts.VerifyPeer {
		uid := opts.PeerUID
		if uid < 0 {
			uid = os.Getuid()
		}
		if err := internalsecurity.VerifyUser(c, uid); err != nil {
			return nil, err
		}
	}
	return &Conn{conn: c, opts: opts}, nil
}

// Dial connects to the socket at path.
func Dial(ctx context.Context, path string, opts Options) (*Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, err
	}
	uc, ok := c.(*net.UnixConn)
	if !ok {
		_ = c.Close()
		return nil, fmt.Errorf("dial %s: not a unix connection", path)
	}
	conn, err := newConn(uc, opts)
	if err != nil {
		_ = uc.Close()
		return nil, err
	}
	return conn, nil
}

// Send writes one encoded frame. data must start with a valid header whose
// length matches the rest of data.
func (c *Conn) Send(data []byte) error {
	h, err := protocol.ParseHeader(data, c.opts.MaxFrameSize)
	if err != nil {
		return err
	}
	if int(h.Length) != len(data)-protocol.HeaderSize {
		return fmt.Errorf("%w: header says %d, have %d", protocol.ErrShortBody, h.Length, len(data)-protocol.HeaderSize)
	}
	return c.WriteFrame(protocol.Frame{Command: h.Command, ID: h.ID, Body: data[protocol.HeaderSize:]})
}

// Receive reads one encoded frame, header included.
func (c *Conn) Receive() ([]byte, error) {
	f, err := c.ReadFrame()
	if err != nil {
		return nil, err
	}
	data := make([]byte, protocol.HeaderSize+len(f.Body))
	protocol.PutHeader(data, protocol.Header{Command: f.Command, ID: f.ID, Length: uint32(len(f.Body))})
	copy(data[protocol.HeaderSize:], f.Body)
	return data, nil
}

// WriteFrame encodes and sends f with a single write.
func (c *Conn) WriteFrame(f protocol.Frame) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.opts.WriteTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	}
	if err := protocol.WriteFrame(c.conn, f, c.opts.MaxFrameSize); err != nil {
		return c.wrap(err)
	}
	c.opts.OTel.RecordSent(context.Background(), protocol.HeaderSize+len(f.Body))
	return nil
}

// ReadFrame receives and decodes one frame.
func (c *Conn) ReadFrame() (protocol.Frame, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()
	f, err := protocol.ReadFrame(c.conn, c.opts.MaxFrameSize)
	if err != nil {
		return protocol.Frame{}, c.wrap(err)
	}
	c.opts.OTel.RecordReceived(context.Background(), protocol.HeaderSize+len(f.Body))
	return f, nil
}

// SetReadDeadline sets the deadline for Receive.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// Close closes the socket. It is safe to call more than once.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.conn.Close()
}

func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

func (c *Conn) wrap(err error) error {
	if err == nil {
		return nil
	}
	if c.closed.Load() || errors.Is(err, net.ErrClosed) {
		return ErrClosed
	}
	return err
}
