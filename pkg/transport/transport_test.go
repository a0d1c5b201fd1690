package transport

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	internalsecurity "github.com/srediag/fsplugin/internal/security"
	"github.com/srediag/fsplugin/pkg/protocol"
)

type TransportTestSuite struct {
	suite.Suite
	dir  string
	path string
}

func (s *TransportTestSuite) SetupTest() {
	// keep socket paths short, darwin limits them to 104 bytes
	dir, err := os.MkdirTemp("", "fsp")
	s.Require().NoError(err)
	s.dir = dir
	s.path = filepath.Join(dir, "t.sock")
}

func (s *TransportTestSuite) TearDownTest() {
	_ = os.RemoveAll(s.dir)
}

func (s *TransportTestSuite) pair(opts Options) (*Listener, *Conn, *Conn) {
	ln, err := Listen(s.path, opts)
	s.Require().NoError(err)

	accepted := make(chan *Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			accepted <- nil
			return
		}
		accepted <- c
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := Dial(ctx, s.path, opts)
	s.Require().NoError(err)
	server := <-accepted
	s.Require().NotNil(server)
	return ln, client, server
}

func (s *TransportTestSuite) TestFrameExchange() {
	ln, client, server := s.pair(Options{VerifyPeer: true, PeerUID: -1})
	defer func() { _ = ln.Close() }()
	defer func() { _ = client.Close() }()
	defer func() { _ = server.Close() }()

	s.Require().NoError(client.WriteFrame(protocol.Frame{Command: protocol.CmdGetShareLink, ID: 9, Body: protocol.EncodeString("/a")}))
	f, err := server.ReadFrame()
	s.Require().NoError(err)
	s.Equal(protocol.CmdGetShareLink, f.Command)
	s.Equal(uint32(9), f.ID)
	path, err := protocol.DecodeString(f.Body)
	s.Require().NoError(err)
	s.Equal("/a", path)

	s.Require().NoError(server.WriteFrame(protocol.Frame{Command: protocol.CmdPong, ID: 9}))
	f, err = client.ReadFrame()
	s.Require().NoError(err)
	s.Equal(protocol.CmdPong, f.Command)
	s.Nil(f.Body)

	// the raw endpoints carry the same bytes as the typed helpers
	data := make([]byte, protocol.HeaderSize+3)
	protocol.PutHeader(data, protocol.Header{Command: protocol.CmdShareLink, ID: 10, Length: 3})
	copy(data[protocol.HeaderSize:], "abc")
	s.Require().NoError(client.Send(data))
	got, err := server.Receive()
	s.Require().NoError(err)
	s.Equal(data, got)
}

func (s *TransportTestSuite) TestVerifyPeerRejectsOtherUser() {
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		s.T().Skip("peer credentials not supported")
	}
	ln, err := Listen(s.path, Options{})
	s.Require().NoError(err)
	defer func() { _ = ln.Close() }()
	go func() {
		if c, err := ln.Accept(); err == nil {
			_ = c.Close()
		}
	}()

	_, err = Dial(context.Background(), s.path, Options{VerifyPeer: true, PeerUID: os.Getuid() + 1})
	s.ErrorIs(err, internalsecurity.ErrUIDMismatch)
}

func (s *TransportTestSuite) TestSendValidatesFrame() {
	ln, client, server := s.pair(Options{})
	defer func() { _ = ln.Close() }()
	defer func() { _ = client.Close() }()
	defer func() { _ = server.Close() }()

	s.ErrorIs(client.Send([]byte("garbage-bytes")), protocol.ErrBadMagic)

	data := make([]byte, protocol.HeaderSize+2)
	protocol.PutHeader(data, protocol.Header{Command: protocol.CmdPing, Length: 5})
	s.ErrorIs(client.Send(data), protocol.ErrShortBody)
}

func (s *TransportTestSuite) TestFrameTooLarge() {
	ln, client, server := s.pair(Options{MaxFrameSize: 8})
	defer func() { _ = ln.Close() }()
	defer func() { _ = client.Close() }()
	defer func() { _ = server.Close() }()

	err := client.WriteFrame(protocol.Frame{Command: protocol.CmdShareLink, Body: make([]byte, 9)})
	s.ErrorIs(err, protocol.ErrFrameTooLarge)
}

func (s *TransportTestSuite) TestClose() {
	ln, client, server := s.pair(Options{})
	defer func() { _ = ln.Close() }()

	s.Require().NoError(client.Close())
	s.Require().NoError(client.Close())
	s.True(client.IsClosed())
	s.ErrorIs(client.WriteFrame(protocol.Frame{Command: protocol.CmdPing}), ErrClosed)
	_, err := client.Receive()
	s.ErrorIs(err, ErrClosed)

	// peer sees end of stream
	_, err = server.ReadFrame()
	s.Error(err)
	_ = server.Close()
}

func (s *TransportTestSuite) TestListenerOwnership() {
	ln, err := Listen(s.path, Options{})
	s.Require().NoError(err)

	_, err = Listen(s.path, Options{})
	s.ErrorIs(err, ErrAddressInUse)

	s.Require().NoError(ln.Close())
	s.False(pathExists(s.path))

	// a stale socket file does not block a new owner
	f, err := os.Create(s.path)
	s.Require().NoError(err)
	_ = f.Close()
	ln, err = Listen(s.path, Options{})
	s.Require().NoError(err)
	s.Equal(s.path, ln.Path())
	s.Require().NoError(ln.Close())
}

func (s *TransportTestSuite) TestDialNoListener() {
	_, err := Dial(context.Background(), s.path, Options{})
	s.Error(err)
}

func (s *TransportTestSuite) TestSafeRemoveUdsFile() {
	path := filepath.Join(s.dir, "remove_me")
	f, err := os.Create(path)
	s.Require().NoError(err)
	_ = f.Close()
	s.True(pathExists(path))
	s.True(safeRemoveUdsFile(path))
	s.False(safeRemoveUdsFile(path))
}

func TestTransportTestSuite(t *testing.T) {
	suite.Run(t, new(TransportTestSuite))
}
