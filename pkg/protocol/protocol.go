// Package protocol implements the framed message protocol spoken between the
// Finder extension client and the sync engine.
//
// Every frame starts with a fixed 12 byte big-endian header:
//
//	magic(2) | version(1) | command(1) | id(4) | length(4)
//
// followed by length bytes of command specific body.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/valyala/bytebufferpool"
)

const (
	Magic      uint16 = 0x5346
	Version    uint8  = 1
	HeaderSize        = 12

	// DefaultMaxFrameSize bounds a single frame body.
	DefaultMaxFrameSize uint32 = 1 << 20
)

var (
	ErrBadMagic           = errors.New("protocol: bad magic")
	ErrUnsupportedVersion = errors.New("protocol: unsupported version")
	ErrFrameTooLarge      = errors.New("protocol: frame too large")
	ErrShortBody          = errors.New("protocol: short body")
	ErrTrailingData       = errors.New("protocol: trailing data after body")
)

// Command identifies the frame type.
type Command uint8

const (
	CmdHello        Command = 0x01
	CmdHelloAck     Command = 0x02
	CmdGetWatchSet  Command = 0x10
	CmdWatchSet     Command = 0x11
	CmdGetShareLink Command = 0x20
	CmdShareLink    Command = 0x21
	CmdPing         Command = 0x30
	CmdPong         Command = 0x31
	CmdError        Command = 0x7f
)

var commandNames = map[Command]string{
	CmdHello:        "Hello",
	CmdHelloAck:     "HelloAck",
	CmdGetWatchSet:  "GetWatchSet",
	CmdWatchSet:     "WatchSet",
	CmdGetShareLink: "GetShareLink",
	CmdShareLink:    "ShareLink",
	CmdPing:         "Ping",
	CmdPong:         "Pong",
	CmdError:        "Error",
}

func (c Command) String() string {
	if n, ok := commandNames[c]; ok {
		return n
	}
	return fmt.Sprintf("Command(0x%02x)", uint8(c))
}

// Reply returns the command answering c, or CmdError when c is not a request.
func (c Command) Reply() Command {
	switch c {
	case CmdHello:
		return CmdHelloAck
	case CmdGetWatchSet:
		return CmdWatchSet
	case CmdGetShareLink:
		return CmdShareLink
	case CmdPing:
		return CmdPong
	default:
		return CmdError
	}
}

// Header is the decoded fixed-size frame header.
type Header struct {
	Command Command
	ID      uint32
	Length  uint32
}

// Frame is one protocol message.
type Frame struct {
	Command Command
	ID      uint32
	Body    []byte
}

// PutHeader encodes h into dst, which must hold at least HeaderSize bytes.
func PutHeader(dst []byte, h Header) {
	binary.BigEndian.PutUint16(dst[0:2], Magic)
	dst[2] = Version
	dst[3] = uint8(h.Command)
	binary.BigEndian.PutUint32(dst[4:8], h.ID)
	binary.BigEndian.PutUint32(dst[8:12], h.Length)
}

// ParseHeader decodes and validates a header. A maxSize of 0 means DefaultMaxFrameSize.
func ParseHeader(src []byte, maxSize uint32) (Header, error) {
	if len(src) < HeaderSize {
		return Header{}, ErrShortBody
	}
	if maxSize == 0 {
		maxSize = DefaultMaxFrameSize
	}
	if m := binary.BigEndian.Uint16(src[0:2]); m != Magic {
		return Header{}, fmt.Errorf("%w: 0x%04x", ErrBadMagic, m)
	}
	if v := src[2]; v != Version {
		return Header{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}
	h := Header{
		Command: Command(src[3]),
		ID:      binary.BigEndian.Uint32(src[4:8]),
		Length:  binary.BigEndian.Uint32(src[8:12]),
	}
	if h.Length > maxSize {
		return Header{}, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, h.Length, maxSize)
	}
	return h, nil
}

// WriteFrame writes f to w with a single Write call.
func WriteFrame(w io.Writer, f Frame, maxSize uint32) error {
	if maxSize == 0 {
		maxSize = DefaultMaxFrameSize
	}
	if uint64(len(f.Body)) > uint64(maxSize) {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(f.Body), maxSize)
	}
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	var hdr [HeaderSize]byte
	PutHeader(hdr[:], Header{Command: f.Command, ID: f.ID, Length: uint32(len(f.Body))})
	_, _ = buf.Write(hdr[:])
	_, _ = buf.Write(f.Body)
	_, err := w.Write(buf.B)
	return err
}

// ReadFrame reads one frame from r.
func ReadFrame(r io.Reader, maxSize uint32) (Frame, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Frame{}, err
	}
	h, err := ParseHeader(hdr[:], maxSize)
	if err != nil {
		return Frame{}, err
	}
	f := Frame{Command: h.Command, ID: h.ID}
	if h.Length > 0 {
		f.Body = make([]byte, h.Length)
		if _, err := io.ReadFull(r, f.Body); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return Frame{}, err
		}
	}
	return f, nil
}
