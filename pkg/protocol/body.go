package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/valyala/bytebufferpool"

	"github.com/srediag/fsplugin/api"
)

// Error codes carried by CmdError frames.
const (
	CodeUnknownCommand uint32 = 1
	CodeBadRequest     uint32 = 2
	CodeInternal       uint32 = 3
	CodeNotFound       uint32 = 4
	CodeUnavailable    uint32 = 5
)

// Hello opens a session.
type Hello struct {
	ClientID   string
	ClientName string
}

// HelloAck answers Hello.
type HelloAck struct {
	ServerName string
}

// ShareLink answers GetShareLink.
type ShareLink struct {
	Path string
	Link string
}

// RemoteError is an error reported by the peer in a CmdError frame.
type RemoteError struct {
	Code    uint32
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
}

type encoder struct {
	buf *bytebufferpool.ByteBuffer
}

func (e encoder) uint8(v uint8) {
	_ = e.buf.WriteByte(v)
}

func (e encoder) uint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, _ = e.buf.Write(b[:])
}

func (e encoder) string(s string) {
	e.uint32(uint32(len(s)))
	_, _ = e.buf.WriteString(s)
}

func encode(fn func(e encoder)) []byte {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	fn(encoder{buf: buf})
	out := make([]byte, buf.Len())
	copy(out, buf.B)
	return out
}

type decoder struct {
	b   []byte
	err error
}

func (d *decoder) need(n int) bool {
	if d.err != nil {
		return false
	}
	if len(d.b) < n {
		d.err = ErrShortBody
		return false
	}
	return true
}

func (d *decoder) uint8() uint8 {
	if !d.need(1) {
		return 0
	}
	v := d.b[0]
	d.b = d.b[1:]
	return v
}

func (d *decoder) uint32() uint32 {
	if !d.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(d.b)
	d.b = d.b[4:]
	return v
}

// end reports the first decode error, or ErrTrailingData when bytes are left over.
func (d *decoder) end() error {
	if d.err != nil {
		return d.err
	}
	if len(d.b) != 0 {
		return fmt.Errorf("%w: %d bytes", ErrTrailingData, len(d.b))
	}
	return nil
}

func (d *decoder) string() string {
	n := d.uint32()
	if !d.need(int(n)) {
		return ""
	}
	s := string(d.b[:n])
	d.b = d.b[n:]
	return s
}

// EncodeString encodes a single length-prefixed string body.
func EncodeString(s string) []byte {
	return encode(func(e encoder) { e.string(s) })
}

// DecodeString decodes a body produced by EncodeString.
func DecodeString(b []byte) (string, error) {
	d := decoder{b: b}
	s := d.string()
	if err := d.end(); err != nil {
		return "", err
	}
	return s, nil
}

func EncodeHello(h Hello) []byte {
	return encode(func(e encoder) {
		e.string(h.ClientID)
		e.string(h.ClientName)
	})
}

func DecodeHello(b []byte) (Hello, error) {
	d := decoder{b: b}
	h := Hello{ClientID: d.string(), ClientName: d.string()}
	if err := d.end(); err != nil {
		return Hello{}, err
	}
	return h, nil
}

func EncodeHelloAck(h HelloAck) []byte {
	return EncodeString(h.ServerName)
}

func DecodeHelloAck(b []byte) (HelloAck, error) {
	s, err := DecodeString(b)
	return HelloAck{ServerName: s}, err
}

// EncodeWatchSet encodes repos as a count followed by status and worktree per repo.
func EncodeWatchSet(repos []api.LocalRepo) []byte {
	return encode(func(e encoder) {
		e.uint32(uint32(len(repos)))
		for _, r := range repos {
			e.uint8(uint8(r.Status))
			e.string(r.Worktree)
		}
	})
}

// DecodeWatchSet decodes a WatchSet body. Unknown status values decode as
// api.SyncStateUnknown.
func DecodeWatchSet(b []byte) ([]api.LocalRepo, error) {
	d := decoder{b: b}
	n := d.uint32()
	if d.err != nil {
		return nil, d.err
	}
	// each entry takes at least 5 bytes
	if uint64(n)*5 > uint64(len(d.b)) {
		return nil, ErrShortBody
	}
	repos := make([]api.LocalRepo, 0, n)
	for i := uint32(0); i < n; i++ {
		status := api.SyncStateFromWire(d.uint8())
		worktree := d.string()
		if d.err != nil {
			return nil, d.err
		}
		repos = append(repos, api.LocalRepo{Worktree: worktree, Status: status})
	}
	if err := d.end(); err != nil {
		return nil, err
	}
	return repos, nil
}

func EncodeShareLink(l ShareLink) []byte {
	return encode(func(e encoder) {
		e.string(l.Path)
		e.string(l.Link)
	})
}

func DecodeShareLink(b []byte) (ShareLink, error) {
	d := decoder{b: b}
	l := ShareLink{Path: d.string(), Link: d.string()}
	if err := d.end(); err != nil {
		return ShareLink{}, err
	}
	return l, nil
}

func EncodeError(e *RemoteError) []byte {
	return encode(func(enc encoder) {
		enc.uint32(e.Code)
		enc.string(e.Message)
	})
}

func DecodeError(b []byte) (*RemoteError, error) {
	d := decoder{b: b}
	e := &RemoteError{Code: d.uint32(), Message: d.string()}
	if err := d.end(); err != nil {
		return nil, err
	}
	return e, nil
}
