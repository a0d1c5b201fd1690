// Package transport contains internal helpers for tuning local sockets.
package transport

import (
	"net"
)

// SocketOptions are applied to a freshly dialed or accepted connection.
// Zero values leave the kernel defaults in place.
type SocketOptions struct {
	SendBuffer int
	RecvBuffer int
}

// Apply sets opts on conn.
func Apply(conn *net.UnixConn, opts SocketOptions) error {
	if opts.SendBuffer <= 0 && opts.RecvBuffer <= 0 {
		return nil
	}
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var serr error
	if err := raw.Control(func(fd uintptr) {
		serr = setBuffers(int(fd), opts)
	}); err != nil {
		return err
	}
	return serr
}

// BufferSizes returns the current send and receive buffer sizes of conn.
func BufferSizes(conn *net.UnixConn) (send, recv int, err error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, 0, err
	}
	var gerr error
	if err := raw.Control(func(fd uintptr) {
		send, recv, gerr = getBuffers(int(fd))
	}); err != nil {
		return 0, 0, err
	}
	return send, recv, gerr
}
