//go:build unix

package transport

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func setBuffers(fd int, opts SocketOptions) error {
	if opts.SendBuffer > 0 {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, opts.SendBuffer); err != nil {
			return fmt.Errorf("set SO_SNDBUF: %w", err)
		}
	}
	if opts.RecvBuffer > 0 {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, opts.RecvBuffer); err != nil {
			return fmt.Errorf("set SO_RCVBUF: %w", err)
		}
	}
	return nil
}

func getBuffers(fd int) (int, int, error) {
	send, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF)
	if err != nil {
		return 0, 0, err
	}
	recv, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF)
	if err != nil {
		return 0, 0, err
	}
	return send, recv, nil
}
