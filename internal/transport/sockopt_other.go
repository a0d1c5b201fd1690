//go:build !unix

package transport

import "errors"

var errUnsupported = errors.New("socket options not supported on this platform")

func setBuffers(int, SocketOptions) error {
	return errUnsupported
}

func getBuffers(int) (int, int, error) {
	return 0, 0, errUnsupported
}
