// Package security contains internal helpers for verifying the peer of a local socket.
package security

import (
	"errors"
	"fmt"
	"net"
	"os"
)

var (
	ErrNotSupported = errors.New("peer credentials not supported on this platform")
	ErrUIDMismatch  = errors.New("peer runs as a different user")
)

// VerifySameUser checks that the process on the other end of conn runs as
// the current user.
func VerifySameUser(conn *net.UnixConn) error {
	return VerifyUser(conn, os.Getuid())
}

// VerifyUser checks that the process on the other end of conn runs as uid.
func VerifyUser(conn *net.UnixConn, uid int) error {
	got, err := PeerUID(conn)
	if err != nil {
		return err
	}
	if got != uid {
		return fmt.Errorf("%w: peer uid %d, want %d", ErrUIDMismatch, got, uid)
	}
	return nil
}

// PeerUID returns the effective uid of the peer process of conn.
func PeerUID(conn *net.UnixConn) (int, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return -1, err
	}
	uid := -1
	var uerr error
	if err := raw.Control(func(fd uintptr) {
		uid, uerr = peerUID(int(fd))
	}); err != nil {
		return -1, err
	}
	return uid, uerr
}
