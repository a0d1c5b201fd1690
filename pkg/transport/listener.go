package transport

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// Listener accepts framed connections on a unix socket. Only one Listener
// may own a socket path at a time; ownership is held with a flock on
// "<path>.lock".
type Listener struct {
	path string
	ln   *net.UnixListener
	lock *flock.Flock
	opts Options
	once sync.Once
}

// Listen takes ownership of path and starts listening on it. A stale socket
// left behind by a crashed owner is removed.
func Listen(path string, opts Options) (*Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	lock := flock.New(path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", lock.Path(), err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAddressInUse, path)
	}
	safeRemoveUdsFile(path)
	ln, err := net.ListenUnix("unix", &net.UnixAddr{Net: "unix", Name: path})
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	// Close removes the socket itself while the lock is still held.
	ln.SetUnlinkOnClose(false)
	return &Listener{path: path, ln: ln, lock: lock, opts: opts}, nil
}

// Accept waits for the next connection.
func (l *Listener) Accept() (*Conn, error) {
	for {
		c, err := l.ln.AcceptUnix()
		if err != nil {
			return nil, err
		}
		conn, err := newConn(c, l.opts)
		if err != nil {
			// a rejected peer must not stop the listener
			_ = c.Close()
			continue
		}
		return conn, nil
	}
}

// Path returns the socket path.
func (l *Listener) Path() string {
	return l.path
}

// Close stops listening, removes the socket and releases ownership.
func (l *Listener) Close() error {
	var err error
	l.once.Do(func() {
		err = l.ln.Close()
		safeRemoveUdsFile(l.path)
		if uerr := l.lock.Unlock(); uerr != nil && err == nil {
			err = uerr
		}
	})
	return err
}
