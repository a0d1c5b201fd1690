package security

import (
	"net"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unixPair(t *testing.T) (*net.UnixConn, *net.UnixConn) {
	dir, err := os.MkdirTemp("", "fsp")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	addr := &net.UnixAddr{Net: "unix", Name: filepath.Join(dir, "s.sock")}
	ln, err := net.ListenUnix("unix", addr)
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	accepted := make(chan *net.UnixConn, 1)
	go func() {
		c, err := ln.AcceptUnix()
		if err != nil {
			accepted <- nil
			return
		}
		accepted <- c
	}()
	client, err := net.DialUnix("unix", nil, addr)
	require.NoError(t, err)
	server := <-accepted
	require.NotNil(t, server)
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	return client, server
}

func TestVerifySameUser(t *testing.T) {
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		t.Skip("peer credentials not supported")
	}
	client, server := unixPair(t)

	uid, err := PeerUID(server)
	require.NoError(t, err)
	assert.Equal(t, os.Getuid(), uid)

	assert.NoError(t, VerifySameUser(client))
	assert.NoError(t, VerifySameUser(server))

	assert.NoError(t, VerifyUser(client, os.Getuid()))
	assert.ErrorIs(t, VerifyUser(client, os.Getuid()+1), ErrUIDMismatch)
}
