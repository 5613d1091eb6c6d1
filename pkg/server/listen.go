package server

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
)

// listen binds network/address synchronously. For unix sockets a stale
// socket file left by a previous run is removed first; any other kind of
// file at the path is left alone and reported.
func listen(network, address string, mode os.FileMode) (net.Listener, error) {
	if network != "unix" {
		return net.Listen(network, address)
	}

	if address == "" {
		return nil, errors.New("empty socket path provided")
	}

	info, err := os.Lstat(address)
	switch {
	case err == nil:
		if info.Mode()&os.ModeSocket == 0 {
			return nil, fmt.Errorf("cannot reuse %s: path exists and is not a unix socket", address)
		}
		if err := os.Remove(address); err != nil {
			return nil, fmt.Errorf("cannot remove stale unix socket: %w", err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return nil, err
	}

	ln, err := net.Listen("unix", address)
	if err != nil {
		return nil, err
	}
	// Close does not unlink the path; Stop removes it.
	if ul, ok := ln.(*net.UnixListener); ok {
		ul.SetUnlinkOnClose(false)
	}

	if err := os.Chmod(address, mode); err != nil {
		_ = ln.Close()
		_ = os.Remove(address)
		return nil, fmt.Errorf("cannot set socket permissions: %w", err)
	}
	return ln, nil
}
