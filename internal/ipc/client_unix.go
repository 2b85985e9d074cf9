//go:build !windows

package ipc

import (
	"errors"
	"net"
	"os"
	"syscall"
)

// dial establishes a Unix socket connection to the daemon.
func (c *IPCClient) dial() (net.Conn, error) {
	dialer := net.Dialer{
		Timeout: c.config.ConnectTimeout,
	}

	conn, err := dialer.Dial("unix", c.socketPath)
	if err != nil {
		// A missing socket or a socket nobody is accepting on both mean
		// the daemon is down.
		if os.IsNotExist(err) || errors.Is(err, syscall.ECONNREFUSED) {
			return nil, ErrDaemonNotRunning
		}
		return nil, err
	}

	return conn, nil
}
