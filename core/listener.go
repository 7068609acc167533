package core

import (
	"context"
	"net"

	"golang.org/x/net/netutil"
)

// Listen binds addr with SO_REUSEADDR and, where the platform supports
// it, SO_REUSEPORT, so several processes can share one port. The
// options are fixed policy, not configuration.
func Listen(addr string) (net.Listener, error) {
	lc := net.ListenConfig{Control: reusePortControl}
	return lc.Listen(context.Background(), "tcp", addr)
}

// limitListener caps concurrent accepted connections, with per-socket
// tuning applied before the cap wrapper sees the connection.
func limitListener(ln net.Listener, maxConnections int) net.Listener {
	tuned := tuningListener{Listener: ln}
	if maxConnections <= 0 {
		return tuned
	}
	return netutil.LimitListener(tuned, maxConnections)
}

// tuningListener disables Nagle's algorithm and enables TCP keepalive
// probes on every accepted socket.
type tuningListener struct {
	net.Listener
}

func (l tuningListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
		tc.SetKeepAlive(true)
	}
	return conn, nil
}
