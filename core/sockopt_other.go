//go:build !unix

package core

import "syscall"

// reusePortControl is a no-op where the reuse socket options are not
// available.
func reusePortControl(network, address string, c syscall.RawConn) error {
	return nil
}
