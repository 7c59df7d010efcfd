//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package console

import "net"

// SO_REUSEPORT is not available here; the flag is ignored.
func listenConfig(bool) net.ListenConfig {
	return net.ListenConfig{}
}
