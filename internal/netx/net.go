// Package netx has address helpers for the control API listener.
package netx

import (
	"net"
	"strings"
)

// Host returns the host part of a host:port address, or addr itself
// trimmed when it has no port.
func Host(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return strings.TrimSpace(addr)
	}
	return host
}

// IsLoopback reports whether addr names only the local machine. An empty
// host, as in ":8765", listens on every interface and is not loopback.
func IsLoopback(addr string) bool {
	host := Host(addr)
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
