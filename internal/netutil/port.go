// Package netutil selects listen ports.
package netutil

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

// Defaults for the HTTP port scan.
const (
	DefaultStartPort = 8000
	DefaultAttempts  = 100
)

// ErrNoAvailablePort is returned when every port in the range is taken.
var ErrNoAvailablePort = errors.New("no available port")

// ListenAvailable binds the first free TCP port in [start, start+attempts)
// on host and returns the open listener.
func ListenAvailable(host string, start, attempts int) (net.Listener, error) {
	if attempts <= 0 {
		attempts = 1
	}
	for port := start; port < start+attempts; port++ {
		lis, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err == nil {
			return lis, nil
		}
	}
	return nil, fmt.Errorf("%w in range %d-%d", ErrNoAvailablePort, start, start+attempts-1)
}

// FindAvailablePort returns the first free TCP port in [start, start+attempts)
// on host. The port is released before returning, so a caller that needs it
// reserved should use ListenAvailable.
func FindAvailablePort(host string, start, attempts int) (int, error) {
	lis, err := ListenAvailable(host, start, attempts)
	if err != nil {
		return 0, err
	}
	defer lis.Close()
	return Port(lis.Addr()), nil
}

// Port extracts the port number from a TCP address.
func Port(addr net.Addr) int {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.Port
	}
	_, p, err := net.SplitHostPort(addr.String())
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(p)
	return n
}
