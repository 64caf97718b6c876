// Package netutil wraps the raw, non-blocking socket calls the connector
// needs: opening an unconnected stream or datagram socket, kicking off a
// non-blocking connect, and polling the deferred connect error.
package netutil

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// ErrInProgress is returned by Connect when the connect is non-blocking
// and has not completed yet; callers watch the fd for write-readiness.
var ErrInProgress = unix.EINPROGRESS

// NewStreamSocket opens a non-blocking TCP socket in the given address
// family (unix.AF_INET or unix.AF_INET6).
func NewStreamSocket(family int) (int, error) {
	fd, err := unix.Socket(family, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("set nonblock: %w", err)
	}
	return fd, nil
}

// NewDatagramSocket opens a non-blocking, unbound UDP socket used for a
// single DNS PTR query/response cycle.
func NewDatagramSocket(family int) (int, error) {
	fd, err := unix.Socket(family, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("set nonblock: %w", err)
	}
	return fd, nil
}

// Connect issues a non-blocking connect. It returns ErrInProgress (not
// wrapped) when the connect is still pending: EINPROGRESS is not a
// failure, just a signal to watch the fd for write-readiness.
func Connect(fd int, addr net.Addr) error {
	sa, err := toSockaddr(addr)
	if err != nil {
		return err
	}
	if err := unix.Connect(fd, sa); err != nil {
		if err == unix.EINPROGRESS {
			return ErrInProgress
		}
		return err
	}
	return nil
}

// PendingError queries SO_ERROR on fd, the deferred result of a
// non-blocking connect once it becomes write-ready.
func PendingError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return fmt.Errorf("getsockopt(SO_ERROR): %w", err)
	}
	if errno != 0 {
		return unix.Errno(errno)
	}
	return nil
}

// Family returns the AF_* family for a net.Addr.
func Family(addr net.Addr) (int, error) {
	ip, err := hostIP(addr)
	if err != nil {
		return 0, err
	}
	if ip.To4() != nil {
		return unix.AF_INET, nil
	}
	return unix.AF_INET6, nil
}

func hostIP(addr net.Addr) (net.IP, error) {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return a.IP, nil
	case *net.UDPAddr:
		return a.IP, nil
	default:
		host, _, err := net.SplitHostPort(addr.String())
		if err != nil {
			return nil, fmt.Errorf("unsupported address %T: %w", addr, err)
		}
		ip := net.ParseIP(host)
		if ip == nil {
			return nil, fmt.Errorf("unparsable address %q", host)
		}
		return ip, nil
	}
}

func toSockaddr(addr net.Addr) (unix.Sockaddr, error) {
	ip, err := hostIP(addr)
	if err != nil {
		return nil, err
	}
	port, err := hostPort(addr)
	if err != nil {
		return nil, err
	}
	if v4 := ip.To4(); v4 != nil {
		sa := &unix.SockaddrInet4{Port: port}
		copy(sa.Addr[:], v4)
		return sa, nil
	}
	v6 := ip.To16()
	if v6 == nil {
		return nil, fmt.Errorf("address %v is neither IPv4 nor IPv6", ip)
	}
	sa := &unix.SockaddrInet6{Port: port}
	copy(sa.Addr[:], v6)
	return sa, nil
}

func hostPort(addr net.Addr) (int, error) {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return a.Port, nil
	case *net.UDPAddr:
		return a.Port, nil
	default:
		_, portStr, err := net.SplitHostPort(addr.String())
		if err != nil {
			return 0, fmt.Errorf("unsupported address %T: %w", addr, err)
		}
		var port int
		if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
			return 0, fmt.Errorf("unparsable port %q: %w", portStr, err)
		}
		return port, nil
	}
}

// SockaddrToUDPAddr converts a unix.Sockaddr obtained from Recvfrom into
// a *net.UDPAddr, used to validate the DNS response's source.
func SockaddrToUDPAddr(sa unix.Sockaddr) (*net.UDPAddr, error) {
	switch s := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.UDPAddr{IP: net.IP(s.Addr[:]), Port: s.Port}, nil
	case *unix.SockaddrInet6:
		return &net.UDPAddr{IP: net.IP(s.Addr[:]), Port: s.Port}, nil
	default:
		return nil, fmt.Errorf("unsupported sockaddr %T", sa)
	}
}
