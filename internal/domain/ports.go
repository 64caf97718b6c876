package domain

import "time"

// EventType is a readiness bitmask so the reactor's dispatch code
// never speaks epoll directly.
type EventType uint32

const (
	EventRead  EventType = 0x1
	EventWrite EventType = 0x4 // EPOLLOUT
)

// EventHandler receives readiness notifications from an EventLoop.
type EventHandler interface {
	HandleEvent(fd int, event EventType) error
}

// EventLoop is the reactor's readiness multiplexer. Register/Modify/
// Unregister operate on raw file descriptors; Wait blocks for at most
// timeout (0 means block forever) and reports ready events to handler.
type EventLoop interface {
	Register(fd int, events EventType) error
	Modify(fd int, events EventType) error
	Unregister(fd int) error
	Wait(timeout time.Duration, handler EventHandler) error
	Close() error
}

// PeerTable is the external peer layer the connector hands sockets off
// to on successful handshake. The connector only ever calls Insert then
// Lookup+SendKeepalive+release; the table's own two-level locking
// discipline is its business.
type PeerTable interface {
	// Insert registers fd as the peer layer's socket for addr, with the
	// measured connect duration.
	Insert(addr [16]byte, fd int, connectDuration time.Duration)
	// Lookup finds the peer for addr and returns a handle locked for the
	// caller's exclusive use; release must be called exactly once.
	Lookup(addr [16]byte) (peer Peer, release func(), found bool)
}

// Peer is the minimal peer handle the connector needs after hand-off.
type Peer interface {
	SendKeepalive()
}

// HostsTranslator resolves a virtual address to a hidden-service hostname
// via a hosts-file style lookup.
type HostsTranslator interface {
	// Lookup refreshes the underlying cache if stale, then looks up addr.
	Lookup(addr [16]byte) (name string, found bool)
}
