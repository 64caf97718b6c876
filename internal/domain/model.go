// Package domain holds the core types shared by every part of the SOCKS
// connector: the request a sweep drives through its states, the
// configuration knobs that shape that drive, and the timing constants
// that govern backoff and retry.
package domain

import (
	"net"
	"time"
)

// State is a connection request's position in the handshake state machine.
type State int

const (
	StateNew State = iota
	StateDNSSent
	StateConnecting
	StateSocks4aReqSent
	StateSocks5GreetSent
	StateSocks5ReqSent
	StateReady
	StateDelete
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateDNSSent:
		return "DNS_SENT"
	case StateConnecting:
		return "CONNECTING"
	case StateSocks4aReqSent:
		return "S4A_REQ_SENT"
	case StateSocks5GreetSent:
		return "S5_GREET_SENT"
	case StateSocks5ReqSent:
		return "S5_REQ_SENT"
	case StateReady:
		return "READY"
	case StateDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// Mode selects how the connector reaches the destination.
type Mode int

const (
	ModeSocks4a Mode = iota
	ModeSocks5
	ModeDirect
)

func (m Mode) String() string {
	switch m {
	case ModeSocks4a:
		return "SOCKS4A"
	case ModeSocks5:
		return "SOCKS5"
	case ModeDirect:
		return "DIRECT"
	default:
		return "UNKNOWN"
	}
}

// NoFD is the sentinel value for a request with no associated socket.
const NoFD = -1

// Request is the unit of work the connector queue tracks. Only the
// connector goroutine mutates one of these once it is enqueued.
type Request struct {
	Addr [16]byte // virtual IPv6 address, the queue's identity key
	Perm bool     // true: retried forever. false: bounded by MaxRetry.

	State State
	FD    int // currently associated socket, or NoFD

	Retry int

	ConnectTime time.Time
	RestartTime time.Time

	// DNS bookkeeping, valid only while State == StateDNSSent.
	ID     uint16
	NSAddr net.UDPAddr
	NSSrc  string
}

// NewRequest allocates a freshly queued request, fd-less, in StateNew.
func NewRequest(addr [16]byte, perm bool) *Request {
	return &Request{
		Addr:  addr,
		Perm:  perm,
		State: StateNew,
		FD:    NoFD,
	}
}

// Idle reports whether req is gated by backoff and should be skipped this
// sweep.
func (r *Request) Idle(now time.Time) bool {
	return now.Before(r.RestartTime)
}

// Timings bundles the backoff and retry constants governing connect
// attempts and DNS retries.
type Timings struct {
	ConnTimeout     time.Duration // backoff between connect attempts
	DNSRetryTimeout time.Duration // backoff between DNS retries / sweep bound
	MaxRetry        int           // retry budget for perm=false requests
	DNSRetry        int           // retry budget for the UDP DNS path
}

// DefaultTimings returns the connector's out-of-the-box timing values.
func DefaultTimings() Timings {
	return Timings{
		ConnTimeout:     30 * time.Second,
		DNSRetryTimeout: 5 * time.Second,
		MaxRetry:        3,
		DNSRetry:        3,
	}
}

// NetDesc is the active network descriptor used to derive a deterministic
// hostname from a virtual address.
type NetDesc struct {
	// NameBits is the number of low-order address bits folded into the
	// base32-encoded hostname label (80 for OnionCat's Tor encoding).
	NameBits int
}

// Config holds every option the connector's command-line and runtime
// configuration expose.
type Config struct {
	SocksDst    net.Addr // proxy address; nil disables the connector
	Mode        Mode
	DestPort    int
	Username    string
	Domain      string
	HostsLookup bool
	DNSLookup   bool
	NSAddr      net.IP // explicit nameserver override; nil autodetects from /etc/resolv.conf
	NSPort      int
	RandomAddr  bool

	Net     NetDesc
	Timings Timings
	DialCap int64 // max concurrently outstanding TCP dials, 0 = unbounded
}

// Enabled reports whether the connector is active. A nil proxy address
// disables it and makes enqueue a no-op.
func (c *Config) Enabled() bool {
	return c.SocksDst != nil
}
