// Package peer provides the connector's view of the peer layer it hands
// established sockets off to. The peer layer's data path, wire
// protocol, and internal locking belong to that layer; this package
// implements only the two-level table-lock-then-peer-lock discipline the
// connector follows when registering a new peer and sending its first
// keepalive.
package peer

import (
	"log/slog"
	"sync"
	"time"

	"ocatsocks/internal/domain"
)

type entry struct {
	mu              sync.Mutex
	fd              int
	connectDuration time.Duration
}

func (e *entry) SendKeepalive() {
	// The keepalive's wire format belongs to the peer layer's own
	// protocol, out of scope here; this records that one was due.
}

// Registry implements domain.PeerTable with a table-wide lock
// protecting the map itself and a per-entry lock protecting each
// peer's own state.
type Registry struct {
	log     *slog.Logger
	tableMu sync.Mutex
	entries map[[16]byte]*entry
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{log: log, entries: make(map[[16]byte]*entry)}
}

func (r *Registry) Insert(addr [16]byte, fd int, connectDuration time.Duration) {
	r.tableMu.Lock()
	defer r.tableMu.Unlock()
	r.entries[addr] = &entry{fd: fd, connectDuration: connectDuration}
}

func (r *Registry) Lookup(addr [16]byte) (domain.Peer, func(), bool) {
	r.tableMu.Lock()
	e, ok := r.entries[addr]
	r.tableMu.Unlock()
	if !ok {
		return nil, nil, false
	}
	e.mu.Lock()
	return e, e.mu.Unlock, true
}

// Activate performs the full hand-off sequence: register the socket,
// then look the peer back up under the two-level lock and send its
// first keepalive. The peer not being found immediately after insertion
// is a logic error, reported rather than propagated, since hand-off has
// already transferred the socket.
func Activate(table domain.PeerTable, log *slog.Logger, addr [16]byte, fd int, connectDuration time.Duration) {
	table.Insert(addr, fd, connectDuration)

	p, release, found := table.Lookup(addr)
	if !found {
		log.Error("newly inserted peer not found", "fd", fd)
		return
	}
	defer release()
	p.SendKeepalive()
}
