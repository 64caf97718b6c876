// Package queue implements the de-duplicated pending-request collection:
// requests are keyed by address in a map for O(1) lookup and
// de-duplication, while a parallel slice preserves insertion order for
// stable, repeatable sweep traversal.
package queue

import (
	"fmt"
	"sort"
	"strings"

	"ocatsocks/internal/domain"
	"ocatsocks/internal/nameresolve"
)

// Queue is the connector's single, owned collection of pending
// requests. It is not safe for concurrent use: only the connector
// goroutine touches it; other goroutines interact with it exclusively
// through the control pipe.
type Queue struct {
	byAddr map[[16]byte]*domain.Request
	order  []*domain.Request
}

func New() *Queue {
	return &Queue{byAddr: make(map[[16]byte]*domain.Request)}
}

// Enqueue adds req unless a request for the same address already
// exists, in which case the new one is discarded so re-requesting an
// address already in flight is idempotent. Returns true if req was
// actually added.
func (q *Queue) Enqueue(req *domain.Request) bool {
	if _, exists := q.byAddr[req.Addr]; exists {
		return false
	}
	q.byAddr[req.Addr] = req
	q.order = append(q.order, req)
	return true
}

// Find returns the request for addr, if any.
func (q *Queue) Find(addr [16]byte) (*domain.Request, bool) {
	req, ok := q.byAddr[addr]
	return req, ok
}

// Remove unlinks req from the queue.
func (q *Queue) Remove(req *domain.Request) {
	if _, ok := q.byAddr[req.Addr]; !ok {
		return
	}
	delete(q.byAddr, req.Addr)
	for i, r := range q.order {
		if r == req {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
}

// Len reports the number of queued requests.
func (q *Queue) Len() int {
	return len(q.order)
}

// Each iterates requests in insertion order. The callback must not
// mutate the queue itself (add/remove); state mutation on the request
// it's given is fine and expected.
func (q *Queue) Each(fn func(*domain.Request)) {
	for _, r := range q.order {
		fn(r)
	}
}

// DeleteMarked removes every request in domain.StateDelete, the
// cleanup pass run at the end of every sweep.
func (q *Queue) DeleteMarked() {
	remaining := q.order[:0:0]
	for _, r := range q.order {
		if r.State == domain.StateDelete {
			delete(q.byAddr, r.Addr)
			continue
		}
		remaining = append(remaining, r)
	}
	q.order = remaining
}

// Dump writes one line per request to w, then a single 0x00 byte as an
// end-of-listing marker.
func (q *Queue) Dump(w func([]byte) (int, error), tr *nameresolve.Translator, domainSuffix string) error {
	lines := make([]string, 0, len(q.order))
	for i, r := range q.order {
		name := ""
		if tr != nil {
			name, _ = tr.Resolve(r.Addr)
		}
		addrStr := ipString(r.Addr)
		permLabel := "TEMPORARY"
		permNum := 0
		if r.Perm {
			permLabel = "PERMANENT"
			permNum = 1
		}
		lines = append(lines, fmt.Sprintf(
			"%d: %39s, %s, state = %d, %s(%d), retry = %d, connect_time = %d, restart_time = %d\n",
			i, addrStr, name, int(r.State), permLabel, permNum, r.Retry,
			r.ConnectTime.Unix(), r.RestartTime.Unix(),
		))
	}
	if _, err := w([]byte(strings.Join(lines, ""))); err != nil {
		return err
	}
	_, err := w([]byte{0})
	return err
}

func ipString(addr [16]byte) string {
	parts := make([]string, 8)
	for i := 0; i < 8; i++ {
		parts[i] = fmt.Sprintf("%x", uint16(addr[2*i])<<8|uint16(addr[2*i+1]))
	}
	return strings.Join(parts, ":")
}

// Addrs returns a stable-sorted snapshot of queued addresses, useful
// for tests and diagnostics.
func (q *Queue) Addrs() [][16]byte {
	out := make([][16]byte, 0, len(q.order))
	for _, r := range q.order {
		out = append(out, r.Addr)
	}
	sort.Slice(out, func(i, j int) bool {
		return ipString(out[i]) < ipString(out[j])
	})
	return out
}
