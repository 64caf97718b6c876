package nameresolve

import (
	"encoding/base32"
	"strings"

	"ocatsocks/internal/domain"
)

// onionEncoding is no-padding base32; Encode lower-cases its output to
// match the label alphabet real hidden-service names use.
var onionEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Encode deterministically derives a hostname label from the low-order
// NameBits bits of addr: a fixed slice of the address is base32-encoded,
// with no external state and no failure mode.
func Encode(net domain.NetDesc, addr [16]byte) string {
	nbytes := (net.NameBits + 7) / 8
	if nbytes <= 0 || nbytes > len(addr) {
		nbytes = len(addr)
	}
	relevant := addr[len(addr)-nbytes:]
	return strings.ToLower(onionEncoding.EncodeToString(relevant))
}

// Translator resolves a virtual address to a hostname: try the hosts
// cache first when enabled, otherwise (or on miss) fall back to the
// deterministic encoding plus the configured domain suffix.
type Translator struct {
	Hosts       *HostsStore
	HostsLookup bool
	Net         domain.NetDesc
	Domain      string
}

// Resolve returns the hostname for addr and whether it came from the
// hosts cache (found=true) or was synthesized (found=false).
func (t *Translator) Resolve(addr [16]byte) (name string, found bool) {
	if t.HostsLookup && t.Hosts != nil {
		t.Hosts.Check()
		if name, ok := t.Hosts.Get(addr); ok {
			return name, true
		}
	}
	return Encode(t.Net, addr) + t.Domain, false
}

// HasHostsEntry reports whether addr resolves via the hosts cache
// without synthesizing a name, used by the reactor's "is a name already
// available" DNS-path checks without paying for string concatenation on
// every poll.
func (t *Translator) HasHostsEntry(addr [16]byte) bool {
	if !t.HostsLookup || t.Hosts == nil {
		return false
	}
	t.Hosts.Check()
	_, ok := t.Hosts.Get(addr)
	return ok
}
