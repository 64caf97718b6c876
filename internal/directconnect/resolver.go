// Package directconnect implements the DIRECT-mode bypass resolver:
// turn a hostname into a concrete socket address using the host's own
// resolver, for deployments with no SOCKS proxy in the path at all.
package directconnect

import (
	"context"
	"fmt"
	"net"
)

// Resolver resolves hostnames to the first address a TCP-stream lookup
// returns, of any address family.
type Resolver struct {
	// Lookup defaults to net.DefaultResolver.LookupIPAddr; overridable
	// for tests.
	Lookup func(ctx context.Context, host string) ([]net.IPAddr, error)
}

func NewResolver() *Resolver {
	return &Resolver{Lookup: net.DefaultResolver.LookupIPAddr}
}

// Resolve returns a *net.TCPAddr for name:port built from the first
// address the resolver returns. It fails if resolution yields nothing.
func (r *Resolver) Resolve(ctx context.Context, name string, port int) (*net.TCPAddr, error) {
	lookup := r.Lookup
	if lookup == nil {
		lookup = net.DefaultResolver.LookupIPAddr
	}
	addrs, err := lookup(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", name, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("resolve %q: no addresses found", name)
	}
	return &net.TCPAddr{IP: addrs[0].IP, Port: port, Zone: addrs[0].Zone}, nil
}
