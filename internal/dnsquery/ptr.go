// Package dnsquery builds and parses the PTR lookups the connector's
// UDP DNS path uses to ask a configured nameserver for a hidden-service
// hostname corresponding to a virtual address, using
// github.com/miekg/dns for wire encoding.
package dnsquery

import (
	"fmt"
	"net"

	"github.com/miekg/dns"
)

// BuildPTRQuery builds a wire-format PTR query for the reverse-DNS name
// of addr, tagged with transaction id.
func BuildPTRQuery(addr [16]byte, id uint16) ([]byte, error) {
	ip := net.IP(addr[:])
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(reverseName(ip)), dns.TypePTR)
	m.Id = id
	m.RecursionDesired = true

	packed, err := m.Pack()
	if err != nil {
		return nil, fmt.Errorf("pack ptr query: %w", err)
	}
	return packed, nil
}

func reverseName(ip net.IP) string {
	name, err := dns.ReverseAddr(ip.String())
	if err != nil {
		// ReverseAddr only fails on an unparsable IP, which an
		// in-memory 16-byte address never produces.
		return ip.String()
	}
	return name
}

// ParseResponse unpacks a DNS response, checks its transaction id
// against wantID, and extracts the first PTR answer's target. ok is
// false whenever the response doesn't yield a usable hostname; err is
// non-nil only for wire-format corruption, since DNS-level failures
// (NXDOMAIN, empty answer, id mismatch) are ordinary misses, not errors.
func ParseResponse(data []byte, wantID uint16) (hostname string, ok bool, err error) {
	m := new(dns.Msg)
	if err := m.Unpack(data); err != nil {
		return "", false, fmt.Errorf("unpack dns response: %w", err)
	}
	if m.Id != wantID {
		return "", false, nil
	}
	if m.Rcode != dns.RcodeSuccess {
		return "", false, nil
	}
	for _, rr := range m.Answer {
		if ptr, isPTR := rr.(*dns.PTR); isPTR {
			return trimTrailingDot(ptr.Ptr), true, nil
		}
	}
	return "", false, nil
}

func trimTrailingDot(s string) string {
	if len(s) > 0 && s[len(s)-1] == '.' {
		return s[:len(s)-1]
	}
	return s
}
