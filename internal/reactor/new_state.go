package reactor

import (
	"context"
	"net"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/sys/unix"

	"ocatsocks/internal/dnsquery"
	"ocatsocks/internal/domain"
	"ocatsocks/internal/netutil"
)

// resolvConfPath is the system resolver config resolveNameserver falls
// back to when no explicit nameserver is configured. A var so tests can
// point it at a fixture file.
var resolvConfPath = "/etc/resolv.conf"

// dialCapDeferDelay bounds how soon a request deferred by the dial
// concurrency cap is retried, short enough to pick up a freed slot
// quickly without spinning every sweep.
const dialCapDeferDelay = time.Second

// sweepNew runs the per-sweep state dispatch across every queued
// request. Requests already waiting on a registered fd
// (CONNECTING, *_SENT) need no action here: their epoll registration
// already reflects the readiness they're waiting for, so this pass
// only drives the fd-less states (NEW) and the UDP DNS timer state
// (DNS_SENT) forward.
func (r *Reactor) sweepNew(now time.Time) {
	r.queue.Each(func(req *domain.Request) {
		switch req.State {
		case domain.StateNew:
			r.dispatchNew(req, now)
		case domain.StateDNSSent:
			r.dispatchDNSTimeout(req, now)
		case domain.StateDelete:
			// cleaned up after the sweep
		case domain.StateConnecting, domain.StateSocks4aReqSent, domain.StateSocks5GreetSent, domain.StateSocks5ReqSent:
			// already registered for the readiness it's waiting on
		default:
			r.log.Error("ignoring unknown state, resetting request", "state", req.State)
			r.teardown(req, now)
		}
	})
}

func (r *Reactor) dispatchNew(req *domain.Request, now time.Time) {
	if req.Idle(now) {
		return
	}

	req.Retry++
	if !req.Perm && req.Retry > r.cfg.Timings.MaxRetry {
		r.log.Info("temporary request failed too many times, removing", "retry", req.Retry-1)
		req.State = domain.StateDelete
		return
	}

	if r.cfg.DNSLookup && !r.tr.HasHostsEntry(req.Addr) && req.Retry <= 1 {
		if r.trySendDNSQuery(req, now) {
			return
		}
		// DNS socket couldn't be opened or the query couldn't be
		// sent: fall through to a direct/proxy connect attempt.
	}

	target, family, err := r.resolveTarget(req)
	if err != nil {
		r.log.Error("no destination address found, skipping sweep", "error", err)
		return
	}

	fd, err := netutil.NewStreamSocket(family)
	if err != nil {
		r.log.Error("cannot create socket for new SOCKS request", "error", err)
		return
	}

	if r.cfg.DialCap > 0 && !r.dialSem.TryAcquire(1) {
		unix.Close(fd)
		// Dial-cap contention isn't a failed connect attempt: undo the
		// retry increment above and back off briefly instead of
		// spending the request's retry budget on sweeps where its
		// socket was closed again before any connect was attempted.
		req.Retry--
		req.RestartTime = now.Add(dialCapDeferDelay)
		r.log.Debug("dial concurrency cap reached, deferring request")
		return
	}
	r.permits[req] = r.cfg.DialCap > 0

	req.ConnectTime = now
	err = netutil.Connect(fd, target)
	if err != nil && err != netutil.ErrInProgress {
		unix.Close(fd)
		r.releasePermit(req)
		r.reschedule(req, now)
		return
	}

	req.FD = fd
	req.State = domain.StateConnecting
	r.fdReq[fd] = req
	if regErr := r.loop.Register(fd, domain.EventWrite); regErr != nil {
		r.log.Error("failed to register connecting socket", "error", regErr)
		r.reschedule(req, now)
	}
}

// resolveTarget picks the socket address a NEW request should dial:
// the DIRECT-mode resolved hostname, or the configured proxy address.
func (r *Reactor) resolveTarget(req *domain.Request) (net.Addr, int, error) {
	if r.cfg.Mode == domain.ModeDirect {
		name, _ := r.tr.Resolve(req.Addr)
		addr, err := r.direct.Resolve(context.Background(), name, r.cfg.DestPort)
		if err != nil {
			return nil, 0, err
		}
		family, err := netutil.Family(addr)
		return addr, family, err
	}

	family, err := netutil.Family(r.cfg.SocksDst)
	return r.cfg.SocksDst, family, err
}

// trySendDNSQuery attempts the UDP PTR-query DNS path. It returns true
// if the request has moved to DNS_SENT; false means the caller should
// fall through to a direct/proxy connect attempt this sweep.
func (r *Reactor) trySendDNSQuery(req *domain.Request, now time.Time) bool {
	fd, err := netutil.NewDatagramSocket(unix.AF_INET6)
	if err != nil {
		r.log.Error("could not create UDP socket for DNS lookup", "error", err)
		return false
	}

	req.ID = uint16(r.rng.Uint32())
	if err := r.sendDNSQuery(req, fd); err != nil {
		r.log.Error("could not send DNS request", "error", err)
		unix.Close(fd)
		return false
	}

	req.FD = fd
	req.State = domain.StateDNSSent
	req.Retry = 0
	req.RestartTime = now.Add(r.cfg.Timings.DNSRetryTimeout)
	r.fdReq[fd] = req
	if err := r.loop.Register(fd, domain.EventRead); err != nil {
		r.log.Error("failed to register DNS socket", "error", err)
	}
	return true
}

func (r *Reactor) sendDNSQuery(req *domain.Request, fd int) error {
	ns, src, err := resolveNameserver(r.cfg)
	if err != nil {
		return err
	}
	req.NSAddr = *ns
	req.NSSrc = src

	packet, err := dnsquery.BuildPTRQuery(req.Addr, req.ID)
	if err != nil {
		return err
	}

	sa := &unix.SockaddrInet6{Port: ns.Port}
	copy(sa.Addr[:], ns.IP.To16())
	return unix.Sendto(fd, packet, 0, sa)
}

// resolveNameserver picks the nameserver endpoint a DNS PTR query is
// sent to, and a provenance label for it: the explicit override if
// configured, otherwise the first server listed in the host's
// /etc/resolv.conf, falling back to loopback if neither yields one. A
// var so tests can substitute a fixture resolver.
var resolveNameserver = func(cfg *domain.Config) (*net.UDPAddr, string, error) {
	if cfg.NSAddr != nil {
		return &net.UDPAddr{IP: cfg.NSAddr, Port: cfg.NSPort}, "configured", nil
	}

	if conf, err := dns.ClientConfigFromFile(resolvConfPath); err == nil {
		for _, server := range conf.Servers {
			if ip := net.ParseIP(server); ip != nil {
				return &net.UDPAddr{IP: ip, Port: cfg.NSPort}, "resolv.conf", nil
			}
		}
	}

	return &net.UDPAddr{IP: net.IPv6loopback, Port: cfg.NSPort}, "loopback-fallback", nil
}
