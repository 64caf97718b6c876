package reactor

import (
	"time"

	"golang.org/x/sys/unix"

	"ocatsocks/internal/codec/socks4a"
	"ocatsocks/internal/codec/socks5"
	"ocatsocks/internal/dnsquery"
	"ocatsocks/internal/domain"
	"ocatsocks/internal/netutil"
	"ocatsocks/internal/peer"
)

// dnsHostnameTTL bounds how long a PTR-resolved hostname is trusted
// before the next DNS lookup is allowed to refresh it.
const dnsHostnameTTL = time.Hour

// onConnectWritable handles a CONNECTING request becoming write-ready:
// the deferred result of the non-blocking connect. A clean connect
// starts the mode-specific handshake, or for DIRECT hands the socket
// straight to the peer layer.
func (r *Reactor) onConnectWritable(req *domain.Request, now time.Time) {
	r.releasePermit(req) // the dial slot is only held while connect() is outstanding

	if err := netutil.PendingError(req.FD); err != nil {
		r.log.Info("connect failed", "error", err)
		r.reschedule(req, now)
		return
	}

	connectDuration := now.Sub(req.ConnectTime)
	hostname, _ := r.tr.Resolve(req.Addr)

	switch r.cfg.Mode {
	case domain.ModeDirect:
		r.handOff(req, connectDuration)

	case domain.ModeSocks4a:
		frame := socks4a.EncodeRequest(uint16(r.cfg.DestPort), r.cfg.Username, hostname)
		if !r.sendFrame(req, frame, now) {
			return
		}
		req.State = domain.StateSocks4aReqSent
		r.watchReadable(req, now)

	case domain.ModeSocks5:
		if !r.sendFrame(req, socks5.Greeting, now) {
			return
		}
		req.State = domain.StateSocks5GreetSent
		r.watchReadable(req, now)

	default:
		r.fatal("unknown connector mode reached at runtime", "mode", r.cfg.Mode)
	}
}

// onReadable advances a request whose fd reported read-readiness:
// either a handshake reply frame or a DNS response datagram.
func (r *Reactor) onReadable(req *domain.Request, now time.Time) {
	switch req.State {
	case domain.StateSocks4aReqSent:
		r.readSocks4aReply(req, now)
	case domain.StateSocks5GreetSent:
		r.readSocks5GreetReply(req, now)
	case domain.StateSocks5ReqSent:
		r.readSocks5Reply(req, now)
	case domain.StateDNSSent:
		r.readDNSResponse(req, now)
	case domain.StateDelete:
		// already marked for cleanup, nothing to read for
	default:
		r.log.Error("read-ready request in unexpected state", "state", req.State)
		r.teardown(req, now)
	}
}

func (r *Reactor) readSocks4aReply(req *domain.Request, now time.Time) {
	buf := make([]byte, socks4a.ReplyLen)
	if !r.readFrame(req, buf, now) {
		return
	}
	if err := socks4a.DecodeReply(buf); err != nil {
		r.log.Info("socks4a request rejected", "error", err)
		r.reschedule(req, now)
		return
	}
	r.handOff(req, now.Sub(req.ConnectTime))
}

func (r *Reactor) readSocks5GreetReply(req *domain.Request, now time.Time) {
	buf := make([]byte, 2)
	if !r.readFrame(req, buf, now) {
		return
	}
	if err := socks5.DecodeGreetReply(buf); err != nil {
		r.log.Info("socks5 greeting rejected", "error", err)
		r.reschedule(req, now)
		return
	}

	hostname, _ := r.tr.Resolve(req.Addr)
	frame, err := socks5.EncodeRequest(uint16(r.cfg.DestPort), hostname)
	if err != nil {
		r.log.Error("cannot build socks5 request", "error", err)
		r.reschedule(req, now)
		return
	}
	if !r.sendFrame(req, frame, now) {
		return
	}
	req.State = domain.StateSocks5ReqSent
}

func (r *Reactor) readSocks5Reply(req *domain.Request, now time.Time) {
	// The bound-address/port suffix is variable length and unused; a
	// buffer sized for the largest possible reply (domain name atyp)
	// drains it in one read without needing to parse atyp first.
	buf := make([]byte, 262)
	n, ok := r.recv(req, buf, now)
	if !ok {
		return
	}
	if n < socks5.ReplyHeaderLen {
		r.log.Info("socks5 reply truncated", "bytes", n)
		r.reschedule(req, now)
		return
	}
	if err := socks5.DecodeReplyHeader(buf[:socks5.ReplyHeaderLen]); err != nil {
		r.log.Info("socks5 request rejected", "error", err)
		r.reschedule(req, now)
		return
	}
	r.handOff(req, now.Sub(req.ConnectTime))
}

// readDNSResponse consumes one UDP datagram on the DNS_SENT socket,
// validates its source against the nameserver the query was sent to,
// and on a usable PTR answer primes the hosts cache so the next NEW
// dispatch skips straight to a proxy connect.
func (r *Reactor) readDNSResponse(req *domain.Request, now time.Time) {
	buf := make([]byte, 512)
	n, from, err := unix.Recvfrom(req.FD, buf, 0)
	if err != nil {
		if err == unix.EAGAIN {
			return
		}
		r.log.Debug("dns recvfrom failed", "error", err)
		return
	}

	if src, err := netutil.SockaddrToUDPAddr(from); err == nil {
		if src.Port != req.NSAddr.Port || !src.IP.Equal(req.NSAddr.IP) {
			r.log.Debug("discarding dns response from unexpected source")
			r.closeFD(req)
			req.State = domain.StateDelete
			return
		}
	}

	hostname, ok, err := dnsquery.ParseResponse(buf[:n], req.ID)
	if err != nil {
		r.log.Debug("malformed dns response, ignoring", "error", err)
		r.closeFD(req)
		req.State = domain.StateDelete
		return
	}
	if !ok {
		r.log.Debug("dns response carried no usable answer")
		r.closeFD(req)
		req.State = domain.StateDelete
		return
	}

	if r.tr.Hosts != nil {
		r.tr.Hosts.Put(req.Addr, hostname, dnsHostnameTTL)
	}

	r.closeFD(req)
	req.State = domain.StateNew
	req.RestartTime = time.Time{}
	req.Retry = 1 // skip the DNS branch on the immediate retry, see dispatchDNSTimeout
}

// handOff unregisters req's fd from the event loop and transfers it to
// the peer layer, then marks req for cleanup. The fd itself is not
// closed: ownership has moved to the peer layer.
func (r *Reactor) handOff(req *domain.Request, connectDuration time.Duration) {
	r.loop.Unregister(req.FD)
	delete(r.fdReq, req.FD)
	peer.Activate(r.peers, r.log, req.Addr, req.FD, connectDuration)
	req.FD = domain.NoFD
	req.State = domain.StateDelete
}

func (r *Reactor) sendFrame(req *domain.Request, frame []byte, now time.Time) bool {
	n, err := unix.Write(req.FD, frame)
	if err != nil || n != len(frame) {
		r.log.Info("short or failed write during handshake", "error", err)
		r.reschedule(req, now)
		return false
	}
	return true
}

func (r *Reactor) readFrame(req *domain.Request, buf []byte, now time.Time) bool {
	n, ok := r.recv(req, buf, now)
	if !ok {
		return false
	}
	if n != len(buf) {
		r.log.Info("short read during handshake", "got", n, "want", len(buf))
		r.reschedule(req, now)
		return false
	}
	return true
}

func (r *Reactor) recv(req *domain.Request, buf []byte, now time.Time) (int, bool) {
	n, err := unix.Read(req.FD, buf)
	if err != nil {
		if err == unix.EAGAIN {
			return 0, false
		}
		r.log.Info("read failed during handshake", "error", err)
		r.reschedule(req, now)
		return 0, false
	}
	if n == 0 {
		r.log.Info("peer closed connection during handshake")
		r.reschedule(req, now)
		return 0, false
	}
	return n, true
}

func (r *Reactor) watchReadable(req *domain.Request, now time.Time) {
	if err := r.loop.Modify(req.FD, domain.EventRead); err != nil {
		r.log.Error("failed to switch socket to read-watch", "error", err)
		r.reschedule(req, now)
	}
}
