package reactor

import (
	"time"

	"golang.org/x/sys/unix"

	"ocatsocks/internal/domain"
)

// dispatchDNSTimeout drives the UDP DNS retry timer for a request
// sitting in StateDNSSent.
func (r *Reactor) dispatchDNSTimeout(req *domain.Request, now time.Time) {
	if req.Idle(now) {
		return // still waiting for a response or the next retry tick
	}

	if req.Retry < r.cfg.Timings.DNSRetry {
		if err := r.sendDNSQuery(req, req.FD); err != nil {
			r.log.Error("DNS re-request failed", "error", err)
		}
		req.Retry++
		req.RestartTime = now.Add(r.cfg.Timings.DNSRetryTimeout)
		return
	}

	r.log.Info("DNS retries exhausted, falling back to deterministic hostname")
	r.closeFD(req)
	req.State = domain.StateNew
	req.RestartTime = time.Time{}
	// Biases the next NEW pass to skip the DNS branch (the retry <= 1
	// guard in dispatchNew) and fall through to the deterministic
	// hostname encoding instead. See DESIGN.md for the MaxRetry
	// interaction this creates.
	req.Retry = 1
}

// reset closes req's fd (if any) and returns it to StateNew with no
// backoff, keeping its retry counter — used when a request needs a
// fresh attempt right away rather than after TOR_SOCKS_CONN_TIMEOUT.
func (r *Reactor) reset(req *domain.Request) {
	r.closeFD(req)
	req.RestartTime = time.Time{}
	req.State = domain.StateNew
}

// reschedule closes req's fd and schedules the next attempt after the
// configured connect backoff, preserving the retry counter so a
// perm=false request's budget still converges on removal.
func (r *Reactor) reschedule(req *domain.Request, now time.Time) {
	r.log.Info("rescheduling SOCKS request")
	r.closeFD(req)
	req.State = domain.StateNew
	req.RestartTime = now.Add(r.cfg.Timings.ConnTimeout)
}

// teardown is reschedule's sibling for the "unknown state" defensive
// branch: same cleanup, but it doesn't imply a prior failed attempt.
func (r *Reactor) teardown(req *domain.Request, now time.Time) {
	r.reset(req)
}

func (r *Reactor) closeFD(req *domain.Request) {
	if req.FD == domain.NoFD {
		return
	}
	r.releasePermit(req)
	delete(r.fdReq, req.FD)
	r.loop.Unregister(req.FD)
	unix.Close(req.FD)
	req.FD = domain.NoFD
}

func (r *Reactor) releasePermit(req *domain.Request) {
	if held, ok := r.permits[req]; ok {
		if held && r.dialSem != nil {
			r.dialSem.Release(1)
		}
		delete(r.permits, req)
	}
}
