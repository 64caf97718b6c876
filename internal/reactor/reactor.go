// Package reactor implements the connector engine: a single cooperative
// task that drives every queued request through its handshake state
// machine using non-blocking sockets and a readiness multiplexer, the
// same epoll-driven, dispatch-by-fd shape a SOCKS server session loop
// uses, turned around into a SOCKS client connect loop (DNS, connect,
// handshake, hand-off).
package reactor

import (
	"log/slog"
	"math/rand"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sys/unix"

	"ocatsocks/internal/controlpipe"
	"ocatsocks/internal/directconnect"
	"ocatsocks/internal/domain"
	"ocatsocks/internal/nameresolve"
	"ocatsocks/internal/queue"
)

// FatalFunc is called when the reactor reaches an unknown connection
// mode at runtime, a configuration error that has no sane recovery.
// It does not return: production wires it to log.Fatal-style
// termination. Tests may override the field directly with a
// non-terminating stub to observe that the fatal path was reached.
type FatalFunc func(msg string, args ...any)

// Reactor is the connector engine. It owns the request queue and every
// socket any queued request currently holds; nothing else may touch
// either.
type Reactor struct {
	log    *slog.Logger
	loop   domain.EventLoop
	pipe   *controlpipe.Pipe
	queue  *queue.Queue
	cfg    *domain.Config
	tr     *nameresolve.Translator
	peers  domain.PeerTable
	direct *directconnect.Resolver
	fatal  FatalFunc

	dialSem *semaphore.Weighted
	permits map[*domain.Request]bool

	fdReq map[int]*domain.Request

	terminated atomic.Bool
	rng        *rand.Rand
}

// New wires up a Reactor from its collaborators: the event loop, the
// producer-facing control pipe, the active configuration, the
// address/hostname translator, the peer table to hand successful
// connections off to, and the DIRECT-mode resolver.
func New(log *slog.Logger, loop domain.EventLoop, pipe *controlpipe.Pipe, cfg *domain.Config, tr *nameresolve.Translator, peers domain.PeerTable, direct *directconnect.Resolver) *Reactor {
	var sem *semaphore.Weighted
	if cfg.DialCap > 0 {
		sem = semaphore.NewWeighted(cfg.DialCap)
	}
	return &Reactor{
		log:     log,
		loop:    loop,
		pipe:    pipe,
		queue:   queue.New(),
		cfg:     cfg,
		tr:      tr,
		peers:   peers,
		direct:  direct,
		fatal: func(msg string, args ...any) {
			log.Error(msg, args...)
			os.Exit(1)
		},
		dialSem: sem,
		permits: make(map[*domain.Request]bool),
		fdReq:   make(map[int]*domain.Request),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Stop requests cooperative termination; it is polled at the top of
// every sweep.
func (r *Reactor) Stop() {
	r.terminated.Store(true)
}

// Enqueue exposes direct, in-process enqueueing for callers that are
// the reactor's own goroutine's trusted collaborators (e.g. the
// command's startup -enqueue list, queued before Run starts).
// Everything else must go through the control pipe.
func (r *Reactor) Enqueue(addr [16]byte, perm bool) {
	if !r.cfg.Enabled() {
		return
	}
	r.queue.Enqueue(domain.NewRequest(addr, perm))
}

// Run executes sweeps until Stop is called or the event loop reports a
// fatal error. Each sweep: process NEW/backoff-timed requests, block on
// readiness bounded by the DNS retry timeout, then clean up any request
// left in StateDelete.
func (r *Reactor) Run() error {
	if err := r.loop.Register(r.pipe.ReadFD(), domain.EventRead); err != nil {
		return err
	}

	for {
		if r.terminated.Load() {
			return nil
		}

		r.sweepNew(time.Now())

		if err := r.loop.Wait(r.cfg.Timings.DNSRetryTimeout, r); err != nil {
			r.log.Error("event loop wait failed, restarting sweep", "error", err)
			continue
		}

		r.queue.DeleteMarked()
	}
}

// HandleEvent implements domain.EventHandler; it is the entry point
// epoll calls back into for every ready fd.
func (r *Reactor) HandleEvent(fd int, ev domain.EventType) error {
	if fd == r.pipe.ReadFD() {
		r.handleControlMessage()
		return nil
	}

	req, ok := r.fdReq[fd]
	if !ok {
		return nil // stale event for an fd we already tore down
	}

	now := time.Now()
	if ev&domain.EventWrite != 0 && req.State == domain.StateConnecting {
		r.onConnectWritable(req, now)
	}
	// A failed connect is rescheduled above and no longer owns fd; only a
	// request still holding fd has anything to read.
	if ev&domain.EventRead != 0 && req.State != domain.StateDelete && req.FD == fd {
		r.onReadable(req, now)
	}
	return nil
}

func (r *Reactor) handleControlMessage() {
	msg, err := r.pipe.ReadMessage()
	if err != nil {
		r.log.Warn("short or invalid read from control pipe, discarding", "error", err)
		return
	}

	switch msg.Kind {
	case controlpipe.KindEnqueue:
		if !r.cfg.Enabled() {
			return
		}
		if r.queue.Enqueue(domain.NewRequest(msg.Addr, msg.Perm)) {
			r.log.Debug("queued new SOCKS connection request", "addr", msg.Addr)
		} else {
			r.log.Debug("SOCKS request already exists, not queueing")
		}
	case controlpipe.KindWakeup:
		r.log.Debug("wakeup request received on control pipe")
	case controlpipe.KindDumpQueue:
		r.dumpQueueTo(msg.FD)
	default:
		r.log.Warn("unknown control pipe message kind, ignoring", "kind", msg.Kind)
	}
}

// dumpQueueTo writes a human-readable queue listing to fd, a one-shot
// fd the caller owns and closes.
func (r *Reactor) dumpQueueTo(fd int) {
	write := func(b []byte) (int, error) { return unix.Write(fd, b) }
	if err := r.queue.Dump(write, r.tr, r.cfg.Domain); err != nil {
		r.log.Warn("failed to write queue dump", "error", err)
	}
}
