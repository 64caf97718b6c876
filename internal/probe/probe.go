// Package probe implements a synchronous startup check: a one-shot,
// blocking variant of the connector's state machine used to confirm
// the configured proxy is reachable before the reactor starts
// accepting work. It never runs concurrently with the reactor, and uses
// ordinary blocking sockets rather than the reactor's non-blocking,
// multiplexed ones.
package probe

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"ocatsocks/internal/codec/socks4a"
	"ocatsocks/internal/codec/socks5"
	"ocatsocks/internal/directconnect"
	"ocatsocks/internal/domain"
	"ocatsocks/internal/nameresolve"
	"ocatsocks/internal/netutil"
)

// Run drives addr through the same NEW -> CONNECTING -> handshake ->
// READY progression the reactor uses, but with blocking I/O and no
// multiplexer, retrying until it succeeds or terminated is set. It
// returns the connected, handshaken fd on success, or domain.NoFD and
// false if termination was requested first.
//
// A node started with a randomly generated address never had a prior
// identity to probe with, so the probe is a no-op in that
// configuration.
func Run(cfg *domain.Config, tr *nameresolve.Translator, direct *directconnect.Resolver, log *slog.Logger, terminated *atomic.Bool, addr [16]byte) (int, bool) {
	if !cfg.Enabled() {
		return domain.NoFD, false
	}
	if cfg.RandomAddr {
		log.Info("skipping synchronous probe: node is running with a random address")
		return domain.NoFD, false
	}

	for {
		if terminated.Load() {
			return domain.NoFD, false
		}

		fd, err := attempt(cfg, tr, direct, addr)
		if err == nil {
			return fd, true
		}

		log.Info("synchronous probe attempt failed, restarting in a moment", "error", err)
		// A bounded sleep rather than an unbounded wait, so termination
		// stays observable between attempts.
		time.Sleep(cfg.Timings.ConnTimeout)
	}
}

func attempt(cfg *domain.Config, tr *nameresolve.Translator, direct *directconnect.Resolver, addr [16]byte) (int, error) {
	target, family, hostname, err := resolveTarget(cfg, tr, direct, addr)
	if err != nil {
		return domain.NoFD, err
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return domain.NoFD, fmt.Errorf("socket: %w", err)
	}

	// netutil.Connect issues connect(2) directly; on this blocking
	// socket it does not return until the connection completes or
	// fails, so ErrInProgress never surfaces here.
	if err := netutil.Connect(fd, target); err != nil {
		unix.Close(fd)
		return domain.NoFD, fmt.Errorf("connect: %w", err)
	}

	if err := handshake(fd, cfg, hostname); err != nil {
		unix.Close(fd)
		return domain.NoFD, err
	}

	return fd, nil
}

func resolveTarget(cfg *domain.Config, tr *nameresolve.Translator, direct *directconnect.Resolver, addr [16]byte) (net.Addr, int, string, error) {
	hostname, _ := tr.Resolve(addr)

	if cfg.Mode == domain.ModeDirect {
		target, err := direct.Resolve(context.Background(), hostname, cfg.DestPort)
		if err != nil {
			return nil, 0, "", err
		}
		family, err := netutil.Family(target)
		return target, family, hostname, err
	}

	family, err := netutil.Family(cfg.SocksDst)
	return cfg.SocksDst, family, hostname, err
}

func handshake(fd int, cfg *domain.Config, hostname string) error {
	switch cfg.Mode {
	case domain.ModeDirect:
		return nil

	case domain.ModeSocks4a:
		frame := socks4a.EncodeRequest(uint16(cfg.DestPort), cfg.Username, hostname)
		if _, err := unix.Write(fd, frame); err != nil {
			return fmt.Errorf("write socks4a request: %w", err)
		}
		reply := make([]byte, socks4a.ReplyLen)
		if err := readFull(fd, reply); err != nil {
			return fmt.Errorf("read socks4a reply: %w", err)
		}
		return socks4a.DecodeReply(reply)

	case domain.ModeSocks5:
		if _, err := unix.Write(fd, socks5.Greeting); err != nil {
			return fmt.Errorf("write socks5 greeting: %w", err)
		}
		greetReply := make([]byte, 2)
		if err := readFull(fd, greetReply); err != nil {
			return fmt.Errorf("read socks5 greeting reply: %w", err)
		}
		if err := socks5.DecodeGreetReply(greetReply); err != nil {
			return err
		}

		frame, err := socks5.EncodeRequest(uint16(cfg.DestPort), hostname)
		if err != nil {
			return err
		}
		if _, err := unix.Write(fd, frame); err != nil {
			return fmt.Errorf("write socks5 request: %w", err)
		}
		header := make([]byte, socks5.ReplyHeaderLen)
		if err := readFull(fd, header); err != nil {
			return fmt.Errorf("read socks5 reply header: %w", err)
		}
		return socks5.DecodeReplyHeader(header)

	default:
		return fmt.Errorf("unknown connector mode %v", cfg.Mode)
	}
}

func readFull(fd int, buf []byte) error {
	read := 0
	for read < len(buf) {
		n, err := unix.Read(fd, buf[read:])
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("connection closed after %d of %d bytes", read, len(buf))
		}
		read += n
	}
	return nil
}
