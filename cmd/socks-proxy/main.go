// Command socks-proxy runs the SOCKS connector engine standalone: it
// wires up the event loop, control pipe, name translator, and peer
// registry, runs the synchronous startup probe, then drives the
// reactor until terminated.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"ocatsocks/internal/controlpipe"
	"ocatsocks/internal/directconnect"
	"ocatsocks/internal/domain"
	"ocatsocks/internal/infrastructure/epoll"
	"ocatsocks/internal/nameresolve"
	"ocatsocks/internal/peer"
	"ocatsocks/internal/probe"
	"ocatsocks/internal/reactor"
	"ocatsocks/pkg/logger"
)

func main() {
	socksDst := flag.String("socks-dst", "", "proxy address host:port (empty disables the connector)")
	mode := flag.String("mode", "socks4a", "connection mode: socks4a, socks5, or direct")
	destPort := flag.Int("dest-port", 443, "destination port carried in SOCKS requests")
	username := flag.String("username", "", "SOCKS4a user id")
	domainSuffix := flag.String("domain", ".onion", "suffix appended to deterministically derived hostnames")
	hostsLookup := flag.Bool("hosts-lookup", true, "enable the hosts-cache resolution path")
	dnsLookup := flag.Bool("dns-lookup", false, "enable the PTR-query DNS resolution path")
	nsAddr := flag.String("ns-addr", "", "nameserver address for the DNS path (empty autodetects from /etc/resolv.conf)")
	nsPort := flag.Int("ns-port", 53, "UDP port of the nameserver used by the DNS path")
	nameBits := flag.Int("name-bits", 80, "low-order address bits folded into a derived hostname")
	dialCap := flag.Int64("dial-cap", 0, "max concurrently outstanding TCP dials, 0 = unbounded")
	randomAddr := flag.Bool("random-addr", false, "node is running with a randomly generated address")
	probeAddr := flag.String("probe-addr", "", "virtual address to probe at startup before serving requests")
	enqueue := flag.String("enqueue", "", "comma-separated virtual addresses to queue at startup")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	log := logger.Setup(*debug)

	cfg, err := buildConfig(*socksDst, *mode, *destPort, *username, *domainSuffix,
		*hostsLookup, *dnsLookup, *nsAddr, *nsPort, *nameBits, *dialCap, *randomAddr)
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	loop, err := epoll.New()
	if err != nil {
		log.Error("failed to create event loop", "error", err)
		os.Exit(1)
	}
	defer loop.Close()

	pipe, err := controlpipe.New()
	if err != nil {
		log.Error("failed to create control pipe", "error", err)
		os.Exit(1)
	}
	defer pipe.Close()

	hosts := nameresolve.NewHostsStore(10 * time.Minute)
	tr := &nameresolve.Translator{
		Hosts:       hosts,
		HostsLookup: cfg.HostsLookup,
		Net:         cfg.Net,
		Domain:      cfg.Domain,
	}
	peers := peer.NewRegistry(log)
	direct := directconnect.NewResolver()

	r := reactor.New(log, loop, pipe, cfg, tr, peers, direct)

	if *probeAddr != "" {
		addr, err := parseVirtualAddr(*probeAddr)
		if err != nil {
			log.Error("invalid probe address", "error", err)
			os.Exit(1)
		}
		var terminated atomic.Bool
		log.Info("running synchronous startup probe", "addr", *probeAddr)
		fd, ok := probe.Run(cfg, tr, direct, log, &terminated, addr)
		switch {
		case ok:
			log.Info("startup probe succeeded", "fd", fd)
			unix.Close(fd)
		case cfg.RandomAddr:
			// the probe skips itself for a random address; nothing to check
		default:
			log.Error("startup probe did not succeed")
			os.Exit(1)
		}
	}

	for _, addrStr := range splitNonEmpty(*enqueue) {
		addr, err := parseVirtualAddr(addrStr)
		if err != nil {
			log.Error("skipping invalid enqueue address", "addr", addrStr, "error", err)
			continue
		}
		r.Enqueue(addr, true)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("termination requested, stopping reactor")
		r.Stop()
	}()

	log.Info("connector running", "mode", cfg.Mode, "proxy", *socksDst)
	if err := r.Run(); err != nil {
		log.Error("reactor exited with error", "error", err)
		os.Exit(1)
	}
}

func buildConfig(socksDst, mode string, destPort int, username, domainSuffix string,
	hostsLookup, dnsLookup bool, nsAddr string, nsPort, nameBits int, dialCap int64, randomAddr bool) (*domain.Config, error) {

	cfg := &domain.Config{
		Mode:        parseMode(mode),
		DestPort:    destPort,
		Username:    username,
		Domain:      domainSuffix,
		HostsLookup: hostsLookup,
		DNSLookup:   dnsLookup,
		NSPort:      nsPort,
		RandomAddr:  randomAddr,
		Net:         domain.NetDesc{NameBits: nameBits},
		Timings:     domain.DefaultTimings(),
		DialCap:     dialCap,
	}

	if nsAddr != "" {
		ip := net.ParseIP(nsAddr)
		if ip == nil {
			return nil, fmt.Errorf("unparsable ns-addr %q", nsAddr)
		}
		cfg.NSAddr = ip
	}

	if socksDst == "" {
		return cfg, nil // connector disabled: no proxy configured
	}

	host, portStr, err := net.SplitHostPort(socksDst)
	if err != nil {
		return nil, fmt.Errorf("parse socks-dst %q: %w", socksDst, err)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, fmt.Errorf("unparsable socks-dst host %q", host)
	}
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return nil, fmt.Errorf("unparsable socks-dst port %q: %w", portStr, err)
	}
	cfg.SocksDst = &net.TCPAddr{IP: ip, Port: port}
	return cfg, nil
}

func parseMode(s string) domain.Mode {
	switch strings.ToLower(s) {
	case "socks5":
		return domain.ModeSocks5
	case "direct":
		return domain.ModeDirect
	default:
		return domain.ModeSocks4a
	}
}

func parseVirtualAddr(s string) ([16]byte, error) {
	var out [16]byte
	ip := net.ParseIP(s)
	if ip == nil {
		return out, fmt.Errorf("unparsable virtual address %q", s)
	}
	v6 := ip.To16()
	if v6 == nil {
		return out, fmt.Errorf("address %q is not a valid IPv6 address", s)
	}
	copy(out[:], v6)
	return out, nil
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
