package probe

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"ocatsocks/internal/directconnect"
	"ocatsocks/internal/domain"
	"ocatsocks/internal/nameresolve"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunSkipsWhenRandomAddress(t *testing.T) {
	cfg := &domain.Config{
		SocksDst:   &net.TCPAddr{IP: net.IPv6loopback, Port: 9050},
		Mode:       domain.ModeDirect,
		RandomAddr: true,
		Timings:    domain.DefaultTimings(),
	}
	tr := &nameresolve.Translator{Net: domain.NetDesc{NameBits: 80}}
	var terminated atomic.Bool

	fd, ok := Run(cfg, tr, directconnect.NewResolver(), discardLogger(), &terminated, [16]byte{1})
	assert.False(t, ok)
	assert.Equal(t, domain.NoFD, fd)
}

func TestRunSkipsWhenDisabled(t *testing.T) {
	cfg := &domain.Config{Timings: domain.DefaultTimings()}
	tr := &nameresolve.Translator{}
	var terminated atomic.Bool

	fd, ok := Run(cfg, tr, directconnect.NewResolver(), discardLogger(), &terminated, [16]byte{1})
	assert.False(t, ok)
	assert.Equal(t, domain.NoFD, fd)
}

func TestRunReturnsOnTerminationWithoutAReachableProxy(t *testing.T) {
	cfg := &domain.Config{
		SocksDst: &net.TCPAddr{IP: net.IPv6loopback, Port: 1}, // nothing listens on port 1
		Mode:     domain.ModeSocks4a,
		Timings:  domain.Timings{ConnTimeout: 5 * time.Millisecond, DNSRetryTimeout: time.Second, MaxRetry: 3, DNSRetry: 3},
	}
	tr := &nameresolve.Translator{}
	var terminated atomic.Bool

	go func() {
		time.Sleep(15 * time.Millisecond)
		terminated.Store(true)
	}()

	fd, ok := Run(cfg, tr, directconnect.NewResolver(), discardLogger(), &terminated, [16]byte{1})
	assert.False(t, ok)
	assert.Equal(t, domain.NoFD, fd)
}

func TestAttemptDirectModeConnectsWithoutHandshake(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan struct{})
	go func() {
		c, err := ln.Accept()
		if err == nil {
			close(accepted)
			c.Close()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	cfg := &domain.Config{Mode: domain.ModeDirect, DestPort: addr.Port}
	tr := &nameresolve.Translator{}
	resolver := &directconnect.Resolver{
		Lookup: func(_ context.Context, _ string) ([]net.IPAddr, error) {
			return []net.IPAddr{{IP: addr.IP}}, nil
		},
	}

	fd, err := attempt(cfg, tr, resolver, [16]byte{1})
	require.NoError(t, err)
	defer unix.Close(fd)

	select {
	case <-accepted:
	case <-time.After(time.Second):
		t.Fatal("listener never accepted the probe's connection")
	}
}
