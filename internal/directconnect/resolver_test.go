package directconnect

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveUsesFirstAddress(t *testing.T) {
	r := &Resolver{Lookup: func(ctx context.Context, host string) ([]net.IPAddr, error) {
		return []net.IPAddr{{IP: net.ParseIP("203.0.113.1")}, {IP: net.ParseIP("203.0.113.2")}}, nil
	}}

	addr, err := r.Resolve(context.Background(), "example.test", 443)
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.1", addr.IP.String())
	assert.Equal(t, 443, addr.Port)
}

func TestResolveFailsOnEmptyResult(t *testing.T) {
	r := &Resolver{Lookup: func(ctx context.Context, host string) ([]net.IPAddr, error) {
		return nil, nil
	}}

	_, err := r.Resolve(context.Background(), "example.test", 443)
	assert.Error(t, err)
}

func TestResolveFailsOnLookupError(t *testing.T) {
	r := &Resolver{Lookup: func(ctx context.Context, host string) ([]net.IPAddr, error) {
		return nil, assertErr
	}}
	_, err := r.Resolve(context.Background(), "example.test", 443)
	assert.Error(t, err)
}

var assertErr = &net.DNSError{Err: "no such host", Name: "example.test"}
