package socks4a

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRequestRoundTrip(t *testing.T) {
	req := EncodeRequest(80, "tunnel", "facebookcorewwwi.onion")

	require.Equal(t, byte(4), req[0])
	require.Equal(t, byte(1), req[1])
	assert.Equal(t, []byte{0, 80}, req[2:4])
	assert.Equal(t, []byte{0, 0, 0, 1}, req[4:8])

	rest := req[8:]
	nul := indexByte(rest, 0)
	require.GreaterOrEqual(t, nul, 0)
	assert.Equal(t, "tunnel", string(rest[:nul]))

	host := rest[nul+1:]
	nul2 := indexByte(host, 0)
	require.GreaterOrEqual(t, nul2, 0)
	assert.Equal(t, "facebookcorewwwi.onion", string(host[:nul2]))
}

func TestDecodeReplyGranted(t *testing.T) {
	reply := []byte{0, 90, 0, 0, 0, 0, 0, 0}
	assert.NoError(t, DecodeReply(reply))
}

func TestDecodeReplyRejected(t *testing.T) {
	reply := []byte{0, 0x5B, 0, 0, 0, 0, 0, 0}
	assert.Error(t, DecodeReply(reply))
}

func TestDecodeReplyBadVersion(t *testing.T) {
	reply := []byte{4, 90, 0, 0, 0, 0, 0, 0}
	assert.Error(t, DecodeReply(reply))
}

func TestDecodeReplyTruncated(t *testing.T) {
	assert.Error(t, DecodeReply([]byte{0, 90, 0}))
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}
