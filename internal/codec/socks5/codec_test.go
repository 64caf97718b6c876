package socks5

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGreetingBytes(t *testing.T) {
	assert.Equal(t, []byte{5, 1, 0}, Greeting)
}

func TestDecodeGreetReplyOK(t *testing.T) {
	assert.NoError(t, DecodeGreetReply([]byte{5, 0}))
}

func TestDecodeGreetReplyRejected(t *testing.T) {
	assert.Error(t, DecodeGreetReply([]byte{5, 2}))
	assert.Error(t, DecodeGreetReply([]byte{4, 0}))
}

func TestEncodeRequestRoundTrip(t *testing.T) {
	req, err := EncodeRequest(0x50, "facebookcorewwwi.onion")
	require.NoError(t, err)

	assert.Equal(t, byte(5), req[0])
	assert.Equal(t, byte(1), req[1])
	assert.Equal(t, byte(0), req[2])
	assert.Equal(t, byte(3), req[3])

	hostLen := int(req[4])
	assert.Equal(t, len("facebookcorewwwi.onion"), hostLen)
	host := string(req[5 : 5+hostLen])
	assert.Equal(t, "facebookcorewwwi.onion", host)

	port := req[5+hostLen : 7+hostLen]
	assert.Equal(t, []byte{0, 0x50}, port)
}

func TestEncodeRequestHostnameTooLong(t *testing.T) {
	long := make([]byte, 256)
	for i := range long {
		long[i] = 'a'
	}
	_, err := EncodeRequest(80, string(long))
	assert.Error(t, err)
}

func TestDecodeReplyHeaderSuccess(t *testing.T) {
	header := []byte{5, 0, 0, 1, 0, 0, 0, 0, 0, 0}
	assert.NoError(t, DecodeReplyHeader(header))
}

func TestDecodeReplyHeaderFailureStatus(t *testing.T) {
	header := []byte{5, 1, 0, 1}
	assert.Error(t, DecodeReplyHeader(header))
}

func TestDecodeReplyHeaderTruncated(t *testing.T) {
	assert.Error(t, DecodeReplyHeader([]byte{5, 0}))
}
