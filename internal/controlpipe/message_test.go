package controlpipe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeEnqueue(t *testing.T) {
	addr := [16]byte{0xfd, 0x87, 0xd8, 0x7e, 0xeb, 0x43, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}
	m := Message{Kind: KindEnqueue, Addr: addr, Perm: true}

	decoded, err := Decode(Encode(m))
	require.NoError(t, err)
	assert.Equal(t, m, decoded)
}

func TestEncodeDecodeWakeupIsUnspecified(t *testing.T) {
	m := Message{Kind: KindWakeup}
	decoded, err := Decode(Encode(m))
	require.NoError(t, err)
	assert.True(t, IsUnspecified(decoded.Addr))
	assert.Equal(t, KindWakeup, decoded.Kind)
}

func TestEncodeDecodeDumpQueue(t *testing.T) {
	m := Message{Kind: KindDumpQueue, FD: 7}
	decoded, err := Decode(Encode(m))
	require.NoError(t, err)
	assert.Equal(t, 7, decoded.FD)
}

func TestDecodeTruncated(t *testing.T) {
	_, err := Decode(make([]byte, RecordSize-1))
	assert.Error(t, err)
}
