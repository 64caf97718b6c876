package controlpipe

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPipeRoundTripEnqueue(t *testing.T) {
	p, err := New()
	require.NoError(t, err)
	defer p.Close()

	addr := [16]byte{0xfd, 0x87, 0xd8, 0x7e, 0xeb, 0x43, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}
	require.NoError(t, p.Enqueue(addr, false))

	msg, err := p.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, KindEnqueue, msg.Kind)
	require.Equal(t, addr, msg.Addr)
	require.False(t, msg.Perm)
}

func TestPipeRoundTripWakeup(t *testing.T) {
	p, err := New()
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Wakeup())
	msg, err := p.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, KindWakeup, msg.Kind)
}

func TestPipeRoundTripDumpQueue(t *testing.T) {
	p, err := New()
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.DumpQueue(7))
	msg, err := p.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, KindDumpQueue, msg.Kind)
	require.Equal(t, 7, msg.FD)
}

func TestPipeMultipleMessagesPreserveOrder(t *testing.T) {
	p, err := New()
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Wakeup())
	require.NoError(t, p.DumpQueue(3))

	first, err := p.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, KindWakeup, first.Kind)

	second, err := p.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, KindDumpQueue, second.Kind)
	require.Equal(t, 3, second.FD)
}
