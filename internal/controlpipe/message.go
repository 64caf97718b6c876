// Package controlpipe implements the producer->connector channel: a
// small fixed-size record with an explicit Kind tag and named fields,
// still small enough to respect the pipe's atomic-write guarantee.
package controlpipe

import (
	"encoding/binary"
	"fmt"
)

// Kind discriminates the three message shapes the control pipe carries.
type Kind byte

const (
	KindEnqueue Kind = iota
	KindWakeup
	KindDumpQueue
)

// RecordSize is the fixed wire size of every message, well under the
// smallest POSIX PIPE_BUF (512 bytes), so concurrent producer writes
// stay atomic.
const RecordSize = 1 + 16 + 1 + 4

// Message is a decoded control-pipe record.
type Message struct {
	Kind Kind
	Addr [16]byte // KindEnqueue: target address
	Perm bool     // KindEnqueue: initial permanence
	FD   int      // KindDumpQueue: destination fd for the listing
}

// Encode serializes m into a RecordSize-byte record.
func Encode(m Message) []byte {
	buf := make([]byte, RecordSize)
	buf[0] = byte(m.Kind)
	copy(buf[1:17], m.Addr[:])
	if m.Perm {
		buf[17] = 1
	}
	binary.BigEndian.PutUint32(buf[18:22], uint32(m.FD))
	return buf
}

// Decode parses a RecordSize-byte record. A short record is reported
// as an error; the caller logs and discards it rather than propagating
// the failure further.
func Decode(b []byte) (Message, error) {
	if len(b) < RecordSize {
		return Message{}, fmt.Errorf("control pipe record truncated: got %d of %d bytes", len(b), RecordSize)
	}
	var m Message
	m.Kind = Kind(b[0])
	copy(m.Addr[:], b[1:17])
	m.Perm = b[17] != 0
	m.FD = int(int32(binary.BigEndian.Uint32(b[18:22])))
	return m, nil
}

// IsUnspecified reports whether addr is the all-zero IPv6 address, used
// to distinguish a wakeup message from an enqueue message in contexts
// where Kind alone isn't already explicit about it.
func IsUnspecified(addr [16]byte) bool {
	return addr == [16]byte{}
}
