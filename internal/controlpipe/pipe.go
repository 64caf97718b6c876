package controlpipe

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Pipe is the producer->connector control channel: a real OS pipe so
// its read end can be registered directly with the reactor's epoll
// instance.
type Pipe struct {
	readFD, writeFD int
}

// New creates a control pipe. The read end is non-blocking, for the
// reactor; the write end stays blocking, since producer goroutines can
// afford to block briefly on the rare full pipe.
func New() (*Pipe, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], 0); err != nil {
		return nil, fmt.Errorf("pipe2: %w", err)
	}
	if err := unix.SetNonblock(fds[0], true); err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return nil, fmt.Errorf("set nonblock on read end: %w", err)
	}
	return &Pipe{readFD: fds[0], writeFD: fds[1]}, nil
}

func (p *Pipe) ReadFD() int  { return p.readFD }
func (p *Pipe) WriteFD() int { return p.writeFD }

func (p *Pipe) Close() error {
	err1 := unix.Close(p.readFD)
	err2 := unix.Close(p.writeFD)
	if err1 != nil {
		return err1
	}
	return err2
}

// Enqueue writes an enqueue request for addr. Producers call this
// instead of mutating the queue directly: the queue is owned
// exclusively by the reactor goroutine.
func (p *Pipe) Enqueue(addr [16]byte, perm bool) error {
	return p.write(Message{Kind: KindEnqueue, Addr: addr, Perm: perm})
}

// Wakeup forces an immediate reactor sweep without changing any
// request's state, used by asynchronous resolver callbacks.
func (p *Pipe) Wakeup() error {
	return p.write(Message{Kind: KindWakeup})
}

// DumpQueue asks the connector to write a human-readable queue listing
// to fd.
func (p *Pipe) DumpQueue(fd int) error {
	return p.write(Message{Kind: KindDumpQueue, FD: fd})
}

func (p *Pipe) write(m Message) error {
	rec := Encode(m)
	n, err := unix.Write(p.writeFD, rec)
	if err != nil {
		return fmt.Errorf("write control pipe record: %w", err)
	}
	if n < len(rec) {
		return fmt.Errorf("control pipe write truncated to %d of %d bytes", n, len(rec))
	}
	return nil
}

// ReadMessage reads exactly one record from the read end. Callers
// should only invoke this once epoll reports the read end readable.
func (p *Pipe) ReadMessage() (Message, error) {
	buf := make([]byte, RecordSize)
	n, err := unix.Read(p.readFD, buf)
	if err != nil {
		return Message{}, fmt.Errorf("read control pipe record: %w", err)
	}
	if n < RecordSize {
		return Message{}, fmt.Errorf("control pipe read truncated to %d of %d bytes", n, RecordSize)
	}
	return Decode(buf)
}
