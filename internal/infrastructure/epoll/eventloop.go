// Package epoll implements domain.EventLoop on Linux epoll.
package epoll

import (
	"time"

	"golang.org/x/sys/unix"

	"ocatsocks/internal/domain"
)

// LinuxEventLoop multiplexes readiness over an epoll instance.
//
// The connector reactor rebuilds a request's readiness interest every
// sweep: its fd moves between the read set and the write set, or out of
// both, from one sweep to the next. Level-triggered notification is
// what makes repeatedly calling Modify with a fresh interest mask
// reproduce that rebuild-every-sweep behavior, so EPOLLET is
// deliberately not set here.
type LinuxEventLoop struct {
	epollFD int
}

func New() (*LinuxEventLoop, error) {
	fd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	return &LinuxEventLoop{epollFD: fd}, nil
}

func (l *LinuxEventLoop) Register(fd int, events domain.EventType) error {
	evt := &unix.EpollEvent{
		Events: uint32(events),
		Fd:     int32(fd),
	}
	return unix.EpollCtl(l.epollFD, unix.EPOLL_CTL_ADD, fd, evt)
}

func (l *LinuxEventLoop) Modify(fd int, events domain.EventType) error {
	evt := &unix.EpollEvent{
		Events: uint32(events),
		Fd:     int32(fd),
	}
	return unix.EpollCtl(l.epollFD, unix.EPOLL_CTL_MOD, fd, evt)
}

func (l *LinuxEventLoop) Unregister(fd int) error {
	return unix.EpollCtl(l.epollFD, unix.EPOLL_CTL_DEL, fd, nil)
}

// Wait blocks for at most timeout (0 means block forever) and delivers
// every ready fd/event pair to handler exactly once.
func (l *LinuxEventLoop) Wait(timeout time.Duration, handler domain.EventHandler) error {
	ms := -1
	if timeout > 0 {
		ms = int(timeout / time.Millisecond)
	}
	events := make([]unix.EpollEvent, 128)
	n, err := unix.EpollWait(l.epollFD, events, ms)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return err
	}

	for i := 0; i < n; i++ {
		fd := int(events[i].Fd)
		mask := events[i].Events

		var ev domain.EventType
		if mask&unix.EPOLLIN != 0 {
			ev |= domain.EventRead
		}
		if mask&unix.EPOLLOUT != 0 {
			ev |= domain.EventWrite
		}
		if mask&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			ev |= domain.EventRead | domain.EventWrite
		}

		if err := handler.HandleEvent(fd, ev); err != nil {
			return err
		}
	}
	return nil
}

func (l *LinuxEventLoop) Close() error {
	return unix.Close(l.epollFD)
}
