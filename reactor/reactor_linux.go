//go:build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux epoll(7) demultiplexer, level-triggered.

package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

type epollPoller struct {
	epfd   int
	events []unix.EpollEvent
	known  map[int]bool
}

func newPoller() (poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollPoller{
		epfd:   epfd,
		events: make([]unix.EpollEvent, 128),
		known:  make(map[int]bool),
	}, nil
}

func (p *epollPoller) update(fd int, read, write bool) error {
	var ev unix.EpollEvent
	if read {
		ev.Events |= unix.EPOLLIN
	}
	if write {
		ev.Events |= unix.EPOLLOUT
	}
	ev.Fd = int32(fd)

	op := unix.EPOLL_CTL_ADD
	if p.known[fd] {
		op = unix.EPOLL_CTL_MOD
	}
	if err := unix.EpollCtl(p.epfd, op, fd, &ev); err != nil {
		return err
	}
	p.known[fd] = true
	return nil
}

func (p *epollPoller) remove(fd int) error {
	if !p.known[fd] {
		return nil
	}
	delete(p.known, fd)
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollPoller) wait(timeout time.Duration, onReady func(fd int, r readiness)) error {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
		if ms == 0 && timeout > 0 {
			ms = 1
		}
	}
	n, err := unix.EpollWait(p.epfd, p.events, ms)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		ev := p.events[i]
		var r readiness
		if ev.Events&unix.EPOLLIN != 0 {
			r |= readyRead
		}
		if ev.Events&unix.EPOLLOUT != 0 {
			r |= readyWrite
		}
		if ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			r |= readyError
		}
		onReady(int(ev.Fd), r)
	}
	return nil
}

func (p *epollPoller) close() error {
	return unix.Close(p.epfd)
}
