//go:build linux

package main

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// readDevices multiplexes every device onto one goroutine with epoll. A
// single device is read directly.
func readDevices(files []*os.File, events chan<- inputEvent, readErr chan<- error) {
	switch len(files) {
	case 0:
		readErr <- fmt.Errorf("no input devices provided")
		return
	case 1:
		readInputEvents(files[0], events, readErr)
		return
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		readErr <- fmt.Errorf("epoll_create1: %w", err)
		return
	}
	defer unix.Close(epfd)

	fdToFile := make(map[int]*os.File, len(files))
	for _, f := range files {
		fd := int(f.Fd())
		fdToFile[fd] = f

		event := unix.EpollEvent{
			Events: unix.EPOLLIN,
			Fd:     int32(fd),
		}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
			readErr <- fmt.Errorf("epoll_ctl_add %s: %w", f.Name(), err)
			return
		}
	}

	const maxEvents = 32
	epollEvents := make([]unix.EpollEvent, maxEvents)
	buf := make([]byte, binary.Size(inputEvent{}))
	reader := bytes.NewReader(buf)

	for {
		n, err := unix.EpollWait(epfd, epollEvents, -1)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			readErr <- fmt.Errorf("epoll_wait: %w", err)
			return
		}

		for i := 0; i < n; i++ {
			fd := int(epollEvents[i].Fd)
			f := fdToFile[fd]

			// Any device error is fatal; the daemon keeps running on IPC.
			if epollEvents[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				readErr <- fmt.Errorf("device error/hangup: %s (fd=%d)", f.Name(), fd)
				return
			}

			if _, err := f.Read(buf); err != nil {
				readErr <- fmt.Errorf("read from %s: %w", f.Name(), err)
				return
			}

			ev, err := decodeInputEvent(reader, buf)
			if err != nil {
				continue
			}
			events <- ev
		}
	}
}
