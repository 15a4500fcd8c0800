//go:build linux

package linux

import (
	"sync"

	"golang.org/x/sys/unix"
)

// =============================================================================
// Epoll Types
// =============================================================================

// pollDesc describes a file descriptor being polled.
type pollDesc struct {
	fd       int          // File descriptor
	events   uint32       // Events to watch for
	callback func(uint32) // Callback when events occur
}

// =============================================================================
// Poller
// =============================================================================

// poller manages epoll-based I/O multiplexing for USB devices.
type poller struct {
	epfd    int               // epoll file descriptor
	wakefd  int               // eventfd for waking the poller
	mu      sync.Mutex        // Protects fds map
	fds     map[int]*pollDesc // Tracked file descriptors
	running bool              // Whether poll loop is running
	done    chan struct{}     // Signal to stop polling
}

// newPoller creates a new poller instance.
func newPoller() (*poller, error) {
	// Create epoll instance
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}

	// Create eventfd for wakeup signaling
	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}

	p := &poller{
		epfd:   epfd,
		wakefd: wakefd,
		fds:    make(map[int]*pollDesc),
		done:   make(chan struct{}),
	}

	// Add wakefd to epoll
	if err := p.addFD(wakefd, unix.EPOLLIN, nil); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, err
	}

	return p, nil
}

// close shuts down the poller.
func (p *poller) close() error {
	p.mu.Lock()
	if p.running {
		close(p.done)
		p.wake()
	}
	p.mu.Unlock()

	if p.wakefd >= 0 {
		unix.Close(p.wakefd)
	}
	if p.epfd >= 0 {
		unix.Close(p.epfd)
	}
	return nil
}

// addFD adds a file descriptor to the poller.
func (p *poller) addFD(fd int, events uint32, callback func(uint32)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	event := unix.EpollEvent{Events: events, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
		return err
	}

	p.fds[fd] = &pollDesc{
		fd:       fd,
		events:   events,
		callback: callback,
	}
	return nil
}

// modFD modifies the events for a file descriptor.
func (p *poller) modFD(fd int, events uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	desc, ok := p.fds[fd]
	if !ok {
		return unix.ENOENT
	}

	event := unix.EpollEvent{Events: events, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &event); err != nil {
		return err
	}

	desc.events = events
	return nil
}

// delFD removes a file descriptor from the poller.
func (p *poller) delFD(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.fds, fd)
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// wake signals the poller to wake up.
func (p *poller) wake() error {
	var buf [8]byte
	buf[0] = 1 // Write value 1
	_, err := unix.Write(p.wakefd, buf[:])
	return err
}

// poll runs the epoll wait loop.
// It blocks until an event occurs or the poller is closed.
func (p *poller) poll() error {
	var events [MaxEpollEvents]unix.EpollEvent

	p.mu.Lock()
	p.running = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	for {
		select {
		case <-p.done:
			return nil
		default:
		}

		n, err := unix.EpollWait(p.epfd, events[:], -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			evts := events[i].Events

			if fd == p.wakefd {
				// Drain the eventfd
				var buf [8]byte
				unix.Read(p.wakefd, buf[:])
				continue
			}

			p.mu.Lock()
			desc, ok := p.fds[fd]
			p.mu.Unlock()

			if ok && desc.callback != nil {
				desc.callback(evts)
			}
		}
	}
}

// pollOnce performs a single poll iteration with timeout.
// timeout is in milliseconds, -1 for infinite, 0 for non-blocking.
func (p *poller) pollOnce(timeout int) (int, error) {
	var events [MaxEpollEvents]unix.EpollEvent

	n, err := unix.EpollWait(p.epfd, events[:], timeout)
	if err != nil {
		return 0, err
	}

	processed := 0
	for i := 0; i < n; i++ {
		fd := int(events[i].Fd)
		evts := events[i].Events

		if fd == p.wakefd {
			// Drain the eventfd
			var buf [8]byte
			unix.Read(p.wakefd, buf[:])
			continue
		}

		p.mu.Lock()
		desc, ok := p.fds[fd]
		p.mu.Unlock()

		if ok && desc.callback != nil {
			desc.callback(evts)
			processed++
		}
	}

	return processed, nil
}
