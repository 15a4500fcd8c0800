// Package fake implements an in-memory hal.Controller double for testing
// the host enumeration and transfer code without real hardware, modeled on
// the teacher's FIFO-based HAL but driven entirely by programmable Go
// state instead of named pipes.
package fake

import (
	"context"
	"sync"

	"github.com/ardnew/usbhost/host/hal"
	"github.com/ardnew/usbhost/pkg"
	"github.com/ardnew/usbhost/pkg/respool"
)

// ControlHandler answers a control transfer for a given address.
type ControlHandler func(addr hal.DeviceAddress, setup *hal.SetupPacket, data []byte) (int, error)

// BulkHandler answers a bulk/interrupt transfer for a given address and
// endpoint, in either direction.
type BulkHandler func(addr hal.DeviceAddress, endpoint uint8, data []byte, out bool) (int, error)

// Controller is a scriptable fake implementing hal.Controller.
type Controller struct {
	mu sync.Mutex

	statusCh chan hal.DeviceStatus
	pipes    *respool.Pool
	pipeData [8]chan []byte

	// Handlers; nil handlers return pkg.ErrNotSupported.
	OnControl ControlHandler
	OnBulk    BulkHandler

	resetAsserted bool
	addresses     map[hal.DeviceAddress]bool
	halted        map[uint8]bool
	closed        bool
}

// New constructs a Controller with nPipes available interrupt pipe slots.
func New(nPipes int) *Controller {
	return &Controller{
		statusCh:  make(chan hal.DeviceStatus, 8),
		pipes:     respool.New(nPipes),
		addresses: make(map[hal.DeviceAddress]bool),
		halted:    make(map[uint8]bool),
	}
}

// Connect enqueues a root-port present observation.
func (c *Controller) Connect(speed hal.Speed) {
	c.statusCh <- hal.DeviceStatus{Present: true, Speed: speed}
}

// Disconnect enqueues a root-port absent observation.
func (c *Controller) Disconnect() {
	c.statusCh <- hal.DeviceStatus{Present: false}
}

// DeviceDetect implements hal.Controller.
func (c *Controller) DeviceDetect(ctx context.Context) <-chan hal.DeviceStatus {
	out := make(chan hal.DeviceStatus)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case s, ok := <-c.statusCh:
				if !ok {
					return
				}
				select {
				case out <- s:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// ResetRootPort implements hal.Controller.
func (c *Controller) ResetRootPort(assert bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetAsserted = assert
	return nil
}

// ControlTransfer implements hal.Controller.
func (c *Controller) ControlTransfer(ctx context.Context, addr hal.DeviceAddress, maxPacketSize uint16, setup *hal.SetupPacket, data []byte) (int, error) {
	if c.OnControl == nil {
		return 0, pkg.ErrNotSupported
	}
	return c.OnControl(addr, setup, data)
}

// BulkIn implements hal.Controller.
func (c *Controller) BulkIn(ctx context.Context, addr hal.DeviceAddress, endpoint uint8, maxPacketSize uint16, data []byte, tt hal.TransferType, toggle *hal.Toggle) (int, error) {
	c.mu.Lock()
	if c.halted[endpoint] {
		c.mu.Unlock()
		return 0, pkg.ErrStall
	}
	c.mu.Unlock()
	if c.OnBulk == nil {
		return 0, pkg.ErrNotSupported
	}
	n, err := c.OnBulk(addr, endpoint, data, false)
	if err == nil && toggle != nil {
		*toggle = toggle.Flip()
	}
	return n, err
}

// BulkOut implements hal.Controller.
func (c *Controller) BulkOut(ctx context.Context, addr hal.DeviceAddress, endpoint uint8, maxPacketSize uint16, data []byte, tt hal.TransferType, toggle *hal.Toggle) (int, error) {
	c.mu.Lock()
	if c.halted[endpoint] {
		c.mu.Unlock()
		return 0, pkg.ErrStall
	}
	c.mu.Unlock()
	if c.OnBulk == nil {
		return 0, pkg.ErrNotSupported
	}
	n, err := c.OnBulk(addr, endpoint, data, true)
	if err == nil && toggle != nil {
		*toggle = toggle.Flip()
	}
	return n, err
}

// AllocInterruptPipe implements hal.Controller.
func (c *Controller) AllocInterruptPipe(ctx context.Context, addr hal.DeviceAddress, endpoint uint8, maxPacketSize uint16, intervalMs uint8) (hal.InterruptPipe, error) {
	lease, err := c.pipes.Alloc(ctx)
	if err != nil {
		return hal.InterruptPipe{}, err
	}
	ch := make(chan []byte, 4)
	c.mu.Lock()
	c.pipeData[lease.Slot()] = ch
	c.mu.Unlock()
	return hal.NewInterruptPipe(lease, ch), nil
}

// TryAllocInterruptPipe implements hal.Controller.
func (c *Controller) TryAllocInterruptPipe(addr hal.DeviceAddress, endpoint uint8, maxPacketSize uint16, intervalMs uint8) (hal.InterruptPipe, error) {
	lease, err := c.pipes.TryAlloc()
	if err != nil {
		return hal.InterruptPipe{}, pkg.ErrAllPipesInUse
	}
	ch := make(chan []byte, 4)
	c.mu.Lock()
	c.pipeData[lease.Slot()] = ch
	c.mu.Unlock()
	return hal.NewInterruptPipe(lease, ch), nil
}

// DeliverInterrupt pushes a payload to the pipe allocated in the given
// pool slot, used by tests driving hub status-change behavior.
func (c *Controller) DeliverInterrupt(slot int, payload []byte) {
	c.mu.Lock()
	ch := c.pipeData[slot]
	c.mu.Unlock()
	if ch != nil {
		ch <- payload
	}
}

// SetDeviceAddress implements hal.Controller.
func (c *Controller) SetDeviceAddress(ctx context.Context, newAddr hal.DeviceAddress) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addresses[newAddr] = true
	return nil
}

// ClearHalt implements hal.Controller.
func (c *Controller) ClearHalt(addr hal.DeviceAddress, endpoint uint8) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.halted, endpoint)
	return nil
}

// Halt marks an endpoint as stalled, for tests exercising recovery paths.
func (c *Controller) Halt(endpoint uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.halted[endpoint] = true
}

// Close implements hal.Controller.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.statusCh)
	return nil
}
