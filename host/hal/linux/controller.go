//go:build linux

package linux

import (
	"context"
	"fmt"
	"sync"

	"github.com/ardnew/usbhost/host/hal"
	"github.com/ardnew/usbhost/pkg"
	"github.com/ardnew/usbhost/pkg/respool"
)

// Controller implements hal.Controller for Linux using usbfs ioctls and a
// udev/netlink hotplug monitor, built on the package's devicePool/poller/
// hotplugMonitor plumbing and exposing it through a single DeviceDetect
// stream plus a bounded interrupt-pipe pool.
type Controller struct {
	devices devicePool
	poller  *poller
	hotplug *hotplugMonitor

	pipes *respool.Pool

	statusCh chan hal.DeviceStatus

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu              sync.Mutex
	running         bool
	transferTimeout uint32
	interruptSlots  int
}

// New builds a Controller with interruptSlots bounded interrupt-pipe
// resources. Start must be called before use.
func New(interruptSlots int) *Controller {
	return &Controller{
		statusCh:        make(chan hal.DeviceStatus, 16),
		pipes:           respool.New(interruptSlots),
		transferTimeout: 5000,
		interruptSlots:  interruptSlots,
	}
}

// Start opens the netlink hotplug socket, scans for already-connected
// devices, and begins feeding DeviceDetect.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return pkg.ErrAlreadyRunning
	}

	c.devices.init()

	var err error
	c.poller, err = newPoller()
	if err != nil {
		return err
	}
	c.hotplug, err = newHotplugMonitor()
	if err != nil {
		c.poller.close()
		return err
	}
	if err := c.poller.addFD(c.hotplug.socketFD(), EPOLLIN, c.onHotplugEvent); err != nil {
		c.hotplug.close()
		c.poller.close()
		return err
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.running = true

	c.wg.Add(3)
	go c.pollLoop()
	go c.hotplugLoop()
	go c.initialScan()

	pkg.LogDebug(pkg.ComponentHAL, "linux controller started")
	return nil
}

// DeviceDetect implements hal.Controller. The channel carries a Present
// observation for every device this controller's hotplug monitor attaches
// at the root port it represents (one device slot == one virtual port, as
// usbfs exposes no shared root hub the way real silicon does); the host
// stack treats each as an independent root-port event.
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

// ResetRootPort is a no-op on usbfs: the kernel already reset the device
// during its own enumeration before handing it to userspace.
func (c *Controller) ResetRootPort(assert bool) error { return nil }

// ControlTransfer implements hal.Controller.
func (c *Controller) ControlTransfer(ctx context.Context, addr hal.DeviceAddress, maxPacketSize uint16, setup *hal.SetupPacket, data []byte) (int, error) {
	conn := c.devices.findByAddress(addr)
	if conn == nil || conn.isDisconnected() {
		return 0, pkg.ErrNoDevice
	}

	n, err := doControlTransfer(conn.fd, setup.RequestType, setup.Request, setup.Value, setup.Index, data, c.transferTimeout)
	if isNoDevice(err) {
		conn.handleENODEV()
		return 0, pkg.ErrNoDevice
	}
	if isPipe(err) {
		return n, pkg.ErrStall
	}
	return n, err
}

// BulkIn implements hal.Controller. usbfs's bulk URB ioctl has no data
// toggle concept at this layer (the kernel's usbfs driver owns toggle
// state per endpoint), so toggle is flipped locally to satisfy the
// interface contract but otherwise unused by the transfer itself.
func (c *Controller) BulkIn(ctx context.Context, addr hal.DeviceAddress, endpoint uint8, maxPacketSize uint16, data []byte, tt hal.TransferType, toggle *hal.Toggle) (int, error) {
	return c.bulk(addr, endpoint|0x80, data, toggle)
}

// BulkOut implements hal.Controller.
func (c *Controller) BulkOut(ctx context.Context, addr hal.DeviceAddress, endpoint uint8, maxPacketSize uint16, data []byte, tt hal.TransferType, toggle *hal.Toggle) (int, error) {
	return c.bulk(addr, endpoint&^0x80, data, toggle)
}

func (c *Controller) bulk(addr hal.DeviceAddress, endpoint uint8, data []byte, toggle *hal.Toggle) (int, error) {
	conn := c.devices.findByAddress(addr)
	if conn == nil || conn.isDisconnected() {
		return 0, pkg.ErrNoDevice
	}

	n, err := conn.submitBulkURB(endpoint, data, c.transferTimeout)
	if isNoDevice(err) {
		conn.handleENODEV()
		return 0, pkg.ErrNoDevice
	}
	if isPipe(err) {
		return 0, pkg.ErrStall
	}
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
	return c.armInterruptPipe(lease, addr, endpoint, maxPacketSize)
}

// TryAllocInterruptPipe implements hal.Controller.
func (c *Controller) TryAllocInterruptPipe(addr hal.DeviceAddress, endpoint uint8, maxPacketSize uint16, intervalMs uint8) (hal.InterruptPipe, error) {
	lease, err := c.pipes.TryAlloc()
	if err != nil {
		return hal.InterruptPipe{}, pkg.ErrAllPipesInUse
	}
	return c.armInterruptPipe(lease, addr, endpoint, maxPacketSize)
}

// armInterruptPipe starts a goroutine that repeatedly submits a bulk URB
// on the interrupt endpoint and forwards successful reads to a channel,
// stopping when the lease is closed.
func (c *Controller) armInterruptPipe(lease *respool.Lease, addr hal.DeviceAddress, endpoint uint8, maxPacketSize uint16) (hal.InterruptPipe, error) {
	conn := c.devices.findByAddress(addr)
	if conn == nil {
		lease.Close()
		return hal.InterruptPipe{}, pkg.ErrNoDevice
	}

	data := make(chan []byte, 4)
	go func() {
		defer close(data)
		buf := make([]byte, maxPacketSize)
		for {
			select {
			case <-c.ctx.Done():
				return
			default:
			}
			if conn.isDisconnected() {
				return
			}
			n, err := conn.submitBulkURB(endpoint|0x80, buf, c.transferTimeout)
			if err != nil {
				continue
			}
			payload := make([]byte, n)
			copy(payload, buf[:n])
			select {
			case data <- payload:
			case <-c.ctx.Done():
				return
			}
		}
	}()

	return hal.NewInterruptPipe(lease, data), nil
}

// SetDeviceAddress implements hal.Controller. usbfs assigns the address
// during its own kernel-side enumeration before userspace sees the
// device, so this only updates the tracking table to match the host
// stack's own Topology assignment.
func (c *Controller) SetDeviceAddress(ctx context.Context, newAddr hal.DeviceAddress) error {
	conn := c.devices.findByAddress(0)
	if conn == nil {
		return pkg.ErrNoDevice
	}
	conn.address = newAddr
	pkg.LogDebug(pkg.ComponentHAL, "device address set", "address", newAddr)
	return nil
}

// ClearHalt implements hal.Controller.
func (c *Controller) ClearHalt(addr hal.DeviceAddress, endpoint uint8) error {
	conn := c.devices.findByAddress(addr)
	if conn == nil {
		return pkg.ErrNoDevice
	}
	return clearHalt(conn.fd, endpoint)
}

// Close stops all goroutines and releases every open device and the
// hotplug/poller file descriptors.
func (c *Controller) Close() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	if c.poller != nil {
		c.poller.wake()
	}
	c.wg.Wait()

	for i := 0; i < MaxDevices; i++ {
		if c.devices.slots[i].conn != nil {
			c.devices.free(i)
		}
	}
	if c.hotplug != nil {
		c.hotplug.close()
	}
	if c.poller != nil {
		c.poller.close()
	}
	close(c.statusCh)
	pkg.LogDebug(pkg.ComponentHAL, "linux controller closed")
	return nil
}

func (c *Controller) pollLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}
		if _, err := c.poller.pollOnce(100); err != nil && !isAgain(err) {
			pkg.LogWarn(pkg.ComponentHAL, "poll error", "error", err)
		}
	}
}

func (c *Controller) hotplugLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case info := <-c.hotplug.addChannel():
			c.handleDeviceAdd(info)
		case info := <-c.hotplug.removeChannel():
			c.handleDeviceRemove(info)
		}
	}
}

func (c *Controller) initialScan() {
	defer c.wg.Done()
	devices, err := findMassStorageDevices()
	if err != nil {
		pkg.LogWarn(pkg.ComponentHAL, "initial scan failed", "error", err)
		return
	}
	for _, info := range devices {
		c.handleDeviceAdd(info)
	}
}

func (c *Controller) onHotplugEvent(events uint32) {
	if events&EPOLLIN == 0 {
		return
	}
	for {
		processed, err := c.hotplug.processEvent()
		if err != nil || !processed {
			return
		}
	}
}

func (c *Controller) handleDeviceAdd(info usbDeviceInfo) {
	if !info.hasMassStorageInterface() {
		pkg.LogDebug(pkg.ComponentHAL, "ignoring non mass storage device",
			"bus", info.busNum, "dev", info.devNum, "vid", fmt.Sprintf("0x%04x", info.vendorID))
		return
	}

	c.devices.mu.Lock()
	for i := 0; i < MaxDevices; i++ {
		conn := c.devices.slots[i].conn
		if conn != nil && conn.info.busNum == info.busNum && conn.info.devNum == info.devNum {
			c.devices.mu.Unlock()
			return
		}
	}
	c.devices.mu.Unlock()

	slotIdx := c.devices.alloc(0)
	if slotIdx < 0 {
		pkg.LogWarn(pkg.ComponentHAL, "no device slots available")
		return
	}
	c.devices.slots[slotIdx].port = slotIdx + 1

	conn, err := newDeviceConn(info)
	if err != nil {
		pkg.LogWarn(pkg.ComponentHAL, "failed to open device", "error", err, "path", info.devfsPath)
		c.devices.free(slotIdx)
		return
	}
	conn.address = 0 // enumeration address; host stack assigns the real one
	c.devices.set(slotIdx, conn)

	if err := c.poller.addFD(conn.fd, EPOLLIN, func(events uint32) { c.onDeviceEvent(conn, events) }); err != nil {
		pkg.LogWarn(pkg.ComponentHAL, "failed to add device to poller", "error", err)
	}

	pkg.LogDebug(pkg.ComponentHAL, "device connected",
		"bus", info.busNum, "dev", info.devNum,
		"vid", fmt.Sprintf("0x%04x", info.vendorID),
		"pid", fmt.Sprintf("0x%04x", info.productID))

	select {
	case c.statusCh <- hal.DeviceStatus{Present: true, Speed: info.speed}:
	case <-c.ctx.Done():
	}
}

func (c *Controller) handleDeviceRemove(info usbDeviceInfo) {
	c.devices.mu.Lock()
	for i := 0; i < MaxDevices; i++ {
		conn := c.devices.slots[i].conn
		if conn != nil && conn.info.busNum == info.busNum && conn.info.devNum == info.devNum {
			c.poller.delFD(conn.fd)
			conn.markDisconnected()
			c.devices.mu.Unlock()
			c.devices.free(i)
			pkg.LogDebug(pkg.ComponentHAL, "device disconnected", "bus", info.busNum, "dev", info.devNum)
			select {
			case c.statusCh <- hal.DeviceStatus{Present: false}:
			case <-c.ctx.Done():
			}
			return
		}
	}
	c.devices.mu.Unlock()
}

func (c *Controller) onDeviceEvent(conn *deviceConn, events uint32) {
	if events&EPOLLERR != 0 || events&EPOLLHUP != 0 {
		conn.handleENODEV()
		return
	}
	if events&EPOLLIN != 0 {
		for {
			u, err := conn.reapAsyncURB()
			if err != nil {
				if isNoDevice(err) {
					conn.handleENODEV()
				}
				return
			}
			if u == nil {
				return
			}
		}
	}
}

var _ hal.Controller = (*Controller)(nil)
