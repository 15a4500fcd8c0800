// Package libusb implements host.hal.Controller on top of
// github.com/google/gousb, giving the host stack a portable (non-Linux
// specific, cgo-backed libusb) real-hardware backend alongside the
// pure-Go usbfs implementation in host/hal/linux.
package libusb

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/gousb"

	"github.com/ardnew/usbhost/host/hal"
	"github.com/ardnew/usbhost/pkg"
	"github.com/ardnew/usbhost/pkg/respool"
)

// defaultConfig and defaultInterface are the configuration/interface
// indices every device is opened against. The host stack re-issues
// SET_CONFIGURATION itself during Configure, so the Controller only
// needs libusb to hand back raw bulk/control access to endpoint 0 and
// whichever altsetting is active once that happens; claiming
// interface 0 alt 0 up front is enough to read/write endpoint 0 and
// lets the OS driver stack attach, matching how gousb examples in the
// retrieval pack open a device.
const (
	defaultConfig    = 1
	defaultInterface = 0
	defaultAltSetting = 0
)

// openDevice bundles a gousb.Device with its claimed interface and a
// cache of opened endpoints, keyed by raw endpoint address (with the
// direction bit).
type openDevice struct {
	mu      sync.Mutex
	dev     *gousb.Device
	cfg     *gousb.Config
	intf    *gousb.Interface
	inEPs   map[uint8]*gousb.InEndpoint
	outEPs  map[uint8]*gousb.OutEndpoint
	address hal.DeviceAddress
}

func (o *openDevice) inEndpoint(epAddr uint8, maxPacketSize uint16) (*gousb.InEndpoint, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if ep, ok := o.inEPs[epAddr]; ok {
		return ep, nil
	}
	ep, err := o.intf.InEndpoint(int(epAddr & 0x0F))
	if err != nil {
		return nil, err
	}
	o.inEPs[epAddr] = ep
	return ep, nil
}

func (o *openDevice) outEndpoint(epAddr uint8, maxPacketSize uint16) (*gousb.OutEndpoint, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if ep, ok := o.outEPs[epAddr]; ok {
		return ep, nil
	}
	ep, err := o.intf.OutEndpoint(int(epAddr & 0x0F))
	if err != nil {
		return nil, err
	}
	o.outEPs[epAddr] = ep
	return ep, nil
}

func (o *openDevice) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.intf != nil {
		o.intf.Close()
	}
	if o.cfg != nil {
		o.cfg.Close()
	}
	if o.dev != nil {
		o.dev.Close()
	}
}

// Controller implements hal.Controller over libusb via gousb. Hotplug
// is modeled by periodically diffing gousb.Context.OpenDevices against
// the set of devices already tracked, since gousb exposes no push-style
// hotplug callback the way the underlying libusb C API does for
// platforms that support it.
type Controller struct {
	ctx  *gousb.Context
	pipes *respool.Pool

	pollInterval time.Duration

	mu      sync.Mutex
	devices map[hal.DeviceAddress]*openDevice
	nextTmp hal.DeviceAddress

	statusCh chan hal.DeviceStatus

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Controller backed by a fresh libusb context, polling for
// hotplug changes every pollInterval and bounding interrupt pipes to
// interruptSlots concurrent leases.
func New(pollInterval time.Duration, interruptSlots int) *Controller {
	return &Controller{
		ctx:          gousb.NewContext(),
		pipes:        respool.New(interruptSlots),
		pollInterval: pollInterval,
		devices:      make(map[hal.DeviceAddress]*openDevice),
		statusCh:     make(chan hal.DeviceStatus, 16),
	}
}

// Start begins the hotplug poll loop.
func (c *Controller) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(1)
	go c.pollLoop(runCtx)
	pkg.LogDebug(pkg.ComponentHAL, "libusb controller started")
	return nil
}

func (c *Controller) pollLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.scan(ctx)
		}
	}
}

// scan enumerates attached devices and emits a Present observation for
// every device not yet tracked. Devices are addressed by their OS bus
// address (already unique), so no address reassignment ever happens
// here; SetDeviceAddress is a no-op that neither reprograms hardware nor
// records the host stack's logical address against the device.
func (c *Controller) scan(ctx context.Context) {
	devs, err := c.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool { return true })
	if err != nil {
		pkg.LogWarn(pkg.ComponentHAL, "libusb device scan failed", "error", err)
		return
	}

	c.mu.Lock()
	seen := make(map[hal.DeviceAddress]bool)
	for _, dev := range devs {
		addr := hal.DeviceAddress(dev.Desc.Address)
		seen[addr] = true
		if _, ok := c.devices[addr]; ok {
			dev.Close()
			continue
		}

		cfg, err := dev.Config(defaultConfig)
		if err != nil {
			pkg.LogWarn(pkg.ComponentHAL, "failed to set libusb config", "error", err)
			dev.Close()
			continue
		}
		intf, err := cfg.Interface(defaultInterface, defaultAltSetting)
		if err != nil {
			pkg.LogWarn(pkg.ComponentHAL, "failed to claim libusb interface", "error", err)
			cfg.Close()
			dev.Close()
			continue
		}

		od := &openDevice{
			dev:     dev,
			cfg:     cfg,
			intf:    intf,
			inEPs:   make(map[uint8]*gousb.InEndpoint),
			outEPs:  make(map[uint8]*gousb.OutEndpoint),
			address: addr,
		}
		c.devices[addr] = od

		speed := speedOf(dev.Desc.Speed)
		select {
		case c.statusCh <- hal.DeviceStatus{Present: true, Speed: speed}:
		case <-ctx.Done():
		}
	}

	for addr, od := range c.devices {
		if !seen[addr] {
			od.close()
			delete(c.devices, addr)
			select {
			case c.statusCh <- hal.DeviceStatus{Present: false}:
			case <-ctx.Done():
			}
		}
	}
	c.mu.Unlock()
}

func speedOf(s gousb.Speed) hal.Speed {
	switch s {
	case gousb.SpeedLow:
		return hal.SpeedLow
	case gousb.SpeedFull:
		return hal.SpeedFull
	case gousb.SpeedHigh:
		return hal.SpeedHigh
	default:
		return hal.SpeedUnknown
	}
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

// ResetRootPort is not exposed by gousb's high-level API.
func (c *Controller) ResetRootPort(assert bool) error {
	return pkg.ErrNotSupported
}

func (c *Controller) find(addr hal.DeviceAddress) *openDevice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.devices[addr]
}

// ControlTransfer implements hal.Controller.
func (c *Controller) ControlTransfer(ctx context.Context, addr hal.DeviceAddress, maxPacketSize uint16, setup *hal.SetupPacket, data []byte) (int, error) {
	od := c.find(addr)
	if od == nil {
		return 0, pkg.ErrNoDevice
	}
	n, err := od.dev.Control(setup.RequestType, setup.Request, setup.Value, setup.Index, data)
	if err != nil {
		if isStall(err) {
			return n, pkg.ErrStall
		}
		return n, err
	}
	return n, nil
}

// BulkIn implements hal.Controller.
func (c *Controller) BulkIn(ctx context.Context, addr hal.DeviceAddress, endpoint uint8, maxPacketSize uint16, data []byte, tt hal.TransferType, toggle *hal.Toggle) (int, error) {
	od := c.find(addr)
	if od == nil {
		return 0, pkg.ErrNoDevice
	}
	ep, err := od.inEndpoint(endpoint|0x80, maxPacketSize)
	if err != nil {
		return 0, err
	}
	n, err := ep.ReadContext(ctx, data)
	if err != nil {
		if isStall(err) {
			return n, pkg.ErrStall
		}
		return n, err
	}
	if toggle != nil {
		*toggle = toggle.Flip()
	}
	return n, nil
}

// BulkOut implements hal.Controller.
func (c *Controller) BulkOut(ctx context.Context, addr hal.DeviceAddress, endpoint uint8, maxPacketSize uint16, data []byte, tt hal.TransferType, toggle *hal.Toggle) (int, error) {
	od := c.find(addr)
	if od == nil {
		return 0, pkg.ErrNoDevice
	}
	ep, err := od.outEndpoint(endpoint&^0x80, maxPacketSize)
	if err != nil {
		return 0, err
	}
	n, err := ep.WriteContext(ctx, data)
	if err != nil {
		if isStall(err) {
			return n, pkg.ErrStall
		}
		return n, err
	}
	if toggle != nil {
		*toggle = toggle.Flip()
	}
	return n, nil
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

func (c *Controller) armInterruptPipe(lease *respool.Lease, addr hal.DeviceAddress, endpoint uint8, maxPacketSize uint16) (hal.InterruptPipe, error) {
	od := c.find(addr)
	if od == nil {
		lease.Close()
		return hal.InterruptPipe{}, pkg.ErrNoDevice
	}
	ep, err := od.inEndpoint(endpoint|0x80, maxPacketSize)
	if err != nil {
		lease.Close()
		return hal.InterruptPipe{}, err
	}

	data := make(chan []byte, 4)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer close(data)
		defer cancel()
		buf := make([]byte, maxPacketSize)
		for {
			n, err := ep.ReadContext(ctx, buf)
			if err != nil {
				return
			}
			payload := make([]byte, n)
			copy(payload, buf[:n])
			select {
			case data <- payload:
			case <-ctx.Done():
				return
			}
		}
	}()

	return hal.NewInterruptPipe(lease, data), nil
}

// SetDeviceAddress implements hal.Controller. libusb devices already
// carry the address the OS assigned during its own enumeration, so
// this is a no-op bookkeeping call; the Controller keys its device
// table by that OS-assigned address instead of one it controls.
func (c *Controller) SetDeviceAddress(ctx context.Context, newAddr hal.DeviceAddress) error {
	return nil
}

// ClearHalt implements hal.Controller by sending CLEAR_FEATURE
// (ENDPOINT_HALT) directly, since gousb's Endpoint types expose no
// clear-halt call of their own.
func (c *Controller) ClearHalt(addr hal.DeviceAddress, endpoint uint8) error {
	od := c.find(addr)
	if od == nil {
		return pkg.ErrNoDevice
	}
	const (
		requestTypeOut       = 0x02 // host-to-device, standard, endpoint
		requestClearFeature  = 0x01
		featureEndpointHalt  = 0x00
	)
	_, err := od.dev.Control(requestTypeOut, requestClearFeature, featureEndpointHalt, uint16(endpoint), nil)
	return err
}

// Close releases the libusb context and every open device.
func (c *Controller) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	c.mu.Lock()
	for addr, od := range c.devices {
		od.close()
		delete(c.devices, addr)
	}
	c.mu.Unlock()

	close(c.statusCh)
	return c.ctx.Close()
}

// isStall reports whether err represents a stalled transfer. gousb
// surfaces a stall as an error whose text names the libusb
// LIBUSB_TRANSFER_STALL condition; matching by substring avoids a hard
// dependency on the exact error type gousb returns across versions.
func isStall(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "stall")
}

var _ hal.Controller = (*Controller)(nil)
