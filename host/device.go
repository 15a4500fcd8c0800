package host

import (
	"context"
	"sync"

	"github.com/ardnew/usbhost/host/descriptor"
	"github.com/ardnew/usbhost/host/hal"
	"github.com/ardnew/usbhost/pkg"
	"github.com/ardnew/usbhost/pkg/bitset"
)

// UsbDevice represents a connected USB device from the host's perspective.
// A handle is invalidated when its address's Topology slot is cleared;
// subsequent transfers return pkg.ErrNoDevice.
type UsbDevice struct {
	bus     *Bus
	address uint8
	parentHub  uint8
	parentPort uint8
	speed   hal.Speed

	mu sync.RWMutex

	ep0MaxPacketSize uint16

	info       descriptor.Device
	config     descriptor.Configuration
	interfaces []descriptor.Interface
	endpoints  []descriptor.Endpoint
	strings    [MaxStringsPerDevice]string

	configurationValue uint8
	state              DeviceState

	// openEndpoints tracks which endpoint numbers (0-31, by descriptor
	// address low nibble plus direction bit folded to bit index) have been
	// opened, so a handle cannot be double-opened.
	openEndpoints bitset.BitSet
	toggles       [32]hal.Toggle

	isHub bool
	// hubNumPorts and hubInterruptEP are populated during HubInspection.
	hubNumPorts    uint8
	hubInterruptEP uint8

	invalidated bool
}

func newUsbDevice(bus *Bus, parentHub, parentPort uint8, address uint8, speed hal.Speed) *UsbDevice {
	ep0Speed := SpeedFull
	switch speed {
	case hal.SpeedLow:
		ep0Speed = SpeedLow
	case hal.SpeedHigh:
		ep0Speed = SpeedHigh
	}
	return &UsbDevice{
		bus:              bus,
		address:          address,
		parentHub:        parentHub,
		parentPort:       parentPort,
		speed:            speed,
		state:            DeviceStateDefault,
		ep0MaxPacketSize: ep0Speed.MaxPacketSize0(),
	}
}

// Address returns the device's assigned address.
func (d *UsbDevice) Address() uint8 { return d.address }

// Speed returns the negotiated connection speed.
func (d *UsbDevice) Speed() hal.Speed { return d.speed }

// VendorID returns the device vendor ID.
func (d *UsbDevice) VendorID() uint16 { return d.info.VendorID }

// ProductID returns the device product ID.
func (d *UsbDevice) ProductID() uint16 { return d.info.ProductID }

// DeviceClass returns the device class code.
func (d *UsbDevice) DeviceClass() uint8 { return d.info.DeviceClass }

// Descriptor returns the parsed device descriptor.
func (d *UsbDevice) Descriptor() descriptor.Device { return d.info }

// Interfaces returns the interface descriptors of the active configuration.
func (d *UsbDevice) Interfaces() []descriptor.Interface { return d.interfaces }

// Endpoints returns the endpoint descriptors of the active configuration.
func (d *UsbDevice) Endpoints() []descriptor.Endpoint { return d.endpoints }

// String returns a cached string descriptor by index.
func (d *UsbDevice) String(index uint8) string {
	if index == 0 || int(index) >= len(d.strings) {
		return ""
	}
	return d.strings[index]
}

// State returns the current device state.
func (d *UsbDevice) State() DeviceState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// valid reports whether this handle's Topology slot is still present.
func (d *UsbDevice) valid() bool {
	return d.bus.topology.Present(d.address)
}

func (d *UsbDevice) invalidate() {
	d.mu.Lock()
	d.invalidated = true
	d.state = DeviceStateDetached
	d.mu.Unlock()
}

func (d *UsbDevice) checkValid() error {
	d.mu.RLock()
	invalidated := d.invalidated
	d.mu.RUnlock()
	if invalidated || !d.valid() {
		return pkg.ErrNoDevice
	}
	return nil
}

// ControlTransfer issues a control transfer to this device.
func (d *UsbDevice) ControlTransfer(ctx context.Context, setup *hal.SetupPacket, data []byte) (int, error) {
	if err := d.checkValid(); err != nil {
		return 0, err
	}
	return d.bus.ctrl.ControlTransfer(ctx, hal.DeviceAddress(d.address), d.ep0MaxPacketSize, setup, data)
}

// SetConfiguration selects a configuration by value.
func (d *UsbDevice) SetConfiguration(ctx context.Context, value uint8) error {
	setup := hal.SetupPacket{
		RequestType: RequestTypeOut | RequestTypeStandard | RequestTypeDevice,
		Request:     RequestSetConfiguration,
		Value:       uint16(value),
	}
	if _, err := d.ControlTransfer(ctx, &setup, nil); err != nil {
		return err
	}
	d.mu.Lock()
	d.configurationValue = value
	if value > 0 {
		d.state = DeviceStateConfigured
	} else {
		d.state = DeviceStateAddress
	}
	d.mu.Unlock()
	return nil
}

// endpointBit maps an endpoint address (direction bit + number) to a bit
// index in the 32-bit openEndpoints set: numbers 0-15 for OUT, 16-31 for IN.
func endpointBit(epAddr uint8) int {
	n := int(epAddr & 0x0F)
	if epAddr&0x80 != 0 {
		return n + 16
	}
	return n
}

// OpenInEndpoint reserves an IN endpoint for bulk transfers, returning
// pkg.ErrBusy if it is already open.
func (d *UsbDevice) OpenInEndpoint(epAddr uint8) (*EndpointHandle, error) {
	return d.openEndpoint(epAddr | 0x80)
}

// OpenOutEndpoint reserves an OUT endpoint for bulk transfers.
func (d *UsbDevice) OpenOutEndpoint(epAddr uint8) (*EndpointHandle, error) {
	return d.openEndpoint(epAddr &^ 0x80)
}

func (d *UsbDevice) openEndpoint(epAddr uint8) (*EndpointHandle, error) {
	bit := endpointBit(epAddr)
	d.mu.Lock()
	if d.openEndpoints.Contains(bit) {
		d.mu.Unlock()
		return nil, pkg.ErrBusy
	}
	d.openEndpoints.Set(bit)
	d.toggles[bit] = 0
	d.mu.Unlock()

	ep := d.lookupEndpoint(epAddr)
	return &EndpointHandle{dev: d, addr: epAddr, bit: bit, maxPacketSize: ep.MaxPacketSize}, nil
}

func (d *UsbDevice) lookupEndpoint(addr uint8) descriptor.Endpoint {
	for _, ep := range d.endpoints {
		if ep.EndpointAddress == addr {
			return ep
		}
	}
	return descriptor.Endpoint{EndpointAddress: addr, MaxPacketSize: 64}
}

// closeEndpoint releases the reservation for bit.
func (d *UsbDevice) closeEndpoint(bit int) {
	d.mu.Lock()
	d.openEndpoints.Clear(bit)
	d.mu.Unlock()
}

// EndpointHandle is a reserved endpoint on a UsbDevice, carrying its data
// toggle cell. Only one handle may exist per (device, endpoint, direction)
// tuple at a time.
type EndpointHandle struct {
	dev           *UsbDevice
	addr          uint8
	bit           int
	maxPacketSize uint16
}

// Address returns the endpoint address, direction bit included.
func (h *EndpointHandle) Address() uint8 { return h.addr }

// BulkTransfer performs a bulk transfer on this endpoint in its fixed
// direction, threading the stored data toggle.
func (h *EndpointHandle) BulkTransfer(ctx context.Context, data []byte) (int, error) {
	if err := h.dev.checkValid(); err != nil {
		return 0, err
	}
	d := h.dev
	d.mu.Lock()
	toggle := d.toggles[h.bit]
	d.mu.Unlock()

	var n int
	var err error
	if h.addr&0x80 != 0 {
		n, err = d.bus.ctrl.BulkIn(ctx, hal.DeviceAddress(d.address), h.addr&0x0F, h.maxPacketSize, data, hal.TransferBulk, &toggle)
	} else {
		n, err = d.bus.ctrl.BulkOut(ctx, hal.DeviceAddress(d.address), h.addr&0x0F, h.maxPacketSize, data, hal.TransferBulk, &toggle)
	}

	d.mu.Lock()
	d.toggles[h.bit] = toggle
	d.mu.Unlock()

	return n, err
}

// ClearHalt resets the endpoint's data toggle to DATA0 and issues
// CLEAR_FEATURE(ENDPOINT_HALT) to the device.
func (h *EndpointHandle) ClearHalt(ctx context.Context) error {
	d := h.dev
	setup := hal.SetupPacket{
		RequestType: RequestTypeOut | RequestTypeStandard | RequestTypeEndpoint,
		Request:     RequestClearFeature,
		Value:       FeatureEndpointHalt,
		Index:       uint16(h.addr),
	}
	if _, err := d.ControlTransfer(ctx, &setup, nil); err != nil {
		return err
	}
	if err := d.bus.ctrl.ClearHalt(hal.DeviceAddress(d.address), h.addr); err != nil {
		return err
	}
	d.mu.Lock()
	d.toggles[h.bit] = 0
	d.mu.Unlock()
	return nil
}

// Close releases the endpoint reservation so it can be reopened.
func (h *EndpointHandle) Close() error {
	h.dev.closeEndpoint(h.bit)
	return nil
}
