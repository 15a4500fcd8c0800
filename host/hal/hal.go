// Package hal defines the Hardware Abstraction Layer interface a USB host
// controller driver implements. The HAL exposes only the primitives the
// host stack's enumeration state machine and transfer router need:
// root-port presence, control/bulk transfers, and bounded interrupt pipe
// allocation. All protocol logic (enumeration, hub walking, class drivers)
// lives above this boundary.
package hal

import (
	"context"

	"github.com/ardnew/usbhost/pkg"
	"github.com/ardnew/usbhost/pkg/respool"
)

// Speed represents the USB connection speed.
type Speed uint8

// USB speed constants (USB 2.0 Specification).
const (
	SpeedUnknown Speed = iota // Not connected or unknown
	SpeedLow                  // Low Speed (1.5 Mbit/s)
	SpeedFull                 // Full Speed (12 Mbit/s)
	SpeedHigh                 // High Speed (480 Mbit/s)
)

// String returns a human-readable speed name.
func (s Speed) String() string {
	switch s {
	case SpeedLow:
		return "Low Speed"
	case SpeedFull:
		return "Full Speed"
	case SpeedHigh:
		return "High Speed"
	default:
		return "Unknown"
	}
}

// DeviceStatus is a root-port presence observation, the element type of the
// lazy stream DeviceDetect yields.
type DeviceStatus struct {
	Present bool
	Speed   Speed
}

// SetupPacket represents a USB SETUP packet in the HAL layer.
type SetupPacket struct {
	RequestType uint8  // Request characteristics
	Request     uint8  // Specific request
	Value       uint16 // Request-specific value
	Index       uint16 // Request-specific index
	Length      uint16 // Number of bytes to transfer
}

// SetupPacketSize is the size of a USB SETUP packet in bytes.
const SetupPacketSize = 8

// ParseSetupPacket parses raw bytes into a SetupPacket.
// Returns false if data is too short.
func ParseSetupPacket(data []byte, out *SetupPacket) bool {
	if len(data) < SetupPacketSize {
		return false
	}
	out.RequestType = data[0]
	out.Request = data[1]
	out.Value = uint16(data[2]) | uint16(data[3])<<8
	out.Index = uint16(data[4]) | uint16(data[5])<<8
	out.Length = uint16(data[6]) | uint16(data[7])<<8
	return true
}

// MarshalTo writes the setup packet to buf.
// Returns the number of bytes written (8), or 0 if buf is too small.
func (s *SetupPacket) MarshalTo(buf []byte) int {
	if len(buf) < SetupPacketSize {
		return 0
	}
	buf[0] = s.RequestType
	buf[1] = s.Request
	buf[2] = byte(s.Value)
	buf[3] = byte(s.Value >> 8)
	buf[4] = byte(s.Index)
	buf[5] = byte(s.Index >> 8)
	buf[6] = byte(s.Length)
	buf[7] = byte(s.Length >> 8)
	return SetupPacketSize
}

// TransferType indicates the type of USB transfer.
type TransferType uint8

// Transfer type constants.
const (
	TransferControl     TransferType = 0 // Control transfer
	TransferIsochronous TransferType = 1 // Isochronous transfer
	TransferBulk        TransferType = 2 // Bulk transfer
	TransferInterrupt   TransferType = 3 // Interrupt transfer
)

// EndpointDescriptor describes an endpoint for HAL configuration.
type EndpointDescriptor struct {
	Address       uint8  // Endpoint address including direction bit
	Attributes    uint8  // Transfer type and sync/usage flags
	MaxPacketSize uint16 // Maximum packet size
	Interval      uint8  // Polling interval for interrupt/isochronous
}

// Number returns the endpoint number (0-15).
func (e *EndpointDescriptor) Number() uint8 {
	return e.Address & 0x0F
}

// IsIn returns true if this is an IN endpoint (device to host).
func (e *EndpointDescriptor) IsIn() bool {
	return e.Address&0x80 != 0
}

// TransferType returns the transfer type.
func (e *EndpointDescriptor) TransferType() TransferType {
	return TransferType(e.Attributes & 0x03)
}

// DeviceAddress represents a USB device address (1-127, 0 reserved).
type DeviceAddress uint8

// Toggle is a data toggle bit (DATA0/DATA1) threaded by reference through
// successive bulk transfers on the same endpoint, so the HAL both reads
// and writes it back per spec's toggle_cell contract.
type Toggle uint8

// Flip returns the opposite toggle value.
func (t Toggle) Flip() Toggle { return t ^ 1 }

// InterruptPipe is a handle to a reserved interrupt endpoint resource. The
// pipe delivers status payloads on Data until Close is called or the
// device disconnects, at which point Data is closed.
type InterruptPipe struct {
	lease *respool.Lease
	Data  <-chan []byte
}

// Slot returns the underlying resource pool slot index, used by tests and
// diagnostics to correlate a pipe with hardware resource usage.
func (p *InterruptPipe) Slot() int {
	if p.lease == nil {
		return -1
	}
	return p.lease.Slot()
}

// Close releases the pipe's pool slot. Idempotent.
func (p *InterruptPipe) Close() error {
	if p.lease == nil {
		return nil
	}
	return p.lease.Close()
}

// NewInterruptPipe constructs an InterruptPipe from a pool lease and its
// delivery channel. Controller implementations use this to hand pipes back
// to callers of AllocInterruptPipe/TryAllocInterruptPipe.
func NewInterruptPipe(lease *respool.Lease, data <-chan []byte) InterruptPipe {
	return InterruptPipe{lease: lease, Data: data}
}

// Controller is the hardware abstraction a host controller driver
// implements. Every method must be safe to call from a single cooperative
// task; drivers may use interrupts or background goroutines internally to
// complete transfers and feed DeviceDetect/interrupt pipe channels.
type Controller interface {
	// DeviceDetect returns a channel of root-port presence observations.
	// The channel is closed when ctx is done.
	DeviceDetect(ctx context.Context) <-chan DeviceStatus

	// ResetRootPort drives or releases reset signaling on the root port.
	ResetRootPort(assert bool) error

	// ControlTransfer performs a control transfer to a device at addr using
	// the given EP0 max packet size.
	ControlTransfer(ctx context.Context, addr DeviceAddress, maxPacketSize uint16, setup *SetupPacket, data []byte) (int, error)

	// BulkIn performs an IN bulk or interrupt-style polled transfer,
	// threading the data toggle by reference.
	BulkIn(ctx context.Context, addr DeviceAddress, endpoint uint8, maxPacketSize uint16, data []byte, tt TransferType, toggle *Toggle) (int, error)

	// BulkOut is the OUT-direction symmetric counterpart of BulkIn.
	BulkOut(ctx context.Context, addr DeviceAddress, endpoint uint8, maxPacketSize uint16, data []byte, tt TransferType, toggle *Toggle) (int, error)

	// AllocInterruptPipe reserves an interrupt pipe, suspending the caller
	// until one is free or ctx is done.
	AllocInterruptPipe(ctx context.Context, addr DeviceAddress, endpoint uint8, maxPacketSize uint16, intervalMs uint8) (InterruptPipe, error)

	// TryAllocInterruptPipe is the non-suspending variant, returning
	// pkg.ErrAllPipesInUse immediately if none are free.
	TryAllocInterruptPipe(addr DeviceAddress, endpoint uint8, maxPacketSize uint16, intervalMs uint8) (InterruptPipe, error)

	// SetDeviceAddress assigns an address to the device currently at
	// address 0. Called once during AddressAssignment.
	SetDeviceAddress(ctx context.Context, newAddr DeviceAddress) error

	// ClearHalt resets an endpoint's halt condition at the hardware level.
	ClearHalt(addr DeviceAddress, endpoint uint8) error

	// Close releases all resources held by the controller.
	Close() error
}

// ErrorKind is an alias retained for HAL implementations that prefer to
// report errors through the typed taxonomy instead of (or in addition to)
// the pkg sentinel errors directly.
type ErrorKind = pkg.HCIErrorKind
