// Package host implements a pure-Go USB 1.1/2.0 host stack.
//
// It is platform-agnostic and interacts with hardware via the
// [hal.Controller] interface defined in the
// github.com/ardnew/usbhost/host/hal package. The Controller exposes
// generic operations for root-port detection, control/bulk transfers, and
// bounded interrupt pipe allocation, allowing platform vendors to provide
// concrete implementations without changing the host stack.
//
// # Architecture
//
// The host stack is organized into several layers:
//
//   - Bus drives the per-port enumeration state machine and hub polling
//   - UsbDevice represents a connected USB device with its descriptors
//   - EndpointHandle and Pipe handle bulk transfer execution
//   - host/descriptor performs wire-order descriptor parsing
//   - host/identify matches class descriptors (MSC, HID) to endpoints
//   - pkg/topology tracks address and parent/port bookkeeping
//
// # Enumeration
//
// A hotplug event on the root port or a hub status-change interrupt
// drives a port through Idle -> Debounce -> Reset -> AddressAssignment ->
// DeviceQuery -> HubInspection. A Stall during AddressAssignment's
// descriptor fetch triggers one retry after Config.RetryDelay; a second
// consecutive failure is fatal for that port and is reported on
// Bus.DeviceEvents as an EventEnumerationError.
//
// # Device Management
//
// The host stack handles:
//
//   - Device detection on port connect/disconnect
//   - Bus enumeration and asymmetric address assignment (hubs ascend from
//     1, non-hub devices descend from the top of the address space)
//   - Descriptor retrieval and parsing
//   - Configuration selection and endpoint reservation
//   - Hub status-change polling and disconnect cascade
//
// # Zero-Allocation Design
//
// Enumeration favors fixed-size arrays and caller-provided buffers for
// transfers where the teacher codebase's bare-metal heritage already did
// so; class drivers above this layer may allocate freely.
//
// # Example
//
//	bus := host.New(ctrl, host.DefaultConfig())
//	bus.Start(ctx)
//	defer bus.Stop()
//
//	for ev := range bus.DeviceEvents() {
//	    if ev.Kind == host.EventConnect {
//	        desc := ev.Device.Descriptor()
//	        log.Printf("connected %04x:%04x", desc.VendorID, desc.ProductID)
//	    }
//	}
//
// A scriptable fake Controller for testing is available in
// [github.com/ardnew/usbhost/host/hal/fake].
package host
