// Package hal defines the Hardware Abstraction Layer interface for USB host stacks.
//
// The HAL provides a platform-agnostic interface between the host stack and
// underlying USB host controller hardware. Platform integrators implement
// this interface to run the host stack against their specific hardware or
// test harness.
//
// # Design Principles
//
// The HAL is designed to be:
//   - Minimal: Only expose operations essential for USB host functionality
//   - Generic: No platform-specific assumptions or details
//   - Flexible: Adaptable to a wide range of hardware configurations
//
// The host stack (package host) implements all USB protocol logic, leaving
// the HAL to handle only low-level hardware interactions.
//
// # Interface Overview
//
// The [Controller] interface defines the contract for host-side USB
// operations:
//   - Root port reset and device connect/disconnect detection
//   - Control transfers for device enumeration and class requests
//   - Bulk and interrupt transfers with explicit data-toggle state
//   - Bounded interrupt pipe allocation for hub status-change monitoring
//
// # Implementing a Controller
//
// To implement a Controller for a new platform:
//  1. Create a type that implements all [Controller] methods
//  2. Handle hardware-specific initialization and hotplug detection
//  3. Implement control, bulk, and interrupt transfers
//  4. Track data toggles per (device, endpoint) and honor [Toggle].Flip
//
// # Zero-Allocation Design
//
// Controller implementations should follow zero-allocation patterns where
// feasible:
//   - Reuse buffers the stack provides
//   - Avoid allocations in the steady-state transfer path
//   - Use fixed-size internal buffers where dynamic allocation would occur
//
// This package ships three implementations: [github.com/ardnew/usbhost/host/hal/fake]
// (an in-process synthetic Controller for tests), [github.com/ardnew/usbhost/host/hal/linux]
// (pure-Go usbfs), and [github.com/ardnew/usbhost/host/hal/libusb] (cgo-backed
// libusb via gousb).
package hal
