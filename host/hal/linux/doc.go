// Package linux provides a USB host HAL implementation for Linux using usbfs.
//
// This HAL uses the Linux usbfs interface (/dev/bus/usb/) for USB device access,
// sysfs (/sys/bus/usb/devices/) for device discovery, and netlink for hotplug
// event monitoring. It is designed for pure Go with no cgo dependencies.
//
// # Requirements
//
// To use this HAL, the user running the application must have read/write access
// to the USB device nodes in /dev/bus/usb/. This typically requires either:
//   - Running as root
//   - Appropriate udev rules granting access to the user/group
//
// # Architecture
//
// Control and bulk transfers, and the reads behind interrupt pipes, are
// synchronous USBDEVFS_CONTROL and USBDEVFS_BULK ioctls. An epoll loop
// watches the netlink hotplug socket and each open device file descriptor;
// on a device event it drains completed URBs with USBDEVFS_REAPURBNDELAY.
//
// Device tracking uses pre-allocated fixed-size arrays with free-list management
// for zero-allocation operation in the hot path.
//
// # Supported Features
//
//   - Control, bulk, and interrupt transfers
//   - Device hotplug detection via netlink
//   - Interface claiming with kernel driver detachment
//   - USB 1.1 and USB 2.0 speeds (Low, Full, High)
package linux
