package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ardnew/usbhost/host"
	"github.com/ardnew/usbhost/host/class/msc"
	"github.com/ardnew/usbhost/host/class/scsi"
	"github.com/ardnew/usbhost/host/hal"
)

// openBus constructs the selected HAL backend and a Bus over it, and
// starts enumeration. The caller must invoke the returned stop func
// (which stops the Bus and closes the backend) when done.
func openBus(ctx context.Context) (*host.Bus, func(), error) {
	ctrl, err := newController(ctx)
	if err != nil {
		return nil, nil, err
	}

	bus := host.New(ctrl, host.DefaultConfig())
	bus.Start(ctx)

	stop := func() {
		bus.Stop()
		ctrl.Close()
	}
	return bus, stop, nil
}

// waitForDevices collects every Connect event the Bus delivers within
// timeout, returning once the timeout elapses or ctx is canceled. It
// is used by commands that want a snapshot of whatever is attached
// rather than reacting to hotplug forever.
func waitForDevices(ctx context.Context, bus *host.Bus, timeout time.Duration) []*host.UsbDevice {
	deadline := time.After(timeout)
	var devices []*host.UsbDevice
	for {
		select {
		case <-ctx.Done():
			return devices
		case <-deadline:
			return devices
		case ev, ok := <-bus.DeviceEvents():
			if !ok {
				return devices
			}
			if ev.Kind == host.EventConnect {
				devices = append(devices, ev.Device)
			}
		}
	}
}

// waitForFirstDevice returns the first device the Bus enumerates
// within timeout, or an error if none appears.
func waitForFirstDevice(ctx context.Context, bus *host.Bus, timeout time.Duration) (*host.UsbDevice, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("usbtool: no device enumerated within %s", timeout)
		case ev, ok := <-bus.DeviceEvents():
			if !ok {
				return nil, fmt.Errorf("usbtool: device event stream closed before a device appeared")
			}
			if ev.Kind == host.EventConnect {
				return ev.Device, nil
			}
		}
	}
}

// massStorageEndpoints locates the first bulk IN/OUT endpoint pair
// among dev's active configuration, which is sufficient for the
// common case of a single-interface Bulk-Only Transport mass storage
// device (one BOT interface, exactly one bulk IN and one bulk OUT
// endpoint, no other interfaces sharing the configuration).
func massStorageEndpoints(dev *host.UsbDevice) (inAddr, outAddr uint8, err error) {
	var foundIn, foundOut bool
	for _, ep := range dev.Endpoints() {
		if ep.TransferType() != transferTypeBulk {
			continue
		}
		if ep.IsIn() {
			inAddr, foundIn = ep.EndpointAddress, true
		} else {
			outAddr, foundOut = ep.EndpointAddress, true
		}
	}
	if !foundIn || !foundOut {
		return 0, 0, fmt.Errorf("usbtool: device %d has no bulk IN/OUT endpoint pair", dev.Address())
	}
	return inAddr, outAddr, nil
}

const transferTypeBulk = 0x02

// openBlockDevice configures dev's first configuration, opens its
// bulk endpoints, and wraps them in a SCSI BlockDevice over a
// Bulk-Only Transport session for LUN 0. The returned close func
// releases the opened endpoint handles.
func openBlockDevice(ctx context.Context, bus *host.Bus, dev *host.UsbDevice) (*scsi.BlockDevice, func(), error) {
	if err := bus.Configure(ctx, dev, 1); err != nil {
		return nil, nil, fmt.Errorf("usbtool: configuring device %d: %w", dev.Address(), err)
	}

	inAddr, outAddr, err := massStorageEndpoints(dev)
	if err != nil {
		return nil, nil, err
	}

	epIn, err := dev.OpenInEndpoint(inAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("usbtool: opening bulk IN endpoint: %w", err)
	}
	epOut, err := dev.OpenOutEndpoint(outAddr)
	if err != nil {
		epIn.Close()
		return nil, nil, fmt.Errorf("usbtool: opening bulk OUT endpoint: %w", err)
	}

	transport := msc.NewTransport(epOut, epIn)
	block := scsi.New(transport, 0)

	closeFn := func() {
		epOut.Close()
		epIn.Close()
	}
	return block, closeFn, nil
}

func speedName(s hal.Speed) string {
	switch s {
	case hal.SpeedLow:
		return "low"
	case hal.SpeedFull:
		return "full"
	case hal.SpeedHigh:
		return "high"
	default:
		return "unknown"
	}
}
