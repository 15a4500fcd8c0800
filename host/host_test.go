package host

import (
	"context"
	"testing"
	"time"

	"github.com/ardnew/usbhost/host/descriptor"
	"github.com/ardnew/usbhost/host/hal"
	"github.com/ardnew/usbhost/host/hal/fake"
	"github.com/ardnew/usbhost/pkg"
)

// testConfig returns a Config with no real delays, so enumeration tests run
// instantly.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.DelayFunc = func(ctx context.Context, d time.Duration) {}
	return cfg
}

func buildDeviceDescriptor(vendor, product uint16, class uint8) []byte {
	buf := make([]byte, descriptor.DeviceSize)
	buf[0] = descriptor.DeviceSize
	buf[1] = descriptor.TypeDevice
	buf[7] = 64 // bMaxPacketSize0
	buf[8] = byte(vendor)
	buf[9] = byte(vendor >> 8)
	buf[10] = byte(product)
	buf[11] = byte(product >> 8)
	buf[4] = class
	buf[17] = 1 // NumConfigurations
	return buf
}

// simpleDeviceHandler answers GET_DESCRIPTOR(Device) at every requested
// length and SET_ADDRESS, for a single non-hub device.
func simpleDeviceHandler(desc []byte) fake.ControlHandler {
	return func(addr hal.DeviceAddress, setup *hal.SetupPacket, data []byte) (int, error) {
		switch setup.Request {
		case RequestGetDescriptor:
			if setup.Value>>8 != DescriptorTypeDevice {
				return 0, pkg.ErrNotSupported
			}
			n := int(setup.Length)
			if n > len(desc) {
				n = len(desc)
			}
			copy(data, desc[:n])
			return n, nil
		default:
			return 0, nil
		}
	}
}

func TestBusEnumeratesRootDevice(t *testing.T) {
	ctrl := fake.New(4)
	desc := buildDeviceDescriptor(0x1234, 0x5678, 0x00)
	ctrl.OnControl = simpleDeviceHandler(desc)

	bus := New(ctrl, testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	bus.Start(ctx)

	ctrl.Connect(hal.SpeedFull)

	select {
	case ev := <-bus.DeviceEvents():
		if ev.Kind != EventConnect {
			t.Fatalf("event kind = %v, want EventConnect", ev.Kind)
		}
		if ev.Device.VendorID() != 0x1234 || ev.Device.ProductID() != 0x5678 {
			t.Errorf("vendor/product = %04x:%04x, want 1234:5678", ev.Device.VendorID(), ev.Device.ProductID())
		}
		// Non-hub addresses are drawn descending from the top.
		if ev.Device.Address() != 31 {
			t.Errorf("address = %d, want 31 (top of non-hub range)", ev.Device.Address())
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for connect event")
	}

	bus.Stop()
}

func TestBusEnumerationFailsOnPersistentStall(t *testing.T) {
	ctrl := fake.New(4)
	ctrl.OnControl = func(addr hal.DeviceAddress, setup *hal.SetupPacket, data []byte) (int, error) {
		return 0, pkg.ErrStall
	}

	bus := New(ctrl, testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	bus.Start(ctx)

	ctrl.Connect(hal.SpeedFull)

	select {
	case ev := <-bus.DeviceEvents():
		if ev.Kind != EventEnumerationError {
			t.Fatalf("event kind = %v, want EventEnumerationError", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for enumeration error event")
	}

	bus.Stop()
}

func TestBusDisconnectInvalidatesDevice(t *testing.T) {
	ctrl := fake.New(4)
	desc := buildDeviceDescriptor(0x1234, 0x5678, 0x00)
	ctrl.OnControl = simpleDeviceHandler(desc)

	bus := New(ctrl, testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	bus.Start(ctx)

	ctrl.Connect(hal.SpeedFull)

	var dev *UsbDevice
	select {
	case ev := <-bus.DeviceEvents():
		dev = ev.Device
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for connect event")
	}

	ctrl.Disconnect()

	select {
	case ev := <-bus.DeviceEvents():
		if ev.Kind != EventDisconnect {
			t.Fatalf("event kind = %v, want EventDisconnect", ev.Kind)
		}
		if ev.Address != dev.Address() {
			t.Errorf("disconnect address = %d, want %d", ev.Address, dev.Address())
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for disconnect event")
	}

	if _, err := dev.ControlTransfer(ctx, &hal.SetupPacket{}, nil); err != pkg.ErrNoDevice {
		t.Errorf("ControlTransfer after disconnect = %v, want pkg.ErrNoDevice", err)
	}

	bus.Stop()
}

func TestPipeReadWrite(t *testing.T) {
	ctrl := fake.New(4)
	echo := make(chan []byte, 1)
	ctrl.OnBulk = func(addr hal.DeviceAddress, endpoint uint8, data []byte, out bool) (int, error) {
		if out {
			buf := make([]byte, len(data))
			copy(buf, data)
			echo <- buf
			return len(data), nil
		}
		buf := <-echo
		return copy(data, buf), nil
	}

	dev := newTestDevice(ctrl)
	dev.endpoints = []descriptor.Endpoint{
		{EndpointAddress: 0x81, Attributes: 0x02, MaxPacketSize: 64},
		{EndpointAddress: 0x02, Attributes: 0x02, MaxPacketSize: 64},
	}

	in, err := dev.OpenInEndpoint(0x01)
	if err != nil {
		t.Fatalf("OpenInEndpoint: %v", err)
	}
	out, err := dev.OpenOutEndpoint(0x02)
	if err != nil {
		t.Fatalf("OpenOutEndpoint: %v", err)
	}

	pipe := NewPipe(in, out, 64)
	defer pipe.Close()

	ctx := context.Background()
	if _, err := pipe.Write(ctx, []byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	buf := make([]byte, 5)
	n, err := pipe.Read(ctx, buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Errorf("Read = %q, want %q", buf[:n], "hello")
	}
}
