package host

import (
	"context"
	"sync"
	"time"

	"github.com/ardnew/usbhost/host/descriptor"
	"github.com/ardnew/usbhost/host/hal"
	"github.com/ardnew/usbhost/pkg"
	"github.com/ardnew/usbhost/pkg/topology"
)

// Config tunes the enumeration state machine's timing and retry behavior.
// The zero value is invalid; use DefaultConfig.
type Config struct {
	// DelayFunc suspends the calling goroutine for d, honoring ctx
	// cancellation. Tests inject a fast or instrumented implementation;
	// production code uses a context-aware time.Sleep wrapper.
	DelayFunc func(ctx context.Context, d time.Duration)

	DebounceDelay time.Duration
	SettleDelay   time.Duration
	RetryDelay    time.Duration

	// NAKRetryBudget holds the NAK retry budget (DefaultNAKRetryBudget by
	// default). No code in this package reads it. The Stall retry during
	// AddressAssignment does not use it either: that is always a single
	// retry after RetryDelay.
	NAKRetryBudget int

	// InterruptPipeSlots bounds the number of hub status-change interrupt
	// pipes the bus's HCI can have outstanding at once.
	InterruptPipeSlots int
}

// DefaultConfig returns a Config with production timing values.
func DefaultConfig() Config {
	return Config{
		DelayFunc: func(ctx context.Context, d time.Duration) {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-t.C:
			case <-ctx.Done():
			}
		},
		DebounceDelay:      DefaultDebounceDelayMs * time.Millisecond,
		SettleDelay:        DefaultSettleDelayMs * time.Millisecond,
		RetryDelay:         DefaultRetryDelayMs * time.Millisecond,
		NAKRetryBudget:     DefaultNAKRetryBudget,
		InterruptPipeSlots: 8,
	}
}

// EventKind distinguishes DeviceEvent variants.
type EventKind int

// Event kinds emitted on Bus.DeviceEvents.
const (
	EventConnect EventKind = iota
	EventDisconnect
	EventEnumerationError
)

// DeviceEvent is emitted for every enumeration outcome.
type DeviceEvent struct {
	Kind       EventKind
	Device     *UsbDevice // set for EventConnect
	Address    uint8      // set for EventDisconnect
	ParentHub  uint8      // set for EventEnumerationError
	ParentPort uint8      // set for EventEnumerationError
	Err        error      // set for EventEnumerationError
}

// hubState tracks one active hub's interrupt stream and port count.
type hubState struct {
	addr     uint8
	numPorts uint8
	stream   *InterruptStream
}

// Bus is the enumeration core: it owns the Topology, drives the per-port
// enumeration state machine on hotplug, walks hub status-change packets,
// and routes transfers through the HCI's bounded resources.
type Bus struct {
	ctrl     hal.Controller
	topology *topology.Topology
	cfg      Config

	mu      sync.RWMutex
	devices map[uint8]*UsbDevice
	hubs    map[uint8]*hubState

	events chan DeviceEvent

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Bus over the given controller.
func New(ctrl hal.Controller, cfg Config) *Bus {
	return &Bus{
		ctrl:     ctrl,
		topology: topology.New(),
		cfg:      cfg,
		devices:  make(map[uint8]*UsbDevice),
		hubs:     make(map[uint8]*hubState),
		events:   make(chan DeviceEvent, 32),
	}
}

// DeviceEvents returns the stream of enumeration outcomes. The channel is
// closed when the bus is stopped.
func (b *Bus) DeviceEvents() <-chan DeviceEvent { return b.events }

// Start begins monitoring the root port for hotplug and launches the
// per-port enumeration state machine.
func (b *Bus) Start(ctx context.Context) {
	b.ctx, b.cancel = context.WithCancel(ctx)
	b.wg.Add(1)
	go b.monitorRootPort()
}

// Stop cancels all enumeration and hub-polling goroutines and closes the
// event stream once they exit.
func (b *Bus) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
	close(b.events)
}

// Device returns the device at addr, or nil if none is present.
func (b *Bus) Device(addr uint8) *UsbDevice {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.devices[addr]
}

func (b *Bus) emit(ev DeviceEvent) {
	select {
	case b.events <- ev:
	case <-b.ctx.Done():
	}
}

func (b *Bus) monitorRootPort() {
	defer b.wg.Done()
	statuses := b.ctrl.DeviceDetect(b.ctx)
	for {
		select {
		case <-b.ctx.Done():
			return
		case status, ok := <-statuses:
			if !ok {
				return
			}
			if status.Present {
				b.wg.Add(1)
				go func() {
					defer b.wg.Done()
					b.runEnumeration(0, 0, status.Speed)
				}()
			} else {
				b.disconnect(0, 0)
			}
		}
	}
}

// runEnumeration drives one port through Idle->Debounce->Reset->
// AddressAssignment->DeviceQuery->HubInspection, emitting a Connect event
// on success or an EnumerationError and returning the address to Topology
// on failure.
func (b *Bus) runEnumeration(parentHub, parentPort uint8, speed hal.Speed) {
	pkg.LogDebug(pkg.ComponentBus, "enumeration starting",
		"parent_hub", parentHub, "parent_port", parentPort)

	// Debounce
	b.cfg.DelayFunc(b.ctx, b.cfg.DebounceDelay)

	// Reset
	if err := b.resetPort(parentHub, parentPort); err != nil {
		b.fail(parentHub, parentPort, err)
		return
	}

	dev := newUsbDevice(b, parentHub, parentPort, 0, speed)

	// AddressAssignment: discover EP0 packet size via an 8-byte partial
	// device descriptor fetch, retrying once on Stall per the documented
	// recovery policy.
	var buf [MaxDescriptorSize]byte
	setup := hal.SetupPacket{
		RequestType: RequestTypeIn | RequestTypeStandard | RequestTypeDevice,
		Request:     RequestGetDescriptor,
		Value:       uint16(DescriptorTypeDevice) << 8,
		Length:      8,
	}

	n, err := b.fetchWithRetry(dev, &setup, buf[:8])
	if err != nil {
		b.fail(parentHub, parentPort, pkg.ErrEnumerationFailed)
		return
	}
	if n >= 8 && buf[7] != 0 {
		dev.ep0MaxPacketSize = uint16(buf[7])
	}

	// Fetch the full device descriptor while still at address 0, so its
	// class byte is known before Topology.Connect must decide which
	// address range (hub-ascending or non-hub-descending) to draw from.
	setup.Length = descriptor.DeviceSize
	n, err = b.ctrl.ControlTransfer(b.ctx, hal.DeviceAddress(0), dev.ep0MaxPacketSize, &setup, buf[:descriptor.DeviceSize])
	if err != nil || n < descriptor.DeviceSize {
		b.fail(parentHub, parentPort, pkg.ErrEnumerationFailed)
		return
	}
	descriptor.ParseDevice(buf[:n], &dev.info)

	addr, err := b.topology.Connect(parentHub, parentPort, dev.info.DeviceClass == ClassHub)
	if err != nil {
		b.fail(parentHub, parentPort, err)
		return
	}

	if err := b.ctrl.SetDeviceAddress(b.ctx, hal.DeviceAddress(addr)); err != nil {
		b.topology.Disconnect(parentHub, parentPort)
		b.fail(parentHub, parentPort, err)
		return
	}
	dev.address = addr
	dev.state = DeviceStateAddress

	b.cfg.DelayFunc(b.ctx, b.cfg.SettleDelay)

	b.readStringDescriptors(dev, buf[:])

	b.mu.Lock()
	b.devices[addr] = dev
	b.mu.Unlock()

	pkg.LogInfo(pkg.ComponentBus, "device connected",
		"address", addr, "vendor", dev.info.VendorID, "product", dev.info.ProductID)

	b.emit(DeviceEvent{Kind: EventConnect, Device: dev})

	// HubInspection
	if dev.info.DeviceClass == ClassHub {
		b.inspectHub(dev)
	}
}

// readStringDescriptors fetches and caches the manufacturer, product, and
// serial number string descriptors, converting from UTF-16LE to a plain
// ASCII-subset string. Failures are non-fatal; the device is still usable
// without cached strings.
func (b *Bus) readStringDescriptors(dev *UsbDevice, buf []byte) {
	readString := func(index uint8) string {
		if index == 0 {
			return ""
		}
		setup := hal.SetupPacket{
			RequestType: RequestTypeIn | RequestTypeStandard | RequestTypeDevice,
			Request:     RequestGetDescriptor,
			Value:       uint16(DescriptorTypeString)<<8 | uint16(index),
			Index:       LangIDUSEnglish,
			Length:      uint16(len(buf)),
		}
		n, err := dev.ControlTransfer(b.ctx, &setup, buf)
		if err != nil || n < 2 {
			return ""
		}
		length := int(buf[0])
		if length > n {
			length = n
		}
		if length < 2 {
			return ""
		}
		result := make([]byte, 0, (length-2)/2)
		for i := 2; i < length-1; i += 2 {
			if buf[i+1] == 0 && buf[i] >= 0x20 && buf[i] < 0x7F {
				result = append(result, buf[i])
			}
		}
		return string(result)
	}

	if s := readString(dev.info.ManufacturerIndex); s != "" && int(dev.info.ManufacturerIndex) < len(dev.strings) {
		dev.strings[dev.info.ManufacturerIndex] = s
	}
	if s := readString(dev.info.ProductIndex); s != "" && int(dev.info.ProductIndex) < len(dev.strings) {
		dev.strings[dev.info.ProductIndex] = s
	}
	if s := readString(dev.info.SerialNumberIndex); s != "" && int(dev.info.SerialNumberIndex) < len(dev.strings) {
		dev.strings[dev.info.SerialNumberIndex] = s
	}
}

// fetchWithRetry issues a control transfer, retrying once after RetryDelay
// if the first attempt fails with a Stall.
func (b *Bus) fetchWithRetry(dev *UsbDevice, setup *hal.SetupPacket, buf []byte) (int, error) {
	n, err := b.ctrl.ControlTransfer(b.ctx, hal.DeviceAddress(0), dev.ep0MaxPacketSize, setup, buf)
	if err == nil {
		return n, nil
	}
	if err != pkg.ErrStall {
		return 0, err
	}
	b.cfg.DelayFunc(b.ctx, b.cfg.RetryDelay)
	return b.ctrl.ControlTransfer(b.ctx, hal.DeviceAddress(0), dev.ep0MaxPacketSize, setup, buf)
}

func (b *Bus) resetPort(parentHub, parentPort uint8) error {
	if parentHub == 0 {
		return b.resetRootPort()
	}
	return b.resetHubPort(parentHub, parentPort)
}

func (b *Bus) resetRootPort() error {
	if err := b.ctrl.ResetRootPort(true); err != nil {
		return err
	}
	b.cfg.DelayFunc(b.ctx, 10*time.Millisecond)
	return b.ctrl.ResetRootPort(false)
}

func (b *Bus) resetHubPort(hubAddr, port uint8) error {
	hub := b.Device(hubAddr)
	if hub == nil {
		return pkg.ErrNoDevice
	}
	setup := hal.SetupPacket{
		RequestType: RequestTypeOut | RequestTypeClass | RequestTypeOther,
		Request:     RequestSetPortFeature,
		Value:       PortFeatureReset,
		Index:       uint16(port),
	}
	_, err := hub.ControlTransfer(b.ctx, &setup, nil)
	return err
}

func (b *Bus) fail(parentHub, parentPort uint8, err error) {
	pkg.LogWarn(pkg.ComponentBus, "enumeration failed",
		"parent_hub", parentHub, "parent_port", parentPort, "error", err)
	b.emit(DeviceEvent{Kind: EventEnumerationError, ParentHub: parentHub, ParentPort: parentPort, Err: err})
}

// disconnect clears the Topology subtree rooted at (parentHub, parentPort)
// and emits a Disconnect event for every address removed.
func (b *Bus) disconnect(parentHub, parentPort uint8) {
	cleared := b.topology.Disconnect(parentHub, parentPort)
	addrs := cleared.Slice()

	b.mu.Lock()
	for _, addr := range addrs {
		if dev, ok := b.devices[uint8(addr)]; ok {
			dev.invalidate()
			delete(b.devices, uint8(addr))
		}
		if hub, ok := b.hubs[uint8(addr)]; ok {
			hub.stream.Close()
			delete(b.hubs, uint8(addr))
		}
	}
	b.mu.Unlock()

	for _, addr := range addrs {
		b.emit(DeviceEvent{Kind: EventDisconnect, Address: uint8(addr)})
	}
}

// GetConfiguration fetches and parses the full configuration descriptor
// tree for dev, invoking v for each descriptor in wire order.
func (b *Bus) GetConfiguration(ctx context.Context, dev *UsbDevice, v descriptor.Visitor) error {
	var hdr [descriptor.ConfigurationSize]byte
	setup := hal.SetupPacket{
		RequestType: RequestTypeIn | RequestTypeStandard | RequestTypeDevice,
		Request:     RequestGetDescriptor,
		Value:       uint16(DescriptorTypeConfiguration) << 8,
		Length:      descriptor.ConfigurationSize,
	}
	n, err := dev.ControlTransfer(ctx, &setup, hdr[:])
	if err != nil {
		return err
	}
	if n < descriptor.ConfigurationSize {
		return pkg.ErrDescriptorTooShort
	}

	totalLength := uint16(hdr[2]) | uint16(hdr[3])<<8
	buf := make([]byte, totalLength)
	setup.Length = totalLength
	n, err = dev.ControlTransfer(ctx, &setup, buf)
	if err != nil {
		return err
	}

	return descriptor.Walk(buf[:n], v)
}

// Configure parses dev's active configuration into its interfaces/
// endpoints cache and issues SET_CONFIGURATION.
func (b *Bus) Configure(ctx context.Context, dev *UsbDevice, cfgNum uint8) error {
	collector := &configCollector{}
	if err := b.GetConfiguration(ctx, dev, collector); err != nil {
		return err
	}

	dev.mu.Lock()
	dev.config = collector.config
	dev.interfaces = collector.interfaces
	dev.endpoints = collector.endpoints
	dev.mu.Unlock()

	return dev.SetConfiguration(ctx, cfgNum)
}

type configCollector struct {
	config     descriptor.Configuration
	interfaces []descriptor.Interface
	endpoints  []descriptor.Endpoint
}

func (c *configCollector) OnConfiguration(cfg *descriptor.Configuration) { c.config = *cfg }
func (c *configCollector) OnInterface(iface *descriptor.Interface)      { c.interfaces = append(c.interfaces, *iface) }
func (c *configCollector) OnEndpoint(ep *descriptor.Endpoint)           { c.endpoints = append(c.endpoints, *ep) }
func (c *configCollector) OnInterfaceAssociation(*descriptor.InterfaceAssociation) {}
func (c *configCollector) OnOther(uint8, []byte)                                  {}

// inspectHub fetches the hub descriptor, configures the device, powers all
// ports, and arms its status-change interrupt endpoint.
func (b *Bus) inspectHub(dev *UsbDevice) {
	var hubDesc [9]byte
	setup := hal.SetupPacket{
		RequestType: RequestTypeIn | RequestTypeClass | RequestTypeDevice,
		Request:     RequestGetHubDescriptor,
		Value:       uint16(DescriptorTypeHub) << 8,
		Length:      uint16(len(hubDesc)),
	}
	n, err := dev.ControlTransfer(b.ctx, &setup, hubDesc[:])
	if err != nil || n < 3 {
		b.fail(dev.parentHub, dev.parentPort, pkg.ErrEnumerationFailed)
		return
	}
	numPorts := hubDesc[2]

	if err := b.Configure(b.ctx, dev, 1); err != nil {
		b.fail(dev.parentHub, dev.parentPort, err)
		return
	}

	for port := uint8(1); port <= numPorts; port++ {
		powerSetup := hal.SetupPacket{
			RequestType: RequestTypeOut | RequestTypeClass | RequestTypeOther,
			Request:     RequestSetPortFeature,
			Value:       PortFeaturePower,
			Index:       uint16(port),
		}
		if _, err := dev.ControlTransfer(b.ctx, &powerSetup, nil); err != nil {
			pkg.LogWarn(pkg.ComponentBus, "port power failed", "hub", dev.address, "port", port, "error", err)
		}
	}

	dev.mu.Lock()
	dev.isHub = true
	dev.hubNumPorts = numPorts
	dev.mu.Unlock()

	var statusEP uint8
	var maxPacketSize uint16 = 1
	var interval uint8 = 10
	for _, ep := range dev.endpoints {
		if ep.TransferType() == 0x03 && ep.IsIn() {
			statusEP = ep.EndpointAddress
			maxPacketSize = ep.MaxPacketSize
			interval = ep.Interval
			break
		}
	}
	dev.mu.Lock()
	dev.hubInterruptEP = statusEP
	dev.mu.Unlock()

	pipe, err := b.ctrl.AllocInterruptPipe(b.ctx, hal.DeviceAddress(dev.address), statusEP&0x0F, maxPacketSize, interval)
	if err != nil {
		b.fail(dev.parentHub, dev.parentPort, err)
		return
	}

	hs := &hubState{addr: dev.address, numPorts: numPorts, stream: newInterruptStream(pipe)}
	b.mu.Lock()
	b.hubs[dev.address] = hs
	b.mu.Unlock()

	b.wg.Add(1)
	go b.pollHub(dev, hs)
}

// pollHub consumes status-change bitmaps from a hub's interrupt pipe and
// drives port enumeration/disconnection.
func (b *Bus) pollHub(dev *UsbDevice, hs *hubState) {
	defer b.wg.Done()
	defer hs.stream.Close()
	for {
		payload, ok := hs.stream.Next(b.ctx)
		if !ok {
			return
		}
		for port := uint8(1); port <= hs.numPorts; port++ {
			byteIdx := port / 8
			bitIdx := port % 8
			if int(byteIdx) >= len(payload) {
				continue
			}
			if payload[byteIdx]&(1<<bitIdx) == 0 {
				continue
			}
			b.handlePortChange(dev, port)
		}
	}
}

func (b *Bus) handlePortChange(hub *UsbDevice, port uint8) {
	var status [4]byte
	setup := hal.SetupPacket{
		RequestType: RequestTypeIn | RequestTypeClass | RequestTypeOther,
		Request:     RequestGetPortStatus,
		Index:       uint16(port),
		Length:      4,
	}
	n, err := hub.ControlTransfer(b.ctx, &setup, status[:])
	if err != nil || n < 4 {
		return
	}

	change := PortStatusBits(uint16(status[2]) | uint16(status[3])<<8)

	if change.Has(PortStatusConnection) {
		clearChange(b, hub, port, PortFeatureCConnection)
		curStatus := PortStatusBits(uint16(status[0]) | uint16(status[1])<<8)
		if curStatus.Has(PortStatusConnection) {
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.runEnumeration(hub.address, port, hal.SpeedFull)
			}()
		} else {
			b.disconnect(hub.address, port)
		}
	}
	if change.Has(PortStatusReset) {
		clearChange(b, hub, port, PortFeatureCReset)
	}
	if change.Has(PortStatusEnable) {
		clearChange(b, hub, port, PortFeatureCEnable)
		curStatus := PortStatusBits(uint16(status[0]) | uint16(status[1])<<8)
		if !curStatus.Has(PortStatusEnable) {
			b.disconnect(hub.address, port)
		}
	}
}

func clearChange(b *Bus, hub *UsbDevice, port uint8, feature uint16) {
	setup := hal.SetupPacket{
		RequestType: RequestTypeOut | RequestTypeClass | RequestTypeOther,
		Request:     RequestClearPortFeature,
		Value:       feature,
		Index:       uint16(port),
	}
	_, _ = hub.ControlTransfer(b.ctx, &setup, nil)
}
