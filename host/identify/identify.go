// Package identify implements class identifiers: descriptor.Visitor
// implementations that walk a device's configuration descriptor looking
// for a specific class of interface, reporting the configuration value
// that exposes it.
package identify

import "github.com/ardnew/usbhost/host/descriptor"

// USB class codes relevant to the identifiers in this package.
const (
	ClassMassStorage = 0x08
	ClassHID         = 0x03

	SubClassSCSI = 0x06
	ProtocolBOT  = 0x50

	ProtocolHIDBoot = 0x01
	SubClassBoot    = 0x01
)

// MSC identifies a Mass Storage Bulk-Only Transport (SCSI transparent
// command set) interface, recording its bulk IN and OUT endpoint
// addresses.
type MSC struct {
	currentConfig uint8
	found         bool
	config        uint8
	iface         uint8
	bulkIn        uint8
	bulkOut       uint8
}

// NewMSC constructs an MSC identifier.
func NewMSC() *MSC { return &MSC{} }

// OnConfiguration implements descriptor.Visitor.
func (m *MSC) OnConfiguration(cfg *descriptor.Configuration) {
	m.currentConfig = cfg.ConfigurationValue
}

// OnInterface implements descriptor.Visitor.
func (m *MSC) OnInterface(iface *descriptor.Interface) {
	if m.found {
		return
	}
	if iface.InterfaceClass == ClassMassStorage &&
		iface.InterfaceSubClass == SubClassSCSI &&
		iface.InterfaceProtocol == ProtocolBOT {
		m.found = true
		m.config = m.currentConfig
		m.iface = iface.InterfaceNumber
	}
}

// OnEndpoint implements descriptor.Visitor.
func (m *MSC) OnEndpoint(ep *descriptor.Endpoint) {
	if !m.found || ep.TransferType() != 0x02 { // bulk only
		return
	}
	if ep.IsIn() {
		m.bulkIn = ep.EndpointAddress
	} else {
		m.bulkOut = ep.EndpointAddress
	}
}

// OnInterfaceAssociation implements descriptor.Visitor.
func (m *MSC) OnInterfaceAssociation(*descriptor.InterfaceAssociation) {}

// OnOther implements descriptor.Visitor.
func (m *MSC) OnOther(uint8, []byte) {}

// Identify returns the configuration value to select and the interface
// number and bulk endpoint addresses to open, if a matching interface was
// found.
func (m *MSC) Identify() (config, iface, bulkIn, bulkOut uint8, ok bool) {
	return m.config, m.iface, m.bulkIn, m.bulkOut, m.found
}

// HID identifies a boot sub-class HID interface with a given
// bInterfaceProtocol (keyboard=0x01 / mouse=0x02), recording the interrupt
// IN endpoint to open.
type HID struct {
	wantProtocol uint8

	currentConfig uint8
	found         bool
	config        uint8
	iface         uint8
	interruptIn   uint8
	maxPacketSize uint16
	interval      uint8
}

// NewHID constructs a HID identifier for the given boot protocol (1 =
// keyboard, 2 = mouse, per the HID 1.11 specification's bInterfaceProtocol).
func NewHID(protocol uint8) *HID {
	return &HID{wantProtocol: protocol}
}

// OnConfiguration implements descriptor.Visitor.
func (h *HID) OnConfiguration(cfg *descriptor.Configuration) {
	h.currentConfig = cfg.ConfigurationValue
}

// OnInterface implements descriptor.Visitor.
func (h *HID) OnInterface(iface *descriptor.Interface) {
	if h.found {
		return
	}
	if iface.InterfaceClass == ClassHID &&
		iface.InterfaceSubClass == SubClassBoot &&
		iface.InterfaceProtocol == h.wantProtocol {
		h.found = true
		h.config = h.currentConfig
		h.iface = iface.InterfaceNumber
	}
}

// OnEndpoint implements descriptor.Visitor.
func (h *HID) OnEndpoint(ep *descriptor.Endpoint) {
	if !h.found || h.interruptIn != 0 {
		return
	}
	if ep.TransferType() == 0x03 && ep.IsIn() { // interrupt IN
		h.interruptIn = ep.EndpointAddress
		h.maxPacketSize = ep.MaxPacketSize
		h.interval = ep.Interval
	}
}

// OnInterfaceAssociation implements descriptor.Visitor.
func (h *HID) OnInterfaceAssociation(*descriptor.InterfaceAssociation) {}

// OnOther implements descriptor.Visitor.
func (h *HID) OnOther(uint8, []byte) {}

// Identify returns the configuration value, interface number, and
// interrupt IN endpoint parameters for the matched HID interface.
func (h *HID) Identify() (config, iface, interruptIn uint8, maxPacketSize uint16, interval uint8, ok bool) {
	return h.config, h.iface, h.interruptIn, h.maxPacketSize, h.interval, h.found
}
