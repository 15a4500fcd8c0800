// Package descriptor implements a wire-order walker over a USB
// configuration descriptor byte stream, dispatching each unit to a
// Visitor by descriptor type. Consumers (class identifiers) reassemble
// hierarchy themselves by remembering the most recent Configuration and
// Interface descriptors the visitor was given.
package descriptor

import "github.com/ardnew/usbhost/pkg"

// Descriptor type codes (bDescriptorType).
const (
	TypeDevice               = 0x01
	TypeConfiguration        = 0x02
	TypeString               = 0x03
	TypeInterface            = 0x04
	TypeEndpoint             = 0x05
	TypeDeviceQualifier      = 0x06
	TypeOtherSpeedConfig     = 0x07
	TypeInterfacePower       = 0x08
	TypeOTG                  = 0x09
	TypeDebug                = 0x0A
	TypeInterfaceAssociation = 0x0B
)

// Device is a parsed device descriptor.
type Device struct {
	Length            uint8
	USBVersion        uint16
	DeviceClass       uint8
	DeviceSubClass    uint8
	DeviceProtocol    uint8
	MaxPacketSize0    uint8
	VendorID          uint16
	ProductID         uint16
	DeviceVersion     uint16
	ManufacturerIndex uint8
	ProductIndex      uint8
	SerialNumberIndex uint8
	NumConfigurations uint8
}

// DeviceSize is the byte length of a device descriptor.
const DeviceSize = 18

// ParseDevice parses a device descriptor from data.
func ParseDevice(data []byte, out *Device) bool {
	if len(data) < DeviceSize {
		return false
	}
	out.Length = data[0]
	out.USBVersion = uint16(data[2]) | uint16(data[3])<<8
	out.DeviceClass = data[4]
	out.DeviceSubClass = data[5]
	out.DeviceProtocol = data[6]
	out.MaxPacketSize0 = data[7]
	out.VendorID = uint16(data[8]) | uint16(data[9])<<8
	out.ProductID = uint16(data[10]) | uint16(data[11])<<8
	out.DeviceVersion = uint16(data[12]) | uint16(data[13])<<8
	out.ManufacturerIndex = data[14]
	out.ProductIndex = data[15]
	out.SerialNumberIndex = data[16]
	out.NumConfigurations = data[17]
	return true
}

// Configuration is a parsed configuration descriptor header.
type Configuration struct {
	Length             uint8
	TotalLength        uint16
	NumInterfaces      uint8
	ConfigurationValue uint8
	ConfigurationIndex uint8
	Attributes         uint8
	MaxPower           uint8
}

// ConfigurationSize is the byte length of a configuration descriptor header.
const ConfigurationSize = 9

func parseConfiguration(data []byte, out *Configuration) bool {
	if len(data) < ConfigurationSize {
		return false
	}
	out.Length = data[0]
	out.TotalLength = uint16(data[2]) | uint16(data[3])<<8
	out.NumInterfaces = data[4]
	out.ConfigurationValue = data[5]
	out.ConfigurationIndex = data[6]
	out.Attributes = data[7]
	out.MaxPower = data[8]
	return true
}

// Interface is a parsed interface descriptor.
type Interface struct {
	Length            uint8
	InterfaceNumber   uint8
	AlternateSetting  uint8
	NumEndpoints      uint8
	InterfaceClass    uint8
	InterfaceSubClass uint8
	InterfaceProtocol uint8
	InterfaceIndex    uint8
}

// InterfaceSize is the byte length of an interface descriptor.
const InterfaceSize = 9

func parseInterface(data []byte, out *Interface) bool {
	if len(data) < InterfaceSize {
		return false
	}
	out.Length = data[0]
	out.InterfaceNumber = data[2]
	out.AlternateSetting = data[3]
	out.NumEndpoints = data[4]
	out.InterfaceClass = data[5]
	out.InterfaceSubClass = data[6]
	out.InterfaceProtocol = data[7]
	out.InterfaceIndex = data[8]
	return true
}

// Endpoint is a parsed endpoint descriptor.
type Endpoint struct {
	Length          uint8
	EndpointAddress uint8
	Attributes      uint8
	MaxPacketSize   uint16
	Interval        uint8
}

// EndpointSize is the byte length of an endpoint descriptor.
const EndpointSize = 7

func parseEndpoint(data []byte, out *Endpoint) bool {
	if len(data) < EndpointSize {
		return false
	}
	out.Length = data[0]
	out.EndpointAddress = data[2]
	out.Attributes = data[3]
	out.MaxPacketSize = uint16(data[4]) | uint16(data[5])<<8
	out.Interval = data[6]
	return true
}

// Number returns the endpoint number (0-15).
func (e *Endpoint) Number() uint8 { return e.EndpointAddress & 0x0F }

// IsIn returns true if this is an IN endpoint.
func (e *Endpoint) IsIn() bool { return e.EndpointAddress&0x80 != 0 }

// TransferType returns the low two bits of bmAttributes.
func (e *Endpoint) TransferType() uint8 { return e.Attributes & 0x03 }

// InterfaceAssociation is a parsed Interface Association Descriptor (IAD).
type InterfaceAssociation struct {
	Length           uint8
	FirstInterface   uint8
	InterfaceCount   uint8
	FunctionClass    uint8
	FunctionSubClass uint8
	FunctionProtocol uint8
}

// InterfaceAssociationSize is the byte length of an IAD.
const InterfaceAssociationSize = 8

func parseInterfaceAssociation(data []byte, out *InterfaceAssociation) bool {
	if len(data) < InterfaceAssociationSize {
		return false
	}
	out.Length = data[0]
	out.FirstInterface = data[2]
	out.InterfaceCount = data[3]
	out.FunctionClass = data[4]
	out.FunctionSubClass = data[5]
	out.FunctionProtocol = data[6]
	return true
}

// Visitor receives descriptors in the wire order they appear in a
// configuration descriptor byte stream. Implementations reassemble
// hierarchy by remembering the most recently visited Configuration and
// Interface.
type Visitor interface {
	OnConfiguration(cfg *Configuration)
	OnInterface(iface *Interface)
	OnEndpoint(ep *Endpoint)
	OnInterfaceAssociation(iad *InterfaceAssociation)
	OnOther(descriptorType uint8, raw []byte)
}

// Walk parses data, a byte slice beginning with a configuration descriptor,
// dispatching each descriptor unit to v in wire order. It advances by
// bLength and aborts with pkg.ErrDescriptorTooShort on a zero length or a
// length that would read past the end of data.
func Walk(data []byte, v Visitor) error {
	for off := 0; off < len(data); {
		remaining := data[off:]
		if len(remaining) < 2 {
			return pkg.ErrDescriptorTooShort
		}
		length := int(remaining[0])
		descType := remaining[1]
		if length == 0 || off+length > len(data) {
			return pkg.ErrDescriptorTooShort
		}
		unit := remaining[:length]

		switch descType {
		case TypeConfiguration:
			var cfg Configuration
			if !parseConfiguration(unit, &cfg) {
				return pkg.ErrDescriptorTooShort
			}
			v.OnConfiguration(&cfg)
		case TypeInterface:
			var iface Interface
			if !parseInterface(unit, &iface) {
				return pkg.ErrDescriptorTooShort
			}
			v.OnInterface(&iface)
		case TypeEndpoint:
			var ep Endpoint
			if !parseEndpoint(unit, &ep) {
				return pkg.ErrDescriptorTooShort
			}
			v.OnEndpoint(&ep)
		case TypeInterfaceAssociation:
			var iad InterfaceAssociation
			if !parseInterfaceAssociation(unit, &iad) {
				return pkg.ErrDescriptorTooShort
			}
			v.OnInterfaceAssociation(&iad)
		default:
			v.OnOther(descType, unit)
		}

		off += length
	}
	return nil
}
