//go:build linux

package linux

import (
	"unsafe"

	ioctl "github.com/daedaluz/goioctl"
)

// usbdevfs ioctl type character and command numbers, from
// linux/usbdevice_fs.h. goioctl's IOR/IOW/IOWR/IO encode the direction,
// type, number, and argument size the same way across every Go-supported
// Linux architecture, so these replace the hand-computed, arm-only
// constants the original syscall-based HAL carried.
const usbdevfsType = 'U'

const (
	ioctlControl          = 0
	ioctlBulk             = 2
	ioctlResetEP          = 3
	ioctlSetInterface     = 4
	ioctlSetConfiguration = 5
	ioctlGetDriver        = 8
	ioctlSubmitURB        = 10
	ioctlDiscardURB       = 11
	ioctlReapURB          = 12
	ioctlReapURBNDelay    = 13
	ioctlClaimInterface   = 15
	ioctlReleaseInterface = 16
	ioctlConnectInfo      = 17
	ioctlReset            = 20
	ioctlClearHalt        = 21
	ioctlDisconnect       = 22
	ioctlConnect          = 23
	ioctlGetCapabilities  = 26
	ioctlDropPrivileges   = 30
)

var (
	ioctlUsbdevfsControl          = ioctl.IOWR(usbdevfsType, ioctlControl, unsafe.Sizeof(ctrlTransfer{}))
	ioctlUsbdevfsBulk             = ioctl.IOWR(usbdevfsType, ioctlBulk, unsafe.Sizeof(bulkTransfer{}))
	ioctlUsbdevfsResetEP          = ioctl.IOR(usbdevfsType, ioctlResetEP, unsafe.Sizeof(uint32(0)))
	ioctlUsbdevfsClearHalt        = ioctl.IOR(usbdevfsType, ioctlClearHalt, unsafe.Sizeof(uint32(0)))
	ioctlUsbdevfsSetConfiguration = ioctl.IOR(usbdevfsType, ioctlSetConfiguration, unsafe.Sizeof(uint32(0)))
	ioctlUsbdevfsSubmitURB        = ioctl.IOR(usbdevfsType, ioctlSubmitURB, unsafe.Sizeof(uintptr(0)))
	ioctlUsbdevfsDiscardURB       = ioctl.IO(usbdevfsType, ioctlDiscardURB)
	ioctlUsbdevfsReapURB          = ioctl.IOW(usbdevfsType, ioctlReapURB, unsafe.Sizeof(uintptr(0)))
	ioctlUsbdevfsReapURBNDelay    = ioctl.IOW(usbdevfsType, ioctlReapURBNDelay, unsafe.Sizeof(uintptr(0)))
	ioctlUsbdevfsClaimInterface   = ioctl.IOR(usbdevfsType, ioctlClaimInterface, unsafe.Sizeof(uint32(0)))
	ioctlUsbdevfsReleaseInterface = ioctl.IOR(usbdevfsType, ioctlReleaseInterface, unsafe.Sizeof(uint32(0)))
	ioctlUsbdevfsConnectInfo      = ioctl.IOW(usbdevfsType, ioctlConnectInfo, unsafe.Sizeof(connectInfo{}))
	ioctlUsbdevfsReset            = ioctl.IO(usbdevfsType, ioctlReset)
	ioctlUsbdevfsDisconnect       = ioctl.IO(usbdevfsType, ioctlDisconnect)
	ioctlUsbdevfsConnect          = ioctl.IO(usbdevfsType, ioctlConnect)
	ioctlUsbdevfsGetCapabilities  = ioctl.IOR(usbdevfsType, ioctlGetCapabilities, unsafe.Sizeof(uint32(0)))
)
